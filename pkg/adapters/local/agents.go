package local

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/council/pkg/domain"
)

// Responder produces an agent's contribution to a council.
type Responder func(ctx context.Context, prompt domain.Prompt) (domain.Message, error)

// Agents implements ports.AgentAdapter over registered responders.
// Safe for concurrent use.
type Agents struct {
	mu        sync.RWMutex
	responder map[string]Responder
}

// NewAgents creates an empty roster.
func NewAgents() *Agents {
	return &Agents{responder: make(map[string]Responder)}
}

// Register adds or replaces an agent.
func (a *Agents) Register(name string, r Responder) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.responder[name] = r
}

// Names lists registered agents.
func (a *Agents) Names() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, 0, len(a.responder))
	for name := range a.responder {
		names = append(names, name)
	}
	return names
}

func (a *Agents) lookup(agent string) (Responder, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	r, ok := a.responder[agent]
	if !ok {
		return nil, fmt.Errorf("agent %q is not registered", agent)
	}
	return r, nil
}

// Join accepts any registered agent.
func (a *Agents) Join(ctx context.Context, agent, sessionID string, timeout time.Duration) error {
	if _, err := a.lookup(agent); err != nil {
		return err
	}
	return ctx.Err()
}

// SendAndAwait runs the agent's responder.
func (a *Agents) SendAndAwait(ctx context.Context, agent string, prompt domain.Prompt, timeout time.Duration) (domain.Message, error) {
	r, err := a.lookup(agent)
	if err != nil {
		return domain.Message{}, err
	}
	msg, err := r(ctx, prompt)
	if err != nil {
		return domain.Message{}, err
	}
	if ctx.Err() != nil {
		return domain.Message{}, ctx.Err()
	}
	msg.Agent = agent
	return msg, nil
}

// Proposer answers every prompt with a proposal built from the topic and the
// evidence it was given.
func Proposer(focus string) Responder {
	return func(ctx context.Context, p domain.Prompt) (domain.Message, error) {
		var collected []string
		for id, rec := range p.Evidence {
			if !rec.Failed {
				collected = append(collected, id)
			}
		}
		content := fmt.Sprintf("From a %s angle, address %q", focus, p.Topic)
		if len(collected) > 0 {
			content += " using " + strings.Join(sortedCopy(collected), ", ")
		}
		return domain.Message{Kind: domain.MessageProposal, Content: content}, nil
	}
}

// Critic answers with a critique of the first peer other than itself.
func Critic(self, remark string) Responder {
	return func(ctx context.Context, p domain.Prompt) (domain.Message, error) {
		target := ""
		for _, peer := range p.Peers {
			if peer != self {
				target = peer
				break
			}
		}
		return domain.Message{Kind: domain.MessageCritique, Target: target, Content: remark}, nil
	}
}

// DefaultRoster registers the agents `council serve` uses when no agent registry is configured.
func DefaultRoster() *Agents {
	a := NewAgents()
	a.Register("architect", Proposer("architecture"))
	a.Register("performance", Proposer("performance"))
	a.Register("tester", Proposer("testability"))
	a.Register("critic", Critic("critic", "the proposal lacks a rollback plan"))
	return a
}

func sortedCopy(s []string) []string {
	out := slices.Clone(s)
	slices.Sort(out)
	return out
}
