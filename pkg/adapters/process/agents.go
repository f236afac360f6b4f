// Package process runs council agents as local commands. Only agents declared
// in the allow-list can be joined; the prompt is passed on stdin as JSON and
// the reply is read from stdout.
package process

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/council/pkg/domain"
)

// ErrNotRegistered is returned for agents outside the allow-list.
var ErrNotRegistered = errors.New("agent not registered")

// maxStderr bounds the stderr excerpt kept in errors.
const maxStderr = 512

const waitDelay = 500 * time.Millisecond

// Agents implements ports.AgentAdapter over local processes.
type Agents struct {
	registry map[string]AgentConfig
	baseDir  string
}

// Option configures Agents.
type Option func(*Agents)

// WithBaseDir sets the working directory for agent processes.
func WithBaseDir(dir string) Option {
	return func(a *Agents) {
		a.baseDir = dir
	}
}

// NewAgents creates an adapter for the given allow-list.
func NewAgents(agents map[string]AgentConfig, opts ...Option) *Agents {
	a := &Agents{registry: make(map[string]AgentConfig, len(agents))}
	for name, cfg := range agents {
		a.registry[name] = cfg
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Names lists the registered agents.
func (a *Agents) Names() []string {
	names := make([]string, 0, len(a.registry))
	for name := range a.registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Join acknowledges registered agents whose command can be resolved.
func (a *Agents) Join(ctx context.Context, agent, sessionID string, timeout time.Duration) error {
	cfg, ok := a.registry[agent]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, agent)
	}
	if _, err := exec.LookPath(cfg.Command); err != nil {
		return fmt.Errorf("agent %s: %w", agent, err)
	}
	return ctx.Err()
}

// SendAndAwait runs the agent command once per prompt. A JSON object with
// content on stdout is decoded as a message; any other output becomes the
// content of a proposal.
func (a *Agents) SendAndAwait(ctx context.Context, agent string, prompt domain.Prompt, timeout time.Duration) (domain.Message, error) {
	cfg, ok := a.registry[agent]
	if !ok {
		return domain.Message{}, fmt.Errorf("%w: %s", ErrNotRegistered, agent)
	}
	input, err := json.Marshal(prompt)
	if err != nil {
		return domain.Message{}, fmt.Errorf("failed to encode prompt: %w", err)
	}

	cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
	cmd.Dir = a.baseDir
	// Children that outlive a killed agent must not hold the reply open.
	cmd.WaitDelay = waitDelay
	// Prompt data travels on stdin, never as flags.
	cmd.Stdin = bytes.NewReader(input)
	cmd.Env = append(cmd.Environ(),
		"COUNCIL_AGENT="+agent,
		"COUNCIL_SESSION_ID="+prompt.SessionID,
		"COUNCIL_TIMEOUT_MS="+fmt.Sprint(timeout.Milliseconds()),
	)
	for k, v := range cfg.Environment {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Message{}, fmt.Errorf("agent %s: %w", agent, ctxErr)
		}
		return domain.Message{}, fmt.Errorf("agent %s failed: %w: %s", agent, err, excerpt(stderr.String()))
	}

	out := strings.TrimSpace(stdout.String())
	if strings.HasPrefix(out, "{") {
		var msg domain.Message
		if err := json.Unmarshal([]byte(out), &msg); err == nil && msg.Content != "" {
			msg.Agent = agent
			return msg, nil
		}
	}
	if out == "" {
		return domain.Message{}, fmt.Errorf("agent %s replied with nothing", agent)
	}
	return domain.Message{Agent: agent, Kind: domain.MessageProposal, Content: out}, nil
}

func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderr {
		s = s[:maxStderr] + "..."
	}
	return s
}
