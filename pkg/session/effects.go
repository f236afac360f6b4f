package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/council/pkg/domain"
)

// call is an adapter invocation started after the council lock is released.
// run performs the call and converts its outcome into the event to submit;
// fail builds the event reported if run panics.
type call struct {
	name string
	run  func(ctx context.Context) domain.Event
	fail func(detail string) domain.Event
}

func phaseTimerKey(phase domain.Status) string { return "phase:" + string(phase) }
func agentTimerKey(agent string) string        { return "agent:" + agent }

// perform arms the timers requested by effects and returns the adapter calls to
// start once the lock is released. Caller holds e.mu.
func (m *Manager) perform(e *entry, effects []domain.Effect) []call {
	var calls []call
	id := e.id
	for _, eff := range effects {
		switch eff.Type {
		case domain.EffectJoinAgent:
			calls = append(calls, m.joinCall(id, eff.Agent))
		case domain.EffectFetchEvidence:
			calls = append(calls, m.fetchCall(eff.Request))
		case domain.EffectPromptAgent:
			calls = append(calls, m.promptCall(eff.Agent, eff.Prompt))
		case domain.EffectSynthesize:
			calls = append(calls, m.synthesizeCall(eff.Messages, eff.Evidence, e.session.DeadlineAt.Sub(m.clock.Now())))
		case domain.EffectArmPhaseTimer:
			phase := eff.Phase
			m.arm(e, phaseTimerKey(phase), eff.After, domain.PhaseTimeout(phase))
		case domain.EffectArmAgentTimer:
			m.arm(e, agentTimerKey(eff.Agent), eff.After, domain.AgentFailed(eff.Agent, true, "agent timeout elapsed"))
		case domain.EffectAbort:
			// Handled by retire once the terminal status is stored.
		default:
			m.logger.Error("unknown effect", "council_id", id, "effect", eff.Type)
		}
	}
	return calls
}

func (m *Manager) arm(e *entry, key string, after time.Duration, ev domain.Event) {
	if old, ok := e.timers[key]; ok {
		old.Stop()
	}
	id := e.id
	e.timers[key] = m.clock.AfterFunc(after, func() {
		m.dispatch(id, ev)
	})
}

// reapTimers stops timers whose purpose has ended: phase timers of a finished
// phase and agent timers of agents that are no longer expected to reply.
// Caller holds e.mu.
func (m *Manager) reapTimers(e *entry) {
	s := e.session
	for _, phase := range []domain.Status{domain.StatusPending, domain.StatusGathering} {
		key := phaseTimerKey(phase)
		if t, ok := e.timers[key]; ok && s.Status != phase {
			t.Stop()
			delete(e.timers, key)
		}
	}
	for _, p := range s.Participants {
		key := agentTimerKey(p.Agent)
		if t, ok := e.timers[key]; ok && p.State != domain.ParticipantActive {
			t.Stop()
			delete(e.timers, key)
		}
	}
}

// launch starts each call on its own goroutine, bound to the council context.
func (m *Manager) launch(e *entry, calls []call) {
	for _, c := range calls {
		m.inflight.Add(1)
		go func(c call) {
			defer m.inflight.Done()
			ev, ok := m.invoke(e, c)
			if !ok {
				return
			}
			m.dispatch(e.id, ev)
		}(c)
	}
}

func (m *Manager) invoke(e *entry, c call) (ev domain.Event, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("adapter panicked", "council_id", e.id, "call", c.name, "panic", r)
			ev, ok = c.fail(fmt.Sprintf("%v: adapter panic: %v", domain.ErrAdapterFailure, r)), true
		}
	}()
	ev = c.run(e.ctx)
	if e.ctx.Err() != nil {
		// The council already ended; the result would be rejected anyway.
		return ev, false
	}
	return ev, true
}

func (m *Manager) joinCall(sessionID, agent string) call {
	timeout := m.limits.AgentTimeout
	return call{
		name: "join:" + agent,
		run: func(ctx context.Context) domain.Event {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			if err := m.agents.Join(ctx, agent, sessionID, timeout); err != nil {
				return domain.JoinFailed(agent, isTimeout(err), err.Error())
			}
			return domain.JoinAck(agent)
		},
		fail: func(detail string) domain.Event { return domain.JoinFailed(agent, false, detail) },
	}
}

func (m *Manager) fetchCall(req domain.EvidenceRequest) call {
	timeout := m.limits.EvidenceTimeout
	limit := m.limits.MaxEvidenceSize
	return call{
		name: "evidence:" + req.ID,
		run: func(ctx context.Context) domain.Event {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			artifact, err := m.evidence.Fetch(ctx, req, limit, timeout)
			if err != nil {
				return domain.EvidenceFailed(req.ID, isTimeout(err), err.Error())
			}
			return domain.EvidenceCollected(req.ID, artifact)
		},
		fail: func(detail string) domain.Event { return domain.EvidenceFailed(req.ID, false, detail) },
	}
}

func (m *Manager) promptCall(agent string, prompt domain.Prompt) call {
	timeout := m.limits.AgentTimeout
	return call{
		name: "prompt:" + agent,
		run: func(ctx context.Context) domain.Event {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			msg, err := m.agents.SendAndAwait(ctx, agent, prompt, timeout)
			if err != nil {
				return domain.AgentFailed(agent, isTimeout(err), err.Error())
			}
			msg.Agent = agent
			msg.Final = true
			return domain.AgentMessage(msg)
		},
		fail: func(detail string) domain.Event { return domain.AgentFailed(agent, false, detail) },
	}
}

func (m *Manager) synthesizeCall(messages []domain.Message, evidence map[string]domain.EvidenceRecord, timeout time.Duration) call {
	return call{
		name: "synthesize",
		run: func(ctx context.Context) domain.Event {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			result, err := m.synth.Synthesize(ctx, messages, evidence, timeout)
			if err != nil {
				return domain.SynthesisFailed(err.Error())
			}
			return domain.SynthesisDone(result)
		},
		fail: domain.SynthesisFailed,
	}
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, domain.ErrDeadlineExceeded)
}
