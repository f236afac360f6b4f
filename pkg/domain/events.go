package domain

import (
	"context"
	"time"
)

// EventType defines the category of an input to the state machine.
type EventType string

const (
	EventJoinAck           EventType = "join_ack"
	EventJoinFailed        EventType = "join_failed"
	EventEvidenceCollected EventType = "evidence_collected"
	EventEvidenceFailed    EventType = "evidence_failed"
	EventAgentMessage      EventType = "agent_message"
	EventAgentFailed       EventType = "agent_failed"
	EventSynthesisDone     EventType = "synthesis_done"
	EventSynthesisFailed   EventType = "synthesis_failed"
	EventPhaseTimeout      EventType = "phase_timeout"
	EventDeadline          EventType = "deadline"
	EventCancel            EventType = "cancel"
)

// Event is the only way a council changes. Adapter completions and timers are
// turned into events by the manager; callers may submit them directly too.
type Event struct {
	Type      EventType `json:"type"`
	Agent     string    `json:"agent,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Phase     Status    `json:"phase,omitempty"`
	Message   *Message  `json:"message,omitempty"`
	Artifact  *Artifact `json:"artifact,omitempty"`
	Result    *Result   `json:"result,omitempty"`
	Timeout   bool      `json:"timeout,omitempty"` // The failure was a timeout
	Detail    string    `json:"detail,omitempty"`
}

// JoinAck reports that agent accepted the council invitation.
func JoinAck(agent string) Event {
	return Event{Type: EventJoinAck, Agent: agent}
}

// JoinFailed reports that agent refused or never answered the invitation.
func JoinFailed(agent string, timeout bool, detail string) Event {
	return Event{Type: EventJoinFailed, Agent: agent, Timeout: timeout, Detail: detail}
}

// EvidenceCollected delivers the artifact for an evidence request.
func EvidenceCollected(requestID string, a Artifact) Event {
	return Event{Type: EventEvidenceCollected, RequestID: requestID, Artifact: &a}
}

// EvidenceFailed marks an evidence request as failed.
func EvidenceFailed(requestID string, timeout bool, detail string) Event {
	return Event{Type: EventEvidenceFailed, RequestID: requestID, Timeout: timeout, Detail: detail}
}

// AgentMessage submits a contribution from m.Agent.
func AgentMessage(m Message) Event {
	return Event{Type: EventAgentMessage, Agent: m.Agent, Message: &m}
}

// AgentFailed reports that agent dropped out of deliberation.
func AgentFailed(agent string, timeout bool, detail string) Event {
	return Event{Type: EventAgentFailed, Agent: agent, Timeout: timeout, Detail: detail}
}

// SynthesisDone delivers the synthesized result.
func SynthesisDone(r Result) Event {
	return Event{Type: EventSynthesisDone, Result: &r}
}

// SynthesisFailed reports a synthesis error.
func SynthesisFailed(detail string) Event {
	return Event{Type: EventSynthesisFailed, Detail: detail}
}

// PhaseTimeout fires when phase ran out of time.
func PhaseTimeout(phase Status) Event {
	return Event{Type: EventPhaseTimeout, Phase: phase}
}

// Deadline fires when the council deadline is reached.
func Deadline() Event {
	return Event{Type: EventDeadline}
}

// Cancel requests cancellation; detail is recorded in the transition log.
func Cancel(detail string) Event {
	return Event{Type: EventCancel, Detail: detail}
}

// TransitionEvent is emitted to observers after a status change was applied.
type TransitionEvent struct {
	SessionID string           `json:"session_id"`
	Record    TransitionRecord `json:"record"`
	Summary   Summary          `json:"summary"`
}

// LifecycleHooks defines callbacks for manager observability.
// Hooks run synchronously on the manager's goroutines and must not block.
type LifecycleHooks struct {
	OnCreate     func(context.Context, Summary)
	OnTransition func(context.Context, *TransitionEvent)
	OnApply      func(context.Context, string, Event, Status) // Every accepted event, after its transitions
	OnReject     func(context.Context, string, Event, error)
	OnEvict      func(context.Context, string, time.Duration)
}
