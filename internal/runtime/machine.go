package runtime

import (
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/aretw0/council/pkg/domain"
)

// Outcome is the result of applying one event to a council.
type Outcome struct {
	// Session is the new snapshot. The input session is never modified.
	Session *domain.CouncilSession

	// Effects lists the side-effects the host must perform, in order.
	Effects []domain.Effect

	// Transitions holds the audit records appended by this step (zero, one or two:
	// entering Gathering may immediately advance to Deliberating).
	Transitions []domain.TransitionRecord
}

// Start returns the effects that open a freshly created council:
// a join handshake per participant and the join-phase timer.
func Start(s *domain.CouncilSession, lim domain.Limits) []domain.Effect {
	effects := make([]domain.Effect, 0, len(s.Participants)+1)
	for _, p := range s.Participants {
		effects = append(effects, domain.Effect{Type: domain.EffectJoinAgent, Agent: p.Agent})
	}
	return append(effects, domain.Effect{
		Type:  domain.EffectArmPhaseTimer,
		Phase: domain.StatusPending,
		After: lim.AgentTimeout,
	})
}

// Step applies ev to a copy of s and returns the resulting snapshot and effects.
// The deadline is evaluated before the event is even inspected.
// On error the input session is untouched and no effects are returned.
func Step(s *domain.CouncilSession, ev domain.Event, lim domain.Limits, now time.Time) (Outcome, error) {
	if s.Status.IsTerminal() {
		return Outcome{}, fmt.Errorf("%w: council %s is %s", domain.ErrTerminalSession, s.ID, s.Status)
	}

	m := &machine{s: s.Clone(), lim: lim, now: now}

	if !now.Before(s.DeadlineAt) {
		m.finish(domain.StatusTimedOut, domain.ReasonTimeout, "council deadline reached")
		return m.outcome(), nil
	}

	var err error
	switch ev.Type {
	case domain.EventJoinAck:
		err = m.joinAck(ev)
	case domain.EventJoinFailed:
		err = m.joinFailed(ev)
	case domain.EventEvidenceCollected:
		err = m.evidenceCollected(ev)
	case domain.EventEvidenceFailed:
		err = m.evidenceFailed(ev)
	case domain.EventAgentMessage:
		err = m.agentMessage(ev)
	case domain.EventAgentFailed:
		err = m.agentFailed(ev)
	case domain.EventSynthesisDone:
		err = m.synthesisDone(ev)
	case domain.EventSynthesisFailed:
		err = m.synthesisFailed(ev)
	case domain.EventPhaseTimeout:
		err = m.phaseTimeout(ev)
	case domain.EventDeadline:
		// Only the clock can expire a council; an early deadline event is stale.
		err = m.reject(ev, "deadline not reached")
	case domain.EventCancel:
		detail := ev.Detail
		if detail == "" {
			detail = "cancelled by request"
		}
		m.finish(domain.StatusCancelled, domain.ReasonCancelled, detail)
	default:
		err = fmt.Errorf("%w: unknown event type %q", domain.ErrInvalidTransition, ev.Type)
	}
	if err != nil {
		return Outcome{}, err
	}
	return m.outcome(), nil
}

type machine struct {
	s       *domain.CouncilSession
	lim     domain.Limits
	now     time.Time
	effects []domain.Effect
	records []domain.TransitionRecord
}

func (m *machine) outcome() Outcome {
	return Outcome{Session: m.s, Effects: m.effects, Transitions: m.records}
}

func (m *machine) reject(ev domain.Event, why string) error {
	return fmt.Errorf("%w: %s in %s: %s", domain.ErrInvalidTransition, ev.Type, m.s.Status, why)
}

func (m *machine) require(ev domain.Event, status domain.Status) error {
	if m.s.Status != status {
		return m.reject(ev, "expected "+string(status))
	}
	return nil
}

// transition appends an audit record. The machine only computes edges from the
// lifecycle table, so an illegal edge here is a bug and must not be coerced.
func (m *machine) transition(to domain.Status, reason domain.Reason, detail string) {
	from := m.s.Status
	if !domain.CanTransition(from, to) {
		panic(fmt.Sprintf("runtime: illegal transition %s -> %s (%s)", from, to, reason))
	}
	rec := domain.TransitionRecord{From: from, To: to, At: m.now, Reason: reason, Detail: detail}
	m.s.Status = to
	m.s.TransitionLog = append(m.s.TransitionLog, rec)
	m.records = append(m.records, rec)
}

func (m *machine) finish(to domain.Status, reason domain.Reason, detail string) {
	m.transition(to, reason, detail)
	m.effects = append(m.effects, domain.Effect{Type: domain.EffectAbort})
}

func (m *machine) participant(ev domain.Event) (*domain.Participant, error) {
	i := m.s.Participant(ev.Agent)
	if i < 0 {
		return nil, m.reject(ev, fmt.Sprintf("unknown agent %q", ev.Agent))
	}
	return &m.s.Participants[i], nil
}

// -- Pending --

func (m *machine) joinAck(ev domain.Event) error {
	if err := m.require(ev, domain.StatusPending); err != nil {
		return err
	}
	p, err := m.participant(ev)
	if err != nil {
		return err
	}
	if p.State != domain.ParticipantInvited {
		return m.reject(ev, fmt.Sprintf("agent %q already %s", p.Agent, p.State))
	}
	p.State = domain.ParticipantJoined

	for _, other := range m.s.Participants {
		if other.State != domain.ParticipantJoined {
			return nil
		}
	}
	m.transition(domain.StatusGathering, domain.ReasonJoined, "")
	m.enterGathering()
	return nil
}

func (m *machine) joinFailed(ev domain.Event) error {
	if err := m.require(ev, domain.StatusPending); err != nil {
		return err
	}
	p, err := m.participant(ev)
	if err != nil {
		return err
	}
	if p.State != domain.ParticipantInvited {
		return m.reject(ev, fmt.Sprintf("agent %q already %s", p.Agent, p.State))
	}
	reason := domain.ReasonJoinRejected
	p.State = domain.ParticipantFailed
	if ev.Timeout {
		reason = domain.ReasonJoinTimeout
		p.State = domain.ParticipantTimedOut
	}
	p.Detail = ev.Detail
	m.finish(domain.StatusFailed, reason, describe(p.Agent, ev.Detail))
	return nil
}

// -- Gathering --

func (m *machine) enterGathering() {
	if m.s.SkipEvidence || len(m.s.EvidenceRequests) == 0 {
		m.transition(domain.StatusDeliberating, domain.ReasonEvidenceSkipped, "")
		m.enterDeliberating()
		return
	}
	for _, req := range m.s.EvidenceRequests {
		m.effects = append(m.effects, domain.Effect{Type: domain.EffectFetchEvidence, Request: req})
	}
	m.effects = append(m.effects, domain.Effect{
		Type:  domain.EffectArmPhaseTimer,
		Phase: domain.StatusGathering,
		After: m.lim.EvidenceTimeout,
	})
}

func (m *machine) pendingRequest(ev domain.Event) (domain.EvidenceRequest, error) {
	if err := m.require(ev, domain.StatusGathering); err != nil {
		return domain.EvidenceRequest{}, err
	}
	req, ok := m.s.EvidenceRequest(ev.RequestID)
	if !ok {
		return req, m.reject(ev, fmt.Sprintf("unknown evidence request %q", ev.RequestID))
	}
	if _, done := m.s.Evidence[req.ID]; done {
		return req, m.reject(ev, fmt.Sprintf("evidence %q already recorded", req.ID))
	}
	return req, nil
}

func (m *machine) evidenceCollected(ev domain.Event) error {
	req, err := m.pendingRequest(ev)
	if err != nil {
		return err
	}
	if ev.Artifact == nil {
		return m.reject(ev, "missing artifact")
	}
	if m.lim.MaxEvidenceSize > 0 && ev.Artifact.Size() > m.lim.MaxEvidenceSize {
		return m.evidenceRejected(req, false,
			fmt.Sprintf("artifact is %d bytes, limit %d", ev.Artifact.Size(), m.lim.MaxEvidenceSize))
	}
	a := *ev.Artifact
	m.s.Evidence[req.ID] = domain.EvidenceRecord{Artifact: &a, At: m.now}
	m.checkGathering()
	return nil
}

func (m *machine) evidenceFailed(ev domain.Event) error {
	req, err := m.pendingRequest(ev)
	if err != nil {
		return err
	}
	return m.evidenceRejected(req, ev.Timeout, ev.Detail)
}

func (m *machine) evidenceRejected(req domain.EvidenceRequest, timeout bool, detail string) error {
	if timeout && detail == "" {
		detail = "fetch timed out"
	}
	m.s.Evidence[req.ID] = domain.EvidenceRecord{Failed: true, Error: detail, At: m.now}
	if req.Mandatory {
		m.finish(domain.StatusFailed, domain.ReasonMandatoryEvidence, describe(req.ID, detail))
		return nil
	}
	m.checkGathering()
	return nil
}

func (m *machine) checkGathering() {
	for _, req := range m.s.EvidenceRequests {
		if _, ok := m.s.Evidence[req.ID]; !ok {
			return
		}
	}
	m.transition(domain.StatusDeliberating, domain.ReasonEvidenceCollected, "")
	m.enterDeliberating()
}

func (m *machine) evidenceTimeout() {
	var missing []string
	for _, req := range m.s.EvidenceRequests {
		if _, ok := m.s.Evidence[req.ID]; ok {
			continue
		}
		if req.Mandatory {
			m.finish(domain.StatusFailed, domain.ReasonEvidenceTimeout,
				fmt.Sprintf("mandatory evidence %q not collected", req.ID))
			return
		}
		missing = append(missing, req.ID)
	}
	for _, id := range missing {
		m.s.Evidence[id] = domain.EvidenceRecord{Failed: true, Error: "evidence timeout", At: m.now}
	}
	detail := ""
	if len(missing) > 0 {
		detail = "optional evidence timed out: " + strings.Join(missing, ", ")
	}
	m.transition(domain.StatusDeliberating, domain.ReasonEvidenceCollected, detail)
	m.enterDeliberating()
}

// -- Deliberating --

func (m *machine) enterDeliberating() {
	var peers []string
	for _, p := range m.s.Participants {
		if p.State == domain.ParticipantJoined {
			peers = append(peers, p.Agent)
		}
	}
	prompt := domain.Prompt{
		SessionID: m.s.ID,
		Topic:     m.s.Topic,
		Context:   maps.Clone(m.s.Context),
		Evidence:  maps.Clone(m.s.Evidence),
		Peers:     peers,
	}
	for i := range m.s.Participants {
		p := &m.s.Participants[i]
		if p.State != domain.ParticipantJoined {
			continue
		}
		p.State = domain.ParticipantActive
		m.effects = append(m.effects,
			domain.Effect{Type: domain.EffectPromptAgent, Agent: p.Agent, Prompt: prompt},
			domain.Effect{Type: domain.EffectArmAgentTimer, Agent: p.Agent, After: m.lim.AgentTimeout},
		)
	}
	// Agents that left while evidence was gathered still count against the majority.
	m.checkDeliberation()
}

func (m *machine) agentMessage(ev domain.Event) error {
	if err := m.require(ev, domain.StatusDeliberating); err != nil {
		return err
	}
	if ev.Message == nil {
		return m.reject(ev, "missing message")
	}
	if ev.Agent == "" {
		ev.Agent = ev.Message.Agent
	}
	p, err := m.participant(ev)
	if err != nil {
		return err
	}
	if p.State != domain.ParticipantActive {
		return m.reject(ev, fmt.Sprintf("agent %q is %s", p.Agent, p.State))
	}
	if m.lim.MaxAgentMessages > 0 && len(m.s.Messages) >= m.lim.MaxAgentMessages {
		m.finish(domain.StatusFailed, domain.ReasonMessageCapExceeded,
			fmt.Sprintf("message %d from %q exceeds limit %d", len(m.s.Messages)+1, p.Agent, m.lim.MaxAgentMessages))
		return nil
	}

	msg := *ev.Message
	msg.Agent = p.Agent
	if msg.At.IsZero() {
		msg.At = m.now
	}
	m.s.Messages = append(m.s.Messages, msg)
	if msg.Final {
		p.State = domain.ParticipantDone
		m.checkDeliberation()
	}
	return nil
}

func (m *machine) agentFailed(ev domain.Event) error {
	if m.s.Status != domain.StatusDeliberating && m.s.Status != domain.StatusGathering {
		return m.reject(ev, "agents only leave while gathering or deliberating")
	}
	p, err := m.participant(ev)
	if err != nil {
		return err
	}
	switch {
	case m.s.Status == domain.StatusGathering && p.State == domain.ParticipantJoined:
	case m.s.Status == domain.StatusDeliberating && p.State == domain.ParticipantActive:
	default:
		return m.reject(ev, fmt.Sprintf("agent %q is %s", p.Agent, p.State))
	}

	p.State = domain.ParticipantFailed
	if ev.Timeout {
		p.State = domain.ParticipantTimedOut
	}
	p.Detail = ev.Detail
	if m.s.Status == domain.StatusDeliberating {
		m.checkDeliberation()
	}
	return nil
}

// checkDeliberation fails early once more than half of the original participants
// have left, and advances once no agent is still expected to reply.
func (m *machine) checkDeliberation() {
	left, active := 0, 0
	for _, p := range m.s.Participants {
		switch {
		case p.HasLeft():
			left++
		case p.State == domain.ParticipantActive:
			active++
		}
	}
	if left*2 > len(m.s.Participants) {
		m.finish(domain.StatusFailed, domain.ReasonMajorityAgentFailure,
			fmt.Sprintf("%d of %d agents failed or timed out", left, len(m.s.Participants)))
		return
	}
	if active > 0 {
		return
	}
	m.transition(domain.StatusSynthesizing, domain.ReasonDeliberationComplete, "")
	m.effects = append(m.effects, domain.Effect{
		Type:     domain.EffectSynthesize,
		Messages: append([]domain.Message(nil), m.s.Messages...),
		Evidence: maps.Clone(m.s.Evidence),
	})
}

// -- Synthesizing --

func (m *machine) synthesisDone(ev domain.Event) error {
	if err := m.require(ev, domain.StatusSynthesizing); err != nil {
		return err
	}
	if ev.Result == nil {
		return m.reject(ev, "missing result")
	}
	r := *ev.Result
	m.s.Result = &r
	m.finish(domain.StatusCompleted, domain.ReasonSynthesized, "")
	return nil
}

func (m *machine) synthesisFailed(ev domain.Event) error {
	if err := m.require(ev, domain.StatusSynthesizing); err != nil {
		return err
	}
	m.finish(domain.StatusFailed, domain.ReasonSynthesisFailure, ev.Detail)
	return nil
}

// -- Timers --

func (m *machine) phaseTimeout(ev domain.Event) error {
	if err := m.require(ev, ev.Phase); err != nil {
		return err
	}
	switch ev.Phase {
	case domain.StatusPending:
		var waiting []string
		for i := range m.s.Participants {
			p := &m.s.Participants[i]
			if p.State == domain.ParticipantInvited {
				p.State = domain.ParticipantTimedOut
				waiting = append(waiting, p.Agent)
			}
		}
		m.finish(domain.StatusFailed, domain.ReasonJoinTimeout, "not joined: "+strings.Join(waiting, ", "))
	case domain.StatusGathering:
		m.evidenceTimeout()
	default:
		return m.reject(ev, "phase has no timer")
	}
	return nil
}

func describe(subject, detail string) string {
	if detail == "" {
		return subject
	}
	return subject + ": " + detail
}
