package domain

import (
	"maps"
	"slices"
	"time"
)

// ParticipantState tracks one agent's progress through a council.
type ParticipantState string

const (
	ParticipantInvited  ParticipantState = "invited"   // Join requested, not yet acknowledged
	ParticipantJoined   ParticipantState = "joined"    // Acknowledged, waiting for deliberation
	ParticipantActive   ParticipantState = "active"    // Prompted, final message pending
	ParticipantDone     ParticipantState = "done"      // Final message submitted
	ParticipantFailed   ParticipantState = "failed"    // Left the council after an adapter failure
	ParticipantTimedOut ParticipantState = "timed_out" // Individual agent timeout elapsed
)

// Participant is an agent registered to a council at creation.
type Participant struct {
	Agent  string           `json:"agent"`
	State  ParticipantState `json:"state"`
	Detail string           `json:"detail,omitempty"`
}

// HasLeft reports whether the participant no longer takes part in deliberation.
func (p Participant) HasLeft() bool {
	return p.State == ParticipantFailed || p.State == ParticipantTimedOut
}

// MessageKind classifies an agent contribution.
type MessageKind string

const (
	MessageProposal MessageKind = "proposal"
	MessageCritique MessageKind = "critique"
	MessageNote     MessageKind = "note"
)

// Message is a single agent contribution to the deliberation.
type Message struct {
	Agent   string      `json:"agent"`
	Kind    MessageKind `json:"kind,omitempty"`
	Content string      `json:"content"`
	Target  string      `json:"target,omitempty"` // Critiqued agent, if any
	Round   int         `json:"round,omitempty"`
	Final   bool        `json:"final,omitempty"`
	At      time.Time   `json:"at"`
}

// EvidenceRequest declares an artifact to gather before deliberation.
type EvidenceRequest struct {
	ID        string `json:"id" yaml:"id"`
	Source    string `json:"source" yaml:"source"`
	Query     string `json:"query,omitempty" yaml:"query,omitempty"`
	Mandatory bool   `json:"mandatory,omitempty" yaml:"mandatory,omitempty"`
}

// Artifact is a piece of evidence returned by a provider.
type Artifact struct {
	ContentType string `json:"content_type,omitempty"`
	Data        []byte `json:"data"`
}

// Size returns the artifact payload size in bytes.
func (a Artifact) Size() int64 {
	return int64(len(a.Data))
}

// EvidenceRecord is the outcome of one evidence request: an artifact or a failure marker.
type EvidenceRecord struct {
	Artifact *Artifact `json:"artifact,omitempty"`
	Failed   bool      `json:"failed,omitempty"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// SynthesisMode describes how the result was reduced from agent messages.
type SynthesisMode string

const (
	SynthesisConsensus SynthesisMode = "consensus"
	SynthesisBest      SynthesisMode = "best"
)

// Result is the synthesized outcome of a completed council.
type Result struct {
	Mode           SynthesisMode `json:"mode"`
	Recommendation string        `json:"recommendation"`
	Confidence     float64       `json:"confidence"`
	Contributors   []string      `json:"contributors,omitempty"`
}

// TransitionRecord is one entry of the append-only audit log.
type TransitionRecord struct {
	From   Status    `json:"from"`
	To     Status    `json:"to"`
	At     time.Time `json:"at"`
	Reason Reason    `json:"reason"`
	Detail string    `json:"detail,omitempty"`
}

// SessionConfig is the per-council input supplied at creation.
type SessionConfig struct {
	Topic        string            `json:"topic"`
	Context      map[string]any    `json:"context,omitempty"`
	Evidence     []EvidenceRequest `json:"evidence,omitempty"`
	SkipEvidence bool              `json:"skip_evidence,omitempty"`
}

// CouncilSession is the aggregate root: the full state of a single council.
type CouncilSession struct {
	ID         string         `json:"id"`
	Status     Status         `json:"status"`
	Topic      string         `json:"topic,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	DeadlineAt time.Time      `json:"deadline_at"`

	Participants     []Participant             `json:"participants"`
	Messages         []Message                 `json:"messages"`
	EvidenceRequests []EvidenceRequest         `json:"evidence_requests,omitempty"`
	Evidence         map[string]EvidenceRecord `json:"evidence,omitempty"`
	SkipEvidence     bool                      `json:"skip_evidence,omitempty"`

	Result        *Result            `json:"result,omitempty"`
	TransitionLog []TransitionRecord `json:"transition_log"`
}

// NewCouncilSession creates a session in StatusPending with every participant invited.
func NewCouncilSession(id string, participants []string, cfg SessionConfig, createdAt time.Time, timeout time.Duration) *CouncilSession {
	s := &CouncilSession{
		ID:               id,
		Status:           StatusPending,
		Topic:            cfg.Topic,
		Context:          maps.Clone(cfg.Context),
		CreatedAt:        createdAt,
		DeadlineAt:       createdAt.Add(timeout),
		Participants:     make([]Participant, len(participants)),
		Messages:         []Message{},
		EvidenceRequests: slices.Clone(cfg.Evidence),
		Evidence:         make(map[string]EvidenceRecord),
		SkipEvidence:     cfg.SkipEvidence,
		TransitionLog:    []TransitionRecord{},
	}
	for i, agent := range participants {
		s.Participants[i] = Participant{Agent: agent, State: ParticipantInvited}
	}
	return s
}

// Clone returns a deep copy of the session. Context values are copied shallowly.
func (s *CouncilSession) Clone() *CouncilSession {
	if s == nil {
		return nil
	}
	c := *s
	c.Context = maps.Clone(s.Context)
	c.Participants = slices.Clone(s.Participants)
	c.Messages = slices.Clone(s.Messages)
	c.EvidenceRequests = slices.Clone(s.EvidenceRequests)
	c.Evidence = make(map[string]EvidenceRecord, len(s.Evidence))
	for k, v := range s.Evidence {
		if v.Artifact != nil {
			a := *v.Artifact
			a.Data = slices.Clone(a.Data)
			v.Artifact = &a
		}
		c.Evidence[k] = v
	}
	if s.Result != nil {
		r := *s.Result
		r.Contributors = slices.Clone(s.Result.Contributors)
		c.Result = &r
	}
	c.TransitionLog = slices.Clone(s.TransitionLog)
	return &c
}

// Participant returns the index of agent in the participant list, or -1.
func (s *CouncilSession) Participant(agent string) int {
	return slices.IndexFunc(s.Participants, func(p Participant) bool { return p.Agent == agent })
}

// EvidenceRequest returns the declared request with the given id.
func (s *CouncilSession) EvidenceRequest(id string) (EvidenceRequest, bool) {
	i := slices.IndexFunc(s.EvidenceRequests, func(r EvidenceRequest) bool { return r.ID == id })
	if i < 0 {
		return EvidenceRequest{}, false
	}
	return s.EvidenceRequests[i], true
}

// LastTransition returns the most recent audit entry, if any.
func (s *CouncilSession) LastTransition() (TransitionRecord, bool) {
	if len(s.TransitionLog) == 0 {
		return TransitionRecord{}, false
	}
	return s.TransitionLog[len(s.TransitionLog)-1], true
}

// Summary is the lightweight view of a session used for listings.
type Summary struct {
	ID           string    `json:"id"`
	Status       Status    `json:"status"`
	Topic        string    `json:"topic,omitempty"`
	Participants int       `json:"participants"`
	Messages     int       `json:"messages"`
	CreatedAt    time.Time `json:"created_at"`
	DeadlineAt   time.Time `json:"deadline_at"`
}

// Summarize builds the listing view of s.
func (s *CouncilSession) Summarize() Summary {
	return Summary{
		ID:           s.ID,
		Status:       s.Status,
		Topic:        s.Topic,
		Participants: len(s.Participants),
		Messages:     len(s.Messages),
		CreatedAt:    s.CreatedAt,
		DeadlineAt:   s.DeadlineAt,
	}
}

// Prompt is what an agent receives when deliberation starts.
type Prompt struct {
	SessionID string                    `json:"session_id"`
	Topic     string                    `json:"topic"`
	Context   map[string]any            `json:"context,omitempty"`
	Evidence  map[string]EvidenceRecord `json:"evidence,omitempty"`
	Peers     []string                  `json:"peers,omitempty"`
}
