package domain

// Status defines the lifecycle phase of a Council session.
type Status string

const (
	StatusPending      Status = "pending"      // Waiting for every participant to join
	StatusGathering    Status = "gathering"    // Fetching evidence
	StatusDeliberating Status = "deliberating" // Agents exchanging messages
	StatusSynthesizing Status = "synthesizing" // Reducing messages + evidence into a result
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusTimedOut     Status = "timed_out"
	StatusCancelled    Status = "cancelled"
)

// IsTerminal reports whether no further transitions are permitted from s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTimedOut, StatusCancelled:
		return true
	}
	return false
}

// IsValid reports whether s is one of the known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusGathering, StatusDeliberating, StatusSynthesizing,
		StatusCompleted, StatusFailed, StatusTimedOut, StatusCancelled:
		return true
	}
	return false
}

// edges is the complete transition table. TimedOut and Cancelled are reachable
// from every non-terminal status and are added in init.
var edges = map[Status]map[Status]bool{
	StatusPending:      {StatusGathering: true, StatusFailed: true},
	StatusGathering:    {StatusDeliberating: true, StatusFailed: true},
	StatusDeliberating: {StatusSynthesizing: true, StatusFailed: true},
	StatusSynthesizing: {StatusCompleted: true, StatusFailed: true},
}

func init() {
	for _, to := range edges {
		to[StatusTimedOut] = true
		to[StatusCancelled] = true
	}
}

// CanTransition reports whether from -> to is an edge of the lifecycle.
func CanTransition(from, to Status) bool {
	return edges[from][to]
}

// Reason is the machine-readable cause attached to every transition.
// Callers distinguish failure modes by Reason, never by parsing Detail.
type Reason string

const (
	ReasonJoined               Reason = "joined"
	ReasonJoinRejected         Reason = "join-rejected"
	ReasonJoinTimeout          Reason = "join-timeout"
	ReasonEvidenceCollected    Reason = "evidence-collected"
	ReasonEvidenceSkipped      Reason = "evidence-skipped"
	ReasonMandatoryEvidence    Reason = "mandatory-evidence-failure"
	ReasonEvidenceTimeout      Reason = "evidence-timeout"
	ReasonDeliberationComplete Reason = "deliberation-complete"
	ReasonMessageCapExceeded   Reason = "message-cap-exceeded"
	ReasonMajorityAgentFailure Reason = "majority-agent-failure"
	ReasonSynthesized          Reason = "synthesized"
	ReasonSynthesisFailure     Reason = "synthesis-failure"
	ReasonTimeout              Reason = "timeout"
	ReasonCancelled            Reason = "cancelled"
)
