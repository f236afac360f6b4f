package domain

// SessionDiff represents the changes between two snapshots of a council.
// It is designed to be serialized to JSON for partial updates on the client.
type SessionDiff struct {
	// SessionID is always present to identify the target.
	SessionID string `json:"session_id"`

	Status *Status `json:"status,omitempty"`

	// Participants holds only agents whose state changed.
	Participants map[string]ParticipantState `json:"participants,omitempty"`

	// Messages, Transitions and Evidence are append-only on a council,
	// so the diff carries only the new tail.
	Messages    []Message          `json:"messages,omitempty"`
	Transitions []TransitionRecord `json:"transitions,omitempty"`
	Evidence    []string           `json:"evidence,omitempty"`

	Result *Result `json:"result,omitempty"`
}

// Diff calculates the difference between oldSession and newSession.
// If oldSession is nil, it returns a diff representing the entire newSession (initial load).
// It returns nil when nothing changed.
func Diff(oldSession, newSession *CouncilSession) *SessionDiff {
	if newSession == nil {
		return nil
	}

	diff := &SessionDiff{SessionID: newSession.ID}

	if oldSession == nil || oldSession.Status != newSession.Status {
		status := newSession.Status
		diff.Status = &status
	}
	diff.Participants = diffParticipants(oldSession, newSession)

	var seenMessages, seenTransitions int
	if oldSession != nil {
		seenMessages = len(oldSession.Messages)
		seenTransitions = len(oldSession.TransitionLog)
	}
	if len(newSession.Messages) > seenMessages {
		diff.Messages = append([]Message(nil), newSession.Messages[seenMessages:]...)
	}
	if len(newSession.TransitionLog) > seenTransitions {
		diff.Transitions = append([]TransitionRecord(nil), newSession.TransitionLog[seenTransitions:]...)
	}

	// Evidence is reported in request order so clients see a stable sequence.
	for _, req := range newSession.EvidenceRequests {
		if _, ok := newSession.Evidence[req.ID]; !ok {
			continue
		}
		if oldSession != nil {
			if _, had := oldSession.Evidence[req.ID]; had {
				continue
			}
		}
		diff.Evidence = append(diff.Evidence, req.ID)
	}

	if newSession.Result != nil && (oldSession == nil || oldSession.Result == nil) {
		r := *newSession.Result
		diff.Result = &r
	}

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func diffParticipants(old, new *CouncilSession) map[string]ParticipantState {
	delta := make(map[string]ParticipantState)
	for _, p := range new.Participants {
		if old != nil {
			if i := old.Participant(p.Agent); i >= 0 && old.Participants[i].State == p.State {
				continue
			}
		}
		delta[p.Agent] = p.State
	}
	if len(delta) == 0 {
		return nil
	}
	return delta
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *SessionDiff) IsEmpty() bool {
	return d.Status == nil &&
		len(d.Participants) == 0 &&
		len(d.Messages) == 0 &&
		len(d.Transitions) == 0 &&
		len(d.Evidence) == 0 &&
		d.Result == nil
}
