package domain

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"
)

func council(status Status) *CouncilSession {
	s := NewCouncilSession("c-1", []string{"architect", "critic"}, SessionConfig{
		Topic:    "t",
		Evidence: []EvidenceRequest{{ID: "logs"}, {ID: "metrics"}},
	}, time.Unix(0, 0), time.Minute)
	s.Status = status
	return s
}

func TestDiff(t *testing.T) {
	gathering := StatusGathering
	completed := StatusCompleted

	joined := council(StatusGathering)
	joined.Participants[0].State = ParticipantJoined
	joined.Participants[1].State = ParticipantJoined
	joined.TransitionLog = []TransitionRecord{{From: StatusPending, To: StatusGathering, Reason: ReasonJoined}}

	withEvidence := joined.Clone()
	withEvidence.Evidence["metrics"] = EvidenceRecord{Failed: true}

	deliberating := withEvidence.Clone()
	deliberating.Messages = []Message{{Agent: "architect", Content: "add an index"}}

	done := deliberating.Clone()
	done.Status = StatusCompleted
	done.Result = &Result{Recommendation: "add an index"}

	tests := []struct {
		name     string
		old      *CouncilSession
		new      *CouncilSession
		wantDiff *SessionDiff // nil means we expect no diff
	}{
		{
			name: "Initial Load (Old is Nil)",
			old:  nil,
			new:  joined,
			wantDiff: &SessionDiff{
				SessionID:    "c-1",
				Status:       &gathering,
				Participants: map[string]ParticipantState{"architect": ParticipantJoined, "critic": ParticipantJoined},
				Transitions:  joined.TransitionLog,
			},
		},
		{
			name:     "No Changes",
			old:      joined,
			new:      joined.Clone(),
			wantDiff: nil,
		},
		{
			name: "Evidence Recorded",
			old:  joined,
			new:  withEvidence,
			wantDiff: &SessionDiff{
				SessionID: "c-1",
				Evidence:  []string{"metrics"},
			},
		},
		{
			name: "Message Append",
			old:  withEvidence,
			new:  deliberating,
			wantDiff: &SessionDiff{
				SessionID: "c-1",
				Messages:  []Message{{Agent: "architect", Content: "add an index"}},
			},
		},
		{
			name: "Completed With Result",
			old:  deliberating,
			new:  done,
			wantDiff: &SessionDiff{
				SessionID: "c-1",
				Status:    &completed,
				Result:    &Result{Recommendation: "add an index"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(tt.old, tt.new)
			if tt.wantDiff == nil {
				if got != nil {
					t.Errorf("Diff() = %+v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatalf("Diff() = nil, want %+v", tt.wantDiff)
			}
			if !reflect.DeepEqual(got, tt.wantDiff) {
				t.Errorf("Diff() = %+v, want %+v", got, tt.wantDiff)
			}
		})
	}
}

func TestDiffJSONSerialization(t *testing.T) {
	t.Run("Unchanged Fields Omitted", func(t *testing.T) {
		old := council(StatusGathering)
		next := old.Clone()
		next.Messages = append(next.Messages, Message{Agent: "critic", Content: "no"})

		diff := Diff(old, next)
		if diff == nil {
			t.Fatal("Expected diff, got nil")
		}
		bytes, _ := json.Marshal(diff)
		for _, key := range []string{`"status"`, `"participants"`, `"result"`, `"evidence"`} {
			if strings.Contains(string(bytes), key) {
				t.Errorf("JSON should not contain %s when unchanged, got: %s", key, string(bytes))
			}
		}
	})
}
