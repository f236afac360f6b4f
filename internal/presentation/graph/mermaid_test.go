package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/council/internal/presentation/graph"
	"github.com/aretw0/council/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestGenerateMermaid(t *testing.T) {
	tests := []struct {
		name        string
		overlay     *graph.Overlay
		contains    []string
		notContains []string
	}{
		{
			name: "Lifecycle Shape",
			contains: []string{
				"graph TD",
				"pending[\"pending\"]",
				"completed([\"completed\"])",
				"timed_out([\"timed_out\"])",
				"pending --> gathering",
				"synthesizing --> completed",
				"deliberating -.-> cancelled",
				"gathering -.-> timed_out",
			},
			notContains: []string{
				"completed -->",
				"pending --> deliberating",
				"classDef",
			},
		},
		{
			name: "Overlay Labels Taken Edges",
			overlay: &graph.Overlay{
				Taken: []domain.TransitionRecord{
					{From: domain.StatusPending, To: domain.StatusGathering, Reason: domain.ReasonJoined},
					{From: domain.StatusGathering, To: domain.StatusTimedOut, Reason: domain.ReasonTimeout},
				},
				Current: domain.StatusTimedOut,
			},
			contains: []string{
				"pending -- \"joined\" --> gathering",
				"gathering -. \"timeout\" .-> timed_out",
				"class pending visited;",
				"class gathering visited;",
				"class timed_out current;",
			},
			notContains: []string{
				"class timed_out visited;",
				"class deliberating",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := graph.GenerateMermaid(tt.overlay)
			for _, want := range tt.contains {
				assert.Contains(t, got, want)
			}
			for _, unwanted := range tt.notContains {
				assert.NotContains(t, got, unwanted)
			}
		})
	}
}

func TestOverlayFor(t *testing.T) {
	s := &domain.CouncilSession{
		Status: domain.StatusCancelled,
		TransitionLog: []domain.TransitionRecord{
			{From: domain.StatusPending, To: domain.StatusCancelled, Reason: domain.ReasonCancelled},
		},
	}
	got := graph.GenerateMermaid(graph.OverlayFor(s))
	assert.Equal(t, 1, strings.Count(got, "class pending visited;"))
	assert.Contains(t, got, "pending -. \"cancelled\" .-> cancelled")
}
