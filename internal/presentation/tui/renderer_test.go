package tui_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/council/internal/presentation/tui"
	"github.com/aretw0/council/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completed() *domain.CouncilSession {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := domain.NewCouncilSession("c-1", []string{"architect", "critic"}, domain.SessionConfig{Topic: "slow | builds"}, at, time.Minute)
	s.Status = domain.StatusCompleted
	s.Participants[0].State = domain.ParticipantDone
	s.Participants[1].State = domain.ParticipantTimedOut
	s.Participants[1].Detail = "agent timeout elapsed"
	s.Evidence["logs"] = domain.EvidenceRecord{Artifact: &domain.Artifact{ContentType: "text/plain", Data: []byte("abc")}}
	s.Evidence["trace"] = domain.EvidenceRecord{Failed: true, Error: "404"}
	s.Messages = append(s.Messages, domain.Message{Agent: "architect", Kind: domain.MessageProposal, Content: "cache deps"})
	s.TransitionLog = append(s.TransitionLog,
		domain.TransitionRecord{From: domain.StatusSynthesizing, To: domain.StatusCompleted, At: at, Reason: domain.ReasonSynthesized})
	s.Result = &domain.Result{Mode: domain.SynthesisConsensus, Recommendation: "cache deps", Confidence: 0.7, Contributors: []string{"architect"}}
	return s
}

func TestCouncilMarkdown(t *testing.T) {
	md := tui.CouncilMarkdown(completed())

	for _, want := range []string{
		"# Council c-1",
		"> slow | builds",
		"- **Status:** completed",
		"- **Reason:** synthesized",
		"| critic | timed_out | agent timeout elapsed |",
		"| logs | 3 bytes text/plain |",
		"| trace | failed: 404 |",
		"| 12:00:00 | synthesizing | completed | synthesized |",
		"- **architect** (proposal): cache deps",
		"*consensus, confidence 0.70, from architect*",
	} {
		assert.Contains(t, md, want)
	}
}

func TestSummaryMarkdown(t *testing.T) {
	assert.Equal(t, "No councils.\n", tui.SummaryMarkdown(nil))

	md := tui.SummaryMarkdown([]domain.Summary{completed().Summarize()})
	assert.Contains(t, md, "| c-1 | completed | slow \\| builds | 2 | 1 |")
}

func TestRendererPlainOutput(t *testing.T) {
	var buf bytes.Buffer
	r, err := tui.NewRenderer(&buf)
	require.NoError(t, err)

	require.NoError(t, r.Council(completed()))
	assert.True(t, strings.HasPrefix(buf.String(), "# Council c-1"), "non-terminals get raw markdown")
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	tui.PrintBanner(&buf, "v1.2.3")
	assert.Contains(t, buf.String(), "v1.2.3")
}
