package local

import (
	"context"
	"slices"
	"time"

	"github.com/aretw0/council/pkg/domain"
)

// baseConfidence is the confidence of an unchallenged recommendation.
const baseConfidence = 0.7

// Synthesizer implements ports.Synthesizer without a model.
//
// In consensus mode the first proposal wins and every proposer is credited.
// In best mode the proposal whose author drew the fewest critiques wins, and
// each critique lowers the confidence.
type Synthesizer struct {
	Mode domain.SynthesisMode
}

// NewSynthesizer returns a synthesizer in the given mode (consensus if empty).
func NewSynthesizer(mode domain.SynthesisMode) *Synthesizer {
	if mode == "" {
		mode = domain.SynthesisConsensus
	}
	return &Synthesizer{Mode: mode}
}

// Synthesize reduces messages into a result.
func (s *Synthesizer) Synthesize(ctx context.Context, messages []domain.Message, evidence map[string]domain.EvidenceRecord, timeout time.Duration) (domain.Result, error) {
	if err := ctx.Err(); err != nil {
		return domain.Result{}, err
	}

	var proposals []domain.Message
	critiques := make(map[string]int)
	for _, m := range messages {
		switch m.Kind {
		case domain.MessageProposal:
			proposals = append(proposals, m)
		case domain.MessageCritique:
			if m.Target != "" {
				critiques[m.Target]++
			}
		}
	}

	if len(proposals) == 0 {
		return domain.Result{Mode: s.Mode, Recommendation: "No proposals yet", Confidence: 0}, nil
	}

	if s.Mode == domain.SynthesisBest {
		best := proposals[0]
		for _, p := range proposals[1:] {
			if critiques[p.Agent] < critiques[best.Agent] {
				best = p
			}
		}
		return domain.Result{
			Mode:           domain.SynthesisBest,
			Recommendation: best.Content,
			Confidence:     baseConfidence / float64(1+critiques[best.Agent]),
			Contributors:   []string{best.Agent},
		}, nil
	}

	contributors := make([]string, 0, len(proposals))
	for _, p := range proposals {
		if !slices.Contains(contributors, p.Agent) {
			contributors = append(contributors, p.Agent)
		}
	}
	return domain.Result{
		Mode:           domain.SynthesisConsensus,
		Recommendation: proposals[0].Content,
		Confidence:     baseConfidence,
		Contributors:   contributors,
	}, nil
}
