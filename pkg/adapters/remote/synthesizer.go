package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/council/pkg/domain"
)

type synthesizeRequest struct {
	Messages  []domain.Message                 `json:"messages"`
	Evidence  map[string]domain.EvidenceRecord `json:"evidence,omitempty"`
	TimeoutMS int64                            `json:"timeout_ms"`
}

// Synthesizer delegates synthesis to an engine:
//
//	POST {base}/synthesize  {"messages", "evidence", "timeout_ms"} -> Result
type Synthesizer struct {
	c *client
}

// NewSynthesizer creates a synthesis adapter for the engine at baseURL.
func NewSynthesizer(baseURL string, opts ...Option) (*Synthesizer, error) {
	c, err := newClient(baseURL, opts...)
	if err != nil {
		return nil, err
	}
	return &Synthesizer{c: c}, nil
}

func (s *Synthesizer) Synthesize(ctx context.Context, messages []domain.Message, evidence map[string]domain.EvidenceRecord, timeout time.Duration) (domain.Result, error) {
	var result domain.Result
	err := s.c.postJSON(ctx, "/synthesize", synthesizeRequest{
		Messages:  messages,
		Evidence:  evidence,
		TimeoutMS: timeoutMillis(timeout),
	}, &result, nil)
	if err != nil {
		return domain.Result{}, fmt.Errorf("synthesize: %w", err)
	}
	if result.Confidence < 0 || result.Confidence > 1 {
		return domain.Result{}, fmt.Errorf("synthesize: confidence %v out of range", result.Confidence)
	}
	return result, nil
}
