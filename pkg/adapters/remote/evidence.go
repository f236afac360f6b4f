package remote

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aretw0/council/pkg/domain"
)

type fetchRequest struct {
	domain.EvidenceRequest
	MaxBytes  int64 `json:"max_bytes"`
	TimeoutMS int64 `json:"timeout_ms"`
}

// Evidence fetches artifacts from a provider:
//
//	POST {base}/evidence  EvidenceRequest + "max_bytes", "timeout_ms" -> raw artifact
//
// The response Content-Type becomes the artifact content type.
type Evidence struct {
	c *client
}

// NewEvidence creates an evidence adapter for the provider at baseURL.
func NewEvidence(baseURL string, opts ...Option) (*Evidence, error) {
	c, err := newClient(baseURL, opts...)
	if err != nil {
		return nil, err
	}
	return &Evidence{c: c}, nil
}

// Fetch reads at most sizeLimit+1 bytes, so an oversized artifact is still
// reported as oversized without being buffered whole.
func (e *Evidence) Fetch(ctx context.Context, req domain.EvidenceRequest, sizeLimit int64, timeout time.Duration) (domain.Artifact, error) {
	resp, err := e.c.do(ctx, "/evidence", fetchRequest{
		EvidenceRequest: req,
		MaxBytes:        sizeLimit,
		TimeoutMS:       timeoutMillis(timeout),
	}, nil)
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("fetch %s: %w", req.ID, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, sizeLimit+1))
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("fetch %s: %w", req.ID, err)
	}
	return domain.Artifact{ContentType: resp.Header.Get("Content-Type"), Data: data}, nil
}
