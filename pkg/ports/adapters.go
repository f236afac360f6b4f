package ports

import (
	"context"
	"time"

	"github.com/aretw0/council/pkg/domain"
)

// AgentAdapter is the per-agent communication handle consumed by the manager.
// Implementations should honor ctx cancellation; a late reply is ignored anyway.
type AgentAdapter interface {
	// Join performs the join handshake. A nil error is an acknowledgement.
	// Errors wrapping context.DeadlineExceeded are treated as join timeouts.
	Join(ctx context.Context, agent, sessionID string, timeout time.Duration) error

	// SendAndAwait delivers the prompt and waits for the agent's final message.
	SendAndAwait(ctx context.Context, agent string, prompt domain.Prompt, timeout time.Duration) (domain.Message, error)
}

// EvidenceProvider fetches evidence artifacts.
type EvidenceProvider interface {
	// Fetch retrieves the artifact for req. Implementations should stop reading
	// past sizeLimit; the manager rejects oversized artifacts regardless.
	Fetch(ctx context.Context, req domain.EvidenceRequest, sizeLimit int64, timeout time.Duration) (domain.Artifact, error)
}

// Synthesizer reduces agent output and evidence into a single result.
type Synthesizer interface {
	Synthesize(ctx context.Context, messages []domain.Message, evidence map[string]domain.EvidenceRecord, timeout time.Duration) (domain.Result, error)
}
