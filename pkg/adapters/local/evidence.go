package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/aretw0/council/pkg/domain"
)

// ErrUnknownSource is returned for requests no source is registered for.
var ErrUnknownSource = errors.New("unknown evidence source")

// Fetcher resolves one evidence request.
type Fetcher func(ctx context.Context, req domain.EvidenceRequest, sizeLimit int64) (domain.Artifact, error)

// Evidence implements ports.EvidenceProvider by dispatching on the request source.
type Evidence struct {
	mu      sync.RWMutex
	sources map[string]Fetcher
}

// NewEvidence creates a provider without sources.
func NewEvidence() *Evidence {
	return &Evidence{sources: make(map[string]Fetcher)}
}

// Handle registers f for source.
func (e *Evidence) Handle(source string, f Fetcher) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sources[source] = f
}

// Fetch resolves req through its source.
func (e *Evidence) Fetch(ctx context.Context, req domain.EvidenceRequest, sizeLimit int64, timeout time.Duration) (domain.Artifact, error) {
	e.mu.RLock()
	f, ok := e.sources[req.Source]
	e.mu.RUnlock()
	if !ok {
		return domain.Artifact{}, fmt.Errorf("%w: %q", ErrUnknownSource, req.Source)
	}
	if err := ctx.Err(); err != nil {
		return domain.Artifact{}, err
	}
	return f(ctx, req, sizeLimit)
}

// Static serves fixed documents keyed by request query.
func Static(docs map[string][]byte) Fetcher {
	return func(_ context.Context, req domain.EvidenceRequest, _ int64) (domain.Artifact, error) {
		data, ok := docs[req.Query]
		if !ok {
			return domain.Artifact{}, fmt.Errorf("no document %q", req.Query)
		}
		return domain.Artifact{ContentType: "text/plain", Data: slices.Clone(data)}, nil
	}
}

// Dir serves files below dir, addressed by the request query. Paths cannot
// escape dir. At most sizeLimit+1 bytes are read, so an oversized file still
// reaches the state machine as oversized without being loaded whole.
func Dir(dir string) (Fetcher, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open evidence dir: %w", err)
	}
	return func(_ context.Context, req domain.EvidenceRequest, sizeLimit int64) (domain.Artifact, error) {
		f, err := root.Open(filepath.Clean(req.Query))
		if err != nil {
			return domain.Artifact{}, err
		}
		defer f.Close()

		var r io.Reader = f
		if sizeLimit > 0 {
			r = io.LimitReader(f, sizeLimit+1)
		}
		data, err := io.ReadAll(r)
		if err != nil {
			return domain.Artifact{}, err
		}
		contentType := mime.TypeByExtension(filepath.Ext(req.Query))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		return domain.Artifact{ContentType: contentType, Data: data}, nil
	}, nil
}
