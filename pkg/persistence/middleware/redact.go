package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/council/pkg/domain"
	"github.com/aretw0/council/pkg/ports"
)

// Mask replaces redacted context values.
const Mask = "***"

type redactMiddleware struct {
	next     ports.ArchiveStore
	patterns []*regexp.Regexp
}

// NewRedactMiddleware masks council context values whose key matches one of
// the patterns, at any nesting depth, before the council is archived. The live
// council is left untouched.
func NewRedactMiddleware(patterns []string) (Middleware, error) {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redact pattern %q: %w", p, err)
		}
		compiled[i] = re
	}
	return func(next ports.ArchiveStore) ports.ArchiveStore {
		return &redactMiddleware{next: next, patterns: compiled}
	}, nil
}

func (m *redactMiddleware) Save(ctx context.Context, session *domain.CouncilSession) error {
	cloned := session.Clone()
	cloned.Context = deepCopyMap(session.Context)
	maskMap(cloned.Context, m.patterns)
	return m.next.Save(ctx, cloned)
}

func (m *redactMiddleware) Load(ctx context.Context, sessionID string) (*domain.CouncilSession, error) {
	return m.next.Load(ctx, sessionID)
}

func (m *redactMiddleware) Delete(ctx context.Context, sessionID string) error {
	return m.next.Delete(ctx, sessionID)
}

func (m *redactMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if sub, ok := v.(map[string]any); ok {
			out[k] = deepCopyMap(sub)
		} else {
			out[k] = v
		}
	}
	return out
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		masked := false
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = Mask
				masked = true
				break
			}
		}
		if sub, ok := v.(map[string]any); ok && !masked {
			maskMap(sub, patterns)
		}
	}
}
