package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/council/pkg/clock"
	"github.com/aretw0/council/pkg/domain"
	"github.com/aretw0/council/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAgents acknowledges joins and blocks on prompts unless told otherwise.
type fakeAgents struct {
	JoinFunc func(ctx context.Context, agent string) error
	SendFunc func(ctx context.Context, agent string, prompt domain.Prompt) (domain.Message, error)

	mu      sync.Mutex
	prompts []domain.Prompt
}

func (f *fakeAgents) Join(ctx context.Context, agent, sessionID string, timeout time.Duration) error {
	if f.JoinFunc != nil {
		return f.JoinFunc(ctx, agent)
	}
	return nil
}

func (f *fakeAgents) SendAndAwait(ctx context.Context, agent string, prompt domain.Prompt, timeout time.Duration) (domain.Message, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.SendFunc != nil {
		return f.SendFunc(ctx, agent, prompt)
	}
	<-ctx.Done()
	return domain.Message{}, ctx.Err()
}

func (f *fakeAgents) Prompts() []domain.Prompt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Prompt(nil), f.prompts...)
}

// fakeEvidence returns a small artifact per request unless FetchFunc says otherwise.
type fakeEvidence struct {
	FetchFunc func(ctx context.Context, req domain.EvidenceRequest) (domain.Artifact, error)
}

func (f *fakeEvidence) Fetch(ctx context.Context, req domain.EvidenceRequest, sizeLimit int64, timeout time.Duration) (domain.Artifact, error) {
	if f.FetchFunc != nil {
		return f.FetchFunc(ctx, req)
	}
	return domain.Artifact{ContentType: "text/plain", Data: []byte("evidence:" + req.ID)}, nil
}

// fakeSynth recommends the first message it is given.
type fakeSynth struct {
	SynthFunc func(ctx context.Context, messages []domain.Message) (domain.Result, error)
}

func (f *fakeSynth) Synthesize(ctx context.Context, messages []domain.Message, evidence map[string]domain.EvidenceRecord, timeout time.Duration) (domain.Result, error) {
	if f.SynthFunc != nil {
		return f.SynthFunc(ctx, messages)
	}
	rec := "no proposals"
	if len(messages) > 0 {
		rec = messages[0].Content
	}
	return domain.Result{Mode: domain.SynthesisConsensus, Recommendation: rec, Confidence: 0.7}, nil
}

func blockForever(ctx context.Context, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

// testLimits uses long durations: timeouts are driven by the manual clock,
// the real-time contexts handed to adapters never expire during a test.
func testLimits() domain.Limits {
	return domain.Limits{
		CouncilTimeout:        10 * time.Hour,
		MaxConcurrentCouncils: 4,
		AgentTimeout:          time.Hour,
		MaxAgentMessages:      10,
		EvidenceTimeout:       time.Hour,
		MaxEvidenceSize:       1024,
		MaxParticipants:       6,
		ResultRetention:       time.Minute,
	}
}

type harness struct {
	*session.Manager
	clock    *clock.Manual
	agents   *fakeAgents
	evidence *fakeEvidence
	synth    *fakeSynth
}

func newHarness(t *testing.T, lim domain.Limits, opts ...session.Option) *harness {
	t.Helper()
	h := &harness{
		clock:    clock.NewManual(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		agents:   &fakeAgents{},
		evidence: &fakeEvidence{},
		synth:    &fakeSynth{},
	}
	opts = append([]session.Option{session.WithClock(h.clock)}, opts...)
	m, err := session.NewManager(lim, h.agents, h.evidence, h.synth, opts...)
	require.NoError(t, err)
	h.Manager = m
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		assert.NoError(t, m.Shutdown(ctx))
	})
	return h
}

func (h *harness) snapshot(t *testing.T, id string) *domain.CouncilSession {
	t.Helper()
	s, err := h.GetSnapshot(context.Background(), id)
	require.NoError(t, err)
	return s
}

func (h *harness) waitStatus(t *testing.T, id string, want domain.Status) *domain.CouncilSession {
	t.Helper()
	var last *domain.CouncilSession
	ok := assert.Eventually(t, func() bool {
		s, err := h.GetSnapshot(context.Background(), id)
		if err != nil {
			return false
		}
		last = s
		return s.Status == want
	}, 2*time.Second, 2*time.Millisecond)
	if !ok && last != nil {
		t.Fatalf("council %s stuck in %s (log: %+v), wanted %s", id, last.Status, last.TransitionLog, want)
	}
	require.True(t, ok)
	return last
}

func lastReason(t *testing.T, s *domain.CouncilSession) domain.Reason {
	t.Helper()
	rec, ok := s.LastTransition()
	require.True(t, ok, "transition log is empty")
	return rec.Reason
}

func reasons(s *domain.CouncilSession) []domain.Reason {
	out := make([]domain.Reason, len(s.TransitionLog))
	for i, rec := range s.TransitionLog {
		out[i] = rec.Reason
	}
	return out
}
