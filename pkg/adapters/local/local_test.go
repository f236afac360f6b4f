package local_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/council/pkg/adapters/local"
	"github.com/aretw0/council/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgents(t *testing.T) {
	agents := local.DefaultRoster()
	ctx := context.Background()

	require.NoError(t, agents.Join(ctx, "architect", "c-1", 0))
	assert.Error(t, agents.Join(ctx, "stranger", "c-1", 0))

	msg, err := agents.SendAndAwait(ctx, "architect", domain.Prompt{
		Topic: "slow inventory",
		Evidence: map[string]domain.EvidenceRecord{
			"logs":    {Artifact: &domain.Artifact{Data: []byte("x")}},
			"metrics": {Failed: true},
		},
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, "architect", msg.Agent)
	assert.Equal(t, domain.MessageProposal, msg.Kind)
	assert.Contains(t, msg.Content, `"slow inventory"`)
	assert.Contains(t, msg.Content, "using logs")
	assert.NotContains(t, msg.Content, "metrics")

	msg, err = agents.SendAndAwait(ctx, "critic", domain.Prompt{Peers: []string{"critic", "architect"}}, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.MessageCritique, msg.Kind)
	assert.Equal(t, "architect", msg.Target)
}

func TestAgents_CancelledContext(t *testing.T) {
	agents := local.DefaultRoster()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := agents.SendAndAwait(ctx, "architect", domain.Prompt{}, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEvidence(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "inventory.lua"), []byte("local x = 1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "big.txt"), make([]byte, 100), 0o644))

	files, err := local.Dir(dir)
	require.NoError(t, err)

	ev := local.NewEvidence()
	ev.Handle("repo", files)
	ev.Handle("docs", local.Static(map[string][]byte{"style": []byte("tabs")}))
	ctx := context.Background()

	a, err := ev.Fetch(ctx, domain.EvidenceRequest{ID: "1", Source: "repo", Query: "inventory.lua"}, 1024, 0)
	require.NoError(t, err)
	assert.Equal(t, "local x = 1", string(a.Data))

	a, err = ev.Fetch(ctx, domain.EvidenceRequest{ID: "2", Source: "repo", Query: "big.txt"}, 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 11, a.Size(), "reads one byte past the limit so the cap can be detected")

	_, err = ev.Fetch(ctx, domain.EvidenceRequest{ID: "3", Source: "repo", Query: "../outside"}, 10, 0)
	assert.Error(t, err)

	a, err = ev.Fetch(ctx, domain.EvidenceRequest{ID: "4", Source: "docs", Query: "style"}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, "tabs", string(a.Data))

	_, err = ev.Fetch(ctx, domain.EvidenceRequest{ID: "5", Source: "wiki"}, 10, 0)
	assert.ErrorIs(t, err, local.ErrUnknownSource)
}

func TestSynthesizer(t *testing.T) {
	messages := []domain.Message{
		{Agent: "architect", Kind: domain.MessageProposal, Content: "split the module"},
		{Agent: "critic", Kind: domain.MessageCritique, Target: "architect", Content: "too big"},
		{Agent: "performance", Kind: domain.MessageProposal, Content: "cache lookups"},
	}
	ctx := context.Background()

	t.Run("consensus", func(t *testing.T) {
		r, err := local.NewSynthesizer("").Synthesize(ctx, messages, nil, 0)
		require.NoError(t, err)
		assert.Equal(t, domain.SynthesisConsensus, r.Mode)
		assert.Equal(t, "split the module", r.Recommendation)
		assert.InDelta(t, 0.7, r.Confidence, 1e-9)
		assert.Equal(t, []string{"architect", "performance"}, r.Contributors)
	})

	t.Run("best", func(t *testing.T) {
		r, err := local.NewSynthesizer(domain.SynthesisBest).Synthesize(ctx, messages, nil, 0)
		require.NoError(t, err)
		assert.Equal(t, "cache lookups", r.Recommendation)
		assert.Equal(t, []string{"performance"}, r.Contributors)
	})

	t.Run("no proposals", func(t *testing.T) {
		r, err := local.NewSynthesizer("").Synthesize(ctx, nil, nil, 0)
		require.NoError(t, err)
		assert.Equal(t, "No proposals yet", r.Recommendation)
		assert.Zero(t, r.Confidence)
	})
}
