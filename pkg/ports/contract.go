package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/council/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunArchiveStoreContract runs a suite of tests to verify that an ArchiveStore implementation
// adheres to the defined interface contract.
func RunArchiveStoreContract(t *testing.T, store ArchiveStore) {
	ctx := context.Background()
	sessionID := "contract-test-council-" + time.Now().Format("20060102150405")

	newSession := func(id string) *domain.CouncilSession {
		s := domain.NewCouncilSession(id, []string{"architect", "critic"}, domain.SessionConfig{
			Topic:   "inventory performance",
			Context: map[string]any{"file_path": "inventory.lua"},
		}, time.Now().UTC().Truncate(time.Second), time.Minute)
		s.Status = domain.StatusCompleted
		s.Result = &domain.Result{Mode: domain.SynthesisConsensus, Recommendation: "cache lookups", Confidence: 0.7}
		s.TransitionLog = append(s.TransitionLog, domain.TransitionRecord{
			From: domain.StatusSynthesizing, To: domain.StatusCompleted, Reason: domain.ReasonSynthesized,
		})
		return s
	}

	t.Run("Save and Load", func(t *testing.T) {
		session := newSession(sessionID)

		err := store.Save(ctx, session)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, session.Status, loaded.Status)
		assert.Equal(t, "inventory.lua", loaded.Context["file_path"])
		require.NotNil(t, loaded.Result)
		assert.Equal(t, "cache lookups", loaded.Result.Recommendation)
		assert.Len(t, loaded.Participants, 2)
		assert.Len(t, loaded.TransitionLog, 1)
		assert.True(t, session.DeadlineAt.Equal(loaded.DeadlineAt))
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Loaded Copy Is Isolated", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, newSession(sessionID)))

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		loaded.Participants[0].Agent = "mutated"

		again, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, "architect", again.Participants[0].Agent)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, newSession(sessionID)))

		err := store.Delete(ctx, sessionID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		_ = store.Save(ctx, newSession(id1))
		_ = store.Save(ctx, newSession(id2))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})
}
