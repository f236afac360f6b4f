package observability_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/council/pkg/domain"
	"github.com/aretw0/council/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Hooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := observability.NewMetrics(reg)
	require.NoError(t, err)
	hooks := m.Hooks()
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	summary := domain.Summary{ID: "c-1", CreatedAt: created}
	hooks.OnCreate(ctx, summary)

	hooks.OnTransition(ctx, &domain.TransitionEvent{
		SessionID: "c-1",
		Record:    domain.TransitionRecord{From: domain.StatusPending, To: domain.StatusGathering, Reason: domain.ReasonJoined, At: created},
		Summary:   summary,
	})
	hooks.OnTransition(ctx, &domain.TransitionEvent{
		SessionID: "c-1",
		Record:    domain.TransitionRecord{From: domain.StatusGathering, To: domain.StatusTimedOut, Reason: domain.ReasonTimeout, At: created.Add(time.Minute)},
		Summary:   summary,
	})
	hooks.OnReject(ctx, "c-1", domain.JoinAck("a"), errors.New("late"))
	hooks.OnEvict(ctx, "c-1", time.Minute)

	for name, want := range map[string]int{
		"council_transitions_total":        2,
		"council_sessions_finished_total":  1,
		"council_session_duration_seconds": 1,
	} {
		n, err := testutil.GatherAndCount(reg, name)
		require.NoError(t, err)
		assert.Equal(t, want, n, name)
	}

	gathered, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range gathered {
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				values[mf.GetName()] += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				values[mf.GetName()] = metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				values[mf.GetName()] = metric.GetHistogram().GetSampleSum()
			}
		}
	}
	assert.Equal(t, 1.0, values["council_sessions_created_total"])
	assert.Equal(t, 0.0, values["council_sessions_active"])
	assert.Equal(t, 1.0, values["council_events_rejected_total"])
	assert.Equal(t, 1.0, values["council_sessions_evicted_total"])
	assert.Equal(t, 60.0, values["council_session_duration_seconds"])
}

func TestNewMetrics_DoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := observability.NewMetrics(reg)
	require.NoError(t, err)

	_, err = observability.NewMetrics(reg)
	assert.Error(t, err)
}

func TestCombine(t *testing.T) {
	var calls []string
	first := domain.LifecycleHooks{
		OnCreate: func(context.Context, domain.Summary) { calls = append(calls, "first") },
	}
	second := domain.LifecycleHooks{
		OnCreate: func(context.Context, domain.Summary) { calls = append(calls, "second") },
		OnEvict:  func(context.Context, string, time.Duration) { calls = append(calls, "evict") },
	}

	hooks := observability.Combine(first, second)
	hooks.OnCreate(context.Background(), domain.Summary{})
	hooks.OnEvict(context.Background(), "c-1", 0)
	hooks.OnTransition(context.Background(), &domain.TransitionEvent{}) // no observer, no panic

	assert.Equal(t, []string{"first", "second", "evict"}, calls)
}
