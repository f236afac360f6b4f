package observability

import (
	"context"
	"time"

	"github.com/aretw0/council/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the council collectors.
type Metrics struct {
	created     prometheus.Counter
	active      prometheus.Gauge
	transitions *prometheus.CounterVec
	finished    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	rejected    *prometheus.CounterVec
	evicted     prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "council_sessions_created_total",
			Help: "Total number of councils created",
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "council_sessions_active",
			Help: "Councils that have not reached a terminal status",
		}),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "council_transitions_total",
				Help: "Status transitions applied, by edge and reason",
			},
			[]string{"from", "to", "reason"},
		),
		finished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "council_sessions_finished_total",
				Help: "Councils that reached a terminal status",
			},
			[]string{"status", "reason"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "council_session_duration_seconds",
				Help:    "Time from creation to terminal status",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
			},
			[]string{"status"},
		),
		rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "council_events_rejected_total",
				Help: "Events refused by the state machine",
			},
			[]string{"event"},
		),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "council_sessions_evicted_total",
			Help: "Terminal councils removed from memory",
		}),
	}

	for _, c := range []prometheus.Collector{m.created, m.active, m.transitions, m.finished, m.duration, m.rejected, m.evicted} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnCreate: func(_ context.Context, _ domain.Summary) {
			m.created.Inc()
			m.active.Inc()
		},
		OnTransition: func(_ context.Context, ev *domain.TransitionEvent) {
			rec := ev.Record
			m.transitions.WithLabelValues(string(rec.From), string(rec.To), string(rec.Reason)).Inc()
			if !rec.To.IsTerminal() {
				return
			}
			m.active.Dec()
			m.finished.WithLabelValues(string(rec.To), string(rec.Reason)).Inc()
			m.duration.WithLabelValues(string(rec.To)).Observe(durationSeconds(ev.Summary.CreatedAt, rec.At))
		},
		OnReject: func(_ context.Context, _ string, ev domain.Event, _ error) {
			m.rejected.WithLabelValues(string(ev.Type)).Inc()
		},
		OnEvict: func(_ context.Context, _ string, _ time.Duration) {
			m.evicted.Inc()
		},
	}
}

func durationSeconds(from, to time.Time) float64 {
	d := to.Sub(from)
	if d < 0 {
		return 0
	}
	return d.Seconds()
}
