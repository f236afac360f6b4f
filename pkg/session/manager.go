package session

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/council/internal/logging"
	"github.com/aretw0/council/internal/runtime"
	"github.com/aretw0/council/pkg/clock"
	"github.com/aretw0/council/pkg/domain"
	"github.com/aretw0/council/pkg/ports"
	"github.com/google/uuid"
)

// lockTTL bounds how long a replica may hold the distributed lock of a council.
const lockTTL = 30 * time.Second

// archiveTimeout bounds the archive write performed on eviction.
const archiveTimeout = 5 * time.Second

// Backoff bounds for re-dispatching a synthetic event that could not be applied.
const (
	retryBase = 100 * time.Millisecond
	retryMax  = 5 * time.Second
)

// entry is the live registry slot of one council.
// mu serializes event application; it is never held across an adapter call.
type entry struct {
	id        string
	createdAt time.Time

	mu       sync.Mutex
	session  *domain.CouncilSession
	ctx      context.Context // Cancelled on terminal status: aborts in-flight adapter calls
	cancel   context.CancelFunc
	deadline ports.Timer
	timers   map[string]ports.Timer // Phase and per-agent timers, keyed by purpose
	evict    ports.Timer

	evicting bool // Guarded by Manager.mu
}

// Manager owns the registry of live councils and drives their lifecycle.
// Every mutation funnels through SubmitEvent: adapter completions and timers
// are turned into events rather than touching state directly.
type Manager struct {
	limits   domain.Limits
	agents   ports.AgentAdapter
	evidence ports.EvidenceProvider
	synth    ports.Synthesizer

	clock   ports.Clock
	archive ports.ArchiveStore      // Optional
	locker  ports.DistributedLocker // Optional
	hooks   domain.LifecycleHooks
	logger  *slog.Logger
	newID   func() string

	mu       sync.Mutex // Guards sessions, active and closed. Never held across adapter calls.
	sessions map[string]*entry
	active   int // Non-terminal councils in sessions
	closed   bool

	inflight sync.WaitGroup
}

// NewManager creates a Manager. Limits are copied and never re-read.
func NewManager(limits domain.Limits, agents ports.AgentAdapter, evidence ports.EvidenceProvider, synth ports.Synthesizer, opts ...Option) (*Manager, error) {
	if err := limits.Validate(); err != nil {
		return nil, fmt.Errorf("invalid limits: %w", err)
	}
	if agents == nil || evidence == nil || synth == nil {
		return nil, errors.New("agent, evidence and synthesis adapters are required")
	}
	m := &Manager{
		limits:   limits,
		agents:   agents,
		evidence: evidence,
		synth:    synth,
		clock:    clock.Real{},
		logger:   logging.NewNop(), // Default to no-op
		newID:    uuid.NewString,
		sessions: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Limits returns the bounds the manager was built with.
func (m *Manager) Limits() domain.Limits {
	return m.limits
}

// CreateSession registers a new council in StatusPending, arms its deadline and
// starts the join handshake with every participant concurrently.
func (m *Manager) CreateSession(ctx context.Context, participants []string, cfg domain.SessionConfig) (string, error) {
	if err := m.validate(participants, cfg); err != nil {
		return "", err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", domain.ErrManagerClosed
	}
	if m.active >= m.limits.MaxConcurrentCouncils {
		m.mu.Unlock()
		return "", fmt.Errorf("%w: %d councils running", domain.ErrCapacityExceeded, m.active)
	}
	id := m.newID()
	if _, exists := m.sessions[id]; exists {
		m.mu.Unlock()
		return "", fmt.Errorf("council id %q already allocated", id)
	}
	now := m.clock.Now()
	sessionCtx, cancel := context.WithCancel(context.Background())
	e := &entry{
		id:        id,
		createdAt: now,
		session:   domain.NewCouncilSession(id, participants, cfg, now, m.limits.CouncilTimeout),
		ctx:       sessionCtx,
		cancel:    cancel,
		timers:    make(map[string]ports.Timer),
	}
	m.sessions[id] = e
	m.active++
	// Hold the council lock before publishing so no event can overtake the start effects.
	e.mu.Lock()
	m.mu.Unlock()

	e.deadline = m.clock.AfterFunc(e.session.DeadlineAt.Sub(now), func() {
		m.dispatch(id, domain.Deadline())
	})
	calls := m.perform(e, runtime.Start(e.session, m.limits))
	summary := e.session.Summarize()
	e.mu.Unlock()

	m.logger.Info("council created",
		"council_id", id,
		"participants", len(participants),
		"evidence_requests", len(cfg.Evidence),
		"deadline_at", summary.DeadlineAt,
	)
	if m.hooks.OnCreate != nil {
		m.hooks.OnCreate(ctx, summary)
	}
	m.launch(e, calls)
	return id, nil
}

func (m *Manager) validate(participants []string, cfg domain.SessionConfig) error {
	if len(participants) == 0 {
		return fmt.Errorf("%w: at least one participant is required", domain.ErrInvalidParticipants)
	}
	if len(participants) > m.limits.MaxParticipants {
		return fmt.Errorf("%w: %d participants, limit %d", domain.ErrInvalidParticipants, len(participants), m.limits.MaxParticipants)
	}
	seen := make(map[string]bool, len(participants))
	for _, p := range participants {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("%w: blank participant", domain.ErrInvalidParticipants)
		}
		if seen[p] {
			return fmt.Errorf("%w: duplicate participant %q", domain.ErrInvalidParticipants, p)
		}
		seen[p] = true
	}
	requests := make(map[string]bool, len(cfg.Evidence))
	for _, req := range cfg.Evidence {
		if req.ID == "" || requests[req.ID] {
			return fmt.Errorf("%w: evidence request ids must be unique and non-empty", domain.ErrInvalidParticipants)
		}
		requests[req.ID] = true
	}
	return nil
}

// SubmitEvent applies ev to the council. It is the sole mutation entry point and
// returns the status after the event (TimedOut if the deadline preempted it).
func (m *Manager) SubmitEvent(ctx context.Context, sessionID string, ev domain.Event) (domain.Status, error) {
	e, err := m.lookup(sessionID)
	if err != nil {
		return "", err
	}
	return m.apply(ctx, e, ev)
}

func (m *Manager) lookup(sessionID string) (*entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	return e, nil
}

func (m *Manager) apply(ctx context.Context, e *entry, ev domain.Event) (domain.Status, error) {
	e.mu.Lock()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, e.id, lockTTL)
		if err != nil {
			status := e.session.Status
			e.mu.Unlock()
			return status, fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"council_id", e.id,
					"err", err,
				)
			}
		}()
	}

	out, err := runtime.Step(e.session, ev, m.limits, m.clock.Now())
	if err != nil {
		status := e.session.Status
		e.mu.Unlock()
		if m.hooks.OnReject != nil {
			m.hooks.OnReject(ctx, e.id, ev, err)
		}
		return status, err
	}

	e.session = out.Session
	calls := m.perform(e, out.Effects)
	m.reapTimers(e)
	terminal := e.session.Status.IsTerminal()
	if terminal {
		m.retire(e)
	}
	summary := e.session.Summarize()
	e.mu.Unlock()

	for _, rec := range out.Transitions {
		m.logTransition(e.id, rec)
		if m.hooks.OnTransition != nil {
			m.hooks.OnTransition(ctx, &domain.TransitionEvent{SessionID: e.id, Record: rec, Summary: summary})
		}
	}
	if m.hooks.OnApply != nil {
		m.hooks.OnApply(ctx, e.id, ev, summary.Status)
	}
	m.launch(e, calls)
	return summary.Status, nil
}

func (m *Manager) logTransition(id string, rec domain.TransitionRecord) {
	level := slog.LevelInfo
	if rec.To == domain.StatusFailed || rec.To == domain.StatusTimedOut {
		level = slog.LevelWarn
	}
	m.logger.Log(context.Background(), level, "council transition",
		"council_id", id,
		"from", rec.From,
		"to", rec.To,
		"reason", rec.Reason,
		"detail", rec.Detail,
	)
}

// retire releases everything a terminal council holds except its snapshot,
// which stays readable until the retention grace period ends. Caller holds e.mu.
func (m *Manager) retire(e *entry) {
	e.cancel()
	if e.deadline != nil {
		e.deadline.Stop()
	}
	for key, t := range e.timers {
		t.Stop()
		delete(e.timers, key)
	}

	m.mu.Lock()
	m.active--
	m.mu.Unlock()

	id := e.id
	e.evict = m.clock.AfterFunc(m.limits.ResultRetention, func() {
		m.evict(id)
	})
}

// evict archives a terminal council and removes it from the registry.
func (m *Manager) evict(id string) {
	m.mu.Lock()
	e, ok := m.sessions[id]
	if !ok || e.evicting {
		m.mu.Unlock()
		return
	}
	e.evicting = true
	m.mu.Unlock()

	e.mu.Lock()
	if e.evict != nil {
		e.evict.Stop()
	}
	snapshot := e.session.Clone()
	e.mu.Unlock()

	if m.archive != nil {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		if err := m.archive.Save(ctx, snapshot); err != nil {
			m.logger.Error("failed to archive council", "council_id", id, "err", err)
		}
		cancel()
	}

	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()

	age := m.clock.Now().Sub(snapshot.CreatedAt)
	m.logger.Debug("council evicted", "council_id", id, "age", age)
	if m.hooks.OnEvict != nil {
		m.hooks.OnEvict(context.Background(), id, age)
	}
}

// dispatch feeds a synthetic event (timer or adapter completion) back into the
// council. Rejections are expected for late results and are only logged; any
// other failure, such as an unavailable distributed lock, is retried with
// backoff so a deadline or adapter result is never lost.
func (m *Manager) dispatch(id string, ev domain.Event) {
	m.redispatch(id, ev, 0)
}

func (m *Manager) redispatch(id string, ev domain.Event, attempt int) {
	_, err := m.SubmitEvent(context.Background(), id, ev)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrTerminalSession),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrSessionNotFound):
		m.logger.Debug("dropped stale event", "council_id", id, "event", ev.Type, "err", err)
	default:
		delay := retryDelay(attempt)
		m.logger.Warn("failed to apply event, retrying",
			"council_id", id,
			"event", ev.Type,
			"attempt", attempt+1,
			"retry_in", delay,
			"err", err,
		)
		m.clock.AfterFunc(delay, func() {
			m.redispatch(id, ev, attempt+1)
		})
	}
}

func retryDelay(attempt int) time.Duration {
	d := retryBase
	for range attempt {
		d *= 2
		if d >= retryMax {
			return retryMax
		}
	}
	return d
}

// GetSnapshot returns a read-only copy of the council. Evicted councils are
// served from the archive when one is configured.
func (m *Manager) GetSnapshot(ctx context.Context, sessionID string) (*domain.CouncilSession, error) {
	e, err := m.lookup(sessionID)
	if err == nil {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.session.Clone(), nil
	}
	if m.archive == nil {
		return nil, err
	}
	archived, aerr := m.archive.Load(ctx, sessionID)
	if aerr != nil {
		if errors.Is(aerr, domain.ErrSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load archived council: %w", aerr)
	}
	return archived, nil
}

// CancelSession moves the council to StatusCancelled and aborts in-flight calls.
func (m *Manager) CancelSession(ctx context.Context, sessionID, reason string) error {
	_, err := m.SubmitEvent(ctx, sessionID, domain.Cancel(reason))
	return err
}

// ListActive enumerates the non-terminal councils, oldest first. The sequence is
// lazy (each summary is read when yielded) and can be ranged over repeatedly.
func (m *Manager) ListActive() iter.Seq[domain.Summary] {
	return func(yield func(domain.Summary) bool) {
		m.mu.Lock()
		entries := make([]*entry, 0, len(m.sessions))
		for _, e := range m.sessions {
			entries = append(entries, e)
		}
		m.mu.Unlock()

		slices.SortFunc(entries, func(a, b *entry) int {
			if c := a.createdAt.Compare(b.createdAt); c != 0 {
				return c
			}
			return strings.Compare(a.id, b.id)
		})

		for _, e := range entries {
			e.mu.Lock()
			summary := e.session.Summarize()
			e.mu.Unlock()
			if summary.Status.IsTerminal() {
				continue
			}
			if !yield(summary) {
				return
			}
		}
	}
}

// Active returns the number of non-terminal councils.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Shutdown refuses new councils, cancels the live ones, archives everything
// still registered and waits for in-flight adapter calls to return.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.CancelSession(ctx, id, "shutdown"); err != nil && !errors.Is(err, domain.ErrTerminalSession) {
			m.logger.Warn("failed to cancel council on shutdown", "council_id", id, "err", err)
		}
		m.evict(id)
	}

	done := make(chan struct{})
	go func() {
		m.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("in-flight adapter calls did not finish: %w", ctx.Err())
	}
}
