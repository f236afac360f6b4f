package session

import (
	"log/slog"

	"github.com/aretw0/council/pkg/domain"
	"github.com/aretw0/council/pkg/ports"
)

// Option configures the Manager.
type Option func(*Manager)

// WithClock replaces the system clock (tests use clock.Manual).
func WithClock(c ports.Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// WithArchive keeps evicted councils in store, so GetSnapshot keeps answering after eviction.
func WithArchive(store ports.ArchiveStore) Option {
	return func(m *Manager) {
		m.archive = store
	}
}

// WithLocker enables distributed locking around event application.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(m *Manager) {
		m.hooks = hooks
	}
}

// WithIDGenerator overrides how council IDs are allocated (default: UUIDv4).
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) {
		m.newID = fn
	}
}
