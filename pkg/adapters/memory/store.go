package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/aretw0/council/pkg/domain"
)

// Store implements ports.ArchiveStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]*domain.CouncilSession
	mu   sync.RWMutex
}

// NewStore creates a new in-memory archive.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.CouncilSession),
	}
}

// Save archives a copy of the council.
func (s *Store) Save(ctx context.Context, session *domain.CouncilSession) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("cannot archive a council without id")
	}
	// Copy on write so later mutations by the caller do not leak in.
	copied := session.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[session.ID] = copied
	return nil
}

// Load retrieves an archived council.
func (s *Store) Load(ctx context.Context, sessionID string) (*domain.CouncilSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.data[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session.Clone(), nil
}

// Delete removes the council from the archive.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sessionID)
	return nil
}

// List returns archived council IDs in lexical order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}
