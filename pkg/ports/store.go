package ports

import (
	"context"

	"github.com/aretw0/council/pkg/domain"
)

// ArchiveStore keeps councils after they are evicted from the live registry,
// so results stay retrievable past the retention grace period.
type ArchiveStore interface {
	// Save persists the council snapshot under its ID.
	Save(ctx context.Context, session *domain.CouncilSession) error

	// Load retrieves a council snapshot.
	// Returns domain.ErrSessionNotFound if the council does not exist.
	Load(ctx context.Context, sessionID string) (*domain.CouncilSession, error)

	// Delete removes the council snapshot.
	Delete(ctx context.Context, sessionID string) error

	// List returns the IDs of archived councils.
	List(ctx context.Context) ([]string, error)
}
