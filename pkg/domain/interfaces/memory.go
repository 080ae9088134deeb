package interfaces

import (
	"context"
	"time"

	"github.com/secmon-lab/anemone/pkg/domain/model"
)

// MemoryStore is an agent's append-only memory stream. Entries are never
// updated or deleted; ids and timestamps are strictly increasing.
type MemoryStore interface {
	// Append assigns id, timestamp and depth, persists the entry durably and
	// returns the stored copy.
	Append(ctx context.Context, entry *model.MemoryEntry) (*model.MemoryEntry, error)

	// Get returns ErrMemoryNotFound when id has not been stored.
	Get(ctx context.Context, id model.MemoryID) (*model.MemoryEntry, error)

	// GetMany returns entries in the order of ids.
	GetMany(ctx context.Context, ids []model.MemoryID) ([]*model.MemoryEntry, error)

	// ListSince returns entries with a timestamp strictly after since.
	ListSince(ctx context.Context, since time.Time) ([]*model.MemoryEntry, error)

	// Recent returns the newest n entries, oldest first.
	Recent(ctx context.Context, n int) ([]*model.MemoryEntry, error)

	All(ctx context.Context) ([]*model.MemoryEntry, error)

	Close() error
}
