package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anemone/pkg/domain/interfaces"
	"github.com/secmon-lab/anemone/pkg/domain/model"
)

// Store is an in-process MemoryStore. It also serves as the index behind
// durable stores, which persist each sealed entry through AppendWith.
type Store struct {
	mu      sync.RWMutex
	entries []*model.MemoryEntry
	byID    map[model.MemoryID]*model.MemoryEntry
	clock   func() time.Time
}

var _ interfaces.MemoryStore = &Store{}

type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		byID:  make(map[model.MemoryID]*model.MemoryEntry),
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replays already persisted entries. They must be in strictly
// increasing id and timestamp order.
func (s *Store) Load(entries []*model.MemoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		if last := s.last(); last != nil {
			if e.ID <= last.ID {
				return goerr.New("memory ids are not increasing",
					goerr.V("id", e.ID), goerr.V("previous", last.ID))
			}
			if !e.Timestamp.After(last.Timestamp) {
				return goerr.New("memory timestamps are not increasing",
					goerr.V("id", e.ID), goerr.V("timestamp", e.Timestamp))
			}
		}
		copied := e.Copy()
		s.entries = append(s.entries, copied)
		s.byID[copied.ID] = copied
	}
	return nil
}

func (s *Store) last() *model.MemoryEntry {
	if len(s.entries) == 0 {
		return nil
	}
	return s.entries[len(s.entries)-1]
}

func (s *Store) Append(ctx context.Context, entry *model.MemoryEntry) (*model.MemoryEntry, error) {
	return s.AppendWith(ctx, entry, nil)
}

// AppendWith seals entry and calls persist while holding the write lock. The
// entry becomes visible only after persist succeeds, so readers never see a
// record that is not durable.
func (s *Store) AppendWith(ctx context.Context, entry *model.MemoryEntry, persist func(*model.MemoryEntry) error) (*model.MemoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := model.MemoryID(1)
	ts := s.clock().UTC().Round(0)
	if last := s.last(); last != nil {
		id = last.ID + 1
		if !ts.After(last.Timestamp) {
			ts = last.Timestamp.Add(time.Nanosecond)
		}
	}

	sealed, err := model.Seal(entry, id, ts, func(ref model.MemoryID) (*model.MemoryEntry, bool) {
		e, ok := s.byID[ref]
		return e, ok
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to seal memory entry", goerr.V("id", id))
	}

	if persist != nil {
		if err := persist(sealed); err != nil {
			return nil, goerr.Wrap(errors.Join(interfaces.ErrPersistence, err), "failed to persist memory entry", goerr.V("id", id))
		}
	}

	s.entries = append(s.entries, sealed)
	s.byID[id] = sealed
	return sealed.Copy(), nil
}

func (s *Store) Get(ctx context.Context, id model.MemoryID) (*model.MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.byID[id]
	if !ok {
		return nil, goerr.Wrap(interfaces.ErrMemoryNotFound, "memory not found", goerr.V("id", id))
	}
	return e.Copy(), nil
}

func (s *Store) GetMany(ctx context.Context, ids []model.MemoryID) ([]*model.MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*model.MemoryEntry, 0, len(ids))
	for _, id := range ids {
		e, ok := s.byID[id]
		if !ok {
			return nil, goerr.Wrap(interfaces.ErrMemoryNotFound, "memory not found", goerr.V("id", id))
		}
		result = append(result, e.Copy())
	}
	return result, nil
}

func (s *Store) ListSince(ctx context.Context, since time.Time) ([]*model.MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*model.MemoryEntry
	for _, e := range s.entries {
		if e.Timestamp.After(since) {
			result = append(result, e.Copy())
		}
	}
	return result, nil
}

func (s *Store) Recent(ctx context.Context, n int) ([]*model.MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 {
		return []*model.MemoryEntry{}, nil
	}
	start := max(0, len(s.entries)-n)
	return copyAll(s.entries[start:]), nil
}

func (s *Store) All(ctx context.Context) ([]*model.MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyAll(s.entries), nil
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) Close() error { return nil }

func copyAll(entries []*model.MemoryEntry) []*model.MemoryEntry {
	result := make([]*model.MemoryEntry, len(entries))
	for i, e := range entries {
		result[i] = e.Copy()
	}
	return result
}
