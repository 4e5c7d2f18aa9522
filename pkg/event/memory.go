package event

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and local development.
// All methods are safe for concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	events []Event
	byID   map[uuid.UUID]int
	lastAt time.Time
}

// NewMemoryStore creates an empty in-memory event store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID: make(map[uuid.UUID]int),
	}
}

func (s *MemoryStore) Append(ctx context.Context, e *Event) error {
	if e == nil {
		return fmt.Errorf("%w: nil event", ErrStorage)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[e.ID]; exists {
		return fmt.Errorf("%w: duplicate event id %s", ErrStorage, e.ID)
	}

	// Clamp backwards clock reads so the append sequence never regresses.
	if !e.OccurredAt.After(s.lastAt) {
		e.OccurredAt = s.lastAt.Add(time.Nanosecond)
	}
	s.lastAt = e.OccurredAt

	s.byID[e.ID] = len(s.events)
	s.events = append(s.events, *e)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	e := s.events[idx]
	return &e, nil
}

func (s *MemoryStore) ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Event
	for _, e := range s.events {
		if !e.OccurredAt.Before(cutoff) {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) DeleteBatch(ctx context.Context, ids []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	drop := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	s.events = slices.DeleteFunc(s.events, func(e Event) bool {
		_, ok := drop[e.ID]
		return ok
	})

	// Rebuild the index after compaction.
	clear(s.byID)
	for i, e := range s.events {
		s.byID[e.ID] = i
	}
	return nil
}

// All returns a copy of every stored event in append order. Test helper.
func (s *MemoryStore) All() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.events)
}
