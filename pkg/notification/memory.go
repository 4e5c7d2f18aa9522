package notification

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage is an in-memory Storage for tests and single-process use.
type MemoryStorage struct {
	mu       sync.RWMutex
	rows     map[uuid.UUID]*memRow
	external map[string]uuid.UUID // appID + "\x00" + externalID
}

type memRow struct {
	n  Notification
	st State
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		rows:     make(map[uuid.UUID]*memRow),
		external: make(map[string]uuid.UUID),
	}
}

func externalKey(appID, externalID string) string {
	return appID + "\x00" + externalID
}

func (s *MemoryStorage) Create(_ context.Context, n Notification, st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := externalKey(n.AppID, n.ExternalID)
	if _, ok := s.external[key]; ok {
		return fmt.Errorf("%w: %s/%s", ErrDuplicateExternalID, n.AppID, n.ExternalID)
	}
	if _, ok := s.rows[n.ID]; ok {
		return fmt.Errorf("%w: duplicate id %s", ErrStorage, n.ID)
	}
	s.rows[n.ID] = &memRow{n: n, st: st}
	s.external[key] = n.ID
	return nil
}

func (s *MemoryStorage) Get(_ context.Context, id uuid.UUID) (Notification, State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.rows[id]
	if !ok {
		return Notification{}, State{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return row.n, row.st, nil
}

func (s *MemoryStorage) Query(_ context.Context, userID string, f Filter) ([]Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	items := make([]Item, 0)
	for _, row := range s.rows {
		if row.n.UserID != userID {
			continue
		}
		if f.AppID != "" && row.n.AppID != f.AppID {
			continue
		}
		if f.Status != nil && row.st.Status != *f.Status {
			continue
		}
		// Content past its expiry never surfaces, even before the expiry
		// worker has swept it.
		if row.n.ExpiredAt(now) && (f.Status == nil || *f.Status != StatusExpired) {
			continue
		}
		items = append(items, Item{Notification: row.n, State: row.st})
	}

	sort.SliceStable(items, func(i, j int) bool {
		ri, rj := items[i].Notification.Priority.Rank(), items[j].Notification.Priority.Rank()
		if ri != rj {
			return ri > rj
		}
		return items[i].Notification.CreatedAt.After(items[j].Notification.CreatedAt)
	})

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	if f.Offset >= len(items) {
		return []Item{}, nil
	}
	items = items[f.Offset:]
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *MemoryStorage) UpdateState(_ context.Context, id uuid.UUID, expectedStatus Status, st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if row.st.Status != expectedStatus {
		return fmt.Errorf("%w: expected %s, have %s", ErrStateConflict, expectedStatus, row.st.Status)
	}
	row.st = st
	return nil
}

func (s *MemoryStorage) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.external, externalKey(row.n.AppID, row.n.ExternalID))
	delete(s.rows, id)
	return nil
}

func (s *MemoryStorage) ListExpirable(_ context.Context, now time.Time, limit int) ([]Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]Item, 0)
	for _, row := range s.rows {
		if !row.n.ExpiredAt(now) {
			continue
		}
		if !CanTransition(row.st.Status, StatusExpired) {
			continue
		}
		items = append(items, Item{Notification: row.n, State: row.st})
		if limit > 0 && len(items) >= limit {
			break
		}
	}
	return items, nil
}

func (s *MemoryStorage) CountUnread(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	now := time.Now()
	for _, row := range s.rows {
		if row.n.UserID == userID && row.st.Status == StatusUnread && !row.n.ExpiredAt(now) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStorage) DeleteExpiredBefore(_ context.Context, cutoff time.Time, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, row := range s.rows {
		if row.st.Status != StatusExpired {
			continue
		}
		if row.n.ExpiresAt == nil || !row.n.ExpiresAt.Before(cutoff) {
			continue
		}
		delete(s.external, externalKey(row.n.AppID, row.n.ExternalID))
		delete(s.rows, id)
		deleted++
		if limit > 0 && deleted >= limit {
			break
		}
	}
	return deleted, nil
}
