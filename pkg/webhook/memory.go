package webhook

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemorySubscriptionStore is an in-memory SubscriptionStore for tests and
// single-process use.
type MemorySubscriptionStore struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]*Subscription
}

// NewMemorySubscriptionStore creates an empty in-memory subscription store.
func NewMemorySubscriptionStore() *MemorySubscriptionStore {
	return &MemorySubscriptionStore{subs: make(map[uuid.UUID]*Subscription)}
}

func (s *MemorySubscriptionStore) Create(_ context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subs[sub.ID]; ok {
		return fmt.Errorf("%w: duplicate id %s", ErrStorage, sub.ID)
	}
	cp := *sub
	cp.Patterns = append([]string(nil), sub.Patterns...)
	s.subs[sub.ID] = &cp
	return nil
}

func (s *MemorySubscriptionStore) Get(_ context.Context, id uuid.UUID) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subs[id]
	if !ok {
		return nil, fmt.Errorf("%w: subscription %s", ErrNotFound, id)
	}
	cp := *sub
	cp.Patterns = append([]string(nil), sub.Patterns...)
	return &cp, nil
}

func (s *MemorySubscriptionStore) ListByApp(_ context.Context, appID string) ([]Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Subscription, 0)
	for _, sub := range s.subs {
		if sub.AppID == appID {
			out = append(out, *sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemorySubscriptionStore) ListActive(_ context.Context) ([]Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Subscription, 0)
	for _, sub := range s.subs {
		if sub.Active {
			out = append(out, *sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemorySubscriptionStore) Update(_ context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subs[sub.ID]; !ok {
		return fmt.Errorf("%w: subscription %s", ErrNotFound, sub.ID)
	}
	cp := *sub
	cp.Patterns = append([]string(nil), sub.Patterns...)
	s.subs[sub.ID] = &cp
	return nil
}

func (s *MemorySubscriptionStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subs[id]; !ok {
		return fmt.Errorf("%w: subscription %s", ErrNotFound, id)
	}
	delete(s.subs, id)
	return nil
}

func (s *MemorySubscriptionStore) RecordSuccess(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[id]
	if !ok {
		return fmt.Errorf("%w: subscription %s", ErrNotFound, id)
	}
	sub.ConsecutiveFailures = 0
	sub.TotalDeliveries++
	return nil
}

func (s *MemorySubscriptionStore) RecordFailure(_ context.Context, id uuid.UUID, ceiling int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[id]
	if !ok {
		return 0, false, fmt.Errorf("%w: subscription %s", ErrNotFound, id)
	}
	sub.ConsecutiveFailures++
	sub.TotalDeliveries++
	sub.TotalFailures++

	disabled := false
	if sub.Active && ceiling > 0 && sub.ConsecutiveFailures >= ceiling {
		now := time.Now().UTC()
		sub.Active = false
		sub.DisabledAt = &now
		disabled = true
	}
	return sub.ConsecutiveFailures, disabled, nil
}

// MemoryDeliveryStore is an in-memory DeliveryStore.
type MemoryDeliveryStore struct {
	mu         sync.Mutex
	deliveries map[uuid.UUID]*memDelivery
	attempts   []Attempt
}

type memDelivery struct {
	d            Delivery
	claimedUntil time.Time
}

// NewMemoryDeliveryStore creates an empty in-memory delivery store.
func NewMemoryDeliveryStore() *MemoryDeliveryStore {
	return &MemoryDeliveryStore{deliveries: make(map[uuid.UUID]*memDelivery)}
}

func (s *MemoryDeliveryStore) Enqueue(_ context.Context, deliveries []Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range deliveries {
		if _, ok := s.deliveries[d.ID]; ok {
			return fmt.Errorf("%w: duplicate delivery %s", ErrStorage, d.ID)
		}
		cp := d
		s.deliveries[d.ID] = &memDelivery{d: cp}
	}
	return nil
}

func (s *MemoryDeliveryStore) Get(_ context.Context, id uuid.UUID) (*Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.deliveries[id]
	if !ok {
		return nil, fmt.Errorf("%w: delivery %s", ErrNotFound, id)
	}
	cp := row.d
	return &cp, nil
}

func (s *MemoryDeliveryStore) ClaimDue(_ context.Context, now time.Time, limit int, lease time.Duration) ([]Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lease <= 0 {
		lease = DefaultClaimLease
	}

	// A subscription with a live in-flight claim is skipped entirely so its
	// queued deliveries cannot overtake the one being sent.
	busy := make(map[uuid.UUID]bool)
	for _, row := range s.deliveries {
		if row.d.Status == DeliveryProcessing && !row.claimedUntil.Before(now) {
			busy[row.d.SubscriptionID] = true
		}
	}

	due := make([]*memDelivery, 0)
	for _, row := range s.deliveries {
		if busy[row.d.SubscriptionID] {
			continue
		}
		claimable := row.d.Status == DeliveryPending ||
			(row.d.Status == DeliveryProcessing && row.claimedUntil.Before(now))
		if claimable && !row.d.NextAttemptAt.After(now) {
			due = append(due, row)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].d.OccurredAt.Before(due[j].d.OccurredAt) })

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	out := make([]Delivery, 0, len(due))
	for _, row := range due {
		row.d.Status = DeliveryProcessing
		row.claimedUntil = now.Add(lease)
		out = append(out, row.d)
	}
	return out, nil
}

func (s *MemoryDeliveryStore) MarkSucceeded(_ context.Context, id uuid.UUID, attempts int) error {
	return s.finish(id, DeliverySucceeded, attempts, "")
}

func (s *MemoryDeliveryStore) MarkFailed(_ context.Context, id uuid.UUID, attempts int, lastError string) error {
	return s.finish(id, DeliveryFailed, attempts, lastError)
}

func (s *MemoryDeliveryStore) finish(id uuid.UUID, status DeliveryStatus, attempts int, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.deliveries[id]
	if !ok {
		return fmt.Errorf("%w: delivery %s", ErrNotFound, id)
	}
	row.d.Status = status
	row.d.Attempts = attempts
	row.d.LastError = lastError
	return nil
}

func (s *MemoryDeliveryStore) Reschedule(_ context.Context, id uuid.UUID, attempts int, nextAttemptAt time.Time, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.deliveries[id]
	if !ok {
		return fmt.Errorf("%w: delivery %s", ErrNotFound, id)
	}
	row.d.Status = DeliveryPending
	row.d.Attempts = attempts
	row.d.NextAttemptAt = nextAttemptAt
	row.d.LastError = lastError
	row.claimedUntil = time.Time{}
	return nil
}

func (s *MemoryDeliveryStore) RecordAttempt(_ context.Context, a Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, a)
	return nil
}

func (s *MemoryDeliveryStore) ListAttempts(_ context.Context, deliveryID uuid.UUID) ([]Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Attempt, 0)
	for _, a := range s.attempts {
		if a.DeliveryID == deliveryID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (s *MemoryDeliveryStore) ListAttemptsOlderThan(_ context.Context, cutoff time.Time, limit int) ([]Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Attempt, 0)
	for _, a := range s.attempts {
		if a.AttemptedAt.Before(cutoff) {
			out = append(out, a)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryDeliveryStore) DeleteAttempts(_ context.Context, ids []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	drop := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := s.attempts[:0]
	for _, a := range s.attempts {
		if !drop[a.ID] {
			kept = append(kept, a)
		}
	}
	s.attempts = kept
	return nil
}
