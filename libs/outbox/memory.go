package outbox

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. It backs tests and the in-memory event store.
type MemoryStore struct {
	mu      sync.Mutex
	nextID  int64
	entries map[int64]*Entry
	clock   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[int64]*Entry{}, clock: time.Now}
}

// WithClock sets the clock that stamps created_at and next_attempt_at on enqueue.
func (s *MemoryStore) WithClock(clock func() time.Time) *MemoryStore {
	s.mu.Lock()
	s.clock = clock
	s.mu.Unlock()
	return s
}

// EnqueueAll appends msgs as pending entries. Callers that need atomicity with other
// writes hold their own lock around the call.
func (s *MemoryStore) EnqueueAll(msgs []Message) []int64 {
	return s.EnqueueAt(time.Time{}, msgs)
}

// EnqueueAt is EnqueueAll with the entries due at at. A zero at reads the store clock.
func (s *MemoryStore) EnqueueAt(at time.Time, msgs []Message) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if at.IsZero() {
		at = s.clock()
	}
	now := at.UTC()
	ids := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		s.nextID++
		s.entries[s.nextID] = &Entry{
			ID:            s.nextID,
			EventID:       m.EventID,
			StreamID:      m.StreamID,
			TenantID:      m.TenantID,
			EventType:     m.EventType,
			Destination:   m.Destination,
			SchemaVersion: m.SchemaVersion,
			Payload:       append([]byte(nil), m.Payload...),
			Status:        StatusPending,
			CreatedAt:     now,
			NextAttemptAt: now,
		}
		ids = append(ids, s.nextID)
	}
	return ids
}

// Entries returns copies of every entry ordered by id.
func (s *MemoryStore) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(func(*Entry) bool { return true })
}

func (s *MemoryStore) Get(id int64) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

func (s *MemoryStore) ReclaimExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, e := range s.entries {
		if e.Status == StatusInFlight && e.LeaseUntil != nil && e.LeaseUntil.Before(now) {
			e.Status = StatusPending
			e.LeaseUntil = nil
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Claim(_ context.Context, now time.Time, limit int, lease time.Duration) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type lane struct{ destination, stream string }
	blocked := map[lane]bool{}
	var claimed []Entry
	for _, e := range s.sorted(func(e *Entry) bool { return e.Status == StatusPending || e.Status == StatusInFlight }) {
		l := lane{e.Destination, e.StreamID}
		if blocked[l] {
			continue
		}
		if e.Status != StatusPending || e.NextAttemptAt.After(now) {
			blocked[l] = true
			continue
		}
		if len(claimed) >= limit {
			break
		}
		stored := s.entries[e.ID]
		until := now.Add(lease)
		stored.Status = StatusInFlight
		stored.LeaseUntil = &until
		claimed = append(claimed, *stored)
	}
	return claimed, nil
}

// leased returns the entry when it is still in flight under lease. Callers hold mu.
func (s *MemoryStore) leased(id int64, lease time.Time) (*Entry, error) {
	e, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	if e.Status != StatusInFlight || e.LeaseUntil == nil || !e.LeaseUntil.Equal(lease) {
		return nil, ErrLeaseLost
	}
	return e, nil
}

func (s *MemoryStore) MarkDispatched(_ context.Context, id int64, lease, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.leased(id, lease)
	if err != nil {
		return err
	}
	e.Status = StatusDispatched
	e.DispatchedAt = &at
	e.LeaseUntil = nil
	return nil
}

func (s *MemoryStore) MarkFailed(_ context.Context, f Failure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.leased(f.ID, f.Lease)
	if err != nil {
		return err
	}
	e.RetryCount = f.RetryCount
	e.LastError = f.LastError
	e.NextAttemptAt = f.NextAttemptAt
	e.LeaseUntil = nil
	e.Status = StatusPending
	if f.Dead {
		at := f.At
		e.Status = StatusDead
		e.DeadAt = &at
	}
	return nil
}

func (s *MemoryStore) Release(_ context.Context, id int64, lease time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.leased(id, lease)
	if err != nil {
		return err
	}
	e.Status = StatusPending
	e.LeaseUntil = nil
	return nil
}

func (s *MemoryStore) ListDeadLetters(_ context.Context, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dead := s.sorted(func(e *Entry) bool { return e.Status == StatusDead })
	if limit > 0 && len(dead) > limit {
		dead = dead[:limit]
	}
	return dead, nil
}

func (s *MemoryStore) Requeue(_ context.Context, id int64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return ErrNotFound
	}
	if e.Status != StatusDead {
		return ErrNotDead
	}
	e.Status = StatusPending
	e.RetryCount = 0
	e.NextAttemptAt = now
	e.DeadAt = nil
	return nil
}

func (s *MemoryStore) OldestPending(_ context.Context) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	open := s.sorted(func(e *Entry) bool { return e.Status == StatusPending || e.Status == StatusInFlight })
	if len(open) == 0 {
		return time.Time{}, false, nil
	}
	return open[0].CreatedAt, true, nil
}

func (s *MemoryStore) sorted(keep func(*Entry) bool) []Entry {
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if keep(e) {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

var _ Store = (*MemoryStore)(nil)
