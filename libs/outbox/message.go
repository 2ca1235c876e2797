package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Message is what a command enqueues. Destination is the broker topic.
type Message struct {
	EventID       string
	StreamID      string
	TenantID      string
	EventType     string
	Destination   string
	SchemaVersion string
	Payload       []byte
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusInFlight   Status = "in_flight"
	StatusDispatched Status = "dispatched"
	StatusDead       Status = "dead"
)

// Entry is a stored outbox row.
type Entry struct {
	ID            int64
	EventID       string
	StreamID      string
	TenantID      string
	EventType     string
	Destination   string
	SchemaVersion string
	Payload       []byte
	Status        Status
	RetryCount    int
	LastError     string
	CreatedAt     time.Time
	NextAttemptAt time.Time
	LeaseUntil    *time.Time
	DispatchedAt  *time.Time
	DeadAt        *time.Time
	Traceparent   string
	Tracestate    string
}

// Failure records a failed delivery attempt. Dead moves the entry to the dead-letter set.
// Lease is the lease_until the entry was claimed with.
type Failure struct {
	ID            int64
	Lease         time.Time
	RetryCount    int
	LastError     string
	NextAttemptAt time.Time
	Dead          bool
	At            time.Time
}

var (
	ErrNotFound = errors.New("outbox entry not found")
	ErrNotDead  = errors.New("outbox entry is not dead-lettered")
	// ErrLeaseLost means the entry is no longer in flight under the caller's lease:
	// it expired and another worker reclaimed it.
	ErrLeaseLost = errors.New("outbox lease lost")
)

// Store is the durable queue the publisher drains. Updates to a claimed entry take the
// lease it was claimed with and fail with ErrLeaseLost once that lease is gone.
type Store interface {
	// ReclaimExpired returns in-flight entries whose lease ran out to pending.
	ReclaimExpired(ctx context.Context, now time.Time) (int64, error)
	// Claim leases due entries in insertion order. An entry is skipped while an earlier
	// entry of its destination and stream is in flight or backing off.
	Claim(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]Entry, error)
	MarkDispatched(ctx context.Context, id int64, lease, at time.Time) error
	MarkFailed(ctx context.Context, f Failure) error
	// Release returns a claimed entry to pending without spending a retry.
	Release(ctx context.Context, id int64, lease time.Time) error
	ListDeadLetters(ctx context.Context, limit int) ([]Entry, error)
	// Requeue moves a dead entry back to pending with a fresh retry budget.
	Requeue(ctx context.Context, id int64, now time.Time) error
	// OldestPending returns the creation time of the oldest undelivered entry.
	OldestPending(ctx context.Context) (time.Time, bool, error)
}

// Sender delivers one entry to the broker.
type Sender interface {
	Send(ctx context.Context, e Entry) error
}

// DeliveryError wraps a broker failure. It never reaches the command caller.
type DeliveryError struct {
	EntryID     int64
	Destination string
	Attempt     int
	Err         error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver outbox entry %d to %s (attempt %d): %v", e.EntryID, e.Destination, e.Attempt, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// leaseOf returns the lease an entry was claimed with.
func leaseOf(e Entry) time.Time {
	if e.LeaseUntil == nil {
		return time.Time{}
	}
	return *e.LeaseUntil
}
