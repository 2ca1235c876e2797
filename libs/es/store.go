package es

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/propertyhub/libs/outbox"
)

// Snapshot is the materialized latest state of one aggregate. It is a cache: it can
// always be rebuilt by replaying the stream up to Version.
type Snapshot struct {
	Kind       string
	ID         string
	TenantID   string
	Version    int64
	Status     Status
	UniqueKey  string
	Attributes map[string]any
	IsDeleted  bool
	UpdatedAt  time.Time
}

// Commit is everything one command writes. Stores persist it in a single transaction:
// the events, one snapshot per event in version order, and the outbox messages.
type Commit struct {
	Kind            string
	StreamID        string
	TenantID        string
	ExpectedVersion int64
	// At is the writer's clock at commit; outbox entries become due at At.
	At        time.Time
	Events    []Event
	Snapshots []Snapshot
	Outbox    []outbox.Message
}

// Store is the event log plus its inline snapshot cache.
type Store interface {
	// Load returns every event of the stream ordered by version.
	Load(ctx context.Context, streamID string) ([]Event, error)
	// Append fails with a concurrency conflict when the stream is not at ExpectedVersion.
	Append(ctx context.Context, c Commit) error
	// ReplaceSnapshot overwrites a snapshot regardless of its stored version.
	ReplaceSnapshot(ctx context.Context, s Snapshot) error
}

// SnapshotReader answers availability and lookup queries from the snapshot cache.
type SnapshotReader interface {
	Get(ctx context.Context, kind, tenantID, id string) (Snapshot, error)
	FindByField(ctx context.Context, kind, tenantID, field, value string) ([]Snapshot, error)
	ExistsByUniqueKey(ctx context.Context, kind, tenantID, key string) (bool, error)
	// List returns live and deleted snapshots ordered by UpdatedAt then ID. An empty
	// tenantID lists every tenant.
	List(ctx context.Context, kind, tenantID string) ([]Snapshot, error)
}

// CheckSnapshotOrder is the rule every snapshot cache enforces on apply.
func CheckSnapshotOrder(kind, id string, stored, incoming int64) error {
	if incoming == stored+1 {
		return nil
	}
	return SchemaMismatch(kind+".snapshot", "snapshot out of order for "+id, nil)
}
