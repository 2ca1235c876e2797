package refsync

import (
	"context"
	"errors"
	"fmt"
)

// Store holds reference records. Upsert must only write when rec is newer than the
// stored row (see Newer) and report whether it wrote.
type Store interface {
	Get(ctx context.Context, tenantID, id string) (Record, bool, error)
	Upsert(ctx context.Context, rec Record) (bool, error)
}

// Locker serializes merges of one reference id.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type Outcome int

const (
	Skipped Outcome = iota
	Inserted
	Updated
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	default:
		return "skipped"
	}
}

// Newer reports whether an incoming copy should replace the stored one: a later
// updated_at wins, and on equal timestamps the higher source version wins.
func Newer(incoming, stored Record) bool {
	if !incoming.LastUpdatedAt.Equal(stored.LastUpdatedAt) {
		return incoming.LastUpdatedAt.After(stored.LastUpdatedAt)
	}
	return incoming.SourceVersion > stored.SourceVersion
}

// Merger applies items last-write-wins. It is shared by the pull synchronizer and push
// consumers.
type Merger struct {
	store  Store
	locker Locker
}

func NewMerger(store Store, locker Locker) *Merger {
	if locker == nil {
		locker = NewKeyedMutex()
	}
	return &Merger{store: store, locker: locker}
}

func (m *Merger) Merge(ctx context.Context, it Item) (Outcome, error) {
	if it.ID == "" || it.TenantID == "" {
		return Skipped, errors.New("item without id or tenant")
	}
	unlock, err := m.locker.Lock(ctx, it.TenantID+":"+it.ID)
	if err != nil {
		return Skipped, fmt.Errorf("lock %s: %w", it.ID, err)
	}
	defer unlock()

	rec := it.Record()
	stored, found, err := m.store.Get(ctx, it.TenantID, it.ID)
	if err != nil {
		return Skipped, err
	}
	if found && !Newer(rec, stored) {
		return Skipped, nil
	}
	applied, err := m.store.Upsert(ctx, rec)
	if err != nil {
		return Skipped, err
	}
	switch {
	case !applied:
		return Skipped, nil
	case found:
		return Updated, nil
	default:
		return Inserted, nil
	}
}
