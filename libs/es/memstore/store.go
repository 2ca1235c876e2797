// Package memstore is an in-process event log, snapshot cache and outbox. Commits are
// all-or-nothing under one lock, matching the Postgres store's transaction.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/md-rashed-zaman/propertyhub/libs/es"
	"github.com/md-rashed-zaman/propertyhub/libs/outbox"
)

type snapshotKey struct{ kind, id string }

type uniqueKey struct{ kind, tenantID, key string }

type Store struct {
	*outbox.MemoryStore

	mu        sync.Mutex
	streams   map[string][]es.Event
	snapshots map[snapshotKey]es.Snapshot
	unique    map[uniqueKey]string
	failNext  error
	beforeApp func(es.Commit)
}

func New() *Store {
	return &Store{
		MemoryStore: outbox.NewMemoryStore(),
		streams:     map[string][]es.Event{},
		snapshots:   map[snapshotKey]es.Snapshot{},
		unique:      map[uniqueKey]string{},
	}
}

// FailNextCommit makes the next Append fail with err after every check passed,
// as a crash between the writes would.
func (s *Store) FailNextCommit(err error) {
	s.mu.Lock()
	s.failNext = err
	s.mu.Unlock()
}

// BeforeAppend runs fn at the start of every Append, before the lock is taken. Tests
// use it to interleave a competing writer.
func (s *Store) BeforeAppend(fn func(es.Commit)) {
	s.mu.Lock()
	s.beforeApp = fn
	s.mu.Unlock()
}

func (s *Store) Load(_ context.Context, streamID string) ([]es.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]es.Event(nil), s.streams[streamID]...), nil
}

func (s *Store) Append(ctx context.Context, c es.Commit) error {
	s.mu.Lock()
	hook := s.beforeApp
	s.mu.Unlock()
	if hook != nil {
		hook(c)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := int64(len(s.streams[c.StreamID]))
	if current != c.ExpectedVersion {
		return es.Conflict(c.Kind+".append", c.StreamID, c.ExpectedVersion, current)
	}
	for i, ev := range c.Events {
		if ev.Version != c.ExpectedVersion+int64(i)+1 {
			return es.Conflict(c.Kind+".append", c.StreamID, c.ExpectedVersion+int64(i)+1, ev.Version)
		}
	}

	// Stage snapshots so a failed check leaves nothing behind.
	staged := map[snapshotKey]es.Snapshot{}
	stagedUnique := map[uniqueKey]string{}
	released := map[uniqueKey]bool{}
	for _, snap := range c.Snapshots {
		k := snapshotKey{snap.Kind, snap.ID}
		prev, ok := staged[k]
		if !ok {
			prev, ok = s.snapshots[k]
		}
		var stored int64
		if ok {
			stored = prev.Version
			if prev.UniqueKey != "" && prev.UniqueKey != snap.UniqueKey {
				released[uniqueKey{prev.Kind, prev.TenantID, prev.UniqueKey}] = true
			}
		}
		if err := es.CheckSnapshotOrder(snap.Kind, snap.ID, stored, snap.Version); err != nil {
			return err
		}
		if snap.UniqueKey != "" {
			uk := uniqueKey{snap.Kind, snap.TenantID, snap.UniqueKey}
			if owner, taken := s.unique[uk]; taken && owner != snap.ID && !released[uk] {
				return es.Violation(snap.Kind+".append", "unique_key_taken", fmt.Sprintf("%s %q is already taken", snap.Kind, snap.UniqueKey))
			}
			if owner, taken := stagedUnique[uk]; taken && owner != snap.ID {
				return es.Violation(snap.Kind+".append", "unique_key_taken", fmt.Sprintf("%s %q is already taken", snap.Kind, snap.UniqueKey))
			}
			stagedUnique[uk] = snap.ID
			delete(released, uk)
		}
		staged[k] = copySnapshot(snap)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return err
	}

	for _, ev := range c.Events {
		s.streams[c.StreamID] = append(s.streams[c.StreamID], ev)
	}
	for uk := range released {
		delete(s.unique, uk)
	}
	for uk, id := range stagedUnique {
		s.unique[uk] = id
	}
	for k, snap := range staged {
		s.snapshots[k] = snap
	}
	s.MemoryStore.EnqueueAt(c.At, c.Outbox)
	return nil
}

func (s *Store) ReplaceSnapshot(_ context.Context, snap es.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := snapshotKey{snap.Kind, snap.ID}
	uk := uniqueKey{snap.Kind, snap.TenantID, snap.UniqueKey}
	if snap.UniqueKey != "" {
		if owner, taken := s.unique[uk]; taken && owner != snap.ID {
			return es.Violation(snap.Kind+".rebuild", "unique_key_taken", fmt.Sprintf("%s %q is already taken", snap.Kind, snap.UniqueKey))
		}
	}
	// Checks passed; release the old key only now.
	if prev, ok := s.snapshots[k]; ok && prev.UniqueKey != "" {
		delete(s.unique, uniqueKey{prev.Kind, prev.TenantID, prev.UniqueKey})
	}
	if snap.UniqueKey != "" {
		s.unique[uk] = snap.ID
	}
	s.snapshots[k] = copySnapshot(snap)
	return nil
}

// CorruptSnapshot overwrites a snapshot without any checks.
func (s *Store) CorruptSnapshot(snap es.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snapshotKey{snap.Kind, snap.ID}] = copySnapshot(snap)
}

func (s *Store) Get(_ context.Context, kind, tenantID, id string) (es.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[snapshotKey{kind, id}]
	if !ok || snap.TenantID != tenantID {
		return es.Snapshot{}, es.NotFound(kind+".snapshot", id+" not found")
	}
	return copySnapshot(snap), nil
}

func (s *Store) FindByField(_ context.Context, kind, tenantID, field, value string) ([]es.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []es.Snapshot
	for _, snap := range s.snapshots {
		if snap.Kind != kind || snap.TenantID != tenantID || snap.IsDeleted {
			continue
		}
		if v, ok := snap.Attributes[field]; ok && fmt.Sprint(v) == value {
			out = append(out, copySnapshot(snap))
		}
	}
	sortSnapshots(out)
	return out, nil
}

func (s *Store) ExistsByUniqueKey(_ context.Context, kind, tenantID, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.unique[uniqueKey{kind, tenantID, key}]
	return ok, nil
}

func (s *Store) List(_ context.Context, kind, tenantID string) ([]es.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []es.Snapshot
	for _, snap := range s.snapshots {
		if snap.Kind != kind || (tenantID != "" && snap.TenantID != tenantID) {
			continue
		}
		out = append(out, copySnapshot(snap))
	}
	sortSnapshots(out)
	return out, nil
}

func sortSnapshots(out []es.Snapshot) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
}

func copySnapshot(s es.Snapshot) es.Snapshot {
	if s.Attributes != nil {
		attrs := make(map[string]any, len(s.Attributes))
		for k, v := range s.Attributes {
			attrs[k] = v
		}
		s.Attributes = attrs
	}
	return s
}

var (
	_ es.Store          = (*Store)(nil)
	_ es.SnapshotReader = (*Store)(nil)
	_ outbox.Store      = (*Store)(nil)
)
