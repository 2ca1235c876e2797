package refsync

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store with the same conditional write as the SQL store.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]Record{}}
}

func (s *MemoryStore) Get(_ context.Context, tenantID, id string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[tenantID+":"+id]
	return rec, ok, nil
}

func (s *MemoryStore) Upsert(_ context.Context, rec Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := rec.TenantID + ":" + rec.ID
	if stored, ok := s.records[key]; ok && !Newer(rec, stored) {
		return false, nil
	}
	s.records[key] = rec
	return true, nil
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

var _ Store = (*MemoryStore)(nil)
