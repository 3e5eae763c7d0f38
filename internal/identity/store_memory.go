package identity

import (
	"context"
	"maps"
	"sync"

	id "equilex/pkg/domain"
	"equilex/pkg/platform/sentinel"
)

// InMemoryStore holds identity records. The dispatcher serializes writes; the
// mutex covers reads from transports and tests.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[id.AccountID]Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[id.AccountID]Record)}
}

func (s *InMemoryStore) Save(_ context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.Account] = record
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, account id.AccountID) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[account]
	if !ok {
		return Record{}, sentinel.ErrNotFound
	}
	return record, nil
}

func (s *InMemoryStore) Delete(_ context.Context, account id.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[account]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.records, account)
	return nil
}

// Snapshot captures current state and returns a restore closure. The
// dispatcher uses it to make every action all-or-nothing.
func (s *InMemoryStore) Snapshot() func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	saved := maps.Clone(s.records)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.records = saved
	}
}
