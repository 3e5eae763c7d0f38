package compliance

import (
	"context"
	"maps"
	"sync"

	id "equilex/pkg/domain"
)

// InMemoryStore owns authorization state, trusted counterparty pairs, and the
// engine-private holdings counters the notification hooks maintain.
type InMemoryStore struct {
	mu       sync.RWMutex
	auths    map[id.AccountID]Authorization
	trusted  map[pairKey]bool
	holdings map[id.AccountID]uint64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		auths:    make(map[id.AccountID]Authorization),
		trusted:  make(map[pairKey]bool),
		holdings: make(map[id.AccountID]uint64),
	}
}

func (s *InMemoryStore) SaveAuthorization(_ context.Context, auth Authorization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auths[auth.Account] = auth
	return nil
}

// FindAuthorization returns the authorization for an account. Unknown accounts
// get the zero value: not authorized, no lockup.
func (s *InMemoryStore) FindAuthorization(_ context.Context, account id.AccountID) (Authorization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	auth, ok := s.auths[account]
	if !ok {
		return Authorization{Account: account}, nil
	}
	return auth, nil
}

func (s *InMemoryStore) SaveTrustedPair(_ context.Context, a, b id.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trusted[newPairKey(a, b)] = true
	return nil
}

func (s *InMemoryStore) IsTrustedPair(_ context.Context, a, b id.AccountID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trusted[newPairKey(a, b)], nil
}

func (s *InMemoryStore) AddHoldings(_ context.Context, account id.AccountID, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := int64(s.holdings[account])
	next := current + delta
	if next < 0 {
		next = 0
	}
	s.holdings[account] = uint64(next)
	return nil
}

func (s *InMemoryStore) Holdings(_ context.Context, account id.AccountID) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.holdings[account], nil
}

// Snapshot captures current state and returns a restore closure.
func (s *InMemoryStore) Snapshot() func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	savedAuths := maps.Clone(s.auths)
	savedTrusted := maps.Clone(s.trusted)
	savedHoldings := maps.Clone(s.holdings)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.auths = savedAuths
		s.trusted = savedTrusted
		s.holdings = savedHoldings
	}
}
