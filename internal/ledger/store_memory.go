package ledger

import (
	"context"
	"maps"
	"sync"

	id "equilex/pkg/domain"
)

// InMemoryStore owns balances and freeze state. The dispatcher serializes
// writes; the mutex covers reads from transports and tests.
type InMemoryStore struct {
	mu          sync.RWMutex
	balances    map[id.AccountID]uint64
	freezes     map[id.AccountID]FreezeState
	totalSupply uint64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		balances: make(map[id.AccountID]uint64),
		freezes:  make(map[id.AccountID]FreezeState),
	}
}

func (s *InMemoryStore) Balance(_ context.Context, account id.AccountID) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[account], nil
}

func (s *InMemoryStore) SetBalance(_ context.Context, account id.AccountID, balance uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[account] = balance
	return nil
}

func (s *InMemoryStore) TotalSupply(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalSupply, nil
}

func (s *InMemoryStore) SetTotalSupply(_ context.Context, supply uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalSupply = supply
	return nil
}

// Freeze returns the freeze state for an account. Unknown accounts get the
// zero value: not frozen.
func (s *InMemoryStore) Freeze(_ context.Context, account id.AccountID) (FreezeState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	freeze, ok := s.freezes[account]
	if !ok {
		return FreezeState{Account: account}, nil
	}
	return freeze, nil
}

func (s *InMemoryStore) SaveFreeze(_ context.Context, freeze FreezeState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.freezes[freeze.Account] = freeze
	return nil
}

// Snapshot captures current state and returns a restore closure.
func (s *InMemoryStore) Snapshot() func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	savedBalances := maps.Clone(s.balances)
	savedFreezes := maps.Clone(s.freezes)
	savedSupply := s.totalSupply
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.balances = savedBalances
		s.freezes = savedFreezes
		s.totalSupply = savedSupply
	}
}
