package market

import (
	"context"
	"maps"
	"sync"

	id "equilex/pkg/domain"
	"equilex/pkg/platform/sentinel"
)

// InMemoryStore owns rounds, purchases, and the settlement-asset payment
// accounts (buyer balances and the treasury). The dispatcher serializes
// writes; the mutex covers reads from transports and tests.
type InMemoryStore struct {
	mu        sync.RWMutex
	rounds    map[id.RoundID]Round
	purchases map[id.PurchaseID]Purchase
	payments  map[id.AccountID]uint64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		rounds:    make(map[id.RoundID]Round),
		purchases: make(map[id.PurchaseID]Purchase),
		payments:  make(map[id.AccountID]uint64),
	}
}

func (s *InMemoryStore) SaveRound(_ context.Context, round Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	round.Allowlist = maps.Clone(round.Allowlist)
	s.rounds[round.ID] = round
	return nil
}

func (s *InMemoryStore) FindRound(_ context.Context, roundID id.RoundID) (Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	round, ok := s.rounds[roundID]
	if !ok {
		return Round{}, sentinel.ErrNotFound
	}
	round.Allowlist = maps.Clone(round.Allowlist)
	return round, nil
}

func (s *InMemoryStore) SavePurchase(_ context.Context, purchase Purchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purchases[purchase.ID] = purchase
	return nil
}

func (s *InMemoryStore) FindPurchase(_ context.Context, purchaseID id.PurchaseID) (Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	purchase, ok := s.purchases[purchaseID]
	if !ok {
		return Purchase{}, sentinel.ErrNotFound
	}
	return purchase, nil
}

// SumRoundExposure returns the round's counted exposure: total escrow across
// PENDING and SETTLED purchases. REFUNDED purchases release their capacity.
func (s *InMemoryStore) SumRoundExposure(_ context.Context, roundID id.RoundID) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total uint64
	for _, p := range s.purchases {
		if p.RoundID == roundID && p.State != PurchaseStateRefunded {
			total += p.Escrowed
		}
	}
	return total, nil
}

// SumBuyerExposure returns a buyer's cumulative escrow across PENDING and
// SETTLED purchases in a round.
func (s *InMemoryStore) SumBuyerExposure(_ context.Context, roundID id.RoundID, buyer id.AccountID) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total uint64
	for _, p := range s.purchases {
		if p.RoundID == roundID && p.Buyer == buyer && p.State != PurchaseStateRefunded {
			total += p.Escrowed
		}
	}
	return total, nil
}

func (s *InMemoryStore) PaymentBalance(_ context.Context, account id.AccountID) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.payments[account], nil
}

func (s *InMemoryStore) SetPaymentBalance(_ context.Context, account id.AccountID, balance uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[account] = balance
	return nil
}

// Snapshot captures current state and returns a restore closure.
func (s *InMemoryStore) Snapshot() func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	savedRounds := make(map[id.RoundID]Round, len(s.rounds))
	for k, round := range s.rounds {
		round.Allowlist = maps.Clone(round.Allowlist)
		savedRounds[k] = round
	}
	savedPurchases := maps.Clone(s.purchases)
	savedPayments := maps.Clone(s.payments)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.rounds = savedRounds
		s.purchases = savedPurchases
		s.payments = savedPayments
	}
}
