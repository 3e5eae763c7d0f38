package market

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"equilex/internal/compliance"
	"equilex/internal/identity"
	"equilex/internal/ledger"
	"equilex/internal/outbox"
	id "equilex/pkg/domain"
	dErrors "equilex/pkg/domain-errors"
	"equilex/pkg/requestcontext"
)

const treasury = id.AccountID("treasury")

type MarketServiceSuite struct {
	suite.Suite
	store     *InMemoryStore
	identity  *identity.Service
	engine    *compliance.Engine
	ledgerSvc *ledger.Service
	events    *outbox.Publisher
	service   *Service
	now       time.Time
	ctx       context.Context
}

func TestMarketServiceSuite(t *testing.T) {
	suite.Run(t, new(MarketServiceSuite))
}

func (s *MarketServiceSuite) SetupTest() {
	s.store = NewInMemoryStore()
	eventLog := outbox.NewInMemoryStore()
	s.events = outbox.NewPublisher(eventLog)
	s.identity = identity.NewService(identity.NewInMemoryStore(), s.events)
	s.engine = compliance.NewEngine(s.identity, compliance.NewInMemoryStore())
	s.ledgerSvc = ledger.NewService(ledger.NewInMemoryStore(), s.engine, s.events)
	s.service = NewService(s.store, s.engine, s.ledgerSvc, s.events, treasury,
		WithSettlementTimeout(48*time.Hour))
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *MarketServiceSuite) onboard(accounts ...id.AccountID) {
	for _, a := range accounts {
		s.Require().NoError(s.identity.Register(s.ctx, a, "key-"+a.String(), "DE"))
		s.Require().NoError(s.engine.SetAuthorized(s.ctx, a, true))
	}
}

// openRound creates and opens a round with the given buyers allowlisted.
func (s *MarketServiceSuite) openRound(price, perCap, totalCap uint64, buyers ...id.AccountID) id.RoundID {
	round, err := s.service.CreateRound(s.ctx, price, perCap, totalCap)
	s.Require().NoError(err)
	s.Require().NoError(s.service.SetAllowlist(s.ctx, round.ID, buyers))
	s.Require().NoError(s.service.OpenRound(s.ctx, round.ID))
	return round.ID
}

func (s *MarketServiceSuite) fund(account id.AccountID, amount uint64) {
	s.Require().NoError(s.service.FundPayment(s.ctx, account, amount))
}

func (s *MarketServiceSuite) paymentBalance(account id.AccountID) uint64 {
	balance, err := s.service.PaymentBalanceOf(s.ctx, account)
	s.Require().NoError(err)
	return balance
}

// at returns a context whose clock is offset from the suite's base time.
func (s *MarketServiceSuite) at(offset time.Duration) context.Context {
	return requestcontext.WithTime(context.Background(), s.now.Add(offset))
}

func (s *MarketServiceSuite) TestRoundLifecycle() {
	s.Run("create validates price and caps", func() {
		_, err := s.service.CreateRound(s.ctx, 0, 10, 100)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))

		_, err = s.service.CreateRound(s.ctx, 5, 200, 100)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("transitions are one way", func() {
		round, err := s.service.CreateRound(s.ctx, 5, 100, 1000)
		s.Require().NoError(err)

		s.Require().NoError(s.service.OpenRound(s.ctx, round.ID))
		err = s.service.OpenRound(s.ctx, round.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))

		s.Require().NoError(s.service.CloseRound(s.ctx, round.ID))
		err = s.service.OpenRound(s.ctx, round.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("closed round rejects allowlist changes", func() {
		round, err := s.service.CreateRound(s.ctx, 5, 100, 1000)
		s.Require().NoError(err)
		s.Require().NoError(s.service.OpenRound(s.ctx, round.ID))
		s.Require().NoError(s.service.CloseRound(s.ctx, round.ID))

		err = s.service.SetAllowlist(s.ctx, round.ID, []id.AccountID{"alice"})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("unknown round is not found", func() {
		err := s.service.OpenRound(s.ctx, id.NewRoundID())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *MarketServiceSuite) TestBuy() {
	s.Run("escrows payment and creates a pending purchase", func() {
		s.onboard("alice")
		s.fund("alice", 1000)
		roundID := s.openRound(5, 500, 1000, "alice")

		purchase, err := s.service.Buy(s.ctx, roundID, "alice", 100)
		s.Require().NoError(err)
		s.Equal(PurchaseStatePending, purchase.State)
		s.Equal(uint64(20), purchase.AssetUnits)
		s.Equal(s.now.Add(48*time.Hour), purchase.SettlementDeadline)
		s.Equal(uint64(900), s.paymentBalance("alice"))
	})

	s.Run("rejects a buyer missing from the allowlist", func() {
		s.onboard("bob")
		s.fund("bob", 1000)
		roundID := s.openRound(5, 500, 1000, "alice")

		_, err := s.service.Buy(s.ctx, roundID, "bob", 100)
		s.True(dErrors.HasCode(err, dErrors.CodeComplianceRejected))
	})

	s.Run("rejects an unverified buyer", func() {
		roundID := s.openRound(5, 500, 1000, "mallory")
		s.fund("mallory", 1000)

		_, err := s.service.Buy(s.ctx, roundID, "mallory", 100)
		s.True(dErrors.HasCode(err, dErrors.CodeComplianceRejected))
	})

	s.Run("rejects payment not matching the price grid", func() {
		s.onboard("carol")
		s.fund("carol", 1000)
		roundID := s.openRound(7, 500, 1000, "carol")

		_, err := s.service.Buy(s.ctx, roundID, "carol", 100)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("rejects an insufficient payment balance", func() {
		s.onboard("dave")
		s.fund("dave", 50)
		roundID := s.openRound(5, 500, 1000, "dave")

		_, err := s.service.Buy(s.ctx, roundID, "dave", 100)
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientFunds))
	})

	s.Run("rejects buying into an unopened round", func() {
		s.onboard("erin")
		s.fund("erin", 1000)
		round, err := s.service.CreateRound(s.ctx, 5, 500, 1000)
		s.Require().NoError(err)
		s.Require().NoError(s.service.SetAllowlist(s.ctx, round.ID, []id.AccountID{"erin"}))

		_, err = s.service.Buy(s.ctx, round.ID, "erin", 100)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func (s *MarketServiceSuite) TestCaps() {
	s.Run("per-investor cap counts pending and settled exposure", func() {
		s.onboard("alice")
		s.fund("alice", 10000)
		roundID := s.openRound(5, 300, 1000, "alice")

		_, err := s.service.Buy(s.ctx, roundID, "alice", 200)
		s.Require().NoError(err)

		_, err = s.service.Buy(s.ctx, roundID, "alice", 200)
		s.True(dErrors.HasCode(err, dErrors.CodeCapExceeded))

		_, err = s.service.Buy(s.ctx, roundID, "alice", 100)
		s.NoError(err)
	})

	s.Run("total cap counts exposure across buyers", func() {
		s.onboard("alice", "bob")
		s.fund("alice", 10000)
		s.fund("bob", 10000)
		roundID := s.openRound(5, 400, 500, "alice", "bob")

		_, err := s.service.Buy(s.ctx, roundID, "alice", 400)
		s.Require().NoError(err)

		_, err = s.service.Buy(s.ctx, roundID, "bob", 200)
		s.True(dErrors.HasCode(err, dErrors.CodeCapExceeded))

		_, err = s.service.Buy(s.ctx, roundID, "bob", 100)
		s.NoError(err)
	})

	s.Run("an extreme payment cannot wrap the cap arithmetic", func() {
		s.onboard("carol")
		s.fund("carol", math.MaxUint64)
		roundID := s.openRound(1, 500, 500, "carol")

		_, err := s.service.Buy(s.ctx, roundID, "carol", 100)
		s.Require().NoError(err)

		// exposure + payment would overflow uint64 and slip under the cap if
		// the comparison summed naively.
		_, err = s.service.Buy(s.ctx, roundID, "carol", math.MaxUint64-50)
		s.True(dErrors.HasCode(err, dErrors.CodeCapExceeded))
	})

	s.Run("refund releases counted exposure", func() {
		s.onboard("alice")
		s.fund("alice", 10000)
		roundID := s.openRound(5, 300, 300, "alice")

		purchase, err := s.service.Buy(s.ctx, roundID, "alice", 300)
		s.Require().NoError(err)

		_, err = s.service.Buy(s.ctx, roundID, "alice", 100)
		s.True(dErrors.HasCode(err, dErrors.CodeCapExceeded))

		s.Require().NoError(s.service.Refund(s.ctx, purchase.ID, "oracle", true))

		_, err = s.service.Buy(s.ctx, roundID, "alice", 100)
		s.NoError(err)
	})
}

func (s *MarketServiceSuite) TestMarkSettled() {
	s.Run("settles before the deadline and delivers the asset", func() {
		s.onboard("alice")
		s.fund("alice", 1000)
		roundID := s.openRound(5, 500, 1000, "alice")
		purchase, err := s.service.Buy(s.ctx, roundID, "alice", 100)
		s.Require().NoError(err)

		s.Require().NoError(s.service.MarkSettled(s.ctx, purchase.ID))

		settled, err := s.service.GetPurchase(s.ctx, purchase.ID)
		s.Require().NoError(err)
		s.Equal(PurchaseStateSettled, settled.State)
		s.Equal(uint64(100), s.paymentBalance(treasury))

		held, err := s.ledgerSvc.BalanceOf(s.ctx, "alice")
		s.NoError(err)
		s.Equal(uint64(20), held)
	})

	s.Run("rejects settling after the deadline", func() {
		s.onboard("bob")
		s.fund("bob", 1000)
		roundID := s.openRound(5, 500, 1000, "bob")
		purchase, err := s.service.Buy(s.ctx, roundID, "bob", 100)
		s.Require().NoError(err)

		err = s.service.MarkSettled(s.at(72*time.Hour), purchase.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("lockup at settlement time leaves the purchase pending", func() {
		s.onboard("carol")
		s.fund("carol", 1000)
		roundID := s.openRound(5, 500, 1000, "carol")
		purchase, err := s.service.Buy(s.ctx, roundID, "carol", 100)
		s.Require().NoError(err)
		treasuryBefore := s.paymentBalance(treasury)

		s.Require().NoError(s.engine.SetLockup(s.ctx, "carol", s.now.Add(time.Hour)))
		err = s.service.MarkSettled(s.ctx, purchase.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeComplianceRejected))

		pending, err := s.service.GetPurchase(s.ctx, purchase.ID)
		s.Require().NoError(err)
		s.Equal(PurchaseStatePending, pending.State)
		s.Equal(treasuryBefore, s.paymentBalance(treasury))

		// Lockup expiry unblocks the retry.
		s.Require().NoError(s.service.MarkSettled(s.at(2*time.Hour), purchase.ID))
	})

	s.Run("terminal purchases are write once", func() {
		s.onboard("dave")
		s.fund("dave", 1000)
		roundID := s.openRound(5, 500, 1000, "dave")
		purchase, err := s.service.Buy(s.ctx, roundID, "dave", 100)
		s.Require().NoError(err)

		s.Require().NoError(s.service.MarkSettled(s.ctx, purchase.ID))

		err = s.service.MarkSettled(s.ctx, purchase.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))

		err = s.service.Refund(s.ctx, purchase.ID, "oracle", true)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func (s *MarketServiceSuite) TestRefund() {
	s.Run("oracle may refund at any time", func() {
		s.onboard("alice")
		s.fund("alice", 1000)
		roundID := s.openRound(5, 500, 1000, "alice")
		purchase, err := s.service.Buy(s.ctx, roundID, "alice", 100)
		s.Require().NoError(err)

		s.Require().NoError(s.service.Refund(s.ctx, purchase.ID, "oracle", true))
		s.Equal(uint64(1000), s.paymentBalance("alice"))

		refunded, err := s.service.GetPurchase(s.ctx, purchase.ID)
		s.Require().NoError(err)
		s.Equal(PurchaseStateRefunded, refunded.State)
	})

	s.Run("buyer must wait for the deadline", func() {
		s.onboard("bob")
		s.fund("bob", 1000)
		roundID := s.openRound(5, 500, 1000, "bob")
		purchase, err := s.service.Buy(s.ctx, roundID, "bob", 100)
		s.Require().NoError(err)

		err = s.service.Refund(s.ctx, purchase.ID, "bob", false)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))

		s.Require().NoError(s.service.Refund(s.at(49*time.Hour), purchase.ID, "bob", false))
		s.Equal(uint64(1000), s.paymentBalance("bob"))
	})

	s.Run("only the buyer may self-refund", func() {
		s.onboard("carol")
		s.fund("carol", 1000)
		roundID := s.openRound(5, 500, 1000, "carol")
		purchase, err := s.service.Buy(s.ctx, roundID, "carol", 100)
		s.Require().NoError(err)

		err = s.service.Refund(s.at(49*time.Hour), purchase.ID, "mallory", false)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("pending purchases survive a round close", func() {
		s.onboard("dave")
		s.fund("dave", 1000)
		roundID := s.openRound(5, 500, 1000, "dave")
		purchase, err := s.service.Buy(s.ctx, roundID, "dave", 100)
		s.Require().NoError(err)

		s.Require().NoError(s.service.CloseRound(s.ctx, roundID))
		s.Require().NoError(s.service.MarkSettled(s.ctx, purchase.ID))
	})
}

func (s *MarketServiceSuite) TestFundPayment() {
	s.Run("credits the payment balance", func() {
		s.fund("alice", 300)
		s.fund("alice", 200)
		s.Equal(uint64(500), s.paymentBalance("alice"))
	})

	s.Run("rejects a zero amount", func() {
		err := s.service.FundPayment(s.ctx, "alice", 0)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("rejects a credit that would overflow the balance", func() {
		s.fund("bob", math.MaxUint64)
		err := s.service.FundPayment(s.ctx, "bob", 1)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
		s.Equal(uint64(math.MaxUint64), s.paymentBalance("bob"))
	})
}
