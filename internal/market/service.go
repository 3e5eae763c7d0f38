package market

import (
	"context"
	"errors"
	"math"
	"time"

	marketmetrics "equilex/internal/market/metrics"
	"equilex/internal/outbox"
	id "equilex/pkg/domain"
	dErrors "equilex/pkg/domain-errors"
	"equilex/pkg/platform/sentinel"
	"equilex/pkg/requestcontext"
)

// ComplianceGate is the slice of the compliance engine the market consults:
// investor checks at buy time. Settlement-time policy is enforced by the asset
// ledger itself when the asset leg is delivered.
type ComplianceGate interface {
	CheckInvestor(ctx context.Context, account id.AccountID) error
}

// AssetLedger delivers the asset leg on settlement.
type AssetLedger interface {
	Mint(ctx context.Context, to id.AccountID, amount uint64) error
}

// Store persists rounds, purchases, and payment balances.
type Store interface {
	SaveRound(ctx context.Context, round Round) error
	FindRound(ctx context.Context, roundID id.RoundID) (Round, error)
	SavePurchase(ctx context.Context, purchase Purchase) error
	FindPurchase(ctx context.Context, purchaseID id.PurchaseID) (Purchase, error)
	SumRoundExposure(ctx context.Context, roundID id.RoundID) (uint64, error)
	SumBuyerExposure(ctx context.Context, roundID id.RoundID, buyer id.AccountID) (uint64, error)
	PaymentBalance(ctx context.Context, account id.AccountID) (uint64, error)
	SetPaymentBalance(ctx context.Context, account id.AccountID, balance uint64) error
}

// Service runs the private-round escrow lifecycle: rounds, escrowed
// purchases, oracle-confirmed settlement, and deadline-based refunds.
type Service struct {
	store             Store
	gate              ComplianceGate
	ledger            AssetLedger
	events            outbox.Emitter
	metrics           *marketmetrics.Metrics
	treasury          id.AccountID
	settlementTimeout time.Duration
}

// Option configures the service.
type Option func(*Service)

// WithMetrics sets the metrics collector.
func WithMetrics(m *marketmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithSettlementTimeout overrides the default settlement window.
func WithSettlementTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.settlementTimeout = d
		}
	}
}

const defaultSettlementTimeout = 72 * time.Hour

func NewService(store Store, gate ComplianceGate, ledger AssetLedger, events outbox.Emitter, treasury id.AccountID, opts ...Option) *Service {
	s := &Service{
		store:             store,
		gate:              gate,
		ledger:            ledger,
		events:            events,
		treasury:          treasury,
		settlementTimeout: defaultSettlementTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRound starts a new round in CREATED.
func (s *Service) CreateRound(ctx context.Context, price, perInvestorCap, totalCap uint64) (*Round, error) {
	now := requestcontext.Now(ctx)
	round, err := NewRound(id.NewRoundID(), price, perInvestorCap, totalCap, now)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveRound(ctx, *round); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save round")
	}

	s.events.Emit(ctx, outbox.Event{Kind: outbox.KindRoundCreated, RoundID: round.ID, Amount: totalCap})
	if s.metrics != nil {
		s.metrics.RoundsCreated.Inc()
	}
	return round, nil
}

// SetAllowlist replaces the round's allowlist. Only usable before close.
func (s *Service) SetAllowlist(ctx context.Context, roundID id.RoundID, accounts []id.AccountID) error {
	round, err := s.findRound(ctx, roundID)
	if err != nil {
		return err
	}
	if round.State == RoundStateClosed {
		return dErrors.New(dErrors.CodeInvalidState, "allowlist cannot change on a closed round")
	}

	allowlist := make(map[id.AccountID]bool, len(accounts))
	for _, account := range accounts {
		if account.IsNil() {
			return dErrors.New(dErrors.CodeBadRequest, "allowlist accounts must be non-empty")
		}
		allowlist[account] = true
	}
	round.Allowlist = allowlist
	round.UpdatedAt = requestcontext.Now(ctx)
	if err := s.store.SaveRound(ctx, round); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save round")
	}
	return nil
}

// OpenRound transitions CREATED→OPEN.
func (s *Service) OpenRound(ctx context.Context, roundID id.RoundID) error {
	round, err := s.findRound(ctx, roundID)
	if err != nil {
		return err
	}
	if err := round.CanOpen(); err != nil {
		return err
	}
	round.ApplyOpen(requestcontext.Now(ctx))
	if err := s.store.SaveRound(ctx, round); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save round")
	}

	s.events.Emit(ctx, outbox.Event{Kind: outbox.KindRoundOpened, RoundID: roundID})
	return nil
}

// CloseRound transitions OPEN→CLOSED. Pending purchases remain resolvable.
func (s *Service) CloseRound(ctx context.Context, roundID id.RoundID) error {
	round, err := s.findRound(ctx, roundID)
	if err != nil {
		return err
	}
	if err := round.CanClose(); err != nil {
		return err
	}
	round.ApplyClose(requestcontext.Now(ctx))
	if err := s.store.SaveRound(ctx, round); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save round")
	}

	s.events.Emit(ctx, outbox.Event{Kind: outbox.KindRoundClosed, RoundID: roundID})
	return nil
}

// Buy escrows a payment against an open round and creates a PENDING purchase
// with a settlement deadline.
func (s *Service) Buy(ctx context.Context, roundID id.RoundID, buyer id.AccountID, payment uint64) (*Purchase, error) {
	if buyer.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "buyer is required")
	}
	if payment == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "payment must be positive")
	}

	round, err := s.findRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if round.State != RoundStateOpen {
		return nil, dErrors.Newf(dErrors.CodeInvalidState, "round is %s, purchases require an open round", round.State)
	}
	if !round.IsAllowlisted(buyer) {
		return nil, dErrors.New(dErrors.CodeComplianceRejected, "buyer is not on the round allowlist")
	}
	if err := s.gate.CheckInvestor(ctx, buyer); err != nil {
		return nil, err
	}
	if payment%round.Price != 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "payment must be a multiple of the round price")
	}

	buyerExposure, err := s.store.SumBuyerExposure(ctx, roundID, buyer)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sum buyer exposure")
	}
	// cap-payment form so the sums cannot wrap at uint64 extremes.
	if payment > round.PerInvestorCap || buyerExposure > round.PerInvestorCap-payment {
		return nil, dErrors.New(dErrors.CodeCapExceeded, "purchase would exceed the per-investor cap")
	}
	roundExposure, err := s.store.SumRoundExposure(ctx, roundID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sum round exposure")
	}
	if payment > round.TotalCap || roundExposure > round.TotalCap-payment {
		return nil, dErrors.New(dErrors.CodeCapExceeded, "purchase would exceed the round total cap")
	}

	balance, err := s.store.PaymentBalance(ctx, buyer)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load payment balance")
	}
	if balance < payment {
		return nil, dErrors.New(dErrors.CodeInsufficientFunds, "buyer payment balance is insufficient")
	}
	if err := s.store.SetPaymentBalance(ctx, buyer, balance-payment); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to debit payment balance")
	}

	now := requestcontext.Now(ctx)
	purchase := Purchase{
		ID:                 id.NewPurchaseID(),
		RoundID:            roundID,
		Buyer:              buyer,
		Escrowed:           payment,
		AssetUnits:         payment / round.Price,
		State:              PurchaseStatePending,
		CreatedAt:          now,
		SettlementDeadline: now.Add(s.settlementTimeout),
	}
	if err := s.store.SavePurchase(ctx, purchase); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save purchase")
	}

	s.events.Emit(ctx, outbox.Event{
		Kind:       outbox.KindPurchaseCreated,
		RoundID:    roundID,
		PurchaseID: purchase.ID,
		Account:    buyer,
		Amount:     payment,
	})
	if s.metrics != nil {
		s.metrics.PurchasesCreated.Inc()
		s.metrics.EscrowedTotal.Add(float64(payment))
	}
	return &purchase, nil
}

// MarkSettled confirms off-asset delivery: releases escrow to the treasury and
// delivers the asset leg through the compliance-gated ledger. A compliance
// rejection leaves the purchase PENDING so it can be retried or refunded.
func (s *Service) MarkSettled(ctx context.Context, purchaseID id.PurchaseID) error {
	purchase, err := s.findPurchase(ctx, purchaseID)
	if err != nil {
		return err
	}
	now := requestcontext.Now(ctx)
	if err := purchase.CanSettle(now); err != nil {
		return err
	}

	// Market state can change between purchase and settlement: lockups and
	// authorization are re-checked here through the ledger's compliance gate.
	if err := s.ledger.Mint(ctx, purchase.Buyer, purchase.AssetUnits); err != nil {
		return err
	}

	treasuryBalance, err := s.store.PaymentBalance(ctx, s.treasury)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load treasury balance")
	}
	if err := s.store.SetPaymentBalance(ctx, s.treasury, treasuryBalance+purchase.Escrowed); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to credit treasury")
	}

	purchase.ApplySettle()
	if err := s.store.SavePurchase(ctx, purchase); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save purchase")
	}

	s.events.Emit(ctx, outbox.Event{
		Kind:       outbox.KindPurchaseSettled,
		RoundID:    purchase.RoundID,
		PurchaseID: purchase.ID,
		Account:    purchase.Buyer,
		Amount:     purchase.Escrowed,
	})
	if s.metrics != nil {
		s.metrics.PurchasesSettled.Inc()
	}
	return nil
}

// Refund returns escrow to the buyer and releases the round capacity the
// purchase was counting against. The oracle may refund at any time; the buyer
// only once the settlement deadline has passed.
func (s *Service) Refund(ctx context.Context, purchaseID id.PurchaseID, caller id.AccountID, asOracle bool) error {
	purchase, err := s.findPurchase(ctx, purchaseID)
	if err != nil {
		return err
	}
	if err := purchase.CanRefund(); err != nil {
		return err
	}

	now := requestcontext.Now(ctx)
	if !asOracle {
		if caller != purchase.Buyer {
			return dErrors.New(dErrors.CodeUnauthorized, "only the buyer may request a refund")
		}
		if !now.After(purchase.SettlementDeadline) {
			return dErrors.New(dErrors.CodeInvalidState, "settlement window is still open")
		}
	}

	balance, err := s.store.PaymentBalance(ctx, purchase.Buyer)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load payment balance")
	}
	if err := s.store.SetPaymentBalance(ctx, purchase.Buyer, balance+purchase.Escrowed); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to credit payment balance")
	}

	purchase.ApplyRefund()
	if err := s.store.SavePurchase(ctx, purchase); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save purchase")
	}

	s.events.Emit(ctx, outbox.Event{
		Kind:       outbox.KindPurchaseRefunded,
		RoundID:    purchase.RoundID,
		PurchaseID: purchase.ID,
		Account:    purchase.Buyer,
		Amount:     purchase.Escrowed,
	})
	if s.metrics != nil {
		s.metrics.PurchasesRefunded.Inc()
	}
	return nil
}

// FundPayment credits an account's settlement-asset balance, mirroring a
// deposit recorded by the back office.
func (s *Service) FundPayment(ctx context.Context, account id.AccountID, amount uint64) error {
	if account.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "account is required")
	}
	if amount == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "amount must be positive")
	}
	balance, err := s.store.PaymentBalance(ctx, account)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load payment balance")
	}
	if amount > math.MaxUint64-balance {
		return dErrors.New(dErrors.CodeInvariantViolation, "payment balance would overflow")
	}
	if err := s.store.SetPaymentBalance(ctx, account, balance+amount); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to credit payment balance")
	}

	s.events.Emit(ctx, outbox.Event{Kind: outbox.KindPaymentFunded, Account: account, Amount: amount})
	return nil
}

// GetRound returns a round by ID.
func (s *Service) GetRound(ctx context.Context, roundID id.RoundID) (*Round, error) {
	round, err := s.findRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	return &round, nil
}

// GetPurchase returns a purchase by ID.
func (s *Service) GetPurchase(ctx context.Context, purchaseID id.PurchaseID) (*Purchase, error) {
	purchase, err := s.findPurchase(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	return &purchase, nil
}

// PaymentBalanceOf returns the settlement-asset balance for an account.
func (s *Service) PaymentBalanceOf(ctx context.Context, account id.AccountID) (uint64, error) {
	return s.store.PaymentBalance(ctx, account)
}

func (s *Service) findRound(ctx context.Context, roundID id.RoundID) (Round, error) {
	round, err := s.store.FindRound(ctx, roundID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Round{}, dErrors.New(dErrors.CodeNotFound, "round not found")
		}
		return Round{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load round")
	}
	return round, nil
}

func (s *Service) findPurchase(ctx context.Context, purchaseID id.PurchaseID) (Purchase, error) {
	purchase, err := s.store.FindPurchase(ctx, purchaseID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Purchase{}, dErrors.New(dErrors.CodeNotFound, "purchase not found")
		}
		return Purchase{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load purchase")
	}
	return purchase, nil
}
