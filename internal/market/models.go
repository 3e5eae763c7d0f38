package market

import (
	"time"

	id "equilex/pkg/domain"
	dErrors "equilex/pkg/domain-errors"
)

// RoundState is the lifecycle state of a primary-issuance round.
type RoundState string

const (
	RoundStateCreated RoundState = "created"
	RoundStateOpen    RoundState = "open"
	RoundStateClosed  RoundState = "closed"
)

// Round is the aggregate root for a private primary-issuance round.
//
// Invariants:
//   - Price, PerInvestorCap, and TotalCap are positive
//   - transitions are CREATED→OPEN→CLOSED only, one-way
//   - total escrowed across PENDING and SETTLED purchases never exceeds TotalCap
//   - purchases already PENDING may still resolve after close
type Round struct {
	ID             id.RoundID            `json:"id"`
	Price          uint64                `json:"price"`
	PerInvestorCap uint64                `json:"per_investor_cap"`
	TotalCap       uint64                `json:"total_cap"`
	Allowlist      map[id.AccountID]bool `json:"allowlist"`
	State          RoundState            `json:"state"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

func NewRound(roundID id.RoundID, price, perInvestorCap, totalCap uint64, now time.Time) (*Round, error) {
	if price == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "price must be positive")
	}
	if perInvestorCap == 0 || totalCap == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "caps must be positive")
	}
	if perInvestorCap > totalCap {
		return nil, dErrors.New(dErrors.CodeBadRequest, "per-investor cap cannot exceed total cap")
	}
	return &Round{
		ID:             roundID,
		Price:          price,
		PerInvestorCap: perInvestorCap,
		TotalCap:       totalCap,
		Allowlist:      make(map[id.AccountID]bool),
		State:          RoundStateCreated,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// CanOpen checks the CREATED→OPEN transition.
func (r *Round) CanOpen() error {
	if r.State != RoundStateCreated {
		return dErrors.Newf(dErrors.CodeInvalidState, "round is %s, only created rounds can open", r.State)
	}
	return nil
}

// ApplyOpen transitions the round to OPEN. Call CanOpen first.
func (r *Round) ApplyOpen(now time.Time) {
	r.State = RoundStateOpen
	r.UpdatedAt = now
}

// CanClose checks the OPEN→CLOSED transition.
func (r *Round) CanClose() error {
	if r.State != RoundStateOpen {
		return dErrors.Newf(dErrors.CodeInvalidState, "round is %s, only open rounds can close", r.State)
	}
	return nil
}

// ApplyClose transitions the round to CLOSED. Call CanClose first.
func (r *Round) ApplyClose(now time.Time) {
	r.State = RoundStateClosed
	r.UpdatedAt = now
}

// IsAllowlisted reports whether the account may buy into this round.
func (r *Round) IsAllowlisted(account id.AccountID) bool {
	return r.Allowlist[account]
}

// PurchaseState is the lifecycle state of an escrowed purchase.
type PurchaseState string

const (
	PurchaseStatePending  PurchaseState = "pending"
	PurchaseStateSettled  PurchaseState = "settled"
	PurchaseStateRefunded PurchaseState = "refunded"
)

// Terminal reports whether the state admits no further transitions.
func (s PurchaseState) Terminal() bool {
	return s == PurchaseStateSettled || s == PurchaseStateRefunded
}

// Purchase is an escrowed buy into a round.
//
// Invariants:
//   - transitions are PENDING→SETTLED or PENDING→REFUNDED only, never both,
//     never reversed; terminal records are immutable audit history
//   - per-buyer cumulative escrow across PENDING and SETTLED purchases in a
//     round never exceeds the round's per-investor cap
type Purchase struct {
	ID                 id.PurchaseID `json:"id"`
	RoundID            id.RoundID    `json:"round_id"`
	Buyer              id.AccountID  `json:"buyer"`
	Escrowed           uint64        `json:"escrowed"`
	AssetUnits         uint64        `json:"asset_units"`
	State              PurchaseState `json:"state"`
	CreatedAt          time.Time     `json:"created_at"`
	SettlementDeadline time.Time     `json:"settlement_deadline"`
}

// CanSettle checks the PENDING→SETTLED transition at the given time.
func (p *Purchase) CanSettle(now time.Time) error {
	if p.State.Terminal() {
		return dErrors.Newf(dErrors.CodeInvalidState, "purchase is already %s", p.State)
	}
	if now.After(p.SettlementDeadline) {
		return dErrors.New(dErrors.CodeInvalidState, "settlement window has closed")
	}
	return nil
}

// ApplySettle transitions the purchase to SETTLED. Call CanSettle first.
func (p *Purchase) ApplySettle() {
	p.State = PurchaseStateSettled
}

// CanRefund checks the PENDING→REFUNDED transition.
func (p *Purchase) CanRefund() error {
	if p.State.Terminal() {
		return dErrors.Newf(dErrors.CodeInvalidState, "purchase is already %s", p.State)
	}
	return nil
}

// ApplyRefund transitions the purchase to REFUNDED. Call CanRefund first.
func (p *Purchase) ApplyRefund() {
	p.State = PurchaseStateRefunded
}
