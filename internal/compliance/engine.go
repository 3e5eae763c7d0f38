package compliance

import (
	"context"
	"time"

	id "equilex/pkg/domain"
	dErrors "equilex/pkg/domain-errors"
	"equilex/pkg/requestcontext"
)

// VerificationSource answers whether an account holds a verified identity
// record. Satisfied by the identity service.
type VerificationSource interface {
	IsVerified(ctx context.Context, account id.AccountID) bool
}

// Store persists the engine's own compliance state.
type Store interface {
	SaveAuthorization(ctx context.Context, auth Authorization) error
	FindAuthorization(ctx context.Context, account id.AccountID) (Authorization, error)
	SaveTrustedPair(ctx context.Context, a, b id.AccountID) error
	IsTrustedPair(ctx context.Context, a, b id.AccountID) (bool, error)
	AddHoldings(ctx context.Context, account id.AccountID, delta int64) error
	Holdings(ctx context.Context, account id.AccountID) (uint64, error)
}

// Engine evaluates the transfer-compliance policy. The goal is to keep the
// rules centralized and testable; the ledger and the market consult it before
// every asset movement.
type Engine struct {
	identity VerificationSource
	store    Store
}

func NewEngine(identity VerificationSource, store Store) *Engine {
	return &Engine{identity: identity, store: store}
}

// CanTransfer checks the transfer policy for a prospective movement. Mint uses
// an empty from; burn uses an empty to. Pure: no state is touched.
//
// Rules evaluate in order and short-circuit on the first failure:
//  1. the relevant parties must be verified
//  2. unless (from, to) is a trusted counterparty pair, to must be authorized
//  3. unless trusted, to must be outside its lockup window
//  4. mint additionally requires to to be authorized and verified, with no
//     trusted-counterparty bypass
func (e *Engine) CanTransfer(ctx context.Context, from, to id.AccountID, amount uint64) error {
	now := requestcontext.Now(ctx)

	switch {
	case from.IsNil() && to.IsNil():
		return dErrors.New(dErrors.CodeBadRequest, "transfer requires at least one party")
	case from.IsNil():
		return e.checkMint(ctx, to, now)
	case to.IsNil():
		return e.checkBurn(ctx, from)
	default:
		return e.checkTransfer(ctx, from, to, now)
	}
}

func (e *Engine) checkMint(ctx context.Context, to id.AccountID, now time.Time) error {
	if !e.identity.IsVerified(ctx, to) {
		return dErrors.New(dErrors.CodeComplianceRejected, "recipient is not verified")
	}
	auth, err := e.store.FindAuthorization(ctx, to)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load authorization")
	}
	if !auth.Authorized {
		return dErrors.New(dErrors.CodeComplianceRejected, "recipient is not an authorized investor")
	}
	if auth.InLockup(now) {
		return dErrors.New(dErrors.CodeComplianceRejected, "recipient is inside its lockup window")
	}
	return nil
}

func (e *Engine) checkBurn(ctx context.Context, from id.AccountID) error {
	if !e.identity.IsVerified(ctx, from) {
		return dErrors.New(dErrors.CodeComplianceRejected, "holder is not verified")
	}
	return nil
}

func (e *Engine) checkTransfer(ctx context.Context, from, to id.AccountID, now time.Time) error {
	if !e.identity.IsVerified(ctx, from) {
		return dErrors.New(dErrors.CodeComplianceRejected, "sender is not verified")
	}
	if !e.identity.IsVerified(ctx, to) {
		return dErrors.New(dErrors.CodeComplianceRejected, "recipient is not verified")
	}

	trusted, err := e.store.IsTrustedPair(ctx, from, to)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check trusted pair")
	}
	if trusted {
		return nil
	}

	auth, err := e.store.FindAuthorization(ctx, to)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load authorization")
	}
	if !auth.Authorized {
		return dErrors.New(dErrors.CodeComplianceRejected, "recipient is not an authorized investor")
	}
	if auth.InLockup(now) {
		return dErrors.New(dErrors.CodeComplianceRejected, "recipient is inside its lockup window")
	}
	return nil
}

// OnCreated is called after a successful mint to update aggregate holdings.
func (e *Engine) OnCreated(ctx context.Context, to id.AccountID, amount uint64) error {
	return e.store.AddHoldings(ctx, to, int64(amount))
}

// OnDestroyed is called after a successful burn.
func (e *Engine) OnDestroyed(ctx context.Context, from id.AccountID, amount uint64) error {
	return e.store.AddHoldings(ctx, from, -int64(amount))
}

// OnTransferred is called after a successful transfer.
func (e *Engine) OnTransferred(ctx context.Context, from, to id.AccountID, amount uint64) error {
	if err := e.store.AddHoldings(ctx, from, -int64(amount)); err != nil {
		return err
	}
	return e.store.AddHoldings(ctx, to, int64(amount))
}

// SetAuthorized flips the investor authorization flag for an account.
func (e *Engine) SetAuthorized(ctx context.Context, account id.AccountID, authorized bool) error {
	if account.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "account is required")
	}
	auth, err := e.store.FindAuthorization(ctx, account)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load authorization")
	}
	auth.Authorized = authorized
	if err := e.store.SaveAuthorization(ctx, auth); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save authorization")
	}
	return nil
}

// SetLockup sets the absolute timestamp before which the account may not
// receive the asset outside trusted-counterparty transfers.
func (e *Engine) SetLockup(ctx context.Context, account id.AccountID, until time.Time) error {
	if account.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "account is required")
	}
	auth, err := e.store.FindAuthorization(ctx, account)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load authorization")
	}
	auth.LockupUntil = until
	if err := e.store.SaveAuthorization(ctx, auth); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save authorization")
	}
	return nil
}

// AddTrustedCounterparty registers an unordered account pair exempt from
// authorization and lockup checks. Verification is never exempted.
func (e *Engine) AddTrustedCounterparty(ctx context.Context, a, b id.AccountID) error {
	if a.IsNil() || b.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "both accounts are required")
	}
	if a == b {
		return dErrors.New(dErrors.CodeBadRequest, "counterparty pair must be two distinct accounts")
	}
	if err := e.store.SaveTrustedPair(ctx, a, b); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save trusted pair")
	}
	return nil
}

// CheckInvestor verifies an account is both verified and authorized. The
// market uses it to gate purchases at buy time.
func (e *Engine) CheckInvestor(ctx context.Context, account id.AccountID) error {
	if !e.identity.IsVerified(ctx, account) {
		return dErrors.New(dErrors.CodeComplianceRejected, "buyer is not verified")
	}
	auth, err := e.store.FindAuthorization(ctx, account)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load authorization")
	}
	if !auth.Authorized {
		return dErrors.New(dErrors.CodeComplianceRejected, "buyer is not an authorized investor")
	}
	return nil
}

// IsAuthorized reports the authorization flag for an account.
func (e *Engine) IsAuthorized(ctx context.Context, account id.AccountID) (bool, error) {
	auth, err := e.store.FindAuthorization(ctx, account)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load authorization")
	}
	return auth.Authorized, nil
}
