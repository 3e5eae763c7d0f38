package ledger

import (
	"context"

	"equilex/internal/outbox"
	id "equilex/pkg/domain"
	dErrors "equilex/pkg/domain-errors"
)

// CompliancePolicy is the gate every balance-changing operation consults
// before applying, plus the hooks notified after it succeeds. Satisfied by the
// compliance engine.
type CompliancePolicy interface {
	CanTransfer(ctx context.Context, from, to id.AccountID, amount uint64) error
	OnCreated(ctx context.Context, to id.AccountID, amount uint64) error
	OnDestroyed(ctx context.Context, from id.AccountID, amount uint64) error
	OnTransferred(ctx context.Context, from, to id.AccountID, amount uint64) error
}

// Store persists balances and freeze state.
type Store interface {
	Balance(ctx context.Context, account id.AccountID) (uint64, error)
	SetBalance(ctx context.Context, account id.AccountID, balance uint64) error
	TotalSupply(ctx context.Context) (uint64, error)
	SetTotalSupply(ctx context.Context, supply uint64) error
	Freeze(ctx context.Context, account id.AccountID) (FreezeState, error)
	SaveFreeze(ctx context.Context, freeze FreezeState) error
}

// Service is the compliance-gated token ledger. Every mutation consults the
// compliance policy first; on rejection nothing changes. On success balances
// update, the matching hook fires, and an event is staged before returning.
type Service struct {
	store  Store
	policy CompliancePolicy
	events outbox.Emitter
}

func NewService(store Store, policy CompliancePolicy, events outbox.Emitter) *Service {
	return &Service{store: store, policy: policy, events: events}
}

// Transfer moves tokens between accounts, enforcing both the compliance
// policy and the sender-side freeze policy.
func (s *Service) Transfer(ctx context.Context, from, to id.AccountID, amount uint64) error {
	if err := requireParties(from, to, amount); err != nil {
		return err
	}
	if err := s.policy.CanTransfer(ctx, from, to, amount); err != nil {
		return err
	}

	freeze, err := s.store.Freeze(ctx, from)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load freeze state")
	}
	if freeze.FullyFrozen {
		return dErrors.New(dErrors.CodeAccountFrozen, "sender account is frozen")
	}

	balance, err := s.store.Balance(ctx, from)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load balance")
	}
	if balance < amount {
		return dErrors.New(dErrors.CodeInsufficientFunds, "sender balance is insufficient")
	}
	if balance-freeze.PartialAmount < amount {
		return dErrors.New(dErrors.CodeInsufficientUnfrozenBalance, "amount exceeds unfrozen balance")
	}

	if err := s.move(ctx, from, to, amount, balance); err != nil {
		return err
	}
	if err := s.policy.OnTransferred(ctx, from, to, amount); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "transfer hook failed")
	}

	s.events.Emit(ctx, outbox.Event{Kind: outbox.KindTransfer, From: from, To: to, Amount: amount})
	return nil
}

// ForcedTransfer moves tokens regardless of the sender's freeze state. The
// compliance policy still applies. Partial freezes are clamped down so they
// never exceed the remaining balance.
func (s *Service) ForcedTransfer(ctx context.Context, from, to id.AccountID, amount uint64) error {
	if err := requireParties(from, to, amount); err != nil {
		return err
	}
	if err := s.policy.CanTransfer(ctx, from, to, amount); err != nil {
		return err
	}

	balance, err := s.store.Balance(ctx, from)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load balance")
	}
	if balance < amount {
		return dErrors.New(dErrors.CodeInsufficientFunds, "sender balance is insufficient")
	}

	if err := s.move(ctx, from, to, amount, balance); err != nil {
		return err
	}
	if err := s.clampPartialFreeze(ctx, from, balance-amount); err != nil {
		return err
	}
	if err := s.policy.OnTransferred(ctx, from, to, amount); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "transfer hook failed")
	}

	s.events.Emit(ctx, outbox.Event{Kind: outbox.KindTransfer, From: from, To: to, Amount: amount})
	return nil
}

// Mint creates tokens for a recipient that passes the mint-path compliance
// rules.
func (s *Service) Mint(ctx context.Context, to id.AccountID, amount uint64) error {
	if to.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "recipient is required")
	}
	if amount == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "amount must be positive")
	}
	if err := s.policy.CanTransfer(ctx, "", to, amount); err != nil {
		return err
	}

	balance, err := s.store.Balance(ctx, to)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load balance")
	}
	supply, err := s.store.TotalSupply(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load total supply")
	}
	if err := s.store.SetBalance(ctx, to, balance+amount); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to credit balance")
	}
	if err := s.store.SetTotalSupply(ctx, supply+amount); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update total supply")
	}
	if err := s.policy.OnCreated(ctx, to, amount); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "mint hook failed")
	}

	s.events.Emit(ctx, outbox.Event{Kind: outbox.KindMint, To: to, Amount: amount})
	return nil
}

// Burn destroys tokens held by a verified account.
func (s *Service) Burn(ctx context.Context, from id.AccountID, amount uint64) error {
	if from.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "holder is required")
	}
	if amount == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "amount must be positive")
	}
	if err := s.policy.CanTransfer(ctx, from, "", amount); err != nil {
		return err
	}

	balance, err := s.store.Balance(ctx, from)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load balance")
	}
	if balance < amount {
		return dErrors.New(dErrors.CodeInsufficientFunds, "holder balance is insufficient")
	}
	supply, err := s.store.TotalSupply(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load total supply")
	}
	if err := s.store.SetBalance(ctx, from, balance-amount); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to debit balance")
	}
	if err := s.store.SetTotalSupply(ctx, supply-amount); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update total supply")
	}
	if err := s.clampPartialFreeze(ctx, from, balance-amount); err != nil {
		return err
	}
	if err := s.policy.OnDestroyed(ctx, from, amount); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "burn hook failed")
	}

	s.events.Emit(ctx, outbox.Event{Kind: outbox.KindBurn, From: from, Amount: amount})
	return nil
}

// SetFrozen flips the full freeze flag for an account.
func (s *Service) SetFrozen(ctx context.Context, account id.AccountID, frozen bool) error {
	if account.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "account is required")
	}
	freeze, err := s.store.Freeze(ctx, account)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load freeze state")
	}
	freeze.FullyFrozen = frozen
	if err := s.store.SaveFreeze(ctx, freeze); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save freeze state")
	}

	s.events.Emit(ctx, outbox.Event{Kind: outbox.KindFreezeChanged, Account: account, Frozen: &frozen})
	return nil
}

// FreezePartial sets the partially frozen amount for an account. The amount
// may never exceed the current balance.
func (s *Service) FreezePartial(ctx context.Context, account id.AccountID, amount uint64) error {
	if account.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "account is required")
	}
	balance, err := s.store.Balance(ctx, account)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load balance")
	}
	if amount > balance {
		return dErrors.New(dErrors.CodeInvariantViolation, "partial freeze cannot exceed balance")
	}
	freeze, err := s.store.Freeze(ctx, account)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load freeze state")
	}
	freeze.PartialAmount = amount
	if err := s.store.SaveFreeze(ctx, freeze); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save freeze state")
	}

	frozen := freeze.FullyFrozen
	s.events.Emit(ctx, outbox.Event{Kind: outbox.KindFreezeChanged, Account: account, Amount: amount, Frozen: &frozen})
	return nil
}

// BalanceOf returns the balance for an account.
func (s *Service) BalanceOf(ctx context.Context, account id.AccountID) (uint64, error) {
	return s.store.Balance(ctx, account)
}

// TotalSupply returns the aggregate token supply.
func (s *Service) TotalSupply(ctx context.Context) (uint64, error) {
	return s.store.TotalSupply(ctx)
}

// FreezeOf returns the freeze state for an account.
func (s *Service) FreezeOf(ctx context.Context, account id.AccountID) (FreezeState, error) {
	return s.store.Freeze(ctx, account)
}

func (s *Service) move(ctx context.Context, from, to id.AccountID, amount, fromBalance uint64) error {
	toBalance, err := s.store.Balance(ctx, to)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load balance")
	}
	if err := s.store.SetBalance(ctx, from, fromBalance-amount); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to debit balance")
	}
	if err := s.store.SetBalance(ctx, to, toBalance+amount); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to credit balance")
	}
	return nil
}

func (s *Service) clampPartialFreeze(ctx context.Context, account id.AccountID, newBalance uint64) error {
	freeze, err := s.store.Freeze(ctx, account)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load freeze state")
	}
	if freeze.PartialAmount <= newBalance {
		return nil
	}
	freeze.PartialAmount = newBalance
	if err := s.store.SaveFreeze(ctx, freeze); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save freeze state")
	}
	return nil
}

func requireParties(from, to id.AccountID, amount uint64) error {
	if from.IsNil() || to.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "sender and recipient are required")
	}
	if from == to {
		return dErrors.New(dErrors.CodeBadRequest, "sender and recipient must differ")
	}
	if amount == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "amount must be positive")
	}
	return nil
}
