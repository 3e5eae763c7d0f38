package identity

import (
	"context"
	"errors"

	"equilex/internal/outbox"
	id "equilex/pkg/domain"
	dErrors "equilex/pkg/domain-errors"
	"equilex/pkg/platform/sentinel"
)

// Store persists identity records.
type Store interface {
	Save(ctx context.Context, record Record) error
	Find(ctx context.Context, account id.AccountID) (Record, error)
	Delete(ctx context.Context, account id.AccountID) error
}

// Service records verification outcomes delivered by the external identity
// authority. It never adjudicates KYC itself.
type Service struct {
	store  Store
	events outbox.Emitter
}

func NewService(store Store, events outbox.Emitter) *Service {
	return &Service{store: store, events: events}
}

// Register creates or overwrites the identity record for an account and marks
// it verified. The identity key must be present: a verified record without a
// key would break the registry invariant.
func (s *Service) Register(ctx context.Context, account id.AccountID, identityKey string, country id.CountryCode) error {
	if account.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "account is required")
	}
	if identityKey == "" {
		return dErrors.New(dErrors.CodeBadRequest, "identity key is required")
	}

	record := Record{
		Account:     account,
		IdentityKey: identityKey,
		Country:     country,
		Verified:    true,
	}
	if err := s.store.Save(ctx, record); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save identity record")
	}

	s.events.Emit(ctx, outbox.Event{
		Kind:    outbox.KindIdentityRegistered,
		Account: account,
		Country: country.String(),
	})
	return nil
}

// Remove clears the identity record; the account is no longer verified.
func (s *Service) Remove(ctx context.Context, account id.AccountID) error {
	if err := s.store.Delete(ctx, account); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "identity record not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove identity record")
	}

	s.events.Emit(ctx, outbox.Event{
		Kind:    outbox.KindIdentityRemoved,
		Account: account,
	})
	return nil
}

// SetCountry updates the country code on an existing record.
func (s *Service) SetCountry(ctx context.Context, account id.AccountID, country id.CountryCode) error {
	record, err := s.store.Find(ctx, account)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "identity record not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load identity record")
	}

	record.Country = country
	if err := s.store.Save(ctx, record); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save identity record")
	}

	s.events.Emit(ctx, outbox.Event{
		Kind:    outbox.KindCountryUpdated,
		Account: account,
		Country: country.String(),
	})
	return nil
}

// IsVerified reports whether the account has a verified record with an
// identity key. Pure query; unknown accounts are simply unverified.
func (s *Service) IsVerified(ctx context.Context, account id.AccountID) bool {
	record, err := s.store.Find(ctx, account)
	if err != nil {
		return false
	}
	return record.Verified && record.IdentityKey != ""
}

// Find returns the identity record for an account.
func (s *Service) Find(ctx context.Context, account id.AccountID) (Record, error) {
	record, err := s.store.Find(ctx, account)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Record{}, dErrors.New(dErrors.CodeNotFound, "identity record not found")
		}
		return Record{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load identity record")
	}
	return record, nil
}
