// Package domain holds the typed identifiers shared across the engine.
//
// Accounts are identified by the external back-office account reference, so
// AccountID is a string primitive rather than a UUID. Rounds, purchases, and
// events are created inside the engine and use UUIDs.
package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// AccountID identifies an investor or treasury account. The value is assigned
// by the external system of record and treated as opaque here.
type AccountID string

// ParseAccountID validates and returns an AccountID.
func ParseAccountID(s string) (AccountID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("account id cannot be empty")
	}
	if len(s) > 128 {
		return "", fmt.Errorf("account id must be 128 characters or less")
	}
	return AccountID(s), nil
}

func (a AccountID) String() string { return string(a) }

// IsNil returns true if the account ID is empty.
func (a AccountID) IsNil() bool { return a == "" }

// RoundID identifies a primary-issuance round.
type RoundID uuid.UUID

func NewRoundID() RoundID { return RoundID(uuid.New()) }

func ParseRoundID(s string) (RoundID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return RoundID{}, fmt.Errorf("invalid round id: %w", err)
	}
	return RoundID(u), nil
}

func (r RoundID) String() string { return uuid.UUID(r).String() }
func (r RoundID) IsNil() bool    { return r == RoundID{} }

// MarshalText implements encoding.TextMarshaler so round IDs serialize as
// canonical UUID strings in JSON payloads.
func (r RoundID) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *RoundID) UnmarshalText(b []byte) error {
	parsed, err := ParseRoundID(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// PurchaseID identifies an escrowed purchase within a round.
type PurchaseID uuid.UUID

func NewPurchaseID() PurchaseID { return PurchaseID(uuid.New()) }

func ParsePurchaseID(s string) (PurchaseID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return PurchaseID{}, fmt.Errorf("invalid purchase id: %w", err)
	}
	return PurchaseID(u), nil
}

func (p PurchaseID) String() string { return uuid.UUID(p).String() }
func (p PurchaseID) IsNil() bool    { return p == PurchaseID{} }

func (p PurchaseID) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *PurchaseID) UnmarshalText(b []byte) error {
	parsed, err := ParsePurchaseID(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// CountryCode is an ISO 3166-1 alpha-2 country code.
type CountryCode string

func ParseCountryCode(s string) (CountryCode, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 2 {
		return "", fmt.Errorf("country code must be two letters")
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("country code must be two letters")
		}
	}
	return CountryCode(s), nil
}

func (c CountryCode) String() string { return string(c) }
