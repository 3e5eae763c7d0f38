package identity

import (
	id "equilex/pkg/domain"
)

// Record is the per-account verification entry.
//
// Invariants:
//   - at most one record per account
//   - Verified implies IdentityKey is non-empty
type Record struct {
	Account     id.AccountID   `json:"account"`
	IdentityKey string         `json:"identity_key"`
	Country     id.CountryCode `json:"country"`
	Verified    bool           `json:"verified"`
}
