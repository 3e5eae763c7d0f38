package compliance

import (
	"time"

	id "equilex/pkg/domain"
)

// Authorization is the per-account investor gate the engine owns.
//
// Invariants:
//   - LockupUntil is an absolute timestamp
//   - an authorized account may still be inside its lockup window
type Authorization struct {
	Account     id.AccountID `json:"account"`
	Authorized  bool         `json:"authorized"`
	LockupUntil time.Time    `json:"lockup_until"`
}

// InLockup reports whether the account is still locked up at the given time.
func (a Authorization) InLockup(now time.Time) bool {
	return now.Before(a.LockupUntil)
}

// pairKey identifies an unordered trusted counterparty pair.
type pairKey struct {
	low, high id.AccountID
}

func newPairKey(a, b id.AccountID) pairKey {
	if b < a {
		a, b = b, a
	}
	return pairKey{low: a, high: b}
}
