package ledger

import (
	id "equilex/pkg/domain"
)

// FreezeState is the per-account freeze record.
//
// Invariants:
//   - PartialAmount never exceeds the account balance after any operation
type FreezeState struct {
	Account       id.AccountID `json:"account"`
	FullyFrozen   bool         `json:"fully_frozen"`
	PartialAmount uint64       `json:"partial_amount"`
}
