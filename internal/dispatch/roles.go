package dispatch

import (
	id "equilex/pkg/domain"
	dErrors "equilex/pkg/domain-errors"
)

// Role is a capability granted to a submitting principal.
type Role string

const (
	// RoleAdmin covers back-office administration: identity sync, ledger
	// controls, and round management.
	RoleAdmin Role = "admin"
	// RoleOracle covers settlement confirmation and operator-driven refunds.
	RoleOracle Role = "oracle"
)

// RoleTable maps principals to roles. Explicit grants only; there is no
// catch-all owner.
type RoleTable struct {
	grants map[string]map[Role]bool
}

func NewRoleTable() *RoleTable {
	return &RoleTable{grants: make(map[string]map[Role]bool)}
}

// Grant assigns a role to a principal. Empty principals are ignored so unset
// config values do not grant anything.
func (t *RoleTable) Grant(principal string, role Role) {
	if principal == "" {
		return
	}
	if t.grants[principal] == nil {
		t.grants[principal] = make(map[Role]bool)
	}
	t.grants[principal][role] = true
}

func (t *RoleTable) HasRole(principal string, role Role) bool {
	return t.grants[principal][role]
}

// authorize checks the caller against the action's required role. Investor
// self-service paths (transfer from own account, buy for self, refund own
// purchase) pass here on the principal-account match; the owning service
// enforces the rest of the rule.
func (t *RoleTable) authorize(principal string, action Action) error {
	switch a := action.(type) {
	case BatchAction:
		for _, sub := range a.Actions {
			if err := t.authorize(principal, sub); err != nil {
				return err
			}
		}
		return nil

	case TransferAction:
		if t.HasRole(principal, RoleAdmin) || id.AccountID(principal) == a.From {
			return nil
		}
		return dErrors.New(dErrors.CodeUnauthorized, "transfer requires the admin role or the sending account")

	case BuyAction:
		if t.HasRole(principal, RoleAdmin) || id.AccountID(principal) == a.Buyer {
			return nil
		}
		return dErrors.New(dErrors.CodeUnauthorized, "buy requires the admin role or the buying account")

	case MarkSettledAction:
		if t.HasRole(principal, RoleOracle) {
			return nil
		}
		return dErrors.New(dErrors.CodeUnauthorized, "settlement requires the oracle role")

	case RefundAction:
		// Oracle or buyer. Buyer identity is only known once the purchase is
		// loaded, so the market performs the buyer-and-deadline check.
		return nil

	case RedeemTicketAction:
		return dErrors.New(dErrors.CodeActionDisabled, "ticket redemption is not available through this channel")

	default:
		if t.HasRole(principal, RoleAdmin) {
			return nil
		}
		return dErrors.Newf(dErrors.CodeUnauthorized, "%s requires the admin role", action.ActionType())
	}
}
