package outbox

import (
	"time"

	"github.com/google/uuid"

	id "equilex/pkg/domain"
)

// Kind classifies an engine event for synchronizer consumption.
type Kind string

const (
	// Identity events.
	KindIdentityRegistered Kind = "identity_registered"
	KindIdentityRemoved    Kind = "identity_removed"
	KindCountryUpdated     Kind = "country_updated"

	// Ledger events.
	KindTransfer      Kind = "transfer"
	KindMint          Kind = "mint"
	KindBurn          Kind = "burn"
	KindFreezeChanged Kind = "freeze_changed"

	// Market events.
	KindRoundCreated     Kind = "round_created"
	KindRoundOpened      Kind = "round_opened"
	KindRoundClosed      Kind = "round_closed"
	KindPurchaseCreated  Kind = "purchase_created"
	KindPurchaseSettled  Kind = "purchase_settled"
	KindPurchaseRefunded Kind = "purchase_refunded"

	// Payment events.
	KindPaymentFunded Kind = "payment_funded"
)

// Event is the append-only record the off-chain synchronizer mirrors. It is
// written synchronously inside the same atomic unit as the state mutation it
// documents, then consumed via ordered poll or the Kafka relay.
//
// Seq is assigned by the store at append time and is strictly increasing.
type Event struct {
	Seq        uint64        `json:"seq"`
	ID         uuid.UUID     `json:"id"`
	Kind       Kind          `json:"kind"`
	At         time.Time     `json:"at"`
	Account    id.AccountID  `json:"account,omitempty"`
	From       id.AccountID  `json:"from,omitempty"`
	To         id.AccountID  `json:"to,omitempty"`
	Amount     uint64        `json:"amount,omitempty"`
	Country    string        `json:"country,omitempty"`
	Frozen     *bool         `json:"frozen,omitempty"`
	RoundID    id.RoundID    `json:"round_id,omitzero"`
	PurchaseID id.PurchaseID `json:"purchase_id,omitzero"`
}

// Key returns the partition key used by the Kafka relay so events about the
// same entity stay ordered.
func (e Event) Key() string {
	switch {
	case !e.PurchaseID.IsNil():
		return e.PurchaseID.String()
	case !e.RoundID.IsNil():
		return e.RoundID.String()
	case !e.Account.IsNil():
		return e.Account.String()
	case !e.From.IsNil():
		return e.From.String()
	case !e.To.IsNil():
		return e.To.String()
	default:
		return e.ID.String()
	}
}
