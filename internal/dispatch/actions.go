package dispatch

import (
	"encoding/json"
	"time"

	id "equilex/pkg/domain"
)

// ActionType is the wire discriminant for externally submitted actions. The
// enumeration is closed: unknown tags reject at decode time.
type ActionType uint8

const (
	ActionBatch                  ActionType = 0
	ActionSyncKYC                ActionType = 1
	ActionSetCountry             ActionType = 2
	ActionSetAuthorized          ActionType = 3
	ActionSetLockup              ActionType = 4
	ActionAddTrustedCounterparty ActionType = 5
	ActionMint                   ActionType = 6
	ActionBurn                   ActionType = 7
	ActionTransfer               ActionType = 8
	ActionForcedTransfer         ActionType = 9
	ActionSetFrozen              ActionType = 10
	ActionFreezePartial          ActionType = 11
	ActionFundPayment            ActionType = 12
	ActionCreateRound            ActionType = 13
	ActionSetAllowlist           ActionType = 14
	ActionSetRoundOpen           ActionType = 15
	ActionBuy                    ActionType = 16
	ActionMarkSettled            ActionType = 17
	ActionRefund                 ActionType = 18

	// ActionRedeemTicket is permanently retired at the dispatcher. Redemption
	// is only permitted directly against the holding component by the account
	// owner, never through the action channel.
	ActionRedeemTicket ActionType = 19
)

var actionNames = map[ActionType]string{
	ActionBatch:                  "batch",
	ActionSyncKYC:                "sync_kyc",
	ActionSetCountry:             "set_country",
	ActionSetAuthorized:          "set_authorized",
	ActionSetLockup:              "set_lockup",
	ActionAddTrustedCounterparty: "add_trusted_counterparty",
	ActionMint:                   "mint",
	ActionBurn:                   "burn",
	ActionTransfer:               "transfer",
	ActionForcedTransfer:         "forced_transfer",
	ActionSetFrozen:              "set_frozen",
	ActionFreezePartial:          "freeze_partial",
	ActionFundPayment:            "fund_payment",
	ActionCreateRound:            "create_round",
	ActionSetAllowlist:           "set_allowlist",
	ActionSetRoundOpen:           "set_round_open",
	ActionBuy:                    "buy",
	ActionMarkSettled:            "mark_settled",
	ActionRefund:                 "refund",
	ActionRedeemTicket:           "redeem_ticket",
}

func (t ActionType) String() string {
	if name, ok := actionNames[t]; ok {
		return name
	}
	return "unknown"
}

// Known reports whether the tag is part of the closed enumeration.
func (t ActionType) Known() bool {
	_, ok := actionNames[t]
	return ok
}

// Envelope is the tagged, self-describing unit of externally submitted state
// change. Payload shape is fixed per tag.
type Envelope struct {
	Type    ActionType      `json:"action_type"`
	Payload json.RawMessage `json:"payload"`
}

// Action is the closed tagged union the codec produces. Downstream components
// never see raw payload bytes.
type Action interface {
	ActionType() ActionType
}

type BatchAction struct {
	Actions []Action
}

type SyncKYCAction struct {
	Account     id.AccountID
	Verified    bool
	IdentityKey string
	Country     id.CountryCode
}

type SetCountryAction struct {
	Account id.AccountID
	Country id.CountryCode
}

type SetAuthorizedAction struct {
	Account    id.AccountID
	Authorized bool
}

type SetLockupAction struct {
	Account id.AccountID
	Until   time.Time
}

type AddTrustedCounterpartyAction struct {
	AccountA id.AccountID
	AccountB id.AccountID
}

type MintAction struct {
	To     id.AccountID
	Amount uint64
}

type BurnAction struct {
	From   id.AccountID
	Amount uint64
}

type TransferAction struct {
	From   id.AccountID
	To     id.AccountID
	Amount uint64
}

type ForcedTransferAction struct {
	From   id.AccountID
	To     id.AccountID
	Amount uint64
}

type SetFrozenAction struct {
	Account id.AccountID
	Frozen  bool
}

type FreezePartialAction struct {
	Account id.AccountID
	Amount  uint64
}

type FundPaymentAction struct {
	Account id.AccountID
	Amount  uint64
}

type CreateRoundAction struct {
	Price          uint64
	PerInvestorCap uint64
	TotalCap       uint64
}

type SetAllowlistAction struct {
	RoundID  id.RoundID
	Accounts []id.AccountID
}

type SetRoundOpenAction struct {
	RoundID id.RoundID
	Open    bool
}

type BuyAction struct {
	RoundID id.RoundID
	Buyer   id.AccountID
	Payment uint64
}

type MarkSettledAction struct {
	PurchaseID id.PurchaseID
}

type RefundAction struct {
	PurchaseID id.PurchaseID
}

type RedeemTicketAction struct{}

func (BatchAction) ActionType() ActionType                  { return ActionBatch }
func (SyncKYCAction) ActionType() ActionType                { return ActionSyncKYC }
func (SetCountryAction) ActionType() ActionType             { return ActionSetCountry }
func (SetAuthorizedAction) ActionType() ActionType          { return ActionSetAuthorized }
func (SetLockupAction) ActionType() ActionType              { return ActionSetLockup }
func (AddTrustedCounterpartyAction) ActionType() ActionType { return ActionAddTrustedCounterparty }
func (MintAction) ActionType() ActionType                   { return ActionMint }
func (BurnAction) ActionType() ActionType                   { return ActionBurn }
func (TransferAction) ActionType() ActionType               { return ActionTransfer }
func (ForcedTransferAction) ActionType() ActionType         { return ActionForcedTransfer }
func (SetFrozenAction) ActionType() ActionType              { return ActionSetFrozen }
func (FreezePartialAction) ActionType() ActionType          { return ActionFreezePartial }
func (FundPaymentAction) ActionType() ActionType            { return ActionFundPayment }
func (CreateRoundAction) ActionType() ActionType            { return ActionCreateRound }
func (SetAllowlistAction) ActionType() ActionType           { return ActionSetAllowlist }
func (SetRoundOpenAction) ActionType() ActionType           { return ActionSetRoundOpen }
func (BuyAction) ActionType() ActionType                    { return ActionBuy }
func (MarkSettledAction) ActionType() ActionType            { return ActionMarkSettled }
func (RefundAction) ActionType() ActionType                 { return ActionRefund }
func (RedeemTicketAction) ActionType() ActionType           { return ActionRedeemTicket }
