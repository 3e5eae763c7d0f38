package dispatch

import (
	"bytes"
	"encoding/json"
	"time"

	id "equilex/pkg/domain"
	dErrors "equilex/pkg/domain-errors"
	strutil "equilex/pkg/platform/strings"
)

// maxBatchDepth bounds batch nesting. One level of nesting is enough for every
// known submitter; the limit exists so a hostile payload cannot recurse.
const maxBatchDepth = 4

// maxBatchSize bounds the number of sub-actions in a single batch.
const maxBatchSize = 256

// DecodeEnvelope turns a wire envelope into a typed action. Unknown tags,
// malformed payloads, unknown payload fields, and invalid identifiers all
// reject with CodeDecodeError before any state is touched.
func DecodeEnvelope(env Envelope) (Action, error) {
	return decodeEnvelope(env, 0)
}

func decodeEnvelope(env Envelope, depth int) (Action, error) {
	if !env.Type.Known() {
		return nil, dErrors.Newf(dErrors.CodeDecodeError, "unknown action type %d", env.Type)
	}

	switch env.Type {
	case ActionBatch:
		return decodeBatch(env.Payload, depth)
	case ActionSyncKYC:
		return decodeSyncKYC(env.Payload)
	case ActionSetCountry:
		return decodeSetCountry(env.Payload)
	case ActionSetAuthorized:
		return decodeSetAuthorized(env.Payload)
	case ActionSetLockup:
		return decodeSetLockup(env.Payload)
	case ActionAddTrustedCounterparty:
		return decodeAddTrustedCounterparty(env.Payload)
	case ActionMint:
		return decodeMint(env.Payload)
	case ActionBurn:
		return decodeBurn(env.Payload)
	case ActionTransfer, ActionForcedTransfer:
		return decodeTransfer(env.Type, env.Payload)
	case ActionSetFrozen:
		return decodeSetFrozen(env.Payload)
	case ActionFreezePartial:
		return decodeFreezePartial(env.Payload)
	case ActionFundPayment:
		return decodeFundPayment(env.Payload)
	case ActionCreateRound:
		return decodeCreateRound(env.Payload)
	case ActionSetAllowlist:
		return decodeSetAllowlist(env.Payload)
	case ActionSetRoundOpen:
		return decodeSetRoundOpen(env.Payload)
	case ActionBuy:
		return decodeBuy(env.Payload)
	case ActionMarkSettled:
		return decodeMarkSettled(env.Payload)
	case ActionRefund:
		return decodeRefund(env.Payload)
	case ActionRedeemTicket:
		// Decodes so the dispatcher can reject it uniformly; the payload is
		// ignored.
		return RedeemTicketAction{}, nil
	}
	return nil, dErrors.Newf(dErrors.CodeDecodeError, "unknown action type %d", env.Type)
}

// decodeInto unmarshals a payload strictly: unknown fields reject.
func decodeInto(payload json.RawMessage, dst any) error {
	if len(payload) == 0 {
		return dErrors.New(dErrors.CodeDecodeError, "payload is required")
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return dErrors.Wrap(err, dErrors.CodeDecodeError, "malformed payload")
	}
	return nil
}

func decodeAccount(field, raw string) (id.AccountID, error) {
	account, err := id.ParseAccountID(raw)
	if err != nil {
		return "", dErrors.Wrapf(err, dErrors.CodeDecodeError, "invalid %s", field)
	}
	return account, nil
}

func decodeBatch(payload json.RawMessage, depth int) (Action, error) {
	if depth >= maxBatchDepth {
		return nil, dErrors.New(dErrors.CodeDecodeError, "batch nesting too deep")
	}

	var wire struct {
		Actions []Envelope `json:"actions"`
	}
	if err := decodeInto(payload, &wire); err != nil {
		return nil, err
	}
	if len(wire.Actions) == 0 {
		return nil, dErrors.New(dErrors.CodeDecodeError, "batch requires at least one action")
	}
	if len(wire.Actions) > maxBatchSize {
		return nil, dErrors.Newf(dErrors.CodeDecodeError, "batch exceeds %d actions", maxBatchSize)
	}

	actions := make([]Action, 0, len(wire.Actions))
	for i, sub := range wire.Actions {
		action, err := decodeEnvelope(sub, depth+1)
		if err != nil {
			return nil, dErrors.Wrapf(err, dErrors.CodeDecodeError, "batch action %d", i)
		}
		actions = append(actions, action)
	}
	return BatchAction{Actions: actions}, nil
}

func decodeSyncKYC(payload json.RawMessage) (Action, error) {
	var wire struct {
		Account     string `json:"account"`
		Verified    bool   `json:"verified"`
		IdentityKey string `json:"identity_key"`
		Country     string `json:"country"`
	}
	if err := decodeInto(payload, &wire); err != nil {
		return nil, err
	}
	account, err := decodeAccount("account", wire.Account)
	if err != nil {
		return nil, err
	}

	action := SyncKYCAction{Account: account, Verified: wire.Verified, IdentityKey: wire.IdentityKey}
	if wire.Verified {
		if wire.IdentityKey == "" {
			return nil, dErrors.New(dErrors.CodeDecodeError, "identity_key is required for a verified record")
		}
		country, err := id.ParseCountryCode(wire.Country)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeDecodeError, "invalid country")
		}
		action.Country = country
	}
	return action, nil
}

func decodeSetCountry(payload json.RawMessage) (Action, error) {
	var wire struct {
		Account string `json:"account"`
		Country string `json:"country"`
	}
	if err := decodeInto(payload, &wire); err != nil {
		return nil, err
	}
	account, err := decodeAccount("account", wire.Account)
	if err != nil {
		return nil, err
	}
	country, err := id.ParseCountryCode(wire.Country)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDecodeError, "invalid country")
	}
	return SetCountryAction{Account: account, Country: country}, nil
}

func decodeSetAuthorized(payload json.RawMessage) (Action, error) {
	var wire struct {
		Account    string `json:"account"`
		Authorized bool   `json:"authorized"`
	}
	if err := decodeInto(payload, &wire); err != nil {
		return nil, err
	}
	account, err := decodeAccount("account", wire.Account)
	if err != nil {
		return nil, err
	}
	return SetAuthorizedAction{Account: account, Authorized: wire.Authorized}, nil
}

func decodeSetLockup(payload json.RawMessage) (Action, error) {
	var wire struct {
		Account string `json:"account"`
		Until   int64  `json:"until_unix"`
	}
	if err := decodeInto(payload, &wire); err != nil {
		return nil, err
	}
	account, err := decodeAccount("account", wire.Account)
	if err != nil {
		return nil, err
	}
	if wire.Until < 0 {
		return nil, dErrors.New(dErrors.CodeDecodeError, "until_unix must not be negative")
	}
	return SetLockupAction{Account: account, Until: time.Unix(wire.Until, 0).UTC()}, nil
}

func decodeAddTrustedCounterparty(payload json.RawMessage) (Action, error) {
	var wire struct {
		AccountA string `json:"account_a"`
		AccountB string `json:"account_b"`
	}
	if err := decodeInto(payload, &wire); err != nil {
		return nil, err
	}
	a, err := decodeAccount("account_a", wire.AccountA)
	if err != nil {
		return nil, err
	}
	b, err := decodeAccount("account_b", wire.AccountB)
	if err != nil {
		return nil, err
	}
	return AddTrustedCounterpartyAction{AccountA: a, AccountB: b}, nil
}

func decodeMint(payload json.RawMessage) (Action, error) {
	var wire struct {
		To     string `json:"to"`
		Amount uint64 `json:"amount"`
	}
	if err := decodeInto(payload, &wire); err != nil {
		return nil, err
	}
	to, err := decodeAccount("to", wire.To)
	if err != nil {
		return nil, err
	}
	return MintAction{To: to, Amount: wire.Amount}, nil
}

func decodeBurn(payload json.RawMessage) (Action, error) {
	var wire struct {
		From   string `json:"from"`
		Amount uint64 `json:"amount"`
	}
	if err := decodeInto(payload, &wire); err != nil {
		return nil, err
	}
	from, err := decodeAccount("from", wire.From)
	if err != nil {
		return nil, err
	}
	return BurnAction{From: from, Amount: wire.Amount}, nil
}

func decodeTransfer(tag ActionType, payload json.RawMessage) (Action, error) {
	var wire struct {
		From   string `json:"from"`
		To     string `json:"to"`
		Amount uint64 `json:"amount"`
	}
	if err := decodeInto(payload, &wire); err != nil {
		return nil, err
	}
	from, err := decodeAccount("from", wire.From)
	if err != nil {
		return nil, err
	}
	to, err := decodeAccount("to", wire.To)
	if err != nil {
		return nil, err
	}
	if tag == ActionForcedTransfer {
		return ForcedTransferAction{From: from, To: to, Amount: wire.Amount}, nil
	}
	return TransferAction{From: from, To: to, Amount: wire.Amount}, nil
}

func decodeSetFrozen(payload json.RawMessage) (Action, error) {
	var wire struct {
		Account string `json:"account"`
		Frozen  bool   `json:"frozen"`
	}
	if err := decodeInto(payload, &wire); err != nil {
		return nil, err
	}
	account, err := decodeAccount("account", wire.Account)
	if err != nil {
		return nil, err
	}
	return SetFrozenAction{Account: account, Frozen: wire.Frozen}, nil
}

func decodeFreezePartial(payload json.RawMessage) (Action, error) {
	var wire struct {
		Account string `json:"account"`
		Amount  uint64 `json:"amount"`
	}
	if err := decodeInto(payload, &wire); err != nil {
		return nil, err
	}
	account, err := decodeAccount("account", wire.Account)
	if err != nil {
		return nil, err
	}
	return FreezePartialAction{Account: account, Amount: wire.Amount}, nil
}

func decodeFundPayment(payload json.RawMessage) (Action, error) {
	var wire struct {
		Account string `json:"account"`
		Amount  uint64 `json:"amount"`
	}
	if err := decodeInto(payload, &wire); err != nil {
		return nil, err
	}
	account, err := decodeAccount("account", wire.Account)
	if err != nil {
		return nil, err
	}
	return FundPaymentAction{Account: account, Amount: wire.Amount}, nil
}

func decodeCreateRound(payload json.RawMessage) (Action, error) {
	var wire struct {
		Price          uint64 `json:"price"`
		PerInvestorCap uint64 `json:"per_investor_cap"`
		TotalCap       uint64 `json:"total_cap"`
	}
	if err := decodeInto(payload, &wire); err != nil {
		return nil, err
	}
	return CreateRoundAction{Price: wire.Price, PerInvestorCap: wire.PerInvestorCap, TotalCap: wire.TotalCap}, nil
}

func decodeSetAllowlist(payload json.RawMessage) (Action, error) {
	var wire struct {
		RoundID  string   `json:"round_id"`
		Accounts []string `json:"accounts"`
	}
	if err := decodeInto(payload, &wire); err != nil {
		return nil, err
	}
	roundID, err := id.ParseRoundID(wire.RoundID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDecodeError, "invalid round_id")
	}
	unique := strutil.DedupeAndTrim(wire.Accounts)
	accounts := make([]id.AccountID, 0, len(unique))
	for _, raw := range unique {
		account, err := decodeAccount("accounts entry", raw)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return SetAllowlistAction{RoundID: roundID, Accounts: accounts}, nil
}

func decodeSetRoundOpen(payload json.RawMessage) (Action, error) {
	var wire struct {
		RoundID string `json:"round_id"`
		Open    bool   `json:"open"`
	}
	if err := decodeInto(payload, &wire); err != nil {
		return nil, err
	}
	roundID, err := id.ParseRoundID(wire.RoundID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDecodeError, "invalid round_id")
	}
	return SetRoundOpenAction{RoundID: roundID, Open: wire.Open}, nil
}

func decodeBuy(payload json.RawMessage) (Action, error) {
	var wire struct {
		RoundID string `json:"round_id"`
		Buyer   string `json:"buyer"`
		Payment uint64 `json:"payment"`
	}
	if err := decodeInto(payload, &wire); err != nil {
		return nil, err
	}
	roundID, err := id.ParseRoundID(wire.RoundID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDecodeError, "invalid round_id")
	}
	buyer, err := decodeAccount("buyer", wire.Buyer)
	if err != nil {
		return nil, err
	}
	return BuyAction{RoundID: roundID, Buyer: buyer, Payment: wire.Payment}, nil
}

func decodeMarkSettled(payload json.RawMessage) (Action, error) {
	var wire struct {
		PurchaseID string `json:"purchase_id"`
	}
	if err := decodeInto(payload, &wire); err != nil {
		return nil, err
	}
	purchaseID, err := id.ParsePurchaseID(wire.PurchaseID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDecodeError, "invalid purchase_id")
	}
	return MarkSettledAction{PurchaseID: purchaseID}, nil
}

func decodeRefund(payload json.RawMessage) (Action, error) {
	var wire struct {
		PurchaseID string `json:"purchase_id"`
	}
	if err := decodeInto(payload, &wire); err != nil {
		return nil, err
	}
	purchaseID, err := id.ParsePurchaseID(wire.PurchaseID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDecodeError, "invalid purchase_id")
	}
	return RefundAction{PurchaseID: purchaseID}, nil
}
