package dispatch

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	id "equilex/pkg/domain"
	dErrors "equilex/pkg/domain-errors"
)

func env(t ActionType, payload string) Envelope {
	return Envelope{Type: t, Payload: json.RawMessage(payload)}
}

type CodecSuite struct {
	suite.Suite
}

func TestCodecSuite(t *testing.T) {
	suite.Run(t, new(CodecSuite))
}

func (s *CodecSuite) TestDecodeEnvelope() {
	s.Run("unknown tag is a decode error", func() {
		_, err := DecodeEnvelope(env(ActionType(99), `{}`))
		s.True(dErrors.HasCode(err, dErrors.CodeDecodeError))
	})

	s.Run("missing payload is a decode error", func() {
		_, err := DecodeEnvelope(Envelope{Type: ActionMint})
		s.True(dErrors.HasCode(err, dErrors.CodeDecodeError))
	})

	s.Run("unknown payload fields are rejected", func() {
		_, err := DecodeEnvelope(env(ActionMint, `{"to":"alice","amount":1,"extra":true}`))
		s.True(dErrors.HasCode(err, dErrors.CodeDecodeError))
	})

	s.Run("malformed json is a decode error", func() {
		_, err := DecodeEnvelope(env(ActionTransfer, `{"from":`))
		s.True(dErrors.HasCode(err, dErrors.CodeDecodeError))
	})
}

func (s *CodecSuite) TestDecodeSyncKYC() {
	s.Run("decodes a verified record", func() {
		action, err := DecodeEnvelope(env(ActionSyncKYC,
			`{"account":"acct-1","verified":true,"identity_key":"key-1","country":"de"}`))
		s.Require().NoError(err)

		sync, ok := action.(SyncKYCAction)
		s.Require().True(ok)
		s.Equal(id.AccountID("acct-1"), sync.Account)
		s.True(sync.Verified)
		s.Equal(id.CountryCode("DE"), sync.Country)
	})

	s.Run("verified requires an identity key", func() {
		_, err := DecodeEnvelope(env(ActionSyncKYC,
			`{"account":"acct-1","verified":true,"identity_key":"","country":"DE"}`))
		s.True(dErrors.HasCode(err, dErrors.CodeDecodeError))
	})

	s.Run("unverified needs no key or country", func() {
		action, err := DecodeEnvelope(env(ActionSyncKYC, `{"account":"acct-1","verified":false}`))
		s.Require().NoError(err)
		sync := action.(SyncKYCAction)
		s.False(sync.Verified)
	})

	s.Run("rejects an invalid country", func() {
		_, err := DecodeEnvelope(env(ActionSyncKYC,
			`{"account":"acct-1","verified":true,"identity_key":"key-1","country":"DEU"}`))
		s.True(dErrors.HasCode(err, dErrors.CodeDecodeError))
	})
}

func (s *CodecSuite) TestDecodeTypedIDs() {
	s.Run("rejects an empty account", func() {
		_, err := DecodeEnvelope(env(ActionMint, `{"to":"","amount":1}`))
		s.True(dErrors.HasCode(err, dErrors.CodeDecodeError))
	})

	s.Run("rejects an invalid round id", func() {
		_, err := DecodeEnvelope(env(ActionBuy, `{"round_id":"not-a-uuid","buyer":"alice","payment":10}`))
		s.True(dErrors.HasCode(err, dErrors.CodeDecodeError))
	})

	s.Run("parses a purchase id", func() {
		purchaseID := id.NewPurchaseID()
		action, err := DecodeEnvelope(env(ActionMarkSettled,
			fmt.Sprintf(`{"purchase_id":%q}`, purchaseID)))
		s.Require().NoError(err)
		s.Equal(MarkSettledAction{PurchaseID: purchaseID}, action)
	})

	s.Run("allowlist accounts are trimmed and deduplicated", func() {
		roundID := id.NewRoundID()
		action, err := DecodeEnvelope(env(ActionSetAllowlist,
			fmt.Sprintf(`{"round_id":%q,"accounts":[" alice ","bob","alice"]}`, roundID)))
		s.Require().NoError(err)
		allow := action.(SetAllowlistAction)
		s.Equal([]id.AccountID{"alice", "bob"}, allow.Accounts)
	})

	s.Run("lockup converts unix seconds", func() {
		action, err := DecodeEnvelope(env(ActionSetLockup, `{"account":"alice","until_unix":1767225600}`))
		s.Require().NoError(err)
		lockup := action.(SetLockupAction)
		s.Equal(time.Unix(1767225600, 0).UTC(), lockup.Until)
	})
}

func (s *CodecSuite) TestDecodeBatch() {
	s.Run("decodes complete sub-envelopes recursively", func() {
		action, err := DecodeEnvelope(env(ActionBatch, `{"actions":[
			{"action_type":6,"payload":{"to":"alice","amount":10}},
			{"action_type":8,"payload":{"from":"alice","to":"bob","amount":5}}
		]}`))
		s.Require().NoError(err)

		batch, ok := action.(BatchAction)
		s.Require().True(ok)
		s.Require().Len(batch.Actions, 2)
		s.Equal(MintAction{To: "alice", Amount: 10}, batch.Actions[0])
		s.Equal(TransferAction{From: "alice", To: "bob", Amount: 5}, batch.Actions[1])
	})

	s.Run("rejects an empty batch", func() {
		_, err := DecodeEnvelope(env(ActionBatch, `{"actions":[]}`))
		s.True(dErrors.HasCode(err, dErrors.CodeDecodeError))
	})

	s.Run("a bad sub-action fails the whole batch", func() {
		_, err := DecodeEnvelope(env(ActionBatch, `{"actions":[
			{"action_type":6,"payload":{"to":"alice","amount":10}},
			{"action_type":99,"payload":{}}
		]}`))
		s.True(dErrors.HasCode(err, dErrors.CodeDecodeError))
	})

	s.Run("allows one level of nesting", func() {
		action, err := DecodeEnvelope(env(ActionBatch, `{"actions":[
			{"action_type":0,"payload":{"actions":[
				{"action_type":6,"payload":{"to":"alice","amount":10}}
			]}}
		]}`))
		s.Require().NoError(err)
		outer := action.(BatchAction)
		inner := outer.Actions[0].(BatchAction)
		s.Len(inner.Actions, 1)
	})

	s.Run("bounds nesting depth", func() {
		payload := `{"to":"alice","amount":1}`
		envelope := fmt.Sprintf(`{"action_type":6,"payload":%s}`, payload)
		for range maxBatchDepth + 1 {
			envelope = fmt.Sprintf(`{"action_type":0,"payload":{"actions":[%s]}}`, envelope)
		}
		var top Envelope
		s.Require().NoError(json.Unmarshal([]byte(envelope), &top))

		_, err := DecodeEnvelope(top)
		s.True(dErrors.HasCode(err, dErrors.CodeDecodeError))
	})
}

func (s *CodecSuite) TestActionType() {
	s.Run("every named tag round-trips through String", func() {
		for tag := ActionBatch; tag <= ActionRedeemTicket; tag++ {
			s.True(tag.Known())
			s.NotEqual("unknown", tag.String())
		}
		s.False(ActionType(20).Known())
	})
}
