package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	id "equilex/pkg/domain"
	"equilex/pkg/requestcontext"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type OutboxSuite struct {
	suite.Suite
	store     *InMemoryStore
	publisher *Publisher
	ctx       context.Context
}

func TestOutboxSuite(t *testing.T) {
	suite.Run(t, new(OutboxSuite))
}

func (s *OutboxSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.publisher = NewPublisher(s.store)
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
}

func (s *OutboxSuite) TestPublisher() {
	s.Run("emit stages without touching the store", func() {
		s.publisher.Emit(s.ctx, Event{Kind: KindMint, To: "alice", Amount: 10})
		s.Equal(1, s.publisher.PendingCount())

		events, err := s.store.ListAfter(s.ctx, 0, 10, nil)
		s.NoError(err)
		s.Empty(events)
	})

	s.Run("flush appends staged events in order", func() {
		s.publisher.Emit(s.ctx, Event{Kind: KindMint, To: "alice", Amount: 10})
		s.publisher.Emit(s.ctx, Event{Kind: KindTransfer, From: "alice", To: "bob", Amount: 5})

		appended, err := s.publisher.Flush(s.ctx)
		s.Require().NoError(err)
		s.Len(appended, 3) // one staged event carried over from the first subtest
		s.Equal(0, s.publisher.PendingCount())

		events, err := s.store.ListAfter(s.ctx, 0, 10, nil)
		s.NoError(err)
		s.Len(events, 3)
		for i, event := range events {
			s.Equal(uint64(i+1), event.Seq)
			s.NotZero(event.ID)
			s.False(event.At.IsZero())
		}
	})

	s.Run("discard drops staged events", func() {
		s.publisher.Emit(s.ctx, Event{Kind: KindBurn, From: "alice", Amount: 1})
		s.publisher.Discard()
		s.Equal(0, s.publisher.PendingCount())

		_, err := s.publisher.Flush(s.ctx)
		s.NoError(err)
	})

	s.Run("emit stamps the request-scoped time", func() {
		s.publisher.Emit(s.ctx, Event{Kind: KindMint, To: "carol", Amount: 2})
		appended, err := s.publisher.Flush(s.ctx)
		s.Require().NoError(err)
		s.Equal(requestcontext.Now(s.ctx), appended[len(appended)-1].At)
	})
}

func (s *OutboxSuite) TestListAfter() {
	seed := []Event{
		{Kind: KindMint, To: "alice", Amount: 1},
		{Kind: KindTransfer, From: "alice", To: "bob", Amount: 1},
		{Kind: KindMint, To: "bob", Amount: 2},
		{Kind: KindBurn, From: "bob", Amount: 1},
	}
	_, err := s.store.AppendBatch(s.ctx, seed)
	s.Require().NoError(err)

	s.Run("returns events after the cursor", func() {
		events, err := s.store.ListAfter(s.ctx, 2, 10, nil)
		s.NoError(err)
		s.Len(events, 2)
		s.Equal(uint64(3), events[0].Seq)
	})

	s.Run("honors the limit", func() {
		events, err := s.store.ListAfter(s.ctx, 0, 2, nil)
		s.NoError(err)
		s.Len(events, 2)
	})

	s.Run("filters by kind", func() {
		events, err := s.store.ListAfter(s.ctx, 0, 10, []Kind{KindMint})
		s.NoError(err)
		s.Len(events, 2)
		for _, event := range events {
			s.Equal(KindMint, event.Kind)
		}
	})
}

// recordingProducer captures published records and can be told to fail.
type recordingProducer struct {
	keys   []string
	values [][]byte
	fail   bool
}

func (p *recordingProducer) Publish(_ context.Context, key, value []byte) error {
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.keys = append(p.keys, string(key))
	p.values = append(p.values, value)
	return nil
}

func (s *OutboxSuite) TestRelay() {
	logger := discardLogger()

	s.Run("drains new events and advances the cursor", func() {
		_, err := s.store.AppendBatch(s.ctx, []Event{
			{Kind: KindMint, To: "alice", Amount: 1},
			{Kind: KindTransfer, From: "alice", To: "bob", Amount: 1},
		})
		s.Require().NoError(err)

		producer := &recordingProducer{}
		relay := NewRelay(s.store, producer, logger)
		s.Require().NoError(relay.drain(s.ctx))
		s.Len(producer.values, 2)
		s.Equal("alice", producer.keys[0])

		// Nothing new: a second drain publishes nothing.
		s.Require().NoError(relay.drain(s.ctx))
		s.Len(producer.values, 2)
	})

	s.Run("publish failure stops the drain", func() {
		_, err := s.store.AppendBatch(s.ctx, []Event{{Kind: KindBurn, From: "bob", Amount: 1}})
		s.Require().NoError(err)

		relay := NewRelay(s.store, &recordingProducer{fail: true}, logger)
		s.Error(relay.drain(s.ctx))
	})
}

func (s *OutboxSuite) TestEventKey() {
	s.Run("prefers purchase, then round, then account identity", func() {
		purchaseID := id.NewPurchaseID()
		purchase := Event{Kind: KindPurchaseSettled, PurchaseID: purchaseID, Account: "alice"}
		s.Equal(purchaseID.String(), purchase.Key())

		withAccount := Event{Kind: KindFreezeChanged, Account: "alice"}
		s.Equal("alice", withAccount.Key())

		withFrom := Event{Kind: KindTransfer, From: "alice", To: "bob"}
		s.Equal("alice", withFrom.Key())

		// Mint events carry only the recipient; they must still key on the
		// account so a mint and a later transfer stay on one partition.
		minted := Event{Kind: KindMint, To: "alice"}
		s.Equal("alice", minted.Key())
	})
}
