package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"equilex/internal/outbox"
	"equilex/pkg/testutil"
)

// stubSource records the arguments of the last poll and serves canned events.
type stubSource struct {
	events    []outbox.Event
	err       error
	lastAfter uint64
	lastLimit int
	lastKinds []outbox.Kind
}

func (s *stubSource) ListAfter(_ context.Context, afterSeq uint64, limit int, kinds []outbox.Kind) ([]outbox.Event, error) {
	s.lastAfter = afterSeq
	s.lastLimit = limit
	s.lastKinds = kinds
	if s.err != nil {
		return nil, s.err
	}
	var out []outbox.Event
	for _, e := range s.events {
		if e.Seq > afterSeq {
			out = append(out, e)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type EventsHandlerSuite struct {
	suite.Suite
	source *stubSource
	router chi.Router
}

func TestEventsHandlerSuite(t *testing.T) {
	suite.Run(t, new(EventsHandlerSuite))
}

func (s *EventsHandlerSuite) SetupTest() {
	s.source = &stubSource{events: []outbox.Event{
		{Seq: 1, Kind: outbox.KindMint, To: "alice", Amount: 10},
		{Seq: 2, Kind: outbox.KindTransfer, From: "alice", To: "bob", Amount: 5},
		{Seq: 3, Kind: outbox.KindBurn, From: "bob", Amount: 1},
	}}
	s.router = chi.NewRouter()
	New(s.source, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router)
}

type eventsPage struct {
	Events    []outbox.Event `json:"events"`
	NextAfter uint64         `json:"next_after"`
}

func (s *EventsHandlerSuite) TestListEvents() {
	s.Run("returns events after the cursor with the next cursor", func() {
		req := testutil.NewRequestWithBody(s.T(), http.MethodGet, "/v1/events?after=1", "")
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		page := testutil.UnmarshalResponse[eventsPage](s.T(), rr)
		s.Len(page.Events, 2)
		s.Equal(uint64(3), page.NextAfter)
	})

	s.Run("an exhausted cursor returns an empty page, not null", func() {
		req := testutil.NewRequestWithBody(s.T(), http.MethodGet, "/v1/events?after=3", "")
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		s.JSONEq(`{"events":[],"next_after":3}`, rr.Body.String())
	})

	s.Run("applies the default limit", func() {
		req := testutil.NewRequestWithBody(s.T(), http.MethodGet, "/v1/events", "")
		testutil.DoRequest(s.router, req)
		s.Equal(100, s.source.lastLimit)
	})

	s.Run("passes kind filters through", func() {
		req := testutil.NewRequestWithBody(s.T(), http.MethodGet, "/v1/events?kinds=mint,%20burn", "")
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		s.Equal([]outbox.Kind{outbox.KindMint, outbox.KindBurn}, s.source.lastKinds)
	})

	s.Run("rejects a malformed cursor", func() {
		req := testutil.NewRequestWithBody(s.T(), http.MethodGet, "/v1/events?after=abc", "")
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
		testutil.AssertErrorCode(s.T(), rr, "bad_request")
	})

	s.Run("rejects an out-of-range limit", func() {
		for _, limit := range []string{"0", "1001", "-5", "abc"} {
			req := testutil.NewRequestWithBody(s.T(), http.MethodGet, "/v1/events?limit="+limit, "")
			rr := testutil.DoRequest(s.router, req)
			testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
		}
	})

	s.Run("maps a source failure to an internal error", func() {
		s.source.err = errors.New("log unavailable")
		req := testutil.NewRequestWithBody(s.T(), http.MethodGet, "/v1/events", "")
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatus(s.T(), rr, http.StatusInternalServerError)
		testutil.AssertErrorCode(s.T(), rr, "internal_error")
	})
}
