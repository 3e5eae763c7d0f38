package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"equilex/internal/outbox"
	dErrors "equilex/pkg/domain-errors"
	"equilex/pkg/platform/httputil"
	"equilex/pkg/requestcontext"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Source is the ordered event log the poll endpoint reads.
type Source interface {
	ListAfter(ctx context.Context, afterSeq uint64, limit int, kinds []outbox.Kind) ([]outbox.Event, error)
}

// Handler serves the synchronizer's ordered event poll.
type Handler struct {
	source Source
	logger *slog.Logger
}

func New(source Source, logger *slog.Logger) *Handler {
	return &Handler{source: source, logger: logger}
}

// Register mounts the event poll endpoint on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/v1/events", h.HandleListEvents)
}

type listResponse struct {
	Events    []outbox.Event `json:"events"`
	NextAfter uint64         `json:"next_after"`
}

// HandleListEvents handles GET /v1/events?after=<seq>&limit=<n>&kinds=<k1,k2>.
// Callers pass back next_after as the next poll's after value.
func (h *Handler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	after, err := parseUint(r.URL.Query().Get("after"), 0)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "after must be a non-negative integer"))
		return
	}
	limit, err := parseUint(r.URL.Query().Get("limit"), defaultLimit)
	if err != nil || limit == 0 || limit > maxLimit {
		httputil.WriteError(w, dErrors.Newf(dErrors.CodeBadRequest, "limit must be between 1 and %d", maxLimit))
		return
	}

	var kinds []outbox.Kind
	if raw := r.URL.Query().Get("kinds"); raw != "" {
		for _, k := range strings.Split(raw, ",") {
			kinds = append(kinds, outbox.Kind(strings.TrimSpace(k)))
		}
	}

	events, err := h.source.ListAfter(ctx, after, int(limit), kinds)
	if err != nil {
		h.logger.ErrorContext(ctx, "event poll failed",
			"request_id", requestcontext.RequestID(ctx),
			"after", after,
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list events"))
		return
	}

	resp := listResponse{Events: events, NextAfter: after}
	if len(events) > 0 {
		resp.NextAfter = events[len(events)-1].Seq
	}
	if resp.Events == nil {
		resp.Events = []outbox.Event{}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func parseUint(raw string, def uint64) (uint64, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}
