package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"equilex/internal/dispatch"
	dErrors "equilex/pkg/domain-errors"
	"equilex/pkg/platform/httputil"
	"equilex/pkg/requestcontext"
)

// Service defines the interface for action submission.
type Service interface {
	Submit(ctx context.Context, env dispatch.Envelope) (*dispatch.Receipt, error)
	FindReceipt(ctx context.Context, receiptID uuid.UUID) (dispatch.Receipt, error)
}

// Handler wires the action submission endpoints to the dispatcher.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts action endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/actions", h.HandleSubmit)
	r.Get("/v1/receipts/{receiptID}", h.HandleGetReceipt)
}

// HandleSubmit handles POST /v1/actions requests.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	env, err := httputil.Decode[dispatch.Envelope](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	receipt, err := h.service.Submit(ctx, env)
	if err != nil {
		h.logger.WarnContext(ctx, "action submission failed",
			"request_id", requestID,
			"action", env.Type.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "action submitted",
		"request_id", requestID,
		"action", env.Type.String(),
		"receipt_id", receipt.ID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, receipt)
}

// HandleGetReceipt handles GET /v1/receipts/{receiptID} requests.
func (h *Handler) HandleGetReceipt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	receiptID, err := uuid.Parse(chi.URLParam(r, "receiptID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid receipt id"))
		return
	}

	receipt, err := h.service.FindReceipt(ctx, receiptID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, receipt)
}
