// Package httptransport assembles the engine's HTTP surface: authenticated
// action submission, the synchronizer's event poll, and the operational
// endpoints.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	dispatchhandler "equilex/internal/dispatch/handler"
	outboxhandler "equilex/internal/outbox/handler"
	"equilex/pkg/platform/middleware/auth"
	"equilex/pkg/platform/middleware/requestid"
	"equilex/pkg/platform/middleware/requesttime"
)

// Config collects the router's dependencies.
type Config struct {
	Dispatch *dispatchhandler.Handler
	Events   *outboxhandler.Handler

	TokenValidator auth.TokenValidator
	SecretVerifier auth.SecretVerifier
	// SyncAPIKeyHash guards the event poll; when empty the poll falls back to
	// bearer auth.
	SyncAPIKeyHash string
	// SyncPrincipal is the principal assigned to API-key callers.
	SyncPrincipal string

	Logger *slog.Logger
}

// NewRouter wires middleware and endpoints.
func NewRouter(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(requestid.Middleware)
	r.Use(requesttime.Middleware)

	r.Get("/healthz", handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(cfg.TokenValidator, cfg.Logger))
		cfg.Dispatch.Register(r)
	})

	r.Group(func(r chi.Router) {
		if cfg.SyncAPIKeyHash != "" {
			r.Use(auth.RequireAPIKey(cfg.SecretVerifier, cfg.SyncAPIKeyHash, cfg.SyncPrincipal, cfg.Logger))
		} else {
			r.Use(auth.RequireAuth(cfg.TokenValidator, cfg.Logger))
		}
		cfg.Events.Register(r)
	})

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
