// Package auth provides the bearer-token middleware that resolves the calling
// principal. The dispatcher's role table decides what a principal may do; this
// layer only establishes who is calling.
package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"equilex/pkg/requestcontext"
)

// TokenValidator validates a bearer token and returns the principal it was
// issued to.
type TokenValidator interface {
	ValidatePrincipal(tokenString string) (string, error)
}

// SecretVerifier checks a plaintext API key against a stored hash. Used for
// the synchronizer's poll channel, which authenticates with a long-lived key
// rather than a short-lived token.
type SecretVerifier interface {
	VerifySecret(secret, hash string) error
}

func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":%q,"error_description":%q}`, errCode, errDesc))
}

// RequireAuth enforces a valid bearer token and stores the principal in the
// request context.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			tokenString, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			principal, err := validator.ValidatePrincipal(tokenString)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithPrincipal(ctx, principal)))
		})
	}
}

// RequireAPIKey enforces the X-Api-Key header against a stored hash and
// assigns the given principal to passing requests.
func RequireAPIKey(verifier SecretVerifier, keyHash, principal string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := r.Header.Get("X-Api-Key")
			if key == "" || keyHash == "" {
				logger.WarnContext(ctx, "unauthorized access - missing api key",
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing API key")
				return
			}
			if err := verifier.VerifySecret(key, keyHash); err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid api key",
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid API key")
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithPrincipal(ctx, principal)))
		})
	}
}
