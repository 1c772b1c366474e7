package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jvbeek/palimpsest/internal/observe"
	"github.com/jvbeek/palimpsest/internal/usage"
)

// apiKeyHeader is the header clients present their credential in.
const apiKeyHeader = "Api-Key"

type keyContextKey struct{}

// requireKey authenticates the request against the usage store when auth is
// enabled and stores the resolved key on the request context. With auth
// disabled it passes through unchanged.
func (s *Server) requireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg().Auth.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		secret := r.Header.Get(apiKeyHeader)
		if secret == "" {
			s.metrics.RecordAuthFailure(ctx)
			writeError(w, http.StatusUnauthorized, "missing Api-Key header")
			return
		}

		key, err := s.store.Authenticate(ctx, secret)
		if err != nil {
			if errors.Is(err, usage.ErrUnauthorized) {
				s.metrics.RecordAuthFailure(ctx)
				observe.Logger(ctx).Warn("rejected api key", "prefix", keyHint(secret))
				writeError(w, http.StatusUnauthorized, "invalid api key")
				return
			}
			observe.Logger(ctx).Error("authenticating api key", "error", err)
			writeError(w, http.StatusInternalServerError, "authentication unavailable")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, keyContextKey{}, key)))
	})
}

// keyFrom returns the authenticated key stored by [Server.requireKey], if any.
func keyFrom(ctx context.Context) (usage.APIKey, bool) {
	key, ok := ctx.Value(keyContextKey{}).(usage.APIKey)
	return key, ok
}

// keyHint truncates a secret for logging. Never log the full credential.
func keyHint(secret string) string {
	const n = 8
	if len(secret) <= n {
		return secret
	}
	return secret[:n]
}

// writeError sends a JSON error body, matching the shape clients get for
// every failure on the correction endpoint.
func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
