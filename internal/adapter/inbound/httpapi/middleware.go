package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/tamshai/gateway/internal/ctxkey"
	"github.com/tamshai/gateway/internal/domain/identity"
	"github.com/tamshai/gateway/pkg/api"
)

// requireBearer authenticates the request before any routing happens. A
// missing or invalid credential gets the UNAUTHENTICATED envelope and the
// request never reaches a handler.
func (h *Handler) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), ctxkey.RequestIDKey{}, uuid.NewString())

		raw, ok := bearerToken(r)
		if !ok {
			h.rejectUnauthenticated(w, "missing bearer token")
			return
		}
		uc, err := h.identity.Authenticate(ctx, raw)
		if err != nil {
			h.rejectUnauthenticated(w, "invalid bearer token")
			return
		}

		ctx = context.WithValue(ctx, ctxkey.UserContextKey{}, uc)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) rejectUnauthenticated(w http.ResponseWriter, msg string) {
	if h.metrics != nil {
		h.metrics.AuthFailures.Inc()
	}
	respondEnvelope(w, api.FromError(api.NewError(api.CodeUnauthenticated, msg,
		"Pass a valid bearer token in the Authorization header.")))
}

// bearerToken extracts the raw token from the Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", false
	}
	return auth[len(prefix):], true
}

// callerFromContext returns the authenticated identity set by requireBearer.
func callerFromContext(ctx context.Context) (identity.UserContext, bool) {
	uc, ok := ctx.Value(ctxkey.UserContextKey{}).(identity.UserContext)
	return uc, ok
}
