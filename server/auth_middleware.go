package server

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	apperrors "github.com/pulsetrack/pulsetrack/internal/errors"
	"github.com/pulsetrack/pulsetrack/sessions"
)

// Middleware wraps a handler. The outermost middleware is the first one
// listed when chaining.
type Middleware func(http.HandlerFunc) http.HandlerFunc

// Chain applies middleware so that the first listed runs first. Given
// Chain(h, csrf, requireAuth): csrf is checked, then auth, then h.
func Chain(routeFunction http.HandlerFunc, mw ...Middleware) http.HandlerFunc {
	chainedHandler := routeFunction
	// Apply middleware in reverse order
	for i := len(mw) - 1; i >= 0; i-- {
		chainedHandler = mw[i](chainedHandler)
	}
	return chainedHandler
}

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// ContextKeyIdentity stores the resolved session record
const ContextKeyIdentity ContextKey = "identity"

// IdentityFromContext returns the session record the auth middleware
// resolved for this request, if any. Handlers read identity from here;
// nothing is ever attached to the transport-level request object.
func IdentityFromContext(ctx context.Context) (*sessions.Record, bool) {
	record, ok := ctx.Value(ContextKeyIdentity).(*sessions.Record)
	return record, ok && record != nil
}

// authenticate resolves the request's session cookie into an identity.
// It never writes a response: a nil record with a nil error simply means
// "anonymous", while a non-nil error means the store could not answer.
func (s *Server) authenticate(r *http.Request) (*sessions.Record, error) {
	sessionID := sessions.ExtractSessionID(r)
	if sessionID == "" {
		return nil, nil
	}

	record, err := s.sessions.Get(r.Context(), sessionID)
	if apperrors.Is(err, apperrors.ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// RequireAuth rejects unauthenticated requests with 401 before the
// handler runs; the handler sees a guaranteed-present identity. A store
// failure is a 500, never a false 401.
func (s *Server) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		record, err := s.authenticate(r)
		if err != nil {
			log.Error().Err(err).Msg("session lookup failed")
			writeJSON(w, http.StatusInternalServerError, errorBody("server_error", "Unable to verify session"))
			return
		}
		if record == nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="pulsetrack"`)
			writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized", "Authentication required"))
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), ContextKeyIdentity, record)))
	}
}

// OptionalAuth resolves identity when present and always delegates.
// Store failures are logged and the request proceeds anonymously.
func (s *Server) OptionalAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		record, err := s.authenticate(r)
		if err != nil {
			log.Error().Err(err).Msg("session lookup failed, continuing anonymous")
		}
		if record != nil {
			r = r.WithContext(context.WithValue(r.Context(), ContextKeyIdentity, record))
		}
		next(w, r)
	}
}

// CSRF requires a custom header on state-changing methods. Simple
// cross-site form submissions cannot set custom headers, so presence of
// either header proves the request came from our own front-end code.
// Non-mutating methods pass through unchecked.
func CSRF(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			if r.Header.Get("X-CSRF-Token") == "" && r.Header.Get("X-Requested-With") == "" {
				log.Warn().Str("method", r.Method).Str("path", r.URL.Path).
					Msg("state-changing request without CSRF header")
				writeJSON(w, http.StatusForbidden, errorBody("forbidden", "Missing CSRF header"))
				return
			}
		}
		next(w, r)
	}
}
