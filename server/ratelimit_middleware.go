package server

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/pulsetrack/pulsetrack/ratelimit"
)

// RateLimit gates a route behind one limiter tier. The identifier
// prefers an already-resolved identity; on the usual ordering (limiter
// before auth) requests are keyed by client IP.
func (s *Server) RateLimit(limiter *ratelimit.Limiter) Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			var userID string
			if record, ok := IdentityFromContext(r.Context()); ok {
				userID = record.UserID
			}
			identifier := ratelimit.Identifier(r, userID)

			result := limiter.Limit(r.Context(), identifier)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.Config().MaxRequests))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.Reset, 10))

			if !result.Allowed {
				log.Warn().Str("identifier", identifier).Str("path", r.URL.Path).
					Msg("rate limit exceeded")
				writeJSON(w, http.StatusTooManyRequests,
					errorBody("rate_limited", "Too many requests, slow down"))
				return
			}

			next(w, r)
		}
	}
}
