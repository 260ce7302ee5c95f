package server

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/pulsetrack/pulsetrack/sessions"
)

const contentTypeJSON = "application/json; charset=utf-8"

// UserHandler reports the current identity. Anonymous requests get
// {user: null, authenticated: false} with a 200; absence of a session
// is not an error here.
func (s *Server) UserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		record, ok := IdentityFromContext(r.Context())
		if !ok {
			writeJSON(w, http.StatusOK, map[string]any{
				"user":          nil,
				"authenticated": false,
			})
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"user":          publicUser(record),
			"authenticated": true,
		})
	}
}

// RefreshHandler bumps the session's activity. RequireAuth has already
// resolved the session (which refreshes the sliding TTL); on top of
// that this applies the strict fixed-age rule, so a session older than
// the configured TTL is rejected even though the store's sliding expiry
// would still serve it.
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		record, ok := IdentityFromContext(r.Context())
		if !ok {
			unauthorized(w)
			return
		}

		valid, err := s.sessions.Validate(r.Context(), record.SessionID)
		if err != nil {
			log.Error().Err(err).Msg("session validation failed")
			writeJSON(w, http.StatusInternalServerError, errorBody("server_error", "Unable to verify session"))
			return
		}
		if !valid {
			unauthorized(w)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"message": "Session refreshed",
			"success": true,
		})
	}
}

func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}
}

// publicUser is the client-safe projection of a session record. The
// provider tokens never leave the server.
func publicUser(record *sessions.Record) map[string]any {
	return map[string]any{
		"userId":       record.UserID,
		"email":        record.Email,
		"displayName":  record.DisplayName,
		"avatarUrl":    record.AvatarURL,
		"createdAt":    record.CreatedAt,
		"lastActivity": record.LastActivity,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response body")
	}
}

func errorBody(code, message string) map[string]any {
	return map[string]any{
		"error":   code,
		"message": message,
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="pulsetrack"`)
	writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized", "Authentication required"))
}
