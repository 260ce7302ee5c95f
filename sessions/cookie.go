package sessions

import (
	"net/http"
	"strings"
	"time"
)

// CookieName is the session cookie the browser carries.
const CookieName = "session_id"

// ExtractSessionID parses the request's Cookie header and returns the
// session ID, or "" when the header or cookie is absent. It tolerates
// cookies with no value, extra whitespace, and multiple cookies in one
// header, so it parses the raw header rather than relying on r.Cookie
// (which rejects some malformed-but-harmless values outright).
func ExtractSessionID(r *http.Request) string {
	header := r.Header.Get("Cookie")
	if header == "" {
		return ""
	}

	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, _ := strings.Cut(part, "=")
		if strings.TrimSpace(name) == CookieName {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// SessionCookie produces the Set-Cookie value for a live session.
// HttpOnly keeps it out of script reach; SameSite=Lax plus the custom
// CSRF header check in the middleware covers cross-site submissions;
// Secure is set only in production-like mode so local development over
// plain HTTP still works.
func (m *Manager) SessionCookie(sessionID string, production bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   production,
		SameSite: http.SameSiteLaxMode,
		Expires:  m.nowTime().Add(time.Duration(m.ttlSeconds) * time.Second),
	}
}

// DeleteCookie produces the Set-Cookie value that clears the session
// cookie: empty value, epoch-zero Expires.
func (m *Manager) DeleteCookie(production bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   production,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
	}
}
