package ratelimit

import (
	"net/http"
	"strings"
)

// Identifier derives the rate-limit key for a request. Precedence:
// authenticated user ID, first IP in X-Forwarded-For, CF-Connecting-IP,
// then the literal "ip:unknown". userID is empty for anonymous requests.
func Identifier(r *http.Request, userID string) string {
	if userID != "" {
		return "user:" + userID
	}

	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return "ip:" + ip
		}
	}

	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return "ip:" + strings.TrimSpace(ip)
	}

	return "ip:unknown"
}
