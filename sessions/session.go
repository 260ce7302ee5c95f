// Package sessions owns the browser-session lifecycle: identifier
// generation, record CRUD against the key-value store, cookie
// serialization, and session-ID extraction from request headers.
package sessions

import (
	"crypto/rand"
	"encoding/hex"
)

// Record is an authenticated user's browser session. It is stored as
// JSON under "session:<sessionId>" with a sliding TTL. Field names match
// the wire format the rest of the deployment reads.
type Record struct {
	SessionID    string `json:"sessionId"`
	UserID       string `json:"userId"` // identity provider's subject ID
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
	AvatarURL    string `json:"avatarUrl,omitempty"`
	AccessToken  string `json:"accessToken,omitempty"`  // provider credential, sensitive
	RefreshToken string `json:"refreshToken,omitempty"` // provider credential, sensitive
	CreatedAt    int64  `json:"createdAt"`              // epoch millis
	LastActivity int64  `json:"lastActivity"`           // epoch millis, bumped on every read
}

// UserData carries the fields the OAuth flow supplies when creating a
// session; the manager fills in SessionID and the timestamps.
type UserData struct {
	UserID       string
	Email        string
	DisplayName  string
	AvatarURL    string
	AccessToken  string
	RefreshToken string
}

// Update names the mutable fields of a stored record. Nil pointers leave
// the existing value in place.
type Update struct {
	AccessToken  *string
	RefreshToken *string
	DisplayName  *string
	AvatarURL    *string
}

// sessionIDBytes gives 256 bits of entropy; hex-encoded the ID is
// exactly 64 characters.
const sessionIDBytes = 32

// newSessionID draws a fresh identifier from the CSPRNG. The ID is the
// sole key under which the record is stored, so it must be unguessable.
func newSessionID() (string, error) {
	b := make([]byte, sessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
