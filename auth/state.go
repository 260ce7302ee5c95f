package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"time"

	apperrors "github.com/pulsetrack/pulsetrack/internal/errors"
	"github.com/pulsetrack/pulsetrack/kv"
)

const (
	stateKeyPrefix = "oauth:state:"
	// stateTTLSeconds bounds how long a pending authorization attempt
	// stays valid. Long enough for a consent screen, short enough that
	// abandoned states cannot pile up.
	stateTTLSeconds = 600
)

// stateRecord is the one-time CSRF artifact persisted between Initiate
// and Callback. The state value itself is the key; the nonce is bound
// into the ID token by the provider and checked on the way back.
type stateRecord struct {
	Nonce     string `json:"nonce"`
	CreatedAt int64  `json:"createdAt"`
}

// issueState stores a fresh state record and returns nothing beyond the
// error: the caller already holds state and nonce.
func issueState(ctx context.Context, store kv.Store, state, nonce string, now time.Time) error {
	raw, err := json.Marshal(stateRecord{Nonce: nonce, CreatedAt: now.UnixMilli()})
	if err != nil {
		return apperrors.Wrapf(err, "[issueState] marshal")
	}
	return store.SetEx(ctx, stateKeyPrefix+state, string(raw), stateTTLSeconds)
}

// consumeState atomically reads and deletes the state record. A state
// that was never issued, already consumed, or expired all come back as
// ErrStateNotFound; callers must not distinguish them toward the client.
// Deletion happens in the same store round trip as the read, so the
// replay window is closed before any further callback processing.
func consumeState(ctx context.Context, store kv.Store, state string) (*stateRecord, error) {
	raw, err := store.GetDel(ctx, stateKeyPrefix+state)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.ErrStateNotFound
	}
	if err != nil {
		return nil, apperrors.Wrapf(err, "[consumeState]")
	}

	var record stateRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, apperrors.ErrStateNotFound
	}
	return &record, nil
}

// randomToken creates a random base64url string from n bytes of CSPRNG
// output. 32 bytes gives 256 bits of entropy.
func randomToken(n int) string {
	b := make([]byte, n)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
