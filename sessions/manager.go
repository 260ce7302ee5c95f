package sessions

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	apperrors "github.com/pulsetrack/pulsetrack/internal/errors"
	"github.com/pulsetrack/pulsetrack/kv"
)

const keyPrefix = "session:"

// Manager performs session CRUD against the key-value store. Every
// successful read rewrites the record with a refreshed TTL (sliding
// expiration), so an active session stays alive while an abandoned one
// ages out of the store.
//
// Store connectivity failures propagate to the caller: a session lookup
// failing because the store is down must surface as a 5xx, never as a
// false "not authenticated".
type Manager struct {
	store      kv.Store
	ttlSeconds int
	nowTime    func() time.Time
}

// ManagerOption modifies a Manager instance.
type ManagerOption func(*Manager)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// NewManager creates a session manager. ttlSeconds is the session
// lifetime (default of the deployment: 86400).
func NewManager(store kv.Store, ttlSeconds int, options ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, errors.New("[NewManager] store is required")
	}
	if ttlSeconds <= 0 {
		return nil, errors.New("[NewManager] ttlSeconds must be positive")
	}

	m := &Manager{
		store:      store,
		ttlSeconds: ttlSeconds,
		nowTime:    time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// TTLSeconds exposes the configured session lifetime.
func (m *Manager) TTLSeconds() int { return m.ttlSeconds }

// Create generates a new unguessable session ID, stores the full record
// with the configured TTL, and returns the ID.
func (m *Manager) Create(ctx context.Context, data UserData) (string, error) {
	sessionID, err := newSessionID()
	if err != nil {
		return "", apperrors.Wrapf(err, "[Manager Create] generate session id")
	}

	now := m.nowTime().UnixMilli()
	record := Record{
		SessionID:    sessionID,
		UserID:       data.UserID,
		Email:        data.Email,
		DisplayName:  data.DisplayName,
		AvatarURL:    data.AvatarURL,
		AccessToken:  data.AccessToken,
		RefreshToken: data.RefreshToken,
		CreatedAt:    now,
		LastActivity: now,
	}

	if err := m.write(ctx, &record); err != nil {
		return "", err
	}
	return sessionID, nil
}

// Get returns the record for sessionID, bumping LastActivity and
// refreshing the store TTL. A missing key returns ErrSessionNotFound.
// Malformed stored data is treated as not found and logged, never
// surfaced to the caller.
func (m *Manager) Get(ctx context.Context, sessionID string) (*Record, error) {
	record, err := m.read(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	record.LastActivity = m.nowTime().UnixMilli()
	if err := m.write(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// Update merges fields into an existing record, refreshing LastActivity
// and the TTL. It reports false, without error, when no record exists.
func (m *Manager) Update(ctx context.Context, sessionID string, fields Update) (bool, error) {
	record, err := m.read(ctx, sessionID)
	if apperrors.Is(err, apperrors.ErrSessionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if fields.AccessToken != nil {
		record.AccessToken = *fields.AccessToken
	}
	if fields.RefreshToken != nil {
		record.RefreshToken = *fields.RefreshToken
	}
	if fields.DisplayName != nil {
		record.DisplayName = *fields.DisplayName
	}
	if fields.AvatarURL != nil {
		record.AvatarURL = *fields.AvatarURL
	}
	record.LastActivity = m.nowTime().UnixMilli()

	if err := m.write(ctx, record); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes a session. Idempotent; reports whether a record was
// actually deleted.
func (m *Manager) Delete(ctx context.Context, sessionID string) (bool, error) {
	deleted, err := m.store.Del(ctx, keyPrefix+sessionID)
	if err != nil {
		return false, apperrors.Wrapf(err, "[Manager Delete]")
	}
	return deleted, nil
}

// Validate reports whether a record exists AND its total age is within
// the configured TTL. The age check is independent of the store's own
// sliding expiry: it bounds the total lifetime of a session regardless
// of how often it is read, guarding against stores whose TTL semantics
// differ from expected. Callers wanting sliding-expiry-only semantics
// should use Get instead.
func (m *Manager) Validate(ctx context.Context, sessionID string) (bool, error) {
	record, err := m.read(ctx, sessionID)
	if apperrors.Is(err, apperrors.ErrSessionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	age := m.nowTime().UnixMilli() - record.CreatedAt
	return age <= int64(m.ttlSeconds)*1000, nil
}

func (m *Manager) read(ctx context.Context, sessionID string) (*Record, error) {
	if sessionID == "" {
		return nil, apperrors.ErrSessionNotFound
	}

	raw, err := m.store.Get(ctx, keyPrefix+sessionID)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.ErrSessionNotFound
	}
	if err != nil {
		return nil, apperrors.Wrapf(err, "[Manager read]")
	}

	var record Record
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		log.Warn().Str("sessionPrefix", idPrefix(sessionID)).Err(err).
			Msg("malformed session record, treating as not found")
		return nil, apperrors.ErrSessionNotFound
	}
	return &record, nil
}

func (m *Manager) write(ctx context.Context, record *Record) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return apperrors.Wrapf(err, "[Manager write] marshal")
	}
	if err := m.store.SetEx(ctx, keyPrefix+record.SessionID, string(raw), m.ttlSeconds); err != nil {
		return apperrors.Wrapf(err, "[Manager write]")
	}
	return nil
}

// idPrefix truncates a session ID for logging. Full IDs never hit logs.
func idPrefix(sessionID string) string {
	if len(sessionID) <= 8 {
		return sessionID
	}
	return sessionID[:8]
}
