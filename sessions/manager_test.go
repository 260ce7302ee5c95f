package sessions_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/pulsetrack/pulsetrack/internal/errors"
	"github.com/pulsetrack/pulsetrack/kv/kvfakes"
	"github.com/pulsetrack/pulsetrack/sessions"
)

const testTTLSeconds = 86400

var testUserData = sessions.UserData{
	UserID:       "subject-1",
	Email:        "pat@example.com",
	DisplayName:  "Pat Example",
	AvatarURL:    "https://example.com/pat.png",
	AccessToken:  "access-token",
	RefreshToken: "refresh-token",
}

// fakeClock is a movable clock shared between the manager and the store
// so sliding-TTL behavior can be tested deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setupManager(t *testing.T) (*sessions.Manager, *kvfakes.FakeStore, *fakeClock) {
	t.Helper()

	clock := newFakeClock()
	store := kvfakes.NewFakeStore()
	store.SetNowTime(clock.Now)

	manager, err := sessions.NewManager(store, testTTLSeconds, sessions.WithNowTime(clock.Now))
	require.NoError(t, err)

	return manager, store, clock
}

func TestCreate_SessionIDsAreUniqueHex(t *testing.T) {
	manager, _, _ := setupManager(t)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := manager.Create(ctx, testUserData)
		require.NoError(t, err)

		require.Len(t, id, 64)
		for _, c := range id {
			require.True(t, (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f'),
				"session ID must be lowercase hex, got %q", id)
		}
		require.False(t, seen[id], "session IDs must be pairwise distinct")
		seen[id] = true
	}
}

func TestGet_BumpsLastActivityMonotonically(t *testing.T) {
	manager, _, clock := setupManager(t)
	ctx := context.Background()

	id, err := manager.Create(ctx, testUserData)
	require.NoError(t, err)

	first, err := manager.Get(ctx, id)
	require.NoError(t, err)

	clock.Advance(5 * time.Second)

	second, err := manager.Get(ctx, id)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, second.LastActivity, first.LastActivity)
	assert.Equal(t, first.CreatedAt, second.CreatedAt, "CreatedAt never changes")
}

func TestGet_RefreshesTTL(t *testing.T) {
	manager, _, clock := setupManager(t)
	ctx := context.Background()

	id, err := manager.Create(ctx, testUserData)
	require.NoError(t, err)

	// Halfway to expiry, a read should push the deadline out again.
	clock.Advance(12 * time.Hour)
	_, err = manager.Get(ctx, id)
	require.NoError(t, err)

	clock.Advance(20 * time.Hour) // 32h since creation, 20h since last read
	record, err := manager.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, testUserData.UserID, record.UserID)
}

func TestGet_ExpiredSessionIsGone(t *testing.T) {
	manager, _, clock := setupManager(t)
	ctx := context.Background()

	id, err := manager.Create(ctx, testUserData)
	require.NoError(t, err)

	clock.Advance(testTTLSeconds*time.Second + time.Minute)

	_, err = manager.Get(ctx, id)
	require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
}

func TestGet_MalformedRecordTreatedAsNotFound(t *testing.T) {
	manager, store, _ := setupManager(t)
	ctx := context.Background()

	require.NoError(t, store.SetEx(ctx, "session:deadbeef", "{not json", testTTLSeconds))

	_, err := manager.Get(ctx, "deadbeef")
	require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
}

func TestGet_StoreErrorPropagates(t *testing.T) {
	manager, store, _ := setupManager(t)
	ctx := context.Background()

	id, err := manager.Create(ctx, testUserData)
	require.NoError(t, err)

	store.FailWith(errors.New("connection refused"))

	_, err = manager.Get(ctx, id)
	require.Error(t, err)
	require.NotErrorIs(t, err, apperrors.ErrSessionNotFound,
		"store failure must not masquerade as not-authenticated")
}

func TestUpdate_MergesFields(t *testing.T) {
	manager, _, _ := setupManager(t)
	ctx := context.Background()

	id, err := manager.Create(ctx, testUserData)
	require.NoError(t, err)

	newToken := "rotated-access-token"
	ok, err := manager.Update(ctx, id, sessions.Update{AccessToken: &newToken})
	require.NoError(t, err)
	require.True(t, ok)

	record, err := manager.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, newToken, record.AccessToken)
	assert.Equal(t, testUserData.RefreshToken, record.RefreshToken, "untouched fields survive")
}

func TestUpdate_MissingSessionIsNoOp(t *testing.T) {
	manager, _, _ := setupManager(t)

	name := "Nobody"
	ok, err := manager.Update(context.Background(), "unknown", sessions.Update{DisplayName: &name})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDelete_IsIdempotent(t *testing.T) {
	manager, _, _ := setupManager(t)
	ctx := context.Background()

	id, err := manager.Create(ctx, testUserData)
	require.NoError(t, err)

	deleted, err := manager.Delete(ctx, id)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = manager.Delete(ctx, id)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = manager.Get(ctx, id)
	require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
}

func TestValidate_FixedAgeRule(t *testing.T) {
	manager, _, clock := setupManager(t)
	ctx := context.Background()

	id, err := manager.Create(ctx, testUserData)
	require.NoError(t, err)

	valid, err := manager.Validate(ctx, id)
	require.NoError(t, err)
	assert.True(t, valid)

	// Keep the sliding TTL alive with periodic reads, but let the total
	// age exceed the TTL: Validate's fixed-age rule must now reject.
	for i := 0; i < 3; i++ {
		clock.Advance(12 * time.Hour)
		_, err = manager.Get(ctx, id)
		require.NoError(t, err)
	}

	valid, err = manager.Validate(ctx, id)
	require.NoError(t, err)
	assert.False(t, valid, "session older than TTL fails the age check even while store-live")
}

func TestValidate_MissingSession(t *testing.T) {
	manager, _, _ := setupManager(t)

	valid, err := manager.Validate(context.Background(), "unknown")
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestExtractSessionID(t *testing.T) {
	tests := []struct {
		name   string
		cookie string
		want   string
	}{
		{"no header", "", ""},
		{"single cookie", "session_id=abc123", "abc123"},
		{"multiple cookies", "theme=dark; session_id=abc123; lang=en", "abc123"},
		{"extra whitespace", "  session_id = abc123 ; theme=dark", "abc123"},
		{"cookie with no value", "session_id=", ""},
		{"valueless cookie among others", "flag; session_id=abc123", "abc123"},
		{"different cookie only", "theme=dark", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, err := http.NewRequest(http.MethodGet, "/", nil)
			require.NoError(t, err)
			if tc.cookie != "" {
				r.Header.Set("Cookie", tc.cookie)
			}
			assert.Equal(t, tc.want, sessions.ExtractSessionID(r))
		})
	}
}

func TestSessionCookieAttributes(t *testing.T) {
	manager, _, clock := setupManager(t)

	cookie := manager.SessionCookie("abc123", true)
	assert.Equal(t, sessions.CookieName, cookie.Name)
	assert.Equal(t, "abc123", cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, "/", cookie.Path)
	assert.Equal(t, clock.Now().Add(testTTLSeconds*time.Second), cookie.Expires)

	dev := manager.SessionCookie("abc123", false)
	assert.False(t, dev.Secure, "Secure only in production-like mode")
}

func TestDeleteCookie(t *testing.T) {
	manager, _, _ := setupManager(t)

	cookie := manager.DeleteCookie(true)
	assert.Equal(t, sessions.CookieName, cookie.Name)
	assert.Empty(t, cookie.Value)
	assert.Equal(t, time.Unix(0, 0), cookie.Expires)
	assert.True(t, cookie.HttpOnly)
}
