package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsetrack/pulsetrack/kv/kvfakes"
	"github.com/pulsetrack/pulsetrack/ratelimit"
	"github.com/pulsetrack/pulsetrack/sessions"
)

func newTestServer(t *testing.T) (*Server, *kvfakes.FakeStore) {
	t.Helper()

	store := kvfakes.NewFakeStore()
	manager, err := sessions.NewManager(store, 86400)
	require.NoError(t, err)

	return &Server{sessions: manager}, store
}

func createSession(t *testing.T, s *Server) string {
	t.Helper()
	id, err := s.sessions.Create(context.Background(), sessions.UserData{
		UserID:      "subject-1",
		Email:       "pat@example.com",
		DisplayName: "Pat Example",
	})
	require.NoError(t, err)
	return id
}

func TestChain_OrderIsFirstListedOutermost(t *testing.T) {
	var order []string
	stage := func(name string) Middleware {
		return func(next http.HandlerFunc) http.HandlerFunc {
			return func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next(w, r)
			}
		}
	}
	handler := func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}

	chained := Chain(handler, stage("first"), stage("second"), stage("third"))
	chained(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"first", "second", "third", "handler"}, order)
}

func TestCSRF(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		headers    map[string]string
		wantStatus int
		wantNext   bool
	}{
		{"post without header", http.MethodPost, nil, http.StatusForbidden, false},
		{"put without header", http.MethodPut, nil, http.StatusForbidden, false},
		{"patch without header", http.MethodPatch, nil, http.StatusForbidden, false},
		{"delete without header", http.MethodDelete, nil, http.StatusForbidden, false},
		{"post with csrf token", http.MethodPost,
			map[string]string{"X-CSRF-Token": "1"}, http.StatusOK, true},
		{"post with requested-with", http.MethodPost,
			map[string]string{"X-Requested-With": "XMLHttpRequest"}, http.StatusOK, true},
		{"get always passes", http.MethodGet, nil, http.StatusOK, true},
		{"head always passes", http.MethodHead, nil, http.StatusOK, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			nextCalled := false
			handler := CSRF(func(w http.ResponseWriter, r *http.Request) {
				nextCalled = true
			})

			req := httptest.NewRequest(tc.method, "/", nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			handler(rec, req)

			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, tc.wantNext, nextCalled)
		})
	}
}

func TestRequireAuth_LiveSessionReachesHandler(t *testing.T) {
	s, _ := newTestServer(t)
	sessionID := createSession(t, s)

	var got *sessions.Record
	handler := s.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Cookie", sessions.CookieName+"="+sessionID)
	rec := httptest.NewRecorder()
	handler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got, "handler must see the resolved identity")
	assert.Equal(t, "subject-1", got.UserID)
}

func TestRequireAuth_NoCookieIs401(t *testing.T) {
	s, _ := newTestServer(t)

	handlerCalled := false
	handler := s.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
	assert.Contains(t, rec.Body.String(), "error")
	assert.False(t, handlerCalled)
}

func TestRequireAuth_DeadSessionIs401(t *testing.T) {
	s, _ := newTestServer(t)

	handlerCalled := false
	handler := s.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Cookie", sessions.CookieName+"=0000000000000000000000000000000000000000000000000000000000000000")
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, handlerCalled)
}

func TestRequireAuth_StoreFailureIs500Not401(t *testing.T) {
	s, store := newTestServer(t)
	sessionID := createSession(t, s)
	store.FailWith(errors.New("connection refused"))

	handler := s.RequireAuth(func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Cookie", sessions.CookieName+"="+sessionID)
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code,
		"store unavailability must not read as not-authenticated")
}

func TestOptionalAuth_AlwaysDelegates(t *testing.T) {
	s, _ := newTestServer(t)
	sessionID := createSession(t, s)

	t.Run("anonymous", func(t *testing.T) {
		handler := s.OptionalAuth(func(w http.ResponseWriter, r *http.Request) {
			_, ok := IdentityFromContext(r.Context())
			assert.False(t, ok)
			w.WriteHeader(http.StatusOK)
		})
		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("authenticated", func(t *testing.T) {
		handler := s.OptionalAuth(func(w http.ResponseWriter, r *http.Request) {
			record, ok := IdentityFromContext(r.Context())
			require.True(t, ok)
			assert.Equal(t, "subject-1", record.UserID)
			w.WriteHeader(http.StatusOK)
		})
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Cookie", sessions.CookieName+"="+sessionID)
		rec := httptest.NewRecorder()
		handler(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRateLimitMiddleware_DeniesWith429(t *testing.T) {
	s, _ := newTestServer(t)

	limiter, err := ratelimit.New(
		ratelimit.Config{MaxRequests: 2, Window: time.Minute, KeyPrefix: "ratelimit:test"},
		ratelimit.NewInMemoryWindowStore())
	require.NoError(t, err)

	handler := s.RateLimit(limiter)(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
}
