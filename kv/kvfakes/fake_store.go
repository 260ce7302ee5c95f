package kvfakes

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	apperrors "github.com/pulsetrack/pulsetrack/internal/errors"
	"github.com/pulsetrack/pulsetrack/kv"
)

var _ kv.Store = (*FakeStore)(nil)

type entry struct {
	value     string
	expiresAt time.Time
}

// FakeStore is a thread-safe in-memory implementation of kv.Store for
// tests. It honors per-key TTLs against an injectable clock and can be
// forced to fail every call to exercise store-unavailability paths.
type FakeStore struct {
	mu      sync.Mutex
	entries map[string]entry
	nowTime func() time.Time
	failErr error
}

func NewFakeStore() *FakeStore {
	return &FakeStore{
		entries: make(map[string]entry),
		nowTime: time.Now,
	}
}

// SetNowTime overrides the clock used for expiry checks.
func (s *FakeStore) SetNowTime(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowTime = now
}

// FailWith makes every subsequent call return err. Pass nil to recover.
func (s *FakeStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

// TTL reports the remaining lifetime of a key, for assertions.
func (s *FakeStore) TTL(key string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.liveEntry(key)
	if !ok {
		return 0, false
	}
	return e.expiresAt.Sub(s.nowTime()), true
}

// Has reports whether a live (unexpired) key exists.
func (s *FakeStore) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.liveEntry(key)
	return ok
}

func (s *FakeStore) liveEntry(key string) (entry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return entry{}, false
	}
	if !e.expiresAt.IsZero() && !s.nowTime().Before(e.expiresAt) {
		delete(s.entries, key)
		return entry{}, false
	}
	return e, true
}

func (s *FakeStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return "", s.failErr
	}
	e, ok := s.liveEntry(key)
	if !ok {
		return "", apperrors.ErrNotFound
	}
	return e.value, nil
}

func (s *FakeStore) SetEx(_ context.Context, key, value string, ttlSeconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	if key == "" {
		return errors.New("key cannot be empty")
	}
	s.entries[key] = entry{
		value:     value,
		expiresAt: s.nowTime().Add(time.Duration(ttlSeconds) * time.Second),
	}
	return nil
}

func (s *FakeStore) GetDel(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return "", s.failErr
	}
	e, ok := s.liveEntry(key)
	if !ok {
		return "", apperrors.ErrNotFound
	}
	delete(s.entries, key)
	return e.value, nil
}

func (s *FakeStore) Del(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return false, s.failErr
	}
	_, ok := s.liveEntry(key)
	delete(s.entries, key)
	return ok, nil
}
