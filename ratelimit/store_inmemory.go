package ratelimit

import (
	"context"
	"sort"
	"sync"
)

var _ WindowStore = (*InMemoryWindowStore)(nil)

// InMemoryWindowStore is a thread-safe in-memory WindowStore. It backs
// tests and single-process deployments that run without Redis; the
// mutex gives it the same atomicity contract the Lua script gives the
// Redis implementation.
type InMemoryWindowStore struct {
	mu      sync.Mutex
	windows map[string][]int64
	failErr error
}

func NewInMemoryWindowStore() *InMemoryWindowStore {
	return &InMemoryWindowStore{
		windows: make(map[string][]int64),
	}
}

// FailWith makes every subsequent Slide return err. Pass nil to recover.
func (s *InMemoryWindowStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

func (s *InMemoryWindowStore) Slide(_ context.Context, key string, nowMillis, windowMillis int64, max int) (SlideOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failErr != nil {
		return SlideOutcome{}, s.failErr
	}

	cutoff := nowMillis - windowMillis
	recent := s.windows[key][:0]
	for _, t := range s.windows[key] {
		if t > cutoff {
			recent = append(recent, t)
		}
	}
	sort.Slice(recent, func(i, j int) bool { return recent[i] < recent[j] })

	count := len(recent)
	var oldest int64
	if count > 0 {
		oldest = recent[0]
	}

	if count >= max {
		s.windows[key] = recent
		return SlideOutcome{Allowed: false, Count: count, OldestMillis: oldest}, nil
	}

	s.windows[key] = append(recent, nowMillis)
	if count == 0 {
		oldest = 0
	}
	return SlideOutcome{Allowed: true, Count: count, OldestMillis: oldest}, nil
}

// Cleanup drops identifiers whose windows are fully expired. Offline
// maintenance, not part of request handling.
func (s *InMemoryWindowStore) Cleanup(nowMillis, windowMillis int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := nowMillis - windowMillis
	for key, times := range s.windows {
		live := false
		for _, t := range times {
			if t > cutoff {
				live = true
				break
			}
		}
		if !live {
			delete(s.windows, key)
		}
	}
}
