// Package ratelimit implements a store-backed sliding-window rate
// limiter. Each identifier owns an ordered set of request timestamps;
// a request is admitted when fewer than MaxRequests timestamps fall
// inside the trailing window. Admission and insertion happen in one
// atomic store operation, so concurrent requests for the same
// identifier can never over-admit.
package ratelimit

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Config describes one limiter instance.
type Config struct {
	MaxRequests int
	Window      time.Duration
	KeyPrefix   string
}

// Preconfigured limiter tiers. Multiple named instances coexist; routes
// pick the tier matching their abuse profile.
var (
	StrictConfig = Config{MaxRequests: 5, Window: time.Minute, KeyPrefix: "ratelimit:strict"}
	AuthConfig   = Config{MaxRequests: 10, Window: time.Minute, KeyPrefix: "ratelimit:auth"}
	APIConfig    = Config{MaxRequests: 100, Window: time.Minute, KeyPrefix: "ratelimit:api"}
	SyncConfig   = Config{MaxRequests: 5, Window: 5 * time.Minute, KeyPrefix: "ratelimit:sync"}
)

// Result is the outcome of one Limit evaluation.
type Result struct {
	Allowed   bool
	Remaining int
	// Reset is the epoch-millis instant at which a denied caller can
	// expect a slot: for an admitted request, now + window; for a denied
	// one, when the oldest blocking entry falls out of the window.
	Reset int64
}

// SlideOutcome is what a WindowStore reports for one evaluation.
type SlideOutcome struct {
	Allowed      bool
	Count        int   // entries inside the window before this request
	OldestMillis int64 // oldest surviving entry; 0 when the window is empty
}

// WindowStore prunes, counts, and conditionally inserts in a single
// atomic operation relative to the store. Implementations must
// guarantee that two concurrent Slide calls for the same key cannot
// both be admitted when only one slot remains.
type WindowStore interface {
	Slide(ctx context.Context, key string, nowMillis, windowMillis int64, max int) (SlideOutcome, error)
}

// Limiter evaluates requests against one Config.
type Limiter struct {
	config  Config
	store   WindowStore
	nowTime func() time.Time
}

// LimiterOption modifies a Limiter instance.
type LimiterOption func(*Limiter)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) LimiterOption {
	return func(l *Limiter) {
		l.nowTime = nowFunc
	}
}

// New creates a limiter over the given window store.
func New(config Config, store WindowStore, options ...LimiterOption) (*Limiter, error) {
	if store == nil {
		return nil, errors.New("[ratelimit New] store is required")
	}
	if config.MaxRequests <= 0 {
		return nil, errors.New("[ratelimit New] MaxRequests must be positive")
	}
	if config.Window <= 0 {
		return nil, errors.New("[ratelimit New] Window must be positive")
	}
	if config.KeyPrefix == "" {
		return nil, errors.New("[ratelimit New] KeyPrefix is required")
	}

	l := &Limiter{
		config:  config,
		store:   store,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(l)
	}
	return l, nil
}

// Config returns the limiter's configuration.
func (l *Limiter) Config() Config { return l.config }

// Limit evaluates one request for identifier.
//
// Fail-open: a store error is logged and treated as an unconditional
// admit with full remaining quota. An unreachable rate-limit store must
// never become a denial-of-service vector against the application.
func (l *Limiter) Limit(ctx context.Context, identifier string) Result {
	now := l.nowTime().UnixMilli()
	windowMillis := l.config.Window.Milliseconds()
	key := l.config.KeyPrefix + ":" + identifier

	outcome, err := l.store.Slide(ctx, key, now, windowMillis, l.config.MaxRequests)
	if err != nil {
		log.Error().Err(err).Str("key", key).
			Msg("rate limit store error, failing open")
		return Result{
			Allowed:   true,
			Remaining: l.config.MaxRequests,
			Reset:     now + windowMillis,
		}
	}

	if !outcome.Allowed {
		reset := now + windowMillis
		if outcome.OldestMillis > 0 {
			reset = outcome.OldestMillis + windowMillis
		}
		return Result{Allowed: false, Remaining: 0, Reset: reset}
	}

	return Result{
		Allowed:   true,
		Remaining: l.config.MaxRequests - outcome.Count - 1,
		Reset:     now + windowMillis,
	}
}
