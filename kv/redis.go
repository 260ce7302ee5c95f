package kv

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/pulsetrack/pulsetrack/internal/errors"
)

var _ Store = (*Redis)(nil)

// Redis implements Store over a go-redis client. Connectivity failures
// surface as ErrStoreUnavailable so callers can distinguish "key absent"
// from "store down".
type Redis struct {
	client redis.UniversalClient
}

// NewRedis wraps an existing client. The caller owns the client's
// lifecycle (construction, ping, close).
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", apperrors.ErrNotFound
	}
	if err != nil {
		return "", apperrors.Wrapf(apperrors.ErrStoreUnavailable, "get %q: %v", key, err)
	}
	return val, nil
}

func (r *Redis) SetEx(ctx context.Context, key, value string, ttlSeconds int) error {
	if err := r.client.Set(ctx, key, value, time.Duration(ttlSeconds)*time.Second).Err(); err != nil {
		return apperrors.Wrapf(apperrors.ErrStoreUnavailable, "setex %q: %v", key, err)
	}
	return nil
}

func (r *Redis) GetDel(ctx context.Context, key string) (string, error) {
	val, err := r.client.GetDel(ctx, key).Result()
	if err == redis.Nil {
		return "", apperrors.ErrNotFound
	}
	if err != nil {
		return "", apperrors.Wrapf(apperrors.ErrStoreUnavailable, "getdel %q: %v", key, err)
	}
	return val, nil
}

func (r *Redis) Del(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Del(ctx, key).Result()
	if err != nil {
		return false, apperrors.Wrapf(apperrors.ErrStoreUnavailable, "del %q: %v", key, err)
	}
	return n > 0, nil
}
