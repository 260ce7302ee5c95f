package ratelimit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slideScript runs the whole evaluation server-side: prune entries that
// fell out of the window, count what remains, and either record the new
// request and refresh the key's TTL, or report the oldest blocking
// entry. Running it as one script is what makes concurrent evaluations
// for the same key race-free.
//
// Members are "<millis>-<random>" so two requests landing in the same
// millisecond still occupy distinct slots; the score carries the
// timestamp used for pruning.
var slideScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local count = redis.call('ZCARD', key)

if count < max then
	redis.call('ZADD', key, now, member)
	redis.call('PEXPIRE', key, window)
	return {1, count, 0}
end

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
return {0, count, tonumber(oldest[2])}
`)

var _ WindowStore = (*RedisWindowStore)(nil)

// RedisWindowStore keeps each identifier's window as a Redis sorted set
// scored by request timestamp.
type RedisWindowStore struct {
	client redis.UniversalClient
}

func NewRedisWindowStore(client redis.UniversalClient) *RedisWindowStore {
	return &RedisWindowStore{client: client}
}

func (s *RedisWindowStore) Slide(ctx context.Context, key string, nowMillis, windowMillis int64, max int) (SlideOutcome, error) {
	member := fmt.Sprintf("%d-%s", nowMillis, uuid.New().String())

	raw, err := slideScript.Run(ctx, s.client, []string{key}, nowMillis, windowMillis, max, member).Result()
	if err != nil {
		return SlideOutcome{}, fmt.Errorf("slide script: %w", err)
	}

	reply, ok := raw.([]interface{})
	if !ok || len(reply) != 3 {
		return SlideOutcome{}, fmt.Errorf("slide script: unexpected reply %v", raw)
	}

	allowed, _ := reply[0].(int64)
	count, _ := reply[1].(int64)
	oldest, _ := reply[2].(int64)

	return SlideOutcome{
		Allowed:      allowed == 1,
		Count:        int(count),
		OldestMillis: oldest,
	}, nil
}
