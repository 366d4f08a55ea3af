package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Store counts hits against sliding windows. Implementations must be safe
// for concurrent use from multiple goroutines and processes.
type Store interface {
	// Hit records one hit against key if the window still has room and
	// reports the resulting state: the number of hits inside the window,
	// the timestamp of the oldest recorded hit, and whether this hit was
	// admitted. A denied hit is not recorded, so it consumes no quota and
	// does not push the reset time out.
	Hit(ctx context.Context, key string, window time.Duration, limit int) (count int64, oldest time.Time, allowed bool, err error)
}

// slidingWindowScript trims aged-out hits, admits the new one if the window
// has room, and reports the window state in a single round trip so that
// concurrent checks cannot interleave between the read and the write.
//
// Scores are milliseconds since the Unix epoch. Returns {allowed, count,
// oldest score}; oldest falls back to now when the window is empty.
var slidingWindowScript = redis.NewScript(`
local key    = KEYS[1]
local now    = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit  = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)

local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
    redis.call('ZADD', key, now, member)
    redis.call('PEXPIRE', key, window)
    count = count + 1
    allowed = 1
end

local oldest = now
local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if first[2] then
    oldest = tonumber(first[2])
end

return {allowed, count, oldest}
`)

// RedisStore implements Store on one Redis sorted set per key. Members get
// a random suffix so two hits landing in the same millisecond stay distinct.
type RedisStore struct {
	client *redis.Client

	// now is swapped out in tests
	now func() time.Time
}

// NewRedisStore creates a Store backed by the given Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		now:    time.Now,
	}
}

// Hit implements Store.
func (s *RedisStore) Hit(ctx context.Context, key string, window time.Duration, limit int) (int64, time.Time, bool, error) {
	now := s.now()

	reply, err := slidingWindowScript.Run(ctx, s.client,
		[]string{key},
		now.UnixMilli(), window.Milliseconds(), limit, uuid.NewString(),
	).Result()
	if err != nil {
		return 0, time.Time{}, false, fmt.Errorf("failed to run sliding window script: %w", err)
	}

	values, ok := reply.([]interface{})
	if !ok || len(values) != 3 {
		return 0, time.Time{}, false, fmt.Errorf("unexpected sliding window reply: %#v", reply)
	}

	allowed, err := replyInt(values[0])
	if err != nil {
		return 0, time.Time{}, false, fmt.Errorf("unexpected sliding window reply: %w", err)
	}
	count, err := replyInt(values[1])
	if err != nil {
		return 0, time.Time{}, false, fmt.Errorf("unexpected sliding window reply: %w", err)
	}
	oldestMs, err := replyInt(values[2])
	if err != nil {
		return 0, time.Time{}, false, fmt.Errorf("unexpected sliding window reply: %w", err)
	}

	return count, time.UnixMilli(oldestMs), allowed == 1, nil
}

func replyInt(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("element %T is not an integer", v)
	}
}
