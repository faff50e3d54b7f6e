package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "admin:login_attempts:"

var hitScript = redis.NewScript(`
-- KEYS[1] = entry hash (fields: count, locked_until)
-- ARGV[1] = now_ms
-- ARGV[2] = max attempts
-- ARGV[3] = lockout_ms
-- ARGV[4] = idle ttl_ms for unlocked counters
--
-- Returns {count, locked_until_ms, counted}
local now = tonumber(ARGV[1])
local locked = tonumber(redis.call('HGET', KEYS[1], 'locked_until') or '0')

if locked > 0 and locked <= now then
  redis.call('DEL', KEYS[1])
  locked = 0
end
if locked > now then
  return {tonumber(redis.call('HGET', KEYS[1], 'count') or '0'), locked, 0}
end

local count = redis.call('HINCRBY', KEYS[1], 'count', 1)
if count >= tonumber(ARGV[2]) then
  locked = now + tonumber(ARGV[3])
  redis.call('HSET', KEYS[1], 'locked_until', locked)
  redis.call('PEXPIRE', KEYS[1], ARGV[3])
else
  redis.call('PEXPIRE', KEYS[1], ARGV[4])
end
return {count, locked, 1}
`)

// RedisStore shares counters between API instances. Each hit is a single Lua
// script, so increments are atomic across processes.
type RedisStore struct {
	rdb redis.Cmdable
	// IdleTTL bounds how long an unlocked counter survives without new failures.
	IdleTTL time.Duration
}

func NewRedisStore(rdb redis.Cmdable) *RedisStore {
	return &RedisStore{rdb: rdb, IdleTTL: 24 * time.Hour}
}

func redisKey(identifier string) string { return redisKeyPrefix + identifier }

func (s *RedisStore) Get(ctx context.Context, identifier string) (Entry, bool, error) {
	vals, err := s.rdb.HMGet(ctx, redisKey(identifier), "count", "locked_until").Result()
	if err != nil {
		return Entry{}, false, fmt.Errorf("ratelimit: redis get: %w", err)
	}
	if len(vals) != 2 || vals[0] == nil {
		return Entry{}, false, nil
	}
	count, err := parseRedisInt(vals[0])
	if err != nil {
		return Entry{}, false, err
	}
	e := Entry{Identifier: identifier, Count: int(count)}
	if vals[1] != nil {
		ms, err := parseRedisInt(vals[1])
		if err != nil {
			return Entry{}, false, err
		}
		if ms > 0 {
			e.LockedUntil = time.UnixMilli(ms)
		}
	}
	return e, true, nil
}

func (s *RedisStore) Hit(ctx context.Context, identifier string, now time.Time, maxAttempts int, lockout time.Duration) (Entry, bool, error) {
	idle := s.IdleTTL
	if idle < lockout {
		idle = lockout
	}
	res, err := hitScript.Run(ctx, s.rdb, []string{redisKey(identifier)},
		now.UnixMilli(), maxAttempts, lockout.Milliseconds(), idle.Milliseconds()).Int64Slice()
	if err != nil {
		return Entry{}, false, fmt.Errorf("ratelimit: redis hit: %w", err)
	}
	if len(res) != 3 {
		return Entry{}, false, errors.New("ratelimit: unexpected script reply")
	}
	e := Entry{Identifier: identifier, Count: int(res[0]), UpdatedAt: now}
	if res[1] > 0 {
		e.LockedUntil = time.UnixMilli(res[1])
	}
	return e, res[2] == 1, nil
}

func (s *RedisStore) Clear(ctx context.Context, identifier string) error {
	if err := s.rdb.Del(ctx, redisKey(identifier)).Err(); err != nil {
		return fmt.Errorf("ratelimit: redis clear: %w", err)
	}
	return nil
}

func parseRedisInt(v any) (int64, error) {
	switch t := v.(type) {
	case string:
		return strconv.ParseInt(t, 10, 64)
	case int64:
		return t, nil
	default:
		return 0, fmt.Errorf("ratelimit: unexpected redis value %T", v)
	}
}
