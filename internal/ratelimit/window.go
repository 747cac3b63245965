package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// hitScript prunes expired attempts and records a new one only while the key
// is under its limit, so rejected attempts do not push the window forward.
// It returns {allowed, count, resetMillis}.
var hitScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - window)
local count = redis.call("ZCARD", KEYS[1])
local allowed = 0
if count < limit then
  redis.call("ZADD", KEYS[1], now, ARGV[4])
  count = count + 1
  allowed = 1
end
redis.call("PEXPIRE", KEYS[1], window)
local reset = now + window
local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
if oldest[2] then
  reset = tonumber(oldest[2]) + window
end
return {allowed, count, reset}
`)

// Decision is the outcome of one attempt against a Window.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Window is a sliding-window attempt counter kept in a Redis sorted set per
// key. A nil Client allows everything.
type Window struct {
	Client *redis.Client
	Prefix string
	Now    func() time.Time
}

func (w Window) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

// Hit records an attempt for key when fewer than limit attempts happened in
// the trailing period.
func (w Window) Hit(ctx context.Context, key string, limit int, period time.Duration) (Decision, error) {
	now := w.now()
	if w.Client == nil || limit <= 0 || period <= 0 {
		return Decision{Allowed: true, Limit: limit, Remaining: limit, ResetAt: now.Add(period)}, nil
	}
	if key == "" {
		return Decision{}, errors.New("ratelimit: empty key")
	}

	res, err := hitScript.Run(ctx, w.Client, []string{w.Prefix + key},
		now.UnixMilli(), period.Milliseconds(), limit, uuid.NewString()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("ratelimit: unexpected script reply %v", res)
	}

	d := Decision{
		Allowed:   res[0] == 1,
		Limit:     limit,
		Remaining: limit - int(res[1]),
		ResetAt:   time.UnixMilli(res[2]),
	}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if !d.Allowed {
		d.RetryAfter = d.ResetAt.Sub(now)
	}
	return d, nil
}
