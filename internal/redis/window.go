package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript trims expired entries, then admits the hit only while
// the window has room. Rejected hits are not recorded, so a client that keeps
// retrying is let back in once its oldest admitted hit ages out.
//
// Returns {allowed, remaining, retry_after_ms}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count < limit then
	redis.call('ZADD', key, now, ARGV[4])
	redis.call('PEXPIRE', key, window)
	return {1, limit - count - 1, 0}
end

local retry = window
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if oldest[2] then
	retry = tonumber(oldest[2]) + window - now
end
return {0, 0, retry}
`)

// WindowResult is the outcome of one SlidingWindow.Take.
type WindowResult struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// SlidingWindow counts hits per key over a trailing window in a Redis sorted set.
// Each Take runs as one script, so concurrent callers cannot overshoot the limit.
type SlidingWindow struct {
	client redis.Scripter
	prefix string
}

func NewSlidingWindow(client redis.Scripter, prefix string) *SlidingWindow {
	return &SlidingWindow{client: client, prefix: prefix}
}

func (w *SlidingWindow) Take(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (WindowResult, error) {
	res, err := slidingWindowScript.Run(ctx, w.client,
		[]string{w.prefix + key},
		now.UnixMilli(),
		window.Milliseconds(),
		limit,
		strconv.FormatInt(now.UnixNano(), 10)+"-"+uuid.NewString()[:8],
	).Int64Slice()
	if err != nil {
		return WindowResult{}, fmt.Errorf("sliding window %s: %w", w.prefix, err)
	}
	if len(res) != 3 {
		return WindowResult{}, fmt.Errorf("sliding window %s: unexpected reply %v", w.prefix, res)
	}

	return WindowResult{
		Allowed:    res[0] == 1,
		Remaining:  int(res[1]),
		RetryAfter: time.Duration(res[2]) * time.Millisecond,
	}, nil
}
