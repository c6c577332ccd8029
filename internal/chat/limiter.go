package chat

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	iredis "github.com/aichat-platform/aichat/internal/redis"
)

const burstWindow = time.Minute

// BurstLimiter caps chat requests per account per minute. It sits in front
// of the ledger and never touches quota counters.
type BurstLimiter struct {
	window *iredis.SlidingWindow
	now    func() time.Time
}

func NewBurstLimiter(rdb redis.Scripter) *BurstLimiter {
	return &BurstLimiter{window: iredis.NewSlidingWindow(rdb, "chat:burst:"), now: time.Now}
}

// Allow records one request for accountKey and reports whether it fits under maxPerMinute.
func (l *BurstLimiter) Allow(ctx context.Context, accountKey string, maxPerMinute int) (bool, error) {
	res, err := l.window.Take(ctx, accountKey, maxPerMinute, burstWindow, l.now())
	if err != nil {
		return false, err
	}
	return res.Allowed, nil
}
