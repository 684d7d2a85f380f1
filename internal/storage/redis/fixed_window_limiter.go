package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// FixedWindowLimiter counts hits per key in fixed, wall-clock aligned windows.
type FixedWindowLimiter struct {
	client goredis.Cmdable
	prefix string
	window time.Duration
	now    func() time.Time
}

func NewFixedWindowLimiter(client goredis.Cmdable, prefix string, window time.Duration) *FixedWindowLimiter {
	if prefix == "" {
		prefix = "rate"
	}
	if window < time.Second {
		window = time.Minute
	}
	return &FixedWindowLimiter{
		client: client,
		prefix: prefix,
		window: window,
		now:    time.Now,
	}
}

// Incr increments the counter for (key, current window) and returns the new count.
func (l *FixedWindowLimiter) Incr(ctx context.Context, key string) (int64, error) {
	if key == "" {
		key = "unknown"
	}

	redisKey := l.bucketKey(key)

	var incr *goredis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		// The bucket is part of the key, so the TTL only reclaims memory.
		pipe.Expire(ctx, redisKey, 2*l.window)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", redisKey, err)
	}
	return incr.Val(), nil
}

func (l *FixedWindowLimiter) bucketKey(key string) string {
	windowSeconds := int64(l.window / time.Second)
	bucket := l.now().UTC().Unix() / windowSeconds
	return fmt.Sprintf("%s:%s:%d", l.prefix, key, bucket)
}
