package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter decides whether key may make another mutating call.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type rateBucket struct {
	tokens     float64
	lastRefill time.Time
}

// TokenBucketLimiter keeps one in-process bucket per key.
type TokenBucketLimiter struct {
	burst              int
	sustainedPerMinute int
	now                func() time.Time

	mu        sync.Mutex
	buckets   map[string]*rateBucket
	lastSweep time.Time
}

func NewTokenBucketLimiter(burst, sustainedPerMinute int) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		burst:              burst,
		sustainedPerMinute: sustainedPerMinute,
		now:                time.Now,
		buckets:            make(map[string]*rateBucket),
	}
}

func (l *TokenBucketLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now)

	bucket, ok := l.buckets[key]
	if !ok {
		bucket = &rateBucket{tokens: float64(l.burst), lastRefill: now}
		l.buckets[key] = bucket
	}

	elapsed := now.Sub(bucket.lastRefill).Seconds()
	if elapsed > 0 {
		refillRate := float64(l.sustainedPerMinute) / 60.0
		bucket.tokens = min(float64(l.burst), bucket.tokens+elapsed*refillRate)
		bucket.lastRefill = now
	}

	if bucket.tokens < 1 {
		return false, nil
	}
	bucket.tokens--
	return true, nil
}

// idleAfter is how long a bucket takes to refill from empty to burst. An idle
// bucket past that point is indistinguishable from a new one.
func (l *TokenBucketLimiter) idleAfter() time.Duration {
	if l.sustainedPerMinute <= 0 {
		return time.Hour
	}
	return time.Duration(float64(l.burst) / float64(l.sustainedPerMinute) * float64(time.Minute))
}

// sweep drops idle buckets, at most once per idle period. Callers hold l.mu.
func (l *TokenBucketLimiter) sweep(now time.Time) {
	idle := l.idleAfter()
	if now.Sub(l.lastSweep) < idle {
		return
	}
	l.lastSweep = now
	for key, bucket := range l.buckets {
		if now.Sub(bucket.lastRefill) >= idle {
			delete(l.buckets, key)
		}
	}
}

// RedisLimiter is a fixed-window counter shared by every replica.
type RedisLimiter struct {
	client redis.Cmdable
	limit  int64
	window time.Duration
	prefix string
	now    func() time.Time
}

func NewRedisLimiter(client redis.Cmdable, perMinute int) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limit:  int64(perMinute),
		window: time.Minute,
		prefix: "crewhall:ratelimit",
		now:    time.Now,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	windowStart := l.now().Truncate(l.window).Unix()
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, windowStart)

	var incr *redis.IntCmd
	if _, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.Expire(ctx, redisKey, l.window)
		return nil
	}); err != nil {
		return false, fmt.Errorf("increment rate limit counter: %w", err)
	}
	return incr.Val() <= l.limit, nil
}

// NewRedisClient parses url and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
