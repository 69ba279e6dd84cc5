package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RateLimitConfig bounds request volume on the ingestion API. GlobalRPS caps
// total throughput; WebhookLimit/WebhookWindow cap webhook deliveries per
// sending IP, optionally through a shared Redis counter so the limit holds
// across replicas.
type RateLimitConfig struct {
	GlobalRPS     float64
	GlobalBurst   int
	WebhookLimit  int
	WebhookWindow time.Duration
	RedisAddr     string
	RedisPassword string
	RedisTimeout  time.Duration
}

type rateLimiter struct {
	global        *tokenBucket
	webhookLimit  int
	webhookWindow time.Duration
	mu            sync.Mutex
	buckets       map[string]*ipLimiter
	store         *redisCounterStore
}

type ipLimiter struct {
	bucket   *tokenBucket
	lastSeen time.Time
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	rl := &rateLimiter{
		webhookLimit:  cfg.WebhookLimit,
		webhookWindow: cfg.WebhookWindow,
		buckets:       make(map[string]*ipLimiter),
	}
	if cfg.GlobalRPS > 0 {
		burst := cfg.GlobalBurst
		if burst <= 0 {
			burst = int(cfg.GlobalRPS)
			if burst < 1 {
				burst = 1
			}
		}
		rl.global = newTokenBucket(cfg.GlobalRPS, burst)
	}
	if rl.webhookWindow <= 0 {
		rl.webhookWindow = time.Minute
	}
	if cfg.RedisAddr != "" && rl.webhookLimit > 0 {
		timeout := cfg.RedisTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		rl.store = newRedisCounterStore(cfg.RedisAddr, cfg.RedisPassword, timeout)
	}
	return rl
}

func (r *rateLimiter) Close() error {
	if r == nil || r.store == nil {
		return nil
	}
	return r.store.Close()
}

func (r *rateLimiter) AllowRequest() bool {
	if r == nil || r.global == nil {
		return true
	}
	return r.global.Allow()
}

// AllowWebhook reports whether a webhook delivery from key (the sender's
// client IP) is within the configured window limit.
func (r *rateLimiter) AllowWebhook(ctx context.Context, key string) (bool, time.Duration, error) {
	if r == nil || r.webhookLimit <= 0 {
		return true, 0, nil
	}
	if r.store != nil {
		allowed, retryAfter, err := r.store.Allow(ctx, fmt.Sprintf("rtms:webhook:%s", key), r.webhookLimit, r.webhookWindow)
		return allowed, retryAfter, err
	}
	if key == "" {
		key = "unknown"
	}
	r.mu.Lock()
	bucket, exists := r.buckets[key]
	if !exists {
		rate := float64(r.webhookLimit) / r.webhookWindow.Seconds()
		if rate <= 0 {
			rate = 1 / r.webhookWindow.Seconds()
		}
		bucket = &ipLimiter{bucket: newTokenBucket(rate, r.webhookLimit)}
		r.buckets[key] = bucket
	}
	bucket.lastSeen = time.Now()
	r.cleanupLocked()
	r.mu.Unlock()

	if bucket.bucket.Allow() {
		return true, 0, nil
	}
	return false, time.Second, nil
}

func (r *rateLimiter) cleanupLocked() {
	if len(r.buckets) == 0 {
		return
	}
	cutoff := time.Now().Add(-2 * r.webhookWindow)
	for key, bucket := range r.buckets {
		if bucket.lastSeen.Before(cutoff) {
			delete(r.buckets, key)
		}
	}
}

type tokenBucket struct {
	mu        sync.Mutex
	rate      float64
	capacity  float64
	tokens    float64
	lastCheck time.Time
}

func newTokenBucket(rate float64, burst int) *tokenBucket {
	if rate <= 0 {
		rate = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &tokenBucket{
		rate:      rate,
		capacity:  float64(burst),
		tokens:    float64(burst),
		lastCheck: time.Now(),
	}
}

func (tb *tokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	now := time.Now()
	elapsed := now.Sub(tb.lastCheck).Seconds()
	tb.lastCheck = now
	tb.tokens += elapsed * tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	if tb.tokens < 1 {
		return false
	}
	tb.tokens -= 1
	return true
}

// redisCounterStore backs a fixed-window counter with INCR/EXPIRE so the
// webhook rate limit is shared across replicas instead of per-process.
type redisCounterStore struct {
	client *redis.Client
}

func newRedisCounterStore(addr, password string, timeout time.Duration) *redisCounterStore {
	return &redisCounterStore{client: redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})}
}

func (s *redisCounterStore) Close() error {
	return s.client.Close()
}

func (s *redisCounterStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, err
	}
	if count == 1 {
		if err := s.client.Expire(ctx, key, window).Err(); err != nil {
			return false, 0, err
		}
	}
	if count <= int64(limit) {
		return true, 0, nil
	}
	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return false, 0, err
	}
	if ttl < 0 {
		return false, window, nil
	}
	return false, ttl, nil
}
