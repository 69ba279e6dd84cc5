package server

import (
	"context"
	"testing"
	"time"

	"rtms-ingest/internal/testsupport/redisstub"
)

func TestRateLimiterAllowWebhookUsesRedisCounter(t *testing.T) {
	stub, err := redisstub.Start(redisstub.Options{})
	if err != nil {
		t.Fatalf("start redis stub: %v", err)
	}
	defer stub.Close()

	rl := newRateLimiter(RateLimitConfig{
		WebhookLimit:  3,
		WebhookWindow: time.Minute,
		RedisAddr:     stub.Addr(),
		RedisTimeout:  2 * time.Second,
	})
	defer rl.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		allowed, _, err := rl.AllowWebhook(ctx, "203.0.113.9")
		if err != nil {
			t.Fatalf("AllowWebhook: %v", err)
		}
		if !allowed {
			t.Fatalf("request %d: expected allowed within limit", i)
		}
	}

	allowed, retryAfter, err := rl.AllowWebhook(ctx, "203.0.113.9")
	if err != nil {
		t.Fatalf("AllowWebhook over limit: %v", err)
	}
	if allowed {
		t.Fatal("expected fourth request from the same IP to be rejected")
	}
	if retryAfter <= 0 {
		t.Fatalf("expected a positive retry-after, got %v", retryAfter)
	}
}

func TestRateLimiterAllowWebhookPerKeyIsolation(t *testing.T) {
	stub, err := redisstub.Start(redisstub.Options{})
	if err != nil {
		t.Fatalf("start redis stub: %v", err)
	}
	defer stub.Close()

	rl := newRateLimiter(RateLimitConfig{
		WebhookLimit:  1,
		WebhookWindow: time.Minute,
		RedisAddr:     stub.Addr(),
		RedisTimeout:  2 * time.Second,
	})
	defer rl.Close()

	ctx := context.Background()
	allowed, _, err := rl.AllowWebhook(ctx, "198.51.100.1")
	if err != nil || !allowed {
		t.Fatalf("first IP should be allowed: allowed=%v err=%v", allowed, err)
	}

	allowed, _, err = rl.AllowWebhook(ctx, "198.51.100.2")
	if err != nil || !allowed {
		t.Fatalf("second IP should be independently allowed: allowed=%v err=%v", allowed, err)
	}

	allowed, _, err = rl.AllowWebhook(ctx, "198.51.100.1")
	if err != nil {
		t.Fatalf("AllowWebhook: %v", err)
	}
	if allowed {
		t.Fatal("first IP's second request should be rejected")
	}
}

func TestRateLimiterFallsBackToInMemoryWithoutRedisAddr(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{
		WebhookLimit:  2,
		WebhookWindow: time.Minute,
	})
	defer rl.Close()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		allowed, _, err := rl.AllowWebhook(ctx, "10.0.0.5")
		if err != nil || !allowed {
			t.Fatalf("request %d should be allowed in-memory: allowed=%v err=%v", i, allowed, err)
		}
	}

	allowed, _, err := rl.AllowWebhook(ctx, "10.0.0.5")
	if err != nil {
		t.Fatalf("AllowWebhook: %v", err)
	}
	if allowed {
		t.Fatal("expected third in-memory request to be throttled")
	}
}
