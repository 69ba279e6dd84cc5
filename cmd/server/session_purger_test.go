package main

import (
	"context"
	"testing"
	"time"
)

type fakeRegistry struct {
	size int
}

func (f *fakeRegistry) Size() int { return f.size }

type manualTicker struct {
	c       chan time.Time
	stopped chan struct{}
}

func newManualTicker() *manualTicker {
	return &manualTicker{
		c:       make(chan time.Time, 1),
		stopped: make(chan struct{}),
	}
}

func (m *manualTicker) C() <-chan time.Time {
	return m.c
}

func (m *manualTicker) Stop() {
	select {
	case <-m.stopped:
		return
	default:
		close(m.stopped)
	}
}

func (m *manualTicker) Tick() {
	select {
	case m.c <- time.Now():
	default:
	}
}

func TestStartMetricsReconciler(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticker := newManualTicker()
	registry := &fakeRegistry{size: 3}
	synced := make(chan int, 1)

	stop := startMetricsReconcilerWithTicker(ctx, registry, func(n int) {
		select {
		case synced <- n:
		default:
		}
	}, time.Minute, func(time.Duration) purgeTicker {
		return ticker
	})

	ticker.Tick()
	select {
	case n := <-synced:
		if n != 3 {
			t.Fatalf("expected sync with 3, got %d", n)
		}
	case <-time.After(time.Second):
		t.Fatal("expected reconciler to sync")
	}

	cancel()
	stop()

	select {
	case <-ticker.stopped:
	case <-time.After(time.Second):
		t.Fatal("expected ticker to stop after context cancellation")
	}
}

func TestStartMetricsReconcilerNoopWithoutRegistry(t *testing.T) {
	stop := startMetricsReconciler(context.Background(), nil, func(int) {}, time.Minute)
	stop()
}
