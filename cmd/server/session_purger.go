package main

import (
	"context"
	"sync"
	"time"
)

// registryReconciler is the narrow view of the Connection Registry the
// periodic worker needs: an authoritative active-session count to
// correct gauge drift.
type registryReconciler interface {
	Size() int
}

type purgeTicker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	ticker *time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t timeTicker) Stop() {
	t.ticker.Stop()
}

type tickerFactory func(time.Duration) purgeTicker

// startMetricsReconciler periodically overwrites the sessions-active
// gauge with the Registry's own count, so a missed SessionStopped call
// (crash mid-session, panic in a handler) can't leave the gauge stuck
// above the real active count indefinitely.
func startMetricsReconciler(ctx context.Context, registry registryReconciler, syncGauge func(int), interval time.Duration) func() {
	return startMetricsReconcilerWithTicker(ctx, registry, syncGauge, interval, func(d time.Duration) purgeTicker {
		return timeTicker{ticker: time.NewTicker(d)}
	})
}

func startMetricsReconcilerWithTicker(
	ctx context.Context,
	registry registryReconciler,
	syncGauge func(int),
	interval time.Duration,
	newTicker tickerFactory,
) func() {
	if registry == nil || syncGauge == nil || interval <= 0 {
		return func() {}
	}
	workerCtx, cancel := context.WithCancel(ctx)
	ticker := newTicker(interval)
	done := make(chan struct{})
	go func() {
		defer func() {
			ticker.Stop()
			close(done)
		}()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C():
				syncGauge(registry.Size())
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}
