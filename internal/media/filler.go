// Package media implements the jitter/gap fillers that pace audio and
// video frames to a constant output rate, plus the passthrough emitter
// used when pacing is disabled.
package media

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"rtms-ingest/internal/logging"
	"rtms-ingest/internal/metrics"
)

// Emitter is the uniform interface both Filler and Passthrough satisfy, so
// a session can swap pacing behaviour without changing the call site.
type Emitter interface {
	// Push enqueues a real packet arriving at timestamp (ms). meta carries
	// caller-defined context (e.g. speaker identity) through to the
	// emitted Frame untouched.
	Push(timestamp int64, data []byte, meta any)
	// Stop flushes any trailing fillers up to endTime and halts emission.
	Stop(endTime int64)
}

// Frame is one output unit: either a real packet or a filler (synthetic
// silence/black frame). Meta is nil for filler frames.
type Frame struct {
	Timestamp int64
	Data      []byte
	Real      bool
	Meta      any
}

// OutputFunc receives each emitted frame, in strictly monotone timestamp
// order.
type OutputFunc func(Frame)

type packet struct {
	timestamp int64
	data      []byte
	meta      any
}

// Filler paces one media type's output at a fixed tick interval
// (frameDuration), smoothing arrival jitter and injecting filler frames
// across gaps so downstream consumers see a constant-rate stream.
type Filler struct {
	mediaType      string
	frameDuration  int64 // ms
	fillerPayload  []byte
	output         OutputFunc
	logger         zerolog.Logger
	metrics        *metrics.Recorder
	realThrottle   *logging.Throttle
	fillerThrottle *logging.Throttle

	mu          sync.Mutex
	buffer      []packet
	expected    int64
	hasExpected bool
	stopped     bool

	ticker *time.Ticker
	done   chan struct{}
}

// Config configures a Filler.
type Config struct {
	MediaType     string
	FrameDuration time.Duration
	FillerPayload []byte
	Output        OutputFunc
	Logger        zerolog.Logger
	Metrics       *metrics.Recorder
}

// NewFiller builds and starts a Filler ticking every cfg.FrameDuration.
func NewFiller(cfg Config) *Filler {
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.Default()
	}
	f := &Filler{
		mediaType:      cfg.MediaType,
		frameDuration:  cfg.FrameDuration.Milliseconds(),
		fillerPayload:  cfg.FillerPayload,
		output:         cfg.Output,
		logger:         logging.Component(cfg.Logger, "filler"),
		metrics:        recorder,
		realThrottle:   logging.NewThrottle(5 * time.Second),
		fillerThrottle: logging.NewThrottle(time.Second),
		done:           make(chan struct{}),
	}
	f.ticker = time.NewTicker(cfg.FrameDuration)
	go f.run()
	return f
}

func (f *Filler) run() {
	for {
		select {
		case <-f.ticker.C:
			f.tick()
		case <-f.done:
			return
		}
	}
}

// Push inserts a real packet in timestamp order. Fast path: append when the
// new timestamp is at or after the last buffered one; otherwise binary
// search for the insertion point.
func (f *Filler) Push(timestamp int64, data []byte, meta any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return
	}
	p := packet{timestamp: timestamp, data: data, meta: meta}
	n := len(f.buffer)
	if n == 0 || f.buffer[n-1].timestamp <= timestamp {
		f.buffer = append(f.buffer, p)
		return
	}
	lo, hi := 0, n
	for lo < hi {
		mid := (lo + hi) / 2
		if f.buffer[mid].timestamp < timestamp {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	f.buffer = append(f.buffer, packet{})
	copy(f.buffer[lo+1:], f.buffer[lo:])
	f.buffer[lo] = p
}

func (f *Filler) tick() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return
	}

	if !f.hasExpected {
		if len(f.buffer) == 0 {
			return
		}
		first := f.popFrontLocked()
		f.expected = first.timestamp
		f.hasExpected = true
		f.emitRealLocked(first)
		f.expected += f.frameDuration
		return
	}

	for len(f.buffer) > 0 {
		front := f.buffer[0]
		diff := front.timestamp - f.expected
		switch {
		case diff < -10*f.frameDuration:
			f.popFrontLocked()
			f.emitRealLocked(front)
			f.expected = front.timestamp + f.frameDuration
			return
		case diff < 0:
			f.popFrontLocked()
			continue
		case abs64(diff) < 3*f.frameDuration:
			f.popFrontLocked()
			f.emitRealLocked(front)
			f.expected = front.timestamp + f.frameDuration
			return
		default:
			f.emitFillerLocked()
			f.expected += f.frameDuration
			return
		}
	}

	f.emitFillerLocked()
	f.expected += f.frameDuration
}

func (f *Filler) popFrontLocked() packet {
	p := f.buffer[0]
	f.buffer = f.buffer[1:]
	return p
}

func (f *Filler) emitRealLocked(p packet) {
	if f.realThrottle.Allow() {
		f.logger.Debug().Str("media", f.mediaType).Int64("timestamp", p.timestamp).Msg("emitted real frame")
	}
	f.metrics.FillerEmitted(f.mediaType, true)
	if f.output != nil {
		f.output(Frame{Timestamp: p.timestamp, Data: p.data, Real: true, Meta: p.meta})
	}
}

func (f *Filler) emitFillerLocked() {
	if f.fillerThrottle.Allow() {
		f.logger.Debug().Str("media", f.mediaType).Int64("timestamp", f.expected).Msg("emitted filler frame")
	}
	f.metrics.FillerEmitted(f.mediaType, false)
	if f.output != nil {
		f.output(Frame{Timestamp: f.expected, Data: f.fillerPayload, Real: false})
	}
}

// Stop halts the ticker and, if the stream ended after the last expected
// tick, emits one filler per missing frame up to endTime.
func (f *Filler) Stop(endTime int64) {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return
	}
	f.stopped = true
	f.ticker.Stop()
	if f.hasExpected {
		for f.expected < endTime {
			f.emitFillerLocked()
			f.expected += f.frameDuration
		}
	}
	f.mu.Unlock()
	close(f.done)
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
