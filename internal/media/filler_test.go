package media

import (
	"testing"
	"time"
)

// newTestFiller builds a Filler and immediately stops its internal ticker
// so the test can drive tick() deterministically instead of racing a timer.
func newTestFiller(t *testing.T, frameDuration time.Duration) (*Filler, *[]Frame) {
	t.Helper()
	var frames []Frame
	f := NewFiller(Config{
		MediaType:     "audio",
		FrameDuration: frameDuration,
		FillerPayload: []byte("silence"),
		Output: func(fr Frame) {
			frames = append(frames, fr)
		},
	})
	f.ticker.Stop()
	return f, &frames
}

func TestFillerFirstTickInitializesExpectedFromFirstPacket(t *testing.T) {
	t.Parallel()

	f, frames := newTestFiller(t, 20*time.Millisecond)
	f.Push(2020, []byte("p1"), nil)
	f.tick()

	if len(*frames) != 1 {
		t.Fatalf("expected exactly one frame emitted, got %d", len(*frames))
	}
	got := (*frames)[0]
	if !got.Real || got.Timestamp != 2020 {
		t.Fatalf("expected real frame at 2020, got %+v", got)
	}
	if f.expected != 2040 {
		t.Fatalf("expected expected=2040 after first tick, got %d", f.expected)
	}
}

func TestFillerEmitsRealPacketWithinTolerance(t *testing.T) {
	t.Parallel()

	f, frames := newTestFiller(t, 20*time.Millisecond)
	f.Push(0, []byte("p0"), nil)
	f.tick() // expected becomes 20

	f.Push(25, []byte("p1"), nil) // diff = 5, within 3*20=60
	f.tick()

	if len(*frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(*frames))
	}
	if !(*frames)[1].Real || (*frames)[1].Timestamp != 25 {
		t.Fatalf("expected real packet at 25, got %+v", (*frames)[1])
	}
	if f.expected != 45 {
		t.Fatalf("expected expected=45, got %d", f.expected)
	}
}

func TestFillerEmitsFillerWhenNoPacketArrived(t *testing.T) {
	t.Parallel()

	f, frames := newTestFiller(t, 20*time.Millisecond)
	f.Push(0, []byte("p0"), nil)
	f.tick() // real, expected=20

	f.tick() // buffer empty -> filler

	if len(*frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(*frames))
	}
	if (*frames)[1].Real {
		t.Fatal("expected second frame to be a filler frame")
	}
	if f.expected != 40 {
		t.Fatalf("expected expected=40, got %d", f.expected)
	}
}

func TestFillerDropsSmallBackwardJump(t *testing.T) {
	t.Parallel()

	f, frames := newTestFiller(t, 20*time.Millisecond)
	f.Push(100, []byte("p0"), nil)
	f.tick() // expected=120

	// A packet slightly behind expected (diff=-30, not < -200) should be
	// dropped silently, then the tick emits a filler since nothing else
	// is buffered.
	f.Push(90, []byte("late"), nil)
	f.tick()

	if len(*frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(*frames))
	}
	if (*frames)[1].Real {
		t.Fatal("expected dropped packet to fall through to a filler emission")
	}
}

func TestFillerResyncsOnLargeBackwardJump(t *testing.T) {
	t.Parallel()

	f, frames := newTestFiller(t, 20*time.Millisecond)
	f.Push(1000, []byte("p0"), nil)
	f.tick() // expected=1020

	// diff = 100 - 1020 = -920 < -10*20=-200: large lag, re-sync.
	f.Push(100, []byte("stale"), nil)
	f.tick()

	if len(*frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(*frames))
	}
	if f.expected != 120 {
		t.Fatalf("expected resynced expected=120, got %d", f.expected)
	}
}

func TestFillerStopEmitsTrailingFillersToEndTime(t *testing.T) {
	t.Parallel()

	f, frames := newTestFiller(t, 20*time.Millisecond)
	f.Push(0, []byte("p0"), nil)
	f.tick() // expected=20

	f.Stop(80)

	if len(*frames) != 4 {
		t.Fatalf("expected 1 real + 3 trailing fillers, got %d frames: %+v", len(*frames), *frames)
	}
	for _, fr := range (*frames)[1:] {
		if fr.Real {
			t.Fatalf("expected trailing frames to be fillers, got %+v", fr)
		}
	}
}

func TestFillerPushOrdersOutOfOrderPackets(t *testing.T) {
	t.Parallel()

	f := &Filler{frameDuration: 20}
	f.Push(50, []byte("c"), nil)
	f.Push(10, []byte("a"), nil)
	f.Push(30, []byte("b"), nil)

	if len(f.buffer) != 3 {
		t.Fatalf("expected 3 buffered packets, got %d", len(f.buffer))
	}
	for i := 1; i < len(f.buffer); i++ {
		if f.buffer[i-1].timestamp > f.buffer[i].timestamp {
			t.Fatalf("expected buffer sorted by timestamp, got %+v", f.buffer)
		}
	}
}
