package router

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"rtms-ingest/internal/config"
	"rtms-ingest/internal/rtms"
	"rtms-ingest/internal/signature"
)

func testLogger() zerolog.Logger { return zerolog.Nop() }

func testConfig() config.Config {
	return config.Config{
		Credentials: map[string]config.Credentials{
			"meeting": {ClientID: "client-1", ClientSecret: "secret-1", SecretToken: "token-1"},
		},
		MediaMask: rtms.MediaAll,
	}
}

func newTestRouter() *Router {
	return New(testConfig(), rtms.NewRegistry(0), nil, nil, nil, testLogger())
}

// blockingConn never offers anything to read until closed, so the
// session's control loop settles into StateAuthenticated and stays there
// without spinning on the (empty) signaling handshake response.
type blockingConn struct {
	mu      sync.Mutex
	closed  bool
	closeCh chan struct{}
}

func newBlockingConn() *blockingConn {
	return &blockingConn{closeCh: make(chan struct{})}
}

func (c *blockingConn) WriteJSON(v any) error { return nil }

func (c *blockingConn) ReadJSON(v any) error {
	<-c.closeCh
	return io.EOF
}

func (c *blockingConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.closeCh)
	}
	return nil
}

// fakeDialer dials successfully unless failNext is set, in which case the
// next Dial call fails and failNext resets; it also records whether any
// Dial call observed an already-canceled ctx, which is what the
// context-detachment regression test below checks for.
type fakeDialer struct {
	mu          sync.Mutex
	calls       int
	failNext    bool
	sawCanceled bool
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (rtms.Conn, error) {
	d.mu.Lock()
	d.calls++
	fail := d.failNext
	d.failNext = false
	if ctx.Err() != nil {
		d.sawCanceled = true
	}
	d.mu.Unlock()
	if fail {
		return nil, context.DeadlineExceeded
	}
	return newBlockingConn(), nil
}

func (d *fakeDialer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func waitFor(t *testing.T, timeout time.Duration, desc string, ok func() bool) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		if ok() {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", desc)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func startedPayload(streamID, meetingUUID string) json.RawMessage {
	body := StartedPayload{
		MeetingUUID: meetingUUID,
		MeetingID:   "numeric-" + meetingUUID,
		StreamID:    streamID,
		ServerURL:   "wss://signal.example/stream",
	}
	raw, _ := json.Marshal(body)
	return raw
}

func stoppedPayload(streamID, meetingUUID string) json.RawMessage {
	body := StoppedPayload{MeetingUUID: meetingUUID, StreamID: streamID}
	raw, _ := json.Marshal(body)
	return raw
}

func TestHandleValidationReturnsHMACResponse(t *testing.T) {
	t.Parallel()

	r := newTestRouter()
	payload, _ := json.Marshal(ValidationPayload{PlainToken: "abc123"})

	resp, err := r.HandleEvent(context.Background(), validationEvent, payload)
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	want := signature.ValidateURL("abc123", "token-1")
	if resp.PlainToken != want.PlainToken || resp.EncryptedToken != want.EncryptedToken {
		t.Fatalf("expected %+v, got %+v", want, resp)
	}
}

func TestHandleEventIgnoresUnrecognisedEvent(t *testing.T) {
	t.Parallel()

	r := newTestRouter()
	resp, err := r.HandleEvent(context.Background(), "not.a.real.event", json.RawMessage(`{}`))
	if err != nil || resp != nil {
		t.Fatalf("expected (nil, nil) for an unrecognised event, got (%v, %v)", resp, err)
	}
}

func TestHandleStartedRegistersSessionOnceAndIgnoresDuplicate(t *testing.T) {
	t.Parallel()

	dialer := &fakeDialer{}
	r := newTestRouter()
	r.sessionDialerOverride = dialer

	const streamID, meetingUUID = "stream-1", "meeting-uuid-1"
	if _, err := r.HandleEvent(context.Background(), "meeting.rtms_started", startedPayload(streamID, meetingUUID)); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	waitFor(t, time.Second, "session to register", func() bool {
		_, ok := r.registry.Get(streamID)
		return ok
	})
	waitFor(t, time.Second, "first dial", func() bool { return dialer.callCount() >= 1 })

	// A second rtms_started for the same still-active stream must be
	// ignored rather than spinning up a competing session.
	if _, err := r.HandleEvent(context.Background(), "meeting.rtms_started", startedPayload(streamID, meetingUUID)); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if got := dialer.callCount(); got != 1 {
		t.Fatalf("expected the duplicate rtms_started to be ignored (1 dial), got %d dials", got)
	}
}

func TestHandleStoppedRemovesSessionAndDestroysBuffer(t *testing.T) {
	t.Parallel()

	dialer := &fakeDialer{}
	r := newTestRouter()
	r.sessionDialerOverride = dialer

	const streamID, meetingUUID = "stream-2", "meeting-uuid-2"
	if _, err := r.HandleEvent(context.Background(), "meeting.rtms_started", startedPayload(streamID, meetingUUID)); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	waitFor(t, time.Second, "session to register", func() bool {
		_, ok := r.registry.Get(streamID)
		return ok
	})

	r.bufferFor(meetingUUID) // ensure a buffer exists under this uuid too
	if _, err := r.HandleEvent(context.Background(), "meeting.rtms_stopped", stoppedPayload(streamID, meetingUUID)); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	waitFor(t, time.Second, "session to be removed from the registry", func() bool {
		_, ok := r.registry.Get(streamID)
		return !ok
	})

	r.mu.Lock()
	_, hasBuffer := r.buffers[meetingUUID]
	r.mu.Unlock()
	if hasBuffer {
		t.Fatal("expected the meeting's transcript buffer to be destroyed on rtms_stopped")
	}
}

// TestHandleEventDetachesSessionFromCallerContext regression-tests the
// fix where HandleEvent used to pass the inbound request's context
// straight through to the dispatched session. Canceling that context the
// moment HandleEvent returns (as the webhook handler does once it has
// acked the request) used to abort the session's very first dial; now the
// session dials against a context detached from the caller's.
func TestHandleEventDetachesSessionFromCallerContext(t *testing.T) {
	t.Parallel()

	dialer := &fakeDialer{}
	r := newTestRouter()
	r.sessionDialerOverride = dialer

	ctx, cancel := context.WithCancel(context.Background())
	const streamID, meetingUUID = "stream-3", "meeting-uuid-3"
	if _, err := r.HandleEvent(ctx, "meeting.rtms_started", startedPayload(streamID, meetingUUID)); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	cancel()

	if _, ok := r.registry.Get(streamID); !ok {
		t.Fatal("expected the session to be registered immediately")
	}
	waitFor(t, time.Second, "session to dial despite the caller's context being canceled", func() bool {
		return dialer.callCount() >= 1
	})
	if dialer.sawCanceled {
		t.Fatal("expected the session's dial to run against a detached context, not the canceled caller context")
	}
}
