package rtms

import (
	"context"
	"fmt"
	"io"
	"sync"

	"rtms-ingest/internal/signature"
)

// fakeConn is a Conn whose reads are driven by push and whose writes are
// recorded for assertions, standing in for a real *websocket.Conn in tests.
type fakeConn struct {
	mu      sync.Mutex
	allW    []any
	envW    []signature.Envelope
	toRead  chan signature.Envelope
	closed  bool
	closeCh chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		toRead:  make(chan signature.Envelope, 16),
		closeCh: make(chan struct{}),
	}
}

// WriteJSON records every call for allWrites (regardless of the concrete
// type: Session writes both signature.HandshakeRequest and
// signature.Envelope on the same Conn), plus a filtered Envelope-only view
// for assertions that care about msg_type.
func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.allW = append(c.allW, v)
	if env, ok := v.(signature.Envelope); ok {
		c.envW = append(c.envW, env)
	}
	return nil
}

func (c *fakeConn) ReadJSON(v any) error {
	select {
	case env, ok := <-c.toRead:
		if !ok {
			return io.EOF
		}
		p, ok := v.(*signature.Envelope)
		if !ok {
			return fmt.Errorf("fakeConn: unsupported ReadJSON target %T", v)
		}
		*p = env
		return nil
	case <-c.closeCh:
		return io.EOF
	}
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.closeCh)
	}
	return nil
}

// push delivers env to the next ReadJSON call.
func (c *fakeConn) push(env signature.Envelope) {
	c.toRead <- env
}

func (c *fakeConn) allWrites() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]any, len(c.allW))
	copy(out, c.allW)
	return out
}

func (c *fakeConn) envelopeWrites() []signature.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]signature.Envelope, len(c.envW))
	copy(out, c.envW)
	return out
}

type dialResult struct {
	conn Conn
	err  error
}

// fakeDialer hands out pre-enqueued dial results by URL, in FIFO order per
// URL, so a test can script a dial failure followed by a successful retry.
type fakeDialer struct {
	mu      sync.Mutex
	results map[string][]dialResult
	calls   []string
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{results: make(map[string][]dialResult)}
}

func (d *fakeDialer) enqueue(url string, conn Conn, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results[url] = append(d.results[url], dialResult{conn: conn, err: err})
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, url)
	q := d.results[url]
	if len(q) == 0 {
		return nil, fmt.Errorf("fakeDialer: no result queued for %s", url)
	}
	r := q[0]
	d.results[url] = q[1:]
	return r.conn, r.err
}

func (d *fakeDialer) callCount(url string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		if c == url {
			n++
		}
	}
	return n
}
