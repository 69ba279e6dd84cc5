package rtms

import (
	"context"

	"github.com/gorilla/websocket"
)

// Conn is the minimal surface Session needs from a WebSocket connection,
// satisfied directly by *websocket.Conn.
type Conn interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	Close() error
}

// Dialer opens outbound WebSocket connections to vendor signaling/media
// servers. Production code uses websocketDialer; tests substitute a fake.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type websocketDialer struct{}

// NewWebsocketDialer returns the production Dialer backed by
// gorilla/websocket.
func NewWebsocketDialer() Dialer {
	return websocketDialer{}
}

func (websocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
