// Package broadcast implements adapters.Broadcaster: a per-meeting and
// per-user WebSocket fan-out to connected live clients, optionally
// mirrored through Redis pub/sub so updates reach clients connected to
// other process instances.
package broadcast

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Config configures a Broadcaster.
type Config struct {
	Logger     zerolog.Logger
	RedisAddr  string
	RedisPass  string
	Channel    string
	RegisterTimeout time.Duration
}

type envelope struct {
	Scope   string `json:"scope"`
	Target  string `json:"target"`
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// Broadcaster fans updates out to WebSocket clients registered under a
// meeting or user key, and mirrors every broadcast through Redis
// pub/sub so a fleet of ingestion instances stays consistent.
type Broadcaster struct {
	logger zerolog.Logger
	client *redis.Client
	pubsub *redis.PubSub
	channel string
	registerTimeout time.Duration

	upgrader websocket.Upgrader

	mu         sync.RWMutex
	byMeeting  map[string]map[*client]struct{}
	byUser     map[string]map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// New constructs a Broadcaster. If cfg.RedisAddr is empty, broadcasts
// stay local to this process.
func New(cfg Config) *Broadcaster {
	b := &Broadcaster{
		logger:          cfg.Logger,
		channel:         cfg.Channel,
		registerTimeout: cfg.RegisterTimeout,
		upgrader:        websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		byMeeting:       make(map[string]map[*client]struct{}),
		byUser:          make(map[string]map[*client]struct{}),
	}
	if b.channel == "" {
		b.channel = "rtms:live"
	}
	if b.registerTimeout <= 0 {
		b.registerTimeout = 15 * time.Second
	}
	if cfg.RedisAddr != "" {
		b.client = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPass})
		b.pubsub = b.client.Subscribe(context.Background(), b.channel)
		go b.consumeRemote()
	}
	return b
}

// Close releases the Redis subscription, if any.
func (b *Broadcaster) Close() error {
	if b.pubsub != nil {
		_ = b.pubsub.Close()
	}
	if b.client != nil {
		return b.client.Close()
	}
	return nil
}

// ServeMeeting upgrades r to a WebSocket and registers the connection
// under meetingID. Registration must complete within registerTimeout
// (default 15s) or the connection is closed before a client is added.
func (b *Broadcaster) ServeMeeting(w http.ResponseWriter, r *http.Request, meetingID string) error {
	return b.serve(w, r, func(c *client) (func(), func()) {
		return b.register(b.byMeeting, meetingID, c), b.unregister(b.byMeeting, meetingID, c)
	})
}

// ServeUser upgrades r to a WebSocket and registers the connection
// under userID.
func (b *Broadcaster) ServeUser(w http.ResponseWriter, r *http.Request, userID string) error {
	return b.serve(w, r, func(c *client) (func(), func()) {
		return b.register(b.byUser, userID, c), b.unregister(b.byUser, userID, c)
	})
}

// serve upgrades the connection and runs register under registerTimeout:
// if register hasn't returned by the deadline, the timer closes conn and
// the handshake is abandoned rather than left to hang indefinitely.
func (b *Broadcaster) serve(w http.ResponseWriter, r *http.Request, wire func(*client) (func(), func())) error {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &client{conn: conn, send: make(chan []byte, 32)}
	register, unregister := wire(c)

	registered := make(chan struct{})
	timer := time.AfterFunc(b.registerTimeout, func() {
		select {
		case <-registered:
		default:
			b.logger.Warn().Str("addr", conn.RemoteAddr().String()).Msg("live client registration deadline exceeded, disconnecting")
			_ = conn.Close()
		}
	})
	register()
	close(registered)
	timer.Stop()

	go c.writeLoop()
	go func() {
		defer unregister()
		defer close(c.send)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				_ = conn.Close()
				return
			}
		}
	}()
	return nil
}

func (c *client) writeLoop() {
	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

func (b *Broadcaster) register(set map[string]map[*client]struct{}, key string, c *client) func() {
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if set[key] == nil {
			set[key] = make(map[*client]struct{})
		}
		set[key][c] = struct{}{}
	}
}

func (b *Broadcaster) unregister(set map[string]map[*client]struct{}, key string, c *client) func() {
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if clients := set[key]; clients != nil {
			delete(clients, c)
			if len(clients) == 0 {
				delete(set, key)
			}
		}
	}
}

// BroadcastMeeting fans event/payload out to every client registered
// for meetingID, then mirrors it through Redis if configured.
func (b *Broadcaster) BroadcastMeeting(meetingID string, event string, payload any) {
	b.broadcastLocal(b.byMeeting, meetingID, envelope{Scope: "meeting", Target: meetingID, Event: event, Payload: payload})
	b.publishRemote(envelope{Scope: "meeting", Target: meetingID, Event: event, Payload: payload})
}

// BroadcastUser fans event/payload out to every client registered for
// userID, then mirrors it through Redis if configured.
func (b *Broadcaster) BroadcastUser(userID string, event string, payload any) {
	b.broadcastLocal(b.byUser, userID, envelope{Scope: "user", Target: userID, Event: event, Payload: payload})
	b.publishRemote(envelope{Scope: "user", Target: userID, Event: event, Payload: payload})
}

func (b *Broadcaster) broadcastLocal(set map[string]map[*client]struct{}, key string, env envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		b.logger.Warn().Err(err).Msg("failed to marshal broadcast envelope")
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for c := range set[key] {
		select {
		case c.send <- data:
		default:
		}
	}
}

func (b *Broadcaster) publishRemote(env envelope) {
	if b.client == nil {
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	if err := b.client.Publish(context.Background(), b.channel, data).Err(); err != nil {
		b.logger.Warn().Err(err).Msg("failed to publish broadcast to redis")
	}
}

func (b *Broadcaster) consumeRemote() {
	ch := b.pubsub.Channel()
	for msg := range ch {
		var env envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			continue
		}
		switch env.Scope {
		case "meeting":
			b.broadcastLocal(b.byMeeting, env.Target, env)
		case "user":
			b.broadcastLocal(b.byUser, env.Target, env)
		}
	}
}
