// Package rtms implements the RTMS ingestion core: the per-stream state
// machine (Session), the process-wide Connection Registry, and the Event
// Router that dispatches webhook lifecycle events to sessions.
package rtms

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"rtms-ingest/internal/logging"
	"rtms-ingest/internal/media"
	"rtms-ingest/internal/metrics"
	"rtms-ingest/internal/signature"
)

// SubState is the lifecycle state of a single socket (signaling or media).
type SubState string

const (
	StateIdle          SubState = "idle"
	StateConnecting    SubState = "connecting"
	StateAuthenticated SubState = "authenticated"
	StateStreaming     SubState = "streaming"
	StateReady         SubState = "ready"
	StateClosed        SubState = "closed"
	StateError         SubState = "error"
)

const reconnectDebounce = 3 * time.Second

// maxConcurrentMediaDials bounds how many media sub-socket dials a single
// session fans out at once, so a mask requesting every media type doesn't
// open five simultaneous handshakes against the vendor's media servers.
const maxConcurrentMediaDials = 3

// Credentials identifies a session to the vendor's handshake protocol.
type Credentials struct {
	ClientID     string
	ClientSecret string
	SecretToken  string
}

// Config describes one stream session to create.
type Config struct {
	StreamID       string
	MeetingUUID    string
	MeetingNumeric string
	ProductType    string
	Credentials    Credentials
	SignalingURL   string
	RequestedMask  MediaMask
	UseFillers     bool
	Handler        EventHandler
	Dialer         Dialer
	Logger         zerolog.Logger
	Metrics        *metrics.Recorder
}

type mediaSub struct {
	bit        MediaMask
	url        string
	conn       Conn
	state      SubState
	generation int
	filler     media.Emitter
}

// Stats is the terminal/point-in-time snapshot archived into the
// Connection Registry's history ring.
type Stats struct {
	StreamID       string
	MeetingUUID    string
	MeetingNumeric string
	ProductType    string
	FirstPacketTS  int64
	LastPacketTS   int64
	EffectiveMask  MediaMask
	State          SubState
	ClosedAt       time.Time
}

// Session is the per-stream state machine: one signaling socket and N
// media sub-sockets, all mutated only from the session's own control
// loop goroutine so no locking is required on session state. Stats()
// is the one cross-goroutine-readable accessor, guarded separately.
type Session struct {
	cfg    Config
	logger zerolog.Logger
	inbox  chan inboundMsg
	stop   chan struct{}
	once   sync.Once

	// Control-loop-owned state (no lock: single-writer).
	signaling         mediaSub
	mediaSubs         map[MediaMask]*mediaSub
	handshakeInFlight bool
	retryable         bool
	effectiveMask     MediaMask
	mediaParams       signature.MediaParams
	reconnectTimer    *time.Timer
	generation        int
	mediaDialSem      *semaphore.Weighted

	statsMu sync.Mutex
	stats   Stats
}

type inboundMsg struct {
	bit      MediaMask // 0 means signaling
	env      signature.Envelope
	closeErr error
}

// NewSession constructs a Session. Call Start to open the signaling
// socket.
func NewSession(cfg Config) *Session {
	if cfg.Dialer == nil {
		cfg.Dialer = NewWebsocketDialer()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Default()
	}
	s := &Session{
		cfg:          cfg,
		logger:       logging.Component(cfg.Logger, "session"),
		inbox:        make(chan inboundMsg, 64),
		stop:         make(chan struct{}),
		mediaSubs:    make(map[MediaMask]*mediaSub),
		retryable:    true,
		mediaDialSem: semaphore.NewWeighted(maxConcurrentMediaDials),
	}
	s.stats = Stats{
		StreamID:       cfg.StreamID,
		MeetingUUID:    cfg.MeetingUUID,
		MeetingNumeric: cfg.MeetingNumeric,
		ProductType:    cfg.ProductType,
		State:          StateIdle,
	}
	return s
}

// Start launches the control loop and opens the signaling socket.
func (s *Session) Start(ctx context.Context) {
	go s.run(ctx)
}

func (s *Session) run(ctx context.Context) {
	s.connectSignaling(ctx)
	for {
		select {
		case msg := <-s.inbox:
			s.handleInbound(ctx, msg)
		case <-s.stop:
			if s.Stats().State != StateClosed {
				s.closeAll()
			}
			return
		}
	}
}

// Stop tears down every socket unconditionally (used by the Event Router
// on rtms_stopped). The teardown runs on the control loop goroutine.
func (s *Session) Stop() {
	s.once.Do(func() {
		close(s.stop)
	})
}

// Stats returns a point-in-time snapshot, safe to call from any goroutine
// (e.g. the Connection Registry).
func (s *Session) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

func (s *Session) setStats(mutate func(*Stats)) {
	s.statsMu.Lock()
	mutate(&s.stats)
	s.statsMu.Unlock()
}

// connectSignaling implements the guarded connect: reject if an existing
// socket is connecting/open, a handshake is in flight, or a pending
// reconnect timer exists.
func (s *Session) connectSignaling(ctx context.Context) {
	if s.signaling.state == StateConnecting || s.signaling.state == StateAuthenticated ||
		s.signaling.state == StateReady || s.handshakeInFlight || s.reconnectTimer != nil {
		return
	}
	s.signaling.state = StateConnecting
	s.signaling.generation = s.generation

	conn, err := s.cfg.Dialer.Dial(ctx, s.cfg.SignalingURL)
	if err != nil {
		s.logger.Warn().Err(err).Msg("signaling dial failed")
		// Leaving state at StateConnecting would make every future call's
		// guard above reject a retry forever, since StateConnecting never
		// clears on its own. Drop back to StateError so the next
		// connectSignaling (from the reconnect tick) is actually allowed in.
		s.signaling.state = StateError
		s.scheduleReconnect(ctx)
		return
	}
	s.signaling.conn = conn
	sig := signature.Sign(s.cfg.Credentials.ClientID, s.cfg.MeetingUUID, s.cfg.StreamID, s.cfg.Credentials.ClientSecret)
	req := signature.HandshakeRequest{
		MsgType:     signature.MsgSignalingHandshakeRequest,
		MeetingUUID: s.cfg.MeetingUUID,
		StreamID:    s.cfg.StreamID,
		Signature:   sig,
	}
	if err := conn.WriteJSON(req); err != nil {
		s.logger.Warn().Err(err).Msg("signaling handshake write failed")
		s.signaling.state = StateError
		s.scheduleReconnect(ctx)
		return
	}
	s.signaling.state = StateAuthenticated
	s.handshakeInFlight = true
	go s.readLoop(0, conn, s.generation)
}

func (s *Session) readLoop(bit MediaMask, conn Conn, generation int) {
	for {
		var env signature.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			select {
			case s.inbox <- inboundMsg{bit: bit, closeErr: err}:
			case <-s.stop:
			}
			return
		}
		select {
		case s.inbox <- inboundMsg{bit: bit, env: env}:
		case <-s.stop:
			return
		}
	}
}

func (s *Session) handleInbound(ctx context.Context, msg inboundMsg) {
	if msg.bit == 0 {
		s.handleSignalingInbound(ctx, msg)
		return
	}
	s.handleMediaInbound(ctx, msg)
}

func (s *Session) scheduleReconnect(ctx context.Context) {
	if !s.retryable || s.reconnectTimer != nil {
		return
	}
	s.generation++
	s.reconnectTimer = time.AfterFunc(reconnectDebounce, func() {
		select {
		case s.inbox <- inboundMsg{bit: 0, env: signature.Envelope{MsgType: msgReconnectTick}}:
		case <-s.stop:
		}
	})
	s.cfg.Metrics.SessionReconnect()
}

// msgReconnectTick is an internal sentinel, never sent on the wire, used
// to re-enter the control loop when the reconnect debounce timer fires.
const msgReconnectTick signature.MsgType = -1

func (s *Session) emit(ctx context.Context, ev Event) {
	ev.StreamID = s.cfg.StreamID
	ev.MeetingID = s.cfg.MeetingUUID
	ev.ProductType = s.cfg.ProductType
	if s.cfg.Handler != nil {
		s.cfg.Handler(ev)
	}
}

func (s *Session) fail(ctx context.Context, rtmsErr *Error) {
	s.cfg.Metrics.SessionError(string(rtmsErr.Category))
	s.emit(ctx, Event{Kind: EventError, Err: rtmsErr})
	if Retryable(rtmsErr.Category) {
		s.handshakeInFlight = false
		s.scheduleReconnect(ctx)
		return
	}
	s.retryable = false
	s.closeAll()
}

func (s *Session) closeAll() {
	s.generation++
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	if s.signaling.conn != nil {
		s.signaling.conn.Close()
	}
	s.signaling.state = StateClosed
	for _, sub := range s.mediaSubs {
		if sub.filler != nil {
			sub.filler.Stop(s.stats.LastPacketTS)
		}
		if sub.conn != nil {
			sub.conn.Close()
		}
		sub.state = StateClosed
	}
	s.cfg.Metrics.SessionStopped()
	s.setStats(func(st *Stats) {
		st.State = StateClosed
		st.ClosedAt = time.Now()
	})
}
