package rtms

import (
	"context"

	"golang.org/x/sync/errgroup"

	"rtms-ingest/internal/signature"
)

func (s *Session) handleSignalingInbound(ctx context.Context, msg inboundMsg) {
	if msg.closeErr != nil {
		s.onSignalingClosed(ctx)
		return
	}

	switch msg.env.MsgType {
	case msgReconnectTick:
		s.reconnectTimer = nil
		s.connectSignaling(ctx)
	case signature.MsgSignalingHandshakeResponse:
		s.onHandshakeResponse(ctx, msg.env)
	case signature.MsgKeepAliveRequest:
		s.echoKeepAlive(s.signaling.conn, msg.env.Timestamp)
	case signature.MsgSignalingEvent:
		s.onSignalingEvent(ctx, msg.env)
	case signature.MsgStreamStateChanged:
		s.onStreamStateChanged(ctx, msg.env)
	case signature.MsgSessionStateChanged:
		s.emit(ctx, Event{Kind: EventSessionStateChanged, State: msg.env.State, Reason: msg.env.Reason})
	}
}

func (s *Session) onHandshakeResponse(ctx context.Context, env signature.Envelope) {
	s.handshakeInFlight = false
	statusCode := 0
	if env.StatusCode != nil {
		statusCode = *env.StatusCode
	}
	if statusCode != 0 {
		s.fail(ctx, NewHandshakeError(statusCode))
		return
	}

	var available MediaMask
	if env.MediaServer != nil {
		available = AvailableFromURLs(env.MediaServer.ServerURLs)
	}
	s.effectiveMask = EffectiveMask(s.cfg.RequestedMask, available)
	s.setStats(func(st *Stats) { st.EffectiveMask = s.effectiveMask })

	s.openMediaSubs(ctx, s.effectiveMask.Bits(), env.MediaServer)

	s.signaling.conn.WriteJSON(signature.Envelope{
		MsgType: signature.MsgEventSubscription,
		Events:  []string{"ACTIVE_SPEAKER_CHANGE", "PARTICIPANT_JOIN", "PARTICIPANT_LEAVE"},
	})
	s.signaling.state = StateReady
	s.cfg.Metrics.SessionStarted()
	s.setStats(func(st *Stats) { st.State = StateReady })
}

// openMediaSubs fans a session's media sub-socket dials out concurrently,
// bounded by mediaDialSem so a mask requesting every media type doesn't
// open five simultaneous handshakes at once. Every mediaSub is inserted
// into s.mediaSubs here, on the control-loop goroutine, before any dial
// starts; g.Wait() is the synchronization point that makes it safe for the
// control loop to read the map again once this returns.
func (s *Session) openMediaSubs(ctx context.Context, bits []MediaMask, server *signature.MediaServer) {
	if len(bits) == 0 {
		return
	}
	subs := make([]*mediaSub, 0, len(bits))
	for _, bit := range bits {
		url := ""
		if server != nil {
			url = server.ServerURLs[bit.URLKey()]
		}
		sub := &mediaSub{bit: bit, url: url, state: StateConnecting, generation: s.generation}
		s.mediaSubs[bit] = sub
		subs = append(subs, sub)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, sub := range subs {
		sub := sub
		g.Go(func() error {
			if err := s.mediaDialSem.Acquire(gctx, 1); err != nil {
				return nil
			}
			defer s.mediaDialSem.Release(1)
			s.dialMediaSub(gctx, sub)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Session) onSignalingEvent(ctx context.Context, env signature.Envelope) {
	var data map[string]any
	_ = signature.DecodeContent(env, &data)
	s.emit(ctx, Event{Kind: EventSignaling, EventType: eventTypeOf(data), Data: data})
}

func eventTypeOf(data map[string]any) string {
	if data == nil {
		return ""
	}
	if v, ok := data["eventType"].(string); ok {
		return v
	}
	return ""
}

// meetingEndedState/Reason is the vendor's fixed code for "meeting ended"
// on msg_type=8 (stream_state_changed).
const (
	meetingEndedState  = 4
	meetingEndedReason = 6
)

func (s *Session) onStreamStateChanged(ctx context.Context, env signature.Envelope) {
	s.emit(ctx, Event{Kind: EventStreamStateChanged, State: env.State, Reason: env.Reason})
	if env.State == meetingEndedState && env.Reason == meetingEndedReason {
		s.retryable = false
		s.closeAll()
	}
}

func (s *Session) onSignalingClosed(ctx context.Context) {
	s.handshakeInFlight = false
	s.signaling.state = StateClosed
	if s.retryable {
		s.scheduleReconnect(ctx)
		return
	}
	s.closeAll()
}

func (s *Session) echoKeepAlive(conn Conn, timestamp int64) {
	if conn == nil {
		return
	}
	_ = conn.WriteJSON(signature.Envelope{MsgType: signature.MsgKeepAliveResponse, Timestamp: timestamp})
}
