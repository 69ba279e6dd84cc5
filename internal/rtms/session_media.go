package rtms

import (
	"context"
	"encoding/base64"
	"time"

	"rtms-ingest/internal/media"
	"rtms-ingest/internal/signature"
)

// dialMediaSub dials and handshakes one media sub-socket. It touches only
// the fields of its own sub (already inserted into s.mediaSubs by the
// caller before any dial is fanned out), so it is safe to run concurrently
// with the dials for a session's other media bits.
func (s *Session) dialMediaSub(ctx context.Context, sub *mediaSub) {
	conn, err := s.cfg.Dialer.Dial(ctx, sub.url)
	if err != nil {
		sub.state = StateError
		s.logger.Warn().Err(err).Str("media", sub.bit.URLKey()).Msg("media dial failed")
		return
	}
	sub.conn = conn

	sig := signature.Sign(s.cfg.Credentials.ClientID, s.cfg.MeetingUUID, s.cfg.StreamID, s.cfg.Credentials.ClientSecret)
	req := signature.HandshakeRequest{
		MsgType:     signature.MsgMediaHandshakeRequest,
		MeetingUUID: s.cfg.MeetingUUID,
		StreamID:    s.cfg.StreamID,
		Signature:   sig,
		MediaType:   int(sub.bit),
	}
	if err := conn.WriteJSON(req); err != nil {
		sub.state = StateError
		return
	}
	sub.state = StateAuthenticated
	s.cfg.Metrics.MediaSubOpened()
	go s.readLoop(sub.bit, conn, sub.generation)
}

func (s *Session) newEmitter(bit MediaMask) media.Emitter {
	bitCopy := bit
	output := func(frame media.Frame) { s.onFillerOutput(bitCopy, frame) }
	if !s.cfg.UseFillers {
		return media.NewPassthrough(output)
	}
	switch bit {
	case MediaAudio:
		var sendRate int
		if s.mediaParams.AudioSendRateMs > 0 {
			sendRate = s.mediaParams.AudioSendRateMs
		}
		return media.NewAudioFiller(msDuration(sendRate), output, s.logger, s.cfg.Metrics)
	case MediaVideo:
		return media.NewVideoFiller(s.mediaParams.VideoFPS, output, s.logger, s.cfg.Metrics)
	default:
		return media.NewPassthrough(output)
	}
}

func (s *Session) onFillerOutput(bit MediaMask, frame media.Frame) {
	meta, _ := frame.Meta.(mediaMeta)
	s.emit(context.Background(), Event{
		Kind:      kindForBit(bit),
		Buffer:    frame.Data,
		UserID:    meta.userID,
		UserName:  meta.userName,
		Timestamp: frame.Timestamp,
	})
}

type mediaMeta struct {
	userID   string
	userName string
}

func kindForBit(bit MediaMask) EventKind {
	switch bit {
	case MediaAudio:
		return EventAudio
	case MediaVideo:
		return EventVideo
	case MediaShare:
		return EventShare
	case MediaChat:
		return EventChat
	default:
		return EventAudio
	}
}

func (s *Session) handleMediaInbound(ctx context.Context, msg inboundMsg) {
	sub := s.mediaSubs[msg.bit]
	if sub == nil {
		return
	}

	if msg.closeErr != nil {
		s.onMediaClosed(ctx, sub)
		return
	}

	switch msg.env.MsgType {
	case signature.MsgMediaHandshakeResponse:
		s.onMediaHandshakeResponse(ctx, sub, msg.env)
	case signature.MsgKeepAliveRequest:
		s.echoKeepAlive(sub.conn, msg.env.Timestamp)
	case signature.MsgAudio, signature.MsgVideo, signature.MsgShare:
		s.onMediaPayload(sub, msg.env)
	case signature.MsgTranscript:
		s.onTranscriptPayload(ctx, msg.env)
	case signature.MsgChat:
		s.onChatPayload(ctx, msg.env)
	}
}

func (s *Session) onMediaHandshakeResponse(ctx context.Context, sub *mediaSub, env signature.Envelope) {
	statusCode := 0
	if env.StatusCode != nil {
		statusCode = *env.StatusCode
	}
	if statusCode != 0 {
		s.fail(ctx, NewHandshakeError(statusCode))
		return
	}
	if env.MediaParams != nil {
		s.mediaParams = *env.MediaParams
	}
	sub.state = StateStreaming
	sub.filler = s.newEmitter(sub.bit)
	if s.signaling.conn != nil {
		_ = s.signaling.conn.WriteJSON(signature.Envelope{MsgType: signature.MsgMediaReady, MediaType: int(sub.bit)})
	}
}

func (s *Session) onMediaPayload(sub *mediaSub, env signature.Envelope) {
	var payload signature.MediaPayload
	if err := signature.DecodeContent(env, &payload); err != nil {
		s.logger.Warn().Err(err).Msg("malformed media payload dropped")
		return
	}
	data, err := base64.StdEncoding.DecodeString(payload.Data)
	if err != nil {
		s.logger.Warn().Err(err).Msg("malformed media payload base64 dropped")
		return
	}
	s.trackPacketTimestamp(payload.Timestamp)
	meta := mediaMeta{userID: payload.UserID, userName: payload.UserName}
	if sub.filler != nil {
		sub.filler.Push(payload.Timestamp, data, meta)
	}
}

func (s *Session) onTranscriptPayload(ctx context.Context, env signature.Envelope) {
	var payload signature.MediaPayload
	if err := signature.DecodeContent(env, &payload); err != nil {
		s.logger.Warn().Err(err).Msg("malformed transcript payload dropped")
		return
	}
	s.trackPacketTimestamp(payload.Timestamp)
	s.emit(ctx, Event{
		Kind:      EventTranscript,
		UserID:    payload.UserID,
		UserName:  payload.UserName,
		Text:      payload.Text,
		StartTime: payload.StartTime,
		EndTime:   payload.EndTime,
		Language:  payload.Language,
		Attribute: payload.Attribute,
	})
}

func (s *Session) onChatPayload(ctx context.Context, env signature.Envelope) {
	var payload signature.MediaPayload
	if err := signature.DecodeContent(env, &payload); err != nil {
		s.logger.Warn().Err(err).Msg("malformed chat payload dropped")
		return
	}
	s.emit(ctx, Event{Kind: EventChat, UserID: payload.UserID, UserName: payload.UserName, Text: payload.Text, Timestamp: payload.Timestamp})
}

func (s *Session) trackPacketTimestamp(ts int64) {
	s.setStats(func(st *Stats) {
		if st.FirstPacketTS == 0 || ts < st.FirstPacketTS {
			st.FirstPacketTS = ts
		}
		if ts > st.LastPacketTS {
			st.LastPacketTS = ts
		}
	})
}

func (s *Session) onMediaClosed(ctx context.Context, sub *mediaSub) {
	sub.state = StateClosed
	s.cfg.Metrics.MediaSubClosed()
	if s.signaling.state == StateReady {
		s.reconnectMediaSub(ctx, sub)
		return
	}
	s.closeAll()
}

func (s *Session) reconnectMediaSub(ctx context.Context, sub *mediaSub) {
	generation := s.generation
	time.AfterFunc(reconnectDebounce, func() {
		if generation != s.generation {
			return
		}
		select {
		case s.inbox <- inboundMsg{bit: sub.bit, env: signature.Envelope{MsgType: msgReconnectTick}}:
		case <-s.stop:
		}
	})
}

func msDuration(ms int) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}
