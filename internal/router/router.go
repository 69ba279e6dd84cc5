package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"rtms-ingest/internal/adapters"
	"rtms-ingest/internal/config"
	"rtms-ingest/internal/rtms"
	"rtms-ingest/internal/signature"
	"rtms-ingest/internal/transcript"
)

// maxConcurrentAdapterCalls bounds how many outbound index/summariser
// calls the router has in flight at once, across every meeting's buffer.
// Without it, a burst of simultaneous chunk/summary flushes across many
// concurrently active meetings can pile up requests against Postgres or
// the inference endpoint faster than either can drain them.
const maxConcurrentAdapterCalls = 16

// Recognised webhook event suffixes.
const (
	suffixStarted = "rtms_started"
	suffixStopped = "rtms_stopped"
)

const validationEvent = "endpoint.url_validation"

// Router is the Event Router (C5): the single entry point dispatching
// webhook events to Session and Transcript Buffer lifecycle
// operations.
type Router struct {
	cfg        config.Config
	registry   *rtms.Registry
	index      adapters.IndexWriter
	summariser adapters.Summariser
	broadcaster adapters.Broadcaster
	logger     zerolog.Logger
	adapterSem *semaphore.Weighted

	// sessionDialerOverride, when set, replaces the live websocket dialer
	// new sessions are constructed with. Nil in production; tests set it
	// to drive Session against a fake Dialer/Conn without a network.
	sessionDialerOverride rtms.Dialer

	mu      sync.Mutex
	buffers map[string]*transcript.Buffer // meetingUUID -> buffer
}

// New constructs a Router. Initialization of credentials happens once
// in config.Load; the Router itself wires no global state beyond its
// own fields, so repeated construction is harmless, but callers should
// treat a single Router instance as the "first call" the spec refers
// to for idempotent initialization.
func New(cfg config.Config, registry *rtms.Registry, index adapters.IndexWriter, summariser adapters.Summariser, broadcaster adapters.Broadcaster, logger zerolog.Logger) *Router {
	return &Router{
		cfg:         cfg,
		registry:    registry,
		index:       index,
		summariser:  summariser,
		broadcaster: broadcaster,
		logger:      logger,
		adapterSem:  semaphore.NewWeighted(maxConcurrentAdapterCalls),
		buffers:     make(map[string]*transcript.Buffer),
	}
}

// HandleEvent is the router's single entry point. For url_validation it
// returns the synchronous HMAC response; for every other recognised
// event it dispatches asynchronously and returns (nil, nil) once
// dispatch has been accepted (the caller acks 200 regardless).
func (r *Router) HandleEvent(ctx context.Context, name string, payload json.RawMessage) (*ValidationResponse, error) {
	if name == validationEvent {
		return r.handleValidation(payload)
	}

	product, kind, ok := splitProductEvent(name)
	if !ok {
		r.logger.Warn().Str("event", name).Msg("unrecognised webhook event")
		return nil, nil
	}

	// The caller's ctx is scoped to the inbound HTTP request and is
	// canceled the instant Webhook returns, well before a dispatched
	// session finishes dialing, let alone lives out the session. Detach
	// it so the background work's lifetime is governed by Session.Stop
	// (and the Router's own per-call timeouts below), not the request.
	bgCtx := context.WithoutCancel(ctx)

	switch kind {
	case suffixStarted:
		go r.handleStarted(bgCtx, product, payload)
	case suffixStopped:
		go r.handleStopped(bgCtx, product, payload)
	default:
		r.logger.Warn().Str("event", name).Msg("unrecognised webhook event")
	}
	return nil, nil
}

func splitProductEvent(name string) (product, kind string, ok bool) {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return "", "", false
	}
	product, kind = name[:idx], name[idx+1:]
	for _, p := range config.Products {
		if p == product {
			return product, kind, true
		}
	}
	return "", "", false
}

func (r *Router) handleValidation(payload json.RawMessage) (*ValidationResponse, error) {
	var body ValidationPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("decode url_validation payload: %w", err)
	}
	creds, ok := r.cfg.CredentialsFor("meeting")
	if !ok {
		return nil, fmt.Errorf("no credentials configured for url_validation")
	}
	resp := signature.ValidateURL(body.PlainToken, creds.SecretToken)
	return &ValidationResponse{PlainToken: resp.PlainToken, EncryptedToken: resp.EncryptedToken}, nil
}

func (r *Router) handleStarted(ctx context.Context, product string, payload json.RawMessage) {
	var body StartedPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		r.logger.Warn().Err(err).Msg("malformed rtms_started payload dropped")
		return
	}
	if body.StreamID == "" || body.MeetingUUID == "" {
		r.logger.Warn().Msg("rtms_started payload missing stream or meeting id")
		return
	}

	if _, exists := r.registry.Get(body.StreamID); exists {
		r.logger.Warn().Str("stream_id", body.StreamID).Msg("rtms_started for a stream already live, ignoring")
		return
	}

	creds, ok := r.cfg.CredentialsFor(product)
	if !ok {
		r.logger.Warn().Str("product", product).Msg("no credentials resolved for product")
		return
	}

	if r.index != nil {
		persistCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := r.index.PersistMeetingMapping(persistCtx, body.MeetingID, body.MeetingUUID)
		cancel()
		if err != nil {
			r.logger.Warn().Err(err).Msg("failed to persist meeting mapping")
		}
	}

	buffer := r.bufferFor(body.MeetingUUID)

	session := rtms.NewSession(rtms.Config{
		StreamID:       body.StreamID,
		MeetingUUID:    body.MeetingUUID,
		MeetingNumeric: body.MeetingID,
		ProductType:    product,
		Credentials: rtms.Credentials{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			SecretToken:  creds.SecretToken,
		},
		SignalingURL:  body.ServerURL,
		RequestedMask: r.cfg.MediaMask,
		UseFillers:    r.cfg.UseFillers,
		Handler:       r.sessionEventHandler(buffer),
		Dialer:        r.sessionDialerOverride,
		Logger:        r.logger,
	})

	r.registry.Add(session)
	session.Start(ctx)
}

func (r *Router) handleStopped(ctx context.Context, product string, payload json.RawMessage) {
	var body StoppedPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		r.logger.Warn().Err(err).Msg("malformed rtms_stopped payload dropped")
		return
	}
	if session, ok := r.registry.Get(body.StreamID); ok {
		session.Stop()
		r.registry.Remove(body.StreamID)
	}
	r.destroyBuffer(body.MeetingUUID)
}

func (r *Router) bufferFor(meetingUUID string) *transcript.Buffer {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.buffers[meetingUUID]; ok {
		return b
	}
	b := transcript.New(meetingUUID, transcript.Handlers{
		OnSummarize: r.onSummarize,
		OnChunk:     r.onChunk,
	}, r.logger)
	r.buffers[meetingUUID] = b
	return b
}

func (r *Router) destroyBuffer(meetingUUID string) {
	r.mu.Lock()
	b, ok := r.buffers[meetingUUID]
	if ok {
		delete(r.buffers, meetingUUID)
	}
	r.mu.Unlock()
	if ok {
		b.Destroy()
	}
}

func (r *Router) sessionEventHandler(buffer *transcript.Buffer) rtms.EventHandler {
	return func(ev rtms.Event) {
		switch ev.Kind {
		case rtms.EventTranscript:
			buffer.Append(transcript.Utterance{
				SpeakerID:   ev.UserID,
				SpeakerName: ev.UserName,
				Text:        ev.Text,
				Timestamp:   ev.StartTime,
				Language:    ev.Language,
			})
		case rtms.EventChat:
			if r.broadcaster != nil {
				r.broadcaster.BroadcastMeeting(ev.MeetingID, "chat", ev)
			}
		case rtms.EventSignaling, rtms.EventStreamStateChanged, rtms.EventSessionStateChanged:
			if r.broadcaster != nil {
				r.broadcaster.BroadcastMeeting(ev.MeetingID, string(ev.Kind), ev)
			}
		case rtms.EventError:
			r.logger.Warn().Str("category", string(ev.Err.Category)).Int("code", ev.Err.Code).Msg("session error")
			if r.broadcaster != nil {
				r.broadcaster.BroadcastMeeting(ev.MeetingID, "error", ev)
			}
		}
	}
}

func (r *Router) onSummarize(ev transcript.SummarizeEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := r.adapterSem.Acquire(ctx, 1); err != nil {
		r.logger.Warn().Err(err).Str("meeting_id", ev.MeetingID).Msg("adapter backpressure wait canceled")
		return
	}
	defer r.adapterSem.Release(1)

	result := adapters.SummaryResult{Summary: ev.RecentText}
	if r.summariser != nil {
		var err error
		result, err = r.summariser.Summarise(ctx, ev.MeetingID, ev.SpeakerID, ev.SpeakerName, ev.RecentText, ev.SegmentCount)
		if err != nil {
			r.logger.Warn().Err(err).Str("meeting_id", ev.MeetingID).Str("speaker_id", ev.SpeakerID).Msg("summariser call failed")
			result = adapters.SummaryResult{Summary: ev.RecentText}
		}
	}

	if r.index != nil {
		if err := r.index.UpsertSpeakerContext(ctx, adapters.SpeakerContext{
			MeetingID:      ev.MeetingID,
			SpeakerID:      ev.SpeakerID,
			SpeakerName:    ev.SpeakerName,
			ContextSummary: result.Summary,
			Topics:         result.Topics,
		}); err != nil {
			r.logger.Warn().Err(err).Msg("failed to persist speaker context")
		}
	}
	if r.broadcaster != nil {
		r.broadcaster.BroadcastMeeting(ev.MeetingID, "speaker_context", result)
	}
}

func (r *Router) onChunk(ev transcript.ChunkEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := r.adapterSem.Acquire(ctx, 1); err != nil {
		r.logger.Warn().Err(err).Str("meeting_id", ev.MeetingID).Msg("adapter backpressure wait canceled")
		return
	}
	defer r.adapterSem.Release(1)

	if r.index != nil {
		if err := r.index.InsertChunk(ctx, adapters.TranscriptChunk{
			ChunkID:      ev.ChunkID,
			MeetingID:    ev.MeetingID,
			Text:         ev.Text,
			SpeakerIDs:   ev.SpeakerIDs,
			SpeakerNames: ev.SpeakerNames,
			StartTime:    ev.StartTime,
			EndTime:      ev.EndTime,
		}); err != nil {
			r.logger.Warn().Err(err).Msg("failed to persist transcript chunk")
		}
	}
	if r.broadcaster != nil {
		r.broadcaster.BroadcastMeeting(ev.MeetingID, "chunk", ev)
	}
}
