package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"rtms-ingest/internal/adapters/broadcast"
	"rtms-ingest/internal/api"
	"rtms-ingest/internal/logging"
	"rtms-ingest/internal/metrics"
)

// TLSConfig names the certificate/key pair to serve HTTPS with. Empty
// fields leave the server on plain HTTP.
type TLSConfig struct {
	CertFile string
	KeyFile  string
}

// Config is everything New needs to assemble the mux, its middleware
// chain, and the underlying http.Server.
type Config struct {
	Addr      string
	TLS       TLSConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Security  SecurityConfig
	Logger    zerolog.Logger
	Metrics   *metrics.Recorder
	Live      *broadcast.Broadcaster
}

// Server hosts the webhook and read/query HTTP surface behind a single
// middleware chain: request-id -> security headers -> CORS -> rate
// limit -> metrics -> logging.
type Server struct {
	httpServer  *http.Server
	logger      zerolog.Logger
	metrics     *metrics.Recorder
	rateLimiter *rateLimiter
	tlsCertFile string
	tlsKeyFile  string
}

// New builds the mux, wires handler to every route in the external
// interfaces table (spec.md §6), and wraps it in the standard
// middleware chain.
func New(handler *api.Handler, cfg Config) (*Server, error) {
	if handler == nil {
		return nil, fmt.Errorf("server: handler is required")
	}

	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.Default()
	}

	corsPolicy, err := newCORSPolicy(cfg.CORS)
	if err != nil {
		return nil, fmt.Errorf("configure cors: %w", err)
	}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", handler.Health).Methods(http.MethodGet)
	router.Handle("/metrics", recorder.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/webhook", handler.Webhook).Methods(http.MethodPost)
	router.HandleFunc("/api/meeting/{numericId}/speakers", handler.Speakers).Methods(http.MethodGet)
	router.HandleFunc("/api/speaker/{speakerId}/context", handler.SpeakerContext).Methods(http.MethodGet)
	router.HandleFunc("/api/chat/{speakerId}", handler.Chat).Methods(http.MethodPost)
	router.HandleFunc("/api/semantic-search", handler.SemanticSearch).Methods(http.MethodPost)
	router.HandleFunc("/api/chunks/{meetingId}", handler.Chunks).Methods(http.MethodGet)
	if cfg.Live != nil {
		router.HandleFunc("/live/meeting/{meetingId}", liveMeetingHandler(cfg.Live)).Methods(http.MethodGet)
		router.HandleFunc("/live/user/{userId}", liveUserHandler(cfg.Live)).Methods(http.MethodGet)
	}

	rl := newRateLimiter(cfg.RateLimit)

	handlerChain := http.Handler(router)
	handlerChain = loggingMiddleware(cfg.Logger, handlerChain)
	handlerChain = metricsMiddleware(recorder, handlerChain)
	handlerChain = webhookRateLimitMiddleware(rl, cfg.Logger, handlerChain)
	handlerChain = corsMiddleware(corsPolicy, &cfg.Logger, handlerChain)
	handlerChain = securityHeadersMiddleware(cfg.Security, handlerChain)
	handlerChain = requestIDMiddleware(handlerChain)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handlerChain,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	srv := &Server{
		httpServer:  httpServer,
		logger:      cfg.Logger,
		metrics:     recorder,
		rateLimiter: rl,
		tlsCertFile: strings.TrimSpace(cfg.TLS.CertFile),
		tlsKeyFile:  strings.TrimSpace(cfg.TLS.KeyFile),
	}

	if srv.tlsCertFile != "" && srv.tlsKeyFile != "" {
		httpServer.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return srv, nil
}

// Start blocks serving HTTP (or HTTPS, when a cert/key pair is set)
// until Shutdown is called or the listener fails.
func (s *Server) Start() error {
	if s.httpServer == nil {
		return fmt.Errorf("http server is not configured")
	}
	if s.tlsCertFile != "" && s.tlsKeyFile != "" {
		return s.httpServer.ListenAndServeTLS(s.tlsCertFile, s.tlsKeyFile)
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.rateLimiter.Close(); err != nil {
		compLogger := logging.Component(s.logger, "server")
		compLogger.Warn().Err(err).Msg("failed to close rate limiter")
	}
	return s.httpServer.Shutdown(ctx)
}

// liveMeetingHandler upgrades the live-client push socket and registers
// it against the Broadcaster under the path's meetingId, per spec.md's
// registration window (the Broadcaster enforces the ~15s handshake
// deadline via its own RegisterTimeout).
func liveMeetingHandler(b *broadcast.Broadcaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meetingID := mux.Vars(r)["meetingId"]
		if meetingID == "" {
			http.Error(w, "meetingId is required", http.StatusBadRequest)
			return
		}
		if err := b.ServeMeeting(w, r, meetingID); err != nil {
			http.Error(w, "websocket upgrade failed", http.StatusBadRequest)
		}
	}
}

func liveUserHandler(b *broadcast.Broadcaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := mux.Vars(r)["userId"]
		if userID == "" {
			http.Error(w, "userId is required", http.StatusBadRequest)
			return
		}
		if err := b.ServeUser(w, r, userID); err != nil {
			http.Error(w, "websocket upgrade failed", http.StatusBadRequest)
		}
	}
}

// webhookRateLimitMiddleware checks the global bucket (AllowRequest) on
// every route and, for /webhook only, also applies the per-sender-IP
// delivery cap (AllowWebhook).
func webhookRateLimitMiddleware(rl *rateLimiter, logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.AllowRequest() {
			http.Error(w, "global rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		if r.URL.Path == "/webhook" {
			ip := extractClientIP(r)
			allowed, retryAfter, err := rl.AllowWebhook(r.Context(), ip)
			if err != nil {
				logger.Error().Err(err).Msg("webhook rate limiter failure")
				http.Error(w, "rate limit failure", http.StatusServiceUnavailable)
				return
			}
			if !allowed {
				if retryAfter > 0 {
					w.Header().Set("Retry-After", fmt.Sprintf("%.0f", retryAfter.Seconds()))
				}
				http.Error(w, "too many webhook deliveries", http.StatusTooManyRequests)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
