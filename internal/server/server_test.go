package server

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"rtms-ingest/internal/adapters"
	"rtms-ingest/internal/api"
	"rtms-ingest/internal/config"
	"rtms-ingest/internal/router"
	"rtms-ingest/internal/rtms"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	handler, _ := newTestHandler(t)

	srv, err := New(handler, Config{Addr: ":0", Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return srv
}

func newTestHandler(t *testing.T) (*api.Handler, *rtms.Registry) {
	t.Helper()
	cfg := config.Config{
		Credentials: map[string]config.Credentials{
			"meeting": {ClientID: "client-1", ClientSecret: "secret-1", SecretToken: "webhook-secret"},
		},
		MediaMask:   rtms.MediaAll,
		HistorySize: rtms.DefaultHistorySize,
	}
	registry := rtms.NewRegistry(cfg.HistorySize)
	rtr := router.New(cfg, registry, nil, nil, nil, zerolog.Nop())
	handler := api.New(cfg, rtr, nil, nil, nil, zerolog.Nop())
	return handler, registry
}

func TestNewReturnsErrorWhenHandlerNil(t *testing.T) {
	t.Parallel()

	srv, err := New(nil, Config{})
	if err == nil {
		t.Fatalf("expected error when handler is nil, got server: %#v", srv)
	}
}

func TestHealthzRoute(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
}

func TestWebhookURLValidationRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	body := []byte(`{"event":"endpoint.url_validation","payload":{"plainToken":"abc123"}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	mac := hmac.New(sha256.New, []byte("webhook-secret"))
	mac.Write([]byte("abc123"))
	wantEncrypted := hex.EncodeToString(mac.Sum(nil))

	var resp struct {
		PlainToken     string `json:"plainToken"`
		EncryptedToken string `json:"encryptedToken"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.PlainToken != "abc123" {
		t.Fatalf("expected plainToken echoed back, got %q", resp.PlainToken)
	}
	if resp.EncryptedToken != wantEncrypted {
		t.Fatalf("expected encryptedToken %q, got %q", wantEncrypted, resp.EncryptedToken)
	}
}

func TestWebhookRejectsNonPost(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/webhook", nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", rec.Code)
	}
}

func TestSemanticSearchWithoutSearcherReturnsEmptyHits(t *testing.T) {
	srv := newTestServer(t)

	body := []byte(`{"query":"hello"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/semantic-search", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Hits []adapters.SearchHit `json:"hits"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Hits) != 0 {
		t.Fatalf("expected no hits, got %d", len(resp.Hits))
	}
}

func TestSecurityHeadersPresentOnEveryResponse(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Header().Get("X-Frame-Options") == "" {
		t.Fatal("expected security headers middleware to set X-Frame-Options")
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected request id middleware to set X-Request-Id")
	}
}
