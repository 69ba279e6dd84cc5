// Package api implements the HTTP surface described in spec.md §6: the
// webhook intake and the read/query endpoints client applications poll
// against the RTMS ingestion core's persisted state.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"rtms-ingest/internal/adapters"
	"rtms-ingest/internal/config"
	"rtms-ingest/internal/router"
	"rtms-ingest/internal/storage"
)

// Handler serves every endpoint in the external interfaces table. It
// holds no ingestion state of its own: the webhook path delegates to
// Router, and every read endpoint queries Store/Searcher/Completer
// directly.
type Handler struct {
	cfg       config.Config
	router    *router.Router
	store     *storage.Storage
	searcher  adapters.Searcher
	completer adapters.Completer
	logger    zerolog.Logger
}

// New constructs a Handler. completer may be nil, in which case chat
// requests degrade to a textual fallback.
func New(cfg config.Config, rtr *router.Router, store *storage.Storage, searcher adapters.Searcher, completer adapters.Completer, logger zerolog.Logger) *Handler {
	return &Handler{cfg: cfg, router: rtr, store: store, searcher: searcher, completer: completer, logger: logger}
}

// Health answers the load balancer / orchestrator liveness probe.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func requestContext(r *http.Request, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), timeout)
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}
