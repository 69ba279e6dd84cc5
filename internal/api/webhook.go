package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"rtms-ingest/internal/router"
	"rtms-ingest/internal/signature"
)

const (
	maxWebhookBody   = 1 << 20 // 1MiB; vendor payloads are small JSON envelopes.
	webhookHandleWindow = 5 * time.Second
	validationEvent  = "endpoint.url_validation"
)

// Webhook implements POST /webhook. The url_validation event gets the
// synchronous HMAC reply; everything else is signature-verified, then
// acked 200 and dispatched to the Router asynchronously.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
	if err != nil {
		WriteError(w, http.StatusBadRequest, fmt.Errorf("read webhook body: %w", err))
		return
	}
	if len(body) > maxWebhookBody {
		WriteError(w, http.StatusRequestEntityTooLarge, errors.New("webhook body too large"))
		return
	}

	var envelope router.WebhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		WriteError(w, http.StatusBadRequest, fmt.Errorf("decode webhook envelope: %w", err))
		return
	}

	if envelope.Event != validationEvent {
		if product, ok := productFromEvent(envelope.Event); ok {
			if creds, ok := h.cfg.CredentialsFor(product); ok && creds.SecretToken != "" {
				timestamp := r.Header.Get("X-Webhook-Timestamp")
				sig := r.Header.Get("X-Webhook-Signature")
				if !signature.VerifyWebhook(creds.SecretToken, timestamp, body, sig) {
					WriteError(w, http.StatusUnauthorized, errors.New("webhook signature mismatch"))
					return
				}
			}
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), webhookHandleWindow)
	defer cancel()

	resp, err := h.router.HandleEvent(ctx, envelope.Event, envelope.Payload)
	if err != nil {
		h.logger.Warn().Err(err).Str("event", envelope.Event).Msg("webhook handling failed")
		WriteError(w, http.StatusBadRequest, err)
		return
	}
	if resp != nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func productFromEvent(name string) (string, bool) {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return "", false
	}
	return name[:idx], true
}
