// Package router implements the Event Router (C5): the single entry
// point that turns webhook events into Session and Transcript Buffer
// lifecycle transitions.
package router

import "encoding/json"

// ValidationPayload is the endpoint.url_validation webhook body.
type ValidationPayload struct {
	PlainToken string `json:"plainToken"`
}

// ValidationResponse is the synchronous reply to a url_validation
// webhook.
type ValidationResponse struct {
	PlainToken    string `json:"plainToken"`
	EncryptedToken string `json:"encryptedToken"`
}

// StartedPayload is the <product>.rtms_started webhook body.
type StartedPayload struct {
	MeetingUUID    string `json:"meeting_uuid"`
	MeetingID      string `json:"meeting_id"`
	StreamID       string `json:"rtms_stream_id"`
	ServerURL      string `json:"server_urls"`
}

// StoppedPayload is the <product>.rtms_stopped webhook body.
type StoppedPayload struct {
	MeetingUUID string `json:"meeting_uuid"`
	StreamID    string `json:"rtms_stream_id"`
}

// WebhookEnvelope is the top-level POST /webhook body.
type WebhookEnvelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}
