package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"rtms-ingest/internal/storage"
)

type speakerRosterResponse struct {
	MeetingID string          `json:"meeting_id"`
	UUID      string          `json:"uuid"`
	Speakers  []speakerRoster `json:"speakers"`
}

type speakerRoster struct {
	SpeakerID      string `json:"speaker_id"`
	SpeakerName    string `json:"speaker_name"`
	ContextSummary string `json:"context_summary"`
}

// Speakers implements GET /api/meeting/:numericId/speakers. If the
// numeric id has no cached uuid mapping yet, it attempts discovery by
// resolving straight from the store before giving up.
func (h *Handler) Speakers(w http.ResponseWriter, r *http.Request) {
	numericID := mux.Vars(r)["numericId"]
	if numericID == "" {
		WriteError(w, http.StatusBadRequest, fmt.Errorf("numericId is required"))
		return
	}

	ctx, cancel := requestContext(r, 5*time.Second)
	defer cancel()

	uuid, err := h.resolveMeetingUUID(ctx, numericID)
	if err != nil {
		WriteError(w, http.StatusNotFound, fmt.Errorf("no mapping found for meeting %s", numericID))
		return
	}

	rows, err := h.store.SpeakersForMeeting(ctx, uuid)
	if err != nil {
		h.logger.Warn().Err(err).Str("meeting_uuid", uuid).Msg("failed to load speaker roster")
		WriteError(w, http.StatusInternalServerError, fmt.Errorf("failed to load speakers"))
		return
	}

	resp := speakerRosterResponse{MeetingID: numericID, UUID: uuid, Speakers: make([]speakerRoster, 0, len(rows))}
	for _, row := range rows {
		resp.Speakers = append(resp.Speakers, speakerRoster{
			SpeakerID:      row.SpeakerID,
			SpeakerName:    row.SpeakerName,
			ContextSummary: row.ContextSummary,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) resolveMeetingUUID(ctx context.Context, numericID string) (string, error) {
	uuid, err := h.store.ResolveMeetingUUID(ctx, numericID)
	if err == nil {
		return uuid, nil
	}
	if err != storage.ErrNotFound {
		return "", err
	}
	// Discovery fallback: the numeric id may itself be the uuid (some
	// deployments surface only the uuid to client callers). Cache it
	// through on success so subsequent lookups hit the fast path.
	if _, err := h.store.ChunksForMeeting(ctx, numericID, 1); err == nil {
		_ = h.store.PersistMeetingMapping(ctx, numericID, numericID)
		return numericID, nil
	}
	return "", storage.ErrNotFound
}

type speakerContextResponse struct {
	MeetingID      string   `json:"meeting_id"`
	SpeakerID      string   `json:"speaker_id"`
	SpeakerName    string   `json:"speaker_name,omitempty"`
	ContextSummary *string  `json:"context_summary"`
	Topics         []string `json:"topics,omitempty"`
}

// SpeakerContext implements GET /api/speaker/:speakerId/context?meetingId=.
func (h *Handler) SpeakerContext(w http.ResponseWriter, r *http.Request) {
	speakerID := mux.Vars(r)["speakerId"]
	meetingID := r.URL.Query().Get("meetingId")
	if speakerID == "" || meetingID == "" {
		WriteError(w, http.StatusBadRequest, fmt.Errorf("speakerId and meetingId are required"))
		return
	}

	ctx, cancel := requestContext(r, 5*time.Second)
	defer cancel()

	doc, ok, err := h.store.SpeakerContext(ctx, meetingID, speakerID)
	if err != nil {
		h.logger.Warn().Err(err).Str("speaker_id", speakerID).Msg("failed to load speaker context")
		WriteError(w, http.StatusInternalServerError, fmt.Errorf("failed to load speaker context"))
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, speakerContextResponse{MeetingID: meetingID, SpeakerID: speakerID, ContextSummary: nil})
		return
	}
	summary := doc.ContextSummary
	writeJSON(w, http.StatusOK, speakerContextResponse{
		MeetingID:      meetingID,
		SpeakerID:      speakerID,
		SpeakerName:    doc.SpeakerName,
		ContextSummary: &summary,
		Topics:         doc.Topics,
	})
}
