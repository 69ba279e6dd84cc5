package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"rtms-ingest/internal/storage"
)

const maxChunksReturned = 1000

type chunkResponse struct {
	ChunkID      string   `json:"chunk_id"`
	MeetingID    string   `json:"meeting_id"`
	Text         string   `json:"text"`
	SpeakerIDs   []string `json:"speaker_ids"`
	SpeakerNames []string `json:"speaker_names"`
	StartTime    int64    `json:"start_time"`
	EndTime      int64    `json:"end_time"`
}

// Chunks implements GET /api/chunks/:meetingId: up to 1000 chunks
// sorted by start_time.
func (h *Handler) Chunks(w http.ResponseWriter, r *http.Request) {
	meetingID := mux.Vars(r)["meetingId"]
	if meetingID == "" {
		WriteError(w, http.StatusBadRequest, fmt.Errorf("meetingId is required"))
		return
	}

	ctx, cancel := requestContext(r, 5*time.Second)
	defer cancel()

	rows, err := h.store.ChunksForMeeting(ctx, meetingID, maxChunksReturned)
	if err != nil {
		h.logger.Warn().Err(err).Str("meeting_id", meetingID).Msg("failed to load chunks")
		WriteError(w, http.StatusInternalServerError, fmt.Errorf("failed to load chunks"))
		return
	}
	writeJSON(w, http.StatusOK, toChunkResponses(rows))
}

func toChunkResponses(rows []storage.TranscriptChunk) []chunkResponse {
	out := make([]chunkResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, chunkResponse{
			ChunkID:      row.ChunkID,
			MeetingID:    row.MeetingID,
			Text:         row.Text,
			SpeakerIDs:   row.SpeakerIDs,
			SpeakerNames: row.SpeakerNames,
			StartTime:    row.StartTime,
			EndTime:      row.EndTime,
		})
	}
	return out
}
