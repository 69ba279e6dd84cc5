package api

import (
	"fmt"
	"net/http"
	"time"

	"rtms-ingest/internal/adapters"
)

type semanticSearchRequest struct {
	Query     string `json:"query"`
	MeetingID string `json:"meetingId,omitempty"`
	SpeakerID string `json:"speakerId,omitempty"`
	Size      int    `json:"size,omitempty"`
}

type semanticSearchResponse struct {
	Hits []searchHitResponse `json:"hits"`
}

type searchHitResponse struct {
	ChunkID   string  `json:"chunk_id"`
	MeetingID string  `json:"meeting_id"`
	SpeakerID string  `json:"speaker_id,omitempty"`
	Text      string  `json:"text"`
	Score     float64 `json:"score"`
}

// SemanticSearch implements POST /api/semantic-search. The Searcher
// adapter itself handles the embedding-unavailable soft-failure
// fallback to lexical search; this handler only surfaces a hard
// failure when the Searcher call errors outright.
func (h *Handler) SemanticSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}

	var req semanticSearchRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if req.Query == "" {
		WriteError(w, http.StatusBadRequest, fmt.Errorf("query is required"))
		return
	}
	if h.searcher == nil {
		writeJSON(w, http.StatusOK, semanticSearchResponse{Hits: []searchHitResponse{}})
		return
	}

	ctx, cancel := requestContext(r, 10*time.Second)
	defer cancel()

	hits, err := h.searcher.SemanticSearch(ctx, req.Query, req.MeetingID, req.SpeakerID, req.Size)
	if err != nil {
		h.logger.Warn().Err(err).Str("query", req.Query).Msg("semantic search failed")
		writeJSON(w, http.StatusOK, semanticSearchResponse{Hits: []searchHitResponse{}})
		return
	}
	writeJSON(w, http.StatusOK, semanticSearchResponse{Hits: toSearchHitResponses(hits)})
}

func toSearchHitResponses(hits []adapters.SearchHit) []searchHitResponse {
	out := make([]searchHitResponse, 0, len(hits))
	for _, hit := range hits {
		out = append(out, searchHitResponse{
			ChunkID:   hit.ChunkID,
			MeetingID: hit.MeetingID,
			SpeakerID: hit.SpeakerID,
			Text:      hit.Text,
			Score:     hit.Score,
		})
	}
	return out
}
