// Package search implements adapters.Searcher against an external
// embedding/search service, degrading to lexical search over stored
// transcript chunks when that service is unavailable.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"rtms-ingest/internal/adapters"
	"rtms-ingest/internal/storage"
)

// Config points the Searcher at the embedding service and the
// fallback lexical store.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Store      *storage.Storage
	Logger     zerolog.Logger
}

// HTTPSearcher implements adapters.Searcher.
type HTTPSearcher struct {
	cfg Config
}

// New constructs an HTTPSearcher.
func New(cfg Config) *HTTPSearcher {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPSearcher{cfg: cfg}
}

type searchRequest struct {
	Query       string `json:"query"`
	MeetingUUID string `json:"meetingUuid,omitempty"`
	SpeakerID   string `json:"speakerId,omitempty"`
	Limit       int    `json:"limit"`
}

type searchResponse struct {
	Hits []struct {
		ChunkID   string  `json:"chunkId"`
		MeetingID string  `json:"meetingId"`
		SpeakerID string  `json:"speakerId"`
		Text      string  `json:"text"`
		Score     float64 `json:"score"`
	} `json:"hits"`
}

// SemanticSearch calls the embedding service; on any failure it falls
// back to a lexical scan of stored chunks and logs the degradation as
// a soft failure rather than surfacing an error.
func (s *HTTPSearcher) SemanticSearch(ctx context.Context, query, meetingUUID, speakerID string, limit int) ([]adapters.SearchHit, error) {
	if limit <= 0 {
		limit = 20
	}
	if s.cfg.BaseURL != "" {
		hits, err := s.semanticSearchRemote(ctx, query, meetingUUID, speakerID, limit)
		if err == nil {
			return hits, nil
		}
		s.cfg.Logger.Warn().Err(err).Msg("semantic search unavailable, falling back to lexical search")
	}
	return s.lexicalSearch(ctx, query, meetingUUID, limit)
}

func (s *HTTPSearcher) semanticSearchRemote(ctx context.Context, query, meetingUUID, speakerID string, limit int) ([]adapters.SearchHit, error) {
	body, err := json.Marshal(searchRequest{Query: query, MeetingUUID: meetingUUID, SpeakerID: speakerID, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("encode search request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call search service: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search service returned status %d", resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	hits := make([]adapters.SearchHit, 0, len(parsed.Hits))
	for _, h := range parsed.Hits {
		hits = append(hits, adapters.SearchHit{ChunkID: h.ChunkID, MeetingID: h.MeetingID, SpeakerID: h.SpeakerID, Text: h.Text, Score: h.Score})
	}
	return hits, nil
}

func (s *HTTPSearcher) lexicalSearch(ctx context.Context, query, meetingUUID string, limit int) ([]adapters.SearchHit, error) {
	if s.cfg.Store == nil || meetingUUID == "" {
		return nil, nil
	}
	chunks, err := s.cfg.Store.ChunksForMeeting(ctx, meetingUUID, 1000)
	if err != nil {
		return nil, fmt.Errorf("lexical fallback: %w", err)
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	var hits []adapters.SearchHit
	for _, c := range chunks {
		if needle != "" && !strings.Contains(strings.ToLower(c.Text), needle) {
			continue
		}
		hits = append(hits, adapters.SearchHit{ChunkID: c.ChunkID, MeetingID: c.MeetingID, Text: c.Text, Score: 1})
		if len(hits) >= limit {
			break
		}
	}
	return hits, nil
}
