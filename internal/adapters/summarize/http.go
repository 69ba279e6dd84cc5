// Package summarize implements adapters.Summariser against an external
// completion endpoint, with robust JSON extraction from free-form
// model replies.
package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"rtms-ingest/internal/adapters"
)

// Config points the Summariser at a completion endpoint.
type Config struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// HTTPSummariser implements adapters.Summariser.
type HTTPSummariser struct {
	cfg Config
}

// New constructs an HTTPSummariser.
func New(cfg Config) *HTTPSummariser {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPSummariser{cfg: cfg}
}

type completionRequest struct {
	Prompt string `json:"prompt"`
}

type completionResponse struct {
	Text string `json:"text"`
}

type summaryPayload struct {
	Summary string   `json:"summary"`
	Topics  []string `json:"topics"`
}

// Summarise sends speakerName's newly buffered text to the completion
// endpoint and extracts the structured reply. recentText holds only the
// utterances since the speaker's last summary; no earlier summary is
// included in the prompt, so the result covers the new text alone.
func (s *HTTPSummariser) Summarise(ctx context.Context, meetingID, speakerID, speakerName, recentText string, segmentCount int) (adapters.SummaryResult, error) {
	if strings.TrimSpace(recentText) == "" {
		return adapters.SummaryResult{}, fmt.Errorf("summarise: recentText must not be empty")
	}
	prompt := buildPrompt(speakerName, recentText, segmentCount)

	body, err := json.Marshal(completionRequest{Prompt: prompt})
	if err != nil {
		return adapters.SummaryResult{}, fmt.Errorf("encode completion request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/completions", bytes.NewReader(body))
	if err != nil {
		return adapters.SummaryResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		return adapters.SummaryResult{}, fmt.Errorf("call completion service: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return adapters.SummaryResult{}, fmt.Errorf("completion service returned status %d", resp.StatusCode)
	}

	var parsed completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return adapters.SummaryResult{}, fmt.Errorf("decode completion response: %w", err)
	}

	payload, ok := extractJSON(parsed.Text)
	if !ok {
		return adapters.SummaryResult{Summary: strings.TrimSpace(parsed.Text)}, nil
	}
	return adapters.SummaryResult{Summary: payload.Summary, Topics: payload.Topics}, nil
}

// Complete answers a free-form prompt against the same completion
// endpoint, for the chat HTTP surface's RAG-over-inference path. Unlike
// Summarise it does not try to extract a structured payload; callers
// take the raw completion text.
func (s *HTTPSummariser) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(completionRequest{Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("encode completion request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("call completion service: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completion service returned status %d", resp.StatusCode)
	}

	var parsed completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	return strings.TrimSpace(parsed.Text), nil
}

func buildPrompt(speakerName, recentText string, segmentCount int) string {
	return fmt.Sprintf(
		"Summarise the following %d new utterances from %s as JSON {\"summary\":string,\"topics\":[string]}:\n%s",
		segmentCount, speakerName, recentText,
	)
}

// extractJSON pulls the first balanced {...} object out of a model
// reply that may wrap its JSON in prose or markdown fencing.
func extractJSON(text string) (summaryPayload, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return summaryPayload{}, false
	}
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				var payload summaryPayload
				if err := json.Unmarshal([]byte(text[start:i+1]), &payload); err != nil {
					return summaryPayload{}, false
				}
				return payload, true
			}
		}
	}
	return summaryPayload{}, false
}
