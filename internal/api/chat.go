package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

type chatRequest struct {
	Question  string `json:"question"`
	MeetingID string `json:"meetingId"`
}

type chatResponse struct {
	Answer   string `json:"answer"`
	Fallback bool   `json:"fallback,omitempty"`
}

// Chat implements POST /api/chat/:speakerId. It is the RAG-over-inference
// path spec.md's Open Question settled on: the speaker's rolling summary
// plus semantic hits seed a completion prompt; a Kibana-Agent-Builder-style
// per-speaker agent network is left as an alternative Completer a deployer
// could swap in, not wired here.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}

	speakerID := mux.Vars(r)["speakerId"]
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if speakerID == "" || req.Question == "" || req.MeetingID == "" {
		WriteError(w, http.StatusBadRequest, fmt.Errorf("speakerId, question, and meetingId are required"))
		return
	}

	ctx, cancel := requestContext(r, 15*time.Second)
	defer cancel()

	var summary string
	if doc, ok, err := h.store.SpeakerContext(ctx, req.MeetingID, speakerID); err != nil {
		h.logger.Warn().Err(err).Str("speaker_id", speakerID).Msg("failed to load speaker context for chat")
	} else if ok {
		summary = doc.ContextSummary
	}

	var hitTexts []string
	if h.searcher != nil {
		hits, err := h.searcher.SemanticSearch(ctx, req.Question, req.MeetingID, speakerID, 5)
		if err != nil {
			h.logger.Warn().Err(err).Msg("semantic search failed during chat, continuing without hits")
		}
		for _, hit := range hits {
			hitTexts = append(hitTexts, hit.Text)
		}
	}

	if h.completer == nil {
		writeJSON(w, http.StatusOK, chatResponse{Answer: fallbackAnswer(summary, hitTexts), Fallback: true})
		return
	}

	answer, err := h.completer.Complete(ctx, buildChatPrompt(req.Question, summary, hitTexts))
	if err != nil {
		h.logger.Warn().Err(err).Msg("completion backend unavailable, degrading to textual fallback")
		writeJSON(w, http.StatusOK, chatResponse{Answer: fallbackAnswer(summary, hitTexts), Fallback: true})
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Answer: answer})
}

func buildChatPrompt(question, summary string, hits []string) string {
	var b strings.Builder
	if summary != "" {
		b.WriteString("Speaker summary: ")
		b.WriteString(summary)
		b.WriteString("\n")
	}
	for _, hit := range hits {
		b.WriteString("Relevant transcript: ")
		b.WriteString(hit)
		b.WriteString("\n")
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}

// fallbackAnswer degrades gracefully when the inference backend is
// unavailable, per spec.md §7: surface whatever grounded text exists
// instead of an error.
func fallbackAnswer(summary string, hits []string) string {
	if summary == "" && len(hits) == 0 {
		return "No context is available yet for this speaker."
	}
	var b strings.Builder
	if summary != "" {
		b.WriteString(summary)
	}
	for _, hit := range hits {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(hit)
	}
	return b.String()
}
