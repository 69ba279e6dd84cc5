// Package adapters defines the narrow, interchangeable contracts the
// RTMS ingestion core depends on for persistence, search, summarisation,
// and live client fan-out.
package adapters

import "context"

// TranscriptChunk is the flushed Transcript Buffer document an
// IndexWriter persists.
type TranscriptChunk struct {
	ChunkID      string
	MeetingID    string
	Text         string
	SpeakerIDs   []string
	SpeakerNames []string
	StartTime    int64
	EndTime      int64
}

// SpeakerContext is the rolling per-speaker summary document an
// IndexWriter persists and a Searcher/Summariser consumes.
type SpeakerContext struct {
	MeetingID      string
	SpeakerID      string
	SpeakerName    string
	ContextSummary string
	Topics         []string
}

// IndexWriter persists transcript chunks, speaker context, and the
// numericId<->uuid meeting mapping.
type IndexWriter interface {
	InsertChunk(ctx context.Context, chunk TranscriptChunk) error
	UpsertSpeakerContext(ctx context.Context, doc SpeakerContext) error
	PersistMeetingMapping(ctx context.Context, numericID, uuid string) error
	ResolveMeetingUUID(ctx context.Context, numericID string) (string, bool, error)
}

// SearchHit is one ranked result from a Searcher.
type SearchHit struct {
	ChunkID   string
	MeetingID string
	SpeakerID string
	Text      string
	Score     float64
}

// Searcher answers semantic search queries, falling back to lexical
// search as a soft failure when the embedding path is unavailable.
type Searcher interface {
	SemanticSearch(ctx context.Context, query, meetingUUID, speakerID string, limit int) ([]SearchHit, error)
}

// SummaryResult is a Summariser's merged output.
type SummaryResult struct {
	Summary string
	Topics  []string
}

// Summariser summarises a speaker's newly buffered text via a completion
// endpoint. It receives only that new text; no earlier summary is passed
// in.
type Summariser interface {
	Summarise(ctx context.Context, meetingID, speakerID, speakerName, recentText string, segmentCount int) (SummaryResult, error)
}

// Broadcaster fans live updates out to connected clients, per meeting or
// per user. Delivery is fire-and-forget, at-least-once best effort;
// de-duplication is the client's responsibility.
type Broadcaster interface {
	BroadcastMeeting(meetingID string, event string, payload any)
	BroadcastUser(userID string, event string, payload any)
}

// Completer answers a free-form completion prompt against the same
// inference endpoint the Summariser drives. The chat HTTP surface uses
// it directly for RAG-over-inference (summary + semantic hits -> a
// completion), outside the core's summarisation trigger.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
