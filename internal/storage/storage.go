// Package storage persists meeting mappings, transcript chunks, and
// speaker context to Postgres via pgxpool.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned by lookup methods when no matching row exists.
var ErrNotFound = errors.New("storage: not found")

// Meeting is the numericId<->uuid mapping row plus lifecycle status.
type Meeting struct {
	NumericID string
	UUID      string
	Start     time.Time
	End       time.Time
	Status    string
}

// TranscriptChunk is a flushed Transcript Buffer chunk document.
type TranscriptChunk struct {
	ChunkID      string
	MeetingID    string
	Text         string
	SpeakerIDs   []string
	SpeakerNames []string
	StartTime    int64
	EndTime      int64
}

// SpeakerContext is one doc per (meetingId, speakerId) carrying the
// rolling summary and topic list a speaker-idle/periodic trigger wrote.
type SpeakerContext struct {
	MeetingID      string
	SpeakerID      string
	SpeakerName    string
	ContextSummary string
	Topics         []string
	UpdatedAt      time.Time
}

// SpeakerTranscript is an optional raw per-speaker utterance row.
type SpeakerTranscript struct {
	MeetingID   string
	SpeakerID   string
	SpeakerName string
	Text        string
	Timestamp   int64
}

// Storage wraps a pgxpool.Pool with the four collections the Event
// Router and Transcript Buffer depend on through the IndexWriter
// adapter.
type Storage struct {
	pool *pgxpool.Pool
}

// Open connects to Postgres and applies schema migrations.
func Open(ctx context.Context, dsn string) (*Storage, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	s := &Storage{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Storage) Close() {
	s.pool.Close()
}

func (s *Storage) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meetings (
			numeric_id TEXT PRIMARY KEY,
			uuid TEXT NOT NULL UNIQUE,
			started_at TIMESTAMPTZ,
			ended_at TIMESTAMPTZ,
			status TEXT NOT NULL DEFAULT 'pending'
		)`,
		`CREATE TABLE IF NOT EXISTS transcript_chunks (
			chunk_id TEXT PRIMARY KEY,
			meeting_id TEXT NOT NULL,
			text TEXT NOT NULL,
			speaker_ids TEXT[] NOT NULL DEFAULT '{}',
			speaker_names TEXT[] NOT NULL DEFAULT '{}',
			start_time BIGINT NOT NULL,
			end_time BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS transcript_chunks_meeting_idx ON transcript_chunks (meeting_id, start_time)`,
		`CREATE TABLE IF NOT EXISTS speaker_context (
			meeting_id TEXT NOT NULL,
			speaker_id TEXT NOT NULL,
			speaker_name TEXT NOT NULL,
			context_summary TEXT NOT NULL DEFAULT '',
			topics TEXT[] NOT NULL DEFAULT '{}',
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (meeting_id, speaker_id)
		)`,
		`CREATE TABLE IF NOT EXISTS speaker_transcripts (
			meeting_id TEXT NOT NULL,
			speaker_id TEXT NOT NULL,
			speaker_name TEXT NOT NULL,
			text TEXT NOT NULL,
			ts BIGINT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// PersistMeetingMapping writes the numericId->uuid mapping through,
// creating the meeting row if absent.
func (s *Storage) PersistMeetingMapping(ctx context.Context, numericID, uuid string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO meetings (numeric_id, uuid, started_at, status)
		VALUES ($1, $2, now(), 'active')
		ON CONFLICT (numeric_id) DO UPDATE SET uuid = EXCLUDED.uuid`,
		numericID, uuid)
	return err
}

// ResolveMeetingUUID implements the IndexWriter lookup half of the
// mapping round-trip.
func (s *Storage) ResolveMeetingUUID(ctx context.Context, numericID string) (string, error) {
	var uuid string
	err := s.pool.QueryRow(ctx, `SELECT uuid FROM meetings WHERE numeric_id = $1`, numericID).Scan(&uuid)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return uuid, nil
}

// MarkMeetingEnded records the meeting's end time and terminal status.
func (s *Storage) MarkMeetingEnded(ctx context.Context, uuid string) error {
	_, err := s.pool.Exec(ctx, `UPDATE meetings SET ended_at = now(), status = 'ended' WHERE uuid = $1`, uuid)
	return err
}

// InsertChunk persists a flushed transcript chunk.
func (s *Storage) InsertChunk(ctx context.Context, chunk TranscriptChunk) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO transcript_chunks (chunk_id, meeting_id, text, speaker_ids, speaker_names, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (chunk_id) DO NOTHING`,
		chunk.ChunkID, chunk.MeetingID, chunk.Text, chunk.SpeakerIDs, chunk.SpeakerNames, chunk.StartTime, chunk.EndTime)
	return err
}

// ChunksForMeeting returns up to limit chunks for a meeting ordered by
// start_time, per the /api/chunks/:meetingId endpoint contract.
func (s *Storage) ChunksForMeeting(ctx context.Context, meetingID string, limit int) ([]TranscriptChunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT chunk_id, meeting_id, text, speaker_ids, speaker_names, start_time, end_time
		FROM transcript_chunks WHERE meeting_id = $1 ORDER BY start_time ASC LIMIT $2`,
		meetingID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []TranscriptChunk
	for rows.Next() {
		var c TranscriptChunk
		if err := rows.Scan(&c.ChunkID, &c.MeetingID, &c.Text, &c.SpeakerIDs, &c.SpeakerNames, &c.StartTime, &c.EndTime); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// UpsertSpeakerContext writes through the latest rolling summary for a
// (meetingId, speakerId) pair.
func (s *Storage) UpsertSpeakerContext(ctx context.Context, doc SpeakerContext) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO speaker_context (meeting_id, speaker_id, speaker_name, context_summary, topics, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (meeting_id, speaker_id) DO UPDATE SET
			speaker_name = EXCLUDED.speaker_name,
			context_summary = EXCLUDED.context_summary,
			topics = EXCLUDED.topics,
			updated_at = EXCLUDED.updated_at`,
		doc.MeetingID, doc.SpeakerID, doc.SpeakerName, doc.ContextSummary, doc.Topics, doc.UpdatedAt)
	return err
}

// SpeakerContext returns the speaker context doc, or ok=false if none
// has been written yet.
func (s *Storage) SpeakerContext(ctx context.Context, meetingID, speakerID string) (SpeakerContext, bool, error) {
	var doc SpeakerContext
	err := s.pool.QueryRow(ctx, `
		SELECT meeting_id, speaker_id, speaker_name, context_summary, topics, updated_at
		FROM speaker_context WHERE meeting_id = $1 AND speaker_id = $2`,
		meetingID, speakerID).Scan(&doc.MeetingID, &doc.SpeakerID, &doc.SpeakerName, &doc.ContextSummary, &doc.Topics, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return SpeakerContext{}, false, nil
	}
	if err != nil {
		return SpeakerContext{}, false, err
	}
	return doc, true, nil
}

// SpeakerSummary is one row of the roster returned by
// /api/meeting/:numericId/speakers: a speaker's id/name plus whatever
// rolling context has accumulated for them.
type SpeakerSummary struct {
	SpeakerID      string
	SpeakerName    string
	ContextSummary string
}

// SpeakersForMeeting lists every speaker with recorded context for a
// meeting, derived from speaker_context (falls back to distinct
// speakers seen in transcript_chunks when no context has landed yet).
func (s *Storage) SpeakersForMeeting(ctx context.Context, meetingUUID string) ([]SpeakerSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT speaker_id, speaker_name, context_summary
		FROM speaker_context WHERE meeting_id = $1 ORDER BY speaker_name`,
		meetingUUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var speakers []SpeakerSummary
	for rows.Next() {
		var sp SpeakerSummary
		if err := rows.Scan(&sp.SpeakerID, &sp.SpeakerName, &sp.ContextSummary); err != nil {
			return nil, err
		}
		speakers = append(speakers, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(speakers) > 0 {
		return speakers, nil
	}

	rows, err = s.pool.Query(ctx, `
		SELECT DISTINCT unnest(speaker_ids) AS speaker_id, unnest(speaker_names) AS speaker_name
		FROM transcript_chunks WHERE meeting_id = $1`,
		meetingUUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var sp SpeakerSummary
		if err := rows.Scan(&sp.SpeakerID, &sp.SpeakerName); err != nil {
			return nil, err
		}
		speakers = append(speakers, sp)
	}
	return speakers, rows.Err()
}

// InsertSpeakerTranscript appends an optional raw per-speaker utterance.
func (s *Storage) InsertSpeakerTranscript(ctx context.Context, t SpeakerTranscript) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO speaker_transcripts (meeting_id, speaker_id, speaker_name, text, ts)
		VALUES ($1, $2, $3, $4, $5)`,
		t.MeetingID, t.SpeakerID, t.SpeakerName, t.Text, t.Timestamp)
	return err
}
