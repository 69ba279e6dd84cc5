// Package index adapts the Postgres-backed storage layer to the
// IndexWriter contract.
package index

import (
	"context"
	"errors"
	"time"

	"rtms-ingest/internal/adapters"
	"rtms-ingest/internal/storage"
)

// PostgresWriter implements adapters.IndexWriter over *storage.Storage.
type PostgresWriter struct {
	store *storage.Storage
}

// New wraps a storage.Storage as an adapters.IndexWriter.
func New(store *storage.Storage) *PostgresWriter {
	return &PostgresWriter{store: store}
}

func (w *PostgresWriter) InsertChunk(ctx context.Context, chunk adapters.TranscriptChunk) error {
	return w.store.InsertChunk(ctx, storage.TranscriptChunk{
		ChunkID:      chunk.ChunkID,
		MeetingID:    chunk.MeetingID,
		Text:         chunk.Text,
		SpeakerIDs:   chunk.SpeakerIDs,
		SpeakerNames: chunk.SpeakerNames,
		StartTime:    chunk.StartTime,
		EndTime:      chunk.EndTime,
	})
}

func (w *PostgresWriter) UpsertSpeakerContext(ctx context.Context, doc adapters.SpeakerContext) error {
	return w.store.UpsertSpeakerContext(ctx, storage.SpeakerContext{
		MeetingID:      doc.MeetingID,
		SpeakerID:      doc.SpeakerID,
		SpeakerName:    doc.SpeakerName,
		ContextSummary: doc.ContextSummary,
		Topics:         doc.Topics,
		UpdatedAt:      time.Now().UTC(),
	})
}

func (w *PostgresWriter) PersistMeetingMapping(ctx context.Context, numericID, uuid string) error {
	return w.store.PersistMeetingMapping(ctx, numericID, uuid)
}

func (w *PostgresWriter) ResolveMeetingUUID(ctx context.Context, numericID string) (string, bool, error) {
	uuid, err := w.store.ResolveMeetingUUID(ctx, numericID)
	if errors.Is(err, storage.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return uuid, true, nil
}
