package transcript

import (
	"sync"
	"testing"
	"time"
)

func TestBufferChunkJoinsUtterancesInOrder(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var chunks []ChunkEvent
	b := New("UUID-A", Handlers{OnChunk: func(c ChunkEvent) {
		mu.Lock()
		chunks = append(chunks, c)
		mu.Unlock()
	}}, testLogger())

	b.Append(Utterance{SpeakerID: "U1", SpeakerName: "U1", Text: "hello", Timestamp: 1000})
	b.Append(Utterance{SpeakerID: "U1", SpeakerName: "U1", Text: "world", Timestamp: 2000})
	b.Append(Utterance{SpeakerID: "U1", SpeakerName: "U1", Text: "again", Timestamp: 3000})
	b.Destroy()

	mu.Lock()
	defer mu.Unlock()
	if len(chunks) != 1 {
		t.Fatalf("expected exactly one chunk on destroy, got %d", len(chunks))
	}
	want := "U1: hello\nU1: world\nU1: again"
	if chunks[0].Text != want {
		t.Fatalf("expected chunk text %q, got %q", want, chunks[0].Text)
	}
	if chunks[0].ChunkID != "UUID-A-chunk-1" {
		t.Fatalf("expected chunkId UUID-A-chunk-1, got %s", chunks[0].ChunkID)
	}
	if chunks[0].StartTime != 1000 || chunks[0].EndTime != 3000 {
		t.Fatalf("expected start/end 1000/3000, got %d/%d", chunks[0].StartTime, chunks[0].EndTime)
	}
}

func TestBufferSpeakerIdleSummarizesOnceWithCumulativeCount(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var summaries []SummarizeEvent
	b := newBuffer("UUID-A", Handlers{OnSummarize: func(s SummarizeEvent) {
		mu.Lock()
		summaries = append(summaries, s)
		mu.Unlock()
	}}, testLogger(), time.Hour, 30*time.Millisecond, time.Hour, 500)
	defer b.Destroy()

	b.Append(Utterance{SpeakerID: "U1", SpeakerName: "U1", Text: "hello", Timestamp: 0})
	b.Append(Utterance{SpeakerID: "U1", SpeakerName: "U1", Text: "world", Timestamp: 2000})
	b.Append(Utterance{SpeakerID: "U1", SpeakerName: "U1", Text: "again", Timestamp: 4000})

	deadline := time.After(3 * time.Second)
	for {
		mu.Lock()
		n := len(summaries)
		mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for speaker-idle summarize")
		case <-time.After(10 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(summaries) != 1 {
		t.Fatalf("expected exactly one summarize event, got %d", len(summaries))
	}
	if summaries[0].RecentText != "hello world again" {
		t.Fatalf("expected recentText %q, got %q", "hello world again", summaries[0].RecentText)
	}
	if summaries[0].SegmentCount != 3 {
		t.Fatalf("expected segmentCount 3, got %d", summaries[0].SegmentCount)
	}
}

func TestBufferNeverSummarizesEmptyText(t *testing.T) {
	t.Parallel()

	called := false
	b := New("UUID-B", Handlers{OnSummarize: func(SummarizeEvent) { called = true }}, testLogger())
	b.Destroy()

	if called {
		t.Fatal("expected no summarize event for an empty buffer")
	}
}

func TestBufferCanonicalisesLanguageTag(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var chunks []ChunkEvent
	var summaries []SummarizeEvent
	b := newBuffer("UUID-C", Handlers{
		OnChunk: func(c ChunkEvent) {
			mu.Lock()
			chunks = append(chunks, c)
			mu.Unlock()
		},
		OnSummarize: func(s SummarizeEvent) {
			mu.Lock()
			summaries = append(summaries, s)
			mu.Unlock()
		},
	}, testLogger(), time.Hour, time.Hour, time.Hour, 500)

	b.Append(Utterance{SpeakerID: "U1", SpeakerName: "U1", Text: "hello", Timestamp: 1000, Language: "EN-us"})
	b.Destroy()

	mu.Lock()
	defer mu.Unlock()
	if len(chunks) != 1 {
		t.Fatalf("expected exactly one chunk, got %d", len(chunks))
	}
	if chunks[0].Language != "en-US" {
		t.Fatalf("expected canonicalised language en-US, got %q", chunks[0].Language)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected exactly one summary, got %d", len(summaries))
	}
	if summaries[0].Language != "en-US" {
		t.Fatalf("expected canonicalised language en-US, got %q", summaries[0].Language)
	}
}

func TestBufferDropsUnparseableLanguageTag(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var chunks []ChunkEvent
	b := New("UUID-D", Handlers{OnChunk: func(c ChunkEvent) {
		mu.Lock()
		chunks = append(chunks, c)
		mu.Unlock()
	}}, testLogger())

	b.Append(Utterance{SpeakerID: "U1", SpeakerName: "U1", Text: "hello", Timestamp: 1000, Language: "not-a-real-tag!!"})
	b.Destroy()

	mu.Lock()
	defer mu.Unlock()
	if len(chunks) != 1 {
		t.Fatalf("expected exactly one chunk, got %d", len(chunks))
	}
	if chunks[0].Language != "" {
		t.Fatalf("expected unparseable language tag to normalise to empty, got %q", chunks[0].Language)
	}
}
