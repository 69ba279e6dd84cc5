// Package transcript implements the per-meeting Transcript Buffer:
// ordered utterance accumulation with periodic, speaker-idle, and
// chunk-flush triggers that emit summarize/chunk events.
package transcript

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"
)

const (
	periodicSummaryInterval = 30 * time.Second
	speakerIdleInterval     = 10 * time.Second
	chunkFlushInterval      = 60 * time.Second
	chunkWordThreshold      = 500
)

// Utterance is one normalised transcript event appended to a Buffer.
// Language is the vendor-reported BCP-47 tag; Append canonicalises it
// before it reaches onAppend, so every other field in this package sees
// a well-formed tag string or "" (unrecognised/absent).
type Utterance struct {
	SpeakerID   string
	SpeakerName string
	Text        string
	Timestamp   int64
	Language    string
}

// SummarizeEvent is emitted for every speaker with unsummarised
// utterances, on the periodic or speaker-idle trigger.
type SummarizeEvent struct {
	MeetingID    string
	SpeakerID    string
	SpeakerName  string
	RecentText   string
	SegmentCount int
	Language     string
}

// ChunkEvent is emitted whenever the chunk-flush trigger fires. Language
// is the last canonicalised tag seen among the chunk's utterances, used
// as a hint for downstream summarisation/search, not a per-line tag.
type ChunkEvent struct {
	ChunkID      string
	MeetingID    string
	Text         string
	SpeakerIDs   []string
	SpeakerNames []string
	StartTime    int64
	EndTime      int64
	Language     string
}

// normalizeLanguage canonicalises a vendor-reported language tag (e.g.
// "EN-us" -> "en-US") via golang.org/x/text/language so downstream
// consumers can compare/group by tag instead of by raw string. An empty
// or unparseable tag normalises to "", logged once at the call site.
func normalizeLanguage(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	tag, err := language.Parse(raw)
	if err != nil {
		return "", err
	}
	return tag.String(), nil
}

// Handlers receives Buffer's emitted events.
type Handlers struct {
	OnSummarize func(SummarizeEvent)
	OnChunk     func(ChunkEvent)
}

type speakerMark struct {
	name            string
	texts           []string // this speaker's utterance texts since the last chunk reset
	summarizedCount int      // prefix of texts already included in an emitted summary
	idleTimer       *time.Timer
	idleToken       int
	language        string // last canonicalised language tag seen for this speaker
}

type command struct {
	kind      commandKind
	utterance Utterance
	speakerID string
	token     int
	done      chan struct{}
}

type commandKind int

const (
	cmdAppend commandKind = iota
	cmdPeriodicSummary
	cmdSpeakerIdle
	cmdChunkFlush
	cmdDestroy
)

// Buffer owns one meeting's utterance accumulation and timers. All
// state is mutated only on the Buffer's own control-loop goroutine;
// every external trigger (append, timer fire) is posted as a command.
type Buffer struct {
	meetingID string
	logger    zerolog.Logger
	handlers  Handlers

	cmd  chan command
	stop chan struct{}

	utterances   []Utterance
	speakers     map[string]*speakerMark
	wordCount    int
	chunkSeq     int
	periodicTick *time.Ticker
	chunkTick    *time.Ticker

	idleInterval   time.Duration
	wordThreshold  int
}

// New constructs and starts a Buffer for one meeting using the spec's
// default intervals (30s periodic, 10s speaker-idle, 60s/500-word
// chunk flush).
func New(meetingID string, handlers Handlers, logger zerolog.Logger) *Buffer {
	return newBuffer(meetingID, handlers, logger, periodicSummaryInterval, speakerIdleInterval, chunkFlushInterval, chunkWordThreshold)
}

func newBuffer(meetingID string, handlers Handlers, logger zerolog.Logger, periodic, idle, chunk time.Duration, wordThreshold int) *Buffer {
	b := &Buffer{
		meetingID:     meetingID,
		logger:        logger,
		handlers:      handlers,
		cmd:           make(chan command, 64),
		stop:          make(chan struct{}),
		speakers:      make(map[string]*speakerMark),
		periodicTick:  time.NewTicker(periodic),
		chunkTick:     time.NewTicker(chunk),
		idleInterval:  idle,
		wordThreshold: wordThreshold,
	}
	go b.run()
	return b
}

func (b *Buffer) run() {
	defer b.periodicTick.Stop()
	defer b.chunkTick.Stop()
	for {
		select {
		case cmd := <-b.cmd:
			b.handle(cmd)
			if cmd.done != nil {
				close(cmd.done)
			}
			if cmd.kind == cmdDestroy {
				return
			}
		case <-b.periodicTick.C:
			b.handle(command{kind: cmdPeriodicSummary})
		case <-b.chunkTick.C:
			b.handle(command{kind: cmdChunkFlush})
		}
	}
}

// Append records a normalised utterance and resets that speaker's idle
// timer.
func (b *Buffer) Append(u Utterance) {
	select {
	case b.cmd <- command{kind: cmdAppend, utterance: u}:
	case <-b.stop:
	}
}

// Destroy flushes any pending summaries and a final chunk, clears all
// timers, and stops the control loop. Blocks until teardown completes.
func (b *Buffer) Destroy() {
	done := make(chan struct{})
	select {
	case b.cmd <- command{kind: cmdDestroy, done: done}:
		<-done
	case <-b.stop:
	}
	close(b.stop)
}

func (b *Buffer) handle(cmd command) {
	switch cmd.kind {
	case cmdAppend:
		b.onAppend(cmd.utterance)
	case cmdPeriodicSummary:
		b.flushSummaries()
	case cmdSpeakerIdle:
		b.onSpeakerIdle(cmd.speakerID, cmd.token)
	case cmdChunkFlush:
		b.flushChunk()
	case cmdDestroy:
		b.flushSummaries()
		b.flushChunk()
		for _, mark := range b.speakers {
			if mark.idleTimer != nil {
				mark.idleTimer.Stop()
			}
		}
	}
}

func (b *Buffer) onAppend(u Utterance) {
	if lang, err := normalizeLanguage(u.Language); err != nil {
		b.logger.Warn().Err(err).Str("language", u.Language).Str("meeting_id", b.meetingID).Msg("unrecognised transcript language tag dropped")
		u.Language = ""
	} else {
		u.Language = lang
	}

	b.utterances = append(b.utterances, u)
	b.wordCount += len(strings.Fields(u.Text))

	mark, ok := b.speakers[u.SpeakerID]
	if !ok {
		mark = &speakerMark{name: u.SpeakerName}
		b.speakers[u.SpeakerID] = mark
	}
	mark.name = u.SpeakerName
	mark.texts = append(mark.texts, u.Text)
	if u.Language != "" {
		mark.language = u.Language
	}
	mark.idleToken++
	token := mark.idleToken
	if mark.idleTimer != nil {
		mark.idleTimer.Stop()
	}
	speakerID := u.SpeakerID
	mark.idleTimer = time.AfterFunc(b.idleInterval, func() {
		select {
		case b.cmd <- command{kind: cmdSpeakerIdle, speakerID: speakerID, token: token}:
		case <-b.stop:
		}
	})

	if b.wordCount >= b.wordThreshold {
		b.flushChunk()
	}
}

func (b *Buffer) onSpeakerIdle(speakerID string, token int) {
	mark, ok := b.speakers[speakerID]
	if !ok || mark.idleToken != token {
		return
	}
	b.flushSpeakerSummary(speakerID, mark)
}

func (b *Buffer) flushSummaries() {
	for speakerID, mark := range b.speakers {
		b.flushSpeakerSummary(speakerID, mark)
	}
}

func (b *Buffer) flushSpeakerSummary(speakerID string, mark *speakerMark) {
	pending := mark.texts[mark.summarizedCount:]
	if len(pending) == 0 {
		return
	}
	segmentCount := len(mark.texts)
	mark.summarizedCount = len(mark.texts)
	if b.handlers.OnSummarize != nil {
		b.handlers.OnSummarize(SummarizeEvent{
			MeetingID:    b.meetingID,
			SpeakerID:    speakerID,
			SpeakerName:  mark.name,
			RecentText:   strings.Join(pending, " "),
			SegmentCount: segmentCount,
			Language:     mark.language,
		})
	}
}

func (b *Buffer) flushChunk() {
	if len(b.utterances) == 0 {
		return
	}
	var lines []string
	speakerSeen := make(map[string]bool)
	var speakerIDs, speakerNames []string
	var lastLanguage string
	for _, u := range b.utterances {
		lines = append(lines, fmt.Sprintf("%s: %s", u.SpeakerName, u.Text))
		if !speakerSeen[u.SpeakerID] {
			speakerSeen[u.SpeakerID] = true
			speakerIDs = append(speakerIDs, u.SpeakerID)
			speakerNames = append(speakerNames, u.SpeakerName)
		}
		if u.Language != "" {
			lastLanguage = u.Language
		}
	}
	b.chunkSeq++
	chunk := ChunkEvent{
		ChunkID:      fmt.Sprintf("%s-chunk-%d", b.meetingID, b.chunkSeq),
		MeetingID:    b.meetingID,
		Text:         strings.Join(lines, "\n"),
		SpeakerIDs:   speakerIDs,
		SpeakerNames: speakerNames,
		StartTime:    b.utterances[0].Timestamp,
		EndTime:      b.utterances[len(b.utterances)-1].Timestamp,
		Language:     lastLanguage,
	}
	if b.handlers.OnChunk != nil {
		b.handlers.OnChunk(chunk)
	}

	b.utterances = nil
	b.wordCount = 0
	for _, mark := range b.speakers {
		mark.texts = nil
		mark.summarizedCount = 0
	}
}
