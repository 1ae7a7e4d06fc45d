// Package transcript aggregates streamed transcription fragments into whole
// transcript entries.
//
// The live service delivers transcription text in small fragments, often a
// few characters at a time, interleaved for both sides of the conversation.
// The [Aggregator] accumulates fragments per side and cuts one [store.Entry]
// when the turn completes.
package transcript

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eburon-ai/orbit/pkg/store"
)

// Aggregator accumulates transcription fragments for the current turn. Safe
// for concurrent use.
type Aggregator struct {
	ownerID  string
	roomName string
	now      func() time.Time

	mu     sync.Mutex
	input  strings.Builder
	output strings.Builder
}

// Option is a functional option for configuring an Aggregator.
type Option func(*Aggregator)

// WithNowFunc overrides the clock used to timestamp entries. Used in tests.
func WithNowFunc(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// New creates an Aggregator producing entries owned by ownerID in roomName.
func New(ownerID, roomName string, opts ...Option) *Aggregator {
	a := &Aggregator{
		ownerID:  ownerID,
		roomName: roomName,
		now:      time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// AddInput appends a fragment of the user's transcribed speech.
func (a *Aggregator) AddInput(fragment string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.input.WriteString(fragment)
}

// AddOutput appends a fragment of the assistant's transcribed speech.
func (a *Aggregator) AddOutput(fragment string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.output.WriteString(fragment)
}

// CompleteTurn cuts the current turn into an entry and resets both
// accumulators. When both sides accumulated text within one turn, the user's
// speech wins and the assistant's is discarded. Returns ok=false when the
// turn held no text beyond whitespace; no entry is produced then.
func (a *Aggregator) CompleteTurn() (entry store.Entry, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	input := a.input.String()
	output := a.output.String()
	a.input.Reset()
	a.output.Reset()

	text := input
	sender := store.SenderHuman
	if text == "" {
		text = output
		sender = store.SenderAssistant
	}
	if strings.TrimSpace(text) == "" {
		return store.Entry{}, false
	}

	return store.Entry{
		ID:        uuid.NewString(),
		OwnerID:   a.ownerID,
		RoomName:  a.roomName,
		Sender:    sender,
		Text:      text,
		CreatedAt: a.now(),
	}, true
}

// Abort discards the current turn's accumulated text without producing an
// entry. Called when the session ends mid-turn.
func (a *Aggregator) Abort() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.input.Reset()
	a.output.Reset()
}
