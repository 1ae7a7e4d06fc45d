// Package store defines the transcript persistence model: one [Entry] per
// completed conversational turn, keyed by the owner and the meeting room it
// was captured in.
//
// Persistence backends live in subpackages (store/postgres). Writes are
// best-effort by design: the capture pipeline never waits on, or fails
// because of, the store.
package store

import (
	"context"
	"time"
)

// Sender identifies which side of the conversation produced an entry.
type Sender string

const (
	// SenderHuman marks an entry transcribed from the user's speech.
	SenderHuman Sender = "human"

	// SenderAssistant marks an entry transcribed from the assistant's
	// synthesized speech.
	SenderAssistant Sender = "assistant"
)

// IsValid reports whether s is one of the known sender values.
func (s Sender) IsValid() bool {
	return s == SenderHuman || s == SenderAssistant
}

// Entry is one persisted transcript line.
type Entry struct {
	// ID uniquely identifies the entry. Assigned by the aggregator as a
	// random UUID before the entry reaches the store.
	ID string

	// OwnerID identifies the user the meeting belongs to.
	OwnerID string

	// RoomName identifies the meeting the entry was captured in. Entries
	// sharing a room name form one meeting transcript.
	RoomName string

	// Sender is who spoke the line.
	Sender Sender

	// Text is the aggregated transcript of one full turn.
	Text string

	// CreatedAt is when the turn completed.
	CreatedAt time.Time
}

// TranscriptStore persists and retrieves transcript entries.
type TranscriptStore interface {
	// Save persists one entry.
	Save(ctx context.Context, entry Entry) error

	// ListByOwner returns the owner's entries, newest first, up to limit.
	// A limit of zero or less applies the backend default.
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]Entry, error)
}

// Meeting is a group of entries that share a room and a calendar day,
// ordered oldest first so the conversation reads top to bottom.
type Meeting struct {
	RoomName string
	Day      time.Time
	Entries  []Entry
}

// GroupByMeeting partitions entries into meetings by room name and the UTC
// calendar day they were captured on. Meetings are ordered by their most
// recent entry, newest meeting first; entries within a meeting are ordered
// oldest first. The input is expected newest first, as returned by
// [TranscriptStore.ListByOwner].
func GroupByMeeting(entries []Entry) []Meeting {
	type meetingKey struct {
		room string
		day  string
	}
	index := make(map[meetingKey]int)
	var meetings []Meeting
	for _, e := range entries {
		day := e.CreatedAt.UTC().Truncate(24 * time.Hour)
		key := meetingKey{room: e.RoomName, day: day.Format(time.DateOnly)}
		i, ok := index[key]
		if !ok {
			i = len(meetings)
			index[key] = i
			meetings = append(meetings, Meeting{RoomName: e.RoomName, Day: day})
		}
		meetings[i].Entries = append(meetings[i].Entries, e)
	}
	// Entries arrived newest first; flip each meeting to chronological order.
	for i := range meetings {
		es := meetings[i].Entries
		for l, r := 0, len(es)-1; l < r; l, r = l+1, r-1 {
			es[l], es[r] = es[r], es[l]
		}
	}
	return meetings
}
