// Package live defines the duplex session primitive for real-time speech AI
// services.
//
// A live session carries continuous bidirectional traffic: encoded microphone
// chunks flow up via [Session.Send], and the service's synthesized audio,
// transcription fragments, and turn signals flow down as typed [Event] values
// on a single channel. Delivering every inbound kind on one channel — rather
// than one channel per kind — preserves arrival order across kinds, which the
// playback scheduler's gapless invariant depends on.
//
// Sessions are long-lived (seconds to minutes). Implementations live in
// subpackages (live/gemini for the real service, live/mock for tests) and
// must be safe for concurrent use.
package live

import (
	"context"

	"github.com/eburon-ai/orbit/pkg/audio"
)

// EventType classifies inbound session events.
type EventType int

const (
	// EventAudio carries a decoded chunk of synthesized output speech.
	EventAudio EventType = iota

	// EventInputTranscription carries a fragment of the user's speech as
	// recognised by the service.
	EventInputTranscription

	// EventOutputTranscription carries a fragment of the assistant's speech
	// as text.
	EventOutputTranscription

	// EventTurnComplete marks the end of one conversational turn.
	EventTurnComplete

	// EventInterrupted signals a barge-in: the user began speaking while the
	// assistant's audio was still playing. All scheduled playback must stop.
	EventInterrupted

	// EventError carries a non-fatal service-reported error.
	EventError
)

// String returns the human-readable name of the event type.
func (t EventType) String() string {
	switch t {
	case EventAudio:
		return "AUDIO"
	case EventInputTranscription:
		return "INPUT_TRANSCRIPTION"
	case EventOutputTranscription:
		return "OUTPUT_TRANSCRIPTION"
	case EventTurnComplete:
		return "TURN_COMPLETE"
	case EventInterrupted:
		return "INTERRUPTED"
	case EventError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Event is one inbound message from the live service. Exactly one payload
// field is meaningful, selected by Type.
type Event struct {
	Type EventType

	// Audio is raw s16le PCM at the service's output rate (EventAudio).
	Audio []byte

	// Text is a transcription fragment (EventInputTranscription,
	// EventOutputTranscription).
	Text string

	// Err is the service-reported error (EventError).
	Err error
}

// SessionConfig is the initial configuration for a new live session.
type SessionConfig struct {
	// Voice is the prebuilt output voice identity (e.g. "Zephyr").
	Voice string

	// Instructions is the system-level behaviour prompt for the assistant.
	Instructions string

	// InputTranscription requests transcription of the user's speech.
	InputTranscription bool

	// OutputTranscription requests transcription of the assistant's speech.
	OutputTranscription bool
}

// Session is an open duplex connection to the live service.
//
// Callers must drain Events promptly; a stalled consumer backs up the
// service's receive loop. Callers must call Close when done.
type Session interface {
	// Send delivers one encoded microphone chunk, fire-and-forget. No
	// acknowledgment is awaited before the next chunk. Returns an error if
	// the session is closed or the transport rejects the write.
	Send(chunk audio.MediaChunk) error

	// Events returns the channel of inbound events in arrival order. The
	// channel is closed when the session ends; check Err afterwards to see
	// whether it ended cleanly.
	Events() <-chan Event

	// Err returns the error that terminated the session, or nil if it ended
	// cleanly. Meaningful only after the Events channel closed.
	Err() error

	// Close terminates the session and releases the transport. Calling Close
	// more than once is safe and returns nil.
	Close() error
}

// Dialer opens live sessions. Implementations wrap a specific service
// protocol.
type Dialer interface {
	// Connect establishes a new session with the given configuration. The
	// returned Session is ready to accept audio immediately. The ctx governs
	// the handshake only; the session lives until Close.
	Connect(ctx context.Context, cfg SessionConfig) (Session, error)
}
