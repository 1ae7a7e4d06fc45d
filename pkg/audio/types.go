// Package audio defines the types and transforms for the Orbit audio
// pipeline: captured microphone frames, the wire-format media chunks sent to
// the live AI service, and the playback scheduler that renders the service's
// synthesized speech gaplessly.
//
// The two primary abstractions are:
//
//   - [CaptureStream] — a running microphone capture delivering fixed-size
//     [Frame] values on a channel at the audio cadence.
//   - [Scheduler] — the output timeline that schedules decoded PCM chunks
//     back-to-back and cancels them all on barge-in.
//
// Device-backed implementations live in subpackages (audio/ffmpeg for real
// subprocess devices, audio/mock for tests).
package audio

import (
	"context"
	"time"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// BytesPerSecond returns the s16le byte rate of the format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * 2
}

// Frame is a fixed-length buffer of normalized float32 samples captured from
// the microphone. Frames are transient: produced by a CaptureStream, encoded
// immediately, never retained.
type Frame struct {
	// Samples holds normalized mono samples in [-1, 1].
	Samples []float32

	// SampleRate in Hz (16000 for live-service input).
	SampleRate int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the play length of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// MediaChunk is one encoded, self-contained unit of microphone audio bound
// for the live service. Sequence is implicit in send order; chunks are sent
// fire-and-forget, one per captured frame.
type MediaChunk struct {
	// MIMEType identifies the encoding, e.g. "audio/pcm;rate=16000".
	MIMEType string

	// Data is raw s16le PCM. The wire layer applies base64 on top.
	Data []byte
}

// CaptureStream is a running microphone capture.
//
// Implementations must never block frame production on a slow consumer;
// dropping frames is preferable to stalling the device.
type CaptureStream interface {
	// Frames returns the channel on which fixed-size frames arrive in capture
	// order. The channel is closed when the stream stops, either via Stop or
	// because the underlying device failed.
	Frames() <-chan Frame

	// Stop releases the capture device and closes the Frames channel.
	// Safe to call more than once.
	Stop() error
}

// Microphone opens capture streams. Implementations wrap a real input device
// (audio/ffmpeg) or an in-memory source (audio/mock).
type Microphone interface {
	// Start begins capturing fixed-size frames at the microphone's configured
	// rate. The ctx governs the acquisition attempt only; a started stream
	// lives until [CaptureStream.Stop] is called.
	Start(ctx context.Context) (CaptureStream, error)
}
