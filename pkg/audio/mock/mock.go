// Package mock provides in-memory implementations of the [audio.Microphone],
// [audio.CaptureStream], and [audio.Player] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so
// that tests can assert on call counts, and they expose exported fields the
// test can set to control behaviour.
//
// Typical usage:
//
//	mic := &mock.Microphone{FrameBuffer: 16}
//	stream, _ := mic.Start(ctx)
//	mic.Push(audio.Frame{Samples: samples, SampleRate: 16000})
package mock

import (
	"context"
	"sync"

	"github.com/eburon-ai/orbit/pkg/audio"
)

// ─── Microphone ───────────────────────────────────────────────────────────────

// Microphone is a mock implementation of [audio.Microphone]. Frames pushed
// via [Microphone.Push] are delivered to the stream returned by Start.
type Microphone struct {
	mu sync.Mutex

	// StartError, when non-nil, is returned by Start (simulates a denied or
	// missing input device).
	StartError error

	// FrameBuffer is the capacity of the stream's frame channel. Defaults to 16.
	FrameBuffer int

	// CallCountStart records how many times Start was called.
	CallCountStart int

	stream *CaptureStream
}

// Start implements [audio.Microphone].
func (m *Microphone) Start(_ context.Context) (audio.CaptureStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCountStart++
	if m.StartError != nil {
		return nil, m.StartError
	}
	buf := m.FrameBuffer
	if buf <= 0 {
		buf = 16
	}
	m.stream = &CaptureStream{frames: make(chan audio.Frame, buf)}
	return m.stream, nil
}

// Push delivers a frame to the active stream. It is a no-op if Start has not
// been called or the stream was stopped.
func (m *Microphone) Push(frame audio.Frame) {
	m.mu.Lock()
	stream := m.stream
	m.mu.Unlock()
	if stream != nil {
		stream.push(frame)
	}
}

// Stream returns the stream created by the last Start call, or nil.
func (m *Microphone) Stream() *CaptureStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stream
}

// ─── CaptureStream ────────────────────────────────────────────────────────────

// CaptureStream is a mock implementation of [audio.CaptureStream].
type CaptureStream struct {
	mu      sync.Mutex
	frames  chan audio.Frame
	stopped bool

	// CallCountStop records how many times Stop was called.
	CallCountStop int
}

// Frames implements [audio.CaptureStream].
func (s *CaptureStream) Frames() <-chan audio.Frame { return s.frames }

// Stop implements [audio.CaptureStream]. Closes the frame channel; safe to
// call more than once.
func (s *CaptureStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStop++
	if !s.stopped {
		s.stopped = true
		close(s.frames)
	}
	return nil
}

// Pending returns the number of frames buffered but not yet consumed.
func (s *CaptureStream) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// Stopped reports whether Stop has been called.
func (s *CaptureStream) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *CaptureStream) push(frame audio.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	select {
	case s.frames <- frame:
	default: // drop rather than block, like a real device
	}
}

// ─── Player ───────────────────────────────────────────────────────────────────

// Player is a mock implementation of [audio.Player] that records every write.
type Player struct {
	mu sync.Mutex

	// WriteError, when non-nil, is returned by every Write call.
	WriteError error

	// Writes holds the PCM chunks written, in order.
	Writes [][]byte
}

// Write implements [audio.Player].
func (p *Player) Write(pcm []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.WriteError != nil {
		return p.WriteError
	}
	buf := make([]byte, len(pcm))
	copy(buf, pcm)
	p.Writes = append(p.Writes, buf)
	return nil
}

// WriteCount returns the number of successful writes.
func (p *Player) WriteCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Writes)
}
