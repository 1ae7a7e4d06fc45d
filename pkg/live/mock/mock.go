// Package mock provides in-memory implementations of the [live.Dialer] and
// [live.Session] interfaces for use in unit tests.
//
// The mock session records every chunk passed to Send and lets the test
// inject inbound events with [Session.Emit]. All mocks are safe for
// concurrent use.
package mock

import (
	"context"
	"sync"

	"github.com/eburon-ai/orbit/pkg/audio"
	"github.com/eburon-ai/orbit/pkg/live"
)

// Compile-time assertions that the mocks satisfy the live interfaces.
var (
	_ live.Dialer  = (*Dialer)(nil)
	_ live.Session = (*Session)(nil)
)

// Dialer is a mock implementation of [live.Dialer].
type Dialer struct {
	mu sync.Mutex

	// ConnectError, when non-nil, is returned by Connect.
	ConnectError error

	// ConnectDelay, when non-nil, makes Connect block until the channel is
	// closed or the context expires (simulates a slow handshake).
	ConnectDelay chan struct{}

	// EventBuffer is the capacity of the session's event channel. Defaults
	// to 64.
	EventBuffer int

	// CallCountConnect records how many times Connect was called.
	CallCountConnect int

	// LastConfig holds the config passed to the most recent Connect call.
	LastConfig live.SessionConfig

	session *Session
}

// Connect implements [live.Dialer].
func (d *Dialer) Connect(ctx context.Context, cfg live.SessionConfig) (live.Session, error) {
	d.mu.Lock()
	d.CallCountConnect++
	d.LastConfig = cfg
	delay := d.ConnectDelay
	d.mu.Unlock()

	if delay != nil {
		select {
		case <-delay:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ConnectError != nil {
		return nil, d.ConnectError
	}
	buf := d.EventBuffer
	if buf <= 0 {
		buf = 64
	}
	d.session = &Session{events: make(chan live.Event, buf)}
	return d.session, nil
}

// Session returns the session created by the last Connect call, or nil.
func (d *Dialer) Session() *Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.session
}

// Session is a mock implementation of [live.Session].
type Session struct {
	mu sync.Mutex

	// SendError, when non-nil, is returned by every Send call.
	SendError error

	// Sent holds the chunks passed to Send, in order.
	Sent []audio.MediaChunk

	// CallCountClose records how many times Close was called.
	CallCountClose int

	events chan live.Event
	err    error
	closed bool
}

// Send implements [live.Session].
func (s *Session) Send(chunk audio.MediaChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SendError != nil {
		return s.SendError
	}
	s.Sent = append(s.Sent, chunk)
	return nil
}

// SentCount returns the number of successful Send calls.
func (s *Session) SentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Sent)
}

// Events implements [live.Session].
func (s *Session) Events() <-chan live.Event { return s.events }

// Err implements [live.Session].
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close implements [live.Session]. Closes the event channel on first call;
// safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Emit injects one inbound event, as if it arrived from the service. It is a
// no-op if the session is closed.
func (s *Session) Emit(ev live.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.events <- ev
}

// Fail records err as the terminal error and closes the event channel,
// simulating a transport failure.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.err = err
	s.closed = true
	close(s.events)
}
