// Package assistant orchestrates one voice meeting session: it connects the
// microphone to the live speech service, routes synthesized audio into the
// playback scheduler, and turns transcription fragments into persisted
// transcript entries.
//
// The [Assistant] owns the session lifecycle behind an explicit state
// machine. All public methods are safe for concurrent use.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eburon-ai/orbit/internal/observe"
	"github.com/eburon-ai/orbit/internal/transcript"
	"github.com/eburon-ai/orbit/pkg/audio"
	"github.com/eburon-ai/orbit/pkg/live"
	"github.com/eburon-ai/orbit/pkg/store"
)

// State is the assistant's connection state.
type State string

const (
	// StateDisconnected means no session is open. The initial state.
	StateDisconnected State = "disconnected"

	// StateConnecting means a session handshake is in flight.
	StateConnecting State = "connecting"

	// StateConnected means the duplex session is live.
	StateConnected State = "connected"

	// StateError means the last session attempt or session ended with an
	// error. A new Connect may be attempted from here.
	StateError State = "error"
)

// validTransitions lists the allowed state changes. Anything not listed is a
// programming error and is rejected.
var validTransitions = map[State][]State{
	StateDisconnected: {StateConnecting},
	StateConnecting:   {StateConnected, StateError, StateDisconnected},
	StateConnected:    {StateDisconnected, StateError},
	StateError:        {StateConnecting, StateDisconnected},
}

// EntrySink accepts completed transcript entries, fire-and-forget.
type EntrySink interface {
	Put(entry store.Entry)
}

// Config carries the session parameters the assistant passes to the live
// service plus the handshake bound.
type Config struct {
	// Voice is the prebuilt output voice identity.
	Voice string

	// Instructions is the system persona prompt.
	Instructions string

	// ConnectTimeout bounds the session handshake. Zero means no bound
	// beyond the caller's context.
	ConnectTimeout time.Duration

	// CaptureRate is the sample rate the live service expects. Frames
	// arriving at a different rate are resampled before transmission. Zero
	// disables resampling.
	CaptureRate int
}

// Deps are the collaborators the assistant wires together. Dialer,
// Microphone, Scheduler, and Aggregator are required; Sink and OnEntry are
// optional.
type Deps struct {
	Dialer     live.Dialer
	Microphone audio.Microphone
	Scheduler  *audio.Scheduler
	Aggregator *transcript.Aggregator

	// Sink receives completed entries for persistence. May be nil.
	Sink EntrySink

	// OnEntry is invoked synchronously for every completed entry, before it
	// reaches the sink. May be nil.
	OnEntry func(entry store.Entry)

	Logger  *slog.Logger
	Metrics *observe.Metrics
}

// Assistant drives one live meeting session at a time.
type Assistant struct {
	cfg  Config
	deps Deps
	log  *slog.Logger
	met  *observe.Metrics

	mu       sync.Mutex
	state    State
	muted    bool
	session  live.Session
	stream   audio.CaptureStream
	stopping bool
	done     chan struct{}
}

// New creates an Assistant in [StateDisconnected].
func New(cfg Config, deps Deps) *Assistant {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	met := deps.Metrics
	if met == nil {
		met = observe.DefaultMetrics()
	}
	return &Assistant{
		cfg:   cfg,
		deps:  deps,
		log:   log,
		met:   met,
		state: StateDisconnected,
	}
}

// State returns the current connection state.
func (a *Assistant) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// SetMuted pauses or resumes transmission of captured audio. Capture itself
// continues while muted; frames are read and discarded.
func (a *Assistant) SetMuted(muted bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.muted = muted
}

// Muted reports whether transmission is paused.
func (a *Assistant) Muted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.muted
}

// transitionLocked moves to next, rejecting transitions not in the table.
// Caller holds a.mu.
func (a *Assistant) transitionLocked(next State) error {
	for _, allowed := range validTransitions[a.state] {
		if allowed == next {
			a.state = next
			return nil
		}
	}
	return fmt.Errorf("assistant: invalid transition %s -> %s", a.state, next)
}

// Connect opens the live session, starts microphone capture, and launches the
// forward and dispatch loops. The ctx governs the whole session: cancelling
// it tears the session down.
func (a *Assistant) Connect(ctx context.Context) error {
	a.mu.Lock()
	if err := a.transitionLocked(StateConnecting); err != nil {
		a.mu.Unlock()
		return err
	}
	a.stopping = false
	a.done = make(chan struct{})
	done := a.done
	a.mu.Unlock()

	dialCtx := ctx
	if a.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, a.cfg.ConnectTimeout)
		defer cancel()
	}

	start := time.Now()
	sess, err := a.deps.Dialer.Connect(dialCtx, live.SessionConfig{
		Voice:               a.cfg.Voice,
		Instructions:        a.cfg.Instructions,
		InputTranscription:  true,
		OutputTranscription: true,
	})
	a.met.RecordConnect(ctx, time.Since(start))
	if err != nil {
		a.failConnect(done, fmt.Errorf("assistant: connect: %w", err))
		return fmt.Errorf("assistant: connect: %w", err)
	}

	stream, err := a.deps.Microphone.Start(ctx)
	if err != nil {
		_ = sess.Close()
		a.failConnect(done, err)
		return fmt.Errorf("assistant: start capture: %w", err)
	}

	a.mu.Lock()
	a.session = sess
	a.stream = stream
	if err := a.transitionLocked(StateConnected); err != nil {
		// The only path here is a concurrent Disconnect during the handshake.
		a.session = nil
		a.stream = nil
		a.mu.Unlock()
		_ = stream.Stop()
		_ = sess.Close()
		close(done)
		return err
	}
	a.mu.Unlock()

	a.met.ActiveSessions.Add(ctx, 1)
	a.log.Info("session connected", "voice", a.cfg.Voice)

	// Each loop ends the other's input on exit so neither can outlive the
	// session: a closed event stream stops capture, a dead capture stream
	// closes the session.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.forwardLoop(sess, stream)
		_ = sess.Close()
	}()
	go func() {
		defer wg.Done()
		a.dispatchLoop(sess)
		_ = stream.Stop()
	}()
	go func() {
		wg.Wait()
		a.sessionEnded(sess)
		close(done)
	}()
	go func() {
		select {
		case <-ctx.Done():
			a.Disconnect()
		case <-done:
		}
	}()

	return nil
}

// failConnect records a failed handshake.
func (a *Assistant) failConnect(done chan struct{}, err error) {
	a.mu.Lock()
	_ = a.transitionLocked(StateError)
	a.mu.Unlock()
	close(done)
	a.log.Error("session connect failed", "err", err)
}

// forwardLoop reads captured frames, encodes them, and transmits them until
// the capture stream closes. Muted frames are read and dropped so the device
// pipe never backs up.
func (a *Assistant) forwardLoop(sess live.Session, stream audio.CaptureStream) {
	ctx := context.Background()
	for frame := range stream.Frames() {
		a.met.FramesCaptured.Add(ctx, 1)
		if a.Muted() {
			continue
		}
		if a.cfg.CaptureRate > 0 && frame.SampleRate != a.cfg.CaptureRate {
			frame.Samples = audio.ResampleMono(frame.Samples, frame.SampleRate, a.cfg.CaptureRate)
			frame.SampleRate = a.cfg.CaptureRate
		}
		chunk := audio.EncodeFrame(frame)
		if err := sess.Send(chunk); err != nil {
			if !a.isStopping() {
				a.log.Warn("failed to send audio chunk", "err", err)
			}
			continue
		}
		a.met.ChunksSent.Add(ctx, 1)
	}
}

// dispatchLoop routes inbound session events until the event channel closes.
func (a *Assistant) dispatchLoop(sess live.Session) {
	ctx := context.Background()
	for ev := range sess.Events() {
		switch ev.Type {
		case live.EventAudio:
			if _, err := a.deps.Scheduler.Schedule(ev.Audio); err != nil {
				a.log.Warn("dropping unplayable audio chunk", "err", err)
				continue
			}
			a.met.ChunksScheduled.Add(ctx, 1)

		case live.EventInputTranscription:
			a.deps.Aggregator.AddInput(ev.Text)

		case live.EventOutputTranscription:
			a.deps.Aggregator.AddOutput(ev.Text)

		case live.EventTurnComplete:
			entry, ok := a.deps.Aggregator.CompleteTurn()
			if !ok {
				continue
			}
			if a.deps.OnEntry != nil {
				a.deps.OnEntry(entry)
			}
			if a.deps.Sink != nil {
				a.deps.Sink.Put(entry)
			}

		case live.EventInterrupted:
			a.deps.Scheduler.Interrupt()
			a.met.Interruptions.Add(ctx, 1)
			a.log.Debug("playback interrupted by barge-in")

		case live.EventError:
			a.met.SessionErrors.Add(ctx, 1)
			a.log.Warn("live service error", "err", ev.Err)
		}
	}
}

// sessionEnded runs once both loops have exited. When the session ended on
// its own (not via Disconnect) it performs the teardown and records whether
// the ending was clean.
func (a *Assistant) sessionEnded(sess live.Session) {
	a.mu.Lock()
	userStopped := a.stopping
	stream := a.stream
	a.session = nil
	a.stream = nil
	if !userStopped {
		if sess.Err() != nil {
			_ = a.transitionLocked(StateError)
		} else {
			_ = a.transitionLocked(StateDisconnected)
		}
	}
	a.mu.Unlock()

	if stream != nil {
		_ = stream.Stop()
	}
	_ = sess.Close()
	a.deps.Scheduler.Reset()
	a.deps.Aggregator.Abort()
	a.met.ActiveSessions.Add(context.Background(), -1)

	if !userStopped {
		if err := sess.Err(); err != nil {
			a.log.Error("session ended with error", "err", err)
		} else {
			a.log.Info("session ended")
		}
	}
}

// isStopping reports whether Disconnect has been requested.
func (a *Assistant) isStopping() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopping
}

// Disconnect ends the session: it stops capture, closes the session, flushes
// scheduled playback, and discards the unfinished turn. Safe to call more
// than once; a no-op when no session is open.
func (a *Assistant) Disconnect() {
	a.mu.Lock()
	if a.state != StateConnected && a.state != StateConnecting {
		a.mu.Unlock()
		return
	}
	if a.stopping {
		done := a.done
		a.mu.Unlock()
		if done != nil {
			<-done
		}
		return
	}
	a.stopping = true
	_ = a.transitionLocked(StateDisconnected)
	stream := a.stream
	sess := a.session
	done := a.done
	a.mu.Unlock()

	// Stopping the stream ends forwardLoop; closing the session ends
	// dispatchLoop. The teardown in sessionEnded handles the rest.
	if stream != nil {
		_ = stream.Stop()
	}
	if sess != nil {
		_ = sess.Close()
	}
	if done != nil {
		<-done
	}
	a.log.Info("session disconnected")
}
