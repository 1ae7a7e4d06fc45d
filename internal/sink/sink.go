// Package sink decouples transcript persistence from the capture pipeline.
//
// The [Sink] accepts entries on a buffered queue and writes them to a
// [store.TranscriptStore] from a background worker. Persistence is strictly
// best-effort: Put never blocks and never returns an error, and a failing or
// unprovisioned store degrades the sink to a no-op instead of disturbing the
// live session.
package sink

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/eburon-ai/orbit/internal/observe"
	"github.com/eburon-ai/orbit/pkg/store"
)

// sqlstateUndefinedTable is reported when the transcriptions table does not
// exist, meaning the database was never provisioned.
const sqlstateUndefinedTable = "42P01"

// defaultQueueSize bounds the number of entries waiting for the worker. A
// meeting produces at most a few entries per minute, so a small queue only
// overflows when the store is stalled.
const defaultQueueSize = 64

// saveTimeout bounds a single store write so a hung database cannot pin the
// worker forever.
const saveTimeout = 10 * time.Second

// Sink is an asynchronous, best-effort writer of transcript entries. Safe
// for concurrent use.
type Sink struct {
	store   store.TranscriptStore
	log     *slog.Logger
	metrics *observe.Metrics

	queue chan store.Entry
	done  chan struct{}

	mu       sync.Mutex
	disabled bool
	closed   bool
}

// Option is a functional option for configuring a Sink.
type Option func(*Sink)

// WithQueueSize overrides the queue capacity.
func WithQueueSize(n int) Option {
	return func(s *Sink) {
		if n > 0 {
			s.queue = make(chan store.Entry, n)
		}
	}
}

// WithMetrics overrides the metrics instance. Used in tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Sink) { s.metrics = m }
}

// New creates a Sink writing to st and starts its worker. Call [Sink.Close]
// to drain and stop it.
func New(st store.TranscriptStore, log *slog.Logger, opts ...Option) *Sink {
	s := &Sink{
		store:   st,
		log:     log,
		metrics: observe.DefaultMetrics(),
		queue:   make(chan store.Entry, defaultQueueSize),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	go s.worker()
	return s
}

// Put enqueues one entry for persistence. It never blocks: when the queue is
// full, or the sink is disabled or closed, the entry is dropped and counted.
func (s *Sink) Put(entry store.Entry) {
	s.mu.Lock()
	if s.closed || s.disabled {
		s.mu.Unlock()
		s.metrics.RecordEntryDropped(context.Background(), "disabled")
		return
	}
	// The send stays under the mutex: Close closes the queue under the same
	// lock, so a Put that passed the closed check can never hit a closed
	// channel. The send is non-blocking, so the lock is held only briefly.
	var full bool
	select {
	case s.queue <- entry:
	default:
		full = true
	}
	s.mu.Unlock()

	if full {
		s.log.Warn("transcript queue full, dropping entry", "room", entry.RoomName)
		s.metrics.RecordEntryDropped(context.Background(), "buffer_full")
	}
}

// Disabled reports whether the sink has permanently stopped writing.
func (s *Sink) Disabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disabled
}

// Close stops accepting entries, drains the queue, and waits for the worker
// to finish. Safe to call more than once.
func (s *Sink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	<-s.done
}

// worker drains the queue until it is closed.
func (s *Sink) worker() {
	defer close(s.done)
	for entry := range s.queue {
		s.save(entry)
	}
}

func (s *Sink) save(entry store.Entry) {
	s.mu.Lock()
	disabled := s.disabled
	s.mu.Unlock()
	if disabled {
		s.metrics.RecordEntryDropped(context.Background(), "disabled")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	err := s.store.Save(ctx, entry)
	if err == nil {
		s.metrics.EntriesPersisted.Add(context.Background(), 1)
		return
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == sqlstateUndefinedTable {
		// The transcriptions table does not exist. Retrying cannot help, so
		// stop writing for the rest of the process lifetime.
		s.mu.Lock()
		s.disabled = true
		s.mu.Unlock()
		s.log.Warn("transcript table missing, persistence disabled", "err", err)
		s.metrics.RecordEntryDropped(context.Background(), "not_provisioned")
		return
	}

	s.log.Error("failed to persist transcript entry", "room", entry.RoomName, "err", err)
	s.metrics.RecordEntryDropped(context.Background(), "store_error")
}
