package audio

import (
	"fmt"
	"sync"
	"time"
)

// Player renders raw s16le PCM to the output device as soon as it is written.
// Implementations must serialize concurrent writes internally; the scheduler
// fires writes from timer goroutines.
type Player interface {
	Write(pcm []byte) error
}

// Source is one scheduled unit of decoded output audio on the timeline.
type Source struct {
	// Start is the scheduled begin time on the output timeline.
	Start time.Time

	// Duration is the play length of the source's PCM.
	Duration time.Duration

	playTimer *time.Timer
	endTimer  *time.Timer
}

// End returns the scheduled end time of the source.
func (s *Source) End() time.Time { return s.Start.Add(s.Duration) }

// SchedulerOption configures a [Scheduler].
type SchedulerOption func(*Scheduler)

// WithNowFunc overrides the scheduler's clock. Used in tests to make the
// timeline deterministic.
func WithNowFunc(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// Scheduler owns the output timeline for the assistant's synthesized speech.
// Each chunk is scheduled to start at max(clock now, tracked next start), so
// consecutive chunks play back-to-back with no gap and no overlap. An
// interruption stops and discards every live source at once.
//
// The timeline cursor and the live source set are owned exclusively by the
// Scheduler; all methods are safe for concurrent use.
type Scheduler struct {
	format Format
	player Player
	now    func() time.Time

	mu      sync.Mutex
	next    time.Time
	sources map[*Source]struct{}
}

// NewScheduler creates a Scheduler that renders through player at the given
// output format (typically 24 kHz mono).
func NewScheduler(format Format, player Player, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		format:  format,
		player:  player,
		now:     time.Now,
		sources: make(map[*Source]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Schedule places one received PCM chunk on the output timeline.
//
// The source starts at max(now, next) and the tracked next start advances by
// the chunk's duration, keeping intervals contiguous: a chunk arriving while
// earlier ones are still queued starts exactly when its predecessor ends, and
// a chunk arriving after the timeline drained starts immediately.
//
// Malformed chunks (odd byte count, empty) are dropped with an error; the
// session is unaffected.
func (s *Scheduler) Schedule(pcm []byte) (*Source, error) {
	if len(pcm) == 0 {
		return nil, fmt.Errorf("audio: empty playback chunk")
	}
	dur, err := PCMDuration(pcm, s.format)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.now()
	if s.next.After(start) {
		start = s.next
	}
	src := &Source{Start: start, Duration: dur}
	s.next = src.End()
	s.sources[src] = struct{}{}

	data := pcm
	src.playTimer = time.AfterFunc(start.Sub(s.now()), func() {
		if s.player != nil {
			_ = s.player.Write(data)
		}
	})
	src.endTimer = time.AfterFunc(src.End().Sub(s.now()), func() {
		s.mu.Lock()
		delete(s.sources, src)
		s.mu.Unlock()
	})

	return src, nil
}

// Interrupt handles a barge-in: it stops every live source, clears the set,
// and rewinds the next-start cursor to the current clock time so nothing
// stale plays after the user starts speaking.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

// Reset discards all scheduled audio during teardown. Identical timeline
// effect to Interrupt; kept separate so call sites read by intent.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

func (s *Scheduler) clearLocked() {
	for src := range s.sources {
		if src.playTimer != nil {
			src.playTimer.Stop()
		}
		if src.endTimer != nil {
			src.endTimer.Stop()
		}
	}
	s.sources = make(map[*Source]struct{})
	s.next = s.now()
}

// Active returns the number of sources currently in the live set.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sources)
}

// NextStart returns the tracked start time for the next scheduled chunk.
func (s *Scheduler) NextStart() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}
