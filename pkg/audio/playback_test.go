package audio

import (
	"sync"
	"testing"
	"time"
)

var outFormat = Format{SampleRate: 24000, Channels: 1}

// collectPlayer records every PCM write.
type collectPlayer struct {
	mu     sync.Mutex
	writes [][]byte
}

func (p *collectPlayer) Write(pcm []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writes = append(p.writes, pcm)
	return nil
}

func (p *collectPlayer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.writes)
}

// fixedNow returns a clock frozen at t0 for deterministic timeline math.
func fixedNow(t0 time.Time) func() time.Time {
	return func() time.Time { return t0 }
}

func TestSchedule_ContiguousIntervals(t *testing.T) {
	t.Parallel()

	t0 := time.Unix(1000, 0)
	s := NewScheduler(outFormat, &collectPlayer{}, WithNowFunc(fixedNow(t0)))

	// 48000 bytes = 1s at 24kHz mono s16le.
	chunk := make([]byte, 48000)
	var sources []*Source
	for i := 0; i < 3; i++ {
		src, err := s.Schedule(chunk)
		if err != nil {
			t.Fatalf("Schedule %d: %v", i, err)
		}
		sources = append(sources, src)
	}

	if !sources[0].Start.Equal(t0) {
		t.Errorf("first source start = %v; want clock now %v", sources[0].Start, t0)
	}
	for i := 1; i < len(sources); i++ {
		if !sources[i].Start.Equal(sources[i-1].End()) {
			t.Errorf("source %d start = %v; want previous end %v", i, sources[i].Start, sources[i-1].End())
		}
	}
	if got, want := s.NextStart(), sources[2].End(); !got.Equal(want) {
		t.Errorf("NextStart = %v; want %v", got, want)
	}
	if got := s.Active(); got != 3 {
		t.Errorf("Active = %d; want 3", got)
	}
}

func TestSchedule_LateChunkStartsAtClockNow(t *testing.T) {
	t.Parallel()

	now := time.Unix(1000, 0)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	s := NewScheduler(outFormat, &collectPlayer{}, WithNowFunc(clock))

	first, err := s.Schedule(make([]byte, 960)) // 20ms
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	// Advance the clock past the first source's end: the timeline drained.
	mu.Lock()
	now = first.End().Add(5 * time.Second)
	mu.Unlock()

	second, err := s.Schedule(make([]byte, 960))
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if !second.Start.Equal(first.End().Add(5 * time.Second)) {
		t.Errorf("late chunk start = %v; want clock now, not stale next cursor", second.Start)
	}
}

func TestInterrupt_ClearsLiveSetAndRewindsCursor(t *testing.T) {
	t.Parallel()

	t0 := time.Unix(1000, 0)
	s := NewScheduler(outFormat, &collectPlayer{}, WithNowFunc(fixedNow(t0)))

	for i := 0; i < 4; i++ {
		if _, err := s.Schedule(make([]byte, 48000)); err != nil {
			t.Fatalf("Schedule: %v", err)
		}
	}
	s.Interrupt()

	if got := s.Active(); got != 0 {
		t.Fatalf("Active after Interrupt = %d; want 0", got)
	}
	if !s.NextStart().Equal(t0) {
		t.Errorf("NextStart after Interrupt = %v; want clock now %v", s.NextStart(), t0)
	}

	// A chunk arriving after the interrupt starts fresh at clock now.
	src, err := s.Schedule(make([]byte, 960))
	if err != nil {
		t.Fatalf("Schedule after Interrupt: %v", err)
	}
	if !src.Start.Equal(t0) {
		t.Errorf("post-interrupt start = %v; want %v", src.Start, t0)
	}
}

func TestSchedule_DropsMalformedChunks(t *testing.T) {
	t.Parallel()

	s := NewScheduler(outFormat, &collectPlayer{})

	if _, err := s.Schedule(nil); err == nil {
		t.Error("empty chunk should be rejected")
	}
	if _, err := s.Schedule([]byte{0x01}); err == nil {
		t.Error("odd-length chunk should be rejected")
	}
	if got := s.Active(); got != 0 {
		t.Errorf("Active = %d after malformed chunks; want 0", got)
	}
}

func TestSchedule_PlaysAndRemovesNaturally(t *testing.T) {
	t.Parallel()

	player := &collectPlayer{}
	s := NewScheduler(outFormat, player)

	// 10ms chunk with the real clock: the play timer fires immediately and
	// the end timer removes the source shortly after.
	if _, err := s.Schedule(make([]byte, 480)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for s.Active() != 0 || player.count() != 1 {
		select {
		case <-deadline:
			t.Fatalf("timeout: active=%d writes=%d; want 0 and 1", s.Active(), player.count())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestInterrupt_StopsPendingPlayback(t *testing.T) {
	t.Parallel()

	player := &collectPlayer{}
	s := NewScheduler(outFormat, player)

	// Queue ~2s of audio, then interrupt before the later chunks play.
	if _, err := s.Schedule(make([]byte, 96000)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if _, err := s.Schedule(make([]byte, 96000)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	s.Interrupt()

	if got := s.Active(); got != 0 {
		t.Fatalf("Active after Interrupt = %d; want 0", got)
	}
	// The second chunk's play timer (due at +2s) must never fire.
	time.Sleep(50 * time.Millisecond)
	if got := player.count(); got > 1 {
		t.Errorf("writes after Interrupt = %d; want at most the already-started chunk", got)
	}
}
