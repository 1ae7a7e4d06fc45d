// Package ffmpeg provides subprocess-backed implementations of the audio
// device interfaces: a [Microphone] that captures the default input device
// through ffmpeg, and a [Speaker] that renders s16le PCM through ffplay.
//
// Both wrap long-lived child processes and stream raw PCM over pipes, which
// keeps the Go side free of cgo audio bindings.
package ffmpeg

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/eburon-ai/orbit/pkg/audio"
)

// Compile-time assertions that the devices satisfy the audio interfaces.
var (
	_ audio.Microphone    = (*Microphone)(nil)
	_ audio.CaptureStream = (*captureStream)(nil)
	_ audio.Player        = (*Speaker)(nil)
)

// ─── Microphone ───────────────────────────────────────────────────────────────

// MicrophoneConfig configures an ffmpeg capture process.
type MicrophoneConfig struct {
	// FFmpegPath is the ffmpeg executable. Defaults to "ffmpeg".
	FFmpegPath string

	// Device is the platform input device name. Empty selects the platform
	// default ("default" for pulse/alsa, ":0" for avfoundation).
	Device string

	// SampleRate is the capture rate requested from ffmpeg. Defaults to 16000.
	SampleRate int

	// FrameSize is the number of samples per emitted frame. Defaults to 4096.
	FrameSize int
}

// Microphone captures the system input device via an ffmpeg child process
// emitting f32le mono PCM on stdout.
type Microphone struct {
	cfg MicrophoneConfig
}

// NewMicrophone creates a Microphone with the given config, applying defaults
// for zero fields.
func NewMicrophone(cfg MicrophoneConfig) *Microphone {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = 4096
	}
	return &Microphone{cfg: cfg}
}

// Start implements [audio.Microphone]. It spawns ffmpeg reading the input
// device and slices its stdout into fixed-size frames. The returned stream
// lives until Stop is called or the process exits.
func (m *Microphone) Start(ctx context.Context) (audio.CaptureStream, error) {
	inFormat, device := captureInput(m.cfg.Device)
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", inFormat,
		"-i", device,
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", m.cfg.SampleRate),
		"-f", "f32le",
		"-",
	}
	cmd := exec.Command(m.cfg.FFmpegPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg: start capture: %w", err)
	}

	// ffmpeg is up; a failure past this point surfaces as a closed stream.
	stream := &captureStream{
		cmd:        cmd,
		stdout:     stdout,
		frames:     make(chan audio.Frame, 8),
		sampleRate: m.cfg.SampleRate,
		frameSize:  m.cfg.FrameSize,
	}
	go stream.readLoop()

	select {
	case <-ctx.Done():
		_ = stream.Stop()
		return nil, ctx.Err()
	default:
	}
	return stream, nil
}

// captureInput maps a device name to the ffmpeg input format for the host OS.
func captureInput(device string) (format, dev string) {
	switch runtime.GOOS {
	case "darwin":
		if device == "" {
			device = ":0"
		}
		return "avfoundation", device
	case "windows":
		if device == "" {
			device = "audio=default"
		}
		return "dshow", device
	default:
		if device == "" {
			device = "default"
		}
		return "pulse", device
	}
}

type captureStream struct {
	cmd        *exec.Cmd
	stdout     io.ReadCloser
	frames     chan audio.Frame
	sampleRate int
	frameSize  int

	mu      sync.Mutex
	stopped bool
}

// readLoop slices ffmpeg's f32le stdout into fixed-size frames. It owns the
// frames channel and closes it on exit.
func (s *captureStream) readLoop() {
	defer close(s.frames)

	buf := make([]byte, s.frameSize*4)
	start := time.Now()
	for {
		if _, err := io.ReadFull(s.stdout, buf); err != nil {
			if !s.isStopped() {
				slog.Warn("ffmpeg capture ended", "err", err)
			}
			return
		}
		samples := make([]float32, s.frameSize)
		for i := range samples {
			bits := binary.LittleEndian.Uint32(buf[i*4:])
			samples[i] = math.Float32frombits(bits)
		}
		frame := audio.Frame{
			Samples:    samples,
			SampleRate: s.sampleRate,
			Timestamp:  time.Since(start),
		}
		select {
		case s.frames <- frame:
		default:
			// Consumer stalled; drop rather than let ffmpeg's pipe back up.
		}
	}
}

func (s *captureStream) Frames() <-chan audio.Frame { return s.frames }

// Stop kills the ffmpeg process, which unblocks readLoop and closes the
// frames channel. Safe to call more than once.
func (s *captureStream) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	_ = s.stdout.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.cmd.Wait()
	return nil
}

func (s *captureStream) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// ─── Speaker ──────────────────────────────────────────────────────────────────

// SpeakerConfig configures an ffplay playback process.
type SpeakerConfig struct {
	// FFplayPath is the ffplay executable. Defaults to "ffplay".
	FFplayPath string

	// SampleRate of the s16le PCM written to the speaker. Defaults to 24000.
	SampleRate int

	// Volume in ffplay units (0-100). Defaults to 80.
	Volume int
}

// Speaker implements [audio.Player] by streaming s16le PCM into ffplay's
// stdin. Writes are serialized internally.
type Speaker struct {
	cfg SpeakerConfig

	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

// NewSpeaker creates a Speaker with the given config, applying defaults for
// zero fields. The ffplay process is launched lazily on the first Write.
func NewSpeaker(cfg SpeakerConfig) *Speaker {
	if cfg.FFplayPath == "" {
		cfg.FFplayPath = "ffplay"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 24000
	}
	if cfg.Volume <= 0 {
		cfg.Volume = 80
	}
	return &Speaker{cfg: cfg}
}

// Write implements [audio.Player].
func (s *Speaker) Write(pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureRunningLocked(); err != nil {
		return err
	}
	if _, err := s.stdin.Write(pcm); err != nil {
		return fmt.Errorf("ffplay: write: %w", err)
	}
	return nil
}

func (s *Speaker) ensureRunningLocked() error {
	if s.cmd != nil && s.cmd.Process != nil {
		return nil
	}
	// ffplay does not accept ffmpeg-style -ac; use -ch_layout.
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostats",
		"-nodisp",
		"-volume", fmt.Sprintf("%d", s.cfg.Volume),
		"-f", "s16le",
		"-ch_layout", "mono",
		"-ar", fmt.Sprintf("%d", s.cfg.SampleRate),
		"-i", "-",
	}
	cmd := exec.Command(s.cfg.FFplayPath, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("ffplay: stdin pipe: %w", err)
	}
	cmd.Stdout = io.Discard
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("ffplay: start: %w", err)
	}
	s.cmd = cmd
	s.stdin = stdin
	go func(c *exec.Cmd) {
		_ = c.Wait()
		s.mu.Lock()
		if s.cmd == c {
			s.cmd = nil
			s.stdin = nil
		}
		s.mu.Unlock()
	}(cmd)
	return nil
}

// Close kills the ffplay process. Safe to call more than once.
func (s *Speaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stdin != nil {
		_ = s.stdin.Close()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	s.cmd = nil
	s.stdin = nil
	return nil
}
