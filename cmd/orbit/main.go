// Command orbit is a voice meeting assistant. It streams microphone audio to
// a live speech service, plays the synthesized replies, and keeps a
// best-effort transcript of the conversation in PostgreSQL.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/eburon-ai/orbit/internal/assistant"
	"github.com/eburon-ai/orbit/internal/config"
	"github.com/eburon-ai/orbit/internal/health"
	"github.com/eburon-ai/orbit/internal/observe"
	"github.com/eburon-ai/orbit/internal/sink"
	"github.com/eburon-ai/orbit/internal/transcript"
	"github.com/eburon-ai/orbit/pkg/audio"
	"github.com/eburon-ai/orbit/pkg/audio/ffmpeg"
	"github.com/eburon-ai/orbit/pkg/live/gemini"
	"github.com/eburon-ai/orbit/pkg/store"
	"github.com/eburon-ai/orbit/pkg/store/postgres"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	migrate := flag.Bool("migrate", false, "provision the transcript schema and exit")
	history := flag.Bool("history", false, "print the stored transcript history and exit")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "orbit: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "orbit: %v\n", err)
		}
		return 1
	}
	if cfg.Live.APIKey == "" {
		cfg.Live.APIKey = os.Getenv("GEMINI_API_KEY")
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Maintenance modes ─────────────────────────────────────────────────────
	if *migrate {
		return runMigrate(ctx, cfg)
	}
	if *history {
		return runHistory(ctx, cfg)
	}

	if cfg.Live.APIKey == "" {
		fmt.Fprintln(os.Stderr, "orbit: live.api_key is not set (or GEMINI_API_KEY)")
		return 1
	}

	slog.Info("orbit starting",
		"config", *configPath,
		"model", cfg.Live.Model,
		"voice", cfg.Live.Voice,
		"room", cfg.Store.RoomName,
	)

	// ── Metrics ───────────────────────────────────────────────────────────────
	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "orbit"})
	if err != nil {
		slog.Error("failed to initialise metrics provider", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}()

	// ── Transcript persistence (optional) ─────────────────────────────────────
	var entrySink assistant.EntrySink
	var closeSink func()
	var storePinger health.Pinger
	if cfg.Store.PostgresDSN == "" {
		slog.Warn("store.postgres_dsn is empty; transcripts will not be persisted")
	} else {
		st, err := postgres.New(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			// The assistant runs fine without persistence.
			slog.Warn("transcript store unavailable, continuing without persistence", "err", err)
		} else {
			s := sink.New(st, logger)
			entrySink = s
			storePinger = st
			closeSink = func() {
				s.Close()
				st.Close()
			}
		}
	}

	// ── Audio devices ─────────────────────────────────────────────────────────
	mic := ffmpeg.NewMicrophone(ffmpeg.MicrophoneConfig{
		FFmpegPath: cfg.Audio.FFmpegPath,
		Device:     cfg.Audio.CaptureDevice,
		SampleRate: cfg.Audio.CaptureRate,
		FrameSize:  cfg.Audio.FrameSize,
	})
	speaker := ffmpeg.NewSpeaker(ffmpeg.SpeakerConfig{
		FFplayPath: cfg.Audio.FFplayPath,
		SampleRate: cfg.Audio.PlaybackRate,
		Volume:     cfg.Audio.Volume,
	})
	defer speaker.Close()

	scheduler := audio.NewScheduler(
		audio.Format{SampleRate: cfg.Audio.PlaybackRate, Channels: 1},
		speaker,
	)

	// ── Assistant ─────────────────────────────────────────────────────────────
	asst := assistant.New(
		assistant.Config{
			Voice:          cfg.Live.Voice,
			Instructions:   cfg.Live.Instructions,
			ConnectTimeout: cfg.Live.ConnectTimeout,
			CaptureRate:    cfg.Audio.CaptureRate,
		},
		assistant.Deps{
			Dialer:     newDialer(cfg),
			Microphone: mic,
			Scheduler:  scheduler,
			Aggregator: transcript.New(cfg.Store.OwnerID, cfg.Store.RoomName),
			Sink:       entrySink,
			OnEntry:    printEntry,
			Logger:     logger,
		},
	)

	if err := asst.Connect(ctx); err != nil {
		slog.Error("failed to connect", "err", err)
		if closeSink != nil {
			closeSink()
		}
		return 1
	}

	fmt.Println("connected — commands: mute | unmute | reconnect | quit")

	// ── Serve metrics and read commands until shutdown ────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	if cfg.Server.MetricsAddr != "" {
		checkers := []health.Checker{health.SessionChecker(asst.State)}
		if storePinger != nil {
			checkers = append(checkers, health.StoreChecker(storePinger))
		}
		healthHandler := health.New(checkers...)
		g.Go(func() error {
			return serveMetrics(gctx, cfg.Server.MetricsAddr, healthHandler)
		})
	}
	g.Go(func() error {
		return commandLoop(gctx, asst, os.Stdin)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutting down")
	asst.Disconnect()
	if closeSink != nil {
		closeSink()
	}
	slog.Info("goodbye")
	return 0
}

// newDialer builds the live service dialer from config.
func newDialer(cfg *config.Config) *gemini.Dialer {
	var opts []gemini.Option
	if cfg.Live.Model != "" {
		opts = append(opts, gemini.WithModel(cfg.Live.Model))
	}
	if cfg.Live.BaseURL != "" {
		opts = append(opts, gemini.WithBaseURL(cfg.Live.BaseURL))
	}
	return gemini.New(cfg.Live.APIKey, opts...)
}

// printEntry writes one completed transcript line to stdout.
func printEntry(entry store.Entry) {
	label := "you"
	if entry.Sender == store.SenderAssistant {
		label = "orbit"
	}
	fmt.Printf("[%s] %s: %s\n", entry.CreatedAt.Format("15:04:05"), label, entry.Text)
}

// sessionControl is the slice of the assistant the command loop drives.
type sessionControl interface {
	SetMuted(muted bool)
	Connect(ctx context.Context) error
	State() assistant.State
}

// commandLoop reads commands from input until quit, EOF, or context
// cancellation.
func commandLoop(ctx context.Context, asst sessionControl, input io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(input)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			switch line {
			case "mute":
				asst.SetMuted(true)
				fmt.Println("muted")
			case "unmute":
				asst.SetMuted(false)
				fmt.Println("unmuted")
			case "reconnect":
				if asst.State() == assistant.StateConnected {
					fmt.Println("already connected")
					continue
				}
				if err := asst.Connect(ctx); err != nil {
					fmt.Printf("reconnect failed: %v\n", err)
					continue
				}
				fmt.Println("reconnected")
			case "quit", "exit":
				return nil
			case "":
			default:
				fmt.Printf("unknown command %q — commands: mute | unmute | reconnect | quit\n", line)
			}
		}
	}
}

// serveMetrics exposes the Prometheus /metrics endpoint and the health
// probes until ctx ends.
func serveMetrics(ctx context.Context, addr string, h *health.Handler) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	h.Register(mux)
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	slog.Info("metrics endpoint up", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// runMigrate provisions the transcript schema.
func runMigrate(ctx context.Context, cfg *config.Config) int {
	if cfg.Store.PostgresDSN == "" {
		fmt.Fprintln(os.Stderr, "orbit: store.postgres_dsn is not set")
		return 1
	}
	st, err := postgres.New(ctx, cfg.Store.PostgresDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "orbit: %v\n", err)
		return 1
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "orbit: %v\n", err)
		return 1
	}
	fmt.Println("transcript schema provisioned")
	return 0
}

// runHistory prints the stored transcript grouped by meeting.
func runHistory(ctx context.Context, cfg *config.Config) int {
	if cfg.Store.PostgresDSN == "" {
		fmt.Fprintln(os.Stderr, "orbit: store.postgres_dsn is not set")
		return 1
	}
	st, err := postgres.New(ctx, cfg.Store.PostgresDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "orbit: %v\n", err)
		return 1
	}
	defer st.Close()

	entries, err := st.ListByOwner(ctx, cfg.Store.OwnerID, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "orbit: %v\n", err)
		return 1
	}
	if len(entries) == 0 {
		fmt.Println("no transcripts stored yet")
		return 0
	}

	for _, meeting := range store.GroupByMeeting(entries) {
		fmt.Printf("── %s · %s ──\n", meeting.RoomName, meeting.Day.Format("2006-01-02"))
		for _, entry := range meeting.Entries {
			label := "you"
			if entry.Sender == store.SenderAssistant {
				label = "orbit"
			}
			fmt.Printf("  [%s] %s: %s\n", entry.CreatedAt.Format("15:04"), label, entry.Text)
		}
	}
	return 0
}

// newLogger builds the process-wide slog logger at the configured level.
func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
