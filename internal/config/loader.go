package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, validates the result, and
// applies defaults. Useful in tests where configs are constructed from string
// literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		// An empty file decodes to EOF; treat it as an all-defaults config.
		if !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("config: decode yaml: %w", err)
		}
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Live.ConnectTimeout < 0 {
		errs = append(errs, fmt.Errorf("live.connect_timeout %v must not be negative", cfg.Live.ConnectTimeout))
	}

	if cfg.Audio.CaptureRate < 0 {
		errs = append(errs, fmt.Errorf("audio.capture_rate %d must not be negative", cfg.Audio.CaptureRate))
	}
	if cfg.Audio.PlaybackRate < 0 {
		errs = append(errs, fmt.Errorf("audio.playback_rate %d must not be negative", cfg.Audio.PlaybackRate))
	}
	if cfg.Audio.FrameSize < 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size %d must not be negative", cfg.Audio.FrameSize))
	}
	if cfg.Audio.Volume < 0 || cfg.Audio.Volume > 100 {
		errs = append(errs, fmt.Errorf("audio.volume %d is out of range [0, 100]", cfg.Audio.Volume))
	}

	// An empty DSN is valid (persistence off); owner and room only matter
	// when a store is configured.
	if cfg.Store.PostgresDSN != "" {
		if cfg.Store.OwnerID == "" {
			errs = append(errs, errors.New("store.owner_id is required when store.postgres_dsn is set"))
		}
		if cfg.Store.RoomName == "" {
			errs = append(errs, errors.New("store.room_name is required when store.postgres_dsn is set"))
		}
	}

	return errors.Join(errs...)
}
