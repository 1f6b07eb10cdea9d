package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/HMasataka/duet/internal/control"
	"github.com/HMasataka/duet/internal/gather"
	"github.com/HMasataka/duet/internal/negotiation"
	"github.com/HMasataka/duet/pkg/media"
	pkgwebrtc "github.com/HMasataka/duet/pkg/webrtc"
	"github.com/pelletier/go-toml/v2"
)

var (
	ErrInvalidLogLevel  = errors.New("invalid log level")
	ErrInvalidLogFormat = errors.New("invalid log format")
)

type Config struct {
	Log         LogConfig         `toml:"log"`
	WebRTC      pkgwebrtc.Config  `toml:"webrtc"`
	Gather      GatherConfig      `toml:"gather"`
	Negotiation NegotiationConfig `toml:"negotiation"`
	Media       media.Config      `toml:"media"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	// File receives log output instead of stderr when set.
	File string `toml:"file"`
	// SDPDump is a directory where every applied description is saved.
	SDPDump string `toml:"sdpdump"`
}

// GatherConfig is expressed in milliseconds.
type GatherConfig struct {
	QuietPeriod int `toml:"quiet"`
	Ceiling     int `toml:"ceiling"`
}

type NegotiationConfig struct {
	// Debounce in milliseconds.
	Debounce     int    `toml:"debounce"`
	ControlLabel string `toml:"controllabel"`
}

func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		WebRTC: pkgwebrtc.DefaultConfig(),
		Gather: GatherConfig{
			QuietPeriod: 2000,
			Ceiling:     10000,
		},
		Negotiation: NegotiationConfig{
			Debounce:     250,
			ControlLabel: control.Label,
		},
		Media: media.DefaultConfig(),
	}
}

// Load reads the TOML file at path over the defaults. An empty path returns
// the defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	c := Default()

	if path == "" {
		return c, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	if err := Decode(f, &c); err != nil {
		return Config{}, fmt.Errorf("failed to load %s: %w", path, err)
	}

	return c, nil
}

// Decode reads TOML from r into c, keeping the values of c for missing keys.
// ICE servers listed in the file replace the defaults instead of extending
// them.
func Decode(r io.Reader, c *Config) error {
	servers := c.WebRTC.ICEServers
	c.WebRTC.ICEServers = nil

	if err := toml.NewDecoder(r).DisallowUnknownFields().Decode(c); err != nil {
		c.WebRTC.ICEServers = servers

		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("unknown keys: %s", strict.String())
		}
		return err
	}

	if len(c.WebRTC.ICEServers) == 0 {
		c.WebRTC.ICEServers = servers
	}

	return nil
}

func (c Config) GatherOptions() gather.Options {
	return gather.Options{
		QuietPeriod: time.Duration(c.Gather.QuietPeriod) * time.Millisecond,
		Ceiling:     time.Duration(c.Gather.Ceiling) * time.Millisecond,
	}
}

// NegotiationOptions returns controller options without callbacks.
func (c Config) NegotiationOptions(logger *slog.Logger) negotiation.Options {
	return negotiation.Options{
		Gather:                c.GatherOptions(),
		RenegotiationDebounce: time.Duration(c.Negotiation.Debounce) * time.Millisecond,
		ControlLabel:          c.Negotiation.ControlLabel,
		SDPDumpDir:            c.Log.SDPDump,
		Logger:                logger,
	}
}

// NewLogger builds the process logger. When a log file is configured it is
// opened for appending and returned so the caller can close it.
func (c LogConfig) NewLogger(stderr io.Writer) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Level)
	}

	w := stderr
	var closer io.Closer = nopCloser{}

	if c.File != "" {
		f, err := os.OpenFile(c.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		w = f
		closer = f
	}

	options := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch c.Format {
	case "", "text":
		handler = slog.NewTextHandler(w, options)
	case "json":
		handler = slog.NewJSONHandler(w, options)
	default:
		_ = closer.Close()
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Format)
	}

	return slog.New(handler), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
