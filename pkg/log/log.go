// Package log provides the default types.Logger implementation,
// backed by zerolog. Components accept any types.Logger; this package
// exists so callers get structured output without wiring their own.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/idev0085/taskflow/pkg/types"
)

// Config contains logger configuration
type Config struct {
	// Level is the minimum level emitted: debug, info, warn or error
	Level string
	// Format selects json or console output
	Format string
	// Output receives the log stream, os.Stderr when nil
	Output io.Writer
	// Timestamp adds an event timestamp to every entry
	Timestamp bool
}

// ApplyDefaults fills unset fields with their defaults
func (c *Config) ApplyDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "json"
	}
	if c.Output == nil {
		c.Output = os.Stderr
	}
}

// Validate checks level and format
func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Level)); err != nil {
		return fmt.Errorf("log level %q is not valid: %w", c.Level, err)
	}
	switch strings.ToLower(c.Format) {
	case "json", "console":
		return nil
	default:
		return fmt.Errorf("log format must be json or console, got %q", c.Format)
	}
}

// Logger implements types.Logger on a zerolog backend
type Logger struct {
	zl zerolog.Logger
}

var _ types.Logger = (*Logger)(nil)

// New creates a logger from cfg
func New(cfg Config) (*Logger, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level, _ := zerolog.ParseLevel(strings.ToLower(cfg.Level))

	output := cfg.Output
	if strings.ToLower(cfg.Format) == "console" {
		output = zerolog.ConsoleWriter{
			Out:        cfg.Output,
			TimeFormat: "15:04:05",
		}
	}

	zl := zerolog.New(output).Level(level)
	if cfg.Timestamp {
		zl = zl.With().Timestamp().Logger()
	}
	return &Logger{zl: zl}, nil
}

// Default returns an info-level JSON logger writing to stderr
func Default() *Logger {
	l, err := New(Config{})
	if err != nil {
		// The zero config passes validation after defaults.
		panic(err)
	}
	return l
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// Component returns a child logger tagged with a component field
func (l *Logger) Component(name string) *Logger {
	return &Logger{zl: l.zl.With().Str("component", name).Logger()}
}

// Zerolog returns the underlying zerolog.Logger for callers that need
// structured fields beyond the types.Logger surface
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zl
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.zl.Debug().Msgf(format, args...)
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.zl.Info().Msgf(format, args...)
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.zl.Warn().Msgf(format, args...)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.zl.Error().Msgf(format, args...)
}
