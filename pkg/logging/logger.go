// Package logging configures zerolog for the harvester.
//
// Setup installs the process-wide logger and returns it; components derive
// their own with NewLogger or logger.With().Str("component", ...). When
// logging is disabled every logger is zerolog.Nop(), so log calls never
// influence request handling.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel is a textual log level as it appears in configuration.
type LogLevel string

const (
	// LevelTrace logs token cache hits and everything below.
	LevelTrace LogLevel = "trace"
	// LevelDebug logs pages, partitions and retry waits.
	LevelDebug LogLevel = "debug"
	// LevelInfo logs completed requests, token refreshes and totals.
	LevelInfo LogLevel = "info"
	// LevelWarn logs throttling and store errors.
	LevelWarn LogLevel = "warn"
	// LevelError logs failed requests and authentication failures.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Enabled turns logging on. A disabled logger discards everything.
	Enabled bool

	// Level is the minimum level written. Unknown values mean info.
	Level LogLevel

	// Pretty selects the human-readable console writer instead of JSON lines.
	Pretty bool

	// NoColor disables ANSI colors in the console writer.
	NoColor bool

	// Output defaults to os.Stderr so stdout stays free for command output.
	Output io.Writer
}

// DefaultConfig returns JSON logging at info level on stderr.
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		Level:   LevelInfo,
		Output:  os.Stderr,
	}
}

// Setup builds the logger described by cfg, installs it as the global
// zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	if !cfg.Enabled {
		log.Logger = zerolog.Nop()
		return log.Logger
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: cfg.NoColor}
	}

	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return log.Logger
}

// ParseLevel maps a configured level to zerolog, accepting "warning" as an
// alias and falling back to info.
func ParseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(string(level))) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger derives a logger tagged with component from the global logger.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Level guide:
//
//	trace  token cache hits
//	debug  pages fetched, partitions completed, retry waits
//	info   requests completed, token refreshes, harvest totals
//	warn   429 responses, shared throttle gate holding requests, store errors
//	error  failed requests (status, headers, body), exhausted retries, auth failures
//
// Common fields: component, method, url (decoded), status, error_class,
// partition, filter, duration, retry_in.
