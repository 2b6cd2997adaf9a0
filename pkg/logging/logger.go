// Package logging provides structured logging configuration using zerolog.
//
// Two verbosities are kept apart: the application's own events and the
// events of the HTTP transport layer. Raising one never raises the other.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum level for application events.
	Level LogLevel

	// TransportLevel is the minimum level for HTTP transport events.
	TransportLevel LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:          LevelInfo,
		TransportLevel: LevelWarn,
		Pretty:         false,
		Output:         os.Stderr,
	}
}

var transportLevel = zerolog.WarnLevel

// Setup configures the global zerolog logger and returns the application logger.
func Setup(cfg Config) zerolog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	appLevel := parseLevel(cfg.Level)
	transportLevel = parseLevel(cfg.TransportLevel)

	// The global level gates every logger, so it has to admit the more
	// verbose of the two.
	global := appLevel
	if transportLevel < global {
		global = transportLevel
	}
	zerolog.SetGlobalLevel(global)

	var output io.Writer = cfg.Output
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: "15:04:05"}
	}

	logger := zerolog.New(output).With().Timestamp().Logger().Level(appLevel)

	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// IsValidLevel reports whether level names a known level.
func IsValidLevel(level LogLevel) bool {
	switch strings.ToLower(string(level)) {
	case "debug", "info", "warn", "warning", "error":
		return true
	default:
		return false
	}
}

// NewLogger creates a new application logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// NewTransportLogger creates the logger used by the HTTP layer. It carries the
// transport level configured in Setup, independent of the application level.
func NewTransportLogger() zerolog.Logger {
	return log.With().Str("component", "transport").Logger().Level(transportLevel)
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Request attempts (page, attempt, url)
//   - Rate limit delays
//   - Per-page parse summaries
//
// Info: Normal operation events
//   - Page fetched with listing counts
//   - Pagination learned from first page
//   - Export written
//
// Warn: Warning conditions that don't prevent operation
//   - Redirect (bot challenge) responses and backoff
//   - Skipped listings
//   - Nothing scraped
//
// Error: Error conditions requiring attention
//   - Bot detection after all retries
//   - Parse errors stopping the run
//   - Fatal transport errors
//
// Context Fields:
//   - component: emitting package (fetcher, scrape, export, transport)
//   - page: page index
//   - attempt: attempt number within one fetch
//   - status: HTTP status code
//   - location: redirect target
//   - token: listing identity token
//   - backoff / delay: sleep durations
