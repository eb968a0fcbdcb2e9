// Package obs is coro-http's logging seam: a small Level/Logger interface
// that app logs through; the CORE packages do not log and import no
// logging library.
//
// Grounded on dqx0-protocols/internal/obs/logger.go for the
// Level/Logger/NopLogger/StdLogger shape; ZerologLogger is new, wiring
// github.com/rs/zerolog in as the structured-logging backend.
package obs

import (
	"log"
	"os"

	"github.com/rs/zerolog"
)

// Level orders log severities low to high.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config string (config.Config.LogLevel) to a Level,
// defaulting to Info for anything unrecognized.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return Debug
	case "warn", "warning":
		return Warn
	case "error":
		return Error
	default:
		return Info
	}
}

// Logger is the interface app logs through.
type Logger interface {
	Logf(level Level, format string, args ...interface{})
}

// NopLogger discards everything — the default for library callers that
// never configured a Logger.
type NopLogger struct{}

func (NopLogger) Logf(Level, string, ...interface{}) {}

// StdLogger adapts the standard library's log.Logger, kept for callers
// that want zero extra dependencies.
type StdLogger struct {
	L    *log.Logger
	Min  Level
	Pref string
}

func (s StdLogger) Logf(level Level, format string, args ...interface{}) {
	if s.L == nil || level < s.Min {
		return
	}
	if s.Pref != "" {
		s.L.Printf("%s[%s] "+format, append([]interface{}{s.Pref, level.String()}, args...)...)
	} else {
		s.L.Printf("[%s] "+format, append([]interface{}{level.String()}, args...)...)
	}
}

// ZerologLogger bridges Logger onto github.com/rs/zerolog, coro-http's
// structured-logging backend.
type ZerologLogger struct {
	Z   zerolog.Logger
	Min Level
}

// NewZerologLogger builds a ZerologLogger writing console-formatted output
// to stderr at or above min.
func NewZerologLogger(min Level) ZerologLogger {
	z := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).With().Timestamp().Logger()
	return ZerologLogger{Z: z, Min: min}
}

func (z ZerologLogger) Logf(level Level, format string, args ...interface{}) {
	if level < z.Min {
		return
	}
	var ev *zerolog.Event
	switch level {
	case Debug:
		ev = z.Z.Debug()
	case Warn:
		ev = z.Z.Warn()
	case Error:
		ev = z.Z.Error()
	default:
		ev = z.Z.Info()
	}
	ev.Msgf(format, args...)
}
