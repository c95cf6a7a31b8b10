package logging

import (
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	global zerolog.Logger
	once   sync.Once
)

func init() {
	global = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// Init configures the global logger. Call once at startup; it also bridges
// stdlib log so stray log.Printf calls produce structured output.
func Init(level string, pretty bool) {
	once.Do(func() {
		var w io.Writer = os.Stdout
		if pretty {
			w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
		}
		global = zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Str("service", "chat-core").Logger()

		stdlog.SetFlags(0)
		stdlog.SetOutput(global.With().Str("source", "stdlog").Logger())
	})
}

// L returns the global logger.
func L() *zerolog.Logger {
	return &global
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
