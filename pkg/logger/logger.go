// Package logger configures the process-wide zerolog logger.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Component names used as the "component" field across the service
const (
	APP        = "app"
	API        = "api"
	CABLE      = "cable"
	CHAT       = "chat"
	CONFIG     = "config"
	HANDLER    = "handler"
	MIDDLEWARE = "middleware"
	PUBSUB     = "pubsub"
	REDIS      = "redis"
	SESSION    = "session"
)

// Init sets the global level and output from LOG_LEVEL and LOG_FORMAT
func Init() {
	zerolog.SetGlobalLevel(getLogLevel())
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = zerolog.New(newWriter(os.Stderr)).With().Timestamp().Logger()
}

// For returns a child of the global logger tagged with component
func For(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

func getLogLevel() zerolog.Level {
	level := strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL")))
	if level == "" {
		return zerolog.InfoLevel
	}
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || parsed == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return parsed
}

func newWriter(out io.Writer) io.Writer {
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "console") {
		return zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}
	return out
}
