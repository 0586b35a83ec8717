package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ponytojas/mqtt-team-bridge/config"
)

// ParseLevel maps a config level name to a zerolog level, defaulting to info
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// New builds a logger writing to w in the configured format
func New(w io.Writer, cfg config.LoggingConfig) zerolog.Logger {
	if cfg.Format != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.DateTime}
	}
	return zerolog.New(w).Level(ParseLevel(cfg.Level)).With().Timestamp().Logger()
}

// Setup installs the configured logger as the global one
func Setup(cfg config.LoggingConfig) {
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))
	log.Logger = New(os.Stderr, cfg)
}
