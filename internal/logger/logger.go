// Package logger configures the service-wide zerolog logger.
package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config controls log level and output format.
type Config struct {
	Level       string
	Environment string
	ServiceName string
	Version     string
}

// New builds a zerolog.Logger. Development environments get the console
// writer; everything else emits JSON.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var out = os.Stdout
	var logger zerolog.Logger
	if cfg.Environment == "development" || cfg.Environment == "local" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(out)
	}

	return logger.Level(level).With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("version", cfg.Version).
		Logger()
}
