// Package logging sets up the process-wide structured logger.
//
// Every component that needs to log pulls a scoped logger from here rather
// than constructing its own zerolog.Logger, so that the service-wide
// service name field is always present and the output format is
// controlled in exactly one place.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var Log zerolog.Logger

// Initialize configures the global logger. level is a zerolog level name
// ("debug", "info", "warn", "error"); pretty selects a human-readable
// console writer instead of JSON, for local development.
func Initialize(level string, pretty bool) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}

	Log = log.With().
		Str("service", "a2e-exec").
		Logger()

	Log.Info().
		Str("level", logLevel.String()).
		Bool("pretty", pretty).
		Msg("logger initialized")
}

// Get returns the global logger.
func Get() *zerolog.Logger {
	return &Log
}

// Component returns a logger scoped to a named subsystem, e.g. "engine" or
// "vault". Downstream log lines carry a "component" field so operators can
// filter by subsystem.
func Component(name string) *zerolog.Logger {
	l := Log.With().Str("component", name).Logger()
	return &l
}
