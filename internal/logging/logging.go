// Package logging builds the shared zerolog logger every component
// derives its own `.With().Str("component", ...)` child from.
package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// New builds the process-wide base logger: console-writer in debug
// builds would be noisy at scale, so this always emits structured JSON
// to stdout, the way a production deployment consumes it.
func New(level string) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	return zerolog.New(os.Stdout).
		Level(lvl).
		With().
		Timestamp().
		Str("service", "progressd").
		Logger()
}
