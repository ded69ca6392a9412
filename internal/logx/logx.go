package logx

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds the process-wide logger. JSON to stderr; callers tag their
// component via With().
func New(service string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	return zerolog.New(os.Stderr).With().
		Timestamp().
		Str("service", service).
		Logger()
}
