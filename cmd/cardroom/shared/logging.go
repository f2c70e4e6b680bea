package shared

import (
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/rs/zerolog"
)

// SetupLogger configures the operational logger for console output.
func SetupLogger(level string) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
	})
	parsed, err := log.ParseLevel(level)
	if err != nil {
		parsed = log.InfoLevel
	}
	logger.SetLevel(parsed)
	return logger
}

// SetupAuditLogger configures the structured JSON logger that mirrors
// the ledger audit trail. An empty path writes to stderr; "discard"
// disables it.
func SetupAuditLogger(path string) (zerolog.Logger, io.Closer, error) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	switch path {
	case "discard":
		return zerolog.Nop(), nil, nil
	case "":
		return zerolog.New(os.Stderr).With().Timestamp().Logger(), nil, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zerolog.Logger{}, nil, err
	}
	return zerolog.New(f).With().Timestamp().Logger(), f, nil
}
