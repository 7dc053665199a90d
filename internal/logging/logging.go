package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LogFilePath builds the log file path for a session started at sessionStart,
// e.g. logs/piracysim_20260212_213836.log.
func LogFilePath(logsDir, name string, sessionStart time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s_%s.log", name, sessionStart.Format("20060102_150405")),
	)
}

// OpenLogFile creates the parent directory if needed and opens path for
// appending.
func OpenLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func parseZerologLevel(level string) zerolog.Level {
	switch strings.ToUpper(level) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewZerolog builds the logger handed to the infrastructure managers
// (database, influx, dispatcher). Output is the uncolored console format with
// UTC RFC3339 timestamps. provider, when not nil, adds its attributes to
// every event.
func NewZerolog(out io.Writer, level string, provider ContextProvider) zerolog.Logger {
	logger := zerolog.New(zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
		NoColor:    true,
	}).Level(parseZerologLevel(level)).With().Timestamp().Logger()

	if provider == nil {
		return logger
	}
	return logger.Hook(zerolog.HookFunc(func(e *zerolog.Event, _ zerolog.Level, _ string) {
		for _, a := range provider() {
			e.Interface(a.Key, a.Value.Any())
		}
	}))
}
