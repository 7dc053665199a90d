package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestDispatcherLogger_Levels(t *testing.T) {
	tests := []struct {
		level string
		log   func(*DispatcherLogger)
	}{
		{"debug", func(l *DispatcherLogger) { l.Debug("msg", "key", "value") }},
		{"info", func(l *DispatcherLogger) { l.Info("msg", "key", "value") }},
		{"error", func(l *DispatcherLogger) { l.Error("msg", "key", "value") }},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			dl := NewDispatcherLogger(zerolog.New(&buf).Level(zerolog.DebugLevel))
			tt.log(dl)

			entry := decodeLine(t, &buf)
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, "msg", entry["message"])
			assert.Equal(t, "value", entry["key"])
		})
	}
}

func TestDispatcherLogger_NumericFields(t *testing.T) {
	var buf bytes.Buffer
	dl := NewDispatcherLogger(zerolog.New(&buf))

	dl.Info("frame recorded", "frame", 42, "ships", 7)

	entry := decodeLine(t, &buf)
	assert.Equal(t, float64(42), entry["frame"])
	assert.Equal(t, float64(7), entry["ships"])
}

func TestDispatcherLogger_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	dl := NewDispatcherLogger(zerolog.New(&buf).Level(zerolog.InfoLevel))

	dl.Debug("hidden")
	assert.Empty(t, buf.String())
}

func TestDispatcherLogger_MalformedPairsAndErrors(t *testing.T) {
	var buf bytes.Buffer
	dl := NewDispatcherLogger(zerolog.New(&buf))

	dl.Error("failed", "a", 1, 2, "b", "error", errors.New("queue full"), "c")

	entry := decodeLine(t, &buf)
	assert.Equal(t, float64(1), entry["a"])
	assert.Equal(t, "queue full", entry["error"])
	assert.Equal(t, "dispatcher", entry["component"])
	assert.NotContains(t, entry, "c")
	assert.NotContains(t, entry, "b")
}
