package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// captureStdout swaps the console sink for a buffer until the test ends.
func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = orig })
	return &buf
}

func TestSetup_FileOnly_NoStdout(t *testing.T) {
	console := captureStdout(t)

	var fileBuf bytes.Buffer
	m := NewSlogManager()
	m.Setup(Options{File: &fileBuf, Level: "info"})
	m.Logger().Info("hello file")

	assert.Contains(t, fileBuf.String(), "hello file")
	assert.Contains(t, fileBuf.String(), "Logging initialized")
	assert.Empty(t, console.String())
}

func TestSetup_NoFile_WritesToStdout(t *testing.T) {
	console := captureStdout(t)

	m := NewSlogManager()
	m.Setup(Options{Level: "info"})
	m.Logger().Info("hello console")

	assert.Contains(t, console.String(), "hello console")
}

func TestSetup_LevelFiltering(t *testing.T) {
	var debugBuf, infoBuf bytes.Buffer

	m := NewSlogManager()
	m.Setup(Options{File: &debugBuf, Level: "debug"})
	m.Logger().Debug("debug msg")

	m.Setup(Options{File: &infoBuf, Level: "info"})
	m.Logger().Debug("should be filtered")
	m.Logger().Info("should appear")

	assert.Contains(t, debugBuf.String(), "debug msg")
	assert.NotContains(t, infoBuf.String(), "should be filtered")
	assert.Contains(t, infoBuf.String(), "should appear")
	assert.NotContains(t, debugBuf.String(), "should appear", "old file should not receive new logs")
}

func TestSetup_ContextAttributes(t *testing.T) {
	var buf bytes.Buffer
	frame := 0
	m := NewSlogManager()
	m.Setup(Options{
		File:  &buf,
		Level: "info",
		Context: func() []slog.Attr {
			return []slog.Attr{slog.String("run", "gulf"), slog.Int("frame", frame)}
		},
	})

	frame = 42
	m.Logger().Info("tick")

	assert.Contains(t, buf.String(), "run=gulf")
	assert.Contains(t, buf.String(), "frame=42")
}

func TestSetup_GraylogReceivesJSON(t *testing.T) {
	var file, graylog bytes.Buffer
	m := NewSlogManager()
	m.Setup(Options{File: &file, Graylog: &graylog, Level: "info"})

	graylog.Reset()
	m.Logger().Warn("pirate defeated", "pirate", 9)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(graylog.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "pirate defeated", entry["msg"])
	assert.Equal(t, float64(9), entry["pirate"])
	assert.Contains(t, file.String(), "pirate defeated")
}

func TestSetup_WithOTelProvider(t *testing.T) {
	provider := sdklog.NewLoggerProvider()

	var buf bytes.Buffer
	m := NewSlogManager()
	m.Setup(Options{File: &buf, Level: "info", Provider: provider})

	m.Logger().Info("otel integrated")
	assert.Contains(t, buf.String(), "otel integrated")
	assert.NoError(t, m.Flush(context.Background()))
}

func TestLogger_DefaultBeforeSetup(t *testing.T) {
	m := NewSlogManager()
	assert.Equal(t, slog.Default(), m.Logger())
	assert.NoError(t, m.Flush(context.Background()))
}

func TestWriteLog_AllLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "unknown"} {
		t.Run(level, func(t *testing.T) {
			var buf bytes.Buffer
			m := NewSlogManager()
			m.Setup(Options{File: &buf, Level: "debug"})

			m.WriteLog("testFunc", level+" message", level)

			assert.Contains(t, buf.String(), level+" message")
			assert.Contains(t, buf.String(), "function=testFunc")
		})
	}
}

func TestWriteLog_NilLogger(t *testing.T) {
	m := NewSlogManager()
	assert.NotPanics(t, func() { m.WriteLog("fn", "data", "info") })
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"invalid", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.input))
		})
	}
}

func TestMultiHandler_FansOut(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	multi := NewMultiHandler(
		slog.NewTextHandler(&buf1, nil),
		nil,
		slog.NewTextHandler(&buf2, nil),
	)
	require.Len(t, multi.handlers, 2)

	slog.New(multi).Info("fanned out")

	assert.Contains(t, buf1.String(), "fanned out")
	assert.Contains(t, buf2.String(), "fanned out")
}

func TestMultiHandler_Enabled(t *testing.T) {
	infoHandler := slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelInfo})
	debugHandler := slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelDebug})

	infoOnly := NewMultiHandler(infoHandler)
	assert.False(t, infoOnly.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, infoOnly.Enabled(context.Background(), slog.LevelInfo))

	both := NewMultiHandler(infoHandler, debugHandler)
	assert.True(t, both.Enabled(context.Background(), slog.LevelDebug))

	assert.False(t, NewMultiHandler().Enabled(context.Background(), slog.LevelError))
}

func TestMultiHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	multi := NewMultiHandler(slog.NewTextHandler(&buf, nil))

	slog.New(multi.WithAttrs([]slog.Attr{slog.String("component", "sim")})).Info("with attrs")
	slog.New(multi.WithGroup("grp")).Info("grouped", "key", "val")

	assert.Contains(t, buf.String(), "component=sim")
	assert.Contains(t, buf.String(), "grp.key=val")
	assert.Equal(t, multi, multi.WithGroup(""))
}

type errorHandler struct {
	slog.Handler
}

func (h *errorHandler) Handle(_ context.Context, _ slog.Record) error {
	return errors.New("handler error")
}

func (h *errorHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func TestMultiHandler_HandleError(t *testing.T) {
	var buf bytes.Buffer
	multi := NewMultiHandler(&errorHandler{}, slog.NewTextHandler(&buf, nil))

	slog.New(multi).Info("should reach second")

	assert.Contains(t, buf.String(), "should reach second")
}

func TestContextHandler_WithAttrsKeepsProvider(t *testing.T) {
	var buf bytes.Buffer
	h := NewContextHandler(slog.NewTextHandler(&buf, nil), func() []slog.Attr {
		return []slog.Attr{slog.Int("frame", 3)}
	})

	slog.New(h.WithAttrs([]slog.Attr{slog.String("component", "manager")})).Info("step")

	assert.Contains(t, buf.String(), "component=manager")
	assert.Contains(t, buf.String(), "frame=3")
	assert.Equal(t, h, h.WithGroup(""))
}
