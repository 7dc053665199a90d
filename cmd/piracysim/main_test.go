package main

import (
	"bytes"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piracysim/piracysim/internal/api"
	"github.com/piracysim/piracysim/internal/config"
	"github.com/piracysim/piracysim/internal/dispatcher"
	"github.com/piracysim/piracysim/internal/logging"
	"github.com/piracysim/piracysim/internal/storage/memory"
	"github.com/piracysim/piracysim/pkg/core"
)

func TestMain(m *testing.M) {
	Logger = slog.New(slog.DiscardHandler)
	os.Exit(m.Run())
}

func TestHTTPToWS(t *testing.T) {
	assert.Equal(t, "ws://localhost:5000/api", httpToWS("http://localhost:5000/api/"))
	assert.Equal(t, "wss://viewer.example.org", httpToWS("https://viewer.example.org"))
	assert.Equal(t, "ws://already", httpToWS("ws://already"))
}

func TestCreateStorageBackend(t *testing.T) {
	b, err := createStorageBackend(config.StorageConfig{Type: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &memory.Backend{}, b)

	b, err = createStorageBackend(config.StorageConfig{})
	require.NoError(t, err)
	assert.IsType(t, &memory.Backend{}, b)

	_, err = createStorageBackend(config.StorageConfig{Type: "tape"})
	assert.ErrorContains(t, err, "unknown storage type")
}

func TestNewSimulationAppliesOverrides(t *testing.T) {
	cfg := config.SimConfig{
		Conditions: core.DefaultInitSimData(),
		Seed:       42,
		RunName:    "gulf",
		Tag:        "baseline",
		CellOverrides: []config.CellOverride{
			{Kind: "cargo", Index: 0, Probability: 1},
		},
	}

	s, run, err := newSimulation(cfg)
	require.NoError(t, err)
	assert.Equal(t, int64(42), run.Seed)
	assert.Equal(t, "gulf", run.Name)
	assert.Equal(t, CurrentVersion, run.ExtensionVersion)

	cond := s.Conditions()
	cells := cond.Cells(core.KindCargo, true)
	require.NotEmpty(t, cells)
	assert.InDelta(t, 1.0, cells[0].Probability, 1e-9)

	cfg.CellOverrides = []config.CellOverride{{Kind: "submarine"}}
	_, _, err = newSimulation(cfg)
	assert.Error(t, err)
}

func TestRandomSeedWhenZero(t *testing.T) {
	_, run, err := newSimulation(config.SimConfig{Conditions: core.DefaultInitSimData()})
	require.NoError(t, err)
	assert.NotZero(t, run.Seed)
}

func TestVersionFlag(t *testing.T) {
	var out bytes.Buffer
	assert.Equal(t, 0, run([]string{"--version"}, strings.NewReader(""), &out))
	assert.Contains(t, out.String(), AppName)
}

func TestUnknownCommand(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir)

	var out bytes.Buffer
	assert.Equal(t, 2, run([]string{"--config", dir, "fly"}, strings.NewReader(""), &out))
	assert.Contains(t, out.String(), `unknown command "fly"`)
}

func writeConfig(t *testing.T, dir string) {
	t.Helper()
	cfg := `{
  "logsDir": "` + filepath.ToSlash(filepath.Join(dir, "logs")) + `",
  "sim": {"runTime": 60, "seed": 7, "runName": "gulf run"},
  "storage": {"type": "memory", "memory": {"outputDir": "` + filepath.ToSlash(filepath.Join(dir, "out")) + `", "compressOutput": false}}
}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte(cfg), 0o644))
}

func TestRunThenReplay(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir)

	var out bytes.Buffer
	require.Equal(t, 0, run([]string{"--config", dir, "run"}, strings.NewReader(""), &out), out.String())
	assert.Contains(t, out.String(), "over after 13 frames")

	exports, err := filepath.Glob(filepath.Join(dir, "out", "*.json"))
	require.NoError(t, err)
	require.Len(t, exports, 1)
	assert.True(t, strings.HasPrefix(filepath.Base(exports[0]), "gulf_run_"))

	out.Reset()
	require.Equal(t, 0, run([]string{"--config", dir, "replay", exports[0]}, strings.NewReader(""), &out))
	assert.Contains(t, out.String(), "13 frames")
	assert.Contains(t, out.String(), "#12\n")

	out.Reset()
	require.Equal(t, 0, run([]string{"--config", dir, "inspect", exports[0]}, strings.NewReader(""), &out))
	assert.NotEmpty(t, out.String())

	uploaded := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == api.UploadPath {
			uploaded <- r.FormValue("frames")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	viper.Set("api.serverUrl", server.URL)
	t.Cleanup(func() { viper.Set("api.serverUrl", "") })

	out.Reset()
	require.Equal(t, 0, run([]string{"--config", dir, "upload", exports[0]}, strings.NewReader(""), &out))
	assert.Equal(t, "13", <-uploaded)
}

func TestInteractive(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir)

	in := strings.NewReader(":SPEED: 20\n:STATUS:\n:QUIT:\n")
	var out bytes.Buffer
	require.Equal(t, 0, run([]string{"--config", dir, "interactive"}, in, &out))
	assert.Contains(t, out.String(), "commands:")
	assert.Contains(t, out.String(), `"state"`)
	assert.Contains(t, out.String(), "bye")
}

func TestPipelineAbortClosesDispatcher(t *testing.T) {
	d, err := dispatcher.New(logging.NewDispatcherLogger(zerolog.Nop()))
	require.NoError(t, err)
	d.Register("frame", func(dispatcher.Event) (any, error) { return nil, nil }, dispatcher.Buffered(1))

	backend := memory.New(config.MemoryConfig{})
	require.NoError(t, backend.Init())
	p := &pipeline{dispatcher: d, backend: backend}

	wantErr := errors.New("monitor down")
	got, err := p.abort(wantErr)
	assert.Nil(t, got)
	assert.Same(t, wantErr, err)

	_, err = d.Dispatch(dispatcher.Event{Command: "frame"})
	assert.ErrorIs(t, err, dispatcher.ErrClosed)
}

func TestRunFailsWhenMonitorCannotListen(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	dir := t.TempDir()
	writeConfig(t, dir)
	viper.Set("monitor.listenAddr", ln.Addr().String())
	t.Cleanup(func() { viper.Set("monitor.listenAddr", "") })

	var out bytes.Buffer
	assert.Equal(t, 1, run([]string{"--config", dir, "run"}, strings.NewReader(""), &out))
	assert.NotContains(t, out.String(), "frames")
}
