package influx

import (
	"compress/gzip"
	"context"
	"io"
	"os"
	"testing"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piracysim/piracysim/internal/config"
	"github.com/piracysim/piracysim/pkg/core"
	"github.com/piracysim/piracysim/pkg/sim"
)

func testRun() *core.Run {
	return &core.Run{
		ID:        7,
		Name:      "gulf",
		Tag:       "baseline",
		StartTime: time.Date(2026, 4, 2, 22, 0, 0, 0, time.UTC),
	}
}

func testFrame() *sim.Frame {
	f := sim.NewFrame(30, false)
	f.AddEntity(sim.NewShip(core.KindCargo, 1, sim.Vec{X: 2, Y: 3}))
	f.AddEntity(sim.NewShip(core.KindCargo, 2, sim.Vec{X: 4, Y: 3}))
	f.AddEntity(sim.NewShip(core.KindPirate, 3, sim.Vec{X: 5, Y: 5}))
	f.Stats.CargosEntered = 2
	f.Stats.CargosCaptured = 1
	return f
}

func lineProtocol(p *influxdb2_write.Point) string {
	return influxdb2_write.PointToLineProtocol(p, time.Nanosecond)
}

func TestFramePoint(t *testing.T) {
	run := testRun()
	p := FramePoint(run, 6, testFrame())

	assert.Equal(t, MeasurementFrame, p.Name())
	assert.Equal(t, run.StartTime.Add(30*time.Minute), p.Time())

	lp := lineProtocol(p)
	assert.Contains(t, lp, "phase=night")
	assert.Contains(t, lp, "run=gulf")
	assert.Contains(t, lp, "runId=7")
	assert.Contains(t, lp, "cargos=2i")
	assert.Contains(t, lp, "pirates=1i")
	assert.Contains(t, lp, "frame=6i")
	assert.Contains(t, lp, "cargosCaptured=1i")
}

func TestParsePoint(t *testing.T) {
	bucket, p, err := ParsePoint([]string{
		"sim_performance", "note",
		"tag::source::cli",
		"field::string::text::hello",
		"field::int::count::3",
		"field::float::ratio::0.5",
	})
	require.NoError(t, err)

	assert.Equal(t, "sim_performance", bucket)
	assert.Equal(t, "note", p.Name())
	lp := lineProtocol(p)
	assert.Contains(t, lp, "source=cli")
	assert.Contains(t, lp, `text="hello"`)
	assert.Contains(t, lp, "count=3i")
	assert.Contains(t, lp, "ratio=0.5")
}

func TestParsePoint_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"too short", []string{"bucket"}, "want bucket"},
		{"bad int", []string{"b", "m", "field::int::n::x"}, "to int"},
		{"bad float", []string{"b", "m", "field::float::n::x"}, "to float"},
		{"bad type", []string{"b", "m", "field::bool::n::true"}, "unknown field type"},
		{"malformed", []string{"b", "m", "nonsense"}, "malformed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParsePoint(tt.args)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestConnect_Disabled(t *testing.T) {
	m := NewManager(zerolog.Nop(), config.InfluxConfig{})
	assert.ErrorIs(t, m.Connect(context.Background()), ErrDisabled)
}

func TestWritePoint_NotConnected(t *testing.T) {
	m := NewManager(zerolog.Nop(), config.InfluxConfig{})
	assert.Error(t, m.WriteFrame(testRun(), 1, testFrame()))
}

func TestConnect_FallsBackToBackup(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(zerolog.Nop(), config.InfluxConfig{
		Enabled:   true,
		Protocol:  "http",
		Host:      "127.0.0.1",
		Port:      "1",
		Org:       "piracysim",
		BackupDir: dir,
	})
	assert.Equal(t, "http://127.0.0.1:1", m.URL())

	require.NoError(t, m.Connect(context.Background()))
	assert.False(t, m.IsValid)

	require.NoError(t, m.WriteFrame(testRun(), 6, testFrame()))
	require.NoError(t, m.Close())

	f, err := os.Open(m.BackupPath())
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)

	assert.Contains(t, string(data), MeasurementFrame)
	assert.Contains(t, string(data), "cargos=2i")
}

func TestWritePoint_UnknownBucket(t *testing.T) {
	m := NewManager(zerolog.Nop(), config.InfluxConfig{})
	m.IsValid = true
	assert.ErrorContains(t, m.WritePoint("missing", FramePoint(testRun(), 1, testFrame())), "not registered")
}
