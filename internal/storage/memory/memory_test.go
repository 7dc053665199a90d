// internal/storage/memory/memory_test.go
package memory

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piracysim/piracysim/internal/config"
	"github.com/piracysim/piracysim/internal/storage"
	"github.com/piracysim/piracysim/internal/storage/memory/export/v1"
	"github.com/piracysim/piracysim/pkg/core"
	"github.com/piracysim/piracysim/pkg/sim"
)

// Verify Backend implements storage.Backend interface
var _ storage.Backend = (*Backend)(nil)

// Verify Backend implements storage.Exporter interface
var _ storage.Exporter = (*Backend)(nil)

func testConditions() core.InitSimData {
	d := core.DefaultInitSimData()
	d.SimRunTime = 60
	d.ResetCells(10, 20)
	return d
}

// runSim ticks a seeded simulation to completion and returns its frames.
func runSim(t *testing.T) (*sim.Simulation, []*sim.Frame) {
	t.Helper()
	s, err := sim.New(testConditions(), sim.Dependencies{Random: sim.NewRandom(7)})
	require.NoError(t, err)
	for !s.Tick() {
	}
	return s, s.Frames()
}

func testRun() *core.Run {
	return &core.Run{
		Name:       "Gulf of Aden",
		Tag:        "baseline",
		Seed:       7,
		StartTime:  time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC),
		Conditions: testConditions(),
	}
}

func TestNew(t *testing.T) {
	cfg := config.MemoryConfig{
		OutputDir:      "/tmp/test",
		CompressOutput: true,
	}
	b := New(cfg)

	if b == nil {
		t.Fatal("New returned nil")
	}
	if b.cfg.OutputDir != "/tmp/test" {
		t.Errorf("expected OutputDir=/tmp/test, got %s", b.cfg.OutputDir)
	}
	if !b.cfg.CompressOutput {
		t.Error("expected CompressOutput=true")
	}
	if b.Run() != nil {
		t.Error("expected no run before StartRun")
	}
}

func TestInitAndClose(t *testing.T) {
	b := New(config.MemoryConfig{})

	if err := b.Init(); err != nil {
		t.Errorf("Init failed: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestRecordFrame_BeforeStart(t *testing.T) {
	b := New(config.MemoryConfig{})
	err := b.RecordFrame(0, sim.NewFrame(0, true))
	assert.ErrorIs(t, err, ErrNoRun)
	assert.ErrorIs(t, b.EndRun(&core.RunEnd{}), ErrNoRun)
}

func TestRecordFrame_Order(t *testing.T) {
	b := New(config.MemoryConfig{})
	require.NoError(t, b.StartRun(testRun()))

	require.NoError(t, b.RecordFrame(0, sim.NewFrame(0, true)))
	require.NoError(t, b.RecordFrame(1, sim.NewFrame(5, true)))

	err := b.RecordFrame(3, sim.NewFrame(15, true))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of order")

	err = b.RecordFrame(1, sim.NewFrame(5, true))
	require.Error(t, err)

	assert.Len(t, b.Frames(), 2)
}

func TestStartRun_ResetsFrames(t *testing.T) {
	b := New(config.MemoryConfig{})
	require.NoError(t, b.StartRun(testRun()))
	require.NoError(t, b.RecordFrame(0, sim.NewFrame(0, true)))

	second := testRun()
	second.Name = "second"
	require.NoError(t, b.StartRun(second))

	assert.Empty(t, b.Frames())
	assert.Equal(t, "second", b.Run().Name)
	require.NoError(t, b.RecordFrame(0, sim.NewFrame(0, true)), "numbering restarts with the run")
}

func TestFrames_ReturnsCopy(t *testing.T) {
	b := New(config.MemoryConfig{})
	require.NoError(t, b.StartRun(testRun()))
	require.NoError(t, b.RecordFrame(0, sim.NewFrame(0, true)))

	frames := b.Frames()
	frames[0] = nil
	assert.NotNil(t, b.Frames()[0])
}

func TestEndRun_NoFrames(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()})
	require.NoError(t, b.StartRun(testRun()))
	assert.ErrorIs(t, b.EndRun(&core.RunEnd{}), ErrNoFrames)
	assert.Empty(t, b.GetExportedFilePath())
}

func TestExportFileName(t *testing.T) {
	b := New(config.MemoryConfig{})
	require.NoError(t, b.StartRun(testRun()))
	assert.Equal(t, "Gulf_of_Aden_20260301_123000.json", b.ExportFileName())

	b = New(config.MemoryConfig{CompressOutput: true})
	require.NoError(t, b.StartRun(testRun()))
	assert.Equal(t, "Gulf_of_Aden_20260301_123000.json.gz", b.ExportFileName())
}

func TestEndRun_ExportsRoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		t.Run(map[bool]string{false: "plain", true: "gzip"}[compress], func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "nested", "out")
			b := New(config.MemoryConfig{OutputDir: dir, CompressOutput: compress})
			s, frames := runSim(t)

			require.NoError(t, b.StartRun(testRun()))
			for i, f := range frames {
				require.NoError(t, b.RecordFrame(i, f))
			}
			require.NoError(t, b.EndRun(&core.RunEnd{
				CurrentSimTime:     s.CurrentSimTime(),
				CurrentFrameNumber: s.CurrentFrameNumber(),
			}))

			path := b.GetExportedFilePath()
			require.NotEmpty(t, path)
			assert.True(t, strings.HasPrefix(path, dir))
			_, err := os.Stat(path)
			require.NoError(t, err)

			e, err := v1.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, "Gulf of Aden", e.RunName)
			assert.Equal(t, "baseline", e.Tag)
			require.NotNil(t, e.Seed)
			assert.Equal(t, int64(7), *e.Seed)

			restored, err := v1.Restore(e, sim.Dependencies{})
			require.NoError(t, err)
			assert.Equal(t, len(frames), restored.FrameCount())
			assert.Equal(t, s.CurrentSimTime(), restored.CurrentSimTime())
			assert.Equal(t, s.CurrentFrameNumber(), restored.CurrentFrameNumber())
			last := restored.Frames()[restored.FrameCount()-1]
			assert.Equal(t, frames[len(frames)-1].Stats, last.Stats)
			assert.Equal(t, frames[len(frames)-1].Total(), last.Total())
		})
	}
}

func TestEndRun_ClampsFrameNumber(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()})
	require.NoError(t, b.StartRun(testRun()))
	require.NoError(t, b.RecordFrame(0, sim.NewFrame(0, true)))
	require.NoError(t, b.RecordFrame(1, sim.NewFrame(5, true)))

	require.NoError(t, b.EndRun(&core.RunEnd{CurrentSimTime: 5, CurrentFrameNumber: 9, Canceled: true}))

	e, err := v1.ReadFile(b.GetExportedFilePath())
	require.NoError(t, err)
	assert.Equal(t, 1, *e.CurrentFrameNumber)
	assert.Equal(t, 5, *e.CurrentSimTime)
}
