package v1

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piracysim/piracysim/pkg/core"
	"github.com/piracysim/piracysim/pkg/sim"
)

func finishedSim(t *testing.T, seed int64) *sim.Simulation {
	t.Helper()
	d := core.DefaultInitSimData()
	d.SimRunTime = 400
	d.ResetCells(15, 30)
	d.DayCargoSpawn = 0.9
	d.DayPirateSpawn = 0.9
	d.DayPatrolSpawn = 0.5
	s, err := sim.New(d, sim.Dependencies{IDs: sim.NewCounter(0), Random: sim.NewRandom(seed)})
	require.NoError(t, err)
	for !s.Tick() {
	}
	return s
}

func TestBuildShip_KindFields(t *testing.T) {
	cargo := sim.NewShip(core.KindCargo, 1, sim.Vec{X: 2, Y: 3})
	cargo.EvadedPirates = []int{4}
	pirate := sim.NewShip(core.KindPirate, 4, sim.Vec{X: 5, Y: 6})
	capture := sim.NewShip(core.KindCapture, 7, sim.Vec{X: 8, Y: 9})
	capture.CapturingPirateID = 4

	data, err := json.Marshal([]Ship{BuildShip(cargo), BuildShip(pirate), BuildShip(capture)})
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"shipType":"Cargo","xPos":2,"yPos":3,"UniqueID":1,"evadedPirates":[4]},
		{"shipType":"Pirate","xPos":5,"yPos":6,"UniqueID":4,"hasCapture":false},
		{"shipType":"Capture","xPos":8,"yPos":9,"UniqueID":7,"pirateUID":4}
	]`, string(data))
}

func TestBuild_TopLevelKeys(t *testing.T) {
	s := finishedSim(t, 1)
	e := Build(FromSimulation(s, &core.Run{Name: "gulf", Seed: 1}))

	data, err := json.Marshal(e)
	require.NoError(t, err)
	var root map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &root))
	for _, key := range []string{"currentSimTime", "currentFrameNumber", "initialConditions", "frames", "exportVersion", "runName", "seed"} {
		assert.Contains(t, root, key)
	}

	var frames []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(root["frames"], &frames))
	require.Len(t, frames, s.FrameCount())
	for _, key := range []string{"frameTime", "isDayFrame", "cargoList", "patrolList", "pirateList", "captureList", "simStatsData"} {
		assert.Contains(t, frames[0], key)
	}
	assert.JSONEq(t, "[]", string(frames[0]["cargoList"]))
}

func TestRoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		t.Run(map[bool]string{false: "plain", true: "gzip"}[compress], func(t *testing.T) {
			src := finishedSim(t, 77)
			src.SeekFrame(10)

			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, ptr(Build(FromSimulation(src, nil))), compress))

			decoded, err := Decode(&buf)
			require.NoError(t, err)
			restored, err := Restore(decoded, sim.Dependencies{})
			require.NoError(t, err)

			assert.Equal(t, src.Frames(), restored.Frames())
			assert.Equal(t, src.Conditions(), restored.Conditions())
			assert.Equal(t, src.CurrentSimTime(), restored.CurrentSimTime())
			assert.Equal(t, 10, restored.CurrentFrameNumber())
			assert.Equal(t, sim.Over, restored.State())
		})
	}
}

func TestWriteReadFile(t *testing.T) {
	src := finishedSim(t, 5)
	path := filepath.Join(t.TempDir(), "run.json.gz")
	require.NoError(t, WriteFile(path, ptr(Build(FromSimulation(src, nil))), true))

	e, err := ReadFile(path)
	require.NoError(t, err)
	restored, err := Restore(e, sim.Dependencies{})
	require.NoError(t, err)
	assert.Equal(t, src.FrameCount(), restored.FrameCount())
}

func TestDecode_ManagerWrapper(t *testing.T) {
	src := finishedSim(t, 3)
	inner, err := json.Marshal(Build(FromSimulation(src, nil)))
	require.NoError(t, err)
	wrapped := `{"singleStepMode":false,"paused":true,"baseFrametime":1000,"frametime":1000,"simulation":` + string(inner) + `}`

	e, err := Decode(bytes.NewBufferString(wrapped))
	require.NoError(t, err)
	restored, err := Restore(e, sim.Dependencies{})
	require.NoError(t, err)
	assert.Equal(t, src.FrameCount(), restored.FrameCount())
}

func TestRestore_RejectsMalformed(t *testing.T) {
	base := func() map[string]any {
		src := finishedSim(t, 9)
		data, err := json.Marshal(Build(FromSimulation(src, nil)))
		require.NoError(t, err)
		var m map[string]any
		require.NoError(t, json.Unmarshal(data, &m))
		return m
	}
	firstFrame := func(m map[string]any) map[string]any {
		return m["frames"].([]any)[0].(map[string]any)
	}
	lastFrame := func(m map[string]any) map[string]any {
		frames := m["frames"].([]any)
		return frames[len(frames)-1].(map[string]any)
	}

	tests := []struct {
		name   string
		modify func(m map[string]any)
	}{
		{"missing frames", func(m map[string]any) { delete(m, "frames") }},
		{"empty frames", func(m map[string]any) { m["frames"] = []any{} }},
		{"missing frame number", func(m map[string]any) { delete(m, "currentFrameNumber") }},
		{"missing run time", func(m map[string]any) {
			delete(m["initialConditions"].(map[string]any), "simRunTime")
		}},
		{"missing cell list", func(m map[string]any) {
			delete(m["initialConditions"].(map[string]any), "nightPirateProbs")
		}},
		{"probability above one", func(m map[string]any) {
			m["initialConditions"].(map[string]any)["dayCargoSpawn"] = 1.5
		}},
		{"missing list", func(m map[string]any) { delete(firstFrame(m), "captureList") }},
		{"unknown ship type", func(m map[string]any) {
			lastFrame(m)["cargoList"] = []any{map[string]any{"shipType": "Tanker", "xPos": 1, "yPos": 1, "UniqueID": 900}}
		}},
		{"ship in wrong list", func(m map[string]any) {
			lastFrame(m)["cargoList"] = []any{map[string]any{"shipType": "Patrol", "xPos": 1, "yPos": 1, "UniqueID": 900}}
		}},
		{"capture without pirate", func(m map[string]any) {
			lastFrame(m)["captureList"] = []any{map[string]any{"shipType": "Capture", "xPos": 1, "yPos": 1, "UniqueID": 900}}
		}},
		{"pirate without capture flag", func(m map[string]any) {
			lastFrame(m)["pirateList"] = []any{map[string]any{"shipType": "Pirate", "xPos": 1, "yPos": 1, "UniqueID": 900}}
		}},
		{"frame number out of range", func(m map[string]any) { m["currentFrameNumber"] = 10000 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := base()
			tt.modify(m)
			data, err := json.Marshal(m)
			require.NoError(t, err)

			e, err := Decode(bytes.NewReader(data))
			if err != nil {
				assert.ErrorIs(t, err, ErrInvalidExport)
				return
			}
			s, err := Restore(e, sim.Dependencies{})
			assert.ErrorIs(t, err, ErrInvalidExport)
			assert.Nil(t, s)
		})
	}
}

func TestDecode_NotJSON(t *testing.T) {
	_, err := Decode(bytes.NewBufferString("frames: 1"))
	assert.ErrorIs(t, err, ErrInvalidExport)
}

func ptr[T any](v T) *T { return &v }

func TestRunInfo(t *testing.T) {
	src := finishedSim(t, 4)
	run := &core.Run{Name: "gulf", Tag: "night", Seed: 4}
	e := Build(FromSimulation(src, run))

	got := RunInfo(&e)
	assert.Equal(t, "gulf", got.Name)
	assert.Equal(t, "night", got.Tag)
	assert.Equal(t, int64(4), got.Seed)
	assert.False(t, got.StartTime.IsZero())
	assert.Equal(t, src.Conditions().SimRunTime, got.Conditions.SimRunTime)

	empty := RunInfo(&Export{})
	assert.Zero(t, empty.Seed)
	assert.True(t, empty.StartTime.IsZero())
}
