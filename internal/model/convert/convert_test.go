package convert

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/piracysim/piracysim/internal/geo"
	"github.com/piracysim/piracysim/internal/model"
	"github.com/piracysim/piracysim/pkg/core"
	"github.com/piracysim/piracysim/pkg/sim"
)

func testFrame() *sim.Frame {
	f := sim.NewFrame(35, false)
	cargo := sim.NewShip(core.KindCargo, 1, sim.Vec{X: 4, Y: 2})
	cargo.EvadedPirates = []int{3, 9}
	f.AddEntity(cargo)
	f.AddEntity(sim.NewShip(core.KindCargo, 2, sim.Vec{X: 0, Y: 5}))
	f.AddEntity(sim.NewShip(core.KindPatrol, 4, sim.Vec{X: 18, Y: 1}))
	free := sim.NewShip(core.KindPirate, 3, sim.Vec{X: 7, Y: 6})
	f.AddEntity(free)
	holding := sim.NewShip(core.KindPirate, 9, sim.Vec{X: 8, Y: 3})
	holding.HasCapture = true
	holding.Dir = sim.South
	f.AddEntity(holding)
	capture := sim.NewShip(core.KindCapture, 5, sim.Vec{X: 8, Y: 3})
	capture.CapturingPirateID = 9
	f.AddEntity(capture)
	f.Stats = core.Statistics{CargosEntered: 3, PiratesEntered: 2, CargosCaptured: 1}
	return f
}

func TestRunRoundTrip(t *testing.T) {
	conditions := core.DefaultInitSimData()
	conditions.ResetCells(10, 20)
	conditions.ConsiderDayNight = true

	run := core.Run{
		Name:             "test",
		Tag:              "night",
		Seed:             42,
		StartTime:        time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Conditions:       conditions,
		ExtensionVersion: "1.0.0",
	}

	row := CoreToRun(run)
	assert.Equal(t, 10, row.Rows)
	assert.Equal(t, 20, row.Cols)
	assert.Equal(t, 1440, row.RunTime)
	assert.True(t, row.ConsiderDayNight)

	row.ID = 12
	back, err := RunToCore(row)
	require.NoError(t, err)
	run.ID = 12
	assert.Equal(t, run, back)
}

func TestRunToCore_InvalidConditions(t *testing.T) {
	_, err := RunToCore(model.Run{InitialConditions: datatypes.JSON("{")})
	assert.Error(t, err)
}

func TestApplyRunEnd(t *testing.T) {
	var row model.Run
	end := time.Date(2026, 1, 2, 4, 0, 0, 0, time.UTC)
	ApplyRunEnd(&row, core.RunEnd{CurrentSimTime: 600, CurrentFrameNumber: 120, Canceled: true, EndTime: end})

	assert.Equal(t, 600, row.CurrentSimTime)
	assert.Equal(t, 120, row.CurrentFrameNumber)
	assert.True(t, row.Canceled)
	assert.Equal(t, sql.NullTime{Time: end, Valid: true}, row.EndTime)

	ApplyRunEnd(&row, core.RunEnd{})
	assert.False(t, row.EndTime.Valid)
}

func TestFrameToModel(t *testing.T) {
	f := testFrame()
	row := FrameToModel(7, 3, f)

	assert.Equal(t, uint(7), row.RunID)
	assert.Equal(t, 3, row.FrameNumber)
	assert.Equal(t, 35, row.FrameTime)
	assert.False(t, row.IsDaylight)
	assert.Equal(t, 6, row.ShipCount)
	assert.Equal(t, f.Stats, row.Stats)
}

func TestShipToModel_KindFields(t *testing.T) {
	f := testFrame()
	rows := ShipsToModel(1, 0, f, nil)
	require.Len(t, rows, 6)

	byID := map[int]model.ShipState{}
	for _, r := range rows {
		byID[r.ShipID] = r
	}

	assert.Equal(t, "Cargo", byID[1].Kind)
	assert.JSONEq(t, `[3, 9]`, string(byID[1].EvadedPirates))
	assert.JSONEq(t, `[]`, string(byID[2].EvadedPirates))
	assert.False(t, byID[1].CapturingPirateID.Valid)

	assert.Equal(t, "Pirate", byID[9].Kind)
	assert.True(t, byID[9].HasCapture)
	assert.False(t, byID[3].HasCapture)

	assert.Equal(t, "Capture", byID[5].Kind)
	assert.Equal(t, sql.NullInt64{Int64: 9, Valid: true}, byID[5].CapturingPirateID)

	assert.Equal(t, 8, byID[5].X)
	assert.Equal(t, 3, byID[5].Y)
	assert.True(t, byID[5].Position.IsEmpty(), "no grid, no position")
}

func TestShipToModel_Position(t *testing.T) {
	grid, err := geo.NewGrid(43, 15, 1852)
	require.NoError(t, err)

	s := sim.NewShip(core.KindPatrol, 4, sim.Vec{X: 18, Y: 1})
	row := ShipToModel(1, 0, s, grid)

	require.False(t, row.Position.IsEmpty())
	x, y, ok := grid.PointToCell(row.Position)
	require.True(t, ok)
	assert.Equal(t, 18, x)
	assert.Equal(t, 1, y)
}

func TestFrameRoundTrip(t *testing.T) {
	f := testFrame()
	back, err := FrameToCore(FrameToModel(1, 7, f), ShipsToModel(1, 7, f, nil))
	require.NoError(t, err)

	assert.Equal(t, f.Time, back.Time)
	assert.Equal(t, f.IsDaylight, back.IsDaylight)
	assert.Equal(t, f.Stats, back.Stats)
	for k := range core.KindCount {
		assert.Equal(t, f.Ships(k), back.Ships(k), k.String())
	}
}

func TestShipToCore_Errors(t *testing.T) {
	_, err := ShipToCore(model.ShipState{Kind: "Tanker"})
	assert.Error(t, err)

	_, err = ShipToCore(model.ShipState{Kind: "Capture", ShipID: 5})
	assert.ErrorContains(t, err, "capture without pirate")

	_, err = ShipToCore(model.ShipState{Kind: "Cargo", EvadedPirates: datatypes.JSON("{")})
	assert.Error(t, err)

	_, err = FrameToCore(model.FrameState{FrameNumber: 2}, []model.ShipState{{Kind: "Tanker"}})
	assert.ErrorContains(t, err, "frame 2")
}
