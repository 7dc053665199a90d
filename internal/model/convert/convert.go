// Package convert provides functions to convert between GORM models and the
// simulation types.
package convert

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"github.com/piracysim/piracysim/internal/geo"
	"github.com/piracysim/piracysim/internal/model"
	"github.com/piracysim/piracysim/pkg/core"
	"github.com/piracysim/piracysim/pkg/sim"
)

// idsToJSON converts a []int to datatypes.JSON for DB storage.
func idsToJSON(ids []int) datatypes.JSON {
	if len(ids) == 0 {
		return datatypes.JSON("[]")
	}
	data, _ := json.Marshal(ids)
	return datatypes.JSON(data)
}

func jsonToIDs(raw datatypes.JSON) ([]int, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var ids []int
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return ids, nil
}

// CoreToRun converts a core.Run to a GORM model.Run.
func CoreToRun(r core.Run) model.Run {
	conditions, _ := json.Marshal(r.Conditions)
	return model.Run{
		Name:              r.Name,
		Tag:               r.Tag,
		Seed:              r.Seed,
		StartTime:         r.StartTime,
		ExtensionVersion:  r.ExtensionVersion,
		RunTime:           r.Conditions.SimRunTime,
		TimeStep:          r.Conditions.SimTimeStep,
		Rows:              r.Conditions.Rows(),
		Cols:              r.Conditions.Cols(),
		ConsiderDayNight:  r.Conditions.ConsiderDayNight,
		InitialConditions: datatypes.JSON(conditions),
	}
}

// RunToCore converts a GORM model.Run back to a core.Run.
func RunToCore(r model.Run) (core.Run, error) {
	run := core.Run{
		ID:               r.ID,
		Name:             r.Name,
		Tag:              r.Tag,
		Seed:             r.Seed,
		StartTime:        r.StartTime,
		ExtensionVersion: r.ExtensionVersion,
	}
	if err := json.Unmarshal(r.InitialConditions, &run.Conditions); err != nil {
		return run, fmt.Errorf("run %d: invalid initial conditions: %w", r.ID, err)
	}
	return run, nil
}

// ApplyRunEnd copies the end of run data onto r.
func ApplyRunEnd(r *model.Run, end core.RunEnd) {
	r.CurrentSimTime = end.CurrentSimTime
	r.CurrentFrameNumber = end.CurrentFrameNumber
	r.Canceled = end.Canceled
	r.EndTime = sql.NullTime{Time: end.EndTime, Valid: !end.EndTime.IsZero()}
}

// FrameToModel converts a frame to its frame row. Ships are converted
// separately with ShipsToModel.
func FrameToModel(runID uint, number int, f *sim.Frame) model.FrameState {
	return model.FrameState{
		RunID:       runID,
		FrameNumber: number,
		FrameTime:   f.Time,
		IsDaylight:  f.IsDaylight,
		ShipCount:   f.Total(),
		Stats:       f.Stats,
	}
}

// ShipsToModel converts every ship of f, in kind order. grid may be nil, in
// which case positions are left empty.
func ShipsToModel(runID uint, number int, f *sim.Frame, grid *geo.Grid) []model.ShipState {
	out := make([]model.ShipState, 0, f.Total())
	for k := range core.KindCount {
		for _, s := range f.Ships(k) {
			out = append(out, ShipToModel(runID, number, s, grid))
		}
	}
	return out
}

// ShipToModel converts one ship, filling only the fields of its kind.
func ShipToModel(runID uint, number int, s *sim.Ship, grid *geo.Grid) model.ShipState {
	row := model.ShipState{
		RunID:         runID,
		FrameNumber:   number,
		ShipID:        s.ID,
		Kind:          s.Kind.String(),
		X:             s.Pos.X,
		Y:             s.Pos.Y,
		EvadedPirates: datatypes.JSON("[]"),
	}
	if grid != nil {
		row.Position = grid.CellToPoint(s.Pos.X, s.Pos.Y)
	}
	switch s.Kind {
	case core.KindCargo:
		row.EvadedPirates = idsToJSON(s.EvadedPirates)
	case core.KindPirate:
		row.HasCapture = s.HasCapture
	case core.KindCapture:
		row.CapturingPirateID = sql.NullInt64{Int64: int64(s.CapturingPirateID), Valid: true}
	}
	return row
}

// ShipToCore rebuilds a ship from its row.
func ShipToCore(row model.ShipState) (*sim.Ship, error) {
	k, err := core.ParseShipKind(row.Kind)
	if err != nil {
		return nil, err
	}
	s := sim.NewShip(k, row.ShipID, sim.Vec{X: row.X, Y: row.Y})
	switch k {
	case core.KindCargo:
		if s.EvadedPirates, err = jsonToIDs(row.EvadedPirates); err != nil {
			return nil, fmt.Errorf("ship %d: invalid evaded pirates: %w", row.ShipID, err)
		}
	case core.KindPirate:
		s.HasCapture = row.HasCapture
		if s.HasCapture {
			s.Dir = sim.South
		}
	case core.KindCapture:
		if !row.CapturingPirateID.Valid {
			return nil, fmt.Errorf("ship %d: capture without pirate", row.ShipID)
		}
		s.CapturingPirateID = int(row.CapturingPirateID.Int64)
	}
	return s, nil
}

// FrameToCore rebuilds a frame from its row and the rows of its ships.
func FrameToCore(row model.FrameState, ships []model.ShipState) (*sim.Frame, error) {
	f := sim.NewFrame(row.FrameTime, row.IsDaylight)
	f.Stats = row.Stats
	for _, sr := range ships {
		s, err := ShipToCore(sr)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", row.FrameNumber, err)
		}
		f.AddEntity(s)
	}
	return f, nil
}
