package v1

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/piracysim/piracysim/pkg/core"
	"github.com/piracysim/piracysim/pkg/sim"
)

// ErrInvalidExport is wrapped by every validation failure.
var ErrInvalidExport = errors.New("invalid export")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the export structure without building anything.
func Validate(e *Export) error {
	if err := validate.Struct(e); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidExport, err)
	}
	return nil
}

// Restore rebuilds a finished simulation from e. Nothing is returned unless
// the whole export is valid.
func Restore(e *Export, deps sim.Dependencies) (*sim.Simulation, error) {
	if err := Validate(e); err != nil {
		return nil, err
	}
	frames := make([]*sim.Frame, 0, len(e.Frames))
	for i, rec := range e.Frames {
		f, err := ToFrame(rec)
		if err != nil {
			return nil, fmt.Errorf("%w: frame %d: %w", ErrInvalidExport, i, err)
		}
		frames = append(frames, f)
	}
	s, err := sim.Restore(e.InitialConditions, frames, *e.CurrentSimTime, *e.CurrentFrameNumber, deps)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidExport, err)
	}
	return s, nil
}

// RunInfo returns the run metadata carried by e. Missing fields stay zero.
func RunInfo(e *Export) *core.Run {
	run := &core.Run{
		Name:       e.RunName,
		Tag:        e.Tag,
		Conditions: e.InitialConditions.Clone(),
	}
	if e.Seed != nil {
		run.Seed = *e.Seed
	}
	if t, err := time.Parse(time.RFC3339, e.CreatedAt); err == nil {
		run.StartTime = t
	}
	return run
}

// ToFrame converts a frame record. Each list must only hold its own kind.
func ToFrame(rec Frame) (*sim.Frame, error) {
	f := sim.NewFrame(rec.FrameTime, rec.IsDayFrame)
	f.Stats = rec.SimStatsData
	lists := []struct {
		kind  core.ShipKind
		ships []Ship
	}{
		{core.KindCargo, rec.CargoList},
		{core.KindPatrol, rec.PatrolList},
		{core.KindPirate, rec.PirateList},
		{core.KindCapture, rec.CaptureList},
	}
	for _, l := range lists {
		for _, s := range l.ships {
			ship, err := ToShip(s)
			if err != nil {
				return nil, err
			}
			if ship.Kind != l.kind {
				return nil, fmt.Errorf("%s %d listed with %s ships", ship.Kind, ship.ID, l.kind)
			}
			f.AddEntity(ship)
		}
	}
	return f, nil
}

// ToShip converts a ship record. Kind-specific fields must be present.
func ToShip(rec Ship) (*sim.Ship, error) {
	kind, err := core.ParseShipKind(rec.ShipType)
	if err != nil {
		return nil, err
	}
	s := sim.NewShip(kind, rec.UniqueID, sim.Vec{X: rec.XPos, Y: rec.YPos})
	switch kind {
	case core.KindCargo:
		if len(rec.EvadedPirates) > 0 {
			s.EvadedPirates = append([]int(nil), rec.EvadedPirates...)
		}
	case core.KindPirate:
		if rec.HasCapture == nil {
			return nil, fmt.Errorf("pirate %d has no hasCapture field", rec.UniqueID)
		}
		s.HasCapture = *rec.HasCapture
		if s.HasCapture {
			s.Dir = sim.South
		}
	case core.KindCapture:
		if rec.PirateUID == nil {
			return nil, fmt.Errorf("capture %d has no pirateUID field", rec.UniqueID)
		}
		s.CapturingPirateID = *rec.PirateUID
	}
	return s, nil
}
