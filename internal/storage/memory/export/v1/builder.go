package v1

import (
	"time"

	"github.com/piracysim/piracysim/pkg/core"
	"github.com/piracysim/piracysim/pkg/sim"
)

// RunData is everything needed to build an export.
type RunData struct {
	Run                *core.Run
	Conditions         core.InitSimData
	Frames             []*sim.Frame
	CurrentSimTime     int
	CurrentFrameNumber int
}

// FromSimulation collects the export data of s. run may be nil.
func FromSimulation(s *sim.Simulation, run *core.Run) *RunData {
	return &RunData{
		Run:                run,
		Conditions:         s.Conditions(),
		Frames:             s.Frames(),
		CurrentSimTime:     s.CurrentSimTime(),
		CurrentFrameNumber: s.CurrentFrameNumber(),
	}
}

// Build creates an Export from the run data.
func Build(data *RunData) Export {
	simTime := data.CurrentSimTime
	frameNumber := data.CurrentFrameNumber
	export := Export{
		ExportVersion: Version,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
		Simulation: Simulation{
			CurrentSimTime:     &simTime,
			CurrentFrameNumber: &frameNumber,
			InitialConditions:  data.Conditions.Clone(),
			Frames:             make([]Frame, 0, len(data.Frames)),
		},
	}
	if data.Run != nil {
		seed := data.Run.Seed
		export.RunName = data.Run.Name
		export.Tag = data.Run.Tag
		export.Seed = &seed
	}
	for _, f := range data.Frames {
		export.Frames = append(export.Frames, BuildFrame(f))
	}
	return export
}

// BuildFrame converts one frame.
func BuildFrame(f *sim.Frame) Frame {
	return Frame{
		FrameTime:    f.Time,
		IsDayFrame:   f.IsDaylight,
		CargoList:    buildShips(f.Cargos),
		PatrolList:   buildShips(f.Patrols),
		PirateList:   buildShips(f.Pirates),
		CaptureList:  buildShips(f.Captures),
		SimStatsData: f.Stats,
	}
}

func buildShips(ships []*sim.Ship) []Ship {
	out := make([]Ship, 0, len(ships))
	for _, s := range ships {
		out = append(out, BuildShip(s))
	}
	return out
}

// BuildShip converts one ship, filling only the fields of its kind.
func BuildShip(s *sim.Ship) Ship {
	rec := Ship{
		ShipType: s.Kind.String(),
		XPos:     s.Pos.X,
		YPos:     s.Pos.Y,
		UniqueID: s.ID,
	}
	switch s.Kind {
	case core.KindCargo:
		rec.EvadedPirates = append([]int(nil), s.EvadedPirates...)
	case core.KindPirate:
		hasCapture := s.HasCapture
		rec.HasCapture = &hasCapture
	case core.KindCapture:
		pirate := s.CapturingPirateID
		rec.PirateUID = &pirate
	}
	return rec
}
