package sim

import "github.com/piracysim/piracysim/pkg/core"

// Interaction ranges in grid cells.
const (
	evadeRing        = 4
	patrolRange      = 3
	pirateDayRange   = 3
	pirateNightRange = 2
)

type action func(s *Ship, f *Frame, b Bounds, stats *core.Statistics)

// actions is indexed by kind. Every kind must have an entry.
var actions = [core.KindCount]action{
	core.KindCargo:   cargoAction,
	core.KindPatrol:  patrolAction,
	core.KindPirate:  pirateAction,
	core.KindCapture: captureAction,
}

// actionOrder is the order kinds act in during Advance.
var actionOrder = [core.KindCount]core.ShipKind{
	core.KindPatrol,
	core.KindPirate,
	core.KindCargo,
	core.KindCapture,
}

// cargoAction moves the cargo one cell north when a pirate it has not yet
// evaded sits on the ring at evadeRing. At most one evasion per tick.
func cargoAction(s *Ship, f *Frame, b Bounds, _ *core.Statistics) {
	north := s.Pos.Add(North)
	if !b.Contains(north) {
		return
	}
	for _, p := range f.Pirates {
		if s.InStrictRing(p.Pos, evadeRing) && !s.HasEvaded(p.ID) {
			s.Pos = north
			s.EvadedPirates = append(s.EvadedPirates, p.ID)
			return
		}
	}
}

// patrolAction rescues every capture in range, then defeats every pirate in range.
func patrolAction(s *Ship, f *Frame, _ Bounds, stats *core.Statistics) {
	for _, c := range snapshot(f.Captures) {
		if !s.InLooseRange(c.Pos, patrolRange) {
			continue
		}
		// The capturing pirate is removed wherever it is. Another patrol
		// may already have taken it this tick.
		if f.RemoveEntity(c.CapturingPirateID) {
			stats.PiratesDefeated++
		}
		f.ConvertCaptureToCargo(c)
		stats.CapturesRescued++
	}

	for _, p := range snapshot(f.Pirates) {
		if !s.InLooseRange(p.Pos, patrolRange) {
			continue
		}
		if f.RemoveEntity(p.ID) {
			stats.PiratesDefeated++
		}
	}
}

// pirateAction captures the first cargo in range. Night shortens the range.
func pirateAction(s *Ship, f *Frame, _ Bounds, stats *core.Statistics) {
	if s.HasCapture {
		return
	}
	r := pirateDayRange
	if !f.IsDaylight {
		r = pirateNightRange
	}
	for _, cargo := range f.Cargos {
		if !s.InLooseRange(cargo.Pos, r) {
			continue
		}
		for _, evaded := range cargo.EvadedPirates {
			if evaded == s.ID {
				stats.EvadesCaptured++
			} else {
				stats.EvadesNotCaptured++
			}
		}
		f.ConvertCargoToCapture(cargo, s)
		s.HasCapture = true
		s.Pos = cargo.Pos
		s.Dir = South
		stats.CargosCaptured++
		return
	}
}

func captureAction(*Ship, *Frame, Bounds, *core.Statistics) {}

func snapshot(ships []*Ship) []*Ship {
	return append([]*Ship(nil), ships...)
}
