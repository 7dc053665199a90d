package sim

import (
	"fmt"
	"strings"

	"github.com/piracysim/piracysim/pkg/core"
)

// Frame is the full world state at one time step. Once a frame has been
// appended to a simulation's history it is not modified again.
type Frame struct {
	Time       int
	IsDaylight bool

	Cargos   []*Ship
	Patrols  []*Ship
	Pirates  []*Ship
	Captures []*Ship

	Stats core.Statistics
}

// NewFrame returns an empty frame.
func NewFrame(time int, daylight bool) *Frame {
	return &Frame{Time: time, IsDaylight: daylight}
}

// Next returns a deep copy of f tagged with a new time and daylight flag.
// List order is preserved so iteration stays deterministic.
func (f *Frame) Next(time int, daylight bool) *Frame {
	n := &Frame{Time: time, IsDaylight: daylight, Stats: f.Stats}
	for k := range core.KindCount {
		src := f.Ships(k)
		if len(src) == 0 {
			continue
		}
		dst := make([]*Ship, len(src))
		for i, s := range src {
			dst[i] = s.Clone()
		}
		*n.list(k) = dst
	}
	return n
}

func (f *Frame) list(k core.ShipKind) *[]*Ship {
	switch k {
	case core.KindCargo:
		return &f.Cargos
	case core.KindPatrol:
		return &f.Patrols
	case core.KindPirate:
		return &f.Pirates
	case core.KindCapture:
		return &f.Captures
	}
	panic(fmt.Sprintf("sim: no entity list for %s", k))
}

// Ships returns the live list for k.
func (f *Frame) Ships(k core.ShipKind) []*Ship {
	return *f.list(k)
}

// Count returns how many ships of kind k are in the frame.
func (f *Frame) Count(k core.ShipKind) int {
	return len(f.Ships(k))
}

// Total returns the number of ships of every kind.
func (f *Frame) Total() int {
	return len(f.Cargos) + len(f.Patrols) + len(f.Pirates) + len(f.Captures)
}

// Find returns the ship with the given id, or nil.
func (f *Frame) Find(id int) *Ship {
	for k := range core.KindCount {
		for _, s := range f.Ships(k) {
			if s.ID == id {
				return s
			}
		}
	}
	return nil
}

// AddEntity appends s to the list matching its kind.
func (f *Frame) AddEntity(s *Ship) {
	l := f.list(s.Kind)
	*l = append(*l, s)
}

// RemoveEntity drops every ship with the given id from all lists and
// reports whether anything was removed. Removing an absent id is a no-op.
func (f *Frame) RemoveEntity(id int) bool {
	removed := false
	for k := range core.KindCount {
		l := f.list(k)
		kept := (*l)[:0]
		for _, s := range *l {
			if s.ID == id {
				removed = true
				continue
			}
			kept = append(kept, s)
		}
		clear((*l)[len(kept):])
		*l = compact(kept)
	}
	return removed
}

// ConvertCaptureToCargo replaces a capture with a fresh cargo at the same
// position and with the same id. The capturing pirate is left alone.
func (f *Frame) ConvertCaptureToCargo(capture *Ship) *Ship {
	f.RemoveEntity(capture.ID)
	cargo := NewShip(core.KindCargo, capture.ID, capture.Pos)
	f.AddEntity(cargo)
	return cargo
}

// ConvertCargoToCapture replaces a cargo with a capture held by pirate.
func (f *Frame) ConvertCargoToCapture(cargo, pirate *Ship) *Ship {
	f.RemoveEntity(cargo.ID)
	capture := NewShip(core.KindCapture, cargo.ID, cargo.Pos)
	capture.CapturingPirateID = pirate.ID
	f.AddEntity(capture)
	return capture
}

// Advance runs one tick on the frame: every ship moves, ships that left b
// are counted and pruned, then the survivors act kind by kind.
func (f *Frame) Advance(b Bounds, stats *core.Statistics) {
	for k := range core.KindCount {
		for _, s := range f.Ships(k) {
			s.Move()
		}
	}

	f.RecordExitStatistics(b, stats)
	f.PruneOutsideRange(b)

	for _, k := range actionOrder {
		for _, s := range snapshot(f.Ships(k)) {
			s.PerformAction(f, b, stats)
		}
	}
}

// RecordExitStatistics counts every ship outside b. Call it before pruning.
func (f *Frame) RecordExitStatistics(b Bounds, stats *core.Statistics) {
	for k := range core.KindCount {
		for _, s := range f.Ships(k) {
			if !b.Contains(s.Pos) {
				stats.RecordExited(k)
			}
		}
	}
}

// PruneOutsideRange removes every ship outside b.
func (f *Frame) PruneOutsideRange(b Bounds) {
	for k := range core.KindCount {
		l := f.list(k)
		kept := (*l)[:0]
		for _, s := range *l {
			if b.Contains(s.Pos) {
				kept = append(kept, s)
			}
		}
		clear((*l)[len(kept):])
		*l = compact(kept)
	}
}

// compact keeps empty lists nil so equal frames compare equal.
func compact(ships []*Ship) []*Ship {
	if len(ships) == 0 {
		return nil
	}
	return ships
}

// String renders a summary of the frame, each line prefixed by indent.
// Ships are listed only when verbose is set.
func (f *Frame) String(indent string, verbose bool) string {
	var b strings.Builder
	phase := "day"
	if !f.IsDaylight {
		phase = "night"
	}
	fmt.Fprintf(&b, "%sFrame Time : %d (%s)\n", indent, f.Time, phase)
	fmt.Fprintf(&b, "%sEntities   : cargo %d, patrol %d, pirate %d, capture %d\n",
		indent, len(f.Cargos), len(f.Patrols), len(f.Pirates), len(f.Captures))
	st := f.Stats
	fmt.Fprintf(&b, "%sEntered    : cargo %d, patrol %d, pirate %d\n",
		indent, st.CargosEntered, st.PatrolsEntered, st.PiratesEntered)
	fmt.Fprintf(&b, "%sExited     : cargo %d, patrol %d, pirate %d, capture %d\n",
		indent, st.CargosExited, st.PatrolsExited, st.PiratesExited, st.CapturesExited)
	fmt.Fprintf(&b, "%sActions    : captured %d, rescued %d, defeated %d, evaded %d/%d\n",
		indent, st.CargosCaptured, st.CapturesRescued, st.PiratesDefeated, st.EvadesNotCaptured, st.EvadesCaptured)
	if verbose {
		for k := range core.KindCount {
			for _, s := range f.Ships(k) {
				b.WriteString(s.String(indent + "\t"))
			}
		}
	}
	return b.String()
}
