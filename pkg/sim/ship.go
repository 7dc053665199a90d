package sim

import (
	"fmt"
	"slices"
	"strings"

	"github.com/piracysim/piracysim/pkg/core"
)

// Vec is an integer grid offset or position. Canvas orientation: y grows south.
type Vec struct {
	X, Y int
}

// Add returns v shifted by o.
func (v Vec) Add(o Vec) Vec {
	return Vec{X: v.X + o.X, Y: v.Y + o.Y}
}

func (v Vec) String() string {
	return fmt.Sprintf("(%d, %d)", v.X, v.Y)
}

var (
	North = Vec{X: 0, Y: -1}
	South = Vec{X: 0, Y: 1}
	East  = Vec{X: 1, Y: 0}
	West  = Vec{X: -1, Y: 0}
)

var moveVectors = [core.KindCount]Vec{
	core.KindCargo:   East,
	core.KindPatrol:  {X: 2 * West.X, Y: 0},
	core.KindPirate:  North,
	core.KindCapture: South,
}

// MoveVector is the velocity a kind is created with.
func MoveVector(k core.ShipKind) Vec {
	return moveVectors[k]
}

// Ship is one agent. Kind selects which of the kind-specific fields are live:
// EvadedPirates for Cargo, HasCapture for Pirate, CapturingPirateID for Capture.
type Ship struct {
	ID   int
	Kind core.ShipKind
	Pos  Vec
	Dir  Vec

	EvadedPirates     []int
	HasCapture        bool
	CapturingPirateID int
}

// NewShip creates a ship of kind k heading in the kind's default direction.
func NewShip(k core.ShipKind, id int, pos Vec) *Ship {
	return &Ship{ID: id, Kind: k, Pos: pos, Dir: MoveVector(k)}
}

// Clone returns a deep copy that shares nothing with s.
func (s *Ship) Clone() *Ship {
	c := *s
	c.EvadedPirates = slices.Clone(s.EvadedPirates)
	return &c
}

// Move advances the ship by its direction.
func (s *Ship) Move() {
	s.Pos = s.Pos.Add(s.Dir)
}

// InLooseRange reports whether p lies within r cells of s on both axes.
func (s *Ship) InLooseRange(p Vec, r int) bool {
	dx, dy := abs(p.X-s.Pos.X), abs(p.Y-s.Pos.Y)
	return dx <= r && dy <= r
}

// InStrictRing reports whether p lies exactly r cells away on one axis and
// at most r on the other, the outline of the square rather than its inside.
func (s *Ship) InStrictRing(p Vec, r int) bool {
	dx, dy := abs(p.X-s.Pos.X), abs(p.Y-s.Pos.Y)
	return (dx == r && dy <= r) || (dy == r && dx <= r)
}

// HasEvaded reports whether this cargo already evaded the pirate.
func (s *Ship) HasEvaded(pirateID int) bool {
	return slices.Contains(s.EvadedPirates, pirateID)
}

// PerformAction runs the kind's per-tick behavior against f.
func (s *Ship) PerformAction(f *Frame, b Bounds, stats *core.Statistics) {
	actions[s.Kind](s, f, b, stats)
}

// String renders the ship over several lines, each prefixed by indent.
func (s *Ship) String(indent string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%sShip Type      : %s\n", indent, s.Kind)
	fmt.Fprintf(&b, "%sUnique ID      : %d\n", indent, s.ID)
	fmt.Fprintf(&b, "%sPosition       : %s\n", indent, s.Pos)
	fmt.Fprintf(&b, "%sMove Direction : %s\n", indent, s.Dir)
	switch s.Kind {
	case core.KindCargo:
		if len(s.EvadedPirates) > 0 {
			fmt.Fprintf(&b, "%sEvaded         : %v\n", indent, s.EvadedPirates)
		}
	case core.KindPirate:
		fmt.Fprintf(&b, "%sHas Capture    : %t\n", indent, s.HasCapture)
	case core.KindCapture:
		fmt.Fprintf(&b, "%sPirate UID     : %d\n", indent, s.CapturingPirateID)
	}
	return b.String()
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Bounds is the half-open rectangle [MinX, MaxX) x [MinY, MaxY).
type Bounds struct {
	MinX, MaxX int
	MinY, MaxY int
}

// GridBounds covers a grid of the given rows and columns.
func GridBounds(rows, cols int) Bounds {
	return Bounds{MinX: 0, MaxX: cols, MinY: 0, MaxY: rows}
}

// Contains reports whether p is inside b.
func (b Bounds) Contains(p Vec) bool {
	return p.X >= b.MinX && p.X < b.MaxX && p.Y >= b.MinY && p.Y < b.MaxY
}
