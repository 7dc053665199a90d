// pkg/core/initdata.go
package core

import (
	"fmt"
	"strings"
)

// Default initial conditions: one simulated day in five minute steps on a
// 100 row by 400 column grid.
const (
	DefaultRunTime  = 24 * 60
	DefaultTimeStep = 5
	DefaultRows     = 100
	DefaultCols     = 400

	DefaultCargoSpawn  = 0.5
	DefaultPatrolSpawn = 0.25
	DefaultPirateSpawn = 0.4
)

// ProbabilityCell is the conditional probability that a spawning entity
// enters at one boundary index.
type ProbabilityCell struct {
	Index          int     `json:"index" validate:"gte=0"`
	Probability    float64 `json:"probability" validate:"gte=0,lte=1"`
	ModifiedByUser bool    `json:"modifiedByUser"`
}

// UniformCells returns n cells with equal probability.
func UniformCells(n int) []ProbabilityCell {
	if n <= 0 {
		return nil
	}
	cells := make([]ProbabilityCell, n)
	for i := range cells {
		cells[i] = ProbabilityCell{Index: i, Probability: 1 / float64(n)}
	}
	return cells
}

// InitSimData holds everything that is fixed once a run has started.
type InitSimData struct {
	SimRunTime       int    `json:"simRunTime" validate:"gt=0"`
	SimTimeStep      int    `json:"simTimeStep" validate:"gt=0"`
	SimDimensions    [2]int `json:"simDimensions" validate:"dive,gt=0"`
	ConsiderDayNight bool   `json:"considerDayNight"`

	DayCargoSpawn    float64 `json:"dayCargoSpawn" validate:"gte=0,lte=1"`
	DayPatrolSpawn   float64 `json:"dayPatrolSpawn" validate:"gte=0,lte=1"`
	DayPirateSpawn   float64 `json:"dayPirateSpawn" validate:"gte=0,lte=1"`
	NightCargoSpawn  float64 `json:"nightCargoSpawn" validate:"gte=0,lte=1"`
	NightPatrolSpawn float64 `json:"nightPatrolSpawn" validate:"gte=0,lte=1"`
	NightPirateSpawn float64 `json:"nightPirateSpawn" validate:"gte=0,lte=1"`

	DayCargoProbs    []ProbabilityCell `json:"dayCargoProbs" validate:"required,dive"`
	DayPatrolProbs   []ProbabilityCell `json:"dayPatrolProbs" validate:"required,dive"`
	DayPirateProbs   []ProbabilityCell `json:"dayPirateProbs" validate:"required,dive"`
	NightCargoProbs  []ProbabilityCell `json:"nightCargoProbs" validate:"required,dive"`
	NightPatrolProbs []ProbabilityCell `json:"nightPatrolProbs" validate:"required,dive"`
	NightPirateProbs []ProbabilityCell `json:"nightPirateProbs" validate:"required,dive"`
}

// DefaultInitSimData returns the default conditions with uniform cell lists.
func DefaultInitSimData() InitSimData {
	d := InitSimData{
		SimRunTime:       DefaultRunTime,
		SimTimeStep:      DefaultTimeStep,
		DayCargoSpawn:    DefaultCargoSpawn,
		DayPatrolSpawn:   DefaultPatrolSpawn,
		DayPirateSpawn:   DefaultPirateSpawn,
		NightCargoSpawn:  DefaultCargoSpawn,
		NightPatrolSpawn: DefaultPatrolSpawn,
		NightPirateSpawn: DefaultPirateSpawn,
	}
	d.ResetCells(DefaultRows, DefaultCols)
	return d
}

// ResetCells sets the grid dimensions and rebuilds every cell list as uniform.
// Cargo and Patrol lists cover rows, Pirate lists cover columns.
func (d *InitSimData) ResetCells(rows, cols int) {
	d.SimDimensions = [2]int{rows, cols}
	d.DayCargoProbs = UniformCells(rows)
	d.DayPatrolProbs = UniformCells(rows)
	d.DayPirateProbs = UniformCells(cols)
	d.NightCargoProbs = UniformCells(rows)
	d.NightPatrolProbs = UniformCells(rows)
	d.NightPirateProbs = UniformCells(cols)
}

// Rows is the grid height.
func (d InitSimData) Rows() int { return d.SimDimensions[0] }

// Cols is the grid width.
func (d InitSimData) Cols() int { return d.SimDimensions[1] }

// EdgeLength is the number of boundary cells a kind can enter through.
func (d InitSimData) EdgeLength(k ShipKind) int {
	if k == KindPirate {
		return d.Cols()
	}
	return d.Rows()
}

// SpawnProbability returns the per-tick spawn chance for k. Captures never spawn.
func (d *InitSimData) SpawnProbability(k ShipKind, day bool) float64 {
	if p := d.SpawnRef(k, day); p != nil {
		return *p
	}
	return 0
}

// SpawnRef points at the spawn probability field for k, or nil for Capture.
func (d *InitSimData) SpawnRef(k ShipKind, day bool) *float64 {
	switch {
	case k == KindCargo && day:
		return &d.DayCargoSpawn
	case k == KindCargo:
		return &d.NightCargoSpawn
	case k == KindPatrol && day:
		return &d.DayPatrolSpawn
	case k == KindPatrol:
		return &d.NightPatrolSpawn
	case k == KindPirate && day:
		return &d.DayPirateSpawn
	case k == KindPirate:
		return &d.NightPirateSpawn
	}
	return nil
}

// Cells returns the boundary probability list for k.
func (d *InitSimData) Cells(k ShipKind, day bool) []ProbabilityCell {
	if c := d.CellsRef(k, day); c != nil {
		return *c
	}
	return nil
}

// CellsRef points at the probability list field for k, or nil for Capture.
func (d *InitSimData) CellsRef(k ShipKind, day bool) *[]ProbabilityCell {
	switch {
	case k == KindCargo && day:
		return &d.DayCargoProbs
	case k == KindCargo:
		return &d.NightCargoProbs
	case k == KindPatrol && day:
		return &d.DayPatrolProbs
	case k == KindPatrol:
		return &d.NightPatrolProbs
	case k == KindPirate && day:
		return &d.DayPirateProbs
	case k == KindPirate:
		return &d.NightPirateProbs
	}
	return nil
}

// Clone returns a deep copy.
func (d InitSimData) Clone() InitSimData {
	c := d
	for _, day := range []bool{true, false} {
		for _, k := range SpawnKinds {
			ref := c.CellsRef(k, day)
			*ref = append([]ProbabilityCell(nil), *ref...)
		}
	}
	return c
}

// String renders the scalar settings, one per line, each prefixed by indent.
func (d InitSimData) String(indent string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%sSim run time      : %d minutes\n", indent, d.SimRunTime)
	fmt.Fprintf(&b, "%sSim time step     : %d minutes\n", indent, d.SimTimeStep)
	fmt.Fprintf(&b, "%sSim dimensions    : [%d, %d]\n", indent, d.Rows(), d.Cols())
	fmt.Fprintf(&b, "%sConsider daylight : %t\n", indent, d.ConsiderDayNight)
	fmt.Fprintf(&b, "%sDay spawn         : cargo %.2f patrol %.2f pirate %.2f\n",
		indent, d.DayCargoSpawn, d.DayPatrolSpawn, d.DayPirateSpawn)
	if d.ConsiderDayNight {
		fmt.Fprintf(&b, "%sNight spawn       : cargo %.2f patrol %.2f pirate %.2f\n",
			indent, d.NightCargoSpawn, d.NightPatrolSpawn, d.NightPirateSpawn)
	}
	return b.String()
}
