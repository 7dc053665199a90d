package sim

import "github.com/piracysim/piracysim/pkg/core"

// Spawner introduces new ships at the grid boundary.
type Spawner struct {
	Random Random
	IDs    IDAllocator
	Rows   int
	Cols   int
}

// TrySpawnEntity runs one Bernoulli trial for kind k. On success it picks a
// boundary index from cells by inverse CDF and places the new ship one step
// outside the edge, so its first move brings it onto the boundary cell.
// It returns the spawned ship, or nil when nothing spawned.
func (sp Spawner) TrySpawnEntity(f *Frame, k core.ShipKind, spawnProbability float64, cells []core.ProbabilityCell) *Ship {
	if sp.Random.Float64() >= spawnProbability {
		return nil
	}
	index, ok := pickCell(cells, sp.Random.Float64())
	if !ok {
		return nil
	}
	pos, ok := SpawnPosition(k, index, sp.Rows, sp.Cols)
	if !ok {
		return nil
	}
	s := NewShip(k, sp.IDs.NextID(), pos)
	f.AddEntity(s)
	f.Stats.RecordEntered(k)
	return s
}

// pickCell returns the index of the first cell whose cumulative probability
// reaches r. A list that sums to less than r selects nothing.
func pickCell(cells []core.ProbabilityCell, r float64) (int, bool) {
	sum := 0.0
	for _, c := range cells {
		if sum+c.Probability >= r {
			return c.Index, true
		}
		sum += c.Probability
	}
	return 0, false
}

// SpawnPosition is where a ship of kind k entering at boundary index starts.
// Cargo enters from the west edge, Patrol from the east edge (both at a row),
// Pirate from the south edge at a column. Captures never spawn.
func SpawnPosition(k core.ShipKind, index, rows, cols int) (Vec, bool) {
	dir := MoveVector(k)
	switch k {
	case core.KindCargo:
		return Vec{X: 0 - dir.X, Y: index}, true
	case core.KindPatrol:
		return Vec{X: cols - 1 - dir.X, Y: index}, true
	case core.KindPirate:
		return Vec{X: index, Y: rows - 1 - dir.Y}, true
	}
	return Vec{}, false
}
