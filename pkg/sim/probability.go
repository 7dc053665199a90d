package sim

import (
	"errors"
	"fmt"
	"math"

	"github.com/piracysim/piracysim/pkg/core"
)

// ProbabilityTolerance is how far a cell list may drift from a sum of 1.
const ProbabilityTolerance = 1e-6

var (
	// ErrNoFreeCells is returned when an edit would leave no cell to absorb
	// the remaining probability.
	ErrNoFreeCells = errors.New("no simulation-controlled cell left in list")
	// ErrCellIndex is returned for an index outside the list.
	ErrCellIndex = errors.New("cell index out of range")
)

// SumProbabilities adds up the probabilities in cells.
func SumProbabilities(cells []core.ProbabilityCell) float64 {
	sum := 0.0
	for _, c := range cells {
		sum += c.Probability
	}
	return sum
}

// Redistribute spreads whatever the user-fixed cells leave over the
// remaining cells in equal parts. A list with no free cells is left as is.
func Redistribute(cells []core.ProbabilityCell) {
	fixed := 0.0
	free := 0
	for _, c := range cells {
		if c.ModifiedByUser {
			fixed += c.Probability
		} else {
			free++
		}
	}
	if free == 0 {
		return
	}
	share := math.Max(0, 1-fixed) / float64(free)
	for i := range cells {
		if !cells[i].ModifiedByUser {
			cells[i].Probability = share
		}
	}
}

// SetCellProbability fixes cell index at p and redistributes the rest. p is
// clamped to [0, 1] and then to whatever the other fixed cells leave over.
// The applied probability is returned. At least one cell must stay free.
func SetCellProbability(cells []core.ProbabilityCell, index int, p float64) (float64, error) {
	if index < 0 || index >= len(cells) {
		return 0, fmt.Errorf("%w: %d of %d", ErrCellIndex, index, len(cells))
	}

	otherFixed := 0.0
	otherFree := 0
	for i, c := range cells {
		if i == index {
			continue
		}
		if c.ModifiedByUser {
			otherFixed += c.Probability
		} else {
			otherFree++
		}
	}
	if otherFree == 0 {
		return 0, fmt.Errorf("fixing cell %d: %w", index, ErrNoFreeCells)
	}

	p = clamp01(p)
	if limit := math.Max(0, 1-otherFixed); p > limit {
		p = limit
	}
	cells[index].Probability = p
	cells[index].ModifiedByUser = true
	Redistribute(cells)
	return p, nil
}

// ClearCellProbability hands cell index back to the simulation.
func ClearCellProbability(cells []core.ProbabilityCell, index int) error {
	if index < 0 || index >= len(cells) {
		return fmt.Errorf("%w: %d of %d", ErrCellIndex, index, len(cells))
	}
	cells[index].ModifiedByUser = false
	Redistribute(cells)
	return nil
}

// NormalizeCells returns a copy of cells repaired to n entries summing to 1.
// Lists of the wrong length are replaced by a uniform list. Probabilities
// are clamped, indices renumbered, and an excess of fixed probability is
// scaled down before the free cells are redistributed.
func NormalizeCells(cells []core.ProbabilityCell, n int) []core.ProbabilityCell {
	if len(cells) != n {
		return core.UniformCells(n)
	}
	out := make([]core.ProbabilityCell, n)
	fixed, total := 0.0, 0.0
	free := 0
	for i, c := range cells {
		c.Index = i
		c.Probability = clamp01(c.Probability)
		if c.ModifiedByUser {
			fixed += c.Probability
		} else {
			free++
		}
		total += c.Probability
		out[i] = c
	}

	if free == 0 {
		if total == 0 {
			return core.UniformCells(n)
		}
		scale(out, 1/total, false)
		return out
	}
	if fixed > 1 {
		scale(out, 1/fixed, true)
	}
	Redistribute(out)
	return out
}

// ValidCells reports whether cells has n entries that sum to 1.
func ValidCells(cells []core.ProbabilityCell, n int) bool {
	return len(cells) == n && math.Abs(SumProbabilities(cells)-1) <= ProbabilityTolerance
}

func scale(cells []core.ProbabilityCell, factor float64, fixedOnly bool) {
	for i := range cells {
		if fixedOnly && !cells[i].ModifiedByUser {
			continue
		}
		cells[i].Probability *= factor
	}
}

func clamp01(p float64) float64 {
	if math.IsNaN(p) {
		return 0
	}
	return math.Min(1, math.Max(0, p))
}
