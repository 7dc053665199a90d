// pkg/core/stats.go
package core

// Statistics holds the cumulative counters of a run as of one frame.
// Every frame carries its own copy so replay can show any point in time.
type Statistics struct {
	CargosEntered     int `json:"cargosEntered"`
	CargosExited      int `json:"cargosExited"`
	PatrolsEntered    int `json:"patrolsEntered"`
	PatrolsExited     int `json:"patrolsExited"`
	PiratesEntered    int `json:"piratesEntered"`
	PiratesExited     int `json:"piratesExited"`
	CapturesExited    int `json:"capturesExited"`
	PiratesDefeated   int `json:"piratesDefeated"`
	CargosCaptured    int `json:"cargosCaptured"`
	CapturesRescued   int `json:"capturesRescued"`
	EvadesNotCaptured int `json:"evadesNotCaptured"`
	EvadesCaptured    int `json:"evadesCaptured"`
}

// RecordEntered counts a boundary spawn. Captures never spawn and are ignored.
func (s *Statistics) RecordEntered(k ShipKind) {
	switch k {
	case KindCargo:
		s.CargosEntered++
	case KindPatrol:
		s.PatrolsEntered++
	case KindPirate:
		s.PiratesEntered++
	}
}

// RecordExited counts an entity leaving the grid.
func (s *Statistics) RecordExited(k ShipKind) {
	switch k {
	case KindCargo:
		s.CargosExited++
	case KindPatrol:
		s.PatrolsExited++
	case KindPirate:
		s.PiratesExited++
	case KindCapture:
		s.CapturesExited++
	}
}

// Entered returns the entered counter for k.
func (s Statistics) Entered(k ShipKind) int {
	switch k {
	case KindCargo:
		return s.CargosEntered
	case KindPatrol:
		return s.PatrolsEntered
	case KindPirate:
		return s.PiratesEntered
	}
	return 0
}

// Exited returns the exited counter for k.
func (s Statistics) Exited(k ShipKind) int {
	switch k {
	case KindCargo:
		return s.CargosExited
	case KindPatrol:
		return s.PatrolsExited
	case KindPirate:
		return s.PiratesExited
	case KindCapture:
		return s.CapturesExited
	}
	return 0
}

// NotBelow reports whether every counter in s is at least the matching
// counter in prev. Counters never decrease between consecutive frames.
func (s Statistics) NotBelow(prev Statistics) bool {
	return s.CargosEntered >= prev.CargosEntered &&
		s.CargosExited >= prev.CargosExited &&
		s.PatrolsEntered >= prev.PatrolsEntered &&
		s.PatrolsExited >= prev.PatrolsExited &&
		s.PiratesEntered >= prev.PiratesEntered &&
		s.PiratesExited >= prev.PiratesExited &&
		s.CapturesExited >= prev.CapturesExited &&
		s.PiratesDefeated >= prev.PiratesDefeated &&
		s.CargosCaptured >= prev.CargosCaptured &&
		s.CapturesRescued >= prev.CapturesRescued &&
		s.EvadesNotCaptured >= prev.EvadesNotCaptured &&
		s.EvadesCaptured >= prev.EvadesCaptured
}
