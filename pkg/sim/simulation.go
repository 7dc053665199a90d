package sim

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/piracysim/piracysim/pkg/core"
)

const (
	minutesPerDay  = 24 * 60
	minutesPerHalf = 12 * 60
)

// State is the lifecycle phase of a Simulation.
type State int

const (
	Configuring State = iota
	Running
	Over
	Replaying
)

func (s State) String() string {
	switch s {
	case Configuring:
		return "configuring"
	case Running:
		return "running"
	case Over:
		return "over"
	case Replaying:
		return "replaying"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var (
	// ErrConfigFrozen is returned when initial conditions are edited after the first tick.
	ErrConfigFrozen = errors.New("initial conditions are frozen once the simulation has started")
	// ErrInvalidConditions wraps structural problems with initial conditions.
	ErrInvalidConditions = errors.New("invalid initial conditions")
	// ErrUnknownKind is returned when an operation needs a spawning kind.
	ErrUnknownKind = errors.New("kind does not spawn")
	// ErrInvalidHistory is returned by Restore for inconsistent frame histories.
	ErrInvalidHistory = errors.New("invalid frame history")
)

// Dependencies are the collaborators a Simulation needs. Zero values are
// replaced by defaults: a counter starting at 0, a time-seeded source and a
// discarding logger.
type Dependencies struct {
	IDs    IDAllocator
	Random Random
	Logger *slog.Logger
}

func (d Dependencies) withDefaults() Dependencies {
	if d.IDs == nil {
		d.IDs = NewCounter(0)
	}
	if d.Random == nil {
		d.Random = NewRandom(time.Now().UnixNano())
	}
	if d.Logger == nil {
		d.Logger = slog.New(slog.DiscardHandler)
	}
	return d
}

// Simulation owns the initial conditions and the full frame history of one run.
// It is not safe for concurrent use.
type Simulation struct {
	init core.InitSimData

	currentSimTime     int
	currentFrameNumber int
	frames             []*Frame

	state    State
	canceled bool

	ids    IDAllocator
	random Random
	logger *slog.Logger
}

// New returns a simulation in the Configuring state holding a single empty
// frame at time 0. Spawn probabilities are clamped and cell lists repaired;
// non-positive run time, time step or dimensions are rejected.
func New(init core.InitSimData, deps Dependencies) (*Simulation, error) {
	if err := checkStructure(init); err != nil {
		return nil, err
	}
	deps = deps.withDefaults()
	s := &Simulation{
		init:   normalizeConditions(init),
		frames: []*Frame{NewFrame(0, true)},
		ids:    deps.IDs,
		random: deps.Random,
		logger: deps.Logger,
	}
	return s, nil
}

// Restore rebuilds a finished simulation from a stored history. The result
// is in the Over state, ready for replay. The allocator is advanced past the
// largest id found so later spawns stay unique.
func Restore(init core.InitSimData, frames []*Frame, currentSimTime, currentFrameNumber int, deps Dependencies) (*Simulation, error) {
	if err := checkStructure(init); err != nil {
		return nil, err
	}
	for _, k := range core.SpawnKinds {
		for _, day := range []bool{true, false} {
			if !ValidCells(init.Cells(k, day), init.EdgeLength(k)) {
				return nil, fmt.Errorf("%w: %s cell list (day=%t) does not cover the edge or sum to 1", ErrInvalidConditions, k, day)
			}
		}
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: no frames", ErrInvalidHistory)
	}
	if currentFrameNumber < 0 || currentFrameNumber >= len(frames) {
		return nil, fmt.Errorf("%w: frame number %d outside [0, %d)", ErrInvalidHistory, currentFrameNumber, len(frames))
	}
	maxID := -1
	for i, f := range frames {
		if f == nil {
			return nil, fmt.Errorf("%w: frame %d is missing", ErrInvalidHistory, i)
		}
		if i > 0 && f.Time < frames[i-1].Time {
			return nil, fmt.Errorf("%w: frame %d goes back in time", ErrInvalidHistory, i)
		}
		seen := make(map[int]struct{}, f.Total())
		for k := range core.KindCount {
			for _, sh := range f.Ships(k) {
				if sh.Kind != k {
					return nil, fmt.Errorf("%w: frame %d holds a %s in the %s list", ErrInvalidHistory, i, sh.Kind, k)
				}
				if _, dup := seen[sh.ID]; dup {
					return nil, fmt.Errorf("%w: frame %d has duplicate id %d", ErrInvalidHistory, i, sh.ID)
				}
				seen[sh.ID] = struct{}{}
				maxID = max(maxID, sh.ID)
			}
		}
	}

	deps = deps.withDefaults()
	if o, ok := deps.IDs.(idObserver); ok && maxID >= 0 {
		o.Observe(maxID)
	}
	return &Simulation{
		init:               init.Clone(),
		currentSimTime:     currentSimTime,
		currentFrameNumber: currentFrameNumber,
		frames:             frames,
		state:              Over,
		ids:                deps.IDs,
		random:             deps.Random,
		logger:             deps.Logger,
	}, nil
}

func checkStructure(init core.InitSimData) error {
	switch {
	case init.SimRunTime <= 0:
		return fmt.Errorf("%w: run time %d", ErrInvalidConditions, init.SimRunTime)
	case init.SimTimeStep <= 0:
		return fmt.Errorf("%w: time step %d", ErrInvalidConditions, init.SimTimeStep)
	case init.Rows() <= 0 || init.Cols() <= 0:
		return fmt.Errorf("%w: dimensions [%d, %d]", ErrInvalidConditions, init.Rows(), init.Cols())
	}
	return nil
}

func normalizeConditions(init core.InitSimData) core.InitSimData {
	out := init.Clone()
	for _, day := range []bool{true, false} {
		for _, k := range core.SpawnKinds {
			p := out.SpawnRef(k, day)
			*p = clamp01(*p)
			cells := out.CellsRef(k, day)
			*cells = NormalizeCells(*cells, out.EdgeLength(k))
		}
	}
	return out
}

// Tick computes the next frame and reports whether the run is over.
// The first tick freezes the initial conditions. Ticking a finished or
// replaying simulation does nothing and reports true.
func (s *Simulation) Tick() bool {
	switch s.state {
	case Over, Replaying:
		return true
	case Configuring:
		s.state = Running
		s.logger.Debug("simulation started", "runTime", s.init.SimRunTime, "timeStep", s.init.SimTimeStep)
	}

	prev := s.frames[len(s.frames)-1]
	s.currentSimTime += s.init.SimTimeStep
	s.currentFrameNumber++
	day := s.daylightAt(s.currentSimTime)

	f := prev.Next(s.currentSimTime, day)
	sp := s.spawner()
	for _, k := range core.SpawnKinds {
		sp.TrySpawnEntity(f, k, s.init.SpawnProbability(k, day), s.init.Cells(k, day))
	}
	f.Advance(s.Bounds(), &f.Stats)
	s.frames = append(s.frames, f)

	if s.currentSimTime >= s.init.SimRunTime {
		s.state = Over
		s.logger.Debug("simulation over", "time", s.currentSimTime, "frames", len(s.frames))
	}
	return s.state == Over
}

func (s *Simulation) spawner() Spawner {
	return Spawner{Random: s.random, IDs: s.ids, Rows: s.init.Rows(), Cols: s.init.Cols()}
}

func (s *Simulation) daylightAt(t int) bool {
	return !(s.init.ConsiderDayNight && t%minutesPerDay > minutesPerHalf)
}

// Bounds is the playable grid.
func (s *Simulation) Bounds() Bounds {
	return GridBounds(s.init.Rows(), s.init.Cols())
}

// CancelSim ends a configuring or running simulation, keeping its history.
func (s *Simulation) CancelSim() {
	if s.state == Configuring || s.state == Running {
		s.state = Over
		s.canceled = true
		s.logger.Debug("simulation canceled", "time", s.currentSimTime)
	}
}

// NextReplayFrame moves the replay cursor one frame and reports whether it
// moved. The cursor stays within the history. A live simulation cannot be
// replayed; the call does nothing until the run is over.
func (s *Simulation) NextReplayFrame(reverse bool) bool {
	if !s.replayable() {
		return false
	}
	s.state = Replaying
	next := s.currentFrameNumber + 1
	if reverse {
		next = s.currentFrameNumber - 1
	}
	if next < 0 || next >= len(s.frames) {
		return false
	}
	s.currentFrameNumber = next
	return true
}

// SetReplayToStart rewinds the replay cursor to the first frame.
func (s *Simulation) SetReplayToStart() {
	s.SeekFrame(0)
}

// SeekFrame moves the replay cursor to n, clamped to the history, and
// returns the frame number it landed on.
func (s *Simulation) SeekFrame(n int) int {
	if !s.replayable() {
		return s.currentFrameNumber
	}
	s.state = Replaying
	s.currentFrameNumber = min(max(n, 0), len(s.frames)-1)
	return s.currentFrameNumber
}

func (s *Simulation) replayable() bool {
	return s.state == Over || s.state == Replaying
}

// CurrentFrame returns the frame under the cursor.
func (s *Simulation) CurrentFrame() *Frame {
	return s.frames[s.currentFrameNumber]
}

// IsDayTime reports the daylight flag of the current frame. Frame 0 is always day.
func (s *Simulation) IsDayTime() bool {
	if s.currentFrameNumber == 0 {
		return true
	}
	return s.frames[s.currentFrameNumber].IsDaylight
}

// Frames returns the history. Callers must not modify it.
func (s *Simulation) Frames() []*Frame {
	return s.frames[:len(s.frames):len(s.frames)]
}

// FrameCount is the number of frames in the history, including frame 0.
func (s *Simulation) FrameCount() int { return len(s.frames) }

// CurrentFrameNumber is the index of the current frame.
func (s *Simulation) CurrentFrameNumber() int { return s.currentFrameNumber }

// CurrentSimTime is the simulated minute of the newest computed frame.
func (s *Simulation) CurrentSimTime() int { return s.currentSimTime }

// State returns the lifecycle phase.
func (s *Simulation) State() State { return s.state }

// Over reports whether no further frames will be computed.
func (s *Simulation) Over() bool { return s.state == Over || s.state == Replaying }

// Canceled reports whether the run was stopped by CancelSim.
func (s *Simulation) Canceled() bool { return s.canceled }

// Conditions returns a copy of the initial conditions.
func (s *Simulation) Conditions() core.InitSimData { return s.init.Clone() }

// SetSpawnProbability sets the per-tick spawn chance of k, clamped to [0, 1].
func (s *Simulation) SetSpawnProbability(k core.ShipKind, day bool, p float64) (float64, error) {
	if err := s.configurable(); err != nil {
		return 0, err
	}
	ref := s.init.SpawnRef(k, day)
	if ref == nil {
		return 0, fmt.Errorf("%w: %s", ErrUnknownKind, k)
	}
	*ref = clamp01(p)
	return *ref, nil
}

// SetCellProbability fixes one boundary cell of k's list. See SetCellProbability.
func (s *Simulation) SetCellProbability(k core.ShipKind, day bool, index int, p float64) (float64, error) {
	if err := s.configurable(); err != nil {
		return 0, err
	}
	cells := s.init.Cells(k, day)
	if cells == nil {
		return 0, fmt.Errorf("%w: %s", ErrUnknownKind, k)
	}
	return SetCellProbability(cells, index, p)
}

// ClearCellProbability releases a fixed boundary cell of k's list.
func (s *Simulation) ClearCellProbability(k core.ShipKind, day bool, index int) error {
	if err := s.configurable(); err != nil {
		return err
	}
	cells := s.init.Cells(k, day)
	if cells == nil {
		return fmt.Errorf("%w: %s", ErrUnknownKind, k)
	}
	return ClearCellProbability(cells, index)
}

// SetDimensions resizes the grid and resets every cell list to uniform.
func (s *Simulation) SetDimensions(rows, cols int) error {
	if err := s.configurable(); err != nil {
		return err
	}
	if rows <= 0 || cols <= 0 {
		return fmt.Errorf("%w: dimensions [%d, %d]", ErrInvalidConditions, rows, cols)
	}
	s.init.ResetCells(rows, cols)
	return nil
}

// SetRunTime sets the simulated minutes after which the run ends.
func (s *Simulation) SetRunTime(minutes int) error {
	if err := s.configurable(); err != nil {
		return err
	}
	if minutes <= 0 {
		return fmt.Errorf("%w: run time %d", ErrInvalidConditions, minutes)
	}
	s.init.SimRunTime = minutes
	return nil
}

// SetTimeStep sets the simulated minutes per tick.
func (s *Simulation) SetTimeStep(minutes int) error {
	if err := s.configurable(); err != nil {
		return err
	}
	if minutes <= 0 {
		return fmt.Errorf("%w: time step %d", ErrInvalidConditions, minutes)
	}
	s.init.SimTimeStep = minutes
	return nil
}

// SetConsiderDayNight switches between one table for the whole day and
// separate day and night tables.
func (s *Simulation) SetConsiderDayNight(v bool) error {
	if err := s.configurable(); err != nil {
		return err
	}
	s.init.ConsiderDayNight = v
	return nil
}

func (s *Simulation) configurable() error {
	if s.state != Configuring {
		return fmt.Errorf("%w (state %s)", ErrConfigFrozen, s.state)
	}
	return nil
}

// Progress is the completed fraction of the run time, in [0, 1].
func (s *Simulation) Progress() float64 {
	return math.Min(1, float64(s.currentSimTime)/float64(s.init.SimRunTime))
}

// String renders the run state and initial conditions without cell lists.
func (s *Simulation) String() string {
	var b strings.Builder
	b.WriteString("=== Sim Data (without initial cond. cells) ===\n")
	fmt.Fprintf(&b, "\tState               : %s\n", s.state)
	fmt.Fprintf(&b, "\tCurrent Sim Time    : %d minutes\n", s.currentSimTime)
	fmt.Fprintf(&b, "\tCurrent Frame Number: %d of %d\n", s.currentFrameNumber, len(s.frames)-1)
	b.WriteString("\tInitial Conditions  :\n")
	b.WriteString(s.init.String("\t\t"))
	return b.String()
}
