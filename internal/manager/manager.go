// Package manager drives a Simulation in wall-clock time: pacing, pause,
// single stepping, replay and the notifications the recorder listens to.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/piracysim/piracysim/pkg/core"
	"github.com/piracysim/piracysim/pkg/sim"
)

// DefaultBaseFrametime is the time between two ticks at speed 1.
const DefaultBaseFrametime = time.Second

// loopInterval is how often Run polls Step.
const loopInterval = 10 * time.Millisecond

// Speeds are the accepted speed multipliers.
var Speeds = []int{1, 2, 10, 20}

// ErrInvalidSpeed is returned by SetSpeed for multipliers not in Speeds.
var ErrInvalidSpeed = errors.New("invalid speed")

// Config controls tick pacing.
type Config struct {
	BaseFrametime time.Duration
	Speed         int
}

// Status is a point-in-time view of the manager.
type Status struct {
	State       string  `json:"state"`
	RunName     string  `json:"runName"`
	FrameNumber int     `json:"frameNumber"`
	Frames      int     `json:"frames"`
	SimTime     int     `json:"simTime"`
	Progress    float64 `json:"progress"`
	LiveShips   int     `json:"liveShips"`
	Daylight    bool    `json:"daylight"`
	Paused      bool    `json:"paused"`
	SingleStep  bool    `json:"singleStep"`
	Speed       int     `json:"speed"`
	Reverse     bool    `json:"reverse"`
}

// Listeners run on the goroutine that advanced the simulation, with the
// manager locked. They must not call back into the Manager and must treat
// frames as read-only.
type (
	StartListener func(run *core.Run)
	FrameListener func(number int, f *sim.Frame)
	EndListener   func(run *core.Run, end core.RunEnd)
)

// Manager owns one Simulation and serializes access to it.
type Manager struct {
	mu sync.Mutex

	sim     *sim.Simulation
	run     *core.Run
	started bool
	ended   bool

	paused     bool
	singleStep bool
	reverse    bool
	speed      int
	base       time.Duration
	frametime  time.Duration
	prev       time.Time

	current atomic.Pointer[sim.Frame]
	frameNo atomic.Int64

	onStart []StartListener
	onFrame []FrameListener
	onEnd   []EndListener

	logger  *slog.Logger
	metrics *metrics
}

// New wraps s. The manager starts paused. run describes the run reported to
// start and end listeners; its Conditions are filled in when the first tick
// freezes them.
func New(s *sim.Simulation, run *core.Run, cfg Config, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if run == nil {
		run = &core.Run{}
	}
	if cfg.BaseFrametime <= 0 {
		cfg.BaseFrametime = DefaultBaseFrametime
	}
	if cfg.Speed == 0 {
		cfg.Speed = 1
	}

	m := &Manager{
		paused: true,
		base:   cfg.BaseFrametime,
		logger: logger,
	}
	if err := m.setSpeed(cfg.Speed); err != nil {
		return nil, err
	}

	var err error
	m.metrics, err = newMetrics(m)
	if err != nil {
		return nil, err
	}

	m.load(s, run)
	return m, nil
}

func (m *Manager) load(s *sim.Simulation, run *core.Run) {
	m.sim = s
	m.run = run
	m.started = s.State() != sim.Configuring
	m.ended = s.Over()
	m.prev = time.Time{}
	m.publish()
}

// Load replaces the simulation, e.g. with an imported one, and pauses.
// Listeners are not notified for a simulation that is already over.
func (m *Manager) Load(s *sim.Simulation, run *core.Run) {
	if run == nil {
		run = &core.Run{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = true
	m.singleStep = false
	m.load(s, run)
	m.logger.Info("simulation loaded", "run", run.Name, "frames", s.FrameCount(), "state", s.State().String())
}

// OnStart registers a listener called once before the first tick.
func (m *Manager) OnStart(l StartListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStart = append(m.onStart, l)
}

// OnFrame registers a listener called for frame 0 at start and for every
// frame a live tick produces.
func (m *Manager) OnFrame(l FrameListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFrame = append(m.onFrame, l)
}

// OnEnd registers a listener called once when a live run finishes or is canceled.
func (m *Manager) OnEnd(l EndListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEnd = append(m.onEnd, l)
}

// Start unpauses and leaves single step mode.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = false
	m.singleStep = false
}

// Pause stops stepping.
func (m *Manager) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = true
	m.singleStep = false
}

// Unpause resumes stepping.
func (m *Manager) Unpause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = false
}

// SetSingleStepMode makes the next Step advance exactly once and pause
// again. It only takes effect while paused and reports whether it did.
func (m *Manager) SetSingleStepMode() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.paused {
		return false
	}
	m.singleStep = true
	m.paused = false
	return true
}

// SetSpeed sets the frametime to base / multiplier.
func (m *Manager) SetSpeed(multiplier int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setSpeed(multiplier)
}

func (m *Manager) setSpeed(multiplier int) error {
	if !slices.Contains(Speeds, multiplier) {
		return fmt.Errorf("%w %d, want one of %v", ErrInvalidSpeed, multiplier, Speeds)
	}
	m.speed = multiplier
	m.frametime = m.base / time.Duration(multiplier)
	return nil
}

// Frametime returns the current time between two steps.
func (m *Manager) Frametime() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frametime
}

// SetReverse sets the replay direction.
func (m *Manager) SetReverse(reverse bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reverse = reverse
}

// Paused reports whether stepping is paused.
func (m *Manager) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// Step advances once if not paused and at least one frametime has passed
// since the previous step, or if single step mode is armed. Once the run is
// over a step moves the replay cursor instead. It reports whether it advanced.
func (m *Manager) Step(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.paused {
		return false
	}
	if !m.singleStep && !m.prev.IsZero() && now.Sub(m.prev) < m.frametime {
		return false
	}
	m.prev = now

	if m.sim.Over() {
		m.sim.NextReplayFrame(m.reverse)
		m.publish()
	} else {
		m.tick()
	}

	if m.singleStep {
		m.singleStep = false
		m.paused = true
	}
	return true
}

// tick runs one live tick and notifies listeners. Callers hold mu.
func (m *Manager) tick() {
	if !m.started {
		m.started = true
		m.run.Conditions = m.sim.Conditions()
		if m.run.StartTime.IsZero() {
			m.run.StartTime = time.Now()
		}
		for _, l := range m.onStart {
			l(m.run)
		}
		m.notifyFrame()
	}

	start := time.Now()
	over := m.sim.Tick()
	m.metrics.recordTick(time.Since(start))

	m.publish()
	m.notifyFrame()
	if over {
		m.finish()
	}
}

func (m *Manager) notifyFrame() {
	n := m.sim.CurrentFrameNumber()
	f := m.sim.CurrentFrame()
	for _, l := range m.onFrame {
		l(n, f)
	}
}

func (m *Manager) finish() {
	if m.ended {
		return
	}
	m.ended = true
	m.paused = true
	end := core.RunEnd{
		CurrentSimTime:     m.sim.CurrentSimTime(),
		CurrentFrameNumber: m.sim.CurrentFrameNumber(),
		Canceled:           m.sim.Canceled(),
		EndTime:            time.Now(),
	}
	m.logger.Info("run ended", "simTime", end.CurrentSimTime, "frame", end.CurrentFrameNumber, "canceled", end.Canceled)
	for _, l := range m.onEnd {
		l(m.run, end)
	}
}

// Cancel ends a live run. End listeners are notified if the run had started.
func (m *Manager) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sim.Over() {
		return
	}
	m.sim.CancelSim()
	m.publish()
	if m.started {
		m.finish()
	} else {
		m.ended = true
		m.paused = true
	}
}

// ReplayStep moves the replay cursor one frame in the given direction.
func (m *Manager) ReplayStep(reverse bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	moved := m.sim.NextReplayFrame(reverse)
	m.publish()
	return moved
}

// ReplayToStart rewinds the replay cursor.
func (m *Manager) ReplayToStart() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sim.SetReplayToStart()
	m.publish()
}

// SeekFrame moves the replay cursor to n, clamped, and returns where it landed.
func (m *Manager) SeekFrame(n int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	got := m.sim.SeekFrame(n)
	m.publish()
	return got
}

// RunToCompletion ticks without pacing until the run is over. When ctx is
// canceled first the run is canceled and ctx.Err() returned.
func (m *Manager) RunToCompletion(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			m.Cancel()
			return err
		}
		m.mu.Lock()
		if m.sim.Over() {
			m.mu.Unlock()
			return nil
		}
		m.tick()
		m.mu.Unlock()
	}
}

// Run calls Step until ctx is canceled.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(loopInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			m.Step(now)
		}
	}
}

// WithSim runs fn with exclusive access to the simulation, e.g. for
// configuration edits or exports.
func (m *Manager) WithSim(fn func(s *sim.Simulation, run *core.Run) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	err := fn(m.sim, m.run)
	m.publish()
	return err
}

// CurrentFrame returns the frame under the cursor without locking.
func (m *Manager) CurrentFrame() *sim.Frame {
	return m.current.Load()
}

// CurrentFrameNumber returns the cursor position without locking.
func (m *Manager) CurrentFrameNumber() int {
	return int(m.frameNo.Load())
}

func (m *Manager) publish() {
	m.current.Store(m.sim.CurrentFrame())
	m.frameNo.Store(int64(m.sim.CurrentFrameNumber()))
}

// Status returns a snapshot of the manager and its simulation.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := m.sim.CurrentFrame()
	return Status{
		State:       m.sim.State().String(),
		RunName:     m.run.Name,
		FrameNumber: m.sim.CurrentFrameNumber(),
		Frames:      m.sim.FrameCount(),
		SimTime:     m.sim.CurrentSimTime(),
		Progress:    m.sim.Progress(),
		LiveShips:   f.Total(),
		Daylight:    m.sim.IsDayTime(),
		Paused:      m.paused,
		SingleStep:  m.singleStep,
		Speed:       m.speed,
		Reverse:     m.reverse,
	}
}

// CurrentRun returns the run description.
func (m *Manager) CurrentRun() *core.Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.run
}
