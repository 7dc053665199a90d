// Package handlers implements the interactive driver commands on top of the
// simulation manager.
package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/piracysim/piracysim/internal/dispatcher"
	"github.com/piracysim/piracysim/internal/influx"
	"github.com/piracysim/piracysim/internal/logging"
	"github.com/piracysim/piracysim/internal/manager"
	"github.com/piracysim/piracysim/internal/storage/memory/export/v1"
	"github.com/piracysim/piracysim/internal/util"
	"github.com/piracysim/piracysim/pkg/core"
	"github.com/piracysim/piracysim/pkg/sim"
)

// ErrArgs is wrapped by every argument error.
var ErrArgs = errors.New("bad arguments")

// PointWriter receives user annotations, e.g. the influx manager.
type PointWriter interface {
	WritePoint(bucket string, point *influxdb2_write.Point) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Manager    *manager.Manager
	LogManager *logging.SlogManager
	Status     func() []byte // status JSON, manager status when nil
	Points     PointWriter   // optional
	Quit       func()
}

// Service provides handler methods for the interactive commands
type Service struct {
	deps Dependencies
}

// NewService creates a new handler service
func NewService(deps Dependencies) *Service {
	return &Service{deps: deps}
}

func (s *Service) logger() *slog.Logger {
	if s.deps.LogManager == nil {
		return slog.Default()
	}
	return s.deps.LogManager.Logger()
}

// RegisterHandlers registers every interactive command.
func (s *Service) RegisterHandlers(d *dispatcher.Dispatcher) {
	for cmd, h := range s.commands() {
		d.Register(cmd, h, dispatcher.Logged())
	}
}

// Commands lists the command names the service handles.
func (s *Service) Commands() []string {
	out := make([]string, 0, len(s.commands()))
	for cmd := range s.commands() {
		out = append(out, cmd)
	}
	return out
}

func (s *Service) commands() map[string]dispatcher.HandlerFunc {
	return map[string]dispatcher.HandlerFunc{
		":START:":          s.handleStart,
		":PAUSE:":          s.handlePause,
		":UNPAUSE:":        s.handleUnpause,
		":STEP:":           s.handleStep,
		":SPEED:":          s.handleSpeed,
		":REVERSE:":        s.handleReverse,
		":CANCEL:":         s.handleCancel,
		":REPLAY:START:":   s.handleReplayStart,
		":REPLAY:NEXT:":    s.handleReplayNext,
		":REPLAY:PREV:":    s.handleReplayPrev,
		":SEEK:":           s.handleSeek,
		":STATUS:":         s.handleStatus,
		":FRAME:SHOW:":     s.handleShowFrame,
		":SIM:SHOW:":       s.handleShowSim,
		":EXPORT:":         s.handleExport,
		":IMPORT:":         s.handleImport,
		":SET:SPAWN:":      s.handleSetSpawn,
		":SET:CELL:":       s.handleSetCell,
		":CLEAR:CELL:":     s.handleClearCell,
		":SET:DIMENSIONS:": s.handleSetDimensions,
		":SET:RUNTIME:":    s.handleSetRunTime,
		":SET:TIMESTEP:":   s.handleSetTimeStep,
		":SET:DAYNIGHT:":   s.handleSetDayNight,
		":METRIC:":         s.handleMetric,
		":QUIT:":           s.handleQuit,
	}
}

func wantArgs(e dispatcher.Event, n int, usage string) error {
	if len(e.Args) != n {
		return fmt.Errorf("%w: %s wants %s", ErrArgs, e.Command, usage)
	}
	return nil
}

func parseInt(e dispatcher.Event, i int) (int, error) {
	v, err := strconv.Atoi(e.Args[i])
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %q is not an integer", ErrArgs, e.Command, e.Args[i])
	}
	return v, nil
}

func parseFloat(e dispatcher.Event, i int) (float64, error) {
	v, err := strconv.ParseFloat(e.Args[i], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %q is not a number", ErrArgs, e.Command, e.Args[i])
	}
	return v, nil
}

// kindAndPhase parses the leading "<kind> <day|night>" arguments.
func kindAndPhase(e dispatcher.Event) (core.ShipKind, bool, error) {
	k, err := core.ParseShipKind(e.Args[0])
	if err != nil {
		return 0, false, fmt.Errorf("%w: %w", ErrArgs, err)
	}
	day, err := util.ParsePhase(e.Args[1])
	if err != nil {
		return 0, false, fmt.Errorf("%w: %w", ErrArgs, err)
	}
	return k, day, nil
}

func (s *Service) handleStart(dispatcher.Event) (any, error) {
	s.deps.Manager.Start()
	return "started", nil
}

func (s *Service) handlePause(dispatcher.Event) (any, error) {
	s.deps.Manager.Pause()
	return "paused", nil
}

func (s *Service) handleUnpause(dispatcher.Event) (any, error) {
	s.deps.Manager.Unpause()
	return "unpaused", nil
}

func (s *Service) handleStep(dispatcher.Event) (any, error) {
	if !s.deps.Manager.SetSingleStepMode() {
		return nil, errors.New("single step needs a paused simulation")
	}
	return "stepping", nil
}

func (s *Service) handleSpeed(e dispatcher.Event) (any, error) {
	if err := wantArgs(e, 1, "<multiplier>"); err != nil {
		return nil, err
	}
	n, err := parseInt(e, 0)
	if err != nil {
		return nil, err
	}
	if err := s.deps.Manager.SetSpeed(n); err != nil {
		return nil, err
	}
	return fmt.Sprintf("speed x%d, frametime %s", n, s.deps.Manager.Frametime()), nil
}

func (s *Service) handleReverse(e dispatcher.Event) (any, error) {
	if err := wantArgs(e, 1, "<true|false>"); err != nil {
		return nil, err
	}
	reverse, err := strconv.ParseBool(e.Args[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %q is not a bool", ErrArgs, e.Command, e.Args[0])
	}
	s.deps.Manager.SetReverse(reverse)
	return fmt.Sprintf("reverse %t", reverse), nil
}

func (s *Service) handleCancel(dispatcher.Event) (any, error) {
	s.deps.Manager.Cancel()
	return "canceled", nil
}

func (s *Service) handleReplayStart(dispatcher.Event) (any, error) {
	s.deps.Manager.ReplayToStart()
	return fmt.Sprintf("frame %d", s.deps.Manager.CurrentFrameNumber()), nil
}

func (s *Service) handleReplayNext(dispatcher.Event) (any, error) {
	s.deps.Manager.ReplayStep(false)
	return fmt.Sprintf("frame %d", s.deps.Manager.CurrentFrameNumber()), nil
}

func (s *Service) handleReplayPrev(dispatcher.Event) (any, error) {
	s.deps.Manager.ReplayStep(true)
	return fmt.Sprintf("frame %d", s.deps.Manager.CurrentFrameNumber()), nil
}

func (s *Service) handleSeek(e dispatcher.Event) (any, error) {
	if err := wantArgs(e, 1, "<frame>"); err != nil {
		return nil, err
	}
	n, err := parseInt(e, 0)
	if err != nil {
		return nil, err
	}
	return fmt.Sprintf("frame %d", s.deps.Manager.SeekFrame(n)), nil
}

func (s *Service) handleStatus(dispatcher.Event) (any, error) {
	if s.deps.Status != nil {
		return string(s.deps.Status()), nil
	}
	st := s.deps.Manager.Status()
	return fmt.Sprintf("%s frame %d/%d time %d paused=%t speed=x%d",
		st.State, st.FrameNumber, st.Frames-1, st.SimTime, st.Paused, st.Speed), nil
}

func (s *Service) handleShowFrame(dispatcher.Event) (any, error) {
	return s.deps.Manager.CurrentFrame().String("", true), nil
}

func (s *Service) handleShowSim(dispatcher.Event) (any, error) {
	var out string
	err := s.deps.Manager.WithSim(func(sm *sim.Simulation, _ *core.Run) error {
		out = sm.String()
		return nil
	})
	return out, err
}

func (s *Service) handleExport(e dispatcher.Event) (any, error) {
	if err := wantArgs(e, 1, "<path>"); err != nil {
		return nil, err
	}
	path := e.Args[0]
	err := s.deps.Manager.WithSim(func(sm *sim.Simulation, run *core.Run) error {
		export := v1.Build(v1.FromSimulation(sm, run))
		return v1.WriteFile(path, &export, strings.HasSuffix(path, ".gz"))
	})
	if err != nil {
		return nil, fmt.Errorf("export failed: %w", err)
	}
	s.logger().Info("simulation exported", "path", path)
	return "exported " + path, nil
}

func (s *Service) handleImport(e dispatcher.Event) (any, error) {
	if err := wantArgs(e, 1, "<path>"); err != nil {
		return nil, err
	}
	path := e.Args[0]

	export, err := v1.ReadFile(path)
	if err != nil {
		return nil, err
	}
	restored, err := v1.Restore(export, sim.Dependencies{Logger: s.logger()})
	if err != nil {
		return nil, err
	}

	// a live run is ended before it is replaced
	s.deps.Manager.Cancel()
	s.deps.Manager.Load(restored, v1.RunInfo(export))
	return fmt.Sprintf("imported %d frames from %s", restored.FrameCount(), path), nil
}

func (s *Service) handleSetSpawn(e dispatcher.Event) (any, error) {
	if err := wantArgs(e, 3, "<kind> <day|night> <probability>"); err != nil {
		return nil, err
	}
	k, day, err := kindAndPhase(e)
	if err != nil {
		return nil, err
	}
	p, err := parseFloat(e, 2)
	if err != nil {
		return nil, err
	}

	var got float64
	err = s.deps.Manager.WithSim(func(sm *sim.Simulation, _ *core.Run) error {
		got, err = sm.SetSpawnProbability(k, day, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	return fmt.Sprintf("%s spawn probability %g", k, got), nil
}

func (s *Service) handleSetCell(e dispatcher.Event) (any, error) {
	if err := wantArgs(e, 4, "<kind> <day|night> <index> <probability>"); err != nil {
		return nil, err
	}
	k, day, err := kindAndPhase(e)
	if err != nil {
		return nil, err
	}
	index, err := parseInt(e, 2)
	if err != nil {
		return nil, err
	}
	p, err := parseFloat(e, 3)
	if err != nil {
		return nil, err
	}

	var got float64
	err = s.deps.Manager.WithSim(func(sm *sim.Simulation, _ *core.Run) error {
		got, err = sm.SetCellProbability(k, day, index, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	return fmt.Sprintf("%s cell %d probability %g", k, index, got), nil
}

func (s *Service) handleClearCell(e dispatcher.Event) (any, error) {
	if err := wantArgs(e, 3, "<kind> <day|night> <index>"); err != nil {
		return nil, err
	}
	k, day, err := kindAndPhase(e)
	if err != nil {
		return nil, err
	}
	index, err := parseInt(e, 2)
	if err != nil {
		return nil, err
	}

	err = s.deps.Manager.WithSim(func(sm *sim.Simulation, _ *core.Run) error {
		return sm.ClearCellProbability(k, day, index)
	})
	if err != nil {
		return nil, err
	}
	return fmt.Sprintf("%s cell %d cleared", k, index), nil
}

func (s *Service) handleSetDimensions(e dispatcher.Event) (any, error) {
	if err := wantArgs(e, 2, "<rows> <cols>"); err != nil {
		return nil, err
	}
	rows, err := parseInt(e, 0)
	if err != nil {
		return nil, err
	}
	cols, err := parseInt(e, 1)
	if err != nil {
		return nil, err
	}
	err = s.deps.Manager.WithSim(func(sm *sim.Simulation, _ *core.Run) error {
		return sm.SetDimensions(rows, cols)
	})
	if err != nil {
		return nil, err
	}
	return fmt.Sprintf("grid %dx%d", rows, cols), nil
}

func (s *Service) setMinutes(e dispatcher.Event, set func(*sim.Simulation, int) error) (any, error) {
	if err := wantArgs(e, 1, "<minutes>"); err != nil {
		return nil, err
	}
	n, err := parseInt(e, 0)
	if err != nil {
		return nil, err
	}
	err = s.deps.Manager.WithSim(func(sm *sim.Simulation, _ *core.Run) error {
		return set(sm, n)
	})
	if err != nil {
		return nil, err
	}
	return fmt.Sprintf("%d minutes", n), nil
}

func (s *Service) handleSetRunTime(e dispatcher.Event) (any, error) {
	return s.setMinutes(e, (*sim.Simulation).SetRunTime)
}

func (s *Service) handleSetTimeStep(e dispatcher.Event) (any, error) {
	return s.setMinutes(e, (*sim.Simulation).SetTimeStep)
}

func (s *Service) handleSetDayNight(e dispatcher.Event) (any, error) {
	if err := wantArgs(e, 1, "<true|false>"); err != nil {
		return nil, err
	}
	v, err := strconv.ParseBool(e.Args[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %q is not a bool", ErrArgs, e.Command, e.Args[0])
	}
	err = s.deps.Manager.WithSim(func(sm *sim.Simulation, _ *core.Run) error {
		return sm.SetConsiderDayNight(v)
	})
	if err != nil {
		return nil, err
	}
	return fmt.Sprintf("day/night %t", v), nil
}

func (s *Service) handleMetric(e dispatcher.Event) (any, error) {
	if s.deps.Points == nil {
		return nil, errors.New("influx is not enabled")
	}
	bucket, point, err := influx.ParsePoint(e.Args)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArgs, err)
	}
	if err := s.deps.Points.WritePoint(bucket, point); err != nil {
		return nil, err
	}
	return "written to " + bucket, nil
}

func (s *Service) handleQuit(dispatcher.Event) (any, error) {
	if s.deps.Quit != nil {
		s.deps.Quit()
	}
	return "bye", nil
}
