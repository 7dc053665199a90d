package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/piracysim/piracysim/internal/api"
	"github.com/piracysim/piracysim/internal/config"
	"github.com/piracysim/piracysim/internal/database"
	"github.com/piracysim/piracysim/internal/dispatcher"
	"github.com/piracysim/piracysim/internal/handlers"
	"github.com/piracysim/piracysim/internal/influx"
	"github.com/piracysim/piracysim/internal/logging"
	"github.com/piracysim/piracysim/internal/manager"
	"github.com/piracysim/piracysim/internal/monitor"
	"github.com/piracysim/piracysim/internal/storage"
	"github.com/piracysim/piracysim/internal/storage/memory/export/v1"
	pgstorage "github.com/piracysim/piracysim/internal/storage/postgres"
	"github.com/piracysim/piracysim/internal/util"
	"github.com/piracysim/piracysim/internal/worker"
	"github.com/piracysim/piracysim/pkg/sim"
)

// pipeline is the wiring of one session: the paced simulation, the
// dispatcher carrying its events to storage and the status monitor.
type pipeline struct {
	sim        *manager.Manager
	dispatcher *dispatcher.Dispatcher
	backend    storage.Backend
	worker     *worker.Manager
	influx     *influx.Manager
	monitor    *monitor.Service
	handlers   *handlers.Service
}

// dbProvider is satisfied by the GORM backed storage types.
type dbProvider interface {
	DB() *gorm.DB
}

func newPipeline(ctx context.Context, quit func()) (*pipeline, error) {
	simCfg, err := config.GetSimConfig()
	if err != nil {
		return nil, err
	}
	s, run, err := newSimulation(simCfg)
	if err != nil {
		return nil, fmt.Errorf("invalid initial conditions: %w", err)
	}

	mgrCfg := config.GetManagerConfig()
	sm, err := manager.New(s, run, manager.Config{
		BaseFrametime: mgrCfg.BaseFrametime,
		Speed:         mgrCfg.Speed,
	}, Logger)
	if err != nil {
		return nil, err
	}

	d, err := dispatcher.New(logging.NewDispatcherLogger(Zlog))
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}
	p := &pipeline{sim: sm, dispatcher: d}

	storageCfg := config.GetStorageConfig()
	backend, err := createStorageBackend(storageCfg)
	if err != nil {
		return p.abort(err)
	}
	if err := backend.Init(); err != nil {
		return p.abort(fmt.Errorf("failed to initialize %s storage: %w", storageCfg.Type, err))
	}
	p.backend = backend

	workerDeps := worker.Dependencies{
		LogManager: SlogManager,
		Context:    RunContext,
	}
	if influxCfg := config.GetInfluxConfig(); influxCfg.Enabled {
		p.influx = influx.NewManager(Zlog, influxCfg)
		if err := p.influx.Connect(ctx); err != nil {
			Logger.Warn("InfluxDB unavailable, frame stats disabled", "error", err)
			p.influx = nil
		} else {
			workerDeps.Stats = p.influx
		}
	}

	p.worker = worker.NewManager(workerDeps, p.backend)
	p.worker.RegisterHandlers(d)
	p.worker.Attach(sm, d)

	collector, err := monitor.NewCollector(prometheus.NewRegistry())
	if err != nil {
		return p.abort(err)
	}
	monCfg := config.GetMonitorConfig()
	monDeps := monitor.Dependencies{
		LogManager: SlogManager,
		RunContext: RunContext,
		Source:     sm,
		Writer:     p.worker,
		Collector:  collector,
		StatusDir:  config.GetString("logsDir"),
		Interval:   monCfg.Interval,
		ListenAddr: monCfg.ListenAddr,
	}
	if db, ok := p.backend.(dbProvider); ok {
		monDeps.DB = db.DB()
	}
	p.monitor = monitor.NewService(monDeps)
	if err := p.monitor.Start(); err != nil {
		return p.abort(fmt.Errorf("failed to start monitor: %w", err))
	}

	handlerDeps := handlers.Dependencies{
		Manager:    sm,
		LogManager: SlogManager,
		Status:     p.monitor.StatusJSON,
		Quit:       quit,
	}
	if p.influx != nil {
		handlerDeps.Points = p.influx
	}
	p.handlers = handlers.NewService(handlerDeps)
	p.handlers.RegisterHandlers(d)

	Logger.Info("Pipeline ready", "storage", storageCfg.Type, "run", run.Name, "seed", run.Seed)
	return p, nil
}

// abort releases whatever newPipeline opened before failing with err.
func (p *pipeline) abort(err error) (*pipeline, error) {
	p.Close()
	return nil, err
}

// Close stops the monitor, waits for queued events and closes the sinks.
func (p *pipeline) Close() {
	if p.monitor != nil {
		p.monitor.Stop()
	}
	p.dispatcher.Close()
	if p.backend != nil {
		if err := p.backend.Close(); err != nil {
			Logger.Error("Failed to close storage", "error", err)
		}
	}
	if p.influx != nil {
		if err := p.influx.Close(); err != nil {
			Logger.Error("Failed to close InfluxDB", "error", err)
		}
	}
}

// runHeadless simulates the configured run without pacing.
func runHeadless(ctx context.Context, out io.Writer) error {
	p, err := newPipeline(ctx, nil)
	if err != nil {
		return err
	}
	defer p.Close()

	runErr := p.sim.RunToCompletion(ctx)
	st := p.sim.Status()
	fmt.Fprintf(out, "%s: %s after %d frames (sim time %d)\n", st.RunName, st.State, st.Frames, st.SimTime)
	if f := p.sim.CurrentFrame(); f != nil {
		fmt.Fprint(out, f.String("  ", false))
	}
	if path := p.worker.ExportedFilePath(); path != "" {
		fmt.Fprintf(out, "exported to %s\n", path)
		if apiCfg := config.GetAPIConfig(); apiCfg.UploadOnEnd && apiCfg.ServerURL != "" {
			meta := api.MetadataFor(p.sim.CurrentRun(), st.Frames, st.SimTime)
			if err := api.New(apiCfg.ServerURL, apiCfg.APIKey).Upload(path, meta); err != nil {
				Logger.Error("Failed to upload export", "path", path, "error", err)
			} else {
				fmt.Fprintf(out, "uploaded to %s\n", apiCfg.ServerURL)
			}
		}
	}
	if errors.Is(runErr, context.Canceled) {
		// interrupted; the run was canceled and recorded as such
		return nil
	}
	return runErr
}

// runInteractive paces the simulation in real time and executes control
// commands read line by line from in, e.g. ":SPEED: 10".
func runInteractive(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p, err := newPipeline(ctx, cancel)
	if err != nil {
		return err
	}
	defer p.Close()

	loopDone := make(chan error, 1)
	go func() { loopDone <- p.sim.Run(ctx) }()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprintf(out, "commands: %s\n", strings.Join(p.handlers.Commands(), " "))
	for done := false; !done; {
		select {
		case <-ctx.Done():
			done = true
		case line, ok := <-lines:
			if !ok {
				cancel()
				done = true
				break
			}
			cmd, args := util.SplitCommand(line)
			if cmd == "" {
				continue
			}
			result, err := p.dispatcher.Dispatch(dispatcher.Event{Command: cmd, Args: args})
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			fmt.Fprintln(out, result)
		}
	}

	<-loopDone
	p.sim.Cancel()
	return nil
}

func loadExport(args []string) (*sim.Simulation, *v1.Export, error) {
	if len(args) != 1 {
		return nil, nil, errors.New("expected exactly one file argument")
	}
	e, err := v1.ReadFile(args[0])
	if err != nil {
		return nil, nil, err
	}
	s, err := v1.Restore(e, sim.Dependencies{Logger: Logger})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to restore %s: %w", filepath.Base(args[0]), err)
	}
	return s, e, nil
}

// replayFile prints every frame of an exported run.
func replayFile(args []string, reverse, verbose bool, out io.Writer) error {
	s, e, err := loadExport(args)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s (%s), %d frames\n", e.RunName, e.Tag, s.FrameCount())

	if reverse {
		s.SeekFrame(s.FrameCount() - 1)
	} else {
		s.SetReplayToStart()
	}
	for {
		fmt.Fprintf(out, "#%d\n%s", s.CurrentFrameNumber(), s.CurrentFrame().String("  ", verbose))
		if !s.NextReplayFrame(reverse) {
			return nil
		}
	}
}

// uploadFile sends an export file to the configured viewer.
func uploadFile(args []string, out io.Writer) error {
	s, e, err := loadExport(args)
	if err != nil {
		return err
	}
	apiCfg := config.GetAPIConfig()
	if apiCfg.ServerURL == "" {
		return errors.New("api.serverUrl is not configured")
	}
	client := api.New(apiCfg.ServerURL, apiCfg.APIKey)
	if err := client.Healthcheck(); err != nil {
		return err
	}
	meta := api.MetadataFor(v1.RunInfo(e), s.FrameCount(), s.CurrentSimTime())
	if err := client.Upload(args[0], meta); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s uploaded to %s\n", filepath.Base(args[0]), apiCfg.ServerURL)
	return nil
}

func inspectFile(args []string, out io.Writer) error {
	s, _, err := loadExport(args)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, s.String())
	return nil
}

// exportDB writes a run stored in Postgres to a file; a .gz suffix
// compresses it.
func exportDB(args []string, out io.Writer) error {
	if len(args) != 2 {
		return errors.New("usage: export-db <runID> <file>")
	}
	runID, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", args[0], err)
	}

	db, err := database.GetPostgresDB()
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	defer sqlDB.Close()
	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to validate connection: %w", err)
	}

	data, err := pgstorage.LoadRun(db, uint(runID))
	if err != nil {
		return err
	}
	e := v1.Build(data)
	if err := v1.WriteFile(args[1], &e, strings.HasSuffix(args[1], ".gz")); err != nil {
		return err
	}
	fmt.Fprintf(out, "run %d exported to %s\n", runID, args[1])
	return nil
}

func setupDB() error {
	m := database.NewManager(Zlog)
	if err := m.Connect(); err != nil {
		return err
	}
	defer m.SqlDB.Close()
	if m.ShouldSaveLocal {
		return errors.New("postgres unreachable, nothing to set up")
	}
	return m.Setup()
}

// printStatus reports the configured run before it starts.
func printStatus(out io.Writer) error {
	simCfg, err := config.GetSimConfig()
	if err != nil {
		return err
	}
	s, run, err := newSimulation(simCfg)
	if err != nil {
		return err
	}
	sm, err := manager.New(s, run, manager.Config{}, Logger)
	if err != nil {
		return err
	}
	mon := monitor.NewService(monitor.Dependencies{
		LogManager: SlogManager,
		RunContext: RunContext,
		Source:     sm,
	})
	fmt.Fprintln(out, string(mon.StatusJSON()))
	return nil
}
