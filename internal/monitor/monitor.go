package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/piracysim/piracysim/internal/logging"
	"github.com/piracysim/piracysim/internal/manager"
	"github.com/piracysim/piracysim/internal/model"
	"github.com/piracysim/piracysim/internal/runctx"
	"github.com/piracysim/piracysim/pkg/sim"
)

// StatusFileName is written to StatusDir on every pass.
const StatusFileName = "status.json"

// DefaultInterval is used when Dependencies.Interval is not set.
const DefaultInterval = 10 * time.Second

// StatusSource is the simulation manager as seen by the monitor.
type StatusSource interface {
	Status() manager.Status
	CurrentFrame() *sim.Frame
	CurrentFrameNumber() int
}

// WriterStats reports the database writer, usually the worker manager.
type WriterStats interface {
	GetLastDBWriteDuration() time.Duration
	GetWriteQueueLengths() model.WriteQueueLengths
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	DB         *gorm.DB
	LogManager *logging.SlogManager
	RunContext *runctx.Context
	Source     StatusSource
	Writer     WriterStats
	Collector  *Collector
	StatusDir  string
	Interval   time.Duration
	ListenAddr string
}

// ProgramStatus is the JSON written to the status file.
type ProgramStatus struct {
	Time                time.Time               `json:"time"`
	RunID               uint                    `json:"runId"`
	Sim                 manager.Status          `json:"sim"`
	WriteQueueLengths   model.WriteQueueLengths `json:"writeQueueLengths"`
	LastWriteDurationMs float32                 `json:"lastWriteDurationMs"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
	server    *http.Server
	addr      string
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	if deps.RunContext == nil {
		deps.RunContext = runctx.NewContext()
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetProgramStatus returns the current status and the matching performance row.
func (s *Service) GetProgramStatus() (ProgramStatus, model.SimPerformance) {
	st := ProgramStatus{Time: time.Now()}
	if run := s.deps.RunContext.GetRun(); run != nil {
		st.RunID = run.ID
	}
	if s.deps.Source != nil {
		st.Sim = s.deps.Source.Status()
	}
	if s.deps.Writer != nil {
		st.WriteQueueLengths = s.deps.Writer.GetWriteQueueLengths()
		st.LastWriteDurationMs = float32(s.deps.Writer.GetLastDBWriteDuration().Microseconds()) / 1000
	}

	perf := model.SimPerformance{
		Time:                st.Time,
		RunID:               st.RunID,
		FrameNumber:         st.Sim.FrameNumber,
		SimTime:             st.Sim.SimTime,
		LiveShips:           st.Sim.LiveShips,
		WriteQueueLengths:   st.WriteQueueLengths,
		LastWriteDurationMs: st.LastWriteDurationMs,
	}
	return st, perf
}

// StatusJSON renders the current status, indented.
func (s *Service) StatusJSON() []byte {
	st, _ := s.GetProgramStatus()
	out, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return []byte(`{"error": "` + err.Error() + `"}`)
	}
	return out
}

// Poll runs one monitoring pass: gauges, status file and performance row.
func (s *Service) Poll() error {
	st, perf := s.GetProgramStatus()

	if c := s.deps.Collector; c != nil {
		if s.deps.Source != nil {
			c.ObserveFrame(s.deps.Source.CurrentFrameNumber(), s.deps.Source.CurrentFrame())
		}
		c.ObserveWriter(st.WriteQueueLengths, float64(st.LastWriteDurationMs)/1000)
	}

	var errs []error
	if s.deps.StatusDir != "" {
		out, err := json.MarshalIndent(st, "", "  ")
		if err == nil {
			err = os.WriteFile(filepath.Join(s.deps.StatusDir, StatusFileName), out, 0644)
		}
		errs = append(errs, err)
	}

	// performance rows reference a stored run
	if s.deps.DB != nil && perf.RunID != 0 {
		errs = append(errs, s.deps.DB.Create(&perf).Error)
	}
	return errors.Join(errs...)
}

// Start starts the status monitor goroutine and, with a listen address and
// collector, the /metrics endpoint.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}

	if s.deps.ListenAddr != "" && s.deps.Collector != nil {
		ln, err := net.Listen("tcp", s.deps.ListenAddr)
		if err != nil {
			return err
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.deps.Collector.Handler())
		mux.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(s.StatusJSON())
		})
		s.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		s.addr = ln.Addr().String()
		go func() {
			if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger().Error("metrics server stopped", "error", err)
			}
		}()
	}

	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(s.stopChan, s.done)

	s.logger().Debug("Status monitor started", "interval", s.deps.Interval, "metrics", s.addr)
	return nil
}

func (s *Service) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.deps.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := s.Poll(); err != nil {
				s.logger().Error("Status monitor pass failed", "error", err)
			}
		}
	}
}

// Addr returns the address of the metrics endpoint, empty when not serving.
func (s *Service) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Stop stops the status monitor and the metrics endpoint.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return
	}
	close(s.stopChan)
	<-s.done
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = s.server.Shutdown(ctx)
		cancel()
		s.server = nil
		s.addr = ""
	}
	s.isRunning = false
}

func (s *Service) logger() *slog.Logger {
	if s.deps.LogManager == nil {
		return slog.Default()
	}
	return s.deps.LogManager.Logger()
}
