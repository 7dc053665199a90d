package worker

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/piracysim/piracysim/internal/logging"
	"github.com/piracysim/piracysim/internal/model"
	"github.com/piracysim/piracysim/internal/runctx"
	"github.com/piracysim/piracysim/internal/storage"
	"github.com/piracysim/piracysim/pkg/core"
	"github.com/piracysim/piracysim/pkg/sim"
)

// ErrNoRun is returned for frames or run ends that arrive before a run start.
var ErrNoRun = errors.New("no run started")

// StatsWriter receives per-frame statistics, e.g. the influx manager.
type StatsWriter interface {
	WriteFrame(run *core.Run, number int, f *sim.Frame) error
}

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	LogManager *logging.SlogManager
	Context    *runctx.Context
	Stats      StatsWriter
}

// Manager records the events of a run into the storage backend.
type Manager struct {
	deps    Dependencies
	backend storage.Backend

	mu  sync.Mutex
	run *core.Run

	// set by RegisterHandlers, used to drain frames before a run ends
	drain func()
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies, backend storage.Backend) *Manager {
	if deps.Context == nil {
		deps.Context = runctx.NewContext()
	}
	return &Manager{
		deps:    deps,
		backend: backend,
		drain:   func() {},
	}
}

func (m *Manager) logger() *slog.Logger {
	if m.deps.LogManager == nil {
		return slog.Default()
	}
	return m.deps.LogManager.Logger()
}

func (m *Manager) currentRun() *core.Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.run
}

// LastWriteDurationProvider is an optional interface that backends can implement
// to expose their last DB write duration for monitoring.
type LastWriteDurationProvider interface {
	LastWriteDuration() time.Duration
}

// QueueLengthProvider is an optional interface for backends with write queues.
type QueueLengthProvider interface {
	QueueLengths() model.WriteQueueLengths
}

// GetLastDBWriteDuration returns the duration of the last DB write cycle.
// Returns 0 if the backend doesn't support this metric.
func (m *Manager) GetLastDBWriteDuration() time.Duration {
	if p, ok := m.backend.(LastWriteDurationProvider); ok {
		return p.LastWriteDuration()
	}
	return 0
}

// GetWriteQueueLengths returns the pending rows of the backend, zero when
// it does not queue.
func (m *Manager) GetWriteQueueLengths() model.WriteQueueLengths {
	if p, ok := m.backend.(QueueLengthProvider); ok {
		return p.QueueLengths()
	}
	return model.WriteQueueLengths{}
}

// ExportedFilePath returns the file written by the backend at the end of a
// run, empty when it writes none.
func (m *Manager) ExportedFilePath() string {
	if e, ok := m.backend.(storage.Exporter); ok {
		return e.GetExportedFilePath()
	}
	return ""
}
