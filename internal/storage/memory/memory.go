// internal/storage/memory/memory.go
package memory

import (
	"errors"
	"fmt"
	"sync"

	"github.com/piracysim/piracysim/internal/config"
	"github.com/piracysim/piracysim/pkg/core"
	"github.com/piracysim/piracysim/pkg/sim"
)

// ErrNoRun is returned when frames arrive outside of a run.
var ErrNoRun = errors.New("no run started")

// Backend keeps the frames of the current run in memory and exports them to
// JSON when the run ends.
type Backend struct {
	cfg    config.MemoryConfig
	run    *core.Run
	frames []*sim.Frame
	end    *core.RunEnd

	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{cfg: cfg}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartRun begins recording a new run and drops anything recorded before.
func (b *Backend) StartRun(run *core.Run) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.run = run
	b.frames = nil
	b.end = nil
	return nil
}

// RecordFrame appends f. Frame numbers must arrive in order starting at 0.
func (b *Backend) RecordFrame(number int, f *sim.Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.run == nil {
		return ErrNoRun
	}
	if number != len(b.frames) {
		return fmt.Errorf("frame %d out of order, expected %d", number, len(b.frames))
	}
	b.frames = append(b.frames, f)
	return nil
}

// EndRun finalizes and exports the run data
func (b *Backend) EndRun(end *core.RunEnd) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.run == nil {
		return ErrNoRun
	}
	b.end = end
	return b.exportJSON()
}

// GetExportedFilePath returns the path of the last exported file.
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// Frames returns the frames recorded so far.
func (b *Backend) Frames() []*sim.Frame {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*sim.Frame, len(b.frames))
	copy(out, b.frames)
	return out
}

// Run returns the run being recorded, nil before StartRun.
func (b *Backend) Run() *core.Run {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.run
}
