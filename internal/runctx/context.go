// Package runctx tracks the run currently being simulated so that log records
// and monitor snapshots can be tagged with it.
package runctx

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/piracysim/piracysim/pkg/core"
)

// Context holds the current run and the number of the last recorded frame
type Context struct {
	mu    sync.RWMutex
	run   *core.Run
	frame atomic.Int64
}

// NewContext creates a new Context with a placeholder run
func NewContext() *Context {
	return &Context{
		run: &core.Run{Name: "No run loaded"},
	}
}

// GetRun returns the current run
func (c *Context) GetRun() *core.Run {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.run
}

// SetRun replaces the current run and resets the frame counter
func (c *Context) SetRun(run *core.Run) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.run = run
	c.frame.Store(0)
}

// SetFrame records the number of the frame last produced
func (c *Context) SetFrame(n int) {
	c.frame.Store(int64(n))
}

// Frame returns the number of the frame last produced
func (c *Context) Frame() int {
	return int(c.frame.Load())
}

// LogAttrs returns the attributes added to every log record.
func (c *Context) LogAttrs() []slog.Attr {
	run := c.GetRun()
	return []slog.Attr{
		slog.String("run", run.Name),
		slog.Uint64("runId", uint64(run.ID)),
		slog.Int("frame", c.Frame()),
	}
}
