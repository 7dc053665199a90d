package worker

import (
	"fmt"
	"time"

	"github.com/piracysim/piracysim/internal/dispatcher"
	"github.com/piracysim/piracysim/internal/manager"
	"github.com/piracysim/piracysim/pkg/core"
	"github.com/piracysim/piracysim/pkg/sim"
)

// Commands the recorder handles.
const (
	CmdRunStart = ":RUN:START:"
	CmdFrame    = ":FRAME:"
	CmdRunEnd   = ":RUN:END:"
)

// FrameBufferSize is the queue length of the frame handler.
const FrameBufferSize = 1000

// FrameEvent is the payload of CmdFrame.
type FrameEvent struct {
	Number int
	Frame  *sim.Frame
}

// RunEndEvent is the payload of CmdRunEnd.
type RunEndEvent struct {
	Run *core.Run
	End core.RunEnd
}

// RegisterHandlers registers the recording handlers with the dispatcher.
// Frames are buffered and never dropped; run start and end are synchronous.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	d.Register(CmdRunStart, m.handleRunStart, dispatcher.Logged())
	d.Register(CmdFrame, m.handleFrame, dispatcher.Buffered(FrameBufferSize), dispatcher.Blocking())
	d.Register(CmdRunEnd, m.handleRunEnd, dispatcher.Logged())
	m.drain = func() { d.Drain(CmdFrame) }
}

// Attach forwards the simulation manager's notifications to d.
func (m *Manager) Attach(sm *manager.Manager, d *dispatcher.Dispatcher) {
	dispatch := func(e dispatcher.Event) {
		if _, err := d.Dispatch(e); err != nil {
			m.logger().Error("dispatch failed", "command", e.Command, "error", err)
		}
	}

	sm.OnStart(func(run *core.Run) {
		dispatch(dispatcher.Event{Command: CmdRunStart, Payload: run, Timestamp: time.Now()})
	})
	sm.OnFrame(func(n int, f *sim.Frame) {
		dispatch(dispatcher.Event{Command: CmdFrame, Payload: FrameEvent{Number: n, Frame: f}, Timestamp: time.Now()})
	})
	sm.OnEnd(func(run *core.Run, end core.RunEnd) {
		dispatch(dispatcher.Event{Command: CmdRunEnd, Payload: RunEndEvent{Run: run, End: end}, Timestamp: time.Now()})
	})
}

func (m *Manager) handleRunStart(e dispatcher.Event) (any, error) {
	run, ok := e.Payload.(*core.Run)
	if !ok || run == nil {
		return nil, fmt.Errorf("%s: unexpected payload %T", CmdRunStart, e.Payload)
	}

	if err := m.backend.StartRun(run); err != nil {
		return nil, fmt.Errorf("failed to start run: %w", err)
	}

	m.mu.Lock()
	m.run = run
	m.mu.Unlock()
	m.deps.Context.SetRun(run)

	m.logger().Info("run started", "runId", run.ID, "seed", run.Seed, "tag", run.Tag)
	return nil, nil
}

func (m *Manager) handleFrame(e dispatcher.Event) (any, error) {
	fe, ok := e.Payload.(FrameEvent)
	if !ok || fe.Frame == nil {
		return nil, fmt.Errorf("%s: unexpected payload %T", CmdFrame, e.Payload)
	}

	run := m.currentRun()
	if run == nil {
		return nil, ErrNoRun
	}

	if err := m.backend.RecordFrame(fe.Number, fe.Frame); err != nil {
		return nil, fmt.Errorf("failed to record frame %d: %w", fe.Number, err)
	}
	m.deps.Context.SetFrame(fe.Number)

	if m.deps.Stats != nil {
		if err := m.deps.Stats.WriteFrame(run, fe.Number, fe.Frame); err != nil {
			m.logger().Warn("failed to write frame statistics", "frame", fe.Number, "error", err)
		}
	}
	return nil, nil
}

func (m *Manager) handleRunEnd(e dispatcher.Event) (any, error) {
	re, ok := e.Payload.(RunEndEvent)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected payload %T", CmdRunEnd, e.Payload)
	}
	if m.currentRun() == nil {
		return nil, ErrNoRun
	}

	// frames still queued belong to this run
	m.drain()

	if err := m.backend.EndRun(&re.End); err != nil {
		return nil, fmt.Errorf("failed to end run: %w", err)
	}

	m.mu.Lock()
	m.run = nil
	m.mu.Unlock()

	m.logger().Info("run recorded",
		"frames", re.End.CurrentFrameNumber+1,
		"canceled", re.End.Canceled,
		"file", m.ExportedFilePath())
	return nil, nil
}
