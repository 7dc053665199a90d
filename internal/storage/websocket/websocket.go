// Package websocket streams runs to a live viewer over a WebSocket.
package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/piracysim/piracysim/internal/storage/memory/export/v1"
	"github.com/piracysim/piracysim/pkg/core"
	"github.com/piracysim/piracysim/pkg/sim"
	"github.com/piracysim/piracysim/pkg/streaming"
)

// Config holds WebSocket backend configuration.
type Config struct {
	URL    string
	Secret string
}

// Backend sends start_run, every frame and end_run to the server. Frames are
// fire-and-forget; run boundaries wait for an ack.
type Backend struct {
	conn *connection
	cfg  Config
}

// New creates a new WebSocket storage backend. logger may be nil.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		conn: newConnection(logger),
		cfg:  cfg,
	}
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	return b.conn.dial(b.cfg.URL, b.cfg.Secret)
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	return b.conn.close()
}

// StartRun announces the run and waits for the server ack. The message is
// kept and replayed after a reconnect.
func (b *Backend) StartRun(run *core.Run) error {
	data, err := streaming.Marshal(streaming.TypeStartRun, streaming.NewStartRunPayload(run))
	if err != nil {
		return err
	}

	b.conn.mu.Lock()
	b.conn.cachedStartMsg = data
	b.conn.mu.Unlock()

	return b.conn.sendAndWait(data, streaming.TypeStartRun, ackTimeout)
}

// RecordFrame queues the frame for sending.
func (b *Backend) RecordFrame(number int, f *sim.Frame) error {
	raw, err := json.Marshal(v1.BuildFrame(f))
	if err != nil {
		return fmt.Errorf("marshal frame %d: %w", number, err)
	}
	data, err := streaming.Marshal(streaming.TypeFrame, streaming.FramePayload{FrameNumber: number, Frame: raw})
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}

// EndRun sends end_run and waits for the server ack.
func (b *Backend) EndRun(end *core.RunEnd) error {
	data, err := streaming.Marshal(streaming.TypeEndRun, streaming.NewEndRunPayload(end))
	if err != nil {
		return err
	}
	err = b.conn.sendAndWait(data, streaming.TypeEndRun, ackTimeout)

	b.conn.mu.Lock()
	b.conn.cachedStartMsg = nil
	b.conn.mu.Unlock()

	return err
}

// Dropped is the number of messages discarded because the send queue was full.
func (b *Backend) Dropped() uint64 {
	return b.conn.dropped.Load()
}
