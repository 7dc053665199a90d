// Package streaming defines the messages a recorder streams to a live viewer.
// Every message is an Envelope; start_run and end_run are acknowledged by the
// server with an AckMessage, frames are not.
package streaming

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/piracysim/piracysim/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeStartRun = "start_run"
	TypeFrame    = "frame"
	TypeEndRun   = "end_run"
	TypeAck      = "ack"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StartRunPayload announces a run and its initial conditions.
type StartRunPayload struct {
	RunID             uint             `json:"runId,omitempty"`
	RunName           string           `json:"runName"`
	Tag               string           `json:"tag,omitempty"`
	Seed              int64            `json:"seed"`
	StartTime         time.Time        `json:"startTime"`
	InitialConditions core.InitSimData `json:"initialConditions"`
}

// FramePayload carries one frame in the export file's frame encoding.
type FramePayload struct {
	FrameNumber int             `json:"frameNumber"`
	Frame       json.RawMessage `json:"frame"`
}

// EndRunPayload closes a run.
type EndRunPayload struct {
	CurrentSimTime     int       `json:"currentSimTime"`
	CurrentFrameNumber int       `json:"currentFrameNumber"`
	Canceled           bool      `json:"canceled"`
	EndTime            time.Time `json:"endTime"`
}

// NewStartRunPayload builds the start_run payload of run.
func NewStartRunPayload(run *core.Run) StartRunPayload {
	return StartRunPayload{
		RunID:             run.ID,
		RunName:           run.Name,
		Tag:               run.Tag,
		Seed:              run.Seed,
		StartTime:         run.StartTime,
		InitialConditions: run.Conditions,
	}
}

// NewEndRunPayload builds the end_run payload.
func NewEndRunPayload(end *core.RunEnd) EndRunPayload {
	return EndRunPayload{
		CurrentSimTime:     end.CurrentSimTime,
		CurrentFrameNumber: end.CurrentFrameNumber,
		Canceled:           end.Canceled,
		EndTime:            end.EndTime,
	}
}

// Marshal wraps payload in an Envelope of the given type.
func Marshal(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// Unmarshal decodes an envelope and its payload into out. out may be nil to
// read only the type.
func Unmarshal(data []byte, out any) (string, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("unmarshal envelope: %w", err)
	}
	if out != nil {
		if err := json.Unmarshal(env.Payload, out); err != nil {
			return env.Type, fmt.Errorf("unmarshal %s payload: %w", env.Type, err)
		}
	}
	return env.Type, nil
}
