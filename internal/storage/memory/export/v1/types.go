// Package v1 is the JSON exchange format for simulation runs. Field names
// match the files written by the browser version of the simulator so both
// can read each other's exports.
package v1

import "github.com/piracysim/piracysim/pkg/core"

// Version is written to exportVersion.
const Version = "1"

// Export is the root of an export file. The simulation fields sit at the
// top level; the remaining keys are optional metadata.
type Export struct {
	ExportVersion string `json:"exportVersion,omitempty"`
	RunName       string `json:"runName,omitempty"`
	Tag           string `json:"tag,omitempty"`
	Seed          *int64 `json:"seed,omitempty"`
	CreatedAt     string `json:"createdAt,omitempty"`

	Simulation
}

// Simulation is the persisted state of a run.
type Simulation struct {
	CurrentSimTime     *int             `json:"currentSimTime" validate:"required"`
	CurrentFrameNumber *int             `json:"currentFrameNumber" validate:"required"`
	InitialConditions  core.InitSimData `json:"initialConditions"`
	Frames             []Frame          `json:"frames" validate:"required,min=1,dive"`
}

// Frame is one time step.
type Frame struct {
	FrameTime    int             `json:"frameTime" validate:"gte=0"`
	IsDayFrame   bool            `json:"isDayFrame"`
	CargoList    []Ship          `json:"cargoList" validate:"required,dive"`
	PatrolList   []Ship          `json:"patrolList" validate:"required,dive"`
	PirateList   []Ship          `json:"pirateList" validate:"required,dive"`
	CaptureList  []Ship          `json:"captureList" validate:"required,dive"`
	SimStatsData core.Statistics `json:"simStatsData"`
}

// Ship is one entity. PirateUID is set for captures, HasCapture for
// pirates and EvadedPirates for cargo ships.
type Ship struct {
	ShipType      string `json:"shipType" validate:"required,oneof=Cargo Patrol Pirate Capture"`
	XPos          int    `json:"xPos"`
	YPos          int    `json:"yPos"`
	UniqueID      int    `json:"UniqueID" validate:"gte=0"`
	PirateUID     *int   `json:"pirateUID,omitempty"`
	HasCapture    *bool  `json:"hasCapture,omitempty"`
	EvadedPirates []int  `json:"evadedPirates,omitempty"`
}
