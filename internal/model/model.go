package model

import (
	"database/sql"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/piracysim/piracysim/pkg/core"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []any{
	&Run{},
	&FrameState{},
	&ShipState{},
	&SimPerformance{},
}

////////////////////////
// RECORDING MODELS
////////////////////////

// Run is one simulation run, from the first tick to the end or cancellation
type Run struct {
	gorm.Model
	Name             string       `json:"name" gorm:"size:200"`
	Tag              string       `json:"tag" gorm:"size:127"`
	Seed             int64        `json:"seed"`
	StartTime        time.Time    `json:"startTime" gorm:"type:timestamptz;index:idx_run_start"`
	EndTime          sql.NullTime `json:"endTime" gorm:"type:timestamptz"`
	ExtensionVersion string       `json:"extensionVersion" gorm:"size:64"`

	// denormalized from InitialConditions for querying
	RunTime          int  `json:"runTime"`
	TimeStep         int  `json:"timeStep"`
	Rows             int  `json:"rows"`
	Cols             int  `json:"cols"`
	ConsiderDayNight bool `json:"considerDayNight"`

	InitialConditions datatypes.JSON `json:"initialConditions"` // full core.InitSimData

	CurrentSimTime     int  `json:"currentSimTime"`
	CurrentFrameNumber int  `json:"currentFrameNumber"`
	Canceled           bool `json:"canceled" gorm:"default:false"`
}

func (*Run) TableName() string {
	return "runs"
}

// FrameState is one frame of a run with its cumulative statistics
type FrameState struct {
	ID          uint `json:"id" gorm:"primarykey;autoIncrement;"`
	RunID       uint `json:"runId" gorm:"index:idx_framestate_run_frame,priority:1"`
	Run         Run  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:RunID;"`
	FrameNumber int  `json:"frameNumber" gorm:"index:idx_framestate_run_frame,priority:2"`
	FrameTime   int  `json:"frameTime"` // simulated minutes since start
	IsDaylight  bool `json:"isDaylight"`
	ShipCount   int  `json:"shipCount"`

	Stats core.Statistics `json:"stats" gorm:"embedded;embeddedPrefix:stats_"`
}

func (*FrameState) TableName() string {
	return "frame_states"
}

// ShipState is one ship as it stood at the end of a frame
type ShipState struct {
	ID          uint   `json:"id" gorm:"primarykey;autoIncrement;"`
	RunID       uint   `json:"runId" gorm:"index:idx_shipstate_run_frame,priority:1"`
	Run         Run    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:RunID;"`
	FrameNumber int    `json:"frameNumber" gorm:"index:idx_shipstate_run_frame,priority:2"`
	ShipID      int    `json:"shipId" gorm:"index:idx_shipstate_ship_id"`
	Kind        string `json:"kind" gorm:"size:16"` // Cargo, Patrol, Pirate, Capture
	X           int    `json:"x"`
	Y           int    `json:"y"`

	Position geom.Point `json:"position"` // cell center in EPSG:3857

	HasCapture        bool           `json:"hasCapture" gorm:"default:false"` // Pirate only
	CapturingPirateID sql.NullInt64  `json:"capturingPirateId"`               // Capture only
	EvadedPirates     datatypes.JSON `json:"evadedPirates"`                   // Cargo only, JSON array of pirate ids
}

func (*ShipState) TableName() string {
	return "ship_states"
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// SimPerformance is a periodic snapshot of the recorder itself
type SimPerformance struct {
	Time                time.Time         `json:"time" gorm:"type:timestamptz;index:idx_simperformance_time"`
	RunID               uint              `json:"runId" gorm:"index:idx_simperformance_run_id"`
	Run                 Run               `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:RunID;"`
	FrameNumber         int               `json:"frameNumber"`
	SimTime             int               `json:"simTime"`
	LiveShips           int               `json:"liveShips"`
	WriteQueueLengths   WriteQueueLengths `json:"writeQueueLengths" gorm:"embedded;embeddedPrefix:writequeue_"`
	LastWriteDurationMs float32           `json:"lastWriteDurationMs"`
}

func (*SimPerformance) TableName() string {
	return "sim_performances"
}

// WriteQueueLengths holds the pending rows of the database writer
type WriteQueueLengths struct {
	Frames uint32 `json:"frames"`
	Ships  uint32 `json:"ships"`
}
