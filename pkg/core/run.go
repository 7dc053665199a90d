// pkg/core/run.go
package core

import "time"

// Run describes one recorded simulation run.
type Run struct {
	ID               uint
	Name             string
	Tag              string
	Seed             int64
	StartTime        time.Time
	Conditions       InitSimData
	ExtensionVersion string
}

// RunEnd is reported to storage when a run stops, either by reaching its
// configured run time or by being canceled.
type RunEnd struct {
	CurrentSimTime     int
	CurrentFrameNumber int
	Canceled           bool
	EndTime            time.Time
}
