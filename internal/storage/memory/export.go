// internal/storage/memory/export.go
package memory

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/piracysim/piracysim/internal/storage/memory/export/v1"
	"github.com/piracysim/piracysim/internal/util"
)

// ErrNoFrames is returned by EndRun when nothing was recorded.
var ErrNoFrames = errors.New("no frames recorded")

// ExportFileName builds <name>_<start>.json[.gz] for the current run.
func (b *Backend) ExportFileName() string {
	name := fmt.Sprintf("%s_%s.json",
		util.SafeFileName(b.run.Name),
		b.run.StartTime.Format("20060102_150405"),
	)
	if b.cfg.CompressOutput {
		name += ".gz"
	}
	return name
}

// exportJSON writes the run to a (optionally gzipped) JSON file
func (b *Backend) exportJSON() error {
	if len(b.frames) == 0 {
		return ErrNoFrames
	}

	export := v1.Build(b.buildRunData())
	outputPath := filepath.Join(b.cfg.OutputDir, b.ExportFileName())

	// Ensure output directory exists
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := v1.WriteFile(outputPath, &export, b.cfg.CompressOutput); err != nil {
		return err
	}

	b.lastExportPath = outputPath
	return nil
}

func (b *Backend) buildRunData() *v1.RunData {
	last := len(b.frames) - 1
	data := &v1.RunData{
		Run:                b.run,
		Conditions:         b.run.Conditions,
		Frames:             b.frames,
		CurrentSimTime:     b.frames[last].Time,
		CurrentFrameNumber: last,
	}
	if b.end != nil {
		data.CurrentSimTime = b.end.CurrentSimTime
		data.CurrentFrameNumber = min(max(b.end.CurrentFrameNumber, 0), last)
	}
	return data
}
