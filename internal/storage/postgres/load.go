package postgres

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/piracysim/piracysim/internal/model"
	"github.com/piracysim/piracysim/internal/model/convert"
	"github.com/piracysim/piracysim/internal/storage/memory/export/v1"
	"github.com/piracysim/piracysim/pkg/sim"
)

// LoadRun rebuilds a recorded run from the database so it can be exported.
func LoadRun(db *gorm.DB, runID uint) (*v1.RunData, error) {
	var row model.Run
	if err := db.First(&row, runID).Error; err != nil {
		return nil, fmt.Errorf("failed to load run %d: %w", runID, err)
	}
	run, err := convert.RunToCore(row)
	if err != nil {
		return nil, err
	}

	var frameRows []model.FrameState
	if err := db.Where("run_id = ?", runID).Order("frame_number").Find(&frameRows).Error; err != nil {
		return nil, fmt.Errorf("failed to load frames of run %d: %w", runID, err)
	}
	if len(frameRows) == 0 {
		return nil, fmt.Errorf("run %d has no recorded frames", runID)
	}

	var shipRows []model.ShipState
	if err := db.Where("run_id = ?", runID).Order("frame_number, id").Find(&shipRows).Error; err != nil {
		return nil, fmt.Errorf("failed to load ships of run %d: %w", runID, err)
	}
	byFrame := make(map[int][]model.ShipState, len(frameRows))
	for _, s := range shipRows {
		byFrame[s.FrameNumber] = append(byFrame[s.FrameNumber], s)
	}

	frames := make([]*sim.Frame, 0, len(frameRows))
	for i, fr := range frameRows {
		if fr.FrameNumber != i {
			return nil, fmt.Errorf("run %d: frame %d missing", runID, i)
		}
		f, err := convert.FrameToCore(fr, byFrame[fr.FrameNumber])
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}

	last := len(frames) - 1
	data := &v1.RunData{
		Run:                &run,
		Conditions:         run.Conditions,
		Frames:             frames,
		CurrentSimTime:     frames[last].Time,
		CurrentFrameNumber: last,
	}
	if row.EndTime.Valid {
		data.CurrentSimTime = row.CurrentSimTime
		data.CurrentFrameNumber = min(max(row.CurrentFrameNumber, 0), last)
	}
	return data, nil
}
