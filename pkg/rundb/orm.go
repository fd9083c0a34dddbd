package rundb

import (
	"time"

	"github.com/cyclopcam/dbh"
)

// BaseModel is our base class for a GORM model.
// The default GORM Model uses int, but we prefer int64
type BaseModel struct {
	ID int64 `gorm:"primaryKey" json:"id"`
}

// A Run is one invocation of the batch
type Run struct {
	BaseModel
	UUID      string      `json:"uuid"`
	StartTime dbh.IntTime `json:"startTime"`
	EndTime   dbh.IntTime `json:"endTime"`
	InputDir  string      `json:"inputDir"`
	OutputDir string      `json:"outputDir"`
	Model     string      `json:"model"`
	Total     int         `json:"total"`
	Succeeded int         `json:"succeeded"`
	Truncated int         `json:"truncated"`
	Skipped   int         `json:"skipped"`
	Failed    int         `json:"failed"`
	Error     string      `json:"error"` // Why the batch stopped early, if it did
}

// A Video is the outcome of one input file within a Run
type Video struct {
	BaseModel
	RunID         int64                          `json:"runID"`
	Input         string                         `json:"input"`
	Output        string                         `json:"output"`
	State         string                         `json:"state"`
	Error         string                         `json:"error"`
	Width         int                            `json:"width"`
	Height        int                            `json:"height"`
	Fps           float64                        `json:"fps"`
	NominalFrames int                            `json:"nominalFrames"`
	FramesRead    int                            `json:"framesRead"`
	FramesWritten int                            `json:"framesWritten"`
	Detections    int                            `json:"detections"`
	StartTime     dbh.IntTime                    `json:"startTime"`
	DurationMs    int64                          `json:"durationMs"`
	Published     string                         `json:"published"`
	Stats         *dbh.JSONField[VideoStatsJSON] `json:"stats"`
}

func (v *Video) Duration() time.Duration {
	return time.Duration(v.DurationMs) * time.Millisecond
}

// Extra per-video details that we don't need to query on
type VideoStatsJSON struct {
	ClassCounts map[int]int `json:"classCounts"` // Number of detections, by class index
	AverageFPS  float64     `json:"averageFPS"`  // Frames written / wall-clock seconds

	// Average milliseconds per frame spent in each pipeline stage (decode, infer, ...)
	StageMs map[string]float64 `json:"stageMs,omitempty"`
}
