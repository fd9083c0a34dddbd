// Package rundb keeps a ledger of batch runs, and the outcome of every video in them.
package rundb

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/vidannotate/pkg/batch"
	"gorm.io/gorm"
)

type RunDB struct {
	log logs.Log
	DB  *gorm.DB
}

// Open or create a run database
func Open(logger logs.Log, dbFilename string) (*RunDB, error) {
	db, err := dbh.OpenDB(logger, dbh.MakeSqliteConfig(dbFilename), Migrations(logger), 0)
	if err != nil {
		return nil, fmt.Errorf("Failed to open run database %v: %w", dbFilename, err)
	}
	logger.Infof("Opened run database %v", dbFilename)
	return &RunDB{
		log: logger,
		DB:  db,
	}, nil
}

func (r *RunDB) Close() {
	if sqlDB, err := r.DB.DB(); err == nil {
		sqlDB.Close()
	}
}

// BeginRun creates the record of a new batch run
func (r *RunDB) BeginRun(uuid, inputDir, outputDir, model string, start time.Time) (*Run, error) {
	run := &Run{
		UUID:      uuid,
		StartTime: dbh.MakeIntTime(start),
		InputDir:  inputDir,
		OutputDir: outputDir,
		Model:     model,
	}
	if err := r.DB.Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

// EndRun stores the final counts of a run. summary may be nil if the batch never got going.
func (r *RunDB) EndRun(run *Run, summary *batch.Summary, runErr error, end time.Time) error {
	run.EndTime = dbh.MakeIntTime(end)
	if summary != nil {
		run.Total = summary.Total
		run.Succeeded = summary.Succeeded
		run.Truncated = summary.Truncated
		run.Skipped = summary.Skipped
		run.Failed = summary.Failed
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	return r.DB.Save(run).Error
}

// Returns the most recent runs, newest first
func (r *RunDB) RecentRuns(limit int) ([]Run, error) {
	runs := []Run{}
	if err := r.DB.Order("start_time DESC, id DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

func (r *RunDB) RunByUUID(uuid string) (*Run, error) {
	run := Run{}
	if err := r.DB.Where("uuid = ?", uuid).First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// Returns the videos of a run, in processing order
func (r *RunDB) Videos(runID int64) ([]Video, error) {
	videos := []Video{}
	if err := r.DB.Where("run_id = ?", runID).Order("id").Find(&videos).Error; err != nil {
		return nil, err
	}
	return videos, nil
}

// Report describes a run and each of its videos, one line each
func (r *RunDB) Report(run *Run) ([]string, error) {
	videos, err := r.Videos(run.ID)
	if err != nil {
		return nil, err
	}
	lines := []string{
		fmt.Sprintf("Run %v at %v, %v -> %v, model %v: %v of %v succeeded, %v truncated, %v skipped, %v failed",
			run.UUID, run.StartTime.Get().Format("2006-01-02 15:04:05"), run.InputDir, run.OutputDir, run.Model,
			run.Succeeded, run.Total, run.Truncated, run.Skipped, run.Failed),
	}
	if run.Error != "" {
		lines = append(lines, "  Stopped early: "+run.Error)
	}
	for _, v := range videos {
		line := fmt.Sprintf("  %-20v %v", v.State, filepath.Base(v.Input))
		if v.Output != "" {
			line += fmt.Sprintf(" -> %v (%v frames, %.1f s)", filepath.Base(v.Output), v.FramesWritten, v.Duration().Seconds())
		} else if v.Error != "" {
			line += ": " + v.Error
		}
		if v.Published != "" {
			line += ", published to " + v.Published
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// Recorder writes the outcome of each video of 'run'. It implements batch.Recorder.
func (r *RunDB) Recorder(run *Run) *Recorder {
	return &Recorder{db: r, run: run}
}

type Recorder struct {
	db   *RunDB
	run  *Run
	lock sync.Mutex
}

func (rec *Recorder) RecordVideo(res *batch.VideoResult) error {
	v := &Video{
		RunID:         rec.run.ID,
		Input:         res.Input,
		Output:        res.Output,
		State:         res.State.String(),
		Width:         res.Width,
		Height:        res.Height,
		Fps:           res.FPS,
		NominalFrames: res.NominalFrames,
		FramesRead:    res.FramesRead,
		FramesWritten: res.FramesWritten,
		Detections:    res.Detections,
		StartTime:     dbh.MakeIntTime(res.Started),
		DurationMs:    res.Elapsed.Milliseconds(),
		Published:     res.Published,
	}
	if res.Err != nil {
		v.Error = res.Err.Error()
	}
	var stats dbh.JSONField[VideoStatsJSON]
	stats.Data.ClassCounts = res.ClassCounts
	if res.Elapsed > 0 {
		stats.Data.AverageFPS = float64(res.FramesWritten) / res.Elapsed.Seconds()
	}
	if res.Stages != nil {
		stats.Data.StageMs = map[string]float64{}
		for name, acc := range res.Stages.Snapshot() {
			stats.Data.StageMs[name] = float64(acc.Average().Microseconds()) / 1000
		}
	}
	v.Stats = &stats

	// sqlite only allows one writer at a time
	rec.lock.Lock()
	defer rec.lock.Unlock()
	return rec.db.DB.Create(v).Error
}
