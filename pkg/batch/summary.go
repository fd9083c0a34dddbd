package batch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cyclopcam/vidannotate/pkg/perfstats"
)

// VideoResult is the outcome of one input video
type VideoResult struct {
	Index  int    // Position in discovery order
	Input  string // Input path
	Output string // Output path. Empty if no output was kept.
	State  VideoState
	Err    error // Why the video failed or was skipped

	Width         int
	Height        int
	FPS           float64
	NominalFrames int // Frame count claimed by the container
	FramesRead    int
	FramesWritten int
	Detections    int
	ClassCounts   map[int]int           // Number of detections of each class
	Stages        *perfstats.StageTimes // Time spent per frame in each pipeline stage

	Started   time.Time
	Elapsed   time.Duration
	Published string // Where the output was published to, if anywhere
}

// Summary of a batch run
type Summary struct {
	Started     time.Time
	Elapsed     time.Duration
	NothingToDo bool          // No input files were found
	Results     []VideoResult // In discovery order

	Total        int
	Succeeded    int // Finalized
	Truncated    int
	Skipped      int // SkippedOpenFailure
	Failed       int
	NotAttempted int // Batch stopped before these videos were started

	Stages *perfstats.StageTimes
}

func (s *Summary) tally() {
	s.Total = len(s.Results)
	s.Succeeded, s.Truncated, s.Skipped, s.Failed, s.NotAttempted = 0, 0, 0, 0, 0
	for _, r := range s.Results {
		switch r.State {
		case StateFinalized:
			s.Succeeded++
		case StateTruncated:
			s.Truncated++
		case StateSkippedOpenFailure:
			s.Skipped++
		case StateFailed:
			s.Failed++
		default:
			s.NotAttempted++
		}
	}
}

// Number of videos that produced an output file
func (s *Summary) Outputs() int {
	return s.Succeeded + s.Truncated
}

func (s *Summary) String() string {
	if s.NothingToDo {
		return "No video files found"
	}
	str := fmt.Sprintf("%v of %v videos succeeded", s.Succeeded, s.Total)
	if s.Truncated != 0 {
		str += fmt.Sprintf(", %v truncated", s.Truncated)
	}
	if s.Skipped != 0 {
		str += fmt.Sprintf(", %v skipped", s.Skipped)
	}
	if s.Failed != 0 {
		str += fmt.Sprintf(", %v failed", s.Failed)
	}
	if s.NotAttempted != 0 {
		str += fmt.Sprintf(", %v not attempted", s.NotAttempted)
	}
	return str
}

// Trail is the report printed at the end of a run: one line per video, then the totals.
// A batch that stopped with a fatal error has no trail, only the error.
// A cancelled batch still reports what was done before it stopped.
func (s *Summary) Trail(runErr error) []string {
	if s == nil {
		return nil
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return nil
	}
	if s.NothingToDo {
		return []string{"Nothing to do"}
	}
	lines := []string{}
	for _, r := range s.Results {
		line := fmt.Sprintf("%-20v %v", r.State, filepath.Base(r.Input))
		if r.State.HasOutput() {
			line += fmt.Sprintf(" -> %v (%v frames, %.1f s)", filepath.Base(r.Output), r.FramesWritten, r.Elapsed.Seconds())
		} else if r.Err != nil {
			line += fmt.Sprintf(": %v", r.Err)
		}
		lines = append(lines, line)
	}
	return append(lines, s.String())
}
