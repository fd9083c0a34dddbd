package batch

import "context"

// Observer receives events from a batch run.
// When Config.Workers > 1, events arrive from multiple goroutines, so implementations must be thread safe.
type Observer interface {
	OnStateChange(index int, input string, state VideoState)
	// fps is frames processed divided by wall-clock seconds since the video started.
	// recentFPS is the rate over the last Config.ProgressInterval frames.
	// total is the nominal frame count, which may be zero.
	OnProgress(index int, input string, frames, total int, fps, recentFPS float64)
	OnVideoDone(result *VideoResult)
}

// Recorder persists the outcome of every video (see rundb).
// Recording errors are logged, but do not affect the batch.
type Recorder interface {
	RecordVideo(result *VideoResult) error
}

// Publisher copies a finished output somewhere else (see blobstore).
// Returns a description of where the file went.
type Publisher interface {
	Publish(ctx context.Context, localPath, name string) (string, error)
}
