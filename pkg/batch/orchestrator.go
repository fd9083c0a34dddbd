// Package batch runs every video in a directory through a detector, and writes annotated copies.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/vidannotate/pkg/fourcc"
	"github.com/cyclopcam/vidannotate/pkg/perfstats"
	"golang.org/x/sync/errgroup"
)

// Orchestrator drives discovery, and then Reader -> Detector -> Writer for each video.
type Orchestrator struct {
	Observer  Observer  // Optional
	Recorder  Recorder  // Optional
	Publisher Publisher // Optional

	log      logs.Log
	config   Config
	detector Detector
	media    Media
	now      func() time.Time
}

// New creates an orchestrator. The detector must already be loaded.
func New(log logs.Log, config Config, detector Detector, media Media) (*Orchestrator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if detector == nil {
		return nil, errors.New("No detector")
	}
	if media == nil {
		return nil, errors.New("No media backend")
	}
	return &Orchestrator{
		log:      log,
		config:   config,
		detector: detector,
		media:    media,
		now:      time.Now,
	}, nil
}

func (o *Orchestrator) Config() Config {
	return o.config
}

// Run processes every video in the input directory.
// Per-video failures are reported in the Summary, and do not cause an error.
// An error is returned if discovery fails, if the context is cancelled, or if AbortOnStreamError
// is set and a video fails mid-stream (*AbortError). The Summary is non-nil whenever discovery succeeded.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{
		Started: o.now(),
		Stages:  perfstats.NewStageTimes(),
	}

	files, err := Discover(o.config.InputDir, o.config.Extensions)
	if err != nil {
		return nil, fmt.Errorf("Failed to list input directory: %w", err)
	}
	if len(files) == 0 {
		o.log.Infof("No video files found in %v", o.config.InputDir)
		summary.NothingToDo = true
		summary.tally()
		return summary, nil
	}
	if err := os.MkdirAll(o.config.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("Failed to create output directory: %w", err)
	}

	o.log.Infof("Found %v videos in %v", len(files), o.config.InputDir)
	summary.Results = make([]VideoResult, len(files))
	for i, f := range files {
		summary.Results[i] = VideoResult{Index: i, Input: f, State: StateDiscovered}
	}

	// With one worker this is a plain sequential loop, because Go() blocks until the previous video is done
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(o.config.Workers)
	for i := range files {
		if gctx.Err() != nil {
			break
		}
		group.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			return o.processVideo(gctx, &summary.Results[i], len(files), summary.Stages)
		})
	}
	runErr := group.Wait()
	if runErr == nil && ctx.Err() != nil {
		runErr = ctx.Err()
	}

	summary.Elapsed = o.now().Sub(summary.Started)
	summary.tally()
	if errors.Is(runErr, context.Canceled) {
		o.log.Errorf("Batch cancelled after %.1f seconds (%v)", summary.Elapsed.Seconds(), summary)
		return summary, runErr
	} else if runErr != nil {
		o.log.Errorf("Batch stopped after %.1f seconds: %v", summary.Elapsed.Seconds(), runErr)
		return summary, runErr
	}
	o.log.Infof("All videos processed in %.1f seconds: %v", summary.Elapsed.Seconds(), summary)
	if stages := summary.Stages.String(); stages != "" {
		o.log.Infof("Average time per frame: %v", stages)
	}
	return summary, nil
}

// Process a single video, updating 'res' in place.
// Returns a non-nil error only if the whole batch must stop.
func (o *Orchestrator) processVideo(ctx context.Context, res *VideoResult, total int, stages *perfstats.StageTimes) error {
	log := NewPrefixLogger(o.log, fmt.Sprintf("[%v/%v %v]", res.Index+1, total, filepath.Base(res.Input)))
	res.Started = o.now()
	res.ClassCounts = map[int]int{}
	res.Stages = perfstats.NewStageTimes()
	outputPath := filepath.Join(o.config.OutputDir, OutputName(res.Started, res.Input))

	setState := func(s VideoState) {
		log.Debugf("%v -> %v", res.State, s)
		res.State = s
		if o.Observer != nil {
			o.Observer.OnStateChange(res.Index, res.Input, s)
		}
	}

	log.Infof("Processing %v", res.Input)
	abortErr, truncated := o.stream(ctx, log, res, outputPath, setState)
	res.Elapsed = o.now().Sub(res.Started)
	stages.Merge(res.Stages)

	switch {
	case res.State == StateSkippedOpenFailure:
		log.Errorf("Skipped: %v", res.Err)
	case res.Err != nil:
		setState(StateFailed)
		log.Errorf("Failed after %v frames: %v", res.FramesWritten, res.Err)
		if res.Output != "" && !o.config.KeepPartial {
			if err := os.Remove(res.Output); err != nil && !os.IsNotExist(err) {
				log.Warnf("Failed to remove partial output %v: %v", res.Output, err)
			}
			res.Output = ""
		}
	case truncated:
		setState(StateTruncated)
		log.Warnf("Stream ended after %v frames, but the container claims %v", res.FramesRead, res.NominalFrames)
	default:
		setState(StateFinalized)
	}

	if res.State.HasOutput() {
		log.Infof("Finished in %.1f seconds: %v frames, %v detections -> %v", res.Elapsed.Seconds(), res.FramesWritten, res.Detections, res.Output)
		if o.Publisher != nil {
			where, err := o.Publisher.Publish(ctx, res.Output, filepath.Base(res.Output))
			if err != nil {
				log.Errorf("Failed to publish %v: %v", res.Output, err)
			} else {
				res.Published = where
				log.Infof("Published to %v", where)
			}
		}
	}

	if o.Recorder != nil {
		if err := o.Recorder.RecordVideo(res); err != nil {
			log.Warnf("Failed to record result: %v", err)
		}
	}
	if o.Observer != nil {
		o.Observer.OnVideoDone(res)
	}
	return abortErr
}

// Open the reader and writer, and run the frame loop.
// The reader and writer are always closed before this function returns.
// On failure, res.Err is set. The returned error is non-nil if the whole batch must stop.
func (o *Orchestrator) stream(ctx context.Context, log *PrefixLogger, res *VideoResult, outputPath string, setState func(VideoState)) (abortErr error, truncated bool) {
	reader, err := o.media.OpenReader(res.Input)
	if err != nil {
		res.Err = err
		setState(StateSkippedOpenFailure)
		return nil, false
	}
	defer func() {
		if err := reader.Close(); err != nil {
			log.Warnf("Failed to close reader: %v", err)
		}
	}()

	info := reader.Info()
	res.Width = info.Width
	res.Height = info.Height
	res.FPS = info.FPS
	res.NominalFrames = info.FrameCount
	setState(StateOpened)
	log.Infof("%v x %v, %.2f FPS, %v frames", info.Width, info.Height, info.FPS, info.FrameCount)

	// A container that opens, but has nothing we can decode, is treated like one that can't be opened.
	// Reading the first frame here means that no output is created for it.
	t0 := time.Now()
	pending, err := reader.NextFrame()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = ErrNoFrames
		}
		res.Err = err
		setState(StateSkippedOpenFailure)
		return nil, false
	}
	firstDecode := time.Since(t0)

	if !(res.FPS > 0) {
		log.Warnf("Frame rate is unknown, writing output at %v FPS", FallbackFPS)
		res.FPS = FallbackFPS
	}

	writer, err := o.media.OpenWriter(outputPath, o.codecFor(outputPath), info.Width, info.Height, res.FPS)
	if err != nil {
		res.Err = fmt.Errorf("Failed to create output: %w", err)
		return nil, false
	}
	res.Output = outputPath
	defer func() {
		if err := writer.Close(); err != nil && res.Err == nil {
			res.Err = fmt.Errorf("Failed to finalize output: %w", err)
		}
	}()

	setState(StateStreaming)
	meter := perfstats.NewThroughput(res.Started, o.config.ProgressInterval)
	fail := func(err error) (error, bool) {
		res.Err = err
		if o.config.AbortOnStreamError {
			return &AbortError{Input: res.Input, Err: err}, false
		}
		return nil, false
	}

	for {
		if err := ctx.Err(); err != nil {
			res.Err = err
			return err, false
		}

		var frame *cimg.Image
		var decodeTime time.Duration
		if pending != nil {
			frame, decodeTime = pending, firstDecode
			pending = nil
		} else {
			t0 := time.Now()
			frame, err = reader.NextFrame()
			if errors.Is(err, io.EOF) {
				break
			} else if err != nil {
				return fail(fmt.Errorf("Failed to decode frame %v: %w", res.FramesRead, err))
			}
			decodeTime = time.Since(t0)
		}
		res.FramesRead++
		t1 := time.Now()

		dets, err := o.detector.Infer(frame)
		if err != nil {
			if !errors.Is(err, ErrInference) {
				err = fmt.Errorf("%w: %w", ErrInference, err)
			}
			return fail(fmt.Errorf("Frame %v: %w", res.FramesRead-1, err))
		}
		t2 := time.Now()

		annotated, err := o.detector.Render(frame, dets)
		if err != nil {
			return fail(fmt.Errorf("Failed to render frame %v: %w", res.FramesRead-1, err))
		}
		t3 := time.Now()

		if err := writer.WriteFrame(annotated); err != nil {
			return fail(fmt.Errorf("Failed to write frame %v: %w", res.FramesRead-1, err))
		}
		t4 := time.Now()
		res.FramesWritten++
		res.Detections += len(dets)
		for _, d := range dets {
			res.ClassCounts[d.Class]++
		}

		res.Stages.Add(perfstats.StageDecode, decodeTime)
		res.Stages.Add(perfstats.StageInfer, t2.Sub(t1))
		res.Stages.Add(perfstats.StageRender, t3.Sub(t2))
		res.Stages.Add(perfstats.StageEncode, t4.Sub(t3))

		now := o.now()
		meter.Tick(now)
		if res.FramesWritten%o.config.ProgressInterval == 0 {
			fps := meter.Overall(now)
			recent := meter.Recent()
			if info.FrameCount > 0 {
				log.Infof("Progress: %v/%v frames (%.1f FPS, %.1f recent)", res.FramesWritten, info.FrameCount, fps, recent)
			} else {
				log.Infof("Progress: %v frames (%.1f FPS, %.1f recent)", res.FramesWritten, fps, recent)
			}
			if o.Observer != nil {
				o.Observer.OnProgress(res.Index, res.Input, res.FramesWritten, info.FrameCount, fps, recent)
			}
		}
	}

	truncated = info.FrameCount > 0 && res.FramesRead+o.config.TruncationSlack < info.FrameCount
	return nil, truncated
}

func (o *Orchestrator) codecFor(outputPath string) string {
	if o.config.CodecPerExtension {
		return fourcc.ForExtension(filepath.Ext(outputPath))
	}
	return o.config.Codec
}
