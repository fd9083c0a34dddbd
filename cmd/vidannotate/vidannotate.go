package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/vidannotate/pkg/batch"
	"github.com/cyclopcam/vidannotate/pkg/blobstore"
	"github.com/cyclopcam/vidannotate/pkg/nnload"
	"github.com/cyclopcam/vidannotate/pkg/rundb"
	"github.com/google/uuid"
)

// Process exit codes
const (
	exitOK         = 0 // The batch ran, even if some videos failed
	exitBadArgs    = 1
	exitModelLoad  = 2
	exitBatchFatal = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	parser := argparse.NewParser("vidannotate", "Run every video in a directory through an object detector, and write annotated copies")
	input := parser.String("i", "input", &argparse.Options{Help: "Directory of input videos (default videos/input)", Required: false})
	output := parser.String("o", "output", &argparse.Options{Help: "Directory for annotated videos (default videos/output)", Required: false})
	modelID := parser.String("m", "model", &argparse.Options{Help: "Model: path to .onnx file, URL, or stock name such as yolov8n", Required: false, Default: "best.onnx"})
	configFile := parser.String("c", "config", &argparse.Options{Help: "YAML config file. Command line flags take precedence.", Required: false})
	codec := parser.String("", "codec", &argparse.Options{Help: "FourCC of output videos (default mp4v)", Required: false})
	codecPerExt := parser.Flag("", "codec-per-ext", &argparse.Options{Help: "Choose the output codec from the file extension"})
	noCodecPerExt := parser.Flag("", "no-codec-per-ext", &argparse.Options{Help: "Use the same codec for every output"})
	interval := parser.Int("", "interval", &argparse.Options{Help: "Log throughput every N frames (default 30)", Required: false})
	threshold := parser.Float("", "threshold", &argparse.Options{Help: "Minimum detection confidence", Required: false})
	nms := parser.Float("", "nms", &argparse.Options{Help: "IoU threshold for non-maximum suppression", Required: false})
	workers := parser.Int("w", "workers", &argparse.Options{Help: "Number of videos to process at once (default 1)", Required: false})
	tiled := parser.Flag("", "tiled", &argparse.Options{Help: "Split frames that are larger than the model into tiles"})
	noTiled := parser.Flag("", "no-tiled", &argparse.Options{Help: "Resize whole frames to the model input"})
	abortOnError := parser.Flag("", "abort-on-error", &argparse.Options{Help: "Stop the whole batch if a video fails mid-stream"})
	noAbortOnError := parser.Flag("", "no-abort-on-error", &argparse.Options{Help: "Keep going when a video fails mid-stream"})
	keepPartial := parser.Flag("", "keep-partial", &argparse.Options{Help: "Keep the partial output of failed videos"})
	noKeepPartial := parser.Flag("", "no-keep-partial", &argparse.Options{Help: "Delete the partial output of failed videos"})
	dbPath := parser.String("", "db", &argparse.Options{Help: "Run ledger (sqlite). 'auto' is <output>/runs.sqlite, 'none' disables.", Required: false, Default: "auto"})
	publish := parser.String("", "publish", &argparse.Options{Help: "Copy finished videos to gs://bucket/prefix, or a directory", Required: false})
	modelCache := parser.String("", "modelcache", &argparse.Options{Help: "Where downloaded models are stored", Required: false, Default: "models"})
	history := parser.Int("", "history", &argparse.Options{Help: "Print the N most recent runs from the run database, and exit", Required: false})
	showRun := parser.String("", "run", &argparse.Options{Help: "Print one run from the run database, by its ID, and exit", Required: false})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		return exitBadArgs
	}

	logger, err := logs.NewLog()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		return exitBatchFatal
	}

	cfg := batch.DefaultConfig()
	if *configFile != "" {
		cfg, err = batch.LoadConfigFile(*configFile)
		if err != nil {
			logger.Criticalf("%v", err)
			return exitBadArgs
		}
	}
	overrides := batch.Overrides{
		InputDir:             *input,
		OutputDir:            *output,
		Codec:                *codec,
		ProgressInterval:     *interval,
		Workers:              *workers,
		ProbabilityThreshold: float32(*threshold),
		NmsIouThreshold:      float32(*nms),
	}
	switches := []struct {
		name    string
		on, off bool
		dst     **bool
	}{
		{"codec-per-ext", *codecPerExt, *noCodecPerExt, &overrides.CodecPerExtension},
		{"tiled", *tiled, *noTiled, &overrides.Tiled},
		{"abort-on-error", *abortOnError, *noAbortOnError, &overrides.AbortOnStreamError},
		{"keep-partial", *keepPartial, *noKeepPartial, &overrides.KeepPartial},
	}
	for _, s := range switches {
		if *s.dst, err = batch.Switch(s.name, s.on, s.off); err != nil {
			logger.Criticalf("%v", err)
			return exitBadArgs
		}
	}
	overrides.Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		logger.Criticalf("Invalid configuration: %v", err)
		return exitBadArgs
	}

	ledgerPath := ""
	if *dbPath != "none" && *dbPath != "" {
		ledgerPath = *dbPath
		if ledgerPath == "auto" {
			ledgerPath = filepath.Join(cfg.OutputDir, "runs.sqlite")
		}
	}

	if *history > 0 || *showRun != "" {
		return printHistory(logger, ledgerPath, *history, *showRun)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The model is loaded once, before we look at the inputs
	model, err := nnload.LoadModel(logger, *modelID, nnload.Options{CacheDir: *modelCache})
	if err != nil {
		logger.Criticalf("%v", err)
		return exitModelLoad
	}
	defer model.Close()

	orch, err := batch.New(logger, cfg, batch.NewModelDetector(model, cfg.DetectionParams(), cfg.Tiled), videoMedia{})
	if err != nil {
		logger.Criticalf("%v", err)
		return exitBadArgs
	}

	if *publish != "" {
		pub, err := blobstore.Open(ctx, logger, *publish)
		if err != nil {
			logger.Criticalf("Failed to open publish target %v: %v", *publish, err)
			return exitBadArgs
		}
		defer pub.Close()
		orch.Publisher = pub
	}

	var ledger *rundb.RunDB
	var ledgerRun *rundb.Run
	if ledgerPath != "" {
		if err := os.MkdirAll(filepath.Dir(ledgerPath), 0755); err != nil {
			logger.Criticalf("Failed to create directory for run database: %v", err)
			return exitBatchFatal
		}
		ledger, err = rundb.Open(logger, ledgerPath)
		if err != nil {
			logger.Criticalf("%v", err)
			return exitBatchFatal
		}
		defer ledger.Close()
		ledgerRun, err = ledger.BeginRun(uuid.NewString(), cfg.InputDir, cfg.OutputDir, *modelID, time.Now())
		if err != nil {
			logger.Criticalf("Failed to record run: %v", err)
			return exitBatchFatal
		}
		orch.Recorder = ledger.Recorder(ledgerRun)
		logger.Infof("Run %v", ledgerRun.UUID)
	}

	summary, runErr := orch.Run(ctx)
	if ledger != nil {
		if err := ledger.EndRun(ledgerRun, summary, runErr, time.Now()); err != nil {
			logger.Errorf("Failed to record end of run: %v", err)
		}
	}
	for _, line := range summary.Trail(runErr) {
		logger.Infof("%v", line)
	}

	if runErr != nil {
		var abort *batch.AbortError
		switch {
		case errors.As(runErr, &abort):
			logger.Criticalf("Aborted: %v", runErr)
		case errors.Is(runErr, context.Canceled):
			logger.Criticalf("Interrupted")
		default:
			logger.Criticalf("%v", runErr)
		}
		return exitBatchFatal
	}
	return exitOK
}

// Print runs from the ledger, either the most recent 'count', or the one with ID 'runID'
func printHistory(logger logs.Log, ledgerPath string, count int, runID string) int {
	if ledgerPath == "" {
		logger.Criticalf("The run database is disabled")
		return exitBadArgs
	}
	if _, err := os.Stat(ledgerPath); err != nil {
		logger.Criticalf("No run database at %v", ledgerPath)
		return exitBadArgs
	}
	ledger, err := rundb.Open(logger, ledgerPath)
	if err != nil {
		logger.Criticalf("%v", err)
		return exitBatchFatal
	}
	defer ledger.Close()

	var runs []rundb.Run
	if runID != "" {
		run, err := ledger.RunByUUID(runID)
		if err != nil {
			logger.Criticalf("Run %v not found: %v", runID, err)
			return exitBadArgs
		}
		runs = append(runs, *run)
	} else if runs, err = ledger.RecentRuns(count); err != nil {
		logger.Criticalf("%v", err)
		return exitBatchFatal
	}
	for i := range runs {
		lines, err := ledger.Report(&runs[i])
		if err != nil {
			logger.Criticalf("%v", err)
			return exitBatchFatal
		}
		for _, line := range lines {
			fmt.Println(line)
		}
	}
	return exitOK
}
