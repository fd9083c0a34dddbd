package batch

import (
	"path/filepath"
	"time"
)

// Timestamp prefix of output files, to second granularity
const OutputTimeLayout = "20060102_150405"

// OutputName returns the filename of the annotated copy of 'inputPath', whose processing started at 'start'.
// For example "20240315_134501_cars.mp4".
func OutputName(start time.Time, inputPath string) string {
	return start.Format(OutputTimeLayout) + "_" + filepath.Base(inputPath)
}
