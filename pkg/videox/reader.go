package videox

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/bmharper/cimg/v2"
	"gocv.io/x/gocv"
)

// VideoInfo is what the container tells us about a video before we decode it.
// FPS and FrameCount are nominal, and may be zero or wrong for damaged files.
type VideoInfo struct {
	Path       string
	Width      int
	Height     int
	FPS        float64
	FrameCount int
}

// Reader decodes a video file, one RGBA frame at a time
type Reader struct {
	info    VideoInfo
	capture *gocv.VideoCapture
	bgr     gocv.Mat
	rgba    gocv.Mat
	nread   int
}

// OpenReader opens a video file for decoding.
// Errors wrap ErrOpen.
func OpenReader(filename string) (*Reader, error) {
	// OpenCV happily "opens" a missing file and then returns nothing, so check first
	st, err := os.Stat(filename)
	if err != nil {
		return nil, fmt.Errorf("%w '%v': %w", ErrOpen, filename, err)
	}
	if st.IsDir() {
		return nil, fmt.Errorf("%w '%v': is a directory", ErrOpen, filename)
	}
	capture, err := gocv.VideoCaptureFile(filename)
	if err != nil {
		return nil, fmt.Errorf("%w '%v': %w", ErrOpen, filename, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("%w '%v': unrecognized format", ErrOpen, filename)
	}
	r := &Reader{
		capture: capture,
		bgr:     gocv.NewMat(),
		rgba:    gocv.NewMat(),
	}
	r.info = VideoInfo{
		Path:       filename,
		Width:      int(capture.Get(gocv.VideoCaptureFrameWidth)),
		Height:     int(capture.Get(gocv.VideoCaptureFrameHeight)),
		FPS:        sanitizeFPS(capture.Get(gocv.VideoCaptureFPS)),
		FrameCount: sanitizeCount(capture.Get(gocv.VideoCaptureFrameCount)),
	}
	if r.info.Width <= 0 || r.info.Height <= 0 {
		r.Close()
		return nil, fmt.Errorf("%w '%v': invalid dimensions %v x %v", ErrOpen, filename, r.info.Width, r.info.Height)
	}
	return r, nil
}

func sanitizeFPS(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

func sanitizeCount(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > math.MaxInt32 {
		return 0
	}
	return int(v)
}

func (r *Reader) Info() VideoInfo {
	return r.info
}

// Number of frames successfully decoded so far
func (r *Reader) FramesRead() int {
	return r.nread
}

// NextFrame decodes the next frame, and returns a new RGBA image.
// Returns io.EOF at the end of the stream.
// OpenCV does not distinguish a clean end of stream from a decode failure,
// so a truncated file also ends with io.EOF. Compare FramesRead() against Info().FrameCount
// to detect truncation.
func (r *Reader) NextFrame() (*cimg.Image, error) {
	if r.capture == nil {
		return nil, ErrClosed
	}
	if !r.capture.Read(&r.bgr) || r.bgr.Empty() {
		return nil, io.EOF
	}
	frame, err := matToFrame(r.bgr, &r.rgba)
	if err != nil {
		return nil, fmt.Errorf("Frame %v of %v: %w", r.nread, r.info.Path, err)
	}
	r.nread++
	return frame, nil
}

// Close is safe to call more than once
func (r *Reader) Close() error {
	if r.capture == nil {
		return nil
	}
	err := r.capture.Close()
	r.capture = nil
	r.bgr.Close()
	r.rgba.Close()
	return err
}
