package videox

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/vidannotate/pkg/fourcc"
	"gocv.io/x/gocv"
)

// Writer encodes RGBA frames into a new video file
type Writer struct {
	path    string
	width   int
	height  int
	writer  *gocv.VideoWriter
	bgr     gocv.Mat
	nframes int
}

// OpenWriter creates (or overwrites) a video file.
// codec is a FourCC, such as "mp4v" or "MJPG". Errors wrap ErrOpen.
func OpenWriter(filename, codec string, width, height int, fps float64) (*Writer, error) {
	if _, err := fourcc.Parse(codec); err != nil {
		return nil, fmt.Errorf("%w '%v': %w", ErrOpen, filename, err)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w '%v': invalid dimensions %v x %v", ErrOpen, filename, width, height)
	}
	if !(fps > 0) {
		return nil, fmt.Errorf("%w '%v': invalid frame rate %v", ErrOpen, filename, fps)
	}
	if dir := filepath.Dir(filename); dir != "" {
		if st, err := os.Stat(dir); err != nil || !st.IsDir() {
			return nil, fmt.Errorf("%w '%v': output directory does not exist", ErrOpen, filename)
		}
	}
	vw, err := gocv.VideoWriterFile(filename, codec, fps, width, height, true)
	if err != nil {
		return nil, fmt.Errorf("%w '%v': %w", ErrOpen, filename, err)
	}
	if !vw.IsOpened() {
		vw.Close()
		return nil, fmt.Errorf("%w '%v': codec %v is not available for this container", ErrOpen, filename, codec)
	}
	return &Writer{
		path:   filename,
		width:  width,
		height: height,
		writer: vw,
		bgr:    gocv.NewMat(),
	}, nil
}

func (w *Writer) Path() string {
	return w.path
}

// Number of frames written so far
func (w *Writer) FramesWritten() int {
	return w.nframes
}

// WriteFrame appends a frame. The frame must match the dimensions the writer was opened with.
// Errors wrap ErrWrite.
func (w *Writer) WriteFrame(frame *cimg.Image) error {
	if w.writer == nil {
		return ErrClosed
	}
	if frame.Width != w.width || frame.Height != w.height {
		return fmt.Errorf("%w: frame is %v x %v, but video is %v x %v", ErrWrite, frame.Width, frame.Height, w.width, w.height)
	}
	if err := frameToMat(frame, &w.bgr); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if err := w.writer.Write(w.bgr); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	w.nframes++
	return nil
}

// Close finalizes the container. It is safe to call more than once.
func (w *Writer) Close() error {
	if w.writer == nil {
		return nil
	}
	err := w.writer.Close()
	w.writer = nil
	w.bgr.Close()
	return err
}
