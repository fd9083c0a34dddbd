package batch

import "github.com/bmharper/cimg/v2"

// SourceInfo is the metadata of an opened input video
type SourceInfo struct {
	Width      int
	Height     int
	FPS        float64
	FrameCount int // Nominal, and may be zero or inaccurate
}

// VideoReader is a forward-only stream of RGBA frames.
// NextFrame returns io.EOF at the end of the stream.
type VideoReader interface {
	Info() SourceInfo
	NextFrame() (*cimg.Image, error)
	Close() error
}

// VideoWriter appends frames to an output container, in call order
type VideoWriter interface {
	WriteFrame(frame *cimg.Image) error
	Close() error
}

// Media opens readers and writers
type Media interface {
	OpenReader(path string) (VideoReader, error)
	OpenWriter(path, codec string, width, height int, fps float64) (VideoWriter, error)
}
