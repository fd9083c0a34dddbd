package videox

import (
	"fmt"

	"github.com/bmharper/cimg/v2"
	"gocv.io/x/gocv"
)

// Frames are RGBA images, so that they can be drawn on with image/draw based libraries
// without any further conversion.

// Convert a BGR Mat, as produced by VideoCapture, into a new RGBA frame
func matToFrame(bgr gocv.Mat, rgba *gocv.Mat) (*cimg.Image, error) {
	if bgr.Empty() {
		return nil, fmt.Errorf("Empty frame")
	}
	switch bgr.Channels() {
	case 3:
		gocv.CvtColor(bgr, rgba, gocv.ColorBGRToRGBA)
	case 4:
		gocv.CvtColor(bgr, rgba, gocv.ColorBGRAToRGBA)
	case 1:
		gocv.CvtColor(bgr, rgba, gocv.ColorGrayToBGRA)
	default:
		return nil, fmt.Errorf("Unsupported number of channels %v", bgr.Channels())
	}
	frame := cimg.NewImage(rgba.Cols(), rgba.Rows(), cimg.PixelFormatRGBA)
	// The Mat is reused for the next frame, so copy out of it
	src := rgba.ToBytes()
	if len(src) != frame.Width*frame.Height*4 {
		return nil, fmt.Errorf("Unexpected frame size %v, for %v x %v", len(src), frame.Width, frame.Height)
	}
	for y := 0; y < frame.Height; y++ {
		copy(frame.Pixels[y*frame.Stride:y*frame.Stride+frame.Width*4], src[y*frame.Width*4:])
	}
	return frame, nil
}

// Convert an RGBA frame into the BGR Mat 'bgr', which is what VideoWriter expects
func frameToMat(frame *cimg.Image, bgr *gocv.Mat) error {
	if frame.Format != cimg.PixelFormatRGBA {
		return fmt.Errorf("Frame must be RGBA")
	}
	pixels := frame.Pixels
	if frame.Stride != frame.Width*4 {
		pixels = make([]byte, frame.Width*frame.Height*4)
		for y := 0; y < frame.Height; y++ {
			copy(pixels[y*frame.Width*4:(y+1)*frame.Width*4], frame.Pixels[y*frame.Stride:])
		}
	}
	rgba, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC4, pixels)
	if err != nil {
		return err
	}
	defer rgba.Close()
	gocv.CvtColor(rgba, bgr, gocv.ColorRGBAToBGR)
	return nil
}
