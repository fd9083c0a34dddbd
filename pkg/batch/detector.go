package batch

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/vidannotate/pkg/annotate"
	"github.com/cyclopcam/vidannotate/pkg/nn"
)

// ErrInference wraps any failure of Detector.Infer
var ErrInference = errors.New("Inference failed")

// Detector finds objects in a frame, and draws them onto a copy of the frame.
// Infer must not modify the frame.
type Detector interface {
	Infer(frame *cimg.Image) ([]nn.ObjectDetection, error)
	Render(frame *cimg.Image, detections []nn.ObjectDetection) (*cimg.Image, error)
}

// ModelDetector runs an nn.ObjectDetector and draws its results with an annotate.Renderer.
// Calls into the model are serialized, so a ModelDetector can be shared between workers.
type ModelDetector struct {
	Model    nn.ObjectDetector
	Renderer *annotate.Renderer
	Params   *nn.DetectionParams
	Tiled    bool // Use nn.TiledInference for frames larger than the model input

	lock sync.Mutex
}

func NewModelDetector(model nn.ObjectDetector, params *nn.DetectionParams, tiled bool) *ModelDetector {
	if params == nil {
		params = nn.NewDetectionParams()
	}
	return &ModelDetector{
		Model:    model,
		Renderer: annotate.NewRenderer(model.Config().Classes),
		Params:   params,
		Tiled:    tiled,
	}
}

func (d *ModelDetector) Infer(frame *cimg.Image) ([]nn.ObjectDetection, error) {
	if frame.Stride != frame.Width*frame.NChan() {
		return nil, fmt.Errorf("%w: frame stride %v is not packed", ErrInference, frame.Stride)
	}
	crop := nn.WholeImage(frame.NChan(), frame.Pixels, frame.Width, frame.Height)

	d.lock.Lock()
	defer d.lock.Unlock()

	var dets []nn.ObjectDetection
	var err error
	if d.Tiled {
		dets, err = nn.TiledInference(d.Model, crop, d.Params)
	} else {
		dets, err = d.Model.DetectObjects(crop, d.Params)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}
	return dets, nil
}

func (d *ModelDetector) Render(frame *cimg.Image, detections []nn.ObjectDetection) (*cimg.Image, error) {
	return d.Renderer.Render(frame, detections)
}
