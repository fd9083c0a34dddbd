package ocvdnn

// package ocvdnn runs YOLOv8 ONNX models through the OpenCV DNN module (via gocv)

import (
	"fmt"
	"image"
	"os"

	"github.com/cyclopcam/vidannotate/pkg/nn"
	"gocv.io/x/gocv"
)

type Detector struct {
	net    gocv.Net
	config nn.ModelConfig
}

// NewDetector loads an ONNX model.
// The returned Detector is not safe for concurrent use.
func NewDetector(config *nn.ModelConfig, onnxFile string) (*Detector, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Architecture != "" && config.Architecture != "yolov8" && config.Architecture != "yolo11" {
		return nil, fmt.Errorf("Unsupported NN architecture '%v'", config.Architecture)
	}
	// OpenCV is not graceful about missing files, so check first
	if _, err := os.Stat(onnxFile); err != nil {
		return nil, err
	}
	net := gocv.ReadNetFromONNX(onnxFile)
	if net.Empty() {
		return nil, fmt.Errorf("Failed to load ONNX model '%v'", onnxFile)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)
	return &Detector{
		net:    net,
		config: *config,
	}, nil
}

func (d *Detector) Close() {
	d.net.Close()
}

func (d *Detector) Config() *nn.ModelConfig {
	return &d.config
}

func (d *Detector) DetectObjects(img nn.ImageCrop, params *nn.DetectionParams) ([]nn.ObjectDetection, error) {
	var matType gocv.MatType
	switch img.NChan {
	case 3:
		matType = gocv.MatTypeCV8UC3
	case 4:
		matType = gocv.MatTypeCV8UC4
	default:
		return nil, fmt.Errorf("Unsupported number of image channels %v", img.NChan)
	}

	// Packed() returns the caller's memory for whole images, so the Mat must not be written to
	src, err := gocv.NewMatFromBytes(img.CropHeight, img.CropWidth, matType, img.Packed())
	if err != nil {
		return nil, fmt.Errorf("Failed to wrap image for NN: %w", err)
	}
	defer src.Close()

	rgb := src
	if img.NChan == 4 {
		rgb = gocv.NewMat()
		defer rgb.Close()
		// OpenCV RGBA2RGB == BGRA2BGR (code 1): drop alpha, keep channel order
		gocv.CvtColor(src, &rgb, gocv.ColorBGRAToBGR)
	}

	// Pixels are already RGB, which is what YOLO expects, so swapRB is false.
	blob := gocv.BlobFromImage(rgb, 1.0/255.0, image.Pt(d.config.Width, d.config.Height), gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	// Expected output shape is [1, 4+numClasses, numAnchors]
	dims := out.Size()
	if len(dims) != 3 || dims[1] < 5 {
		return nil, fmt.Errorf("Unexpected NN output shape %v", dims)
	}
	numClasses := dims[1] - 4
	numAnchors := dims[2]
	if numClasses != len(d.config.Classes) {
		return nil, fmt.Errorf("Model outputs %v classes, but config has %v", numClasses, len(d.config.Classes))
	}
	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("Failed to read NN output: %w", err)
	}

	xform := nn.StretchResizeTransform(img.CropWidth, img.CropHeight, d.config.Width, d.config.Height)
	return nn.DecodeYOLOv8(data, numAnchors, numClasses, params, xform, img.CropWidth, img.CropHeight)
}
