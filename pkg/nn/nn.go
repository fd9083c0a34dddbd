package nn

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"strings"
)

// Package nn is the object detection interface layer.
// To load a model, use the nnload package.

const DefaultProbabilityThreshold = 0.25
const DefaultNmsIouThreshold = 0.45

// NN object detection parameters
type DetectionParams struct {
	ProbabilityThreshold float32 // Value between 0 and 1. Lower values will find more objects. Zero value will use the default.
	NmsIouThreshold      float32 // Value between 0 and 1. Lower values will merge more objects together into one. Zero value will use the default.
	Unclipped            bool    // If true, don't clip boxes to the image boundaries
}

// Create a default DetectionParams object
func NewDetectionParams() *DetectionParams {
	return &DetectionParams{
		ProbabilityThreshold: DefaultProbabilityThreshold,
		NmsIouThreshold:      DefaultNmsIouThreshold,
		Unclipped:            false,
	}
}

// Return a copy of the params, with zero values replaced by defaults
func (p DetectionParams) WithDefaults() DetectionParams {
	if p.ProbabilityThreshold == 0 {
		p.ProbabilityThreshold = DefaultProbabilityThreshold
	}
	if p.NmsIouThreshold == 0 {
		p.NmsIouThreshold = DefaultNmsIouThreshold
	}
	return p
}

// ImageCrop is a crop of an image.
// To create an ImageCrop, start with WholeImage(), and then use Crop() to get a sub-crop.
type ImageCrop struct {
	NChan       int    // Number of channels (3 for RGB, 4 for RGBA)
	Pixels      []byte // The whole image
	ImageWidth  int    // The width of the original image, held in Pixels
	ImageHeight int    // The height of the original image, held in Pixels
	CropX       int    // Origin of crop X
	CropY       int    // Origin of crop Y
	CropWidth   int    // The width of this crop
	CropHeight  int    // The height of this crop
}

func (c ImageCrop) Stride() int {
	return c.ImageWidth * c.NChan
}

// Returns true if the crop covers the entire image
func (c ImageCrop) IsWhole() bool {
	return c.CropX == 0 && c.CropY == 0 && c.CropWidth == c.ImageWidth && c.CropHeight == c.ImageHeight
}

// Return the pixels of the crop as a tightly packed buffer.
// If the crop covers the whole image, then the original pixel slice is returned (no copy).
func (c ImageCrop) Packed() []byte {
	if c.IsWhole() {
		return c.Pixels[:c.ImageHeight*c.Stride()]
	}
	rowBytes := c.CropWidth * c.NChan
	out := make([]byte, rowBytes*c.CropHeight)
	for y := 0; y < c.CropHeight; y++ {
		src := (c.CropY+y)*c.Stride() + c.CropX*c.NChan
		copy(out[y*rowBytes:(y+1)*rowBytes], c.Pixels[src:src+rowBytes])
	}
	return out
}

// Return a crop of the crop (new crop is relative to existing).
// If any parameter is out of bounds, we panic
func (c ImageCrop) Crop(x1, y1, x2, y2 int) ImageCrop {
	nc := ImageCrop{
		NChan:       c.NChan,
		Pixels:      c.Pixels,
		ImageWidth:  c.ImageWidth,
		ImageHeight: c.ImageHeight,
		CropX:       c.CropX + x1,
		CropY:       c.CropY + y1,
		CropWidth:   x2 - x1,
		CropHeight:  y2 - y1,
	}
	if nc.CropX < 0 || nc.CropY < 0 || nc.CropWidth < 0 || nc.CropHeight < 0 || nc.CropX+nc.CropWidth > c.ImageWidth || nc.CropY+nc.CropHeight > c.ImageHeight {
		panic("Crop out of bounds")
	}
	return nc
}

// Return a 'crop' of the entire image
func WholeImage(nchan int, pixels []byte, width, height int) ImageCrop {
	return ImageCrop{
		NChan:       nchan,
		Pixels:      pixels,
		ImageWidth:  width,
		ImageHeight: height,
		CropX:       0,
		CropY:       0,
		CropWidth:   width,
		CropHeight:  height,
	}
}

// ObjectDetector is given an image, and returns zero or more detected objects
type ObjectDetector interface {
	// Close releases the detector. The OpenCV backend holds native memory, so you must call this.
	Close()

	// DetectObjects returns a list of objects detected in the image.
	// The image is not modified.
	// You can create a default DetectionParams with NewDetectionParams()
	DetectObjects(img ImageCrop, params *DetectionParams) ([]ObjectDetection, error)

	// Model Config.
	// Callers assume that ModelConfig will remain constant, so don't change it
	// once the detector has been created.
	Config() *ModelConfig
}

// ModelConfig is saved in a JSON file along with the weights of the NN model
type ModelConfig struct {
	Architecture string   `json:"architecture"` // eg "yolov8"
	Width        int      `json:"width"`        // eg 640
	Height       int      `json:"height"`       // eg 640
	Classes      []string `json:"classes"`      // eg ["person", "bicycle", "car", ...]
}

// The config of a stock YOLOv8 model, exported at 640x640 and trained on COCO
func DefaultModelConfig() *ModelConfig {
	return &ModelConfig{
		Architecture: "yolov8",
		Width:        640,
		Height:       640,
		Classes:      COCOClasses,
	}
}

func (c *ModelConfig) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return errors.New("Model width and height must be positive")
	}
	if len(c.Classes) == 0 {
		return errors.New("Model has no classes")
	}
	return nil
}

// Load model config from a JSON file.
// Fields that are missing from the JSON file are taken from DefaultModelConfig().
func LoadModelConfig(filename string) (*ModelConfig, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	config := DefaultModelConfig()
	config.Classes = nil
	err = json.Unmarshal(b, config)
	if err != nil {
		return nil, err
	}
	if len(config.Classes) == 0 {
		config.Classes = COCOClasses
	}
	return config, nil
}

// Load a text file with class names on each line
func LoadClassFile(filename string) ([]string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	classes := []string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			classes = append(classes, line)
		}
	}
	return classes, scanner.Err()
}
