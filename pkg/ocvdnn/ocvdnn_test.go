package ocvdnn

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cyclopcam/vidannotate/pkg/nn"
	"github.com/stretchr/testify/require"
)

func TestNewDetectorErrors(t *testing.T) {
	_, err := NewDetector(nn.DefaultModelConfig(), filepath.Join(t.TempDir(), "missing.onnx"))
	require.ErrorIs(t, err, os.ErrNotExist)

	bad := nn.DefaultModelConfig()
	bad.Width = 0
	_, err = NewDetector(bad, "whatever.onnx")
	require.Error(t, err)

	other := nn.DefaultModelConfig()
	other.Architecture = "ssd"
	_, err = NewDetector(other, "whatever.onnx")
	require.Error(t, err)
}

// Set VIDANNOTATE_TEST_MODEL to the path of a COCO yolov8 ONNX model (eg yolov8n.onnx) to run this test.
func TestDetectBlankImage(t *testing.T) {
	modelFile := os.Getenv("VIDANNOTATE_TEST_MODEL")
	if modelFile == "" {
		t.Skip("VIDANNOTATE_TEST_MODEL not set")
	}
	det, err := NewDetector(nn.DefaultModelConfig(), modelFile)
	require.NoError(t, err)
	defer det.Close()

	width, height := 320, 240
	img := nn.WholeImage(4, make([]byte, width*height*4), width, height)
	objects, err := det.DetectObjects(img, nn.NewDetectionParams())
	require.NoError(t, err)
	// A black frame has nothing in it
	require.Len(t, objects, 0)
}
