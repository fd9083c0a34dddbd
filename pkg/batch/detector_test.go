package batch

import (
	"errors"
	"sync"
	"testing"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/vidannotate/pkg/nn"
	"github.com/stretchr/testify/require"
)

// stubModel returns a single box, and checks that it is never called concurrently
type stubModel struct {
	config  nn.ModelConfig
	lock    sync.Mutex
	busy    bool
	overlap bool
	fail    bool
	seen    []nn.ImageCrop
}

func (m *stubModel) Close() {}

func (m *stubModel) Config() *nn.ModelConfig {
	return &m.config
}

func (m *stubModel) DetectObjects(img nn.ImageCrop, params *nn.DetectionParams) ([]nn.ObjectDetection, error) {
	m.lock.Lock()
	if m.busy {
		m.overlap = true
	}
	m.busy = true
	m.seen = append(m.seen, img)
	m.lock.Unlock()
	defer func() {
		m.lock.Lock()
		m.busy = false
		m.lock.Unlock()
	}()
	if m.fail {
		return nil, errors.New("out of memory")
	}
	return []nn.ObjectDetection{{Class: 1, Confidence: 0.8, Box: nn.MakeRect(2, 2, 10, 10)}}, nil
}

func newStubModel() *stubModel {
	return &stubModel{config: nn.ModelConfig{Architecture: "yolov8", Width: 64, Height: 64, Classes: []string{"cat", "dog"}}}
}

func TestModelDetector(t *testing.T) {
	model := newStubModel()
	det := NewModelDetector(model, nil, false)
	frame := cimg.NewImage(48, 32, cimg.PixelFormatRGBA)

	dets, err := det.Infer(frame)
	require.NoError(t, err)
	require.Len(t, dets, 1)
	require.Equal(t, 4, model.seen[0].NChan)
	require.Equal(t, 48, model.seen[0].CropWidth)
	require.Equal(t, 32, model.seen[0].CropHeight)
	require.Equal(t, "dog 0.80", det.Renderer.Caption(dets[0]))

	out, err := det.Render(frame, dets)
	require.NoError(t, err)
	require.NotSame(t, frame, out)

	model.fail = true
	_, err = det.Infer(frame)
	require.ErrorIs(t, err, ErrInference)
}

func TestModelDetectorSerializes(t *testing.T) {
	model := newStubModel()
	det := NewModelDetector(model, nn.NewDetectionParams(), false)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if _, err := det.Infer(cimg.NewImage(16, 16, cimg.PixelFormatRGBA)); err != nil {
					t.Error(err)
				}
			}
		}()
	}
	wg.Wait()
	require.False(t, model.overlap)
	require.Len(t, model.seen, 160)
}

func TestModelDetectorTiled(t *testing.T) {
	model := newStubModel()
	model.config.Width = 320
	model.config.Height = 320
	det := NewModelDetector(model, nil, true)
	// Wider than the model, so it is split into several tiles
	_, err := det.Infer(cimg.NewImage(1000, 300, cimg.PixelFormatRGBA))
	require.NoError(t, err)
	require.Greater(t, len(model.seen), 1)
}
