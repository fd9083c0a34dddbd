package nn

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Build a channel-major YOLOv8 tensor from per-anchor rows of [cx, cy, w, h, scores...]
func makeYOLOTensor(anchors [][]float32) []float32 {
	nChan := len(anchors[0])
	out := make([]float32, nChan*len(anchors))
	for i, a := range anchors {
		for c, v := range a {
			out[c*len(anchors)+i] = v
		}
	}
	return out
}

func TestDecodeYOLOv8(t *testing.T) {
	anchors := [][]float32{
		// cx, cy, w, h, class0, class1
		{100, 100, 40, 40, 0.9, 0.1},
		{102, 101, 40, 40, 0.8, 0.05}, // duplicate of anchor 0, removed by NMS
		{300, 200, 20, 60, 0.1, 0.7},
		{500, 500, 10, 10, 0.1, 0.1}, // below threshold
	}
	tensor := makeYOLOTensor(anchors)
	params := NewDetectionParams()

	// Image is twice the size of the NN input
	xf := StretchResizeTransform(1280, 1280, 640, 640)
	dets, err := DecodeYOLOv8(tensor, len(anchors), 2, params, xf, 1280, 1280)
	require.NoError(t, err)
	require.Len(t, dets, 2)
	require.Equal(t, 0, dets[0].Class)
	require.Equal(t, MakeRect(160, 160, 240, 240), dets[0].Box)
	require.Equal(t, 1, dets[1].Class)
	require.Equal(t, MakeRect(580, 340, 620, 460), dets[1].Box)
}

func TestDecodeYOLOv8Clipping(t *testing.T) {
	anchors := [][]float32{
		{5, 5, 20, 20, 0.9},
	}
	tensor := makeYOLOTensor(anchors)
	xf := IdentityResizeTransform()

	dets, err := DecodeYOLOv8(tensor, 1, 1, NewDetectionParams(), xf, 100, 100)
	require.NoError(t, err)
	require.Len(t, dets, 1)
	require.Equal(t, MakeRect(0, 0, 15, 15), dets[0].Box)

	params := NewDetectionParams()
	params.Unclipped = true
	dets, err = DecodeYOLOv8(tensor, 1, 1, params, xf, 100, 100)
	require.NoError(t, err)
	require.Equal(t, MakeRect(-5, -5, 15, 15), dets[0].Box)
}

func TestDecodeYOLOv8BadShape(t *testing.T) {
	_, err := DecodeYOLOv8(make([]float32, 10), 5, 80, NewDetectionParams(), IdentityResizeTransform(), 10, 10)
	require.Error(t, err)
	_, err = DecodeYOLOv8(nil, 0, 80, NewDetectionParams(), IdentityResizeTransform(), 10, 10)
	require.Error(t, err)
}
