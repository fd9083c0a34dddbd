package nn

import (
	"sort"

	flatbush "github.com/bmharper/flatbush-go"
)

// NMS performs class-aware non-maximum suppression.
// Detections are visited in order of decreasing confidence, and any detection of the same class
// whose IoU with an already retained detection is at least iouThreshold, is discarded.
// The result is sorted by decreasing confidence.
func NMS(input []ObjectDetection, iouThreshold float32) []ObjectDetection {
	if len(input) <= 1 {
		return append([]ObjectDetection(nil), input...)
	}

	order := make([]int, len(input))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return input[order[a]].Confidence > input[order[b]].Confidence
	})

	// Create spatial index to avoid O(N^2) comparisons
	fb := flatbush.NewFlatbush[int32]()
	fb.Reserve(len(input))
	for _, d := range input {
		fb.Add(int32(d.Box.X), int32(d.Box.Y), int32(d.Box.X2()), int32(d.Box.Y2()))
	}
	fb.Finish()

	suppressed := make([]bool, len(input))
	retained := make([]ObjectDetection, 0, len(input))
	for _, i := range order {
		if suppressed[i] {
			continue
		}
		in := input[i]
		retained = append(retained, in)
		for _, j := range fb.Search(int32(in.Box.X), int32(in.Box.Y), int32(in.Box.X2()), int32(in.Box.Y2())) {
			if j == i || suppressed[j] || input[j].Class != in.Class {
				continue
			}
			if in.Box.IOU(input[j].Box) >= iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return retained
}
