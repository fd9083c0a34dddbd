package nn

import (
	"fmt"
)

// DecodeYOLOv8 decodes the raw output tensor of a YOLOv8 detection model.
//
// The tensor has shape [1, 4+numClasses, numAnchors], and is laid out channel-major,
// so output[c*numAnchors + i] is channel c of anchor i. The first four channels are
// the box center X, center Y, width and height, in NN input coordinates.
// The remaining channels are per-class scores (already passed through a sigmoid).
//
// Boxes are mapped into image space with xform, clipped to (imgWidth, imgHeight) unless
// params.Unclipped is set, and finally reduced with NMS.
func DecodeYOLOv8(output []float32, numAnchors, numClasses int, params *DetectionParams, xform ResizeTransform, imgWidth, imgHeight int) ([]ObjectDetection, error) {
	if numAnchors <= 0 || numClasses <= 0 {
		return nil, fmt.Errorf("Invalid YOLOv8 output dimensions: %v anchors, %v classes", numAnchors, numClasses)
	}
	if len(output) < (4+numClasses)*numAnchors {
		return nil, fmt.Errorf("YOLOv8 output has %v elements, but expected %v", len(output), (4+numClasses)*numAnchors)
	}
	p := params.WithDefaults()

	clip := Rect{X: 0, Y: 0, Width: imgWidth, Height: imgHeight}
	detections := []ObjectDetection{}
	for i := 0; i < numAnchors; i++ {
		bestClass := -1
		bestScore := float32(0)
		for c := 0; c < numClasses; c++ {
			score := output[(4+c)*numAnchors+i]
			if score > bestScore {
				bestScore = score
				bestClass = c
			}
		}
		if bestClass < 0 || bestScore < p.ProbabilityThreshold {
			continue
		}
		cx := output[0*numAnchors+i]
		cy := output[1*numAnchors+i]
		w := output[2*numAnchors+i]
		h := output[3*numAnchors+i]
		box := xform.CenterBoxToRect(cx, cy, w, h)
		if !p.Unclipped {
			box = box.Intersection(clip)
		}
		if box.IsEmpty() {
			continue
		}
		detections = append(detections, ObjectDetection{
			Class:      bestClass,
			Confidence: bestScore,
			Box:        box,
		})
	}

	return NMS(detections, p.NmsIouThreshold), nil
}
