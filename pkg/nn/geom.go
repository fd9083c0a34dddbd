package nn

import (
	"github.com/chewxy/math32"
)

type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Point) Distance(b Point) float32 {
	return math32.Sqrt(float32((p.X-b.X)*(p.X-b.X) + (p.Y-b.Y)*(p.Y-b.Y)))
}

type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Make a rectangle from two corners
func MakeRect(x1, y1, x2, y2 int) Rect {
	return Rect{
		X:      x1,
		Y:      y1,
		Width:  x2 - x1,
		Height: y2 - y1,
	}
}

func (r Rect) X2() int {
	return r.X + r.Width
}

func (r Rect) Y2() int {
	return r.Y + r.Height
}

func (r Rect) Area() int {
	return r.Width * r.Height
}

func (r Rect) IsEmpty() bool {
	return r.Width <= 0 || r.Height <= 0
}

func (r Rect) Intersection(b Rect) Rect {
	x1 := max(r.X, b.X)
	y1 := max(r.Y, b.Y)
	x2 := min(r.X2(), b.X2())
	y2 := min(r.Y2(), b.Y2())
	return Rect{
		X:      x1,
		Y:      y1,
		Width:  max(0, x2-x1),
		Height: max(0, y2-y1),
	}
}

func (r Rect) Union(b Rect) Rect {
	x1 := min(r.X, b.X)
	y1 := min(r.Y, b.Y)
	x2 := max(r.X2(), b.X2())
	y2 := max(r.Y2(), b.Y2())
	return MakeRect(x1, y1, x2, y2)
}

// Intersection over Union
func (r Rect) IOU(b Rect) float32 {
	intersection := r.Intersection(b)
	union := r.Area() + b.Area() - intersection.Area()
	if union <= 0 {
		return 0
	}
	return float32(intersection.Area()) / float32(union)
}

func (r Rect) Center() Point {
	return Point{
		X: r.X + r.Width/2,
		Y: r.Y + r.Height/2,
	}
}

func (r *Rect) Offset(dx, dy int) {
	r.X += dx
	r.Y += dy
}

// ResizeTransform maps coordinates from NN input space back to image space.
// imageX = nnX * ScaleX + OffsetX
type ResizeTransform struct {
	OffsetX float32
	OffsetY float32
	ScaleX  float32
	ScaleY  float32
}

func IdentityResizeTransform() ResizeTransform {
	return ResizeTransform{
		ScaleX: 1,
		ScaleY: 1,
	}
}

// Make a transform that undoes a stretch of an image (imgWidth, imgHeight) into the NN input (nnWidth, nnHeight)
func StretchResizeTransform(imgWidth, imgHeight, nnWidth, nnHeight int) ResizeTransform {
	return ResizeTransform{
		ScaleX: float32(imgWidth) / float32(nnWidth),
		ScaleY: float32(imgHeight) / float32(nnHeight),
	}
}

// Apply the transform to a box given by its center and size, in NN coordinates
func (t ResizeTransform) CenterBoxToRect(cx, cy, w, h float32) Rect {
	x1 := (cx-w/2)*t.ScaleX + t.OffsetX
	y1 := (cy-h/2)*t.ScaleY + t.OffsetY
	x2 := (cx+w/2)*t.ScaleX + t.OffsetX
	y2 := (cy+h/2)*t.ScaleY + t.OffsetY
	return MakeRect(int(math32.Round(x1)), int(math32.Round(y1)), int(math32.Round(x2)), int(math32.Round(y2)))
}
