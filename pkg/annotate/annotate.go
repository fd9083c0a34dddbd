// Package annotate draws object detections onto video frames.
package annotate

import (
	"fmt"
	"image"
	"image/color"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/vidannotate/pkg/nn"
	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"
)

// Box colors, indexed by class
var DefaultPalette = []color.RGBA{
	{0xFF, 0x38, 0x38, 0xFF},
	{0xFF, 0x9D, 0x97, 0xFF},
	{0xFF, 0x70, 0x1F, 0xFF},
	{0xFF, 0xB2, 0x1D, 0xFF},
	{0xCF, 0xD2, 0x31, 0xFF},
	{0x48, 0xF9, 0x0A, 0xFF},
	{0x92, 0xCC, 0x17, 0xFF},
	{0x3D, 0xDB, 0x86, 0xFF},
	{0x1A, 0x93, 0x34, 0xFF},
	{0x00, 0xD4, 0xBB, 0xFF},
	{0x2C, 0x99, 0xA8, 0xFF},
	{0x00, 0xC2, 0xFF, 0xFF},
	{0x34, 0x45, 0x93, 0xFF},
	{0x64, 0x73, 0xFF, 0xFF},
	{0x00, 0x18, 0xEC, 0xFF},
	{0x84, 0x38, 0xFF, 0xFF},
	{0x52, 0x00, 0x85, 0xFF},
	{0xCB, 0x38, 0xFF, 0xFF},
	{0xFF, 0x95, 0xC8, 0xFF},
	{0xFF, 0x37, 0xC7, 0xFF},
}

// Renderer draws boxes and "class confidence" captions
type Renderer struct {
	Classes   []string
	Palette   []color.RGBA
	LineWidth float64
	ShowConf  bool
}

func NewRenderer(classes []string) *Renderer {
	return &Renderer{
		Classes:   classes,
		Palette:   DefaultPalette,
		LineWidth: 2,
		ShowConf:  true,
	}
}

// Caption returns the text drawn above a detection
func (r *Renderer) Caption(d nn.ObjectDetection) string {
	name := nn.ClassName(r.Classes, d.Class)
	if !r.ShowConf {
		return name
	}
	return fmt.Sprintf("%v %.2f", name, d.Confidence)
}

func (r *Renderer) color(class int) color.RGBA {
	if len(r.Palette) == 0 {
		return DefaultPalette[0]
	}
	if class < 0 {
		class = -class
	}
	return r.Palette[class%len(r.Palette)]
}

// Render returns a new frame, which is a copy of 'frame' with the detections drawn on it.
// 'frame' is not modified. The frame must be RGBA.
func (r *Renderer) Render(frame *cimg.Image, detections []nn.ObjectDetection) (*cimg.Image, error) {
	if frame.NChan() != 4 || frame.Format != cimg.PixelFormatRGBA {
		return nil, fmt.Errorf("Renderer requires an RGBA frame, not %v channels", frame.NChan())
	}
	out := frame.Clone()
	if len(detections) == 0 {
		return out, nil
	}

	// gg draws straight into our pixel buffer
	canvas := &image.RGBA{
		Pix:    out.Pixels,
		Stride: out.Stride,
		Rect:   image.Rect(0, 0, out.Width, out.Height),
	}
	dc := gg.NewContextForRGBA(canvas)
	dc.SetFontFace(basicfont.Face7x13)
	dc.SetLineWidth(r.LineWidth)

	bounds := nn.Rect{X: 0, Y: 0, Width: out.Width, Height: out.Height}
	for _, d := range detections {
		box := d.Box.Intersection(bounds)
		if box.IsEmpty() {
			continue
		}
		c := r.color(d.Class)
		dc.SetColor(c)
		dc.DrawRectangle(float64(box.X), float64(box.Y), float64(box.Width), float64(box.Height))
		dc.Stroke()

		caption := r.Caption(d)
		tw, th := dc.MeasureString(caption)
		pad := 2.0
		labelH := th + 2*pad
		// Caption sits above the box, unless that would put it off the top of the frame
		ly := float64(box.Y) - labelH
		if ly < 0 {
			ly = float64(box.Y)
		}
		lx := float64(box.X)
		dc.DrawRectangle(lx, ly, tw+2*pad, labelH)
		dc.Fill()
		dc.SetColor(textColor(c))
		dc.DrawString(caption, lx+pad, ly+pad+th)
	}
	return out, nil
}

// Black or white, whichever is more legible on 'bg'
func textColor(bg color.RGBA) color.Color {
	luma := 0.299*float64(bg.R) + 0.587*float64(bg.G) + 0.114*float64(bg.B)
	if luma > 150 {
		return color.Black
	}
	return color.White
}
