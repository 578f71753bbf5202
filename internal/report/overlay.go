package report

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/LdDl/spindle-track/spindle"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"gonum.org/v1/gonum/mat"
)

// OverlayStyle controls how boxes and labels are drawn
type OverlayStyle struct {
	BoxColor      color.RGBA
	LabelColor    color.RGBA
	LineThickness int
	Face          font.Face
}

// DefaultOverlayStyle draws red 1px boxes with red labels
func DefaultOverlayStyle() OverlayStyle {
	red := color.RGBA{R: 255, A: 255}
	return OverlayStyle{
		BoxColor:      red,
		LabelColor:    red,
		LineThickness: 1,
		Face:          basicfont.Face7x13,
	}
}

// GrayImage converts a normalized plane (values in [0, 1]) into RGBA gray image
func GrayImage(plane *mat.Dense) *image.RGBA {
	rows, cols := plane.Dims()
	img := image.NewRGBA(image.Rect(0, 0, cols, rows))
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			v := plane.At(r, c)
			switch {
			case v < 0:
				v = 0
			case v > 1:
				v = 1
			}
			y := uint8(v*255 + 0.5)
			img.SetRGBA(c, r, color.RGBA{R: y, G: y, B: y, A: 255})
		}
	}
	return img
}

// RenderOverlay draws every instance of frame over the plane: box outline plus
// identity label (or "new") centered on the centroid
func RenderOverlay(plane *mat.Dense, frame spindle.Frame, style OverlayStyle) *image.RGBA {
	img := GrayImage(plane)
	for i := range frame.Instances {
		inst := &frame.Instances[i]
		drawRect(img, inst.BBox.Rect(), style.BoxColor, style.LineThickness)
		drawLabel(img, inst.Label(), inst.Centroid, style)
	}
	return img
}

// drawRect draws outline of rect inside its bounds, clipped to the image
func drawRect(img *image.RGBA, rect image.Rectangle, clr color.RGBA, thickness int) {
	if thickness < 1 {
		thickness = 1
	}
	src := image.NewUniform(clr)
	edges := []image.Rectangle{
		image.Rect(rect.Min.X, rect.Min.Y, rect.Max.X, rect.Min.Y+thickness),
		image.Rect(rect.Min.X, rect.Max.Y-thickness, rect.Max.X, rect.Max.Y),
		image.Rect(rect.Min.X, rect.Min.Y, rect.Min.X+thickness, rect.Max.Y),
		image.Rect(rect.Max.X-thickness, rect.Min.Y, rect.Max.X, rect.Max.Y),
	}
	for _, edge := range edges {
		draw.Draw(img, edge.Intersect(img.Bounds()), src, image.Point{}, draw.Src)
	}
}

func drawLabel(img *image.RGBA, text string, at spindle.Point, style OverlayStyle) {
	face := style.Face
	if face == nil {
		face = basicfont.Face7x13
	}
	dr := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(style.LabelColor),
		Face: face,
	}
	width := dr.MeasureString(text)
	metrics := face.Metrics()
	// baseline so that the text box is centered on the point
	dr.Dot = fixed.Point26_6{
		X: fixed.Int26_6(at.Col*64) - width/2,
		Y: fixed.Int26_6(at.Row*64) + (metrics.Ascent-metrics.Descent)/2,
	}
	dr.DrawString(text)
}
