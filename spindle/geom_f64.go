package spindle

import (
	"image"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// BBox is an axis-aligned bounding box in image coordinates.
// Pixels belonging to the box are in the half-open intervals
// [MinRow; MaxRow) and [MinCol; MaxCol).
type BBox struct {
	MinRow float64
	MinCol float64
	MaxRow float64
	MaxCol float64
}

func NewBBox(minRow, minCol, maxRow, maxCol float64) BBox {
	return BBox{
		MinRow: minRow,
		MinCol: minCol,
		MaxRow: maxRow,
		MaxCol: maxCol,
	}
}

// NewBBoxFrom converts image.Rectangle (X is column, Y is row) into BBox
func NewBBoxFrom(rect image.Rectangle) BBox {
	return BBox{
		MinRow: float64(rect.Min.Y),
		MinCol: float64(rect.Min.X),
		MaxRow: float64(rect.Max.Y),
		MaxCol: float64(rect.Max.X),
	}
}

// Height returns extent of the box along rows
func (b BBox) Height() float64 {
	return b.MaxRow - b.MinRow
}

// Width returns extent of the box along columns
func (b BBox) Width() float64 {
	return b.MaxCol - b.MinCol
}

// Area returns (MaxRow-MinRow)*(MaxCol-MinCol)
func (b BBox) Area() float64 {
	return b.Height() * b.Width()
}

// Center returns geometric center of the box
func (b BBox) Center() Point {
	return Point{
		Row: (b.MinRow + b.MaxRow) / 2.0,
		Col: (b.MinCol + b.MaxCol) / 2.0,
	}
}

// TouchesBoundary reports whether any edge of the box lies at or beyond the
// border of a height x width image.
func (b BBox) TouchesBoundary(height, width int) bool {
	return b.MinRow <= 0 ||
		b.MinCol <= 0 ||
		b.MaxRow >= float64(height) ||
		b.MaxCol >= float64(width)
}

// Rect converts the box to image.Rectangle, rounding outwards
func (b BBox) Rect() image.Rectangle {
	return image.Rect(
		int(math.Floor(b.MinCol)),
		int(math.Floor(b.MinRow)),
		int(math.Ceil(b.MaxCol)),
		int(math.Ceil(b.MaxRow)),
	)
}

// Point is a (row, col) position in image coordinates
type Point struct {
	Row float64
	Col float64
}

func NewPoint(row, col float64) Point {
	return Point{
		Row: row,
		Col: col,
	}
}

// Vec returns the point as planar vector with X along columns and Y along rows
func (p Point) Vec() r2.Vec {
	return r2.Vec{X: p.Col, Y: p.Row}
}

// Sub returns p-q
func (p Point) Sub(q Point) Point {
	return Point{Row: p.Row - q.Row, Col: p.Col - q.Col}
}

func euclideanDistance(p1, p2 Point) float64 {
	return r2.Norm(r2.Sub(p1.Vec(), p2.Vec()))
}
