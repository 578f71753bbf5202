package spindle

import "github.com/pkg/errors"

var (
	// ErrNegativePadding is returned when configured padding is below zero
	ErrNegativePadding = errors.New("padding must be non-negative")
)

// RegularizeBBox turns a raw detection box into a padded square box centered
// on the same point. The square side is max(height, width) + 2*padding.
// Edges are clamped to [0, height] x [0, width] as a safety net only; the
// square is never shrunk to fit. The second return value is false when the
// resulting box touches or crosses the image boundary, in which case the
// instance must be discarded.
func RegularizeBBox(box BBox, padding int, height, width int) (BBox, bool) {
	center := box.Center()
	size := maxFloat64(box.Height(), box.Width()) + 2*float64(padding)

	regularized := BBox{
		MinRow: center.Row - size/2.0,
		MinCol: center.Col - size/2.0,
		MaxRow: center.Row + size/2.0,
		MaxCol: center.Col + size/2.0,
	}
	regularized.MinRow = maxFloat64(0, regularized.MinRow)
	regularized.MinCol = maxFloat64(0, regularized.MinCol)
	regularized.MaxRow = minFloat64(float64(height), regularized.MaxRow)
	regularized.MaxCol = minFloat64(float64(width), regularized.MaxCol)

	if regularized.TouchesBoundary(height, width) {
		return regularized, false
	}
	return regularized, true
}

// buildInstances regularizes every detected region and turns the survivors into
// instances of frame frameIndex. Local indices follow detection order of survivors.
func buildInstances(frameIndex int, regions []Region, padding, height, width int) ([]Instance, int) {
	instances := make([]Instance, 0, len(regions))
	dropped := 0
	for _, region := range regions {
		box, ok := RegularizeBBox(region.BBox, padding, height, width)
		if !ok {
			dropped++
			continue
		}
		instances = append(instances, Instance{
			FrameIndex:    frameIndex,
			LocalIndex:    len(instances),
			BBox:          box,
			Centroid:      region.Centroid,
			LocalCentroid: region.LocalCentroid,
			Area:          box.Area(),
		})
	}
	return instances, dropped
}
