package spindle

// Region holds geometric descriptors of one labeled connected component
type Region struct {
	Label int
	// Raw (tight) bounding box, half-open
	BBox BBox
	// Mean pixel position in full-image coordinates
	Centroid Point
	// Centroid relative to BBox min corner
	LocalCentroid Point
	// Number of pixels in the component
	PixelCount int
}

// regionProps computes descriptors for labels 1..numLabels of a rows x cols label image.
// Result is ordered by label.
func regionProps(labels []int, rows, cols, numLabels int) []Region {
	if numLabels == 0 {
		return []Region{}
	}
	type accumulator struct {
		minRow, minCol, maxRow, maxCol int
		sumRow, sumCol                 float64
		count                          int
	}
	acc := make([]accumulator, numLabels+1)
	for i := range acc {
		acc[i].minRow = rows
		acc[i].minCol = cols
		acc[i].maxRow = -1
		acc[i].maxCol = -1
	}
	for idx, label := range labels {
		if label == 0 {
			continue
		}
		row := idx / cols
		col := idx % cols
		a := &acc[label]
		a.minRow = minInt(a.minRow, row)
		a.minCol = minInt(a.minCol, col)
		a.maxRow = maxInt(a.maxRow, row)
		a.maxCol = maxInt(a.maxCol, col)
		a.sumRow += float64(row)
		a.sumCol += float64(col)
		a.count++
	}
	regions := make([]Region, 0, numLabels)
	for label := 1; label <= numLabels; label++ {
		a := acc[label]
		if a.count == 0 {
			continue
		}
		box := NewBBox(float64(a.minRow), float64(a.minCol), float64(a.maxRow+1), float64(a.maxCol+1))
		centroid := Point{
			Row: a.sumRow / float64(a.count),
			Col: a.sumCol / float64(a.count),
		}
		regions = append(regions, Region{
			Label:         label,
			BBox:          box,
			Centroid:      centroid,
			LocalCentroid: centroid.Sub(Point{Row: box.MinRow, Col: box.MinCol}),
			PixelCount:    a.count,
		})
	}
	return regions
}
