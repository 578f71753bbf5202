package spindle

const (
	markerNone       = 0
	markerBackground = 1
	markerForeground = 2
)

// seedMarkers labels pixels below low as background and pixels above high as
// foreground. Everything in between stays unlabeled and is resolved by flooding.
func seedMarkers(values []float64, low, high float64) []int {
	markers := make([]int, len(values))
	for i, v := range values {
		switch {
		case v < low:
			markers[i] = markerBackground
		case v > high:
			markers[i] = markerForeground
		}
	}
	return markers
}

// watershed grows labeled markers over a rows x cols intensity image.
// Pixels are flooded in increasing intensity order (4-connectivity); every
// unlabeled pixel receives the label of the basin which reaches it first.
// Returned slice is a fresh label image, markers are not modified.
func watershed(values []float64, rows, cols int, markers []int) []int {
	labels := make([]int, len(markers))
	copy(labels, markers)

	queue := make(floodHeap, 0, len(values))
	var age uint64
	for idx, label := range labels {
		if label == markerNone {
			continue
		}
		queue.Push(floodPixel{value: values[idx], age: age, index: idx})
		age++
	}

	for queue.Len() > 0 {
		px := queue.Pop()
		row := px.index / cols
		col := px.index % cols
		label := labels[px.index]
		forEachNeighbour4(row, col, rows, cols, func(nIdx int) {
			if labels[nIdx] != markerNone {
				return
			}
			labels[nIdx] = label
			queue.Push(floodPixel{value: values[nIdx], age: age, index: nIdx})
			age++
		})
	}
	return labels
}

// forEachNeighbour4 calls fn with flat index of every 4-connected neighbour inside the image
func forEachNeighbour4(row, col, rows, cols int, fn func(idx int)) {
	if row > 0 {
		fn((row-1)*cols + col)
	}
	if col > 0 {
		fn(row*cols + col - 1)
	}
	if col < cols-1 {
		fn(row*cols + col + 1)
	}
	if row < rows-1 {
		fn((row+1)*cols + col)
	}
}
