package spindle

import (
	"testing"
)

// square is a bright block of size x size pixels with top-left corner at (row, col)
type square struct {
	row  int
	col  int
	size int
}

// syntheticVolume creates volume with 2 z-slices and 2 channels.
// Channel 1 (spindles) holds bright squares in z-slice 1 for every frame;
// channel 0 (cells) holds a horizontal gradient so it is never constant.
func syntheticVolume(t *testing.T, rows, cols int, frames [][]square) *Volume {
	t.Helper()
	vol, err := NewVolume(len(frames), 2, 2, rows, cols)
	if err != nil {
		t.Fatalf("Can't create volume: %v", err)
	}
	for ti, squares := range frames {
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				vol.Set(ti, 0, 0, r, c, float64(c))
			}
		}
		// speck keeps the spindle channel non-constant even without squares
		vol.Set(ti, 0, 1, rows/2, cols/2, 500)
		for _, sq := range squares {
			for r := sq.row; r < sq.row+sq.size; r++ {
				for c := sq.col; c < sq.col+sq.size; c++ {
					vol.Set(ti, 1, 1, r, c, 1000)
				}
			}
		}
	}
	return vol
}

func instanceAt(frame, local int, centroid Point, box BBox) Instance {
	return Instance{
		FrameIndex: frame,
		LocalIndex: local,
		BBox:       box,
		Centroid:   centroid,
		Area:       box.Area(),
	}
}

func identified(frame, local, id int, centroid Point) Instance {
	inst := instanceAt(frame, local, centroid, NewBBox(10, 10, 20, 20))
	inst.Identity = identityPtr(id)
	return inst
}
