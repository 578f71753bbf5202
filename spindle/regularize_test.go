package spindle

import (
	"testing"
)

func TestRegularizeBBoxSquare(t *testing.T) {
	// 20 rows x 40 cols box centered at (60, 80)
	raw := NewBBox(50, 60, 70, 100)
	box, ok := RegularizeBBox(raw, 0, 200, 200)
	if !ok {
		t.Fatal("Box should fit into the frame")
	}
	expected := NewBBox(40, 60, 80, 100)
	if box != expected {
		t.Errorf("Expected %v, got %v", expected, box)
	}
	if box.Height() != box.Width() {
		t.Errorf("Box must be square, got %fx%f", box.Height(), box.Width())
	}
	if box.Center() != raw.Center() {
		t.Errorf("Center must be preserved: expected %v, got %v", raw.Center(), box.Center())
	}
}

func TestRegularizeBBoxPadding(t *testing.T) {
	raw := NewBBox(90, 90, 110, 110)
	box, ok := RegularizeBBox(raw, 40, 200, 200)
	if !ok {
		t.Fatal("Box should fit into the frame")
	}
	expected := NewBBox(50, 50, 150, 150)
	if box != expected {
		t.Errorf("Expected %v, got %v", expected, box)
	}
}

func TestRegularizeBBoxBoundary(t *testing.T) {
	cases := []struct {
		raw     BBox
		padding int
	}{
		// padded square crosses top-left corner
		{NewBBox(5, 5, 45, 45), 10},
		// padded square ends exactly on the bottom edge
		{NewBBox(150, 80, 190, 120), 10},
		// already touching the left edge without padding
		{NewBBox(80, 0, 120, 40), 0},
	}
	for i, c := range cases {
		box, ok := RegularizeBBox(c.raw, c.padding, 200, 200)
		if ok {
			t.Errorf("Case %d: box %v should be rejected", i, box)
		}
		if box.MinRow < 0 || box.MinCol < 0 || box.MaxRow > 200 || box.MaxCol > 200 {
			t.Errorf("Case %d: box %v must be clamped to the frame", i, box)
		}
	}
}

func TestBuildInstancesLocalIndex(t *testing.T) {
	regions := []Region{
		{Label: 1, BBox: NewBBox(2, 2, 30, 30), Centroid: NewPoint(16, 16)},
		{Label: 2, BBox: NewBBox(60, 60, 80, 80), Centroid: NewPoint(70, 70), LocalCentroid: NewPoint(10, 10)},
		{Label: 3, BBox: NewBBox(120, 120, 140, 140), Centroid: NewPoint(130, 130)},
	}
	instances, dropped := buildInstances(4, regions, 10, 200, 200)
	if dropped != 1 {
		t.Errorf("Expected 1 dropped region, got %d", dropped)
	}
	if len(instances) != 2 {
		t.Fatalf("Expected 2 instances, got %d", len(instances))
	}
	for i, inst := range instances {
		if inst.LocalIndex != i {
			t.Errorf("Expected local index %d, got %d", i, inst.LocalIndex)
		}
		if inst.FrameIndex != 4 {
			t.Errorf("Expected frame index 4, got %d", inst.FrameIndex)
		}
		if inst.HasIdentity() {
			t.Errorf("Fresh instance %d must not have identity", i)
		}
		if inst.Area != inst.BBox.Area() {
			t.Errorf("Area %f doesn't match bbox area %f", inst.Area, inst.BBox.Area())
		}
	}
	if instances[0].Centroid != NewPoint(70, 70) || instances[0].LocalCentroid != NewPoint(10, 10) {
		t.Errorf("Centroids must be taken from the region, got %v and %v", instances[0].Centroid, instances[0].LocalCentroid)
	}
	if instances[0].BBox != NewBBox(50, 50, 90, 90) {
		t.Errorf("Expected regularized box (50, 50, 90, 90), got %v", instances[0].BBox)
	}
}
