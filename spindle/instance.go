package spindle

import "strconv"

// Instance is one detected structure in one frame.
// Instances are created fresh for every frame; only the matcher sets Identity
// and only before the frame is committed to the Ledger.
type Instance struct {
	// Sequence position of the frame
	FrameIndex int
	// Detection order within the frame. Not stable across frames
	LocalIndex int
	// Regularized (square, padded) bounding box
	BBox BBox
	// Centroid of detected pixels in full-frame coordinates
	Centroid Point
	// Centroid relative to the raw detection bounding box
	LocalCentroid Point
	// Derived from BBox: (MaxRow-MinRow)*(MaxCol-MinCol)
	Area float64
	// Persistent track number. Nil until resolved and may remain nil forever
	Identity *int
}

// HasIdentity returns true if instance has been resolved to a track
func (inst *Instance) HasIdentity() bool {
	return inst.Identity != nil
}

// IdentityValue returns track number and whether it is set
func (inst *Instance) IdentityValue() (int, bool) {
	if inst.Identity == nil {
		return 0, false
	}
	return *inst.Identity, true
}

// Label returns the identity as text or "new" for unresolved instances
func (inst *Instance) Label() string {
	if id, ok := inst.IdentityValue(); ok {
		return strconv.Itoa(id)
	}
	return "new"
}

// eligible reports whether instance may carry an identity at all: a zero-area
// box or a box touching the image border is never identified.
func (inst *Instance) eligible(height, width int) bool {
	return inst.Area != 0 && !inst.BBox.TouchesBoundary(height, width)
}

// clone returns deep copy of the instance, so the caller can't mutate identity
// stored somewhere else
func (inst Instance) clone() Instance {
	if inst.Identity != nil {
		inst.Identity = identityPtr(*inst.Identity)
	}
	return inst
}

// Frame is the resolved output of one processed frame
type Frame struct {
	Index     int
	Height    int
	Width     int
	Instances []Instance
}

// Identified returns instances of the frame which carry an identity
func (f *Frame) Identified() []Instance {
	identified := make([]Instance, 0, len(f.Instances))
	for _, inst := range f.Instances {
		if inst.HasIdentity() {
			identified = append(identified, inst)
		}
	}
	return identified
}

func (f Frame) clone() Frame {
	instances := make([]Instance, len(f.Instances))
	for i := range f.Instances {
		instances[i] = f.Instances[i].clone()
	}
	f.Instances = instances
	return f
}

// Track is the set of instances sharing one identity, ordered by frame index
type Track struct {
	Identity  int
	Instances []Instance
}

// FirstFrame returns frame index of the track's first appearance
func (t Track) FirstFrame() int {
	if len(t.Instances) == 0 {
		return -1
	}
	return t.Instances[0].FrameIndex
}

// LastFrame returns frame index of the track's last appearance
func (t Track) LastFrame() int {
	if len(t.Instances) == 0 {
		return -1
	}
	return t.Instances[len(t.Instances)-1].FrameIndex
}

// Centroids returns centroid of every instance of the track in frame order
func (t Track) Centroids() []Point {
	pts := make([]Point, len(t.Instances))
	for i := range t.Instances {
		pts[i] = t.Instances[i].Centroid
	}
	return pts
}
