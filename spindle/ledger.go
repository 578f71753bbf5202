package spindle

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

var (
	// ErrFrameOrder is returned when frames are appended or processed out of increasing time order
	ErrFrameOrder = errors.New("frames must be processed in increasing time order")
	// ErrDuplicateIdentity is returned when two instances of one frame claim the same identity
	ErrDuplicateIdentity = errors.New("identity claimed twice in one frame")
	// ErrForeignInstance is returned when an instance's frame index doesn't match its frame
	ErrForeignInstance = errors.New("instance doesn't belong to frame")
)

// Ledger is the append-only ordered record of every instance of the run.
// Frames are appended atomically by a single writer; readers only ever see
// frames whose append has completed.
type Ledger struct {
	mu      sync.RWMutex
	frames  []Frame
	byFrame map[int]int
	// identity -> positions {frame slot, instance slot}
	tracks map[int][][2]int
}

// NewLedger creates empty ledger
func NewLedger() *Ledger {
	return &Ledger{
		frames:  make([]Frame, 0),
		byFrame: make(map[int]int),
		tracks:  make(map[int][][2]int),
	}
}

// Append commits all instances of one frame. Either the whole frame is
// recorded or nothing is.
func (ledger *Ledger) Append(frame Frame) error {
	ledger.mu.Lock()
	defer ledger.mu.Unlock()

	if n := len(ledger.frames); n > 0 && frame.Index <= ledger.frames[n-1].Index {
		return errors.Wrapf(ErrFrameOrder, "frame %d after frame %d", frame.Index, ledger.frames[n-1].Index)
	}
	seen := make(map[int]struct{}, len(frame.Instances))
	for i := range frame.Instances {
		inst := &frame.Instances[i]
		if inst.FrameIndex != frame.Index {
			return errors.Wrapf(ErrForeignInstance, "instance %d has frame index %d, frame is %d", inst.LocalIndex, inst.FrameIndex, frame.Index)
		}
		id, ok := inst.IdentityValue()
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			return errors.Wrapf(ErrDuplicateIdentity, "identity %d in frame %d", id, frame.Index)
		}
		seen[id] = struct{}{}
	}

	stored := frame.clone()
	slot := len(ledger.frames)
	ledger.frames = append(ledger.frames, stored)
	ledger.byFrame[stored.Index] = slot
	for i := range stored.Instances {
		if id, ok := stored.Instances[i].IdentityValue(); ok {
			ledger.tracks[id] = append(ledger.tracks[id], [2]int{slot, i})
		}
	}
	return nil
}

// Len returns number of recorded instances
func (ledger *Ledger) Len() int {
	ledger.mu.RLock()
	defer ledger.mu.RUnlock()
	n := 0
	for i := range ledger.frames {
		n += len(ledger.frames[i].Instances)
	}
	return n
}

// NumFrames returns number of committed frames
func (ledger *Ledger) NumFrames() int {
	ledger.mu.RLock()
	defer ledger.mu.RUnlock()
	return len(ledger.frames)
}

// Frame returns copy of the committed frame with the given index
func (ledger *Ledger) Frame(index int) (Frame, bool) {
	ledger.mu.RLock()
	defer ledger.mu.RUnlock()
	slot, ok := ledger.byFrame[index]
	if !ok {
		return Frame{}, false
	}
	return ledger.frames[slot].clone(), true
}

// LastFrame returns copy of the most recently committed frame
func (ledger *Ledger) LastFrame() (Frame, bool) {
	ledger.mu.RLock()
	defer ledger.mu.RUnlock()
	if len(ledger.frames) == 0 {
		return Frame{}, false
	}
	return ledger.frames[len(ledger.frames)-1].clone(), true
}

// Frames returns copies of all committed frames in time order
func (ledger *Ledger) Frames() []Frame {
	ledger.mu.RLock()
	defer ledger.mu.RUnlock()
	frames := make([]Frame, len(ledger.frames))
	for i := range ledger.frames {
		frames[i] = ledger.frames[i].clone()
	}
	return frames
}

// Instances returns copies of all recorded instances in append order
func (ledger *Ledger) Instances() []Instance {
	ledger.mu.RLock()
	defer ledger.mu.RUnlock()
	instances := make([]Instance, 0)
	for i := range ledger.frames {
		for j := range ledger.frames[i].Instances {
			instances = append(instances, ledger.frames[i].Instances[j].clone())
		}
	}
	return instances
}

// Identities returns every identity recorded so far in increasing order
func (ledger *Ledger) Identities() []int {
	ledger.mu.RLock()
	defer ledger.mu.RUnlock()
	return ledger.identities()
}

func (ledger *Ledger) identities() []int {
	ids := make([]int, 0, len(ledger.tracks))
	for id := range ledger.tracks {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Track returns instances carrying the given identity ordered by frame index
func (ledger *Ledger) Track(identity int) (Track, bool) {
	ledger.mu.RLock()
	defer ledger.mu.RUnlock()
	return ledger.track(identity)
}

func (ledger *Ledger) track(identity int) (Track, bool) {
	positions, ok := ledger.tracks[identity]
	if !ok {
		return Track{}, false
	}
	track := Track{
		Identity:  identity,
		Instances: make([]Instance, len(positions)),
	}
	for i, pos := range positions {
		track.Instances[i] = ledger.frames[pos[0]].Instances[pos[1]].clone()
	}
	return track, true
}

// Tracks returns every track ordered by identity
func (ledger *Ledger) Tracks() []Track {
	ledger.mu.RLock()
	defer ledger.mu.RUnlock()
	ids := ledger.identities()
	tracks := make([]Track, 0, len(ids))
	for _, id := range ids {
		if track, ok := ledger.track(id); ok {
			tracks = append(tracks, track)
		}
	}
	return tracks
}

// Ordered returns all instances in export order: identified instances first,
// sorted by (identity, frame index), then unidentified ones sorted by
// (frame index, local index).
func (ledger *Ledger) Ordered() []Instance {
	all := ledger.Instances()
	identified := make([]Instance, 0, len(all))
	unidentified := make([]Instance, 0)
	for _, inst := range all {
		if inst.HasIdentity() {
			identified = append(identified, inst)
		} else {
			unidentified = append(unidentified, inst)
		}
	}
	sort.SliceStable(identified, func(a, b int) bool {
		if *identified[a].Identity != *identified[b].Identity {
			return *identified[a].Identity < *identified[b].Identity
		}
		return identified[a].FrameIndex < identified[b].FrameIndex
	})
	sort.SliceStable(unidentified, func(a, b int) bool {
		if unidentified[a].FrameIndex != unidentified[b].FrameIndex {
			return unidentified[a].FrameIndex < unidentified[b].FrameIndex
		}
		return unidentified[a].LocalIndex < unidentified[b].LocalIndex
	})
	return append(identified, unidentified...)
}
