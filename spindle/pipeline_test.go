package spindle

import (
	"context"
	"testing"

	"github.com/pkg/errors"
)

func testPipeline(t *testing.T, maxDistance float64) *Pipeline {
	t.Helper()
	opts := DefaultOptions()
	opts.Padding = 10
	opts.Matcher.MaxDistance = maxDistance
	p, err := NewPipeline(opts)
	if err != nil {
		t.Fatalf("Can't create pipeline: %v", err)
	}
	return p
}

func TestPipelineThreeFrames(t *testing.T) {
	vol := syntheticVolume(t, 200, 200, [][]square{
		// A and B
		{{row: 50, col: 50, size: 40}, {row: 50, col: 120, size: 40}},
		// A moves (+5, +5), B moves (+3, -2)
		{{row: 55, col: 55, size: 40}, {row: 53, col: 118, size: 40}},
		// B leaves, C appears far away from both
		{{row: 60, col: 60, size: 40}, {row: 130, col: 60, size: 40}},
	})
	p := testPipeline(t, 30)
	tc := NewTrackingContext()

	results := make([]*FrameResult, 0, 3)
	err := p.Run(context.Background(), tc, vol, 0, 3, func(result *FrameResult) error {
		results = append(results, result)
		return nil
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("Expected 3 frame results, got %d", len(results))
	}

	// frame 0: two fresh tracks in detection order
	first := results[0].Frame
	if len(first.Instances) != 2 {
		t.Fatalf("Frame 0: expected 2 instances, got %d", len(first.Instances))
	}
	if first.Instances[0].Label() != "1" || first.Instances[1].Label() != "2" {
		t.Errorf("Frame 0: expected identities 1 and 2, got %s and %s", first.Instances[0].Label(), first.Instances[1].Label())
	}
	if first.Instances[0].Centroid != NewPoint(69.5, 69.5) {
		t.Errorf("Frame 0: expected centroid (69.5, 69.5), got %v", first.Instances[0].Centroid)
	}
	if first.Instances[0].BBox != NewBBox(40, 40, 100, 100) {
		t.Errorf("Frame 0: expected box (40, 40, 100, 100), got %v", first.Instances[0].BBox)
	}

	// frame 1: B starts on an earlier row, so it is detected first, identities follow the motion
	second := results[1].Frame
	if len(second.Instances) != 2 {
		t.Fatalf("Frame 1: expected 2 instances, got %d", len(second.Instances))
	}
	if second.Instances[0].Label() != "2" || second.Instances[1].Label() != "1" {
		t.Errorf("Frame 1: expected identities 2 and 1, got %s and %s", second.Instances[0].Label(), second.Instances[1].Label())
	}
	if results[1].Stats.Propagated != 2 || results[1].Stats.Minted != 0 {
		t.Errorf("Frame 1: unexpected stats %+v", results[1].Stats)
	}

	// frame 2: A keeps identity 1, C gets a new identity
	third := results[2].Frame
	if third.Instances[0].Label() != "1" || third.Instances[1].Label() != "3" {
		t.Errorf("Frame 2: expected identities 1 and 3, got %s and %s", third.Instances[0].Label(), third.Instances[1].Label())
	}
	if results[2].Stats.Gated != 1 {
		t.Errorf("Frame 2: expected B-C pair to be gated, got %+v", results[2].Stats)
	}

	if tc.LastIdentity() != 3 {
		t.Errorf("Expected last identity 3, got %d", tc.LastIdentity())
	}
	ledger := tc.Ledger()
	if ledger.NumFrames() != 3 || ledger.Len() != 6 {
		t.Errorf("Expected 3 frames and 6 instances, got %d and %d", ledger.NumFrames(), ledger.Len())
	}
	track, ok := ledger.Track(2)
	if !ok || track.LastFrame() != 1 {
		t.Errorf("Track 2 should end at frame 1, got %+v", track)
	}
}

func TestPipelineWithoutGateHandsOverFarIdentity(t *testing.T) {
	vol := syntheticVolume(t, 200, 200, [][]square{
		{{row: 50, col: 50, size: 40}, {row: 50, col: 120, size: 40}},
		{{row: 60, col: 60, size: 40}, {row: 130, col: 60, size: 40}},
	})
	p := testPipeline(t, 0)
	tc := NewTrackingContext()
	if err := p.Run(context.Background(), tc, vol, 0, 2, nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	last, _ := tc.Ledger().LastFrame()
	// without gating every previous identity is handed over, however far
	if last.Instances[0].Label() != "1" || last.Instances[1].Label() != "2" {
		t.Errorf("Expected identities 1 and 2, got %s and %s", last.Instances[0].Label(), last.Instances[1].Label())
	}
	if tc.LastIdentity() != 2 {
		t.Errorf("No identity should be minted, last identity is %d", tc.LastIdentity())
	}
}

func TestPipelineDropsBoundaryDetections(t *testing.T) {
	vol := syntheticVolume(t, 200, 200, [][]square{
		{{row: 5, col: 5, size: 40}, {row: 80, col: 80, size: 40}},
	})
	p := testPipeline(t, 0)
	tc := NewTrackingContext()
	result, err := p.ProcessFrame(tc, vol, 0)
	if err != nil {
		t.Fatalf("ProcessFrame failed: %v", err)
	}
	if result.Stats.Detected != 2 || result.Stats.Dropped != 1 {
		t.Errorf("Expected 2 detected and 1 dropped, got %+v", result.Stats)
	}
	if len(result.Frame.Instances) != 1 || result.Frame.Instances[0].LocalIndex != 0 {
		t.Errorf("Expected single instance with local index 0, got %+v", result.Frame.Instances)
	}
}

func TestPipelineEmptyFrame(t *testing.T) {
	vol := syntheticVolume(t, 200, 200, [][]square{
		{{row: 50, col: 50, size: 40}},
		{},
		{{row: 52, col: 52, size: 40}},
	})
	p := testPipeline(t, 0)
	tc := NewTrackingContext()
	if err := p.Run(context.Background(), tc, vol, 0, 3, nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	empty, ok := tc.Ledger().Frame(1)
	if !ok || len(empty.Instances) != 0 {
		t.Errorf("Frame 1 should be recorded without instances, got %+v", empty)
	}
	// the track is broken by the empty frame, so the square restarts as a new track
	last, _ := tc.Ledger().Frame(2)
	if last.Instances[0].Label() != "2" {
		t.Errorf("Expected identity 2 after empty frame, got %s", last.Instances[0].Label())
	}
}

func TestPipelineFrameOrder(t *testing.T) {
	vol := syntheticVolume(t, 100, 100, [][]square{{}, {}, {}})
	p := testPipeline(t, 0)
	tc := NewTrackingContext()
	if _, err := p.ProcessFrame(tc, vol, 0); err != nil {
		t.Fatalf("ProcessFrame failed: %v", err)
	}
	if _, err := p.ProcessFrame(tc, vol, 2); !errors.Is(err, ErrFrameOrder) {
		t.Errorf("Expected ErrFrameOrder when skipping a frame, got %v", err)
	}
	if _, err := p.ProcessFrame(tc, vol, 0); !errors.Is(err, ErrFrameOrder) {
		t.Errorf("Expected ErrFrameOrder when repeating a frame, got %v", err)
	}
	if tc.Ledger().NumFrames() != 1 {
		t.Errorf("Failed calls must not commit, got %d frames", tc.Ledger().NumFrames())
	}
}

func TestPipelineRejectedCommitKeepsCounters(t *testing.T) {
	vol := syntheticVolume(t, 100, 100, [][]square{
		{{row: 30, col: 30, size: 40}},
	})
	p := testPipeline(t, 0)
	tc := NewTrackingContext()
	// ledger already holds frame 0 while the context has no previous frame
	if err := tc.ledger.Append(Frame{Index: 0, Height: 100, Width: 100}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if _, err := p.ProcessFrame(tc, vol, 0); !errors.Is(err, ErrFrameOrder) {
		t.Fatalf("Expected ErrFrameOrder from the ledger, got %v", err)
	}
	if tc.LastIdentity() != 0 {
		t.Errorf("Identities minted for a rejected frame must be released, last identity is %d", tc.LastIdentity())
	}
	if tc.Ambiguities() != 0 {
		t.Errorf("Expected 0 ambiguities, got %d", tc.Ambiguities())
	}
	if tc.Ledger().NumFrames() != 1 {
		t.Errorf("Expected 1 frame in ledger, got %d", tc.Ledger().NumFrames())
	}
	if tc.Previous() != nil {
		t.Errorf("Rejected frame must not become previous, got frame %d", tc.Previous().Index)
	}
}

func TestPipelineEmptyChannelAborts(t *testing.T) {
	vol := syntheticVolume(t, 100, 100, [][]square{{}, {}})
	// wipe the spindle channel of frame 1
	for z := 0; z < vol.Slices; z++ {
		plane := vol.Plane(1, z, 1)
		for i := range plane {
			plane[i] = 0
		}
	}
	p := testPipeline(t, 0)
	tc := NewTrackingContext()
	err := p.Run(context.Background(), tc, vol, 0, 2, nil)
	var empty *EmptyChannelError
	if !errors.As(err, &empty) {
		t.Fatalf("Expected EmptyChannelError, got %v", err)
	}
	if empty.Time != 1 || empty.Channel != 1 {
		t.Errorf("Unexpected error payload: %+v", empty)
	}
	if tc.Ledger().NumFrames() != 1 {
		t.Errorf("Only frame 0 should be committed, got %d frames", tc.Ledger().NumFrames())
	}
}

func TestPipelineRunValidation(t *testing.T) {
	vol := syntheticVolume(t, 100, 100, [][]square{{}, {}})
	p := testPipeline(t, 0)
	tc := NewTrackingContext()
	if err := p.Run(context.Background(), tc, vol, 1, 2, nil); !errors.Is(err, ErrInvalidVolume) {
		t.Errorf("Expected ErrInvalidVolume for too many frames, got %v", err)
	}

	opts := DefaultOptions()
	opts.SpindleChannel = 5
	bad, err := NewPipeline(opts)
	if err != nil {
		t.Fatalf("Channel range is checked against the volume, got %v", err)
	}
	if err := bad.Run(context.Background(), tc, vol, 0, 1, nil); !errors.Is(err, ErrInvalidVolume) {
		t.Errorf("Expected ErrInvalidVolume for missing channel, got %v", err)
	}

	opts = DefaultOptions()
	opts.Padding = -1
	if _, err := NewPipeline(opts); !errors.Is(err, ErrNegativePadding) {
		t.Errorf("Expected ErrNegativePadding, got %v", err)
	}
}

func TestPipelineCancelled(t *testing.T) {
	vol := syntheticVolume(t, 100, 100, [][]square{{}, {}})
	p := testPipeline(t, 0)
	tc := NewTrackingContext()
	ctx, cancel := context.WithCancel(context.Background())

	err := p.Run(ctx, tc, vol, 0, 2, func(result *FrameResult) error {
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if tc.Ledger().NumFrames() != 1 {
		t.Errorf("Frame 0 should stay committed, got %d frames", tc.Ledger().NumFrames())
	}
}

func TestPipelineHandlerError(t *testing.T) {
	vol := syntheticVolume(t, 100, 100, [][]square{{}, {}})
	p := testPipeline(t, 0)
	tc := NewTrackingContext()
	sentinel := errors.New("disk full")
	err := p.Run(context.Background(), tc, vol, 0, 2, func(result *FrameResult) error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("Expected handler error, got %v", err)
	}
}
