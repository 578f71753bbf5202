package spindle

import (
	"testing"

	"github.com/rs/zerolog"
)

func newTestMatcher(t *testing.T, opts MatcherOptions) *Matcher {
	t.Helper()
	matcher, err := NewMatcher(opts, zerolog.Nop())
	if err != nil {
		t.Fatalf("Can't create matcher: %v", err)
	}
	return matcher
}

func TestMatcherFirstFrame(t *testing.T) {
	tc := NewTrackingContext()
	matcher := newTestMatcher(t, DefaultMatcherOptions())

	current := []Instance{
		instanceAt(0, 0, NewPoint(20, 20), NewBBox(10, 10, 30, 30)),
		instanceAt(0, 1, NewPoint(50, 50), NewBBox(40, 40, 60, 60)),
		instanceAt(0, 2, NewPoint(80, 20), NewBBox(70, 10, 90, 30)),
	}
	stats, err := matcher.Match(tc, nil, current, 100, 100)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if stats.Minted != 3 {
		t.Errorf("Expected 3 minted identities, got %d", stats.Minted)
	}
	for i, inst := range current {
		id, ok := inst.IdentityValue()
		if !ok {
			t.Errorf("Instance %d should have identity", i)
			continue
		}
		if id != i+1 {
			t.Errorf("Expected identity %d, got %d", i+1, id)
		}
	}
	if tc.LastIdentity() != 3 {
		t.Errorf("Expected last identity 3, got %d", tc.LastIdentity())
	}
}

func TestMatcherOptimalPairing(t *testing.T) {
	tc := NewTrackingContext()
	matcher := newTestMatcher(t, DefaultMatcherOptions())

	prev := &Frame{
		Index: 0,
		Instances: []Instance{
			identified(0, 0, 1, NewPoint(0, 0)),
			identified(0, 1, 2, NewPoint(10, 10)),
		},
	}
	tc.lastIdentity = 2
	current := []Instance{
		instanceAt(1, 0, NewPoint(9, 9), NewBBox(20, 20, 30, 30)),
		instanceAt(1, 1, NewPoint(1, 1), NewBBox(20, 20, 30, 30)),
	}
	stats, err := matcher.Match(tc, prev, current, 100, 100)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if stats.Propagated != 2 {
		t.Errorf("Expected 2 propagated identities, got %d", stats.Propagated)
	}
	if id, _ := current[1].IdentityValue(); id != 1 {
		t.Errorf("Expected (1,1) to inherit identity 1 of (0,0), got %d", id)
	}
	if id, _ := current[0].IdentityValue(); id != 2 {
		t.Errorf("Expected (9,9) to inherit identity 2 of (10,10), got %d", id)
	}
	if tc.LastIdentity() != 2 {
		t.Errorf("No identity should be minted, last identity is %d", tc.LastIdentity())
	}
}

func TestMatcherHungarianVersusGreedy(t *testing.T) {
	prev := &Frame{
		Index: 0,
		Instances: []Instance{
			identified(0, 0, 1, NewPoint(50, 50)),
			identified(0, 1, 2, NewPoint(50, 54)),
		},
	}
	newCurrent := func() []Instance {
		return []Instance{
			instanceAt(1, 0, NewPoint(50, 51), NewBBox(20, 20, 30, 30)),
			instanceAt(1, 1, NewPoint(50, 40), NewBBox(20, 20, 30, 30)),
		}
	}

	// Greedy: 1 -> (50,51) costs 1, then 2 -> (50,40) costs 14. Total 15
	// Optimal: 1 -> (50,40) costs 10, 2 -> (50,51) costs 3. Total 13
	tcGreedy := NewTrackingContext()
	tcGreedy.lastIdentity = 2
	greedyCurrent := newCurrent()
	greedy := newTestMatcher(t, MatcherOptions{Algorithm: MatchingAlgorithmGreedy})
	if _, err := greedy.Match(tcGreedy, prev, greedyCurrent, 100, 100); err != nil {
		t.Fatalf("Greedy match failed: %v", err)
	}
	if id, _ := greedyCurrent[0].IdentityValue(); id != 1 {
		t.Errorf("Greedy: expected identity 1 for (50,51), got %d", id)
	}

	tcOptimal := NewTrackingContext()
	tcOptimal.lastIdentity = 2
	optimalCurrent := newCurrent()
	optimal := newTestMatcher(t, MatcherOptions{Algorithm: MatchingAlgorithmHungarian})
	if _, err := optimal.Match(tcOptimal, prev, optimalCurrent, 100, 100); err != nil {
		t.Fatalf("Hungarian match failed: %v", err)
	}
	if id, _ := optimalCurrent[0].IdentityValue(); id != 2 {
		t.Errorf("Hungarian: expected identity 2 for (50,51), got %d", id)
	}
	if id, _ := optimalCurrent[1].IdentityValue(); id != 1 {
		t.Errorf("Hungarian: expected identity 1 for (50,40), got %d", id)
	}
}

func TestMatcherRejectsBoundaryAndEmpty(t *testing.T) {
	tc := NewTrackingContext()
	tc.lastIdentity = 2
	matcher := newTestMatcher(t, DefaultMatcherOptions())

	prev := &Frame{
		Index: 0,
		Instances: []Instance{
			identified(0, 0, 1, NewPoint(10, 10)),
			identified(0, 1, 2, NewPoint(60, 60)),
		},
	}
	current := []Instance{
		// sole candidate for identity 1, but touches the top edge
		instanceAt(1, 0, NewPoint(11, 11), NewBBox(0, 5, 20, 25)),
		// sole candidate for identity 2, but has zero area
		instanceAt(1, 1, NewPoint(61, 61), NewBBox(60, 60, 60, 70)),
	}
	stats, err := matcher.Match(tc, prev, current, 100, 100)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	for i, inst := range current {
		if inst.HasIdentity() {
			t.Errorf("Instance %d should stay unidentified, got %d", i, *inst.Identity)
		}
	}
	if stats.RejectedBoundary != 1 || stats.RejectedEmpty != 1 {
		t.Errorf("Expected 1 boundary and 1 empty rejection, got %d and %d", stats.RejectedBoundary, stats.RejectedEmpty)
	}
	if stats.Unidentified != 2 {
		t.Errorf("Expected 2 unidentified instances, got %d", stats.Unidentified)
	}
	if tc.LastIdentity() != 2 {
		t.Errorf("Rejected instances must not start new tracks, last identity is %d", tc.LastIdentity())
	}
}

func TestMatcherMintsForUnmatched(t *testing.T) {
	tc := NewTrackingContext()
	tc.lastIdentity = 7
	matcher := newTestMatcher(t, DefaultMatcherOptions())

	prev := &Frame{
		Index: 3,
		Instances: []Instance{
			identified(3, 0, 7, NewPoint(40, 40)),
			// unidentified instances of the previous frame never take part
			instanceAt(3, 1, NewPoint(70, 70), NewBBox(60, 60, 80, 80)),
		},
	}
	current := []Instance{
		instanceAt(4, 0, NewPoint(71, 71), NewBBox(60, 60, 80, 80)),
		instanceAt(4, 1, NewPoint(41, 40), NewBBox(30, 30, 50, 50)),
	}
	stats, err := matcher.Match(tc, prev, current, 100, 100)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if id, _ := current[1].IdentityValue(); id != 7 {
		t.Errorf("Expected identity 7 to propagate, got %d", id)
	}
	if id, _ := current[0].IdentityValue(); id != 8 {
		t.Errorf("Expected new identity 8, got %d", id)
	}
	if stats.Paired != 1 || stats.Minted != 1 || stats.Propagated != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestMatcherEmptySides(t *testing.T) {
	matcher := newTestMatcher(t, DefaultMatcherOptions())

	tc := NewTrackingContext()
	prev := &Frame{Index: 0, Instances: []Instance{identified(0, 0, 1, NewPoint(40, 40))}}
	stats, err := matcher.Match(tc, prev, []Instance{}, 100, 100)
	if err != nil {
		t.Fatalf("Empty current should not fail: %v", err)
	}
	if stats.Paired != 0 {
		t.Errorf("Expected no pairs, got %d", stats.Paired)
	}

	empty := &Frame{Index: 1}
	current := []Instance{instanceAt(2, 0, NewPoint(40, 40), NewBBox(30, 30, 50, 50))}
	if _, err := matcher.Match(tc, empty, current, 100, 100); err != nil {
		t.Fatalf("Empty previous should not fail: %v", err)
	}
	if id, _ := current[0].IdentityValue(); id != 1 {
		t.Errorf("Expected new identity 1, got %d", id)
	}
}

func TestMatcherDistanceGate(t *testing.T) {
	tc := NewTrackingContext()
	tc.lastIdentity = 1
	matcher := newTestMatcher(t, MatcherOptions{Algorithm: MatchingAlgorithmHungarian, MaxDistance: 5})

	prev := &Frame{Index: 0, Instances: []Instance{identified(0, 0, 1, NewPoint(20, 20))}}
	current := []Instance{instanceAt(1, 0, NewPoint(60, 60), NewBBox(50, 50, 70, 70))}
	stats, err := matcher.Match(tc, prev, current, 100, 100)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if stats.Gated != 1 {
		t.Errorf("Expected gated pair, got %+v", stats)
	}
	if id, _ := current[0].IdentityValue(); id != 2 {
		t.Errorf("Expected new identity 2 for far instance, got %d", id)
	}
}

func TestNewMatcherValidation(t *testing.T) {
	if _, err := NewMatcher(MatcherOptions{MaxDistance: -1}, zerolog.Nop()); err == nil {
		t.Error("Negative max distance should be rejected")
	}
	if _, err := NewMatcher(MatcherOptions{Algorithm: MatchingAlgorithm(42)}, zerolog.Nop()); err == nil {
		t.Error("Unknown algorithm should be rejected")
	}
}
