package spindle

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// MatcherOptions configures the cross-frame matcher
type MatcherOptions struct {
	// Algorithm used to solve the assignment problem. Default is Hungarian
	Algorithm MatchingAlgorithm
	// Pairs farther apart than this distance (pixels) are treated as unmatched.
	// Zero disables gating
	MaxDistance float64
}

// DefaultMatcherOptions returns optimal assignment without distance gating
func DefaultMatcherOptions() MatcherOptions {
	return MatcherOptions{
		Algorithm:   MatchingAlgorithmHungarian,
		MaxDistance: 0,
	}
}

// Matcher propagates identities from one frame to the next one
type Matcher struct {
	// Algorithm to use for matching
	algorithm MatchingAlgorithm
	// Distance gate, 0 means no gate
	maxDistance float64
	logger      zerolog.Logger
}

// NewMatcher creates matcher with given options
func NewMatcher(opts MatcherOptions, logger zerolog.Logger) (*Matcher, error) {
	if opts.MaxDistance < 0 {
		return nil, errors.Errorf("max distance must be non-negative, got %g", opts.MaxDistance)
	}
	if opts.Algorithm != MatchingAlgorithmHungarian && opts.Algorithm != MatchingAlgorithmGreedy {
		return nil, errors.Wrapf(ErrUnknownAlgorithm, "%s", opts.Algorithm)
	}
	return &Matcher{
		algorithm:   opts.Algorithm,
		maxDistance: opts.MaxDistance,
		logger:      logger,
	}, nil
}

// MatchStats summarizes identity assignment of one frame
type MatchStats struct {
	// Pairs returned by the assignment solver
	Paired int
	// Current instances which inherited identity of a previous instance
	Propagated int
	// Current instances which started a new track
	Minted int
	// Rejected because the box touches the image boundary
	RejectedBoundary int
	// Rejected because the box has zero area
	RejectedEmpty int
	// Rejected because the instance was claimed by more than one previous instance
	RejectedAmbiguous int
	// Pairs dropped by the distance gate
	Gated int
	// Instances left without identity
	Unidentified int
}

// Match assigns identities to current instances of a height x width frame.
// prev is the resolved previous frame, nil for the first frame of the run;
// only its identified instances take part in matching.
// Identities are written into current in place and newly minted ones are taken from tc.
func (matcher *Matcher) Match(tc *TrackingContext, prev *Frame, current []Instance, height, width int) (MatchStats, error) {
	stats := MatchStats{}
	resolved := make([]bool, len(current))

	if prev != nil {
		previous := prev.Identified()
		cost := distanceMatrix(previous, current)
		matches, err := solveAssignment(cost, matcher.algorithm)
		if err != nil {
			return stats, errors.Wrap(err, "can't solve assignment")
		}
		stats.Paired = len(matches)

		// count the number of assignments to each instance in the current frame
		assignmentCounts := make([]int, len(current))
		for _, match := range matches {
			if match[0] < 0 || match[0] >= len(previous) || match[1] < 0 || match[1] >= len(current) {
				return stats, errors.Wrapf(ErrAssignmentShape, "pair (%d, %d) for %dx%d cost matrix", match[0], match[1], len(previous), len(current))
			}
			assignmentCounts[match[1]]++
		}

		for _, match := range matches {
			prevInst := &previous[match[0]]
			curInst := &current[match[1]]
			switch {
			case curInst.Area == 0:
				stats.RejectedEmpty++
				continue
			case curInst.BBox.TouchesBoundary(height, width):
				stats.RejectedBoundary++
				continue
			case assignmentCounts[match[1]] > 1:
				stats.RejectedAmbiguous++
				tc.ambiguities++
				matcher.logger.Warn().
					Int("frame", curInst.FrameIndex).
					Int("local_index", curInst.LocalIndex).
					Int("claims", assignmentCounts[match[1]]).
					Msg("instance claimed by more than one previous instance")
				continue
			}
			if matcher.maxDistance > 0 && cost.At(match[0], match[1]) > matcher.maxDistance {
				stats.Gated++
				continue
			}
			id, _ := prevInst.IdentityValue()
			curInst.Identity = identityPtr(id)
			resolved[match[1]] = true
			stats.Propagated++
		}
	}

	// Everything left starts a new track unless it can't be observed reliably
	for j := range current {
		if resolved[j] {
			continue
		}
		if !current[j].eligible(height, width) {
			current[j].Identity = nil
			stats.Unidentified++
			continue
		}
		current[j].Identity = identityPtr(tc.mintIdentity())
		stats.Minted++
	}
	return stats, nil
}
