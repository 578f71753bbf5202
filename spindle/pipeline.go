package spindle

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

// Options configures the tracking pipeline
type Options struct {
	// Channel holding spindles. Detection runs on it
	SpindleChannel int
	// Channel holding cell cortex (brightfield). Normalized for overlays only
	CellChannel int
	// Pixels added to every side of the squared bounding box
	Padding  int
	Detector DetectorOptions
	Matcher  MatcherOptions
	Logger   zerolog.Logger
}

// DefaultOptions returns options of the original spindle tracking setup
func DefaultOptions() Options {
	return Options{
		SpindleChannel: 1,
		CellChannel:    0,
		Padding:        40,
		Detector:       DefaultDetectorOptions(),
		Matcher:        DefaultMatcherOptions(),
		Logger:         zerolog.Nop(),
	}
}

// Pipeline runs Normalizer -> Detector -> Regularizer -> Matcher for every frame
type Pipeline struct {
	spindleChannel int
	cellChannel    int
	padding        int
	detector       DetectorOptions
	matcher        *Matcher
	logger         zerolog.Logger
}

// NewPipeline validates options and creates pipeline
func NewPipeline(opts Options) (*Pipeline, error) {
	if opts.Padding < 0 {
		return nil, errors.Wrapf(ErrNegativePadding, "got %d", opts.Padding)
	}
	if opts.SpindleChannel < 0 || opts.CellChannel < 0 {
		return nil, errors.Wrapf(ErrInvalidVolume, "channel indices must be non-negative, got spindle=%d cell=%d", opts.SpindleChannel, opts.CellChannel)
	}
	if err := opts.Detector.Validate(); err != nil {
		return nil, err
	}
	matcher, err := NewMatcher(opts.Matcher, opts.Logger)
	if err != nil {
		return nil, errors.Wrap(err, "can't create matcher")
	}
	return &Pipeline{
		spindleChannel: opts.SpindleChannel,
		cellChannel:    opts.CellChannel,
		padding:        opts.Padding,
		detector:       opts.Detector,
		matcher:        matcher,
		logger:         opts.Logger,
	}, nil
}

// FrameStats summarizes processing of one frame
type FrameStats struct {
	// Connected components surviving small object removal
	Detected int
	// Components discarded because regularized box doesn't fit into the frame
	Dropped int
	MatchStats
}

// FrameResult is everything produced for one frame
type FrameResult struct {
	Frame Frame
	// Normalized spindle channel
	Spindle *mat.Dense
	// Normalized cell channel
	Cell *mat.Dense
	// Binary segmentation of the spindle channel
	Mask  *Mask
	Stats FrameStats
}

// CheckVolume verifies that frames [start, start+count) and both channels exist in vol
func (p *Pipeline) CheckVolume(vol *Volume, start, count int) error {
	if err := vol.Validate(); err != nil {
		return err
	}
	if count < 1 {
		return errors.Wrapf(ErrInvalidVolume, "frame count must be at least 1, got %d", count)
	}
	if err := vol.CheckTime(start); err != nil {
		return errors.Wrap(err, "start frame")
	}
	if err := vol.CheckTime(start + count - 1); err != nil {
		return errors.Wrap(err, "last frame")
	}
	if err := vol.CheckChannel(p.spindleChannel); err != nil {
		return errors.Wrap(err, "spindle channel")
	}
	if err := vol.CheckChannel(p.cellChannel); err != nil {
		return errors.Wrap(err, "cell channel")
	}
	return nil
}

// ProcessFrame detects instances of frame t, resolves their identities against
// the previous frame held by tc and commits the frame to tc's ledger.
// Frames must come in increasing order without gaps. On error nothing is committed.
func (p *Pipeline) ProcessFrame(tc *TrackingContext, vol *Volume, t int) (*FrameResult, error) {
	prev := tc.Previous()
	if prev != nil && t != prev.Index+1 {
		return nil, errors.Wrapf(ErrFrameOrder, "frame %d requested after frame %d", t, prev.Index)
	}

	spindleImg, cellImg, err := NormalizeChannels(vol, t, p.spindleChannel, p.cellChannel)
	if err != nil {
		return nil, errors.Wrapf(err, "frame %d", t)
	}
	detection, err := Detect(spindleImg, p.detector)
	if err != nil {
		return nil, errors.Wrapf(err, "frame %d", t)
	}

	height, width := spindleImg.Dims()
	instances, dropped := buildInstances(t, detection.Regions, p.padding, height, width)

	// Counters go back to these values if the frame isn't committed
	lastIdentity, ambiguities := tc.lastIdentity, tc.ambiguities
	matchStats, err := p.matcher.Match(tc, prev, instances, height, width)
	if err != nil {
		tc.lastIdentity, tc.ambiguities = lastIdentity, ambiguities
		return nil, errors.Wrapf(err, "frame %d", t)
	}

	frame := Frame{
		Index:     t,
		Height:    height,
		Width:     width,
		Instances: instances,
	}
	if err := tc.commit(frame); err != nil {
		tc.lastIdentity, tc.ambiguities = lastIdentity, ambiguities
		return nil, err
	}

	stats := FrameStats{
		Detected:   len(detection.Regions),
		Dropped:    dropped,
		MatchStats: matchStats,
	}
	p.logger.Debug().
		Int("frame", t).
		Int("detected", stats.Detected).
		Int("dropped", stats.Dropped).
		Int("propagated", stats.Propagated).
		Int("minted", stats.Minted).
		Int("unidentified", stats.Unidentified).
		Msg("frame processed")

	return &FrameResult{
		Frame:   frame,
		Spindle: spindleImg,
		Cell:    cellImg,
		Mask:    detection.Mask,
		Stats:   stats,
	}, nil
}

// FrameHandler receives every committed frame in order. Returning error aborts the run
type FrameHandler func(result *FrameResult) error

// Run processes frames [start, start+count) of vol in order. Cancellation is
// checked between frames only, so a frame is either committed in full or not at all.
func (p *Pipeline) Run(ctx context.Context, tc *TrackingContext, vol *Volume, start, count int, handler FrameHandler) error {
	if err := p.CheckVolume(vol, start, count); err != nil {
		return err
	}
	for t := start; t < start+count; t++ {
		if err := ctx.Err(); err != nil {
			return errors.Wrapf(err, "run interrupted before frame %d", t)
		}
		result, err := p.ProcessFrame(tc, vol, t)
		if err != nil {
			return err
		}
		p.logger.Info().Int("frame", t+1).Msg("frame complete")
		if handler != nil {
			if err := handler(result); err != nil {
				return errors.Wrapf(err, "frame handler failed at frame %d", t)
			}
		}
	}
	return nil
}
