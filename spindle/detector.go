package spindle

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrInvalidDetectorOptions is returned when thresholds or minimum area are malformed
	ErrInvalidDetectorOptions = errors.New("invalid detector options")
)

// DetectorOptions configures the instance detector
type DetectorOptions struct {
	// Pixels below this value seed the background basin. Default 0.3
	LowThreshold float64
	// Pixels above this value seed the foreground basin. Default 0.4
	HighThreshold float64
	// Connected components with fewer pixels are treated as noise. Default 900
	MinArea int
}

// DefaultDetectorOptions returns thresholds used for spindle segmentation
func DefaultDetectorOptions() DetectorOptions {
	return DetectorOptions{
		LowThreshold:  0.3,
		HighThreshold: 0.4,
		MinArea:       900,
	}
}

// Validate checks that thresholds lie in [0, 1] and are ordered
func (opts DetectorOptions) Validate() error {
	if opts.LowThreshold < 0 || opts.HighThreshold > 1 {
		return errors.Wrapf(ErrInvalidDetectorOptions, "thresholds must lie in [0, 1], got low=%g high=%g", opts.LowThreshold, opts.HighThreshold)
	}
	if opts.LowThreshold > opts.HighThreshold {
		return errors.Wrapf(ErrInvalidDetectorOptions, "low threshold %g is above high threshold %g", opts.LowThreshold, opts.HighThreshold)
	}
	if opts.MinArea < 0 {
		return errors.Wrapf(ErrInvalidDetectorOptions, "min area must be non-negative, got %d", opts.MinArea)
	}
	return nil
}

// Detection is the output of the instance detector for one image
type Detection struct {
	// Binary segmentation after hole filling and small object removal
	Mask *Mask
	// One entry per surviving connected component, in label order
	Regions []Region
}

// Detect segments a normalized image into foreground instances.
// Zero surviving components is a valid outcome and yields empty Regions.
func Detect(img *mat.Dense, opts DetectorOptions) (*Detection, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	rows, cols := img.Dims()
	values := img.RawMatrix().Data
	if img.RawMatrix().Stride != cols {
		values = mat.DenseCopyOf(img).RawMatrix().Data
	}

	markers := seedMarkers(values, opts.LowThreshold, opts.HighThreshold)
	basins := watershed(values, rows, cols, markers)

	mask := NewMask(rows, cols)
	for idx, basin := range basins {
		mask.Pix[idx] = basin == markerForeground
	}
	fillHoles(mask)
	removeSmallObjects(mask, opts.MinArea)

	labels, sizes := labelComponents(mask)
	return &Detection{
		Mask:    mask,
		Regions: regionProps(labels, rows, cols, len(sizes)-1),
	}, nil
}
