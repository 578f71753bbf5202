package spindle

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidVolume is returned for malformed volume shapes and out-of-range indices
	ErrInvalidVolume = errors.New("invalid volume")
)

// Volume is a 5-dimensional intensity array indexed by (time, z-slice, channel, row, col).
// Data is stored in row-major order with col varying fastest.
type Volume struct {
	Times    int
	Slices   int
	Channels int
	Rows     int
	Cols     int
	Data     []float64
}

// NewVolume allocates zero-filled volume of the given shape
func NewVolume(times, slices, channels, rows, cols int) (*Volume, error) {
	vol := &Volume{
		Times:    times,
		Slices:   slices,
		Channels: channels,
		Rows:     rows,
		Cols:     cols,
	}
	if err := vol.checkShape(); err != nil {
		return nil, err
	}
	vol.Data = make([]float64, times*slices*channels*rows*cols)
	return vol, nil
}

// NewVolumeFromData wraps existing data. Length of data must match the shape
func NewVolumeFromData(times, slices, channels, rows, cols int, data []float64) (*Volume, error) {
	vol := &Volume{
		Times:    times,
		Slices:   slices,
		Channels: channels,
		Rows:     rows,
		Cols:     cols,
		Data:     data,
	}
	if err := vol.Validate(); err != nil {
		return nil, err
	}
	return vol, nil
}

func (vol *Volume) checkShape() error {
	if vol.Times < 1 || vol.Slices < 1 || vol.Channels < 1 || vol.Rows < 1 || vol.Cols < 1 {
		return errors.Wrapf(ErrInvalidVolume, "every dimension must be positive, got %s", vol.ShapeString())
	}
	return nil
}

// Validate checks that shape is positive and data length matches it
func (vol *Volume) Validate() error {
	if vol == nil {
		return errors.Wrap(ErrInvalidVolume, "nil volume")
	}
	if err := vol.checkShape(); err != nil {
		return err
	}
	expected := vol.Times * vol.Slices * vol.Channels * vol.Rows * vol.Cols
	if len(vol.Data) != expected {
		return errors.Wrapf(ErrInvalidVolume, "data length %d doesn't match shape %s (%d values)", len(vol.Data), vol.ShapeString(), expected)
	}
	return nil
}

// ShapeString returns shape as (T, Z, C, H, W)
func (vol *Volume) ShapeString() string {
	return fmt.Sprintf("(%d, %d, %d, %d, %d)", vol.Times, vol.Slices, vol.Channels, vol.Rows, vol.Cols)
}

// CheckTime returns error if t is not a valid time index
func (vol *Volume) CheckTime(t int) error {
	if t < 0 || t >= vol.Times {
		return errors.Wrapf(ErrInvalidVolume, "time index %d out of range [0, %d)", t, vol.Times)
	}
	return nil
}

// CheckChannel returns error if c is not a valid channel index
func (vol *Volume) CheckChannel(c int) error {
	if c < 0 || c >= vol.Channels {
		return errors.Wrapf(ErrInvalidVolume, "channel index %d out of range [0, %d)", c, vol.Channels)
	}
	return nil
}

func (vol *Volume) offset(t, z, c int) int {
	return ((t*vol.Slices+z)*vol.Channels + c) * vol.Rows * vol.Cols
}

// Plane returns the (rows x cols) plane at (t, z, c). Returned slice shares memory with the volume
func (vol *Volume) Plane(t, z, c int) []float64 {
	start := vol.offset(t, z, c)
	return vol.Data[start : start+vol.Rows*vol.Cols]
}

// At returns value at (t, z, c, row, col)
func (vol *Volume) At(t, z, c, row, col int) float64 {
	return vol.Data[vol.offset(t, z, c)+row*vol.Cols+col]
}

// Set sets value at (t, z, c, row, col)
func (vol *Volume) Set(t, z, c, row, col int, value float64) {
	vol.Data[vol.offset(t, z, c)+row*vol.Cols+col] = value
}
