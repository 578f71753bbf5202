package spindle

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// EmptyChannelError is returned when selected time/channel slice has zero
// variance and min-max normalization is undefined.
type EmptyChannelError struct {
	Time    int
	Channel int
	Value   float64
}

func (e *EmptyChannelError) Error() string {
	return fmt.Sprintf("channel %d at time %d has constant intensity %g, can't normalize", e.Channel, e.Time, e.Value)
}

// MaxProjection reduces all z-slices at (t, channel) to a single plane holding
// the maximum intensity of every pixel.
func MaxProjection(vol *Volume, t, channel int) (*mat.Dense, error) {
	if err := vol.Validate(); err != nil {
		return nil, err
	}
	if err := vol.CheckTime(t); err != nil {
		return nil, err
	}
	if err := vol.CheckChannel(channel); err != nil {
		return nil, err
	}
	projected := make([]float64, vol.Rows*vol.Cols)
	copy(projected, vol.Plane(t, 0, channel))
	for z := 1; z < vol.Slices; z++ {
		plane := vol.Plane(t, z, channel)
		for i, v := range plane {
			if v > projected[i] {
				projected[i] = v
			}
		}
	}
	return mat.NewDense(vol.Rows, vol.Cols, projected), nil
}

// NormalizeFrame returns max projection of (t, channel) linearly rescaled so
// that minimum maps to 0.0 and maximum maps to 1.0.
func NormalizeFrame(vol *Volume, t, channel int) (*mat.Dense, error) {
	projected, err := MaxProjection(vol, t, channel)
	if err != nil {
		return nil, errors.Wrapf(err, "can't project channel %d at time %d", channel, t)
	}
	data := projected.RawMatrix().Data
	minValue := floats.Min(data)
	maxValue := floats.Max(data)
	if maxValue == minValue {
		return nil, &EmptyChannelError{Time: t, Channel: channel, Value: minValue}
	}
	floats.AddConst(-minValue, data)
	spread := maxValue - minValue
	for i := range data {
		data[i] /= spread
	}
	return projected, nil
}

// NormalizeChannels normalizes both tracked channels of frame t
func NormalizeChannels(vol *Volume, t, spindleChannel, cellChannel int) (spindle, cell *mat.Dense, err error) {
	spindle, err = NormalizeFrame(vol, t, spindleChannel)
	if err != nil {
		return nil, nil, errors.Wrap(err, "spindle channel")
	}
	cell, err = NormalizeFrame(vol, t, cellChannel)
	if err != nil {
		return nil, nil, errors.Wrap(err, "cell channel")
	}
	return spindle, cell, nil
}
