package report

import (
	"strconv"

	"github.com/LdDl/spindle-track/spindle"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// TrajectoryPlot builds plot of every track in image coordinates: measured
// centroids as points, smoothed trajectory as line. Row axis grows downwards
// like in the image. kinematics may be nil.
func TrajectoryPlot(tracks []spindle.Track, kinematics []spindle.TrackKinematics, height, width int) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Spindle trajectories"
	p.X.Label.Text = "Column (px)"
	p.Y.Label.Text = "Row (px)"
	p.X.Min = 0
	p.X.Max = float64(width)
	p.Y.Min = 0
	p.Y.Max = float64(height)
	p.Y.Scale = plot.InvertedScale{Normalizer: p.Y.Scale}
	p.Add(plotter.NewGrid())

	smoothed := make(map[int][]spindle.Point, len(kinematics))
	for _, kin := range kinematics {
		smoothed[kin.Identity] = kin.Smoothed
	}

	for i, track := range tracks {
		if len(track.Instances) == 0 {
			continue
		}
		label := strconv.Itoa(track.Identity)
		clr := plotutil.Color(i)

		measured := pointsXY(track.Centroids())
		scatter, err := plotter.NewScatter(measured)
		if err != nil {
			return nil, errors.Wrapf(err, "can't plot track %d", track.Identity)
		}
		scatter.Color = clr
		scatter.Shape = draw.CircleGlyph{}
		scatter.Radius = vg.Points(2)
		p.Add(scatter)

		linePts := measured
		if pts, ok := smoothed[track.Identity]; ok && len(pts) == len(measured) {
			linePts = pointsXY(pts)
		}
		line, err := plotter.NewLine(linePts)
		if err != nil {
			return nil, errors.Wrapf(err, "can't plot track %d", track.Identity)
		}
		line.Color = clr
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(label, line, scatter)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

func pointsXY(pts []spindle.Point) plotter.XYs {
	xys := make(plotter.XYs, len(pts))
	for i, pt := range pts {
		xys[i] = plotter.XY{X: pt.Col, Y: pt.Row}
	}
	return xys
}

// SaveTrajectoryPlot renders trajectory plot to path. Format follows the file extension
func SaveTrajectoryPlot(path string, tracks []spindle.Track, kinematics []spindle.TrackKinematics, height, width int) error {
	p, err := TrajectoryPlot(tracks, kinematics, height, width)
	if err != nil {
		return err
	}
	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "can't save plot %s", path)
	}
	return nil
}
