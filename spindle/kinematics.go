package spindle

import (
	kalman_filter "github.com/LdDl/kalman-filter"
	"github.com/pkg/errors"
)

// TrackKinematics is Kalman-smoothed motion summary of one track
type TrackKinematics struct {
	Identity   int
	FirstFrame int
	LastFrame  int
	// Smoothed centroid per instance of the track
	Smoothed []Point
	// Sum of distances between consecutive smoothed centroids
	PathLength float64
	// PathLength divided by number of frame steps. Zero for single-frame tracks
	MeanSpeed float64
	// Distance between first and last smoothed centroids
	NetDisplacement float64
}

// SmoothTrack runs 2D Kalman filter over track centroids (one step per frame)
// and returns smoothed trajectory with motion summary.
func SmoothTrack(track Track) (TrackKinematics, error) {
	kin := TrackKinematics{
		Identity:   track.Identity,
		FirstFrame: track.FirstFrame(),
		LastFrame:  track.LastFrame(),
		Smoothed:   make([]Point, 0, len(track.Instances)),
	}
	if len(track.Instances) == 0 {
		return kin, nil
	}

	/* Kalman filter props */
	start := track.Instances[0].Centroid
	ux := 1.0
	uy := 1.0
	stdDevA := 2.0
	stdDevMx := 0.1
	stdDevMy := 0.1
	kf := kalman_filter.NewKalman2D(1.0, ux, uy, stdDevA, stdDevMx, stdDevMy, kalman_filter.WithState2D(start.Col, start.Row))
	kin.Smoothed = append(kin.Smoothed, start)

	for i := 1; i < len(track.Instances); i++ {
		steps := track.Instances[i].FrameIndex - track.Instances[i-1].FrameIndex
		for s := 0; s < steps; s++ {
			kf.Predict()
		}
		measured := track.Instances[i].Centroid
		if err := kf.Update(measured.Col, measured.Row); err != nil {
			return kin, errors.Wrapf(err, "can't update kalman filter of track %d at frame %d", track.Identity, track.Instances[i].FrameIndex)
		}
		stateX, stateY := kf.GetState()
		smoothed := Point{Row: stateY, Col: stateX}
		kin.PathLength += euclideanDistance(kin.Smoothed[len(kin.Smoothed)-1], smoothed)
		kin.Smoothed = append(kin.Smoothed, smoothed)
	}

	kin.NetDisplacement = euclideanDistance(kin.Smoothed[0], kin.Smoothed[len(kin.Smoothed)-1])
	if frames := kin.LastFrame - kin.FirstFrame; frames > 0 {
		kin.MeanSpeed = kin.PathLength / float64(frames)
	}
	return kin, nil
}

// LedgerKinematics smooths every track of the ledger, ordered by identity
func LedgerKinematics(ledger *Ledger) ([]TrackKinematics, error) {
	tracks := ledger.Tracks()
	result := make([]TrackKinematics, 0, len(tracks))
	for _, track := range tracks {
		kin, err := SmoothTrack(track)
		if err != nil {
			return nil, err
		}
		result = append(result, kin)
	}
	return result, nil
}
