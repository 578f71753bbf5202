// Package report turns a tracking run into files: instance table, per-track
// summary, overlays and trajectory plot
package report

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/LdDl/spindle-track/spindle"
	"github.com/pkg/errors"
)

// InstancesHeader is the header row of the instance table
var InstancesHeader = []string{
	"identity", "frame_index",
	"min_row", "min_col", "max_row", "max_col",
	"centroid_row", "centroid_col",
}

// TrackSummaryHeader is the header row of the per-track summary table
var TrackSummaryHeader = []string{
	"identity", "first_frame", "last_frame", "instances",
	"path_length", "mean_speed", "net_displacement",
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// InstanceRecord formats one instance as a table row. Missing identity is an empty cell
func InstanceRecord(inst spindle.Instance) []string {
	identity := ""
	if id, ok := inst.IdentityValue(); ok {
		identity = strconv.Itoa(id)
	}
	return []string{
		identity,
		strconv.Itoa(inst.FrameIndex),
		formatFloat(inst.BBox.MinRow),
		formatFloat(inst.BBox.MinCol),
		formatFloat(inst.BBox.MaxRow),
		formatFloat(inst.BBox.MaxCol),
		formatFloat(inst.Centroid.Row),
		formatFloat(inst.Centroid.Col),
	}
}

// WriteInstancesCSV writes every instance of the ledger in export order:
// identified rows by (identity, frame), then unidentified rows by (frame, local index)
func WriteInstancesCSV(w io.Writer, ledger *spindle.Ledger) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(InstancesHeader); err != nil {
		return errors.Wrap(err, "can't write header")
	}
	for _, inst := range ledger.Ordered() {
		if err := cw.Write(InstanceRecord(inst)); err != nil {
			return errors.Wrapf(err, "can't write instance %d of frame %d", inst.LocalIndex, inst.FrameIndex)
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "can't flush instances table")
}

// WriteTrackSummaryCSV writes one row per track
func WriteTrackSummaryCSV(w io.Writer, ledger *spindle.Ledger, kinematics []spindle.TrackKinematics) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(TrackSummaryHeader); err != nil {
		return errors.Wrap(err, "can't write header")
	}
	for _, kin := range kinematics {
		track, ok := ledger.Track(kin.Identity)
		if !ok {
			return errors.Errorf("track %d is not in the ledger", kin.Identity)
		}
		record := []string{
			strconv.Itoa(kin.Identity),
			strconv.Itoa(kin.FirstFrame),
			strconv.Itoa(kin.LastFrame),
			strconv.Itoa(len(track.Instances)),
			formatFloat(kin.PathLength),
			formatFloat(kin.MeanSpeed),
			formatFloat(kin.NetDisplacement),
		}
		if err := cw.Write(record); err != nil {
			return errors.Wrapf(err, "can't write track %d", kin.Identity)
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "can't flush track summary")
}

// writeFile creates path and hands it to fn
func writeFile(path string, fn func(w io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "can't create %s", path)
	}
	if err := fn(f); err != nil {
		f.Close()
		return errors.Wrapf(err, "can't write %s", path)
	}
	return f.Close()
}

// SaveInstancesCSV writes the instance table to path
func SaveInstancesCSV(path string, ledger *spindle.Ledger) error {
	return writeFile(path, func(w io.Writer) error {
		return WriteInstancesCSV(w, ledger)
	})
}

// SaveTrackSummaryCSV writes the per-track summary to path
func SaveTrackSummaryCSV(path string, ledger *spindle.Ledger, kinematics []spindle.TrackKinematics) error {
	return writeFile(path, func(w io.Writer) error {
		return WriteTrackSummaryCSV(w, ledger, kinematics)
	})
}
