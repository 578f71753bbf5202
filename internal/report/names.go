package report

import "fmt"

const (
	// SpindlePrefix names artifacts rendered from the spindle channel
	SpindlePrefix = "tracked_spindles_summary"
	// CellPrefix names artifacts rendered from the cell channel
	CellPrefix = "GFP_summary"
)

// BaseName returns "{prefix}_frame_{a}_to_{b}" with one-based frame numbers
// of the first and the last processed frame
func BaseName(prefix string, firstFrame, lastFrame int) string {
	return fmt.Sprintf("%s_frame_%d_to_%d", prefix, firstFrame+1, lastFrame+1)
}
