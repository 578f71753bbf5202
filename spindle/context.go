package spindle

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// TrackingContext owns the state accumulated across one tracking run: the
// identity counter, the Ledger and the last resolved frame. It is created once
// at run start with NewTrackingContext and passed to every ProcessFrame call.
// It must not be shared between runs.
type TrackingContext struct {
	runID        uuid.UUID
	startedAt    time.Time
	ledger       *Ledger
	lastIdentity int
	previous     *Frame
	ambiguities  int
}

// NewTrackingContext creates context for a new run. Identities start from 1
func NewTrackingContext() *TrackingContext {
	return &TrackingContext{
		runID:     uuid.New(),
		startedAt: time.Now(),
		ledger:    NewLedger(),
	}
}

// RunID returns unique identifier of the run
func (tc *TrackingContext) RunID() uuid.UUID {
	return tc.runID
}

// StartedAt returns creation time of the context
func (tc *TrackingContext) StartedAt() time.Time {
	return tc.startedAt
}

// Ledger returns the run's ledger
func (tc *TrackingContext) Ledger() *Ledger {
	return tc.ledger
}

// LastIdentity returns the most recently minted identity, 0 if none
func (tc *TrackingContext) LastIdentity() int {
	return tc.lastIdentity
}

// Ambiguities returns how many current instances were claimed by more than
// one previous instance during the run
func (tc *TrackingContext) Ambiguities() int {
	return tc.ambiguities
}

// Previous returns the last committed frame or nil before the first commit
func (tc *TrackingContext) Previous() *Frame {
	return tc.previous
}

// mintIdentity returns next identity. Identities are strictly increasing and never reused
func (tc *TrackingContext) mintIdentity() int {
	tc.lastIdentity++
	return tc.lastIdentity
}

// commit appends the resolved frame to the ledger and makes it the previous frame
func (tc *TrackingContext) commit(frame Frame) error {
	if err := tc.ledger.Append(frame); err != nil {
		return errors.Wrapf(err, "can't commit frame %d", frame.Index)
	}
	stored, _ := tc.ledger.LastFrame()
	tc.previous = &stored
	return nil
}
