package metrics

import (
	"github.com/san-kum/quadmpc/internal/dynamo"
)

// TrackingError averages the distance between the plant state and a
// fixed target over the run.
type TrackingError struct {
	name    string
	target  dynamo.State
	sum     float64
	samples int
}

func NewTrackingError(target dynamo.State) *TrackingError {
	return &TrackingError{
		name:   "tracking_error",
		target: target,
	}
}

func (e *TrackingError) Name() string {
	return e.name
}

func (e *TrackingError) Observe(x dynamo.State, u dynamo.Control, t float64) {
	if len(x) != len(e.target) {
		return
	}
	e.sum += x.Sub(e.target).Norm()
	e.samples++
}

func (e *TrackingError) Value() float64 {
	if e.samples == 0 {
		return 0
	}
	return e.sum / float64(e.samples)
}

func (e *TrackingError) Reset() {
	e.sum = 0
	e.samples = 0
}
