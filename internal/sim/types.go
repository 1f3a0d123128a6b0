package sim

import (
	"errors"
	"time"

	"github.com/san-kum/quadmpc/internal/dynamo"
	"github.com/san-kum/quadmpc/internal/mpc"
)

// ErrPersistentFailure marks a run aborted because too many consecutive
// periods produced no usable solve. It wraps the last period's cause.
var ErrPersistentFailure = errors.New("sim: persistent solver failure")

// Config controls a closed-loop run. The controller owns the planning
// parameters (dt, horizon, limits, objective); Config owns everything
// about how the loop reacts around it.
type Config struct {
	// Periods is the number of control periods T.
	Periods int

	// Fallback picks the control applied on a failed period.
	Fallback mpc.Fallback

	// SolveTimeout bounds each solve's wall clock. Zero lets a solve
	// block as long as it needs; an overrun counts as a failed period.
	SolveTimeout time.Duration

	// MaxConsecutiveFailures aborts the run once this many periods in a
	// row engaged the fallback. Zero means the default of 3.
	MaxConsecutiveFailures int

	// ValidateState aborts when the plant state picks up NaN or Inf.
	ValidateState bool

	// Seed tags the run; ensembles derive per-run perturbations from it.
	Seed int64
}

func DefaultConfig() Config {
	return Config{
		Periods:                30,
		Fallback:               mpc.FallbackHold,
		MaxConsecutiveFailures: 3,
		ValidateState:          true,
	}
}

// PlanObserver is implemented by metrics that also want the per-period
// plan diagnostics, not just the applied state and control. The loop
// passes whatever the solve produced, including nil on a period that
// failed before yielding diagnostics.
type PlanObserver interface {
	ObservePlan(plan *mpc.Plan)
}

// Result is the record of a closed-loop run: T+1 states, T controls and
// the per-period plan diagnostics. Plans[k] may be nil when period k
// failed before producing any diagnostics.
type Result struct {
	States   []dynamo.State
	Controls []dynamo.Control
	Times    []float64
	Plans    []*mpc.Plan
	Metrics  map[string]float64

	// Periods counts completed control periods, Failures the periods
	// whose solve produced no usable control, FallbackEngagements how
	// often a fallback control was actually applied.
	Periods             int
	Failures            int
	FallbackEngagements int
}

// Final returns the last recorded plant state.
func (r *Result) Final() dynamo.State {
	if len(r.States) == 0 {
		return nil
	}
	return r.States[len(r.States)-1]
}
