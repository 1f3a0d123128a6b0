package metrics

import (
	"time"

	"github.com/san-kum/quadmpc/internal/dynamo"
	"github.com/san-kum/quadmpc/internal/mpc"
	"github.com/san-kum/quadmpc/internal/solver"
)

// SolveTime averages solver wall time per period, in milliseconds. It
// fills in from the plan stream, so it only moves when the loop feeds
// it plans.
type SolveTime struct {
	name    string
	total   time.Duration
	samples int
}

func NewSolveTime() *SolveTime {
	return &SolveTime{name: "solve_time_ms"}
}

func (s *SolveTime) Name() string { return s.name }

func (s *SolveTime) Observe(x dynamo.State, u dynamo.Control, t float64) {}

func (s *SolveTime) ObservePlan(plan *mpc.Plan) {
	if plan == nil {
		return
	}
	s.total += plan.SolveTime
	s.samples++
}

func (s *SolveTime) Value() float64 {
	if s.samples == 0 {
		return 0
	}
	return s.total.Seconds() * 1000.0 / float64(s.samples)
}

func (s *SolveTime) Reset() {
	s.total = 0
	s.samples = 0
}

// InfeasibleRate is the fraction of periods whose solve reported an
// infeasible program.
type InfeasibleRate struct {
	name       string
	infeasible int
	periods    int
}

func NewInfeasibleRate() *InfeasibleRate {
	return &InfeasibleRate{name: "infeasible_rate"}
}

func (r *InfeasibleRate) Name() string { return r.name }

func (r *InfeasibleRate) Observe(x dynamo.State, u dynamo.Control, t float64) {}

func (r *InfeasibleRate) ObservePlan(plan *mpc.Plan) {
	r.periods++
	if plan != nil && plan.Status == solver.Infeasible {
		r.infeasible++
	}
}

func (r *InfeasibleRate) Value() float64 {
	if r.periods == 0 {
		return 0
	}
	return float64(r.infeasible) / float64(r.periods)
}

func (r *InfeasibleRate) Reset() {
	r.infeasible = 0
	r.periods = 0
}
