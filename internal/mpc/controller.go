package mpc

import (
	"context"
	"fmt"
	"time"

	"github.com/san-kum/quadmpc/internal/dynamo"
	"github.com/san-kum/quadmpc/internal/nlp"
	"github.com/san-kum/quadmpc/internal/quad"
	"github.com/san-kum/quadmpc/internal/solver"
)

// Plan is the optimized horizon a single solve produced: N+1 states and
// N controls, 0-based from the current period.
type Plan struct {
	States     []dynamo.State
	Controls   []dynamo.Control
	Objective  float64
	Iterations int
	Violation  float64
	Status     solver.Status
	SolveTime  time.Duration
}

// Controller re-plans over a fixed horizon every control period. Each
// SolveStep transcribes a fresh program anchored at the measured state,
// runs it through the solver adapter and extracts the first optimized
// control. It is not safe for concurrent use.
type Controller struct {
	model   *quad.Planar
	tr      *nlp.Transcriber
	adapter solver.Adapter
	opts    solver.Options

	limits    nlp.Limits
	objective nlp.Objective
	dt        float64
	horizon   int

	warmStart bool
	prev      []float64
}

func New(model *quad.Planar, adapter solver.Adapter, dt float64, horizon int, lim nlp.Limits, obj nlp.Objective, opts solver.Options) (*Controller, error) {
	if horizon < 1 {
		return nil, fmt.Errorf("mpc: horizon %d: %w", horizon, dynamo.ErrBadHorizon)
	}
	if dt <= 0 {
		return nil, fmt.Errorf("mpc: dt %v: %w", dt, dynamo.ErrBadStep)
	}
	if err := lim.Validate(); err != nil {
		return nil, fmt.Errorf("mpc: %w", err)
	}
	if obj == nil {
		obj = nlp.PositionSum{}
	}
	return &Controller{
		model:     model,
		tr:        nlp.NewTranscriber(model),
		adapter:   adapter,
		opts:      opts,
		limits:    lim,
		objective: obj,
		dt:        dt,
		horizon:   horizon,
	}, nil
}

// EnableWarmStart makes each solve start from the previous solution
// shifted one step forward. Off by default: every period then solves
// from the hover seed.
func (c *Controller) EnableWarmStart(on bool) {
	c.warmStart = on
	if !on {
		c.prev = nil
	}
}

func (c *Controller) Horizon() int       { return c.horizon }
func (c *Controller) Dt() float64        { return c.dt }
func (c *Controller) Limits() nlp.Limits { return c.limits }

// SolveStep plans from x0 toward xref and returns the first optimized
// control with the full plan. On failure it returns the solver error
// unchanged (plus whatever partial plan exists) and no control: the
// fallback policy belongs to the loop, not here.
func (c *Controller) SolveStep(ctx context.Context, x0, xref dynamo.State) (dynamo.Control, *Plan, error) {
	prog, err := c.tr.Transcribe(x0, xref, c.dt, c.horizon, c.limits, c.objective)
	if err != nil {
		return nil, nil, err
	}

	if c.warmStart && len(c.prev) == prog.NumVars() {
		prog.Init = shift(prog, c.prev, x0)
	}

	start := time.Now()
	sol, err := c.adapter.Solve(ctx, prog, c.opts)
	elapsed := time.Since(start)

	if err != nil {
		var plan *Plan
		if sol != nil {
			plan = planFrom(prog, sol, elapsed)
		}
		return nil, plan, err
	}
	if sol == nil || len(sol.X) != prog.NumVars() {
		return nil, nil, fmt.Errorf("%w: adapter returned malformed solution", solver.ErrSolver)
	}

	if c.warmStart {
		c.prev = append(c.prev[:0], sol.X...)
	}

	plan := planFrom(prog, sol, elapsed)
	return plan.Controls[0].Clone(), plan, nil
}

func planFrom(prog *nlp.Program, sol *solver.Solution, elapsed time.Duration) *Plan {
	p := &Plan{
		Objective:  sol.Objective,
		Iterations: sol.Iterations,
		Violation:  sol.Violation,
		Status:     sol.Status,
		SolveTime:  elapsed,
	}
	if len(sol.X) != prog.NumVars() {
		return p
	}
	p.States = make([]dynamo.State, 0, prog.N+1)
	for k := 0; k <= prog.N; k++ {
		p.States = append(p.States, prog.StateAt(sol.X, k))
	}
	p.Controls = make([]dynamo.Control, 0, prog.N)
	for k := 0; k < prog.N; k++ {
		p.Controls = append(p.Controls, prog.ControlAt(sol.X, k))
	}
	return p
}

// shift advances a previous solution one period: state k takes the old
// state k+1, control k the old control k+1, with the horizon tail
// repeated. State 0 is overwritten with the measured state so the seed
// matches the initial binding.
func shift(prog *nlp.Program, prev []float64, x0 dynamo.State) []float64 {
	z := make([]float64, prog.NumVars())

	for k := 0; k < prog.N; k++ {
		copy(z[prog.StateIndex(k, 0):prog.StateIndex(k, 0)+prog.NX],
			prev[prog.StateIndex(k+1, 0):prog.StateIndex(k+1, 0)+prog.NX])
	}
	copy(z[prog.StateIndex(prog.N, 0):prog.StateIndex(prog.N, 0)+prog.NX],
		prev[prog.StateIndex(prog.N, 0):prog.StateIndex(prog.N, 0)+prog.NX])

	for k := 0; k < prog.N-1; k++ {
		copy(z[prog.ControlIndex(k, 0):prog.ControlIndex(k, 0)+prog.NU],
			prev[prog.ControlIndex(k+1, 0):prog.ControlIndex(k+1, 0)+prog.NU])
	}
	last := prog.N - 1
	copy(z[prog.ControlIndex(last, 0):prog.ControlIndex(last, 0)+prog.NU],
		prev[prog.ControlIndex(last, 0):prog.ControlIndex(last, 0)+prog.NU])

	copy(z[prog.StateIndex(0, 0):prog.StateIndex(0, 0)+prog.NX], x0)

	return z
}
