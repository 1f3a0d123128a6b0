package experiment

import (
	"context"
	"fmt"
	"time"

	"github.com/san-kum/quadmpc/internal/config"
	"github.com/san-kum/quadmpc/internal/mpc"
	"github.com/san-kum/quadmpc/internal/quad"
	"github.com/san-kum/quadmpc/internal/sim"
	"github.com/san-kum/quadmpc/internal/solver"
)

// Experiment turns a config into a runnable closed loop. Setup resolves
// every name through the registry once; Run executes the loop with the
// config's initial and target states.
type Experiment struct {
	cfg      *config.Config
	registry *Registry
	loop     *sim.Loop
	model    *quad.Planar
}

func New(cfg *config.Config) *Experiment {
	return &Experiment{
		cfg:      cfg,
		registry: NewRegistry(),
	}
}

func (e *Experiment) Setup() error {
	loop, model, err := e.buildLoop()
	if err != nil {
		return err
	}
	e.loop = loop
	e.model = model
	return nil
}

// NewLoop builds an independent loop from the same config. Ensembles
// use this as their factory so no controller state is shared between
// runs.
func (e *Experiment) NewLoop() (*sim.Loop, error) {
	loop, _, err := e.buildLoop()
	return loop, err
}

func (e *Experiment) buildLoop() (*sim.Loop, *quad.Planar, error) {
	cfg := e.cfg

	model := quad.NewPlanar()
	if cfg.Gravity > 0 {
		model.Gravity = cfg.Gravity
	}

	integrator, err := e.registry.GetIntegrator(cfg.Integrator)
	if err != nil {
		return nil, nil, err
	}
	objective, err := e.registry.GetObjective(cfg.Objective, model)
	if err != nil {
		return nil, nil, err
	}
	adapter, err := e.registry.GetAdapter(cfg.Solver.Algorithm)
	if err != nil {
		return nil, nil, err
	}

	opts := solver.Options{
		MaxIterations: cfg.Solver.MaxIterations,
		Accuracy:      cfg.Solver.Accuracy,
		Verbose:       cfg.Solver.Verbose,
	}

	ctrl, err := mpc.New(model, adapter, cfg.Dt, cfg.Horizon, cfg.Limits, objective, opts)
	if err != nil {
		return nil, nil, err
	}
	ctrl.EnableWarmStart(cfg.WarmStart)

	loop := sim.NewLoop(ctrl, model, integrator)
	for _, m := range DefaultMetrics(model, cfg.Target.State()) {
		loop.AddMetric(m)
	}

	return loop, model, nil
}

// SimConfig translates the config's loop section into the runtime
// config the loop consumes.
func (e *Experiment) SimConfig() (sim.Config, error) {
	cfg := e.cfg

	fallback, err := mpc.ParseFallback(cfg.Loop.Fallback)
	if err != nil {
		return sim.Config{}, err
	}

	return sim.Config{
		Periods:                cfg.Periods,
		Fallback:               fallback,
		SolveTimeout:           time.Duration(cfg.Loop.SolveTimeoutMs * float64(time.Millisecond)),
		MaxConsecutiveFailures: cfg.Loop.MaxConsecutiveFailures,
		ValidateState:          cfg.Loop.ValidateState,
		Seed:                   cfg.Seed,
	}, nil
}

func (e *Experiment) Run(ctx context.Context) (*sim.Result, error) {
	if e.loop == nil {
		return nil, fmt.Errorf("experiment not set up")
	}

	simCfg, err := e.SimConfig()
	if err != nil {
		return nil, err
	}

	return e.loop.Run(ctx, e.cfg.Init.State(), e.cfg.Target.State(), simCfg)
}

// Loop exposes the underlying loop for attaching observers.
func (e *Experiment) Loop() *sim.Loop {
	return e.loop
}

// Model exposes the plant the experiment runs against.
func (e *Experiment) Model() *quad.Planar {
	return e.model
}
