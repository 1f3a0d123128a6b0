package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/san-kum/quadmpc/internal/dynamo"
	"github.com/san-kum/quadmpc/internal/integrators"
	"github.com/san-kum/quadmpc/internal/mpc"
	"github.com/san-kum/quadmpc/internal/nlp"
	"github.com/san-kum/quadmpc/internal/quad"
	"github.com/san-kum/quadmpc/internal/solver"
)

func newTestLoop(t *testing.T, ad solver.Adapter, dt float64, horizon int, lim nlp.Limits) *Loop {
	t.Helper()
	model := quad.NewPlanar()
	ctrl, err := mpc.New(model, ad, dt, horizon, lim, nil, solver.Options{})
	if err != nil {
		t.Fatalf("mpc.New: %v", err)
	}
	return NewLoop(ctrl, model, integrators.NewEuler())
}

// failNTimes fails its first n solves with the given error, then
// delegates to the rollout adapter.
type failNTimes struct {
	n     int
	err   error
	calls int
}

func (f *failNTimes) Solve(ctx context.Context, prog *nlp.Program, opts solver.Options) (*solver.Solution, error) {
	f.calls++
	if f.calls <= f.n || f.n < 0 {
		return &solver.Solution{Status: solver.Infeasible}, f.err
	}
	return solver.Rollout{}.Solve(ctx, prog, opts)
}

// failEveryOther fails odd-numbered solves.
type failEveryOther struct {
	err   error
	calls int
}

func (f *failEveryOther) Solve(ctx context.Context, prog *nlp.Program, opts solver.Options) (*solver.Solution, error) {
	f.calls++
	if f.calls%2 == 1 {
		return nil, f.err
	}
	return solver.Rollout{}.Solve(ctx, prog, opts)
}

type slowAdapter struct{ delay time.Duration }

func (s slowAdapter) Solve(ctx context.Context, prog *nlp.Program, opts solver.Options) (*solver.Solution, error) {
	select {
	case <-time.After(s.delay):
		return solver.Rollout{}.Solve(ctx, prog, opts)
	case <-ctx.Done():
		return nil, fmt.Errorf("solver: %w", ctx.Err())
	}
}

func TestLoopRecordsShapes(t *testing.T) {
	loop := newTestLoop(t, solver.Rollout{}, 0.1, 5, nlp.NoLimits())

	cfg := DefaultConfig()
	cfg.Periods = 20

	res, err := loop.Run(context.Background(), dynamo.State{1, 1, 0, 0, 0, 0}, nil, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.States) != 21 || len(res.Times) != 21 {
		t.Errorf("got %d states, %d times, want 21 each", len(res.States), len(res.Times))
	}
	if len(res.Controls) != 20 || len(res.Plans) != 20 {
		t.Errorf("got %d controls, %d plans, want 20 each", len(res.Controls), len(res.Plans))
	}
	if res.Periods != 20 || res.Failures != 0 {
		t.Errorf("periods %d failures %d", res.Periods, res.Failures)
	}
	for k, tm := range res.Times {
		if math.Abs(tm-0.1*float64(k)) > 1e-9 {
			t.Fatalf("time %d = %v", k, tm)
		}
	}
	if res.Final() == nil {
		t.Error("Final() returned nil")
	}
}

func TestLoopDeterminism(t *testing.T) {
	run := func() *Result {
		loop := newTestLoop(t, solver.Rollout{}, 0.1, 6, nlp.NoLimits())
		cfg := DefaultConfig()
		cfg.Periods = 15
		res, err := loop.Run(context.Background(), dynamo.State{1, -1, 0.1, 0.2, 0, 0}, nil, cfg)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		return res
	}

	a, b := run(), run()

	for k := range a.States {
		for c := range a.States[k] {
			if a.States[k][c] != b.States[k][c] {
				t.Fatalf("state %d component %d differs: %v vs %v", k, c, a.States[k][c], b.States[k][c])
			}
		}
	}
	for k := range a.Controls {
		for c := range a.Controls[k] {
			if a.Controls[k][c] != b.Controls[k][c] {
				t.Fatalf("control %d component %d differs", k, c)
			}
		}
	}
}

func TestLoopValidation(t *testing.T) {
	loop := newTestLoop(t, solver.Rollout{}, 0.1, 5, nlp.NoLimits())

	cfg := DefaultConfig()
	cfg.Periods = 0
	if _, err := loop.Run(context.Background(), dynamo.State{0, 0, 0, 0, 0, 0}, nil, cfg); !errors.Is(err, dynamo.ErrBadPeriods) {
		t.Errorf("zero periods: %v", err)
	}

	cfg = DefaultConfig()
	if _, err := loop.Run(context.Background(), dynamo.State{1, 2}, nil, cfg); !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("short state: %v", err)
	}

	cfg = DefaultConfig()
	cfg.SolveTimeout = -time.Second
	if _, err := loop.Run(context.Background(), dynamo.State{0, 0, 0, 0, 0, 0}, nil, cfg); err == nil {
		t.Error("negative timeout accepted")
	}
}

func TestLoopFallbackHold(t *testing.T) {
	ad := &failNTimes{n: 1, err: fmt.Errorf("boxed in: %w", solver.ErrInfeasible)}
	loop := newTestLoop(t, ad, 0.1, 4, nlp.NoLimits())

	cfg := DefaultConfig()
	cfg.Periods = 5
	cfg.Fallback = mpc.FallbackHold

	res, err := loop.Run(context.Background(), dynamo.State{0, 0, 0, 0, 0, 0}, nil, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Failures != 1 || res.FallbackEngagements != 1 {
		t.Errorf("failures %d engagements %d, want 1 and 1", res.Failures, res.FallbackEngagements)
	}
	// No control history yet, so holding commands hover.
	hover := quad.NewPlanar().HoverControl()
	if res.Controls[0][0] != hover[0] || res.Controls[0][1] != hover[1] {
		t.Errorf("period 0 control = %v, want hover %v", res.Controls[0], hover)
	}
}

func TestLoopFallbackZero(t *testing.T) {
	ad := &failNTimes{n: 1, err: fmt.Errorf("boxed in: %w", solver.ErrInfeasible)}
	loop := newTestLoop(t, ad, 0.1, 4, nlp.NoLimits())

	cfg := DefaultConfig()
	cfg.Periods = 3
	cfg.Fallback = mpc.FallbackZero

	res, err := loop.Run(context.Background(), dynamo.State{0, 0, 0, 0, 0, 0}, nil, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Controls[0][0] != 0 || res.Controls[0][1] != 0 {
		t.Errorf("period 0 control = %v, want zeros", res.Controls[0])
	}
	// One period of cut thrust from hover: the plant picks up -g*dt of
	// vertical speed.
	if math.Abs(res.States[1][quad.Vz]-(-9.81*0.1)) > 1e-9 {
		t.Errorf("vz after zero-thrust period = %v", res.States[1][quad.Vz])
	}
}

func TestLoopFallbackAbort(t *testing.T) {
	ad := &failNTimes{n: -1, err: fmt.Errorf("boxed in: %w", solver.ErrInfeasible)}
	loop := newTestLoop(t, ad, 0.1, 4, nlp.NoLimits())

	cfg := DefaultConfig()
	cfg.Periods = 10
	cfg.Fallback = mpc.FallbackAbort

	res, err := loop.Run(context.Background(), dynamo.State{0, 0, 0, 0, 0, 0}, nil, cfg)
	if !errors.Is(err, solver.ErrInfeasible) {
		t.Fatalf("err = %v, want ErrInfeasible", err)
	}

	var pe *dynamo.PeriodError
	if !errors.As(err, &pe) || pe.Period != 0 {
		t.Errorf("expected period error at period 0, got %v", err)
	}
	if res.Periods != 0 || res.FallbackEngagements != 0 {
		t.Errorf("periods %d engagements %d after abort", res.Periods, res.FallbackEngagements)
	}
}

func TestLoopPersistentFailure(t *testing.T) {
	ad := &failNTimes{n: -1, err: fmt.Errorf("stuck: %w", solver.ErrIterationLimit)}
	loop := newTestLoop(t, ad, 0.1, 4, nlp.NoLimits())

	cfg := DefaultConfig()
	cfg.Periods = 10
	cfg.Fallback = mpc.FallbackHold
	cfg.MaxConsecutiveFailures = 3

	res, err := loop.Run(context.Background(), dynamo.State{0, 0, 0, 0, 0, 0}, nil, cfg)
	if !errors.Is(err, ErrPersistentFailure) {
		t.Fatalf("err = %v, want ErrPersistentFailure", err)
	}
	if !errors.Is(err, solver.ErrIterationLimit) {
		t.Errorf("persistent failure does not surface its cause: %v", err)
	}

	var pe *dynamo.PeriodError
	if !errors.As(err, &pe) || pe.Period != 2 {
		t.Errorf("aborted at period %v, want 2", err)
	}
	if res.Failures != 3 {
		t.Errorf("failures = %d, want 3", res.Failures)
	}
	// The aborting period never applies a control.
	if res.FallbackEngagements != 2 {
		t.Errorf("engagements = %d, want 2", res.FallbackEngagements)
	}
}

func TestLoopRecoversBetweenFailures(t *testing.T) {
	ad := &failEveryOther{err: fmt.Errorf("flaky: %w", solver.ErrIterationLimit)}
	loop := newTestLoop(t, ad, 0.1, 4, nlp.NoLimits())

	cfg := DefaultConfig()
	cfg.Periods = 10
	cfg.MaxConsecutiveFailures = 3

	res, err := loop.Run(context.Background(), dynamo.State{0, 0, 0, 0, 0, 0}, nil, cfg)
	if err != nil {
		t.Fatalf("isolated failures aborted the run: %v", err)
	}
	if res.Failures != 5 {
		t.Errorf("failures = %d, want 5", res.Failures)
	}
	if res.Periods != 10 {
		t.Errorf("periods = %d, want 10", res.Periods)
	}
}

func TestLoopSolveTimeout(t *testing.T) {
	loop := newTestLoop(t, slowAdapter{delay: time.Second}, 0.1, 4, nlp.NoLimits())

	cfg := DefaultConfig()
	cfg.Periods = 2
	cfg.SolveTimeout = 5 * time.Millisecond
	cfg.Fallback = mpc.FallbackHold

	res, err := loop.Run(context.Background(), dynamo.State{0, 0, 0, 0, 0, 0}, nil, cfg)
	if err != nil {
		t.Fatalf("deadline overruns should fall back, not abort: %v", err)
	}
	if res.Failures != 2 || res.FallbackEngagements != 2 {
		t.Errorf("failures %d engagements %d, want 2 and 2", res.Failures, res.FallbackEngagements)
	}
}

type countingMetric struct {
	name  string
	count int
}

func (c *countingMetric) Name() string   { return c.name }
func (c *countingMetric) Value() float64 { return float64(c.count) }
func (c *countingMetric) Reset()         { c.count = 0 }

func (c *countingMetric) Observe(x dynamo.State, u dynamo.Control, t float64) {
	c.count++
}

func TestLoopMetricsObservedPerPeriod(t *testing.T) {
	loop := newTestLoop(t, solver.Rollout{}, 0.1, 4, nlp.NoLimits())

	m := &countingMetric{name: "periods-seen"}
	loop.AddMetric(m)

	cfg := DefaultConfig()
	cfg.Periods = 12

	res, err := loop.Run(context.Background(), dynamo.State{0, 0, 0, 0, 0, 0}, nil, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if m.count != 12 {
		t.Errorf("observed %d periods, want 12", m.count)
	}
	if res.Metrics["periods-seen"] != 12 {
		t.Errorf("metric missing from result: %v", res.Metrics)
	}
}

func TestLoopContextCancel(t *testing.T) {
	loop := newTestLoop(t, solver.Rollout{}, 0.1, 4, nlp.NoLimits())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := DefaultConfig()
	_, err := loop.Run(ctx, dynamo.State{0, 0, 0, 0, 0, 0}, nil, cfg)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if !errors.Is(err, dynamo.ErrContextCanceled) {
		t.Errorf("err = %v, want ErrContextCanceled", err)
	}
}

func TestLoopEndToEnd(t *testing.T) {
	model := quad.NewPlanar()
	lim := nlp.Limits{AngleMax: math.Pi / 4, RateMax: math.Pi / 3, VxMax: 2, VzMax: 1}

	ctrl, err := mpc.New(model, solver.NewAugLag(), 0.1, 10, lim, nil,
		solver.Options{MaxIterations: 6000})
	if err != nil {
		t.Fatal(err)
	}
	loop := NewLoop(ctrl, model, integrators.NewEuler())

	cfg := DefaultConfig()
	cfg.Periods = 30

	x0 := dynamo.State{1, 1, 0, 0, 0, 0}
	xref := dynamo.State{0, 0, 0, 0, 0, 0}

	res, err := loop.Run(context.Background(), x0, xref, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Periods != 30 {
		t.Errorf("completed %d periods, want 30", res.Periods)
	}
	if res.Failures != 0 {
		t.Errorf("%d failed periods in a benign scenario", res.Failures)
	}
	for k, plan := range res.Plans {
		if plan == nil || plan.Status != solver.Converged {
			t.Fatalf("period %d did not converge: %+v", k, plan)
		}
	}
	for k, u := range res.Controls {
		if u[quad.UThrust] < -1e-6 {
			t.Errorf("negative thrust %v commanded at period %d", u[quad.UThrust], k)
		}
	}
	for k, x := range res.States {
		if !x.IsValid() {
			t.Fatalf("state %d invalid: %v", k, x)
		}
	}
}

func TestEnsemble(t *testing.T) {
	build := func() (*Loop, error) {
		model := quad.NewPlanar()
		ctrl, err := mpc.New(model, solver.Rollout{}, 0.1, 4, nlp.NoLimits(), nil, solver.Options{})
		if err != nil {
			return nil, err
		}
		return NewLoop(ctrl, model, integrators.NewEuler()), nil
	}

	cfg := DefaultConfig()
	cfg.Periods = 5

	x0 := dynamo.State{1, 1, 0, 0, 0, 0}

	ens := NewEnsemble(build, 4, 7)
	results, err := ens.Run(context.Background(), x0, nil, cfg)
	if err != nil {
		t.Fatalf("ensemble: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("got %d results", len(results))
	}
	for i, r := range results {
		if r.Periods != 5 {
			t.Errorf("run %d completed %d periods", i, r.Periods)
		}
		// Unperturbed runs are identical.
		if r.Final()[0] != results[0].Final()[0] {
			t.Errorf("run %d diverged without perturbation", i)
		}
	}

	ens.SetPerturbation(0.1)
	perturbed, err := ens.Run(context.Background(), x0, nil, cfg)
	if err != nil {
		t.Fatal(err)
	}
	same := true
	for i := 1; i < len(perturbed); i++ {
		if perturbed[i].States[0][0] != perturbed[0].States[0][0] {
			same = false
		}
	}
	if same {
		t.Error("perturbation left all initial states identical")
	}
}
