package mpc

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/san-kum/quadmpc/internal/dynamo"
	"github.com/san-kum/quadmpc/internal/nlp"
	"github.com/san-kum/quadmpc/internal/quad"
	"github.com/san-kum/quadmpc/internal/solver"
)

type adapterFunc func(ctx context.Context, prog *nlp.Program, opts solver.Options) (*solver.Solution, error)

func (f adapterFunc) Solve(ctx context.Context, prog *nlp.Program, opts solver.Options) (*solver.Solution, error) {
	return f(ctx, prog, opts)
}

func newController(t *testing.T, ad solver.Adapter, horizon int) *Controller {
	t.Helper()
	c, err := New(quad.NewPlanar(), ad, 0.1, horizon, nlp.NoLimits(), nil, solver.Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestSolveStepFirstControl(t *testing.T) {
	ad := adapterFunc(func(_ context.Context, prog *nlp.Program, _ solver.Options) (*solver.Solution, error) {
		x := make([]float64, prog.NumVars())
		copy(x, prog.Init)
		for k := 0; k < prog.N; k++ {
			x[prog.ControlIndex(k, 0)] = 100 + float64(k)
			x[prog.ControlIndex(k, 1)] = float64(k)
		}
		return &solver.Solution{X: x, Status: solver.Converged}, nil
	})

	c := newController(t, ad, 5)
	u, plan, err := c.SolveStep(context.Background(), dynamo.State{0, 0, 0, 0, 0, 0}, nil)
	if err != nil {
		t.Fatalf("SolveStep: %v", err)
	}

	// The commanded control is the one at horizon index 0, not 1.
	if u[0] != 100 || u[1] != 0 {
		t.Errorf("u = %v, want [100 0]", u)
	}
	if plan.Controls[1][0] != 101 {
		t.Errorf("plan control 1 = %v, want 101", plan.Controls[1][0])
	}
}

func TestSolveStepPlanShape(t *testing.T) {
	c := newController(t, solver.Rollout{}, 8)

	x0 := dynamo.State{1, 2, 0.1, 0, 0, 0}
	_, plan, err := c.SolveStep(context.Background(), x0, nil)
	if err != nil {
		t.Fatalf("SolveStep: %v", err)
	}

	if len(plan.States) != 9 {
		t.Errorf("plan has %d states, want 9", len(plan.States))
	}
	if len(plan.Controls) != 8 {
		t.Errorf("plan has %d controls, want 8", len(plan.Controls))
	}
	for comp := 0; comp < 6; comp++ {
		if math.Abs(plan.States[0][comp]-x0[comp]) > 1e-12 {
			t.Errorf("plan state 0 component %d = %v, want %v", comp, plan.States[0][comp], x0[comp])
		}
	}
	if plan.Status != solver.Converged {
		t.Errorf("status = %v", plan.Status)
	}
}

func TestNewValidation(t *testing.T) {
	model := quad.NewPlanar()

	cases := []struct {
		name    string
		dt      float64
		horizon int
		lim     nlp.Limits
		want    error
	}{
		{"zero horizon", 0.1, 0, nlp.NoLimits(), dynamo.ErrBadHorizon},
		{"negative dt", -1, 5, nlp.NoLimits(), dynamo.ErrBadStep},
		{"negative limit", 0.1, 5, nlp.Limits{AngleMax: -0.1, RateMax: 1, VxMax: 1, VzMax: 1}, nlp.ErrNegativeLimit},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(model, solver.Rollout{}, tc.dt, tc.horizon, tc.lim, nil, solver.Options{})
			if !errors.Is(err, tc.want) {
				t.Errorf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestSolveStepBadState(t *testing.T) {
	c := newController(t, solver.Rollout{}, 5)

	_, _, err := c.SolveStep(context.Background(), dynamo.State{1, 2, 3}, nil)
	if !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("got %v, want dimension mismatch", err)
	}
}

func TestSolveStepNoControlOnFailure(t *testing.T) {
	ad := adapterFunc(func(_ context.Context, prog *nlp.Program, _ solver.Options) (*solver.Solution, error) {
		x := make([]float64, prog.NumVars())
		copy(x, prog.Init)
		return &solver.Solution{X: x, Status: solver.Infeasible, Violation: 0.5},
			fmt.Errorf("tight boxes: %w", solver.ErrInfeasible)
	})

	c := newController(t, ad, 4)
	u, plan, err := c.SolveStep(context.Background(), dynamo.State{0, 0, 0, 0, 0, 0}, nil)

	if u != nil {
		t.Errorf("got control %v on failed solve", u)
	}
	if !errors.Is(err, solver.ErrInfeasible) {
		t.Errorf("err = %v, want ErrInfeasible", err)
	}
	if plan == nil || plan.Status != solver.Infeasible {
		t.Errorf("plan = %+v, want infeasible diagnostics", plan)
	}
}

func TestWarmStartShift(t *testing.T) {
	var lastInit []float64
	calls := 0

	ad := adapterFunc(func(_ context.Context, prog *nlp.Program, _ solver.Options) (*solver.Solution, error) {
		lastInit = append([]float64(nil), prog.Init...)
		calls++

		// Return a recognizable trajectory: every variable tagged by
		// its index.
		x := make([]float64, prog.NumVars())
		for i := range x {
			x[i] = float64(i)
		}
		return &solver.Solution{X: x, Status: solver.Converged}, nil
	})

	c := newController(t, ad, 4)
	c.EnableWarmStart(true)

	x0 := dynamo.State{0, 0, 0, 0, 0, 0}
	if _, _, err := c.SolveStep(context.Background(), x0, nil); err != nil {
		t.Fatal(err)
	}

	x1 := dynamo.State{9, 8, 0.1, 0.2, 0.3, 0.4}
	if _, _, err := c.SolveStep(context.Background(), x1, nil); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Fatalf("adapter called %d times", calls)
	}

	prog, err := nlp.NewTranscriber(quad.NewPlanar()).Transcribe(x1, nil, 0.1, 4, nlp.NoLimits(), nil)
	if err != nil {
		t.Fatal(err)
	}

	// State 0 of the shifted seed is the fresh measurement.
	for comp := 0; comp < 6; comp++ {
		if lastInit[prog.StateIndex(0, comp)] != x1[comp] {
			t.Errorf("shifted state 0 component %d = %v, want %v",
				comp, lastInit[prog.StateIndex(0, comp)], x1[comp])
		}
	}
	// Interior states and controls moved forward one period.
	for k := 1; k < 4; k++ {
		for comp := 0; comp < 6; comp++ {
			want := float64(prog.StateIndex(k+1, comp))
			if lastInit[prog.StateIndex(k, comp)] != want {
				t.Errorf("shifted state %d component %d = %v, want %v",
					k, comp, lastInit[prog.StateIndex(k, comp)], want)
			}
		}
	}
	for k := 0; k < 3; k++ {
		for comp := 0; comp < 2; comp++ {
			want := float64(prog.ControlIndex(k+1, comp))
			if lastInit[prog.ControlIndex(k, comp)] != want {
				t.Errorf("shifted control %d component %d = %v, want %v",
					k, comp, lastInit[prog.ControlIndex(k, comp)], want)
			}
		}
	}
	// The horizon tail repeats.
	if lastInit[prog.ControlIndex(3, 0)] != float64(prog.ControlIndex(3, 0)) {
		t.Errorf("tail control not repeated")
	}
}

func TestWarmStartOffSeedsFresh(t *testing.T) {
	var inits [][]float64
	ad := adapterFunc(func(_ context.Context, prog *nlp.Program, _ solver.Options) (*solver.Solution, error) {
		inits = append(inits, append([]float64(nil), prog.Init...))
		x := make([]float64, prog.NumVars())
		for i := range x {
			x[i] = 42
		}
		return &solver.Solution{X: x, Status: solver.Converged}, nil
	})

	c := newController(t, ad, 3)

	x0 := dynamo.State{1, 1, 0, 0, 0, 0}
	if _, _, err := c.SolveStep(context.Background(), x0, nil); err != nil {
		t.Fatal(err)
	}
	if _, _, err := c.SolveStep(context.Background(), x0, nil); err != nil {
		t.Fatal(err)
	}

	for i := range inits[0] {
		if inits[0][i] != inits[1][i] {
			t.Fatalf("cold-start seed changed between periods at %d", i)
		}
	}
}

func TestFallbackParse(t *testing.T) {
	cases := []struct {
		in      string
		want    Fallback
		wantErr bool
	}{
		{"hold", FallbackHold, false},
		{"", FallbackHold, false},
		{"zero", FallbackZero, false},
		{"abort", FallbackAbort, false},
		{"bogus", FallbackHold, true},
	}

	for _, tc := range cases {
		got, err := ParseFallback(tc.in)
		if tc.wantErr != (err != nil) {
			t.Errorf("ParseFallback(%q) err = %v", tc.in, err)
			continue
		}
		if !tc.wantErr && got != tc.want {
			t.Errorf("ParseFallback(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}

	for _, f := range []Fallback{FallbackHold, FallbackZero, FallbackAbort} {
		parsed, err := ParseFallback(f.String())
		if err != nil || parsed != f {
			t.Errorf("round trip failed for %v", f)
		}
	}
}
