package metrics

import (
	"math"
	"testing"
	"time"

	"github.com/san-kum/quadmpc/internal/dynamo"
	"github.com/san-kum/quadmpc/internal/mpc"
	"github.com/san-kum/quadmpc/internal/quad"
	"github.com/san-kum/quadmpc/internal/solver"
)

func TestControlEffortHoverBaseline(t *testing.T) {
	m := NewControlEffort(quad.NewPlanar().HoverControl())

	x := dynamo.State{0, 0, 0, 0, 0, 0}

	m.Observe(x, dynamo.Control{9.81, 0}, 0)
	if m.Value() != 0 {
		t.Errorf("hovering should cost nothing beyond baseline, got %f", m.Value())
	}

	m.Observe(x, dynamo.Control{10.81, 0.5}, 0.1)
	if math.Abs(m.Value()-0.75) > 1e-9 {
		t.Errorf("expected mean effort 0.75, got %f", m.Value())
	}
}

func TestControlEffortNilBaseline(t *testing.T) {
	m := NewControlEffort(nil)

	m.Observe(dynamo.State{0, 0}, dynamo.Control{2, -3}, 0)
	if math.Abs(m.Value()-5) > 1e-9 {
		t.Errorf("expected raw effort 5, got %f", m.Value())
	}

	m.Reset()
	if m.Value() != 0 {
		t.Error("expected zero effort after reset")
	}
}

func TestTrackingError(t *testing.T) {
	m := NewTrackingError(dynamo.State{0, 0, 0, 0, 0, 0})

	u := dynamo.Control{}

	m.Observe(dynamo.State{3, 4, 0, 0, 0, 0}, u, 0)
	if math.Abs(m.Value()-5) > 1e-9 {
		t.Errorf("expected error 5, got %f", m.Value())
	}

	m.Observe(dynamo.State{0, 0, 0, 0, 0, 0}, u, 0.1)
	if math.Abs(m.Value()-2.5) > 1e-9 {
		t.Errorf("expected mean error 2.5, got %f", m.Value())
	}

	// States with the wrong dimension are skipped, not counted.
	m.Observe(dynamo.State{1, 2}, u, 0.2)
	if math.Abs(m.Value()-2.5) > 1e-9 {
		t.Errorf("short state changed the mean to %f", m.Value())
	}
}

func TestStability(t *testing.T) {
	m := NewStability(1.0)

	u := dynamo.Control{}

	m.Observe(dynamo.State{0.5, -0.5}, u, 0)
	m.Observe(dynamo.State{0.9, 0.1}, u, 0.1)
	m.Observe(dynamo.State{1.5, 0.0}, u, 0.2)
	m.Observe(dynamo.State{0.2, 2.5}, u, 0.3)

	if math.Abs(m.Value()-0.5) > 1e-9 {
		t.Errorf("expected half the periods stable, got %f", m.Value())
	}
	if m.Worst() != 2.5 {
		t.Errorf("expected worst excursion 2.5, got %f", m.Worst())
	}

	m.Reset()
	if m.Value() != 1.0 {
		t.Errorf("expected perfect stability on empty run, got %f", m.Value())
	}
	if m.Worst() != 0 {
		t.Errorf("worst excursion survived reset: %f", m.Worst())
	}
}

func TestSolveTime(t *testing.T) {
	m := NewSolveTime()

	m.ObservePlan(&mpc.Plan{SolveTime: 2 * time.Millisecond})
	m.ObservePlan(&mpc.Plan{SolveTime: 4 * time.Millisecond})
	m.ObservePlan(nil)

	if math.Abs(m.Value()-3.0) > 1e-9 {
		t.Errorf("expected mean 3ms, got %f", m.Value())
	}

	m.Reset()
	if m.Value() != 0 {
		t.Error("expected zero after reset")
	}
}

func TestInfeasibleRate(t *testing.T) {
	m := NewInfeasibleRate()

	m.ObservePlan(&mpc.Plan{Status: solver.Converged})
	m.ObservePlan(&mpc.Plan{Status: solver.Infeasible})
	m.ObservePlan(&mpc.Plan{Status: solver.Converged})
	m.ObservePlan(nil)

	if math.Abs(m.Value()-0.25) > 1e-9 {
		t.Errorf("expected rate 0.25, got %f", m.Value())
	}

	m.Reset()
	if m.Value() != 0 {
		t.Error("expected zero rate after reset")
	}
}
