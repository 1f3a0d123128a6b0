package quad

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/quadmpc/internal/dynamo"
)

func TestPlanarDims(t *testing.T) {
	p := NewPlanar()
	if p.StateDim() != 6 {
		t.Errorf("expected 6 states, got %d", p.StateDim())
	}
	if p.ControlDim() != 2 {
		t.Errorf("expected 2 controls, got %d", p.ControlDim())
	}
}

func TestPlanarFreefall(t *testing.T) {
	p := NewPlanar()

	x := dynamo.State{0, 0, 0, 0, 0, 0}
	u := dynamo.Control{0, 0}

	dx := p.Derive(x, u, 0.0)

	want := dynamo.State{0, 0, 0, 0, -9.81, 0}
	for i := range want {
		if math.Abs(dx[i]-want[i]) > 1e-12 {
			t.Errorf("dx[%d] = %v, want %v", i, dx[i], want[i])
		}
	}

	next := p.Predict(x, u, 0, 1.0)
	for i := range want {
		if math.Abs(next[i]-want[i]) > 1e-12 {
			t.Errorf("euler step[%d] = %v, want %v", i, next[i], want[i])
		}
	}
}

func TestPlanarStepScalesWithDt(t *testing.T) {
	p := NewPlanar()
	x := dynamo.State{0, 0, 0, 0, 0, 0}
	u := dynamo.Control{0, 0}

	for _, dt := range []float64{0.01, 0.1, 0.5, 2.0} {
		next := p.Predict(x, u, 0, dt)
		for i, v := range next {
			if i == Vz {
				if math.Abs(v-(-p.Gravity*dt)) > 1e-12 {
					t.Errorf("dt=%v: vz = %v, want %v", dt, v, -p.Gravity*dt)
				}
				continue
			}
			if v != 0 {
				t.Errorf("dt=%v: component %d = %v, want 0", dt, i, v)
			}
		}
	}
}

func TestPlanarHover(t *testing.T) {
	p := NewPlanar()

	x := dynamo.State{2, 5, 0, 0, 0, 0}
	dx := p.Derive(x, p.HoverControl(), 0.0)

	for i, v := range dx {
		if math.Abs(v) > 1e-12 {
			t.Errorf("hover derivative[%d] = %v, want 0", i, v)
		}
	}
}

func TestPlanarDeriveDoesNotMutate(t *testing.T) {
	p := NewPlanar()

	x := dynamo.State{1, 2, 0.3, 0.4, 0.5, 0.6}
	saved := x.Clone()

	_ = p.Derive(x, dynamo.Control{3, 0.1}, 0.0)

	for i := range x {
		if x[i] != saved[i] {
			t.Fatalf("Derive mutated caller state at %d: %v -> %v", i, saved[i], x[i])
		}
	}
}

func TestPlanarGravityInjected(t *testing.T) {
	p := &Planar{Gravity: 3.71}

	dx := p.Derive(dynamo.State{0, 0, 0, 0, 0, 0}, dynamo.Control{0, 0}, 0)
	if math.Abs(dx[Vz]+3.71) > 1e-12 {
		t.Errorf("vz derivative = %v, want %v", dx[Vz], -3.71)
	}

	if err := p.SetParam("gravity", 1.62); err != nil {
		t.Fatalf("SetParam: %v", err)
	}
	if p.GetParams()["gravity"] != 1.62 {
		t.Errorf("gravity param not applied")
	}
	if err := p.SetParam("mass", 1); err == nil {
		t.Error("expected error for unknown param")
	}
}

func TestPlanarShortControl(t *testing.T) {
	p := NewPlanar()
	x := dynamo.State{0, 0, 0.2, 1, -1, 0.5}

	got := p.Derive(x, dynamo.Control{4}, 0)
	want := p.Derive(x, dynamo.Control{4, 0}, 0)
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("1-component control differs at %d: %v vs %v", i, got[i], want[i])
		}
	}
}

func TestPlanarLinearize(t *testing.T) {
	p := NewPlanar()

	x := dynamo.State{0.5, -1.2, 0.4, 1.1, -0.3, 0.7}
	u := dynamo.Control{11.0, -0.2}

	a, b := p.Linearize(x, u)

	fdA := mat.NewDense(NX, NX, nil)
	fd.Jacobian(fdA, func(y, xs []float64) {
		copy(y, p.Derive(dynamo.State(xs), u, 0))
	}, []float64(x), &fd.JacobianSettings{Formula: fd.Central})

	fdB := mat.NewDense(NX, NU, nil)
	fd.Jacobian(fdB, func(y, us []float64) {
		copy(y, p.Derive(x, dynamo.Control(us), 0))
	}, []float64(u), &fd.JacobianSettings{Formula: fd.Central})

	for i := 0; i < NX; i++ {
		for j := 0; j < NX; j++ {
			if math.Abs(a.At(i, j)-fdA.At(i, j)) > 1e-6 {
				t.Errorf("A(%d,%d) = %v, finite difference %v", i, j, a.At(i, j), fdA.At(i, j))
			}
		}
		for j := 0; j < NU; j++ {
			if math.Abs(b.At(i, j)-fdB.At(i, j)) > 1e-6 {
				t.Errorf("B(%d,%d) = %v, finite difference %v", i, j, b.At(i, j), fdB.At(i, j))
			}
		}
	}
}
