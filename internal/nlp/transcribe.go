package nlp

import (
	"fmt"
	"math"

	"github.com/san-kum/quadmpc/internal/dynamo"
	"github.com/san-kum/quadmpc/internal/quad"
)

// Transcriber maps (initial state, horizon) pairs onto constrained
// programs over the stacked decision vector. It performs no solving.
type Transcriber struct {
	Model *quad.Planar
}

func NewTranscriber(model *quad.Planar) *Transcriber {
	return &Transcriber{Model: model}
}

// Transcribe builds the horizon program anchored at x0: one equality
// per state component binding state 0 to x0, one equality per state
// component and step enforcing the forward Euler dynamics, box bounds
// from the limits at every step, and a thrust lower bound of exactly
// zero on every control. A nil objective defaults to [PositionSum].
func (tr *Transcriber) Transcribe(x0, xref dynamo.State, dt float64, n int, lim Limits, obj Objective) (*Program, error) {
	if n < 1 {
		return nil, fmt.Errorf("transcribe: horizon %d: %w", n, dynamo.ErrBadHorizon)
	}
	if dt <= 0 || math.IsNaN(dt) {
		return nil, fmt.Errorf("transcribe: dt %v: %w", dt, dynamo.ErrBadStep)
	}
	if len(x0) != tr.Model.StateDim() {
		return nil, fmt.Errorf("transcribe: initial state has %d components, model wants %d: %w",
			len(x0), tr.Model.StateDim(), dynamo.ErrDimensionMismatch)
	}
	if !x0.IsValid() {
		return nil, fmt.Errorf("transcribe: %w", dynamo.ErrInvalidState)
	}
	if xref != nil && len(xref) != tr.Model.StateDim() {
		return nil, fmt.Errorf("transcribe: target has %d components, model wants %d: %w",
			len(xref), tr.Model.StateDim(), dynamo.ErrDimensionMismatch)
	}
	if err := lim.Validate(); err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}
	if obj == nil {
		obj = PositionSum{}
	}

	p := &Program{
		N:  n,
		Dt: dt,
		NX: tr.Model.StateDim(),
		NU: tr.Model.ControlDim(),
	}
	if xref != nil {
		p.Target = xref.Clone()
	} else {
		p.Target = make(dynamo.State, p.NX)
	}

	p.Equalities = make([]Eval, 0, p.NX*(n+1))
	for c := 0; c < p.NX; c++ {
		p.Equalities = append(p.Equalities, tr.initialBinding(p, c, x0[c]))
	}
	for k := 0; k < n; k++ {
		for c := 0; c < p.NX; c++ {
			p.Equalities = append(p.Equalities, tr.defect(p, k, c))
		}
	}

	p.Bounds = tr.bounds(p, lim)
	p.Init = tr.rollout(p, x0)
	p.Objective = obj.Bind(p, p.Target)

	return p, nil
}

// initialBinding is the equality z[c] - x0[c] = 0 pinning state 0.
func (tr *Transcriber) initialBinding(p *Program, c int, want float64) Eval {
	idx := p.StateIndex(0, c)
	return func(z, grad []float64) float64 {
		if grad != nil {
			zeroFill(grad)
			grad[idx] = 1
		}
		return z[idx] - want
	}
}

// defect is the equality x_{k+1}[c] - (x_k[c] + dt*f_c(x_k, u_k)) = 0
// enforcing the Euler dynamics across step k.
func (tr *Transcriber) defect(p *Program, k, c int) Eval {
	xOff := p.StateIndex(k, 0)
	uOff := p.ControlIndex(k, 0)
	next := p.StateIndex(k+1, c)
	dt := p.Dt

	return func(z, grad []float64) float64 {
		xk := dynamo.State(z[xOff : xOff+p.NX])
		uk := dynamo.Control(z[uOff : uOff+p.NU])

		dx := tr.Model.Derive(xk, uk, 0)
		val := z[next] - (xk[c] + dt*dx[c])

		if grad != nil {
			zeroFill(grad)
			a, b := tr.Model.Linearize(xk, uk)
			grad[next] = 1
			for j := 0; j < p.NX; j++ {
				g := -dt * a.At(c, j)
				if j == c {
					g -= 1
				}
				grad[xOff+j] = g
			}
			for j := 0; j < p.NU; j++ {
				grad[uOff+j] = -dt * b.At(c, j)
			}
		}
		return val
	}
}

func (tr *Transcriber) bounds(p *Program, lim Limits) []Bound {
	var bs []Bound

	box := func(k, comp int, max float64) {
		if math.IsInf(max, 1) {
			return
		}
		bs = append(bs, Bound{
			Index: p.StateIndex(k, comp),
			Lower: -max,
			Upper: max,
		})
	}

	for k := 0; k <= p.N; k++ {
		box(k, quad.Theta, lim.AngleMax)
		box(k, quad.Omega, lim.RateMax)
		box(k, quad.Vx, lim.VxMax)
		box(k, quad.Vz, lim.VzMax)
	}

	// Thrust can push, never pull. The lower bound is exactly zero at
	// every step; the moment stays free.
	for k := 0; k < p.N; k++ {
		bs = append(bs, Bound{
			Index: p.ControlIndex(k, quad.UThrust),
			Lower: 0,
			Upper: math.Inf(1),
		})
	}

	return bs
}

// rollout seeds the decision vector with a hover trajectory from x0:
// every dynamics defect evaluates to zero at the seed, so the solver
// starts on the equality manifold.
func (tr *Transcriber) rollout(p *Program, x0 dynamo.State) []float64 {
	z := make([]float64, p.NumVars())
	hover := tr.Model.HoverControl()

	x := x0.Clone()
	copy(z[p.StateIndex(0, 0):], x)
	for k := 0; k < p.N; k++ {
		copy(z[p.ControlIndex(k, 0):p.ControlIndex(k, 0)+p.NU], hover)
		x = tr.Model.Predict(x, hover, 0, p.Dt)
		copy(z[p.StateIndex(k+1, 0):p.StateIndex(k+1, 0)+p.NX], x)
	}
	return z
}
