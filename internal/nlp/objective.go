package nlp

import (
	"github.com/san-kum/quadmpc/internal/dynamo"
)

// Objective builds the scalar cost of a transcribed program.
type Objective interface {
	Name() string
	Bind(p *Program, xref dynamo.State) Eval
}

// PositionSum is the historical default cost: the plain sum of px and
// pz over horizon steps 1..N. It ignores the target state entirely, so
// minimizing it drives both positions downward rather than toward a
// reference. It is kept as the default for continuity with the original
// controller; use [Tracking] to actually reach a target.
type PositionSum struct{}

func (PositionSum) Name() string { return "position-sum" }

func (PositionSum) Bind(p *Program, xref dynamo.State) Eval {
	return func(z, grad []float64) float64 {
		if grad != nil {
			zeroFill(grad)
		}
		sum := 0.0
		for k := 1; k <= p.N; k++ {
			ix := p.StateIndex(k, 0)
			iz := p.StateIndex(k, 1)
			sum += z[ix] + z[iz]
			if grad != nil {
				grad[ix] = 1
				grad[iz] = 1
			}
		}
		return sum
	}
}

// Tracking is a quadratic tracking cost: squared distance of every
// horizon state from the target plus a small penalty on control
// deviation from ControlRef (typically the hover input, so thrust
// holding altitude is free).
type Tracking struct {
	StateWeight   float64
	ControlWeight float64
	ControlRef    dynamo.Control
}

func NewTracking(hover dynamo.Control) *Tracking {
	return &Tracking{
		StateWeight:   1.0,
		ControlWeight: 0.01,
		ControlRef:    hover.Clone(),
	}
}

func (tr *Tracking) Name() string { return "tracking" }

func (tr *Tracking) Bind(p *Program, xref dynamo.State) Eval {
	ref := make([]float64, p.NX)
	copy(ref, xref)

	uref := make([]float64, p.NU)
	copy(uref, tr.ControlRef)

	sw, cw := tr.StateWeight, tr.ControlWeight

	return func(z, grad []float64) float64 {
		if grad != nil {
			zeroFill(grad)
		}
		sum := 0.0
		for k := 1; k <= p.N; k++ {
			for c := 0; c < p.NX; c++ {
				i := p.StateIndex(k, c)
				d := z[i] - ref[c]
				sum += sw * d * d
				if grad != nil {
					grad[i] = 2 * sw * d
				}
			}
		}
		for k := 0; k < p.N; k++ {
			for c := 0; c < p.NU; c++ {
				i := p.ControlIndex(k, c)
				d := z[i] - uref[c]
				sum += cw * d * d
				if grad != nil {
					grad[i] = 2 * cw * d
				}
			}
		}
		return sum
	}
}
