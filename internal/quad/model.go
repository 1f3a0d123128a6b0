package quad

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/quadmpc/internal/dynamo"
)

// DefaultGravity is the gravitational acceleration used when none is
// configured.
const DefaultGravity = 9.81

// State component indices. Positions are world-frame, velocities
// body-frame.
const (
	Px    = 0
	Pz    = 1
	Theta = 2
	Vx    = 3
	Vz    = 4
	Omega = 5
)

// Control component indices.
const (
	UThrust = 0
	UMoment = 1
)

// StateDim and ControlDim for the planar model.
const (
	NX = 6
	NU = 2
)

// Planar is a planar quadrotor with mass-normalized controls: u[0] is
// net thrust acceleration, u[1] net angular acceleration. Thrust
// non-negativity is a constraint of the optimization, not of the model;
// Derive accepts any finite input.
type Planar struct {
	Gravity float64
}

func NewPlanar() *Planar {
	return &Planar{Gravity: DefaultGravity}
}

func (p *Planar) StateDim() int   { return NX }
func (p *Planar) ControlDim() int { return NU }

func (p *Planar) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	theta, vx, vz, omega := x[2], x[3], x[4], x[5]

	uF, uM := 0.0, 0.0
	if len(u) >= 2 {
		uF, uM = u[0], u[1]
	} else if len(u) == 1 {
		uF = u[0]
	}

	sin, cos := math.Sin(theta), math.Cos(theta)

	return dynamo.State{
		vx*cos - vz*sin,
		vx*sin + vz*cos,
		omega,
		vz*omega - p.Gravity*sin,
		-vx*omega - p.Gravity*cos + uF,
		uM,
	}
}

// Predict is the one-step forward Euler prediction x + dt*f(x, u). The
// horizon transcription and the default plant integrator share it, so
// with an Euler plant the prediction model is exact.
func (p *Planar) Predict(x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	dx := p.Derive(x, u, t)
	next := make(dynamo.State, len(x))
	for i := range x {
		next[i] = x[i] + dt*dx[i]
	}
	return next
}

// Linearize returns the Jacobians A = df/dx (6x6) and B = df/du (6x2)
// of the continuous dynamics at (x, u).
func (p *Planar) Linearize(x dynamo.State, u dynamo.Control) (a, b *mat.Dense) {
	theta, vx, vz, omega := x[2], x[3], x[4], x[5]
	sin, cos := math.Sin(theta), math.Cos(theta)

	a = mat.NewDense(NX, NX, nil)
	a.Set(Px, Theta, -vx*sin-vz*cos)
	a.Set(Px, Vx, cos)
	a.Set(Px, Vz, -sin)
	a.Set(Pz, Theta, vx*cos-vz*sin)
	a.Set(Pz, Vx, sin)
	a.Set(Pz, Vz, cos)
	a.Set(Theta, Omega, 1)
	a.Set(Vx, Theta, -p.Gravity*cos)
	a.Set(Vx, Vz, omega)
	a.Set(Vx, Omega, vz)
	a.Set(Vz, Theta, p.Gravity*sin)
	a.Set(Vz, Vx, -omega)
	a.Set(Vz, Omega, -vx)

	b = mat.NewDense(NX, NU, nil)
	b.Set(Vz, UThrust, 1)
	b.Set(Omega, UMoment, 1)

	return a, b
}

// HoverControl is the input holding a level quad stationary: thrust
// canceling gravity, zero moment.
func (p *Planar) HoverControl() dynamo.Control {
	return dynamo.Control{p.Gravity, 0}
}

func (p *Planar) GetParams() map[string]float64 {
	return map[string]float64{
		"gravity": p.Gravity,
	}
}

func (p *Planar) SetParam(name string, value float64) error {
	switch name {
	case "gravity":
		p.Gravity = value
	default:
		return fmt.Errorf("unknown param: %s", name)
	}
	return nil
}
