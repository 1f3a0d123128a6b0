package nlp

import (
	"github.com/san-kum/quadmpc/internal/dynamo"
)

// Eval is a scalar function of the decision vector. It returns the
// value at z and, when grad is non-nil, overwrites grad with the full
// gradient. grad always has len(z).
type Eval func(z, grad []float64) float64

// Bound is a box constraint on a single decision variable. Infinite
// endpoints mean unconstrained on that side.
type Bound struct {
	Index int
	Lower float64
	Upper float64
}

// Program is a transcribed horizon optimization problem. The decision
// vector stacks all horizon states first, then all controls: state k
// occupies [NX*k, NX*k+NX), control k occupies
// [NX*(N+1)+NU*k, NX*(N+1)+NU*k+NU). Indices are 0-based: states run
// k = 0..N, controls k = 0..N-1.
type Program struct {
	N  int
	Dt float64
	NX int
	NU int

	Objective  Eval
	Equalities []Eval
	Bounds     []Bound

	// Init is the starting point handed to the solver. The transcriber
	// seeds it with a hover rollout from the initial state so every
	// dynamics equality is satisfied exactly; callers may overwrite it
	// to warm start.
	Init []float64

	// Target is the reference state the objective was bound against.
	Target dynamo.State
}

func (p *Program) NumVars() int       { return p.NX*(p.N+1) + p.NU*p.N }
func (p *Program) NumEqualities() int { return len(p.Equalities) }

// StateIndex returns the decision-vector index of state component comp
// at horizon step k.
func (p *Program) StateIndex(k, comp int) int {
	return p.NX*k + comp
}

// ControlIndex returns the decision-vector index of control component
// comp at horizon step k.
func (p *Program) ControlIndex(k, comp int) int {
	return p.NX*(p.N+1) + p.NU*k + comp
}

// StateAt copies state k out of a decision vector.
func (p *Program) StateAt(z []float64, k int) dynamo.State {
	x := make(dynamo.State, p.NX)
	copy(x, z[p.StateIndex(k, 0):p.StateIndex(k, 0)+p.NX])
	return x
}

// ControlAt copies control k out of a decision vector.
func (p *Program) ControlAt(z []float64, k int) dynamo.Control {
	u := make(dynamo.Control, p.NU)
	copy(u, z[p.ControlIndex(k, 0):p.ControlIndex(k, 0)+p.NU])
	return u
}

func zeroFill(v []float64) {
	for i := range v {
		v[i] = 0
	}
}
