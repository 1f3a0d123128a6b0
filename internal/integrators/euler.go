package integrators

import "github.com/san-kum/quadmpc/internal/dynamo"

// Euler is the forward Euler rule x + dt*f(x, u, t). It is the default
// plant integrator because the horizon transcription discretizes the
// dynamics the same way, making the controller's prediction model exact.
type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t float64, dt float64) dynamo.State {
	dx := dyn.Derive(x, u, t)
	result := make(dynamo.State, len(x))
	for i := range x {
		result[i] = x[i] + dt*dx[i]
	}
	return result
}
