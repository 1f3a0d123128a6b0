// Package dynamo provides core primitives for model-predictive control
// of dynamical systems.
//
// The package defines the fundamental vocabulary shared by the rest of
// the module:
//
//   - [State]: vector representing plant state
//   - [Control]: vector representing a commanded input
//   - [System]: interface for ODE systems (dX/dt = f(X, u, t))
//   - [Integrator]: numerical integrator interface
//   - [Metric], [Observer]: per-period instrumentation hooks
//
// # Example
//
//	model := quad.NewPlanar()
//	dx := model.Derive(x, u, t)
//	next := integ.Step(model, x, u, t, dt)
//
// # Thread Safety
//
// States and controls are plain slices and carry no synchronization.
// Concurrent runs must not share mutable model or metric instances; see
// the ensemble runner in the sim package.
package dynamo
