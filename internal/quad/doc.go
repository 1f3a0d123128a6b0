// Package quad implements the planar quadrotor model.
//
// The state has six components in fixed order: world positions px, pz,
// pitch theta, body-frame velocities vx, vz, and pitch rate omega. The
// two controls are mass-normalized net thrust and net moment. Gravity
// is a parameter of [Planar], injected at construction, never ambient
// package state.
//
// [Planar.Derive] evaluates the continuous dynamics, [Planar.Predict]
// the shared one-step Euler prediction, and [Planar.Linearize] the
// analytic Jacobians the horizon transcription differentiates through.
package quad
