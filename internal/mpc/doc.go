// Package mpc implements the receding-horizon controller: transcribe
// the horizon at the measured state, solve, apply the first control.
//
// A [Controller] owns the transcription parameters (dt, horizon,
// limits, objective) and the solver adapter. It deliberately does NOT
// own failure recovery: when a solve fails, [Controller.SolveStep]
// returns the error and no control, and the loop applies its
// [Fallback] policy.
package mpc
