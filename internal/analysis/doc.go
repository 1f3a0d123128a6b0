// Package analysis inspects recorded closed-loop runs.
//
// Everything here works on the trajectories the loop records (or the
// store reloads), not on live systems:
//
//   - [PowerSpectrum], [DominantFrequency]: oscillation content of a
//     recorded signal, e.g. pitch-rate chatter from a too-short horizon
//   - [ConvergenceRate]: exponential rate of approach toward the target
//   - [Portrait]: planar projections of the trajectory for terminal plots
package analysis
