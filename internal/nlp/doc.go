// Package nlp transcribes planar-quadrotor horizon problems into
// constrained programs.
//
// A [Transcriber] turns an initial state, a step length dt and a
// horizon of N steps into a [Program]: 6*(N+1)+2*N decision variables,
// 6*(N+1) equality constraints (initial-state binding plus forward
// Euler dynamics defects) and box bounds derived from [Limits], with
// the thrust lower bound pinned at zero. Objectives are pluggable via
// [Objective]; [PositionSum] is the default, [Tracking] the cost that
// actually uses the target state.
//
// Every constraint and objective is an [Eval] closure carrying its own
// analytic gradient, so any smooth-optimization backend can consume a
// program without knowing the quadrotor behind it.
package nlp
