// Package solver runs transcribed horizon programs through numerical
// optimization backends.
//
// The controller only depends on [Adapter], [Options], [Solution] and
// the [Status] taxonomy: converged, iteration-limit, infeasible and
// solver-error, with matching sentinel errors for errors.Is. [AugLag]
// is the production backend; [Rollout] is the deterministic
// pass-through used by dry runs and tests.
package solver
