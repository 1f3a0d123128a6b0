package solver

import (
	"context"
	"errors"

	"github.com/san-kum/quadmpc/internal/nlp"
)

// Status classifies the outcome of a solve.
type Status int

const (
	StatusUnknown Status = iota
	// Converged means every constraint holds within tolerance at a
	// stationary point.
	Converged
	// IterationLimit means the iteration budget ran out first.
	IterationLimit
	// Infeasible means no trajectory satisfies the constraints.
	Infeasible
	// Failed means the backend broke down (non-finite values, line
	// search failure).
	Failed
)

func (s Status) String() string {
	switch s {
	case Converged:
		return "converged"
	case IterationLimit:
		return "iteration-limit"
	case Infeasible:
		return "infeasible"
	case Failed:
		return "solver-error"
	default:
		return "unknown"
	}
}

// Sentinel errors matching the non-converged statuses, for errors.Is
// across the solver boundary.
var (
	ErrIterationLimit = errors.New("solver: iteration limit reached before convergence")
	ErrInfeasible     = errors.New("solver: constraints admit no solution")
	ErrSolver         = errors.New("solver: internal failure")
)

// Options are caller-facing solve controls, passed through unmodified.
type Options struct {
	// MaxIterations caps the total inner iterations across the whole
	// solve. Zero means the default budget.
	MaxIterations int
	// Accuracy is the constraint tolerance deciding convergence. Zero
	// means the default.
	Accuracy float64
	// Verbose streams per-iteration progress to stdout.
	Verbose bool
}

func DefaultOptions() Options {
	return Options{
		MaxIterations: 2000,
		Accuracy:      1e-6,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxIterations <= 0 {
		o.MaxIterations = d.MaxIterations
	}
	if o.Accuracy <= 0 {
		o.Accuracy = d.Accuracy
	}
	return o
}

// Solution is the best point a solve produced, converged or not.
type Solution struct {
	X          []float64
	Objective  float64
	Iterations int
	// Violation is the largest constraint violation at X.
	Violation float64
	Status    Status
}

// Adapter is the boundary the controller talks through. Implementations
// must honor the context deadline and report their outcome through the
// Status and the sentinel errors; callers never see backend internals.
type Adapter interface {
	Solve(ctx context.Context, prog *nlp.Program, opts Options) (*Solution, error)
}
