package solver

import (
	"context"
	"fmt"

	"github.com/san-kum/quadmpc/internal/nlp"
)

// Rollout returns the program's seed trajectory unmodified. The seed
// satisfies the dynamics exactly, so a controller wired to this adapter
// degenerates to hover feedforward. It gives dry runs and determinism
// tests a solve that is instant, feasible and repeatable.
type Rollout struct{}

func (Rollout) Solve(ctx context.Context, prog *nlp.Program, opts Options) (*Solution, error) {
	if prog == nil || prog.Objective == nil {
		return nil, fmt.Errorf("%w: nil program", ErrSolver)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("solver: %w", err)
	}

	x := make([]float64, len(prog.Init))
	copy(x, prog.Init)

	return &Solution{
		X:         x,
		Objective: prog.Objective(x, nil),
		Status:    Converged,
	}, nil
}
