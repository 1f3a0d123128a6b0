package solver

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"github.com/san-kum/quadmpc/internal/nlp"
)

// AugLag solves transcribed programs with an augmented Lagrangian:
// equalities and box bounds enter a smooth merit function whose
// unconstrained minimizations run through gonum's LBFGS, with
// multiplier and penalty updates between inner solves.
type AugLag struct {
	// Rho0 is the starting penalty weight, RhoMax its cap. Penalty
	// saturation without feasibility progress classifies the program
	// as infeasible.
	Rho0   float64
	RhoMax float64
	// MaxOuter caps multiplier updates.
	MaxOuter int
	// InnerIterations caps LBFGS iterations per inner solve.
	InnerIterations int
	// GradientTolerance is the stationarity threshold: inner solves
	// stop at it, and scaled by the merit magnitude it decides
	// convergence together with feasibility.
	GradientTolerance float64
}

func NewAugLag() *AugLag {
	return &AugLag{
		Rho0:              10,
		RhoMax:            1e8,
		MaxOuter:          40,
		InnerIterations:   200,
		GradientTolerance: 1e-6,
	}
}

// side is one face of a box constraint in g(z) <= 0 form, with
// g = sign*z[idx] - rhs.
type side struct {
	idx  int
	sign float64
	rhs  float64
}

func flatten(bounds []nlp.Bound) []side {
	var sides []side
	for _, b := range bounds {
		if !math.IsInf(b.Upper, 1) {
			sides = append(sides, side{idx: b.Index, sign: 1, rhs: b.Upper})
		}
		if !math.IsInf(b.Lower, -1) {
			sides = append(sides, side{idx: b.Index, sign: -1, rhs: -b.Lower})
		}
	}
	return sides
}

// Solve minimizes the program objective subject to its equalities and
// bounds, starting from prog.Init. The context deadline is honored
// between and inside inner solves; an overrun returns the best point so
// far with an error wrapping context.DeadlineExceeded.
func (a *AugLag) Solve(ctx context.Context, prog *nlp.Program, opts Options) (*Solution, error) {
	if prog == nil || prog.Objective == nil {
		return nil, fmt.Errorf("%w: nil program", ErrSolver)
	}
	opts = opts.withDefaults()

	for _, b := range prog.Bounds {
		if b.Lower > b.Upper {
			return &Solution{Status: Infeasible},
				fmt.Errorf("empty bound on variable %d: %w", b.Index, ErrInfeasible)
		}
	}

	sides := flatten(prog.Bounds)

	z := make([]float64, prog.NumVars())
	copy(z, prog.Init)

	lam := make([]float64, len(prog.Equalities))
	mu := make([]float64, len(sides))
	rho := a.Rho0

	scratch := make([]float64, len(z))
	g := make([]float64, len(z))

	// The merit closures read lam, mu and rho at call time, so the
	// updates between inner solves take effect without rebuilding.
	value := func(x []float64) float64 {
		v := prog.Objective(x, nil)
		for i, eq := range prog.Equalities {
			c := eq(x, nil)
			v += lam[i]*c + 0.5*rho*c*c
		}
		for j, s := range sides {
			g := s.sign*x[s.idx] - s.rhs
			if t := mu[j] + rho*g; t > 0 {
				v += (t*t - mu[j]*mu[j]) / (2 * rho)
			} else {
				v -= mu[j] * mu[j] / (2 * rho)
			}
		}
		return v
	}

	gradient := func(grad, x []float64) {
		prog.Objective(x, grad)
		for i, eq := range prog.Equalities {
			c := eq(x, scratch)
			floats.AddScaled(grad, lam[i]+rho*c, scratch)
		}
		for j, s := range sides {
			g := s.sign*x[s.idx] - s.rhs
			if t := mu[j] + rho*g; t > 0 {
				grad[s.idx] += t * s.sign
			}
		}
	}

	violation := func(x []float64) float64 {
		v := 0.0
		for _, eq := range prog.Equalities {
			if c := math.Abs(eq(x, nil)); c > v {
				v = c
			}
		}
		for _, s := range sides {
			if g := s.sign*x[s.idx] - s.rhs; g > v {
				v = g
			}
		}
		return v
	}

	problem := optimize.Problem{Func: value, Grad: gradient}

	totalIters := 0
	innerFailures := 0
	stagnant := 0
	prevViol := math.Inf(1)

	for outer := 0; outer < a.MaxOuter; outer++ {
		if err := ctx.Err(); err != nil {
			return solutionAt(prog, z, totalIters, violation(z), IterationLimit),
				fmt.Errorf("solver: %w", err)
		}

		settings := &optimize.Settings{
			MajorIterations:   min(a.InnerIterations, opts.MaxIterations-totalIters),
			GradientThreshold: a.GradientTolerance,
		}
		if opts.Verbose {
			settings.Recorder = optimize.NewPrinter()
		}
		if deadline, ok := ctx.Deadline(); ok {
			settings.Runtime = time.Until(deadline)
		}

		res, err := optimize.Minimize(problem, z, settings, &optimize.LBFGS{})
		if res == nil {
			return nil, fmt.Errorf("%w: %v", ErrSolver, err)
		}
		copy(z, res.X)
		totalIters += res.Stats.MajorIterations

		if math.IsNaN(res.F) || math.IsInf(res.F, 0) || floats.HasNaN(z) {
			return solutionAt(prog, z, totalIters, math.Inf(1), Failed),
				fmt.Errorf("%w: non-finite iterate", ErrSolver)
		}

		viol := violation(z)

		if res.Status == optimize.RuntimeLimit {
			return solutionAt(prog, z, totalIters, viol, IterationLimit),
				fmt.Errorf("solver: %w", context.DeadlineExceeded)
		}

		// Converged means feasible and stationary in the augmented
		// Lagrangian. The inner optimizer's exit status does not decide
		// it: LBFGS can exhaust its cap with the merit gradient already
		// flat at a feasible iterate.
		gradient(g, z)
		if viol <= opts.Accuracy &&
			floats.Norm(g, math.Inf(1)) <= a.GradientTolerance*(1+math.Abs(res.F)) {
			return solutionAt(prog, z, totalIters, viol, Converged), nil
		}

		if err != nil {
			// A line search breakdown on the current merit surface is
			// sometimes rescued by a penalty bump; give up after repeats.
			innerFailures++
			if innerFailures >= 3 {
				return solutionAt(prog, z, totalIters, viol, Failed),
					fmt.Errorf("%w: %v", ErrSolver, err)
			}
		} else {
			innerFailures = 0
		}

		for i, eq := range prog.Equalities {
			lam[i] += rho * eq(z, nil)
		}
		for j, s := range sides {
			g := s.sign*z[s.idx] - s.rhs
			mu[j] = math.Max(0, mu[j]+rho*g)
		}

		if viol > 0.25*prevViol {
			rho = math.Min(rho*10, a.RhoMax)
		}
		if rho >= a.RhoMax && viol > opts.Accuracy && viol >= 0.9*prevViol {
			stagnant++
			if stagnant >= 3 {
				return solutionAt(prog, z, totalIters, viol, Infeasible),
					fmt.Errorf("violation %.3g with saturated penalty: %w", viol, ErrInfeasible)
			}
		} else {
			stagnant = 0
		}
		prevViol = viol

		if totalIters >= opts.MaxIterations {
			return solutionAt(prog, z, totalIters, viol, IterationLimit),
				fmt.Errorf("%d iterations: %w", totalIters, ErrIterationLimit)
		}
	}

	return solutionAt(prog, z, totalIters, violation(z), IterationLimit),
		fmt.Errorf("multiplier updates exhausted: %w", ErrIterationLimit)
}

func solutionAt(prog *nlp.Program, z []float64, iters int, viol float64, st Status) *Solution {
	x := make([]float64, len(z))
	copy(x, z)
	return &Solution{
		X:          x,
		Objective:  prog.Objective(z, nil),
		Iterations: iters,
		Violation:  viol,
		Status:     st,
	}
}
