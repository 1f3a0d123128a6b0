package optim

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/quadmpc/internal/dynamo"
	"github.com/san-kum/quadmpc/internal/experiment"
)

// GridSearch sweeps the cartesian product of named parameter ranges
// and keeps the combination that minimizes a recorded metric. Every
// trial runs its own experiment, so trials evaluate in parallel.
type GridSearch struct {
	paramNames []string
	ranges     [][]float64
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges}
}

// Trial is one evaluated parameter combination.
type Trial struct {
	Params map[string]float64
	Score  float64
	Err    error
}

// Search runs every combination and returns the best parameters with
// their score. build must return an experiment that is already set up.
func (g *GridSearch) Search(
	ctx context.Context,
	build func(params map[string]float64) (*experiment.Experiment, error),
	metricName string,
) (map[string]float64, float64, error) {
	trials, err := g.SearchAll(ctx, build, metricName)
	if err != nil {
		return nil, math.Inf(1), err
	}

	best := math.Inf(1)
	var bestParams map[string]float64
	for _, tr := range trials {
		if tr.Err != nil {
			continue
		}
		if tr.Score < best {
			best = tr.Score
			bestParams = tr.Params
		}
	}

	if bestParams == nil {
		return nil, best, fmt.Errorf("optim: no trial produced metric %s", metricName)
	}
	return bestParams, best, nil
}

// SearchAll evaluates every combination and returns all trials in
// enumeration order, including failed ones.
func (g *GridSearch) SearchAll(
	ctx context.Context,
	build func(params map[string]float64) (*experiment.Experiment, error),
	metricName string,
) ([]Trial, error) {
	if len(g.paramNames) != len(g.ranges) {
		return nil, fmt.Errorf("optim: %d parameter names for %d ranges", len(g.paramNames), len(g.ranges))
	}

	combos := g.combos()
	trials := make([]Trial, len(combos))

	dynamo.ParallelFor(len(combos), 1, func(start, end int) {
		for i := start; i < end; i++ {
			trials[i] = evaluate(ctx, combos[i], build, metricName)
		}
	})

	return trials, nil
}

func (g *GridSearch) combos() []map[string]float64 {
	combos := []map[string]float64{{}}
	for i, name := range g.paramNames {
		next := make([]map[string]float64, 0, len(combos)*len(g.ranges[i]))
		for _, base := range combos {
			for _, val := range g.ranges[i] {
				m := make(map[string]float64, len(base)+1)
				for k, v := range base {
					m[k] = v
				}
				m[name] = val
				next = append(next, m)
			}
		}
		combos = next
	}
	return combos
}

func evaluate(
	ctx context.Context,
	params map[string]float64,
	build func(map[string]float64) (*experiment.Experiment, error),
	metricName string,
) Trial {
	tr := Trial{Params: params, Score: math.Inf(1)}

	exp, err := build(params)
	if err != nil {
		tr.Err = err
		return tr
	}

	result, err := exp.Run(ctx)
	if err != nil {
		tr.Err = err
		return tr
	}

	val, ok := result.Metrics[metricName]
	if !ok {
		tr.Err = fmt.Errorf("optim: metric %s not recorded", metricName)
		return tr
	}

	tr.Score = val
	return tr
}
