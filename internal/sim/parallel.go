package sim

import (
	"context"
	"math/rand"
	"sync"

	"github.com/san-kum/quadmpc/internal/dynamo"
)

// Ensemble runs independent closed-loop instances concurrently.
// Controllers keep per-solve state (warm starts, scratch buffers), so
// every run builds its own loop through the factory; nothing is shared
// between goroutines.
type Ensemble struct {
	build     func() (*Loop, error)
	numRuns   int
	seedStart int64
	perturb   float64
}

func NewEnsemble(build func() (*Loop, error), numRuns int, seedStart int64) *Ensemble {
	return &Ensemble{build: build, numRuns: numRuns, seedStart: seedStart}
}

// SetPerturbation adds zero-mean Gaussian noise with the given standard
// deviation to each run's initial state, seeded per run.
func (e *Ensemble) SetPerturbation(stddev float64) {
	e.perturb = stddev
}

func (e *Ensemble) Run(ctx context.Context, x0, xref dynamo.State, cfg Config) ([]*Result, error) {
	results := make([]*Result, e.numRuns)
	errs := make([]error, e.numRuns)

	var wg sync.WaitGroup
	for i := 0; i < e.numRuns; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			loop, err := e.build()
			if err != nil {
				errs[idx] = err
				return
			}

			cfgCopy := cfg
			cfgCopy.Seed = e.seedStart + int64(idx)

			xi := x0.Clone()
			if e.perturb > 0 {
				rng := rand.New(rand.NewSource(cfgCopy.Seed))
				for c := range xi {
					xi[c] += e.perturb * rng.NormFloat64()
				}
			}

			results[idx], errs[idx] = loop.Run(ctx, xi, xref, cfgCopy)
		}(i)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return results, nil
}
