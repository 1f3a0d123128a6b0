package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/quadmpc/internal/dynamo"
	"github.com/san-kum/quadmpc/internal/integrators"
	"github.com/san-kum/quadmpc/internal/metrics"
	"github.com/san-kum/quadmpc/internal/nlp"
	"github.com/san-kum/quadmpc/internal/quad"
	"github.com/san-kum/quadmpc/internal/solver"
)

// Registry resolves config names onto the concrete pieces of a run.
// Objectives take the model because tracking references its hover
// control.
type Registry struct {
	integrators map[string]func() dynamo.Integrator
	objectives  map[string]func(model *quad.Planar) nlp.Objective
	adapters    map[string]func() solver.Adapter
}

func NewRegistry() *Registry {
	r := &Registry{
		integrators: make(map[string]func() dynamo.Integrator),
		objectives:  make(map[string]func(model *quad.Planar) nlp.Objective),
		adapters:    make(map[string]func() solver.Adapter),
	}

	r.integrators["euler"] = func() dynamo.Integrator { return integrators.NewEuler() }
	r.integrators["rk4"] = func() dynamo.Integrator { return integrators.NewRK4() }

	r.objectives["position-sum"] = func(*quad.Planar) nlp.Objective { return nlp.PositionSum{} }
	r.objectives["tracking"] = func(model *quad.Planar) nlp.Objective {
		return nlp.NewTracking(model.HoverControl())
	}

	r.adapters["auglag"] = func() solver.Adapter { return solver.NewAugLag() }
	r.adapters["rollout"] = func() solver.Adapter { return solver.Rollout{} }

	return r
}

func (r *Registry) GetIntegrator(name string) (dynamo.Integrator, error) {
	fn, ok := r.integrators[name]
	if !ok {
		return nil, fmt.Errorf("unknown integrator: %s", name)
	}
	return fn(), nil
}

func (r *Registry) GetObjective(name string, model *quad.Planar) (nlp.Objective, error) {
	fn, ok := r.objectives[name]
	if !ok {
		return nil, fmt.Errorf("unknown objective: %s", name)
	}
	return fn(model), nil
}

// GetAdapter resolves a solver name; the empty name means the default
// augmented-Lagrangian solver.
func (r *Registry) GetAdapter(name string) (solver.Adapter, error) {
	if name == "" {
		name = "auglag"
	}
	fn, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("unknown solver: %s", name)
	}
	return fn(), nil
}

func (r *Registry) ListIntegrators() []string { return sortedKeys(r.integrators) }
func (r *Registry) ListObjectives() []string  { return sortedKeys(r.objectives) }
func (r *Registry) ListAdapters() []string    { return sortedKeys(r.adapters) }

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultMetrics is the standard instrumentation attached to every run.
func DefaultMetrics(model *quad.Planar, target dynamo.State) []dynamo.Metric {
	return []dynamo.Metric{
		metrics.NewControlEffort(model.HoverControl()),
		metrics.NewTrackingError(target),
		metrics.NewStability(10.0),
		metrics.NewSolveTime(),
		metrics.NewInfeasibleRate(),
	}
}
