package sim

import (
	"context"
	"errors"
	"fmt"

	"github.com/san-kum/quadmpc/internal/dynamo"
	"github.com/san-kum/quadmpc/internal/mpc"
	"github.com/san-kum/quadmpc/internal/nlp"
)

// Loop closes the control loop: every period it hands the controller
// the true plant state, applies the first optimized control through the
// plant integrator and advances time by one step. State feedback is
// perfect; nothing carries across periods except the plant state and
// whatever warm start the controller keeps for itself.
type Loop struct {
	ctrl       *mpc.Controller
	plant      dynamo.System
	integrator dynamo.Integrator
	metrics    []dynamo.Metric
	observers  []dynamo.Observer
}

func NewLoop(ctrl *mpc.Controller, plant dynamo.System, integrator dynamo.Integrator) *Loop {
	return &Loop{
		ctrl:       ctrl,
		plant:      plant,
		integrator: integrator,
		metrics:    make([]dynamo.Metric, 0),
		observers:  make([]dynamo.Observer, 0),
	}
}

func (l *Loop) AddMetric(m dynamo.Metric)     { l.metrics = append(l.metrics, m) }
func (l *Loop) AddObserver(o dynamo.Observer) { l.observers = append(l.observers, o) }

// Run drives cfg.Periods control periods from x0 toward xref. Each
// period is strictly sequential: sense, transcribe and solve, actuate,
// integrate. Failed solves engage cfg.Fallback; runs abort on
// configuration errors, on persistent failure, on an invalid plant
// state, or immediately under FallbackAbort. The loop alone decides
// between continuing and aborting.
func (l *Loop) Run(ctx context.Context, x0, xref dynamo.State, cfg Config) (*Result, error) {
	if err := l.validateConfig(cfg); err != nil {
		return nil, err
	}
	if len(x0) != l.plant.StateDim() {
		return nil, fmt.Errorf("sim: initial state has %d components, plant wants %d: %w",
			len(x0), l.plant.StateDim(), dynamo.ErrDimensionMismatch)
	}

	maxFail := cfg.MaxConsecutiveFailures
	if maxFail <= 0 {
		maxFail = DefaultConfig().MaxConsecutiveFailures
	}

	result := &Result{
		States:   make([]dynamo.State, 0, cfg.Periods+1),
		Controls: make([]dynamo.Control, 0, cfg.Periods),
		Times:    make([]float64, 0, cfg.Periods+1),
		Plans:    make([]*mpc.Plan, 0, cfg.Periods),
		Metrics:  make(map[string]float64),
	}

	for _, m := range l.metrics {
		m.Reset()
	}

	x := x0.Clone()
	t := 0.0
	dt := l.ctrl.Dt()
	var lastU dynamo.Control
	consecutive := 0

	result.States = append(result.States, x.Clone())
	result.Times = append(result.Times, t)

	for k := 0; k < cfg.Periods; k++ {
		select {
		case <-ctx.Done():
			return result, fmt.Errorf("%w: %w", dynamo.ErrContextCanceled, ctx.Err())
		default:
		}

		solveCtx, cancel := ctx, context.CancelFunc(func() {})
		if cfg.SolveTimeout > 0 {
			solveCtx, cancel = context.WithTimeout(ctx, cfg.SolveTimeout)
		}
		u, plan, err := l.ctrl.SolveStep(solveCtx, x, xref)
		cancel()
		result.Plans = append(result.Plans, plan)

		for _, m := range l.metrics {
			if po, ok := m.(PlanObserver); ok {
				po.ObservePlan(plan)
			}
		}
		for _, obs := range l.observers {
			if po, ok := obs.(PlanObserver); ok {
				po.ObservePlan(plan)
			}
		}

		if err != nil {
			if isConfigError(err) {
				return result, &dynamo.PeriodError{Period: k, Time: t, State: x.Clone(), Wrapped: err}
			}

			result.Failures++
			consecutive++

			if cfg.Fallback == mpc.FallbackAbort {
				return result, &dynamo.PeriodError{Period: k, Time: t, State: x.Clone(), Wrapped: err}
			}
			if consecutive >= maxFail {
				return result, &dynamo.PeriodError{
					Period: k, Time: t, State: x.Clone(),
					Wrapped: fmt.Errorf("%w: %d consecutive periods, last: %w", ErrPersistentFailure, consecutive, err),
				}
			}

			u = l.fallbackControl(cfg.Fallback, lastU)
			result.FallbackEngagements++
		} else {
			consecutive = 0
		}

		for _, m := range l.metrics {
			m.Observe(x, u, t)
		}
		for _, obs := range l.observers {
			obs.OnStep(x, u, t)
		}

		x = l.integrator.Step(l.plant, x, u, t, dt)
		t += dt

		if cfg.ValidateState && !x.IsValid() {
			return result, &dynamo.PeriodError{Period: k, Time: t, State: x.Clone(), Wrapped: dynamo.ErrInvalidState}
		}

		lastU = u.Clone()
		result.Controls = append(result.Controls, u.Clone())
		result.States = append(result.States, x.Clone())
		result.Times = append(result.Times, t)
		result.Periods++
	}

	for _, m := range l.metrics {
		result.Metrics[m.Name()] = m.Value()
	}

	return result, nil
}

func (l *Loop) validateConfig(cfg Config) error {
	if cfg.Periods < 1 {
		return fmt.Errorf("sim: %d periods: %w", cfg.Periods, dynamo.ErrBadPeriods)
	}
	if cfg.SolveTimeout < 0 {
		return fmt.Errorf("sim: solve timeout must be non-negative, got %v", cfg.SolveTimeout)
	}
	return nil
}

// isConfigError separates misconfiguration, which aborts the run, from
// solve failures, which engage the fallback policy.
func isConfigError(err error) bool {
	return errors.Is(err, dynamo.ErrBadHorizon) ||
		errors.Is(err, dynamo.ErrBadStep) ||
		errors.Is(err, dynamo.ErrDimensionMismatch) ||
		errors.Is(err, dynamo.ErrInvalidState) ||
		errors.Is(err, nlp.ErrNegativeLimit)
}

func (l *Loop) fallbackControl(policy mpc.Fallback, last dynamo.Control) dynamo.Control {
	if policy == mpc.FallbackZero {
		return make(dynamo.Control, l.plant.ControlDim())
	}
	if last != nil {
		return last.Clone()
	}
	// Holding with no history: hover is the only stationary input.
	if h, ok := l.plant.(interface{ HoverControl() dynamo.Control }); ok {
		return h.HoverControl()
	}
	return make(dynamo.Control, l.plant.ControlDim())
}
