package automation

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/quadmpc/internal/config"
	"github.com/san-kum/quadmpc/internal/dynamo"
	"github.com/san-kum/quadmpc/internal/experiment"
	"github.com/san-kum/quadmpc/internal/sim"
	"github.com/san-kum/quadmpc/internal/storage"
)

// Campaign is a scripted batch of closed-loop runs loaded from YAML.
// Each run starts from a preset (or the defaults) and layers its
// inline config section on top, the same way config.Load layers a
// file over DefaultConfig.
type Campaign struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Runs        []CampaignRun `yaml:"runs"`
}

// CampaignRun is a single named run in a campaign.
type CampaignRun struct {
	Name   string    `yaml:"name"`
	Preset string    `yaml:"preset"`
	Config yaml.Node `yaml:"config"`
	Save   bool      `yaml:"save"`
}

// CampaignResult pairs a finished run with the id it was stored under.
// RunID is empty when the run was not saved.
type CampaignResult struct {
	Name   string
	RunID  string
	Result *sim.Result
}

// LoadCampaign reads a campaign from a YAML file.
func LoadCampaign(path string) (*Campaign, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var c Campaign
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse campaign: %w", err)
	}
	if len(c.Runs) == 0 {
		return nil, fmt.Errorf("campaign %q has no runs", c.Name)
	}
	return &c, nil
}

func resolveConfig(run CampaignRun) (*config.Config, error) {
	var cfg *config.Config
	if run.Preset != "" {
		p := config.GetPreset(run.Preset)
		if p == nil {
			return nil, fmt.Errorf("unknown preset: %s", run.Preset)
		}
		c := *p
		cfg = &c
	} else {
		cfg = config.DefaultConfig()
	}

	if !run.Config.IsZero() {
		if err := run.Config.Decode(cfg); err != nil {
			return nil, fmt.Errorf("inline config: %w", err)
		}
	}
	return cfg, nil
}

// MetadataFor seeds run metadata from a config. Save fills in the
// result-derived fields.
func MetadataFor(cfg *config.Config) storage.RunMetadata {
	return storage.RunMetadata{
		Seed:       cfg.Seed,
		Dt:         cfg.Dt,
		Horizon:    cfg.Horizon,
		Periods:    cfg.Periods,
		Integrator: cfg.Integrator,
		Objective:  cfg.Objective,
		Fallback:   cfg.Loop.Fallback,
		WarmStart:  cfg.WarmStart,
	}
}

// RunCampaign executes every run in order. Runs marked save are
// written to the store; a nil store disables saving.
func RunCampaign(ctx context.Context, campaign *Campaign, store *storage.Store) ([]CampaignResult, error) {
	results := make([]CampaignResult, 0, len(campaign.Runs))

	for i, run := range campaign.Runs {
		name := run.Name
		if name == "" {
			name = fmt.Sprintf("run-%d", i+1)
		}
		fmt.Printf("Running %d/%d: %s\n", i+1, len(campaign.Runs), name)

		cfg, err := resolveConfig(run)
		if err != nil {
			return results, fmt.Errorf("run %s: %w", name, err)
		}

		exp := experiment.New(cfg)
		if err := exp.Setup(); err != nil {
			return results, fmt.Errorf("run %s setup: %w", name, err)
		}
		result, err := exp.Run(ctx)
		if err != nil {
			return results, fmt.Errorf("run %s: %w", name, err)
		}

		cr := CampaignResult{Name: name, Result: result}
		if run.Save && store != nil {
			id, err := store.Save(MetadataFor(cfg), result)
			if err != nil {
				return results, fmt.Errorf("run %s save: %w", name, err)
			}
			cr.RunID = id
		}
		results = append(results, cr)
	}

	return results, nil
}

// Sweep runs the same configuration across a range of one numeric
// parameter.
type Sweep struct {
	Param string  `yaml:"param"`
	Min   float64 `yaml:"min"`
	Max   float64 `yaml:"max"`
	Steps int     `yaml:"steps"`
}

// SweepResult holds the outcome at one parameter value.
type SweepResult struct {
	ParamValue float64
	FinalState dynamo.State
	Failures   int
	Metrics    map[string]float64
}

// ApplyParam sets one numeric configuration knob by name. Sweeps and
// grid searches share this mapping.
func ApplyParam(cfg *config.Config, name string, v float64) error {
	switch name {
	case "dt":
		cfg.Dt = v
	case "horizon":
		cfg.Horizon = int(math.Round(v))
	case "periods":
		cfg.Periods = int(math.Round(v))
	case "gravity":
		cfg.Gravity = v
	case "angle_max":
		cfg.Limits.AngleMax = v
	case "rate_max":
		cfg.Limits.RateMax = v
	case "vx_max":
		cfg.Limits.VxMax = v
	case "vz_max":
		cfg.Limits.VzMax = v
	case "accuracy":
		cfg.Solver.Accuracy = v
	case "max_iterations":
		cfg.Solver.MaxIterations = int(math.Round(v))
	case "solve_timeout_ms":
		cfg.Loop.SolveTimeoutMs = v
	default:
		return fmt.Errorf("unknown sweep parameter: %s", name)
	}
	return nil
}

// RunSweep executes base once per parameter value, evenly spaced over
// [Min, Max].
func RunSweep(ctx context.Context, sweep *Sweep, base *config.Config) ([]SweepResult, error) {
	if sweep.Steps < 2 {
		return nil, fmt.Errorf("sweep needs at least 2 steps, got %d", sweep.Steps)
	}
	if base == nil {
		base = config.DefaultConfig()
	}

	results := make([]SweepResult, 0, sweep.Steps)
	step := (sweep.Max - sweep.Min) / float64(sweep.Steps-1)

	for i := 0; i < sweep.Steps; i++ {
		val := sweep.Min + float64(i)*step
		cfg := *base
		if err := ApplyParam(&cfg, sweep.Param, val); err != nil {
			return nil, err
		}

		exp := experiment.New(&cfg)
		if err := exp.Setup(); err != nil {
			return results, fmt.Errorf("%s=%.4f: %w", sweep.Param, val, err)
		}
		result, err := exp.Run(ctx)
		if err != nil {
			return results, fmt.Errorf("%s=%.4f: %w", sweep.Param, val, err)
		}

		results = append(results, SweepResult{
			ParamValue: val,
			FinalState: result.Final(),
			Failures:   result.Failures,
			Metrics:    result.Metrics,
		})
		fmt.Printf("Sweep %d/%d: %s=%.4f\n", i+1, sweep.Steps, sweep.Param, val)
	}

	return results, nil
}

// MonteCarloConfig perturbs the initial state across trials to probe
// how robust a configuration is to where the vehicle starts.
type MonteCarloConfig struct {
	Trials       int
	Perturbation float64
	Seed         int64
}

// MonteCarloResult summarizes one trial.
type MonteCarloResult struct {
	Trial      int
	FinalState dynamo.State
	Distance   float64
	Stable     bool
	Failures   int
}

// RunMonteCarlo runs the trials as a parallel ensemble with perturbed
// initial states.
func RunMonteCarlo(ctx context.Context, mc *MonteCarloConfig, base *config.Config) ([]MonteCarloResult, error) {
	if mc.Trials < 1 {
		return nil, fmt.Errorf("monte carlo needs at least 1 trial, got %d", mc.Trials)
	}
	if base == nil {
		base = config.DefaultConfig()
	}

	seed := mc.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	exp := experiment.New(base)
	ens := sim.NewEnsemble(exp.NewLoop, mc.Trials, seed)
	ens.SetPerturbation(mc.Perturbation)

	simCfg, err := exp.SimConfig()
	if err != nil {
		return nil, err
	}

	target := base.Target.State()
	runs, err := ens.Run(ctx, base.Init.State(), target, simCfg)
	if err != nil {
		return nil, err
	}

	results := make([]MonteCarloResult, 0, len(runs))
	for i, r := range runs {
		final := r.Final()
		dist := math.NaN()
		if final != nil && len(final) == len(target) {
			dist = final.Sub(target).Norm()
		}
		results = append(results, MonteCarloResult{
			Trial:      i,
			FinalState: final,
			Distance:   dist,
			Stable:     bounded(final),
			Failures:   r.Failures,
		})
	}
	return results, nil
}

func bounded(x dynamo.State) bool {
	if x == nil || !x.IsValid() {
		return false
	}
	for _, v := range x {
		if math.Abs(v) > 1e6 {
			return false
		}
	}
	return true
}

// MonteCarloStats counts stable and unstable trials.
func MonteCarloStats(results []MonteCarloResult) (stable, unstable int) {
	for _, r := range results {
		if r.Stable {
			stable++
		} else {
			unstable++
		}
	}
	return
}
