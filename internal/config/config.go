package config

import (
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/quadmpc/internal/dynamo"
	"github.com/san-kum/quadmpc/internal/nlp"
)

const (
	DefaultDt       = 0.1
	DefaultHorizon  = 10
	DefaultPeriods  = 30
	DefaultGravity  = 9.81
	DefaultAngleMax = math.Pi / 4
	DefaultRateMax  = math.Pi / 3
	DefaultVxMax    = 2.0
	DefaultVzMax    = 1.0
)

type Config struct {
	Integrator string     `yaml:"integrator"`
	Objective  string     `yaml:"objective"`
	Dt         float64    `yaml:"dt"`
	Horizon    int        `yaml:"horizon"`
	Periods    int        `yaml:"periods"`
	Gravity    float64    `yaml:"gravity"`
	Seed       int64      `yaml:"seed"`
	WarmStart  bool       `yaml:"warm_start"`
	Limits     nlp.Limits `yaml:"limits"`
	Init       StateYAML  `yaml:"init"`
	Target     StateYAML  `yaml:"target"`
	Solver     SolverYAML `yaml:"solver"`
	Loop       LoopYAML   `yaml:"loop"`
}

type StateYAML struct {
	PX    float64 `yaml:"px"`
	PZ    float64 `yaml:"pz"`
	Theta float64 `yaml:"theta"`
	VX    float64 `yaml:"vx"`
	VZ    float64 `yaml:"vz"`
	Omega float64 `yaml:"omega"`
}

func (s StateYAML) State() dynamo.State {
	return dynamo.State{s.PX, s.PZ, s.Theta, s.VX, s.VZ, s.Omega}
}

type SolverYAML struct {
	Algorithm     string  `yaml:"algorithm"`
	MaxIterations int     `yaml:"max_iterations"`
	Accuracy      float64 `yaml:"accuracy"`
	Verbose       bool    `yaml:"verbose"`
}

type LoopYAML struct {
	Fallback               string  `yaml:"fallback"`
	SolveTimeoutMs         float64 `yaml:"solve_timeout_ms"`
	MaxConsecutiveFailures int     `yaml:"max_consecutive_failures"`
	ValidateState          bool    `yaml:"validate_state"`
}

func DefaultConfig() *Config {
	return &Config{
		Integrator: "euler",
		Objective:  "position-sum",
		Dt:         DefaultDt,
		Horizon:    DefaultHorizon,
		Periods:    DefaultPeriods,
		Gravity:    DefaultGravity,
		Limits: nlp.Limits{
			AngleMax: DefaultAngleMax,
			RateMax:  DefaultRateMax,
			VxMax:    DefaultVxMax,
			VzMax:    DefaultVzMax,
		},
		Init: StateYAML{PX: 1, PZ: 1},
		Loop: LoopYAML{
			Fallback:               "hold",
			MaxConsecutiveFailures: 3,
			ValidateState:          true,
		},
	}
}

// Load reads a YAML config, layered over the defaults: keys absent
// from the file keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
