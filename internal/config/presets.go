package config

import (
	"math"
	"sort"

	"github.com/san-kum/quadmpc/internal/nlp"
)

// Presets are complete, self-contained run configurations. Each one
// spells out its limits rather than inheriting defaults, so reading a
// preset tells you everything the run will do.
var Presets = map[string]*Config{
	"hover": {
		Integrator: "euler", Objective: "tracking",
		Dt: 0.1, Horizon: 10, Periods: 50, Gravity: DefaultGravity,
		Limits: nlp.Limits{AngleMax: math.Pi / 4, RateMax: math.Pi / 3, VxMax: 2, VzMax: 1},
		Init:   StateYAML{PX: 0.3, PZ: -0.2},
		Loop:   LoopYAML{Fallback: "hold", MaxConsecutiveFailures: 3, ValidateState: true},
	},
	"descent": {
		Integrator: "euler", Objective: "tracking",
		Dt: 0.1, Horizon: 12, Periods: 80, Gravity: DefaultGravity,
		Limits: nlp.Limits{AngleMax: math.Pi / 4, RateMax: math.Pi / 3, VxMax: 2, VzMax: 0.8},
		Init:   StateYAML{PZ: 5},
		Loop:   LoopYAML{Fallback: "hold", MaxConsecutiveFailures: 3, ValidateState: true},
	},
	"tight": {
		Integrator: "euler", Objective: "tracking",
		Dt: 0.05, Horizon: 15, Periods: 120, Gravity: DefaultGravity,
		Limits: nlp.Limits{AngleMax: math.Pi / 6, RateMax: math.Pi / 4, VxMax: 1, VzMax: 0.5},
		Init:   StateYAML{PX: 1, PZ: 1},
		Loop:   LoopYAML{Fallback: "hold", MaxConsecutiveFailures: 3, ValidateState: true},
	},
	"realtime": {
		Integrator: "euler", Objective: "tracking",
		Dt: 0.1, Horizon: 8, Periods: 60, Gravity: DefaultGravity,
		WarmStart: true,
		Limits:    nlp.Limits{AngleMax: math.Pi / 4, RateMax: math.Pi / 3, VxMax: 2, VzMax: 1},
		Init:      StateYAML{PX: 1, PZ: 1},
		Solver:    SolverYAML{MaxIterations: 1500},
		Loop: LoopYAML{
			Fallback: "hold", SolveTimeoutMs: 100,
			MaxConsecutiveFailures: 3, ValidateState: true,
		},
	},
	// drift keeps the position-sum objective: the controller sinks both
	// position components instead of steering to the target, which is
	// the historical default behavior.
	"drift": {
		Integrator: "euler", Objective: "position-sum",
		Dt: 0.1, Horizon: 10, Periods: 30, Gravity: DefaultGravity,
		Limits: nlp.Limits{AngleMax: math.Pi / 4, RateMax: math.Pi / 3, VxMax: 2, VzMax: 1},
		Init:   StateYAML{PX: 1, PZ: 1},
		Loop:   LoopYAML{Fallback: "hold", MaxConsecutiveFailures: 3, ValidateState: true},
	},
}

func GetPreset(name string) *Config {
	return Presets[name]
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
