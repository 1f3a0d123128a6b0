package nlp

import (
	"errors"
	"fmt"
	"math"
)

// Unbounded marks a limit with no box constraint attached.
var Unbounded = math.Inf(1)

// ErrNegativeLimit indicates a box limit below zero.
var ErrNegativeLimit = errors.New("nlp: limits must be non-negative")

// Limits are symmetric state box constraints. A value of [Unbounded]
// skips the corresponding constraint entirely; zero pins the component
// to exactly zero.
type Limits struct {
	AngleMax float64 `yaml:"angle_max"`
	RateMax  float64 `yaml:"rate_max"`
	VxMax    float64 `yaml:"vx_max"`
	VzMax    float64 `yaml:"vz_max"`
}

// NoLimits leaves every state component unconstrained.
func NoLimits() Limits {
	return Limits{
		AngleMax: Unbounded,
		RateMax:  Unbounded,
		VxMax:    Unbounded,
		VzMax:    Unbounded,
	}
}

func (l Limits) Validate() error {
	for _, v := range []struct {
		name string
		val  float64
	}{
		{"angle_max", l.AngleMax},
		{"rate_max", l.RateMax},
		{"vx_max", l.VxMax},
		{"vz_max", l.VzMax},
	} {
		if math.IsNaN(v.val) || v.val < 0 {
			return fmt.Errorf("%s = %v: %w", v.name, v.val, ErrNegativeLimit)
		}
	}
	return nil
}

// Contains reports whether a 6-component state satisfies the limits.
// Positions are never limited.
func (l Limits) Contains(x []float64) bool {
	if len(x) < 6 {
		return false
	}
	return math.Abs(x[2]) <= l.AngleMax &&
		math.Abs(x[5]) <= l.RateMax &&
		math.Abs(x[3]) <= l.VxMax &&
		math.Abs(x[4]) <= l.VzMax
}
