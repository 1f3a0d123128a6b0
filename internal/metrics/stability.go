package metrics

import (
	"math"

	"github.com/san-kum/quadmpc/internal/dynamo"
)

// Stability reports the fraction of periods the state stayed inside a
// magnitude envelope. Value is 1.0 for a run that never left it.
type Stability struct {
	name       string
	threshold  float64
	violations int
	samples    int
	worst      float64
}

func NewStability(threshold float64) *Stability {
	return &Stability{
		name:      "stability",
		threshold: threshold,
	}
}

func (s *Stability) Name() string {
	return s.name
}

func (s *Stability) Observe(x dynamo.State, u dynamo.Control, t float64) {
	s.samples++
	for _, val := range x {
		if math.Abs(val) > s.worst {
			s.worst = math.Abs(val)
		}
	}
	for _, val := range x {
		if math.Abs(val) > s.threshold {
			s.violations++
			break
		}
	}
}

func (s *Stability) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

// Worst is the largest state component magnitude seen so far.
func (s *Stability) Worst() float64 {
	return s.worst
}

func (s *Stability) Reset() {
	s.violations = 0
	s.samples = 0
	s.worst = 0
}
