package metrics

import (
	"math"

	"github.com/san-kum/quadmpc/internal/dynamo"
)

// ControlEffort averages the per-period deviation of the applied
// control from a baseline. With the hover control as baseline it
// measures actuation beyond what holding altitude already costs; a nil
// baseline measures raw control magnitude.
type ControlEffort struct {
	name     string
	baseline dynamo.Control
	sum      float64
	samples  int
}

func NewControlEffort(baseline dynamo.Control) *ControlEffort {
	return &ControlEffort{
		name:     "control_effort",
		baseline: baseline,
	}
}

func (c *ControlEffort) Name() string {
	return c.name
}

func (c *ControlEffort) Observe(x dynamo.State, u dynamo.Control, t float64) {
	for i, val := range u {
		if c.baseline != nil && i < len(c.baseline) {
			val -= c.baseline[i]
		}
		c.sum += math.Abs(val)
	}
	c.samples++
}

func (c *ControlEffort) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *ControlEffort) Reset() {
	c.sum = 0
	c.samples = 0
}
