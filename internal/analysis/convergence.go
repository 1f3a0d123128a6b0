package analysis

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// ConvergenceRate fits an exponential rate to the distance between a
// recorded trajectory and its target: the slope of log-distance against
// time. Negative means converging; the magnitude is the decay rate in
// 1/s. Returns ok=false when fewer than two finite log-distances exist.
func ConvergenceRate(states [][]float64, target []float64, dt float64) (rate float64, ok bool) {
	if dt <= 0 {
		return 0, false
	}

	times := make([]float64, 0, len(states))
	logDist := make([]float64, 0, len(states))

	for k, row := range states {
		if len(row) < len(target) {
			continue
		}
		d := 0.0
		for i := range target {
			diff := row[i] - target[i]
			d += diff * diff
		}
		d = math.Sqrt(d)
		if d <= 1e-12 {
			continue
		}
		times = append(times, float64(k)*dt)
		logDist = append(logDist, math.Log(d))
	}

	if len(times) < 2 {
		return 0, false
	}

	_, beta := stat.LinearRegression(times, logDist, nil, false)
	if math.IsNaN(beta) || math.IsInf(beta, 0) {
		return 0, false
	}

	return beta, true
}

// HalfLife converts a converging rate into the time for the distance to
// halve. Non-converging rates report +Inf.
func HalfLife(rate float64) float64 {
	if rate >= 0 {
		return math.Inf(1)
	}
	return math.Ln2 / -rate
}
