package analysis

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/stat"
)

// PowerSpectrum returns the single-sided magnitude spectrum of a
// uniformly sampled signal together with each bin's frequency. A Hann
// window tames the leakage of the short, non-periodic series a run
// produces.
func PowerSpectrum(data []float64, dt float64) (freqs, power []float64) {
	n := len(data)
	if n < 2 || dt <= 0 {
		return nil, nil
	}

	windowed := make([]float64, n)
	for i, v := range data {
		w := 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
		windowed[i] = v * w
	}

	spectrum := fft.FFTReal(windowed)

	half := n / 2
	freqs = make([]float64, half)
	power = make([]float64, half)
	for i := 0; i < half; i++ {
		freqs[i] = float64(i) / (float64(n) * dt)
		power[i] = cmplx.Abs(spectrum[i])
	}

	return freqs, power
}

// DominantFrequency picks the strongest non-DC bin. Signals too short
// or too flat to carry one report zeros. The mean is removed before
// the spectrum: a constant offset otherwise leaks through the window
// into the low bins and reads as a slow oscillation.
func DominantFrequency(data []float64, dt float64) (freq, magnitude float64) {
	centered := make([]float64, len(data))
	if len(data) > 0 {
		mean := stat.Mean(data, nil)
		for i, v := range data {
			centered[i] = v - mean
		}
	}

	freqs, power := PowerSpectrum(centered, dt)
	if len(power) < 2 {
		return 0, 0
	}

	best := 1
	for i := 2; i < len(power); i++ {
		if power[i] > power[best] {
			best = i
		}
	}
	if power[best] < 1e-12 {
		return 0, 0
	}

	return freqs[best], power[best]
}
