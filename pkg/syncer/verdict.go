package syncer

import (
	"math"
)

// Verdict decides whether a candidate lag is trustworthy.
type Verdict struct {
	// Threshold is the minimal Pearson coefficient (exclusive).
	Threshold float64

	// MinOverlap is the minimal share of the window (0..1) that has
	// to overlap at the candidate lag.
	MinOverlap float64
}

func DefaultVerdict() Verdict {
	return Verdict{
		Threshold:  DefaultThreshold,
		MinOverlap: DefaultMinOverlap,
	}
}

// Judge validates the candidate lag against the windows. Negative lags
// are measured but never successful: the capture cannot be ahead of the
// moment the reference started.
func (v Verdict) Judge(
	capture []float64,
	reference []float64,
	lag int,
) ShiftResult {
	n := len(capture)
	confidence, overlap := Pearson(capture, reference, lag)
	result := ShiftResult{
		Lag:        lag,
		Confidence: confidence,
		Overlap:    overlap,
	}
	result.Success = confidence > v.Threshold &&
		lag >= 0 && lag < n &&
		float64(overlap) >= v.MinOverlap*float64(n)
	return result
}

// Pearson returns the Pearson correlation coefficient between
// capture[i] and reference[i+lag] over the indexes where both exist,
// and the amount of such indexes. A zero-variance side (e.g. silence)
// yields a zero coefficient.
func Pearson(
	capture []float64,
	reference []float64,
	lag int,
) (float64, int) {
	n := min(len(capture), len(reference))
	if lag >= n || -lag >= n {
		return 0, 0
	}

	var x, y []float64
	if lag >= 0 {
		x = capture[:n-lag]
		y = reference[lag:n]
	} else {
		x = capture[-lag:n]
		y = reference[:n+lag]
	}
	overlap := len(x)

	var sumX, sumY float64
	for i := range x {
		sumX += x[i]
		sumY += y[i]
	}
	meanX := sumX / float64(overlap)
	meanY := sumY / float64(overlap)

	var cov, varX, varY float64
	for i := range x {
		dx := x[i] - meanX
		dy := y[i] - meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}

	denom := math.Sqrt(varX * varY)
	if denom < 1e-12 || math.IsNaN(denom) {
		return 0, overlap
	}
	r := cov / denom
	switch {
	case r > 1:
		r = 1
	case r < -1:
		r = -1
	}
	return r, overlap
}
