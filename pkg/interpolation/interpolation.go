// Package interpolation conceals gaps in a stream of samples.
package interpolation

// Interpolator synthesizes gapLen samples connecting the end of before
// with the beginning of after.
type Interpolator interface {
	Interpolate(before, after []float64, gapLen int) []float64
}

// Linear cross-fades from the last sample before the gap to the first
// sample after it.
type Linear struct{}

var _ Interpolator = Linear{}

func (Linear) Interpolate(before, after []float64, gapLen int) []float64 {
	result := make([]float64, gapLen)
	var v0, v1 float64
	if len(before) > 0 {
		v0 = before[len(before)-1]
	}
	if len(after) > 0 {
		v1 = after[0]
	}
	for i := range result {
		t := float64(i+1) / float64(gapLen+1)
		result[i] = (1-t)*v0 + t*v1
	}
	return result
}
