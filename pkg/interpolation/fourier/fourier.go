// Package fourier conceals gaps by extending the tonal components of
// the surrounding audio into them.
package fourier

import (
	"fmt"
	"math"

	"github.com/brettbuddin/fourier"
	"github.com/xaionaro-go/audiosync/pkg/interpolation"
)

const (
	// DefaultWindowSize is the maximal amount of samples analyzed on
	// each side of a gap.
	DefaultWindowSize = 1024

	// DefaultSensitivity is how many times a spectral peak must exceed
	// the mean magnitude to be extended into the gap.
	DefaultSensitivity = 2.5

	// MinWindowSize is the minimal amount of samples on each side of a
	// gap required for the spectral analysis.
	MinWindowSize = 4
)

// Interpolator fills a gap with two spectral projections, one from
// the audio before it and one from the audio after it, blended with a
// smoothstep cross-fade and shifted to meet the boundary samples.
//
// Gaps longer than MaxGap (if set) and too short contexts are filled
// by Fallback instead, since the projected phases drift apart.
type Interpolator struct {
	WindowSize  int
	Sensitivity float64
	MaxGap      int
	Fallback    interpolation.Interpolator
}

var _ interpolation.Interpolator = (*Interpolator)(nil)

func New() *Interpolator {
	return &Interpolator{
		WindowSize:  DefaultWindowSize,
		Sensitivity: DefaultSensitivity,
		Fallback:    interpolation.Linear{},
	}
}

func (i *Interpolator) Interpolate(before, after []float64, gapLen int) []float64 {
	if gapLen <= 0 {
		return nil
	}
	if len(before) < MinWindowSize || len(after) < MinWindowSize || (i.MaxGap > 0 && gapLen > i.MaxGap) {
		return i.Fallback.Interpolate(before, after, gapLen)
	}

	n := floorPowerOfTwo(min(len(before), len(after), i.WindowSize))
	windowBefore := before[len(before)-n:]
	windowAfter := after[:n]

	// both projections also cover the known boundary sample next to
	// the gap: forward starts at the last sample of windowBefore and
	// backward ends at the first sample of windowAfter
	forward, err := i.project(windowBefore, n-1, gapLen+1)
	if err != nil {
		return i.Fallback.Interpolate(before, after, gapLen)
	}
	backward, err := i.project(windowAfter, -gapLen, gapLen+1)
	if err != nil {
		return i.Fallback.Interpolate(before, after, gapLen)
	}

	startOffset := forward[0] - windowBefore[n-1]
	endOffset := backward[gapLen] - windowAfter[0]

	result := make([]float64, gapLen)
	for idx := range result {
		t := float64(idx+1) / float64(gapLen+1)
		w := t * t * (3 - 2*t)
		result[idx] = (1-w)*(forward[idx+1]-startOffset) + w*(backward[idx]-endOffset)
	}
	return result
}

type partial struct {
	bin       int
	amplitude float64
	phase     float64
}

// project synthesizes count samples from the significant partials of
// window, starting at position "from" in the window's time axis.
func (i *Interpolator) project(window []float64, from int, count int) ([]float64, error) {
	n := len(window)
	coeffs := make([]complex128, n)
	for idx, v := range window {
		coeffs[idx] = complex(v, 0)
	}
	if err := fourier.Forward(coeffs); err != nil {
		return nil, fmt.Errorf("unable to transform the window: %w", err)
	}

	magnitudes := make([]float64, n)
	var mean float64
	for idx, c := range coeffs {
		magnitudes[idx] = math.Hypot(real(c), imag(c))
		mean += magnitudes[idx]
	}
	threshold := mean / float64(n) * i.Sensitivity

	invN := 1 / float64(n)
	var partials []partial
	for bin := 1; bin < n/2; bin++ {
		m := magnitudes[bin]
		if m <= threshold || m <= magnitudes[bin-1] || m <= magnitudes[bin+1] {
			continue
		}
		partials = append(partials, partial{
			bin: bin,
			// a real signal splits its energy between the positive
			// and the negative frequency
			amplitude: 2 * m * invN,
			phase:     math.Atan2(imag(coeffs[bin]), real(coeffs[bin])),
		})
	}

	dc := real(coeffs[0]) * invN
	result := make([]float64, count)
	for idx := range result {
		t := float64(from + idx)
		sum := dc
		for _, p := range partials {
			sum += p.amplitude * math.Cos(2*math.Pi*float64(p.bin)*t*invN+p.phase)
		}
		result[idx] = sum
	}
	return result, nil
}

func floorPowerOfTwo(n int) int {
	p := 1
	for p*2 <= n {
		p *= 2
	}
	return p
}
