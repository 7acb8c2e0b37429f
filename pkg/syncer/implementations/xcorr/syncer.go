// Package xcorr finds the lag between two windows by plain
// cross-correlation computed through the FFT.
package xcorr

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"

	"github.com/brettbuddin/fourier"
	"github.com/xaionaro-go/audiosync/pkg/syncer"
)

type Syncer struct {
	Verdict syncer.Verdict
}

var _ syncer.Syncer = (*Syncer)(nil)

func NewSyncer(verdict syncer.Verdict) *Syncer {
	return &Syncer{
		Verdict: verdict,
	}
}

func (s *Syncer) CalculateShift(
	ctx context.Context,
	capture []float64,
	reference []float64,
) (syncer.ShiftResult, error) {
	if err := syncer.CheckWindows(capture, reference); err != nil {
		return syncer.ShiftResult{}, err
	}

	lag, peak, err := CrossCorrelate(ctx, capture, reference)
	if err != nil {
		return syncer.ShiftResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return syncer.ShiftResult{}, err
	}

	result := s.Verdict.Judge(capture, reference, lag)
	result.PeakScore = peak
	return result, nil
}

// CrossCorrelate returns the lag maximizing the absolute value of
// sum(reference[i+lag] * capture[i]), and the normalized height of that
// peak. Both inputs are zero-padded to a power of two at least twice
// as long, so the result has no circular wrap-around.
func CrossCorrelate(
	ctx context.Context,
	capture []float64,
	reference []float64,
) (int, float64, error) {
	n := max(len(capture), len(reference))
	m := syncer.NextPowerOfTwo(2 * n)

	fcapture := toComplex(capture, m)
	freference := toComplex(reference, m)

	if err := fourier.Forward(fcapture); err != nil {
		return 0, 0, fmt.Errorf("unable to transform the capture window: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	if err := fourier.Forward(freference); err != nil {
		return 0, 0, fmt.Errorf("unable to transform the reference window: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	for i := range freference {
		freference[i] *= cmplx.Conj(fcapture[i])
	}
	if err := fourier.Inverse(freference); err != nil {
		return 0, 0, fmt.Errorf("unable to transform the cross-spectrum back: %w", err)
	}

	peakIdx := 0
	peakVal := -1.0
	var sum float64
	for i, v := range freference {
		abs := math.Abs(real(v))
		sum += abs
		if abs > peakVal {
			peakVal = abs
			peakIdx = i
		}
	}

	lag := peakIdx
	if peakIdx >= m/2 {
		lag = peakIdx - m
	}

	score := 0.0
	if sum > 0 {
		score = peakVal * float64(m) / sum
	}
	return lag, score, nil
}

func toComplex(samples []float64, size int) []complex128 {
	out := make([]complex128, size)
	for i, v := range samples {
		out[i] = complex(v, 0)
	}
	return out
}
