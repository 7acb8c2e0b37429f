// Package gccphat finds the lag between two windows using the
// Generalized Cross-Correlation with Phase Transform (GCC-PHAT).
//
// Normalizing the magnitude of the cross-spectrum (the Phase
// Transform) makes the peak sharp and insensitive to the spectral
// coloring of the playback chain, which is useful when the captured
// audio went through equalizers or cheap speakers. The picked lag is
// validated the same way as by any other syncer.Syncer.
package gccphat

import (
	"context"
	"fmt"
	"math"

	"github.com/mjibson/go-dsp/fft"
	"github.com/xaionaro-go/audiosync/pkg/syncer"
)

const (
	DefaultMinFreq = 100
	DefaultMaxFreq = 12000
)

type Syncer struct {
	SampleRate float64
	MinFreq    float64
	MaxFreq    float64
	Verdict    syncer.Verdict
}

var _ syncer.Syncer = (*Syncer)(nil)

func NewSyncer(
	sampleRate float64,
	verdict syncer.Verdict,
) (*Syncer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive: got %v", sampleRate)
	}

	return &Syncer{
		SampleRate: sampleRate,
		MinFreq:    DefaultMinFreq,
		MaxFreq:    DefaultMaxFreq,
		Verdict:    verdict,
	}, nil
}

func (s *Syncer) CalculateShift(
	ctx context.Context,
	capture []float64,
	reference []float64,
) (syncer.ShiftResult, error) {
	if err := syncer.CheckWindows(capture, reference); err != nil {
		return syncer.ShiftResult{}, err
	}

	// the next power of two of (n1 + n2 - 1) avoids circular convolution artifacts
	n := syncer.NextPowerOfTwo(len(reference) + len(capture) - 1)

	fref := make([]complex128, n)
	fcomp := make([]complex128, n)
	for j, v := range reference {
		fref[j] = complex(v, 0)
	}
	for j, v := range capture {
		fcomp[j] = complex(v, 0)
	}

	ffref := fft.FFT(fref)
	if err := ctx.Err(); err != nil {
		return syncer.ShiftResult{}, err
	}
	ffcomp := fft.FFT(fcomp)
	if err := ctx.Err(); err != nil {
		return syncer.ShiftResult{}, err
	}

	shift, score, err := CrossCorrelate(ffref, ffcomp, s.SampleRate, s.MinFreq, s.MaxFreq)
	if err != nil {
		return syncer.ShiftResult{}, fmt.Errorf("failed to cross-correlate: %w", err)
	}

	result := s.Verdict.Judge(capture, reference, int(math.Round(shift)))
	result.PeakScore = score
	return result, nil
}
