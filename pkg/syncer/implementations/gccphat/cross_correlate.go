package gccphat

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// CrossCorrelate calculates the sample shift of 'fcomp' relative to 'fref' using GCC-PHAT.
// The fref and fcomp slices are expected to be the FFTs of the reference and comparison snippets.
// Both must have the same length N.
//
// Arguments:
// - sampleRate: Used to calculate frequency bin indices for band limiting.
// - minFreq: Minimum frequency to consider (Hz). Use 0 for no limit.
// - maxFreq: Maximum frequency to consider (Hz). Use 0 or >sampleRate/2 for no limit.
//
// Returns (shift, peak score, error). A positive shift means 'comp' leads 'ref',
// i.e. comp[i] corresponds to ref[i+shift].
func CrossCorrelate(fref, fcomp []complex128, sampleRate float64, minFreq, maxFreq float64) (float64, float64, error) {
	if sampleRate <= 0 {
		return 0, 0, fmt.Errorf("sampleRate must be positive: got %v", sampleRate)
	}
	if len(fref) != len(fcomp) {
		return 0, 0, fmt.Errorf("fref and fcomp must have same length: %d != %d", len(fref), len(fcomp))
	}
	n := len(fref)

	// Frequency range to bin conversion
	binMin := 0
	binMax := n / 2
	if minFreq > 0 {
		binMin = int(minFreq * float64(n) / sampleRate)
	}
	if maxFreq > 0 && maxFreq < sampleRate/2 {
		binMax = int(maxFreq * float64(n) / sampleRate)
	}

	// Compute the cross-power spectrum with Phase Transform (PHAT).
	res := make([]complex128, n)

	// To make PHAT more robust, we only whiten bins that have energy
	// above a certain threshold relative to the maximum energy.
	maxMag := 0.0
	for i := 0; i < n; i++ {
		mag := cmplx.Abs(fcomp[i] * cmplx.Conj(fref[i]))
		if mag > maxMag {
			maxMag = mag
		}
	}
	threshold := maxMag * 0.001 // 60dB down

	activeBins := 0
	for i := 0; i < n; i++ {
		idx := i
		if i > n/2 {
			idx = n - i
		}

		if idx < binMin || idx > binMax {
			res[i] = 0
			continue
		}

		prod := fcomp[i] * cmplx.Conj(fref[i])
		mag := cmplx.Abs(prod)
		if mag > threshold && mag > 1e-12 {
			res[i] = prod / complex(mag, 0)
			activeBins++
		} else {
			res[i] = 0
		}
	}

	if activeBins == 0 {
		return 0, 0, nil
	}

	// Transform back to the time domain (Inverse FFT).
	timeDomain := fft.IFFT(res)

	// Find the peak in the cross-correlation result.
	maxVal := -1.0
	maxIdx := 0
	for i := range n {
		// The result of GCC-PHAT should be real-ish, but anyway we take Abs.
		val := cmplx.Abs(timeDomain[i])
		if val > maxVal {
			maxVal = val
			maxIdx = i
		}
	}

	// peak shift where comp(t) = ref(t-shift).
	shift := float64(maxIdx)
	if shift > float64(n/2) {
		shift -= float64(n)
	}

	// Sub-sample interpolation (Parabolic)
	if maxIdx > 0 && maxIdx < n-1 {
		y1 := cmplx.Abs(timeDomain[maxIdx-1])
		y2 := maxVal
		y3 := cmplx.Abs(timeDomain[maxIdx+1])

		denom := (y1 - 2*y2 + y3)
		if math.Abs(denom) > 1e-12 {
			delta := (y1 - y3) / (2 * denom)
			shift += delta
		}
	}

	// A perfect match concentrates all activeBins unit magnitudes
	// into one peak of height activeBins/n.
	score := min(maxVal*float64(n)/float64(activeBins), 1.0)

	return -shift, score, nil
}
