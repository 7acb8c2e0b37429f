// Package syncer defines how two equally long windows of mono samples
// are compared to find the lag between them.
package syncer

import (
	"context"
	"fmt"
)

const (
	DefaultThreshold  = 0.6
	DefaultMinOverlap = 0.1
)

type ShiftResult struct {
	// Lag is the amount of samples the capture window is behind the
	// reference window: capture[i] corresponds to reference[i+Lag].
	Lag int

	// Confidence is the Pearson correlation coefficient of the
	// overlapping parts of the windows aligned by Lag (-1..1).
	Confidence float64

	// Overlap is the amount of samples the aligned windows share.
	Overlap int

	// PeakScore is the algorithm-specific sharpness of the correlation
	// peak. It is informational only.
	PeakScore float64

	Success bool
}

type Syncer interface {
	// CalculateShift compares the capture window against the reference
	// window. Both windows must have the same non-zero length.
	CalculateShift(
		ctx context.Context,
		capture []float64,
		reference []float64,
	) (ShiftResult, error)
}

func CheckWindows(capture, reference []float64) error {
	if len(capture) == 0 {
		return fmt.Errorf("the windows are empty")
	}
	if len(capture) != len(reference) {
		return fmt.Errorf("the windows have different lengths: %d != %d", len(capture), len(reference))
	}
	return nil
}

// NextPowerOfTwo returns the smallest power of two that is not less than n.
func NextPowerOfTwo(n int) int {
	result := 1
	for result < n {
		result <<= 1
	}
	return result
}
