package xcorr

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/audiosync/pkg/syncer"
)

func noise(rng *rand.Rand, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.Float64()*2 - 1
	}
	return out
}

// music is low-pass filtered noise: it is not white, but its
// autocorrelation still decays fast enough to have one clear peak.
func music(rng *rand.Rand, n int) []float64 {
	out := noise(rng, n)
	for i := 1; i < n; i++ {
		out[i] = 0.7*out[i-1] + 0.3*out[i]
	}
	return out
}

func TestSyncer_CalculateShift(t *testing.T) {
	ctx := context.Background()
	s := NewSyncer(syncer.DefaultVerdict())

	t.Run("identical", func(t *testing.T) {
		rng := rand.New(rand.NewSource(1))
		ref := music(rng, 4000)
		result, err := s.CalculateShift(ctx, ref, ref)
		require.NoError(t, err)
		assert.Equal(t, 0, result.Lag)
		assert.InDelta(t, 1.0, result.Confidence, 1e-9)
		assert.True(t, result.Success, spew.Sdump(result))
	})

	for _, k := range []int{1, 17, 500, 1999} {
		t.Run(fmt.Sprintf("shifted_by_%d", k), func(t *testing.T) {
			rng := rand.New(rand.NewSource(int64(k)))
			ref := music(rng, 4000)
			capture := make([]float64, len(ref))
			copy(capture, ref[k:])
			result, err := s.CalculateShift(ctx, capture, ref)
			require.NoError(t, err)
			assert.Equal(t, k, result.Lag)
			assert.Greater(t, result.Confidence, 0.99)
			assert.True(t, result.Success, spew.Sdump(result))
		})
	}

	t.Run("negative_lag_is_not_a_success", func(t *testing.T) {
		rng := rand.New(rand.NewSource(2))
		ref := music(rng, 4000)
		capture := make([]float64, len(ref))
		copy(capture[300:], ref)
		result, err := s.CalculateShift(ctx, capture, ref)
		require.NoError(t, err)
		assert.Equal(t, -300, result.Lag)
		assert.False(t, result.Success)
	})

	t.Run("noise_lowers_confidence", func(t *testing.T) {
		rng := rand.New(rand.NewSource(3))
		ref := music(rng, 8000)
		disturbance := noise(rng, len(ref))
		prevConfidence := 2.0
		for _, amount := range []float64{0, 0.25, 0.5, 1, 2} {
			capture := make([]float64, len(ref))
			for i := range capture {
				capture[i] = ref[i] + amount*disturbance[i]
			}
			result, err := s.CalculateShift(ctx, capture, ref)
			require.NoError(t, err)
			assert.Less(t, result.Confidence, prevConfidence, "amount: %v", amount)
			prevConfidence = result.Confidence
		}
	})

	t.Run("uncorrelated", func(t *testing.T) {
		rng := rand.New(rand.NewSource(4))
		result, err := s.CalculateShift(ctx, noise(rng, 4000), noise(rng, 4000))
		require.NoError(t, err)
		assert.Less(t, result.Confidence, 0.3)
		assert.False(t, result.Success)
	})

	t.Run("silence", func(t *testing.T) {
		rng := rand.New(rand.NewSource(5))
		result, err := s.CalculateShift(ctx, make([]float64, 4000), music(rng, 4000))
		require.NoError(t, err)
		assert.Zero(t, result.Confidence)
		assert.False(t, result.Success)

		result, err = s.CalculateShift(ctx, make([]float64, 4000), make([]float64, 4000))
		require.NoError(t, err)
		assert.False(t, result.Success)
	})

	t.Run("clipped", func(t *testing.T) {
		rng := rand.New(rand.NewSource(6))
		ref := music(rng, 4000)
		capture := make([]float64, len(ref))
		for i := range capture {
			v := ref[(i+250)%len(ref)] * 3
			capture[i] = math.Max(-1, math.Min(1, v))
		}
		for i := len(ref) - 250; i < len(ref); i++ {
			capture[i] = 0
		}
		result, err := s.CalculateShift(ctx, capture, ref)
		require.NoError(t, err)
		assert.Equal(t, 250, result.Lag)
		assert.True(t, result.Success, spew.Sdump(result))
	})

	t.Run("scaled", func(t *testing.T) {
		rng := rand.New(rand.NewSource(7))
		ref := music(rng, 4000)
		capture := make([]float64, len(ref))
		for i := range capture[:len(ref)-40] {
			capture[i] = 0.1 * ref[i+40]
		}
		result, err := s.CalculateShift(ctx, capture, ref)
		require.NoError(t, err)
		assert.Equal(t, 40, result.Lag)
		assert.True(t, result.Success)
	})

	t.Run("delayed_capture_at_4000Hz", func(t *testing.T) {
		// the capture started 3.5s after the reference; the windows are 6s long
		const sampleRate = 4000
		rng := rand.New(rand.NewSource(8))
		track := music(rng, 10*sampleRate)
		n := 6 * sampleRate
		lag := 3500 * sampleRate / 1000
		ref := track[:n]
		capture := make([]float64, n)
		copy(capture, track[lag:lag+n])
		for i := range capture {
			capture[i] += 0.2 * (rng.Float64()*2 - 1)
		}
		result, err := s.CalculateShift(ctx, capture, ref)
		require.NoError(t, err)
		assert.Equal(t, lag, result.Lag)
		assert.True(t, result.Success, spew.Sdump(result))
	})

	t.Run("invalid_windows", func(t *testing.T) {
		_, err := s.CalculateShift(ctx, nil, nil)
		assert.Error(t, err)
		_, err = s.CalculateShift(ctx, make([]float64, 10), make([]float64, 11))
		assert.Error(t, err)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(ctx)
		cancel()
		ref := make([]float64, 100)
		_, err := s.CalculateShift(ctx, ref, ref)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func BenchmarkSyncer_CalculateShift(b *testing.B) {
	ctx := context.Background()
	s := NewSyncer(syncer.DefaultVerdict())
	for _, n := range []int{1000, 48000 * 3, 48000 * 15} {
		b.Run(fmt.Sprintf("size-%d", n), func(b *testing.B) {
			rng := rand.New(rand.NewSource(int64(n)))
			ref := music(rng, n)
			capture := make([]float64, n)
			copy(capture, ref[n/10:])

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := s.CalculateShift(ctx, capture, ref); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
