package resampler

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/audiosync/pkg/audio/types"
)

func s16le(values ...int16) []byte {
	out := make([]byte, len(values)*2)
	for i, v := range values {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

func TestConverter(t *testing.T) {
	t.Run("Identity_S16LE_Mono", func(t *testing.T) {
		c, err := NewConverter(Format{
			Channels:   1,
			SampleRate: 44100,
			PCMFormat:  types.PCMFormatS16LE,
		}, 44100)
		require.NoError(t, err)

		out, err := c.Convert(nil, s16le(0, 16384, -16384, -32768))
		require.NoError(t, err)
		require.Len(t, out, 4)
		assert.InDelta(t, 0.0, out[0], 1e-9)
		assert.InDelta(t, 0.5, out[1], 1e-9)
		assert.InDelta(t, -0.5, out[2], 1e-9)
		assert.InDelta(t, -1.0, out[3], 1e-9)
	})

	t.Run("U8", func(t *testing.T) {
		c, err := NewConverter(Format{
			Channels:   1,
			SampleRate: 8000,
			PCMFormat:  types.PCMFormatU8,
		}, 8000)
		require.NoError(t, err)

		out, err := c.Convert(nil, []byte{0, 128, 255})
		require.NoError(t, err)
		require.Len(t, out, 3)
		assert.InDelta(t, -1.0, out[0], 0.01)
		assert.InDelta(t, 0.0, out[1], 0.01)
		assert.InDelta(t, 1.0, out[2], 0.01)
	})

	t.Run("Stereo_to_Mono", func(t *testing.T) {
		c, err := NewConverter(Format{
			Channels:   2,
			SampleRate: 48000,
			PCMFormat:  types.PCMFormatS16LE,
		}, 48000)
		require.NoError(t, err)

		out, err := c.Convert(nil, s16le(16384, 0, -16384, -16384))
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.InDelta(t, 0.25, out[0], 1e-9)
		assert.InDelta(t, -0.5, out[1], 1e-9)
	})

	t.Run("PartialFrames", func(t *testing.T) {
		c, err := NewConverter(Format{
			Channels:   2,
			SampleRate: 48000,
			PCMFormat:  types.PCMFormatS16LE,
		}, 48000)
		require.NoError(t, err)

		data := s16le(100, 300, 1000, 3000, -100, -300)
		var out []float64
		for _, b := range data {
			out, err = c.Convert(out, []byte{b})
			require.NoError(t, err)
		}
		require.Len(t, out, 3)
		assert.InDelta(t, 200.0/32768, out[0], 1e-9)
		assert.InDelta(t, 2000.0/32768, out[1], 1e-9)
		assert.InDelta(t, -200.0/32768, out[2], 1e-9)

		out, err = c.Convert(nil, data[:3])
		require.NoError(t, err)
		assert.Empty(t, out)
		out, err = c.Convert(out, data[3:])
		require.NoError(t, err)
		assert.Len(t, out, 3)
	})

	t.Run("Downsample_44100_to_22050", func(t *testing.T) {
		c, err := NewConverter(Format{
			Channels:   1,
			SampleRate: 44100,
			PCMFormat:  types.PCMFormatS16LE,
		}, 22050)
		require.NoError(t, err)

		values := make([]int16, 100)
		for i := range values {
			values[i] = int16(i * 100)
		}
		out, err := c.Convert(nil, s16le(values...))
		require.NoError(t, err)
		require.Len(t, out, 50)
		assert.InDelta(t, 0.0, out[0], 1e-9)
		assert.InDelta(t, 200.0/32768, out[1], 1e-9)
	})

	t.Run("Upsample_24000_to_48000", func(t *testing.T) {
		c, err := NewConverter(Format{
			Channels:   1,
			SampleRate: 24000,
			PCMFormat:  types.PCMFormatFloat32LE,
		}, 48000)
		require.NoError(t, err)

		data := make([]byte, 4*10)
		for i := 0; i < 10; i++ {
			binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(float32(i)/10))
		}
		out, err := c.Convert(nil, data)
		require.NoError(t, err)
		require.Len(t, out, 19)
		assert.InDelta(t, 0.0, out[0], 1e-6)
		assert.InDelta(t, 0.1, out[1], 1e-6)
		assert.InDelta(t, 0.1, out[2], 1e-6)
		assert.InDelta(t, 0.2, out[3], 1e-6)
	})

	t.Run("InvalidFormat", func(t *testing.T) {
		_, err := NewConverter(Format{Channels: 1, SampleRate: 48000}, 48000)
		assert.Error(t, err)
		_, err = NewConverter(Format{Channels: 0, SampleRate: 48000, PCMFormat: types.PCMFormatU8}, 48000)
		assert.Error(t, err)
		_, err = NewConverter(Format{Channels: 1, SampleRate: 48000, PCMFormat: types.PCMFormatU8}, 0)
		assert.Error(t, err)
	})
}

func TestWriter(t *testing.T) {
	c, err := NewConverter(Format{
		Channels:   1,
		SampleRate: 16000,
		PCMFormat:  types.PCMFormatS16LE,
	}, 16000)
	require.NoError(t, err)

	var got []float64
	w := NewWriter(c, func(samples []float64) error {
		got = append(got, samples...)
		return nil
	})

	data := s16le(1, 2, 3)
	n, err := w.Write(data[:3])
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = w.Write(data[3:])
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, got, 3)
}
