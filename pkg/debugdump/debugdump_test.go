package debugdump

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRead(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	a := &Attempt{
		Track:      "some track",
		SampleRate: 48000,
		Attempt:    2,
		Capture:    []float64{0, 0.5, -0.5},
		Reference:  []float64{0.5, -0.5, 0},
		LagSamples: 1,
		Confidence: 0.97,
		Success:    true,
		CreatedAt:  time.Unix(1700000000, 123).UTC(),
	}

	filePath, err := Write(dir, a)
	require.NoError(t, err)
	assert.Equal(t, "1700000000000000123-2.msgpack.zst", filepath.Base(filePath))

	got, err := Read(filePath)
	require.NoError(t, err)
	assert.Equal(t, a.Track, got.Track)
	assert.Equal(t, a.Capture, got.Capture)
	assert.Equal(t, a.Reference, got.Reference)
	assert.Equal(t, a.LagSamples, got.LagSamples)
	assert.True(t, a.CreatedAt.Equal(got.CreatedAt))
}

func TestDecodeGarbage(t *testing.T) {
	_, err := Decode(strings.NewReader("definitely not zstd"))
	assert.Error(t, err)
}
