package interpolation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLinear(t *testing.T) {
	assert.InDeltaSlice(t,
		[]float64{0.25, 0.5, 0.75},
		Linear{}.Interpolate([]float64{1, 0}, []float64{1, 2}, 3),
		1e-9,
	)
	assert.Equal(t, []float64{0, 0}, Linear{}.Interpolate(nil, nil, 2))
	assert.Empty(t, Linear{}.Interpolate([]float64{1}, []float64{1}, 0))
}
