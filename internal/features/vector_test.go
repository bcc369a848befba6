package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnthonyMichaelTDM/mecomp/internal/errors"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	var v Vector
	for i := range v {
		v[i] = float32(i) * 0.05
	}

	encoded := v.Encode()
	require.Len(t, encoded, EncodedSize)

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, v, decoded)
}

func TestDecodeRejectsWrongLength(t *testing.T) {
	t.Parallel()

	_, err := Decode(make([]byte, 79))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestEncodeIsLittleEndian(t *testing.T) {
	t.Parallel()

	var v Vector
	v[0] = 1.0 // 0x3f800000

	encoded := v.Encode()
	assert.Equal(t, []byte{0x00, 0x00, 0x80, 0x3f}, encoded[:4])
}

func TestMean(t *testing.T) {
	t.Parallel()

	a := Vector{}
	b := Vector{}
	a[0], b[0] = 0, 1
	a[5], b[5] = -1, 1

	mean, err := Mean([]Vector{a, b})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, float64(mean[0]), 1e-7)
	assert.InDelta(t, 0.0, float64(mean[5]), 1e-7)
}

func TestMeanEmptyFails(t *testing.T) {
	t.Parallel()

	_, err := Mean(nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrEmptySeed))
}

func TestSanitizeReplacesNonFinite(t *testing.T) {
	t.Parallel()

	var v Vector
	v[1] = float32(math.NaN())
	v[2] = float32(math.Inf(1))
	v[3] = 0.5

	assert.False(t, v.IsFinite())
	v.Sanitize()
	assert.True(t, v.IsFinite())
	assert.Equal(t, float32(0), v[1])
	assert.Equal(t, float32(0), v[2])
	assert.Equal(t, float32(0.5), v[3])
}

func TestDistance(t *testing.T) {
	t.Parallel()

	var a, b Vector
	b[0] = 3
	b[1] = 4

	assert.InDelta(t, 5.0, a.Distance(&b), 1e-12)
	assert.InDelta(t, 0.0, a.Distance(&a), 1e-12)
}
