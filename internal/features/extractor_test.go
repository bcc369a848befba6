package features

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnthonyMichaelTDM/mecomp/internal/decode"
	"github.com/AnthonyMichaelTDM/mecomp/internal/errors"
)

// sine synthesizes seconds of a pure tone at the pipeline sample rate.
func sine(freq float64, seconds float64, amplitude float64) []float32 {
	n := int(seconds * decode.TargetSampleRate)
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amplitude * math.Sin(2*math.Pi*freq*float64(i)/decode.TargetSampleRate))
	}
	return out
}

// noise synthesizes seeded white noise.
func noise(seconds float64, seed int64) []float32 {
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // deterministic fixture
	n := int(seconds * decode.TargetSampleRate)
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(rng.Float64()*2 - 1)
	}
	return out
}

func TestExtractIsDeterministic(t *testing.T) {
	t.Parallel()

	signal := sine(440, 10, 0.5)

	first, err := NewExtractor().Extract(signal)
	require.NoError(t, err)
	second, err := NewExtractor().Extract(signal)
	require.NoError(t, err)

	// bit-identical, not merely close
	assert.Equal(t, first, second)
}

func TestExtractReuseSameExtractor(t *testing.T) {
	t.Parallel()

	signal := sine(440, 2, 0.5)
	e := NewExtractor()

	first, err := e.Extract(signal)
	require.NoError(t, err)

	// a different signal in between must not leak state
	_, err = e.Extract(noise(2, 7))
	require.NoError(t, err)

	again, err := e.Extract(signal)
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestExtractIsFinite(t *testing.T) {
	t.Parallel()

	signals := map[string][]float32{
		"sine":    sine(440, 2, 0.5),
		"noise":   noise(2, 1),
		"silence": make([]float32, 2*decode.TargetSampleRate),
		"clipped": sine(100, 2, 1.0),
	}

	for name, signal := range signals {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			v, err := NewExtractor().Extract(signal)
			require.NoError(t, err)
			assert.True(t, v.IsFinite())
		})
	}
}

func TestExtractRejectsShortSignal(t *testing.T) {
	t.Parallel()

	_, err := NewExtractor().Extract(sine(440, 0.5, 0.5))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrAnalysis))
}

func TestHarmonicNeighborCloserThanNoise(t *testing.T) {
	t.Parallel()

	e := NewExtractor()
	a440, err := e.Extract(sine(440, 3, 0.5))
	require.NoError(t, err)
	a880, err := e.Extract(sine(880, 3, 0.5))
	require.NoError(t, err)
	white, err := e.Extract(noise(3, 2))
	require.NoError(t, err)

	assert.Less(t, a440.Distance(&a880), a440.Distance(&white),
		"the octave harmonic should be acoustically nearer than white noise")
}

func TestSineFeaturesLookReasonable(t *testing.T) {
	t.Parallel()

	v, err := NewExtractor().Extract(sine(440, 3, 0.5))
	require.NoError(t, err)

	// a pure tone is tonal, not flat
	assert.Less(t, float64(v[IdxFlatnessMean]), 0.2)
	// chroma energy concentrates in one pitch class
	assert.Greater(t, float64(v[IdxChromaPeakSpread]), 0.3)
	// 440 Hz crosses zero ~880 times/s out of 22050 samples
	assert.InDelta(t, 2*440.0/decode.TargetSampleRate, float64(v[IdxZeroCrossingRate]), 0.01)
}

func TestNoiseIsFlat(t *testing.T) {
	t.Parallel()

	v, err := NewExtractor().Extract(noise(3, 3))
	require.NoError(t, err)

	tone, err := NewExtractor().Extract(sine(440, 3, 0.5))
	require.NoError(t, err)

	assert.Greater(t, float64(v[IdxFlatnessMean]), float64(tone[IdxFlatnessMean]))
}

func TestChromaStreamsWithoutFrameRetention(t *testing.T) {
	t.Parallel()

	// the chroma accumulator must read each frame inside the callback;
	// reusing the frame buffers between frames would corrupt a retained
	// reference, so equal results across runs prove streaming consumption
	signal := noise(2, 11)

	e1 := NewExtractor()
	v1, err := e1.Extract(signal)
	require.NoError(t, err)

	e2 := NewExtractor()
	v2, err := e2.Extract(signal)
	require.NoError(t, err)

	for _, idx := range []int{IdxChromaInterval, IdxChromaKey, IdxChromaMajor, IdxChromaMinor, IdxChromaStd, IdxChromaPeakSpread} {
		assert.Equal(t, v1[idx], v2[idx], ComponentName(idx))
	}
}

func BenchmarkExtract(b *testing.B) {
	signal := sine(440, 10, 0.5)
	e := NewExtractor()

	b.ResetTimer()
	for b.Loop() {
		if _, err := e.Extract(signal); err != nil {
			b.Fatal(err)
		}
	}
}
