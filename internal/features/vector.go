package features

import (
	"encoding/binary"
	"math"

	"github.com/AnthonyMichaelTDM/mecomp/internal/errors"
)

// Dimension is the length of an analysis vector. The component order below
// is an on-disk contract and must never be reordered.
const Dimension = 20

// SchemaVersion tags persisted analysis records. Bumping it invalidates
// every stored analysis and forces re-analysis of the library.
const SchemaVersion = 1

// EncodedSize is the byte length of a serialized vector (20 little-endian f32).
const EncodedSize = Dimension * 4

// Component indices of the analysis vector.
const (
	IdxTempo = iota
	IdxZeroCrossingRate
	IdxCentroidMean
	IdxCentroidStd
	IdxCentroidMax
	IdxRolloffMean
	IdxRolloffStd
	IdxRolloffMax
	IdxFlatnessMean
	IdxFlatnessStd
	IdxFlatnessMax
	IdxLoudnessMean
	IdxLoudnessStd
	IdxLoudnessMax
	IdxChromaInterval
	IdxChromaKey
	IdxChromaMajor
	IdxChromaMinor
	IdxChromaStd
	IdxChromaPeakSpread
)

// componentNames mirrors the index constants for logging and table output.
var componentNames = [Dimension]string{
	"tempo",
	"zero_crossing_rate",
	"centroid_mean", "centroid_std", "centroid_max",
	"rolloff_mean", "rolloff_std", "rolloff_max",
	"flatness_mean", "flatness_std", "flatness_max",
	"loudness_mean", "loudness_std", "loudness_max",
	"chroma_interval", "chroma_key", "chroma_major", "chroma_minor",
	"chroma_std", "chroma_peak_spread",
}

// Vector is the fixed-length acoustic fingerprint of a song.
type Vector [Dimension]float32

// ComponentName returns the stable name of component i.
func ComponentName(i int) string {
	return componentNames[i]
}

// IsFinite reports whether every component is a finite number.
func (v *Vector) IsFinite() bool {
	for _, c := range v {
		f := float64(c)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// Sanitize replaces non-finite components with 0 in place.
func (v *Vector) Sanitize() {
	for i, c := range v {
		f := float64(c)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			v[i] = 0
		}
	}
}

// Distance returns the Euclidean distance between two vectors.
func (v *Vector) Distance(other *Vector) float64 {
	var sum float64
	for i := range v {
		d := float64(v[i]) - float64(other[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Mean computes the component-wise mean of a non-empty set of vectors.
// Accumulation is in float64 so summation order artifacts stay below f32
// precision.
func Mean(vectors []Vector) (Vector, error) {
	if len(vectors) == 0 {
		return Vector{}, errors.New(errors.ErrEmptySeed).
			Component("features").
			Context("operation", "vector_mean").
			Build()
	}

	var acc [Dimension]float64
	for i := range vectors {
		for j := range acc {
			acc[j] += float64(vectors[i][j])
		}
	}

	var out Vector
	n := float64(len(vectors))
	for j := range acc {
		out[j] = float32(acc[j] / n)
	}
	return out, nil
}

// Encode serializes the vector as 80 bytes of little-endian IEEE-754 f32
// in component order.
func (v *Vector) Encode() []byte {
	buf := make([]byte, EncodedSize)
	for i, c := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(c))
	}
	return buf
}

// Decode deserializes an 80-byte little-endian record into a vector.
func Decode(data []byte) (Vector, error) {
	var v Vector
	if len(data) != EncodedSize {
		return v, errors.Newf("analysis record has %d bytes, want %d", len(data), EncodedSize).
			Component("features").
			Category(errors.CategoryValidation).
			Build()
	}
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return v, nil
}
