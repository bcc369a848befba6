// Package features computes the 20-dimensional acoustic fingerprint of a
// song from its mono 22 050 Hz PCM stream.
package features

import (
	"log/slog"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/AnthonyMichaelTDM/mecomp/internal/decode"
	"github.com/AnthonyMichaelTDM/mecomp/internal/errors"
	"github.com/AnthonyMichaelTDM/mecomp/internal/logging"
)

// Extractor computes analysis vectors. One Extractor owns one Scratch and
// must not be used by concurrent extractions; the analysis pool hands out
// Extractors through its bounded buffer pool.
type Extractor struct {
	scratch *Scratch
	chroma  *chromaAccumulator
	logger  *slog.Logger
}

// NewExtractor allocates an extractor with its own scratch buffers.
func NewExtractor() *Extractor {
	logger := logging.ForService("features")
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		scratch: NewScratch(),
		chroma:  newChromaAccumulator(),
		logger:  logger,
	}
}

// Extract computes the analysis vector for a mono 22 050 Hz signal.
//
// The temporal pass (zero crossings over the raw signal) and the spectral
// pass (one streaming STFT feeding the spectral, chroma and onset
// accumulators) run concurrently; all accumulators are float64 and the
// result is cast to float32 once at the end, so output is bit-stable for
// identical input.
func (e *Extractor) Extract(samples []float32) (Vector, error) {
	if len(samples) < decode.MinSamples {
		return Vector{}, errors.Newf("signal of %d samples is shorter than 1s: %w",
			len(samples), errors.ErrAnalysis).
			Component("features").
			Build()
	}

	e.scratch.reset(len(samples))
	e.chroma.reset()

	spectral := &spectralAccumulator{}
	onset := &onsetAccumulator{scratch: e.scratch}

	var zcr float64
	var g errgroup.Group

	g.Go(func() error {
		zcr = zeroCrossingRate(samples)
		return nil
	})

	g.Go(func() error {
		return stft(samples, e.scratch, func(frame *Frame) error {
			spectral.process(frame)
			e.chroma.process(frame)
			onset.process(frame)
			return nil
		})
	})

	if err := g.Wait(); err != nil {
		return Vector{}, errors.Wrap(errors.Join(errors.ErrAnalysis, err)).
			Component("features").
			Build()
	}

	tempo := estimateTempo(e.scratch.envelope)
	ch := e.chroma.features()

	var out [Dimension]float64
	out[IdxTempo] = tempo
	out[IdxZeroCrossingRate] = zcr
	out[IdxCentroidMean] = spectral.centroid.Mean()
	out[IdxCentroidStd] = spectral.centroid.Std()
	out[IdxCentroidMax] = spectral.centroid.Max()
	out[IdxRolloffMean] = spectral.rolloff.Mean()
	out[IdxRolloffStd] = spectral.rolloff.Std()
	out[IdxRolloffMax] = spectral.rolloff.Max()
	out[IdxFlatnessMean] = spectral.flatness.Mean()
	out[IdxFlatnessStd] = spectral.flatness.Std()
	out[IdxFlatnessMax] = spectral.flatness.Max()
	out[IdxLoudnessMean] = spectral.loudness.Mean()
	out[IdxLoudnessStd] = spectral.loudness.Std()
	out[IdxLoudnessMax] = spectral.loudness.Max()
	out[IdxChromaInterval] = ch.Interval
	out[IdxChromaKey] = ch.Key
	out[IdxChromaMajor] = ch.Major
	out[IdxChromaMinor] = ch.Minor
	out[IdxChromaStd] = ch.Std
	out[IdxChromaPeakSpread] = ch.PeakSpread

	var v Vector
	for i, c := range out {
		v[i] = float32(c)
	}

	if !v.IsFinite() {
		return Vector{}, errors.Newf("non-finite feature output: %w", errors.ErrAnalysis).
			Component("features").
			Context("components", nonFiniteComponents(&v)).
			Build()
	}

	return v, nil
}

// ExtractFile decodes a file and extracts its vector in one step.
func (e *Extractor) ExtractFile(path string) (Vector, error) {
	samples, err := decode.FromFile(path)
	if err != nil {
		return Vector{}, err
	}
	v, err := e.Extract(samples)
	if err != nil {
		return Vector{}, err
	}
	e.logger.Debug("analyzed file", "path", path, "samples", len(samples))
	return v, nil
}

func nonFiniteComponents(v *Vector) []string {
	var bad []string
	for i, c := range v {
		f := float64(c)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			bad = append(bad, ComponentName(i))
		}
	}
	return bad
}
