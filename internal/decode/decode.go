// Package decode adapts decoded audio into the pipeline's canonical form:
// mono float32 PCM at 22 050 Hz, delivered in fixed-size chunks.
package decode

import (
	"log/slog"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/AnthonyMichaelTDM/mecomp/internal/errors"
	"github.com/AnthonyMichaelTDM/mecomp/internal/logging"
)

// TargetSampleRate is the fixed sample rate every downstream feature
// computation assumes.
const TargetSampleRate = 22050

// ChunkSize is the number of output samples delivered per chunk.
const ChunkSize = 1024

// MinSamples is the minimum decoded length, 1 second at the target rate.
// Shorter sources fail with ErrDecode.
const MinSamples = TargetSampleRate

// readChunkFrames is the per-read frame count used when draining the decoder.
const readChunkFrames = 8192

func getLogger() *slog.Logger {
	if l := logging.ForService("decode"); l != nil {
		return l
	}
	return slog.Default()
}

// FromFile decodes a WAV file into mono 22 050 Hz samples.
func FromFile(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.Join(errors.ErrDecode, err)).
			Component("decode").
			Category(errors.CategoryFileIO).
			FileContext(path).
			Build()
	}
	defer f.Close() //nolint:errcheck // read-only handle

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, errors.Newf("not a decodable wav file: %w", errors.ErrDecode).
			Component("decode").
			FileContext(path).
			Build()
	}

	mono, rate, err := drainMono(decoder)
	if err != nil {
		return nil, err
	}

	return Resampled(mono, rate)
}

// Resampled converts mono samples at an arbitrary rate to the target rate
// and enforces the minimum-length contract.
func Resampled(mono []float64, rate int) ([]float32, error) {
	if rate <= 0 {
		return nil, errors.Newf("invalid sample rate %d: %w", rate, errors.ErrDecode).
			Component("decode").
			Build()
	}

	out := make([]float32, 0, len(mono)*TargetSampleRate/rate+ChunkSize)
	r := NewResampler(rate, TargetSampleRate)
	err := r.Stream(mono, func(chunk []float32) error {
		out = append(out, chunk...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(out) < MinSamples {
		return nil, errors.Newf("decoded %d samples, need at least %d: %w",
			len(out), MinSamples, errors.ErrDecode).
			Component("decode").
			Build()
	}

	getLogger().Debug("decoded source",
		"input_rate", rate,
		"input_samples", len(mono),
		"output_samples", len(out))

	return out, nil
}

// Downmix folds interleaved multi-channel samples into mono by arithmetic
// mean across channels.
func Downmix(interleaved []float64, channels int) []float64 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	mono := make([]float64, frames)
	inv := 1.0 / float64(channels)
	for i := range frames {
		var sum float64
		base := i * channels
		for c := range channels {
			sum += interleaved[base+c]
		}
		mono[i] = sum * inv
	}
	return mono
}

// drainMono reads the full PCM stream in chunks, normalizes the integer
// samples to [-1, 1] and downmixes to mono.
func drainMono(decoder *wav.Decoder) (mono []float64, rate int, err error) {
	decoder.ReadInfo()
	rate = int(decoder.SampleRate)
	channels := int(decoder.NumChans)
	if channels == 0 || rate == 0 {
		return nil, 0, errors.Newf("wav header reports %d channels at %d Hz: %w",
			channels, rate, errors.ErrDecode).
			Component("decode").
			Build()
	}

	bitDepth := int(decoder.BitDepth)
	if bitDepth < 8 || bitDepth > 32 {
		return nil, 0, errors.Newf("wav header reports %d-bit samples: %w", bitDepth, errors.ErrDecode).
			Component("decode").
			Build()
	}
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))
	if decoder.WavAudioFormat == 3 {
		// IEEE float sources arrive already normalized
		scale = 1.0
	}

	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: channels, SampleRate: rate},
		Data:   make([]int, readChunkFrames*channels),
	}

	interleaved := make([]float64, 0, readChunkFrames*channels)
	for {
		n, readErr := decoder.PCMBuffer(buf)
		if readErr != nil {
			return nil, 0, errors.Wrap(errors.Join(errors.ErrDecode, readErr)).
				Component("decode").
				Build()
		}
		if n == 0 {
			break
		}
		for _, s := range buf.Data[:n] {
			interleaved = append(interleaved, float64(s)*scale)
		}
	}

	return Downmix(interleaved, channels), rate, nil
}
