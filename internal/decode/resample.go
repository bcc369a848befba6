package decode

import (
	"math"
)

// defaultSincTaps is the half-width of the sinc kernel in zero crossings.
const defaultSincTaps = 16

// Resampler performs band-limited sample rate conversion using a
// Hann-windowed sinc kernel. Output is produced in ChunkSize chunks so
// callers can stream without materializing the whole signal.
type Resampler struct {
	inRate  int
	outRate int
	taps    int
}

// NewResampler creates a resampler from inRate to outRate.
func NewResampler(inRate, outRate int) *Resampler {
	return &Resampler{
		inRate:  inRate,
		outRate: outRate,
		taps:    defaultSincTaps,
	}
}

// Stream converts the whole input and yields output chunks of up to
// ChunkSize samples. The final chunk may be shorter.
func (r *Resampler) Stream(in []float64, yield func(chunk []float32) error) error {
	if len(in) == 0 {
		return nil
	}

	if r.inRate == r.outRate {
		return r.streamCopy(in, yield)
	}

	// When downsampling the kernel cutoff drops to the output Nyquist,
	// which widens the kernel footprint by the rate ratio.
	cutoff := 1.0
	if r.outRate < r.inRate {
		cutoff = float64(r.outRate) / float64(r.inRate)
	}
	halfWidth := float64(r.taps) / cutoff

	outLen := int(int64(len(in)) * int64(r.outRate) / int64(r.inRate))
	step := float64(r.inRate) / float64(r.outRate)

	chunk := make([]float32, 0, ChunkSize)
	for n := range outLen {
		t := float64(n) * step
		lo := int(math.Ceil(t - halfWidth))
		hi := int(math.Floor(t + halfWidth))
		if lo < 0 {
			lo = 0
		}
		if hi > len(in)-1 {
			hi = len(in) - 1
		}

		var acc float64
		for j := lo; j <= hi; j++ {
			acc += in[j] * r.kernel((t-float64(j))*cutoff, cutoff)
		}

		chunk = append(chunk, float32(acc))
		if len(chunk) == ChunkSize {
			if err := yield(chunk); err != nil {
				return err
			}
			chunk = chunk[:0]
		}
	}

	if len(chunk) > 0 {
		return yield(chunk)
	}
	return nil
}

// kernel evaluates the Hann-windowed sinc at x (already cutoff-scaled),
// including the gain correction for downsampling.
func (r *Resampler) kernel(x, cutoff float64) float64 {
	ax := math.Abs(x)
	if ax >= float64(r.taps) {
		return 0
	}
	// Hann window over the kernel support
	window := 0.5 * (1 + math.Cos(math.Pi*ax/float64(r.taps)))
	return cutoff * sinc(x) * window
}

// streamCopy passes samples through unchanged when no conversion is needed.
func (r *Resampler) streamCopy(in []float64, yield func(chunk []float32) error) error {
	chunk := make([]float32, 0, ChunkSize)
	for _, s := range in {
		chunk = append(chunk, float32(s))
		if len(chunk) == ChunkSize {
			if err := yield(chunk); err != nil {
				return err
			}
			chunk = chunk[:0]
		}
	}
	if len(chunk) > 0 {
		return yield(chunk)
	}
	return nil
}

// sinc is the normalized sinc function sin(pi x) / (pi x).
func sinc(x float64) float64 {
	if math.Abs(x) < 1e-12 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}
