package features

import (
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

// STFT parameters shared by every spectral feature.
const (
	WindowSize = 2048
	HopSize    = 512
	// BinCount is the number of non-redundant magnitude bins per frame.
	BinCount = WindowSize/2 + 1
)

// Frame is one STFT analysis window. Time holds the raw (unwindowed)
// samples of the window, Mag the magnitude spectrum of the Hann-windowed
// samples. Both slices are reused between frames; consumers must not
// retain them past the callback.
type Frame struct {
	Index int
	Time  []float64
	Mag   []float64
}

// hannWindow is computed once; the window is a pure function of WindowSize.
var hannOnce sync.Once
var hannWindow []float64

func hann() []float64 {
	hannOnce.Do(func() {
		hannWindow = make([]float64, WindowSize)
		for i := range hannWindow {
			// periodic Hann window
			hannWindow[i] = 0.5 - 0.5*cosTau(float64(i)/WindowSize)
		}
	})
	return hannWindow
}

// stft streams magnitude frames over the signal without materializing the
// full spectrogram. scratch provides the reusable FFT buffers.
func stft(samples []float32, scratch *Scratch, fn func(frame *Frame) error) error {
	if len(samples) < WindowSize {
		return nil
	}

	window := hann()
	frame := &Frame{
		Time: scratch.timeBuf,
		Mag:  scratch.magBuf,
	}

	idx := 0
	for start := 0; start+WindowSize <= len(samples); start += HopSize {
		for i := range WindowSize {
			s := float64(samples[start+i])
			frame.Time[i] = s
			scratch.windowed[i] = s * window[i]
		}

		coeffs := scratch.fft.Coefficients(scratch.coeffBuf, scratch.windowed)
		for i, c := range coeffs {
			re, im := real(c), imag(c)
			frame.Mag[i] = sqrtf(re*re + im*im)
		}

		frame.Index = idx
		if err := fn(frame); err != nil {
			return err
		}
		idx++
	}

	return nil
}

// frameCount returns how many STFT frames the signal yields.
func frameCount(n int) int {
	if n < WindowSize {
		return 0
	}
	return (n-WindowSize)/HopSize + 1
}

// Scratch holds the reusable per-extraction buffers. Instances are owned
// by the analysis pool's bounded buffer pool and must not be shared by
// concurrent extractions.
type Scratch struct {
	fft      *fourier.FFT
	windowed []float64
	timeBuf  []float64
	magBuf   []float64
	coeffBuf []complex128
	envelope []float64
	prevMag  []float64
}

// NewScratch allocates the scratch buffers for one concurrent extraction.
func NewScratch() *Scratch {
	return &Scratch{
		fft:      fourier.NewFFT(WindowSize),
		windowed: make([]float64, WindowSize),
		timeBuf:  make([]float64, WindowSize),
		magBuf:   make([]float64, BinCount),
		coeffBuf: make([]complex128, BinCount),
		prevMag:  make([]float64, BinCount),
	}
}

// reset prepares the scratch for the next extraction.
func (s *Scratch) reset(signalLen int) {
	frames := frameCount(signalLen)
	if cap(s.envelope) < frames {
		s.envelope = make([]float64, 0, frames)
	}
	s.envelope = s.envelope[:0]
	for i := range s.prevMag {
		s.prevMag[i] = 0
	}
}
