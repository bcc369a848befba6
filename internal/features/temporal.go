package features

import (
	"math"

	"github.com/AnthonyMichaelTDM/mecomp/internal/decode"
)

// Tempo search range in beats per minute. The tempo component is the
// winning BPM normalized by tempoMaxBPM.
const (
	tempoMinBPM = 30.0
	tempoMaxBPM = 300.0
)

// frameRate is the STFT frame rate in frames per second.
const frameRate = float64(decode.TargetSampleRate) / HopSize

// zeroCrossingRate is the fraction of adjacent sample pairs whose signs
// differ, accumulated over the full signal.
func zeroCrossingRate(samples []float32) float64 {
	if len(samples) < 2 {
		return 0
	}
	crossings := 0
	prevPositive := samples[0] >= 0
	for _, s := range samples[1:] {
		positive := s >= 0
		if positive != prevPositive {
			crossings++
			prevPositive = positive
		}
	}
	return float64(crossings) / float64(len(samples)-1)
}

// onsetAccumulator builds the onset-strength envelope: per-frame positive
// spectral flux against the previous frame's magnitudes.
type onsetAccumulator struct {
	scratch *Scratch
}

func (o *onsetAccumulator) process(frame *Frame) {
	var flux float64
	prev := o.scratch.prevMag
	for i, m := range frame.Mag {
		if d := m - prev[i]; d > 0 {
			flux += d
		}
		prev[i] = m
	}
	if frame.Index == 0 {
		// first frame has no predecessor; its flux is pure signal onset
		flux = 0
	}
	o.scratch.envelope = append(o.scratch.envelope, flux)
}

// estimateTempo autocorrelates the onset envelope over lags covering
// tempoMinBPM..tempoMaxBPM and returns the winning BPM normalized by
// tempoMaxBPM. A flat envelope yields 0.
func estimateTempo(envelope []float64) float64 {
	minLag := int(math.Round(frameRate * 60.0 / tempoMaxBPM))
	maxLag := int(math.Round(frameRate * 60.0 / tempoMinBPM))
	if minLag < 1 {
		minLag = 1
	}
	if len(envelope) <= maxLag+1 {
		maxLag = len(envelope) - 2
	}
	if maxLag < minLag {
		return 0
	}

	// center the envelope so constant energy does not dominate
	var mean float64
	for _, e := range envelope {
		mean += e
	}
	mean /= float64(len(envelope))

	var energy float64
	for _, e := range envelope {
		d := e - mean
		energy += d * d
	}
	if energy < divisionGuard {
		return 0
	}

	bestLag, bestCorr := 0, 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		var corr float64
		for i := lag; i < len(envelope); i++ {
			corr += (envelope[i] - mean) * (envelope[i-lag] - mean)
		}
		corr /= energy
		if corr > bestCorr {
			bestCorr, bestLag = corr, lag
		}
	}

	if bestLag == 0 {
		return 0
	}

	bpm := frameRate * 60.0 / float64(bestLag)
	return bpm / tempoMaxBPM
}
