package features

import (
	"math"
)

// divisionGuard is the smallest denominator any normalization divides by;
// below it the quotient is defined as 0.
const divisionGuard = 1e-12

func sqrtf(x float64) float64 { return math.Sqrt(x) }

func cosTau(x float64) float64 { return math.Cos(2 * math.Pi * x) }

// runningStats accumulates mean/std/max in float64 using Welford's
// algorithm so that single-pass streaming stays numerically stable.
type runningStats struct {
	n    int
	mean float64
	m2   float64
	max  float64
}

func (r *runningStats) push(x float64) {
	r.n++
	delta := x - r.mean
	r.mean += delta / float64(r.n)
	r.m2 += delta * (x - r.mean)
	if r.n == 1 || x > r.max {
		r.max = x
	}
}

func (r *runningStats) Mean() float64 {
	if r.n == 0 {
		return 0
	}
	return r.mean
}

func (r *runningStats) Std() float64 {
	if r.n < 2 {
		return 0
	}
	return math.Sqrt(r.m2 / float64(r.n))
}

func (r *runningStats) Max() float64 {
	if r.n == 0 {
		return 0
	}
	return r.max
}

// spectralAccumulator folds per-frame spectral scalars into running
// mean/std/max statistics.
type spectralAccumulator struct {
	centroid runningStats
	rolloff  runningStats
	flatness runningStats
	loudness runningStats
}

// rolloffEnergy is the cumulative-energy fraction defining the rolloff bin.
const rolloffEnergy = 0.85

// loudnessFloorDB clamps frame loudness; silence maps to -1.
const loudnessFloorDB = -60.0

func (a *spectralAccumulator) process(frame *Frame) {
	a.centroid.push(spectralCentroid(frame.Mag))
	a.rolloff.push(spectralRolloff(frame.Mag))
	a.flatness.push(spectralFlatness(frame.Mag))
	a.loudness.push(frameLoudness(frame.Time))
}

// spectralCentroid is the magnitude-weighted mean bin, normalized to [0, 1].
func spectralCentroid(mag []float64) float64 {
	var num, den float64
	for i, m := range mag {
		num += float64(i) * m
		den += m
	}
	if den < divisionGuard {
		return 0
	}
	return num / den / float64(len(mag)-1)
}

// spectralRolloff is the normalized bin below which rolloffEnergy of the
// spectral energy lies.
func spectralRolloff(mag []float64) float64 {
	var total float64
	for _, m := range mag {
		total += m * m
	}
	if total < divisionGuard {
		return 0
	}

	target := rolloffEnergy * total
	var cum float64
	for i, m := range mag {
		cum += m * m
		if cum >= target {
			return float64(i) / float64(len(mag)-1)
		}
	}
	return 1
}

// spectralFlatness is the geometric over arithmetic mean of the power
// spectrum; near 1 for noise, near 0 for tonal content.
func spectralFlatness(mag []float64) float64 {
	var logSum, sum float64
	n := float64(len(mag))
	for _, m := range mag {
		p := m*m + divisionGuard
		logSum += math.Log(p)
		sum += p
	}
	arith := sum / n
	if arith < divisionGuard {
		return 0
	}
	geo := math.Exp(logSum / n)
	return geo / arith
}

// frameLoudness maps the RMS of the raw frame to [-1, 0]; loudnessFloorDB
// and below map to -1, full scale to 0.
func frameLoudness(timeFrame []float64) float64 {
	var sum float64
	for _, s := range timeFrame {
		sum += s * s
	}
	rms := math.Sqrt(sum / float64(len(timeFrame)))
	if rms < divisionGuard {
		return -1
	}
	db := 20 * math.Log10(rms)
	if db < loudnessFloorDB {
		return -1
	}
	if db > 0 {
		return 0
	}
	return db / -loudnessFloorDB
}
