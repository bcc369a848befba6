package features

import (
	"math"

	"github.com/AnthonyMichaelTDM/mecomp/internal/decode"
)

// pitchClasses is the size of the folded chroma profile.
const pitchClasses = 12

// Frequency band folded into the chroma profile. Bins outside carry mostly
// rumble or noise and would smear the pitch-class estimate.
const (
	chromaMinHz = 55.0
	chromaMaxHz = 8000.0
)

// a4Hz is the reference tuning used when mapping bins to pitch classes.
const a4Hz = 440.0

// chromaAccumulator folds STFT magnitude frames into a 12-bin pitch-class
// profile one frame at a time. State is O(12); the full magnitude matrix
// is never materialized.
type chromaAccumulator struct {
	profile [pitchClasses]float64
	frames  int

	// binToClass is the per-bin pitch class, -1 outside the chroma band.
	binToClass []int
}

func newChromaAccumulator() *chromaAccumulator {
	a := &chromaAccumulator{
		binToClass: make([]int, BinCount),
	}
	for i := range a.binToClass {
		freq := float64(i) * decode.TargetSampleRate / WindowSize
		if freq < chromaMinHz || freq > chromaMaxHz {
			a.binToClass[i] = -1
			continue
		}
		semitones := 12 * math.Log2(freq/a4Hz)
		pc := int(math.Round(semitones)) % pitchClasses
		if pc < 0 {
			pc += pitchClasses
		}
		a.binToClass[i] = pc
	}
	return a
}

func (a *chromaAccumulator) reset() {
	a.profile = [pitchClasses]float64{}
	a.frames = 0
}

func (a *chromaAccumulator) process(frame *Frame) {
	for i, m := range frame.Mag {
		if pc := a.binToClass[i]; pc >= 0 {
			a.profile[pc] += m
		}
	}
	a.frames++
}

// Krumhansl-Schmuckler key profiles, normalized at use time.
var majorTemplate = [pitchClasses]float64{6.35, 2.23, 3.48, 2.33, 4.38, 4.09, 2.52, 5.19, 2.39, 3.66, 2.29, 2.88}
var minorTemplate = [pitchClasses]float64{6.33, 2.68, 3.52, 5.38, 2.60, 3.53, 2.54, 4.75, 3.98, 2.69, 3.34, 3.17}

// chromaFeatures reduces the accumulated profile to the vector's six
// chroma components, each in [0, 1].
type chromaFeatures struct {
	Interval   float64 // circular distance between the two strongest classes / 6
	Key        float64 // strongest pitch class / 11
	Major      float64 // correlation with the major template at the key
	Minor      float64 // correlation with the minor template at the key
	Std        float64 // spread of the normalized profile
	PeakSpread float64 // (max - mean) / max of the normalized profile
}

func (a *chromaAccumulator) features() chromaFeatures {
	var out chromaFeatures

	var total float64
	for _, p := range a.profile {
		total += p
	}
	if total < divisionGuard {
		return out
	}

	var norm [pitchClasses]float64
	for i, p := range a.profile {
		norm[i] = p / total
	}

	first, second := 0, 1
	if norm[second] > norm[first] {
		first, second = second, first
	}
	for i := 2; i < pitchClasses; i++ {
		switch {
		case norm[i] > norm[first]:
			first, second = i, first
		case norm[i] > norm[second]:
			second = i
		}
	}

	interval := first - second
	if interval < 0 {
		interval = -interval
	}
	if interval > pitchClasses/2 {
		interval = pitchClasses - interval
	}
	out.Interval = float64(interval) / float64(pitchClasses/2)
	out.Key = float64(first) / float64(pitchClasses-1)
	out.Major = templateCorrelation(&norm, &majorTemplate, first)
	out.Minor = templateCorrelation(&norm, &minorTemplate, first)

	mean := 1.0 / pitchClasses
	var m2, maxv float64
	for _, p := range norm {
		d := p - mean
		m2 += d * d
		if p > maxv {
			maxv = p
		}
	}
	out.Std = math.Sqrt(m2 / pitchClasses)
	if maxv >= divisionGuard {
		out.PeakSpread = (maxv - mean) / maxv
	}

	return out
}

// templateCorrelation rotates the template to the given key and returns
// the Pearson correlation with the profile, clamped to [0, 1].
func templateCorrelation(profile, template *[pitchClasses]float64, key int) float64 {
	var pMean, tMean float64
	for i := range pitchClasses {
		pMean += profile[i]
		tMean += template[i]
	}
	pMean /= pitchClasses
	tMean /= pitchClasses

	var num, pVar, tVar float64
	for i := range pitchClasses {
		tp := template[((i-key)%pitchClasses+pitchClasses)%pitchClasses]
		dp := profile[i] - pMean
		dt := tp - tMean
		num += dp * dt
		pVar += dp * dp
		tVar += dt * dt
	}

	den := math.Sqrt(pVar * tVar)
	if den < divisionGuard {
		return 0
	}
	corr := num / den
	if corr < 0 {
		return 0
	}
	return corr
}
