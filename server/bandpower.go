package neurales

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/floats"
)

// MinBandPowerSamples is the shortest segment BandPower will look at.
// Anything shorter has too little frequency resolution and yields 0.
const MinBandPowerSamples = 16

// BandPower returns the mean power spectral density of signal over bins in [fLow, fHigh).
//
//  1. subtract the mean
//  2. Hann taper of the same length
//  3. real FFT, one-sided spectrum (bins k*rate/n for k = 0..n/2)
//  4. PSD is |X_k|^2, averaged over the bins inside the band
//
// It returns 0 when the signal is shorter than MinBandPowerSamples or when
// no bin falls inside the band. The input slice is not modified.
func BandPower(signal []float64, sampleRate, fLow, fHigh float64) float64 {
	n := len(signal)
	if n < MinBandPowerSamples || sampleRate <= 0 {
		return 0
	}

	// Detrend into a scratch copy, the taper works in place
	x := make([]float64, n)
	copy(x, signal)
	floats.AddConst(-floats.Sum(x)/float64(n), x)
	window.Hann(x)

	spectrum := fft.FFTReal(x)

	var sum float64
	var count int
	resolution := sampleRate / float64(n)
	for k := 0; k <= n/2; k++ {
		f := float64(k) * resolution
		if f < fLow || f >= fHigh {
			continue
		}
		mag := cmplx.Abs(spectrum[k])
		sum += mag * mag
		count++
	}

	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
