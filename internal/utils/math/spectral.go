package math

import (
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// PowerSpectrum computes the one-sided power spectrum of a real signal. The
// result has n/2+1 bins, matching FrequencyBins.
func PowerSpectrum(signal []float64) []float64 {
	if len(signal) == 0 {
		return nil
	}

	fft := fourier.NewFFT(len(signal))
	coeffs := fft.Coefficients(nil, signal)

	power := make([]float64, len(coeffs))
	for i, c := range coeffs {
		m := cmplx.Abs(c)
		power[i] = m * m
	}
	return power
}

// FrequencyBins returns the frequency of each one-sided spectrum bin for a
// signal of n samples taken at the given sample rate.
func FrequencyBins(n int, sampleRate float64) []float64 {
	if n <= 0 {
		return nil
	}

	fft := fourier.NewFFT(n)
	bins := make([]float64, n/2+1)
	for i := range bins {
		bins[i] = fft.Freq(i) * sampleRate
	}
	return bins
}

// DominantFrequency returns the frequency with the highest spectral power,
// ignoring the DC component.
func DominantFrequency(signal []float64, sampleRate float64) float64 {
	power := PowerSpectrum(signal)
	if len(power) < 2 {
		return 0
	}

	best := 1
	for i := 2; i < len(power); i++ {
		if power[i] > power[best] {
			best = i
		}
	}

	fft := fourier.NewFFT(len(signal))
	return fft.Freq(best) * sampleRate
}
