package math

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tone samples amp*cos(2*pi*cycles*i/n) so the wave lands exactly on one
// spectrum bin.
func tone(n, cycles int, amp float64) []float64 {
	signal := make([]float64, n)
	for i := range signal {
		signal[i] = amp * math.Cos(2*math.Pi*float64(cycles)*float64(i)/float64(n))
	}
	return signal
}

func addInPlace(dst, src []float64) {
	for i := range dst {
		dst[i] += src[i]
	}
}

func TestPowerSpectrumPureTone(t *testing.T) {
	signal := tone(64, 8, 1.0)
	power := PowerSpectrum(signal)
	require.Len(t, power, 33)

	// An unnormalized DFT puts amp*n/2 into the tone bin.
	assert.InDelta(t, 1024.0, power[8], 1e-6)
	for i, p := range power {
		if i == 8 {
			continue
		}
		assert.Lessf(t, p, 1e-9, "bin %d", i)
	}

	assert.Nil(t, PowerSpectrum(nil))
}

func TestFrequencyBins(t *testing.T) {
	bins := FrequencyBins(64, 64.0)
	require.Len(t, bins, 33)
	assert.InDelta(t, 0.0, bins[0], 1e-12)
	assert.InDelta(t, 1.0, bins[1], 1e-9)
	assert.InDelta(t, 32.0, bins[32], 1e-9)

	assert.Nil(t, FrequencyBins(0, 1.0))
}

func TestDominantFrequency(t *testing.T) {
	signal := tone(64, 8, 1.0)
	assert.InDelta(t, 8.0, DominantFrequency(signal, 64.0), 1e-9)

	// The stronger of two tones wins.
	mixed := tone(64, 5, 3.0)
	addInPlace(mixed, tone(64, 12, 1.0))
	assert.InDelta(t, 5.0, DominantFrequency(mixed, 64.0), 1e-9)

	assert.Equal(t, 0.0, DominantFrequency([]float64{1}, 1.0))
	assert.Equal(t, 0.0, DominantFrequency(nil, 1.0))
}

func TestDominantFrequencyIgnoresDC(t *testing.T) {
	signal := tone(64, 4, 1.0)
	for i := range signal {
		signal[i] += 10.0
	}
	assert.InDelta(t, 4.0, DominantFrequency(signal, 64.0), 1e-9)
}

func TestDominantFrequencyMatchesBins(t *testing.T) {
	signal := tone(128, 20, 2.0)
	power := PowerSpectrum(signal)
	bins := FrequencyBins(128, 1000.0)
	require.Len(t, power, len(bins))

	best := 1
	for i := 2; i < len(power); i++ {
		if power[i] > power[best] {
			best = i
		}
	}
	assert.Equal(t, bins[best], DominantFrequency(signal, 1000.0))
}
