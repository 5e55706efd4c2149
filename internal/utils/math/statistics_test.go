package math

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMean(t *testing.T) {
	assert.Equal(t, 3.0, Mean([]float64{1, 2, 3, 4, 5}))
	assert.Equal(t, 0.0, Mean(nil))
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 2.0, Median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, Median([]float64{4, 1, 3, 2}))
	assert.Equal(t, 7.0, Median([]float64{7}))
	assert.Equal(t, 0.0, Median(nil))
}

func TestVarianceAndStandardDeviation(t *testing.T) {
	data := []float64{1, 2, 3, 4, 5}
	assert.InDelta(t, 2.5, Variance(data), 1e-12)
	assert.InDelta(t, math.Sqrt(2.5), StandardDeviation(data), 1e-12)

	assert.Equal(t, 0.0, Variance([]float64{4}))
	assert.Equal(t, 0.0, Variance(nil))
}

func TestMinMax(t *testing.T) {
	data := []float64{-2, 5, 3}
	assert.Equal(t, -2.0, Min(data))
	assert.Equal(t, 5.0, Max(data))
	assert.Equal(t, 0.0, Min(nil))
	assert.Equal(t, 0.0, Max(nil))
}

func TestCorrelation(t *testing.T) {
	x := []float64{1, 2, 3, 4}

	assert.InDelta(t, 1.0, Correlation(x, []float64{2, 4, 6, 8}), 1e-12)
	assert.InDelta(t, -1.0, Correlation(x, []float64{8, 6, 4, 2}), 1e-12)

	// A constant series has no defined correlation; report zero instead of NaN.
	assert.Equal(t, 0.0, Correlation(x, []float64{5, 5, 5, 5}))
	assert.Equal(t, 0.0, Correlation(x, []float64{1, 2}))
	assert.Equal(t, 0.0, Correlation(nil, nil))
}

func TestPercentile(t *testing.T) {
	odd := []float64{5, 3, 1, 4, 2}
	assert.Equal(t, 1.0, Percentile(odd, 0))
	assert.Equal(t, 2.0, Percentile(odd, 25))
	assert.Equal(t, 3.0, Percentile(odd, 50))
	assert.Equal(t, 4.0, Percentile(odd, 75))
	assert.Equal(t, 5.0, Percentile(odd, 100))

	even := []float64{1, 2, 3, 4}
	assert.InDelta(t, 1.75, Percentile(even, 25), 1e-12)
	assert.InDelta(t, 2.5, Percentile(even, 50), 1e-12)
	assert.InDelta(t, 3.25, Percentile(even, 75), 1e-12)

	assert.Equal(t, 0.0, Percentile(even, -1))
	assert.Equal(t, 0.0, Percentile(even, 101))
	assert.Equal(t, 0.0, Percentile(nil, 50))
}

func TestPercentileMatchesMedian(t *testing.T) {
	for _, data := range [][]float64{{9, 2, 7}, {4, 8, 1, 6}} {
		assert.Equal(t, Median(data), Percentile(data, 50))
	}
}

func TestQuantileAndIQR(t *testing.T) {
	data := []float64{1, 2, 3, 4, 5}
	assert.Equal(t, Percentile(data, 25), Quantile(data, 0.25))
	assert.InDelta(t, 2.0, IQR(data), 1e-12)
	assert.InDelta(t, 1.5, IQR([]float64{1, 2, 3, 4}), 1e-12)
	assert.Equal(t, 0.0, IQR([]float64{6, 6, 6, 6}))
}

func TestAutoCorrelation(t *testing.T) {
	ramp := []float64{1, 2, 3, 4, 5}
	assert.InDelta(t, 1.0, AutoCorrelation(ramp, 0), 1e-9)
	assert.InDelta(t, 1.0, AutoCorrelation(ramp, 1), 1e-9)

	alternating := []float64{1, -1, 1, -1, 1}
	assert.InDelta(t, -1.0, AutoCorrelation(alternating, 1), 1e-9)

	assert.Equal(t, 0.0, AutoCorrelation(ramp, -1))
	assert.Equal(t, 0.0, AutoCorrelation(ramp, 5))
	assert.Equal(t, 0.0, AutoCorrelation(ramp, 4))
}

func TestMovingAverage(t *testing.T) {
	data := []float64{1, 2, 3, 4, 5}

	got := MovingAverage(data, 2)
	want := []float64{1.5, 2.5, 3.5, 4.5}
	assert.Equal(t, want, got)

	assert.Equal(t, data, MovingAverage(data, 1))
	assert.Equal(t, []float64{3}, MovingAverage(data, 5))
	// Oversized windows clamp to the series length.
	assert.Equal(t, []float64{3}, MovingAverage(data, 7))
	assert.Nil(t, MovingAverage(data, 0))
	assert.Nil(t, MovingAverage(nil, 3))
}

func TestDiff(t *testing.T) {
	assert.Equal(t, []float64{3, 5, 7}, Diff([]float64{1, 4, 9, 16}))
	assert.Nil(t, Diff([]float64{5}))
	assert.Nil(t, Diff(nil))
}

func TestDescribe(t *testing.T) {
	stats := Describe([]float64{1, 2, 3, 4})

	assert.Equal(t, 4, stats.Count)
	assert.InDelta(t, 2.5, stats.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(5.0/3.0), stats.StdDev, 1e-12)
	assert.Equal(t, 1.0, stats.Min)
	assert.InDelta(t, 1.75, stats.Q25, 1e-12)
	assert.InDelta(t, 2.5, stats.Median, 1e-12)
	assert.InDelta(t, 3.25, stats.Q75, 1e-12)
	assert.Equal(t, 4.0, stats.Max)

	assert.Equal(t, SummaryStats{}, Describe(nil))
}
