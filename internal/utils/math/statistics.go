// Package math provides the statistical summaries used when analyzing
// generated sequence data and model predictions.
package math

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// Median calculates the median of a slice of float64 values.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// Variance calculates the sample variance of a slice of float64 values.
func Variance(values []float64) float64 {
	if len(values) <= 1 {
		return 0
	}
	return stat.Variance(values, nil)
}

// StandardDeviation calculates the sample standard deviation of a slice of
// float64 values.
func StandardDeviation(values []float64) float64 {
	return math.Sqrt(Variance(values))
}

// Min returns the smallest value in the slice, or 0 for an empty slice.
func Min(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return floats.Min(values)
}

// Max returns the largest value in the slice, or 0 for an empty slice.
func Max(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return floats.Max(values)
}

// Correlation calculates the Pearson correlation coefficient between two
// variables.
func Correlation(x, y []float64) float64 {
	if len(x) != len(y) || len(x) == 0 {
		return 0
	}

	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) {
		return 0
	}
	return r
}

// Percentile calculates the p-th percentile of a slice of values using linear
// interpolation between order statistics, so Percentile(x, 50) matches Median.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 || p < 0 || p > 100 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	rank := p / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	frac := rank - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}

// Quantile calculates quantiles (quartiles, quintiles, etc.).
func Quantile(values []float64, q float64) float64 {
	return Percentile(values, q*100)
}

// IQR calculates the interquartile range (Q3 - Q1).
func IQR(values []float64) float64 {
	return Quantile(values, 0.75) - Quantile(values, 0.25)
}

// AutoCorrelation calculates autocorrelation at the given lag.
func AutoCorrelation(values []float64, lag int) float64 {
	if lag < 0 || lag >= len(values) {
		return 0
	}

	n := len(values) - lag
	if n <= 1 {
		return 0
	}

	return Correlation(values[:n], values[lag:lag+n])
}

// MovingAverage calculates the simple moving average with the given window
// size.
func MovingAverage(values []float64, window int) []float64 {
	if window <= 0 || len(values) == 0 {
		return nil
	}
	if window > len(values) {
		window = len(values)
	}

	result := make([]float64, len(values)-window+1)
	sum := floats.Sum(values[:window])
	result[0] = sum / float64(window)
	for i := 1; i < len(result); i++ {
		sum += values[i+window-1] - values[i-1]
		result[i] = sum / float64(window)
	}

	return result
}

// Diff calculates the difference between consecutive elements.
func Diff(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}

	result := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		result[i-1] = values[i] - values[i-1]
	}

	return result
}

// SummaryStats bundles the descriptive statistics of a series.
type SummaryStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Q25    float64 `json:"q25"`
	Median float64 `json:"median"`
	Q75    float64 `json:"q75"`
	Max    float64 `json:"max"`
}

// Describe computes the descriptive statistics of a series.
func Describe(values []float64) SummaryStats {
	if len(values) == 0 {
		return SummaryStats{}
	}

	return SummaryStats{
		Count:  len(values),
		Mean:   stat.Mean(values, nil),
		StdDev: StandardDeviation(values),
		Min:    Min(values),
		Q25:    Percentile(values, 25),
		Median: Percentile(values, 50),
		Q75:    Percentile(values, 75),
		Max:    Max(values),
	}
}
