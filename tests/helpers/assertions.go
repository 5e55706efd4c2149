package helpers

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/seqforge/seqnet/internal/nn"
)

// AssertFloatEquals asserts that two floats are equal within tolerance.
func AssertFloatEquals(t *testing.T, expected, actual, tolerance float64, msgAndArgs ...interface{}) {
	t.Helper()

	if math.IsNaN(expected) && math.IsNaN(actual) {
		return
	}

	if math.IsInf(expected, 0) && math.IsInf(actual, 0) {
		assert.Equal(t, math.Signbit(expected), math.Signbit(actual), msgAndArgs...)
		return
	}

	diff := math.Abs(expected - actual)
	assert.True(t, diff <= tolerance,
		"expected %f to be within %f of %f (diff: %f). %s",
		actual, tolerance, expected, diff, fmt.Sprint(msgAndArgs...))
}

// AssertFloatSliceEquals asserts that two float slices are equal within
// tolerance.
func AssertFloatSliceEquals(t *testing.T, expected, actual []float64, tolerance float64, msgAndArgs ...interface{}) {
	t.Helper()

	require.Equal(t, len(expected), len(actual), "slice length mismatch. %s", fmt.Sprint(msgAndArgs...))

	for i := range expected {
		AssertFloatEquals(t, expected[i], actual[i], tolerance,
			fmt.Sprintf("element %d: %s", i, fmt.Sprint(msgAndArgs...)))
	}
}

// AssertMatrixEquals asserts that two matrices have identical dimensions and
// agree element-wise within tolerance.
func AssertMatrixEquals(t *testing.T, expected, actual mat.Matrix, tolerance float64, msgAndArgs ...interface{}) {
	t.Helper()

	er, ec := expected.Dims()
	ar, ac := actual.Dims()
	require.Equal(t, er, ar, "row count mismatch. %s", fmt.Sprint(msgAndArgs...))
	require.Equal(t, ec, ac, "column count mismatch. %s", fmt.Sprint(msgAndArgs...))

	for i := 0; i < er; i++ {
		for j := 0; j < ec; j++ {
			AssertFloatEquals(t, expected.At(i, j), actual.At(i, j), tolerance,
				fmt.Sprintf("element (%d,%d): %s", i, j, fmt.Sprint(msgAndArgs...)))
		}
	}
}

// AssertCubeEquals asserts that two cubes have identical dimensions and agree
// element-wise within tolerance.
func AssertCubeEquals(t *testing.T, expected, actual *nn.Cube, tolerance float64, msgAndArgs ...interface{}) {
	t.Helper()

	require.NotNil(t, expected, "expected cube is nil")
	require.NotNil(t, actual, "actual cube is nil")
	require.Equal(t, expected.Rows(), actual.Rows(), "row count mismatch. %s", fmt.Sprint(msgAndArgs...))
	require.Equal(t, expected.Cols(), actual.Cols(), "column count mismatch. %s", fmt.Sprint(msgAndArgs...))
	require.Equal(t, expected.Steps(), actual.Steps(), "step count mismatch. %s", fmt.Sprint(msgAndArgs...))

	for s := 0; s < expected.Steps(); s++ {
		for j := 0; j < expected.Cols(); j++ {
			for i := 0; i < expected.Rows(); i++ {
				AssertFloatEquals(t, expected.At(i, j, s), actual.At(i, j, s), tolerance,
					fmt.Sprintf("element (%d,%d,%d): %s", i, j, s, fmt.Sprint(msgAndArgs...)))
			}
		}
	}
}

// AssertAllFinite asserts that no value is NaN or infinite.
func AssertAllFinite(t *testing.T, values []float64, msgAndArgs ...interface{}) {
	t.Helper()

	for i, v := range values {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0),
			"non-finite value %f at index %d. %s", v, i, fmt.Sprint(msgAndArgs...))
	}
}

// AssertCubeFinite asserts that every element of the cube is finite.
func AssertCubeFinite(t *testing.T, c *nn.Cube, msgAndArgs ...interface{}) {
	t.Helper()

	require.NotNil(t, c, "cube is nil")
	AssertAllFinite(t, c.Vectorize(), msgAndArgs...)
}

// AssertWithinRange asserts that all values are within the given bounds.
func AssertWithinRange(t *testing.T, data []float64, min, max float64) {
	t.Helper()

	for i, v := range data {
		assert.GreaterOrEqual(t, v, min, "value at index %d is below minimum", i)
		assert.LessOrEqual(t, v, max, "value at index %d is above maximum", i)
	}
}

// AssertStatisticalProperties asserts the mean and population standard
// deviation of data within tolerance.
func AssertStatisticalProperties(t *testing.T, data []float64, expectedMean, expectedStdDev, tolerance float64) {
	t.Helper()

	require.NotEmpty(t, data, "data cannot be empty")

	sum := 0.0
	for _, v := range data {
		sum += v
	}
	mean := sum / float64(len(data))

	variance := 0.0
	for _, v := range data {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(data))

	AssertFloatEquals(t, expectedMean, mean, tolerance, "mean mismatch")
	AssertFloatEquals(t, expectedStdDev, math.Sqrt(variance), tolerance, "standard deviation mismatch")
}
