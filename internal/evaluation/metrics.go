// Package evaluation computes task-level error metrics over model
// predictions: classification error on sequence labels, exact-recall error on
// binarized outputs and one-step-ahead regression error on forecasted series.
package evaluation

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/seqforge/seqnet/internal/nn"
	"github.com/seqforge/seqnet/pkg/errors"
)

// Binarize replaces every element of m with 1 when it exceeds the threshold
// and 0 otherwise.
func Binarize(m *mat.Dense, threshold float64) {
	rows, cols := m.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if m.At(i, j) > threshold {
				m.Set(i, j, 1)
			} else {
				m.Set(i, j, 0)
			}
		}
	}
}

// argmax returns the row index of the first maximum in column j.
func argmax(m mat.Matrix, j int) int {
	rows, _ := m.Dims()
	best := 0
	bestVal := m.At(0, j)
	for i := 1; i < rows; i++ {
		if v := m.At(i, j); v > bestVal {
			bestVal = v
			best = i
		}
	}
	return best
}

// ClassificationError scores sequence classification: the predicted class of
// each sequence is the row with the highest final-step activation, the true
// class the hot row of the labels column. The result is the fraction of
// misclassified sequences.
func ClassificationError(predictions *nn.Cube, labels *mat.Dense) (float64, error) {
	_, labelCols := labels.Dims()
	if predictions == nil || predictions.Cols() != labelCols {
		return 0, errors.NewValidationError(errors.CodeInvalidInput,
			"predictions and labels must cover the same sequences")
	}

	last := predictions.Slice(predictions.Steps() - 1)
	correct := 0
	for j := 0; j < predictions.Cols(); j++ {
		if argmax(last, j) == argmax(labels, j) {
			correct++
		}
	}

	return 1 - float64(correct)/float64(predictions.Cols()), nil
}

// SequenceRecallError scores exact recall: predictions are binarized at the
// threshold and a sequence counts as failed when any element disagrees with
// its target. The result is the fraction of failed sequences.
func SequenceRecallError(predictions, targets *nn.Cube, threshold float64) (float64, error) {
	if predictions == nil || targets == nil ||
		predictions.Rows() != targets.Rows() ||
		predictions.Cols() != targets.Cols() ||
		predictions.Steps() != targets.Steps() {
		return 0, errors.NewValidationError(errors.CodeInvalidInput,
			"predictions and targets must have identical dimensions")
	}

	failed := 0
	for j := 0; j < predictions.Cols(); j++ {
		match := true
		for t := 0; t < predictions.Steps() && match; t++ {
			for i := 0; i < predictions.Rows(); i++ {
				v := 0.0
				if predictions.At(i, j, t) > threshold {
					v = 1
				}
				if v != targets.At(i, j, t) {
					match = false
					break
				}
			}
		}
		if !match {
			failed++
		}
	}

	return float64(failed) / float64(predictions.Cols()), nil
}

// OneStepAheadError scores series forecasting: predictions at step t are
// matched against the actual values at step t+1 and the error is the root of
// the summed squared differences, normalized by the number of compared pairs.
func OneStepAheadError(actual, predicted *nn.Cube) (float64, error) {
	if actual == nil || predicted == nil {
		return 0, errors.NewValidationError(errors.CodeInvalidInput,
			"actual and predicted cubes are required")
	}

	actualVec := actual.Vectorize()
	predictedVec := predicted.Vectorize()
	if len(actualVec) != len(predictedVec) {
		return 0, errors.NewValidationError(errors.CodeInvalidInput,
			"actual and predicted cubes must have the same number of elements")
	}
	if len(actualVec) < 2 {
		return 0, errors.NewValidationError(errors.CodeInsufficientData,
			"need at least two values to score one-step-ahead predictions")
	}

	sum := 0.0
	for i := 1; i < len(actualVec); i++ {
		diff := actualVec[i] - predictedVec[i-1]
		sum += diff * diff
	}

	return math.Sqrt(sum) / float64(len(actualVec)-1), nil
}
