package nn

import (
	"gonum.org/v1/gonum/mat"

	"github.com/seqforge/seqnet/pkg/constants"
)

// Loss scores network output against a target matrix for one time step and
// produces the gradient of the score with respect to the output.
type Loss interface {
	// Name returns the loss identifier used in snapshots.
	Name() string

	// Forward returns the loss for a batch of output columns.
	Forward(output, target *mat.Dense) float64

	// Backward writes the gradient of the loss with respect to output into
	// delta, which has the same dimensions as output.
	Backward(output, target *mat.Dense, delta *mat.Dense)
}

// MeanSquaredError sums squared differences over feature rows and averages
// over the batch columns.
type MeanSquaredError struct{}

// NewMeanSquaredError creates a mean squared error loss.
func NewMeanSquaredError() *MeanSquaredError { return &MeanSquaredError{} }

func (*MeanSquaredError) Name() string { return constants.LossMeanSquaredError }

func (*MeanSquaredError) Forward(output, target *mat.Dense) float64 {
	rows, cols := output.Dims()
	sum := 0.0
	for j := 0; j < cols; j++ {
		for i := 0; i < rows; i++ {
			d := output.At(i, j) - target.At(i, j)
			sum += d * d
		}
	}
	return sum / float64(cols)
}

func (*MeanSquaredError) Backward(output, target *mat.Dense, delta *mat.Dense) {
	rows, cols := output.Dims()
	scale := 2.0 / float64(cols)
	for j := 0; j < cols; j++ {
		for i := 0; i < rows; i++ {
			delta.Set(i, j, scale*(output.At(i, j)-target.At(i, j)))
		}
	}
}

// NegativeLogLikelihood expects log-probability outputs, for example from a
// LogSoftMax layer, and class-ID targets. The target matrix carries one row
// whose entries are 1-based class indices.
type NegativeLogLikelihood struct{}

// NewNegativeLogLikelihood creates a negative log likelihood loss.
func NewNegativeLogLikelihood() *NegativeLogLikelihood { return &NegativeLogLikelihood{} }

func (*NegativeLogLikelihood) Name() string { return constants.LossNegativeLogLikelihood }

func (*NegativeLogLikelihood) Forward(output, target *mat.Dense) float64 {
	_, cols := output.Dims()
	sum := 0.0
	for j := 0; j < cols; j++ {
		class := int(target.At(0, j)) - 1
		sum -= output.At(class, j)
	}
	return sum
}

func (*NegativeLogLikelihood) Backward(output, target *mat.Dense, delta *mat.Dense) {
	rows, cols := output.Dims()
	for j := 0; j < cols; j++ {
		for i := 0; i < rows; i++ {
			delta.Set(i, j, 0)
		}
		class := int(target.At(0, j)) - 1
		delta.Set(class, j, -1)
	}
}

// lossByName maps a loss identifier to a fresh instance.
func lossByName(name string) (Loss, bool) {
	switch name {
	case constants.LossMeanSquaredError:
		return NewMeanSquaredError(), true
	case constants.LossNegativeLogLikelihood:
		return NewNegativeLogLikelihood(), true
	default:
		return nil, false
	}
}
