package nn

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Layer is one module of a recurrent network. Parameters and their gradients
// live in flat vectors owned by the enclosing network; Bind hands each layer
// windows into those vectors, so optimizer updates are visible to the layer
// without copying.
//
// Forward is called with increasing time steps t = 0..steps-1 after
// ResetState. Backward is called with strictly decreasing t; recurrent layers
// carry their through-time gradient state between calls. Matrices returned by
// Forward and Backward are owned by the layer and must not be modified by the
// caller.
type Layer interface {
	// Name returns the layer type identifier used in snapshots.
	Name() string

	// InputSize returns the expected input dimension, or 0 when the layer
	// accepts any input shape.
	InputSize() int

	// OutputSize returns the output dimension, or 0 when the layer preserves
	// the input shape.
	OutputSize() int

	// NumParameters returns the number of trainable parameters.
	NumParameters() int

	// Bind adopts parameter and gradient windows of length NumParameters.
	Bind(params, grads []float64)

	// ResetParameters writes initial weights into the bound parameter window.
	ResetParameters(rng *rand.Rand)

	// ResetState prepares per-sequence state and caches for a pass over
	// a batch of the given size and number of time steps.
	ResetState(batch, steps int)

	// Forward computes the layer output for time step t.
	Forward(t int, input *mat.Dense, train bool) *mat.Dense

	// Backward consumes the loss gradient with respect to the layer output at
	// time step t, accumulates parameter gradients and returns the gradient
	// with respect to the layer input.
	Backward(t int, upstream *mat.Dense) *mat.Dense

	// Clone returns an unbound copy of the layer with the same configuration.
	Clone() Layer
}

// glorotFill initializes a parameter window with zero-mean Gaussian values
// scaled by sqrt(2 / (fanIn + fanOut)).
func glorotFill(w []float64, fanIn, fanOut int, rng *rand.Rand) {
	sigma := math.Sqrt(2.0 / float64(fanIn+fanOut))
	for i := range w {
		w[i] = rng.NormFloat64() * sigma
	}
}

func zeroFill(w []float64) {
	for i := range w {
		w[i] = 0
	}
}

func constFill(w []float64, v float64) {
	for i := range w {
		w[i] = v
	}
}

// denseView wraps a parameter window as a rows×cols matrix without copying.
func denseView(w []float64, rows, cols int) *mat.Dense {
	return mat.NewDense(rows, cols, w)
}

// addColBroadcast adds the vector b to every column of dst.
func addColBroadcast(dst *mat.Dense, b []float64) {
	rows, cols := dst.Dims()
	for j := 0; j < cols; j++ {
		for i := 0; i < rows; i++ {
			dst.Set(i, j, dst.At(i, j)+b[i])
		}
	}
}

// accumRowSums adds the row sums of m into the vector g.
func accumRowSums(g []float64, m *mat.Dense) {
	rows, cols := m.Dims()
	for i := 0; i < rows; i++ {
		s := 0.0
		for j := 0; j < cols; j++ {
			s += m.At(i, j)
		}
		g[i] += s
	}
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
