// Package optimize provides stochastic gradient optimizers over separable
// objective functions f(p) = sum_i f_i(p).
package optimize

import (
	"context"
	"math/rand"
)

// Problem is a separable objective. Functions are visited in an internal
// order that Shuffle permutes; begin indexes into that order.
type Problem interface {
	// NumFunctions returns the number of separable terms.
	NumFunctions() int

	// Shuffle permutes the visitation order of the terms.
	Shuffle(rng *rand.Rand)

	// Evaluate returns the summed objective of batchSize terms starting at
	// begin, without touching gradients.
	Evaluate(params []float64, begin, batchSize int) float64

	// EvaluateWithGradient returns the summed objective of batchSize terms
	// starting at begin and writes the summed gradient into grad.
	EvaluateWithGradient(params []float64, begin, batchSize int, grad []float64) float64
}

// Optimizer minimizes a separable objective by updating params in place and
// returns the final objective over all terms.
type Optimizer interface {
	Optimize(ctx context.Context, p Problem, params []float64) (float64, error)
}
