package nn

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/seqforge/seqnet/pkg/constants"
)

// Sigmoid applies the logistic function element-wise.
type Sigmoid struct {
	outputs []*mat.Dense
}

// NewSigmoid creates a sigmoid activation layer.
func NewSigmoid() *Sigmoid { return &Sigmoid{} }

func (l *Sigmoid) Name() string                   { return constants.LayerTypeSigmoid }
func (l *Sigmoid) InputSize() int                 { return 0 }
func (l *Sigmoid) OutputSize() int                { return 0 }
func (l *Sigmoid) NumParameters() int             { return 0 }
func (l *Sigmoid) Bind(params, grads []float64)   {}
func (l *Sigmoid) ResetParameters(rng *rand.Rand) {}
func (l *Sigmoid) Clone() Layer                   { return NewSigmoid() }

func (l *Sigmoid) ResetState(batch, steps int) {
	l.outputs = make([]*mat.Dense, steps)
}

func (l *Sigmoid) Forward(t int, input *mat.Dense, train bool) *mat.Dense {
	rows, cols := input.Dims()
	out := mat.NewDense(rows, cols, nil)
	for j := 0; j < cols; j++ {
		for i := 0; i < rows; i++ {
			out.Set(i, j, sigmoid(input.At(i, j)))
		}
	}
	l.outputs[t] = out
	return out
}

func (l *Sigmoid) Backward(t int, upstream *mat.Dense) *mat.Dense {
	y := l.outputs[t]
	rows, cols := upstream.Dims()
	dx := mat.NewDense(rows, cols, nil)
	for j := 0; j < cols; j++ {
		for i := 0; i < rows; i++ {
			v := y.At(i, j)
			dx.Set(i, j, upstream.At(i, j)*v*(1.0-v))
		}
	}
	return dx
}

// LogSoftMax applies a numerically stable log-softmax over each column.
type LogSoftMax struct {
	outputs []*mat.Dense
}

// NewLogSoftMax creates a log-softmax layer.
func NewLogSoftMax() *LogSoftMax { return &LogSoftMax{} }

func (l *LogSoftMax) Name() string                   { return constants.LayerTypeLogSoftMax }
func (l *LogSoftMax) InputSize() int                 { return 0 }
func (l *LogSoftMax) OutputSize() int                { return 0 }
func (l *LogSoftMax) NumParameters() int             { return 0 }
func (l *LogSoftMax) Bind(params, grads []float64)   {}
func (l *LogSoftMax) ResetParameters(rng *rand.Rand) {}
func (l *LogSoftMax) Clone() Layer                   { return NewLogSoftMax() }

func (l *LogSoftMax) ResetState(batch, steps int) {
	l.outputs = make([]*mat.Dense, steps)
}

func (l *LogSoftMax) Forward(t int, input *mat.Dense, train bool) *mat.Dense {
	rows, cols := input.Dims()
	out := mat.NewDense(rows, cols, nil)
	for j := 0; j < cols; j++ {
		max := input.At(0, j)
		for i := 1; i < rows; i++ {
			if v := input.At(i, j); v > max {
				max = v
			}
		}
		sum := 0.0
		for i := 0; i < rows; i++ {
			sum += math.Exp(input.At(i, j) - max)
		}
		lse := max + math.Log(sum)
		for i := 0; i < rows; i++ {
			out.Set(i, j, input.At(i, j)-lse)
		}
	}
	l.outputs[t] = out
	return out
}

func (l *LogSoftMax) Backward(t int, upstream *mat.Dense) *mat.Dense {
	y := l.outputs[t]
	rows, cols := upstream.Dims()
	dx := mat.NewDense(rows, cols, nil)
	for j := 0; j < cols; j++ {
		sum := 0.0
		for i := 0; i < rows; i++ {
			sum += upstream.At(i, j)
		}
		for i := 0; i < rows; i++ {
			dx.Set(i, j, upstream.At(i, j)-math.Exp(y.At(i, j))*sum)
		}
	}
	return dx
}
