package nn

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/seqforge/seqnet/pkg/constants"
)

// Dropout randomly zeroes activations during training with probability ratio
// and scales the survivors by 1/(1-ratio), so inference needs no rescaling.
// Outside of training the layer is a no-op.
type Dropout struct {
	ratio float64

	rng   *rand.Rand
	masks []*mat.Dense
}

// NewDropout creates a dropout layer with the given drop probability.
func NewDropout(ratio float64) *Dropout {
	return &Dropout{ratio: ratio}
}

func (l *Dropout) Name() string                 { return constants.LayerTypeDropout }
func (l *Dropout) InputSize() int               { return 0 }
func (l *Dropout) OutputSize() int              { return 0 }
func (l *Dropout) NumParameters() int           { return 0 }
func (l *Dropout) Bind(params, grads []float64) {}
func (l *Dropout) Clone() Layer                 { return NewDropout(l.ratio) }

// Ratio returns the drop probability.
func (l *Dropout) Ratio() float64 { return l.ratio }

func (l *Dropout) ResetParameters(rng *rand.Rand) {
	l.rng = rng
}

func (l *Dropout) ResetState(batch, steps int) {
	l.masks = make([]*mat.Dense, steps)
}

func (l *Dropout) Forward(t int, input *mat.Dense, train bool) *mat.Dense {
	if !train || l.ratio <= 0 {
		l.masks[t] = nil
		return input
	}

	rng := l.rng
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
		l.rng = rng
	}

	rows, cols := input.Dims()
	scale := 1.0 / (1.0 - l.ratio)
	mask := mat.NewDense(rows, cols, nil)
	out := mat.NewDense(rows, cols, nil)
	for j := 0; j < cols; j++ {
		for i := 0; i < rows; i++ {
			if rng.Float64() >= l.ratio {
				mask.Set(i, j, scale)
				out.Set(i, j, input.At(i, j)*scale)
			}
		}
	}
	l.masks[t] = mask
	return out
}

func (l *Dropout) Backward(t int, upstream *mat.Dense) *mat.Dense {
	mask := l.masks[t]
	if mask == nil {
		return upstream
	}

	rows, cols := upstream.Dims()
	dx := mat.NewDense(rows, cols, nil)
	dx.MulElem(upstream, mask)
	return dx
}
