package nn

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/seqforge/seqnet/pkg/constants"
)

// Recurrent wires four modules into a vanilla recurrent cell:
//
//	h_t = transfer(input(x_t) + feedback(h_{t-1}))
//
// where input and feedback are linear maps and the start module supplies the
// initial hidden activation h_{-1} as a learned vector. rho records the
// truncation window the cell was configured with.
type Recurrent struct {
	start    *Add
	input    *Linear
	feedback *Linear
	transfer Layer
	rho      int

	hidden []*mat.Dense
	dhNext *mat.Dense
	batch  int
}

// NewRecurrent assembles a recurrent cell from its four modules. The start
// module size and the feedback dimensions must agree with the input module
// output.
func NewRecurrent(start *Add, input, feedback *Linear, transfer Layer, rho int) *Recurrent {
	return &Recurrent{
		start:    start,
		input:    input,
		feedback: feedback,
		transfer: transfer,
		rho:      rho,
	}
}

func (l *Recurrent) Name() string    { return constants.LayerTypeRecurrent }
func (l *Recurrent) InputSize() int  { return l.input.InputSize() }
func (l *Recurrent) OutputSize() int { return l.input.OutputSize() }

// Rho returns the truncation window the cell was configured with.
func (l *Recurrent) Rho() int { return l.rho }

// Transfer returns the transfer module applied to the summed activations.
func (l *Recurrent) Transfer() Layer { return l.transfer }

func (l *Recurrent) NumParameters() int {
	return l.start.NumParameters() +
		l.input.NumParameters() +
		l.feedback.NumParameters() +
		l.transfer.NumParameters()
}

func (l *Recurrent) Clone() Layer {
	return NewRecurrent(
		l.start.Clone().(*Add),
		l.input.Clone().(*Linear),
		l.feedback.Clone().(*Linear),
		l.transfer.Clone(),
		l.rho,
	)
}

func (l *Recurrent) Bind(params, grads []float64) {
	off := 0
	for _, sub := range []Layer{l.start, l.input, l.feedback, l.transfer} {
		n := sub.NumParameters()
		sub.Bind(params[off:off+n], grads[off:off+n])
		off += n
	}
}

func (l *Recurrent) ResetParameters(rng *rand.Rand) {
	l.start.ResetParameters(rng)
	l.input.ResetParameters(rng)
	l.feedback.ResetParameters(rng)
	l.transfer.ResetParameters(rng)
}

func (l *Recurrent) ResetState(batch, steps int) {
	l.start.ResetState(batch, steps)
	l.input.ResetState(batch, steps)
	l.feedback.ResetState(batch, steps)
	l.transfer.ResetState(batch, steps)

	l.hidden = make([]*mat.Dense, steps)
	l.dhNext = nil
	l.batch = batch
}

func (l *Recurrent) Forward(t int, input *mat.Dense, train bool) *mat.Dense {
	h := l.OutputSize()

	var prev *mat.Dense
	if t == 0 {
		prev = l.start.Forward(0, mat.NewDense(h, l.batch, nil), train)
	} else {
		prev = l.hidden[t-1]
	}

	pre := mat.NewDense(h, l.batch, nil)
	pre.Add(l.input.Forward(t, input, train), l.feedback.Forward(t, prev, train))

	out := l.transfer.Forward(t, pre, train)
	l.hidden[t] = out
	return out
}

func (l *Recurrent) Backward(t int, upstream *mat.Dense) *mat.Dense {
	h := l.OutputSize()

	dh := mat.NewDense(h, l.batch, nil)
	dh.Copy(upstream)
	if l.dhNext != nil {
		dh.Add(dh, l.dhNext)
	}

	da := l.transfer.Backward(t, dh)
	dx := l.input.Backward(t, da)
	dprev := l.feedback.Backward(t, da)

	if t == 0 {
		l.start.Backward(0, dprev)
		l.dhNext = nil
	} else {
		l.dhNext = dprev
	}
	return dx
}
