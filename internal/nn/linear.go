package nn

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/seqforge/seqnet/pkg/constants"
)

// Identity passes its input through unchanged. It is useful as a leading
// module so the first learnable layer defines the expected input size.
type Identity struct{}

// NewIdentity creates an identity layer.
func NewIdentity() *Identity { return &Identity{} }

func (l *Identity) Name() string                   { return constants.LayerTypeIdentity }
func (l *Identity) InputSize() int                 { return 0 }
func (l *Identity) OutputSize() int                { return 0 }
func (l *Identity) NumParameters() int             { return 0 }
func (l *Identity) Bind(params, grads []float64)   {}
func (l *Identity) ResetParameters(rng *rand.Rand) {}
func (l *Identity) ResetState(batch, steps int)    {}
func (l *Identity) Clone() Layer                   { return NewIdentity() }

func (l *Identity) Forward(t int, input *mat.Dense, train bool) *mat.Dense {
	return input
}

func (l *Identity) Backward(t int, upstream *mat.Dense) *mat.Dense {
	return upstream
}

// Linear is a fully connected layer with bias: out = W*x + b.
type Linear struct {
	in  int
	out int

	w *mat.Dense
	b []float64

	gw *mat.Dense
	gb []float64

	inputs  []*mat.Dense
	outputs []*mat.Dense
	deltas  []*mat.Dense
}

// NewLinear creates a fully connected layer mapping in inputs to out outputs.
func NewLinear(in, out int) *Linear {
	return &Linear{in: in, out: out}
}

func (l *Linear) Name() string       { return constants.LayerTypeLinear }
func (l *Linear) InputSize() int     { return l.in }
func (l *Linear) OutputSize() int    { return l.out }
func (l *Linear) NumParameters() int { return l.out*l.in + l.out }
func (l *Linear) Clone() Layer       { return NewLinear(l.in, l.out) }

func (l *Linear) Bind(params, grads []float64) {
	nw := l.out * l.in
	l.w = denseView(params[:nw], l.out, l.in)
	l.b = params[nw : nw+l.out]
	l.gw = denseView(grads[:nw], l.out, l.in)
	l.gb = grads[nw : nw+l.out]
}

func (l *Linear) ResetParameters(rng *rand.Rand) {
	glorotFill(l.w.RawMatrix().Data, l.in, l.out, rng)
	zeroFill(l.b)
}

func (l *Linear) ResetState(batch, steps int) {
	l.inputs = make([]*mat.Dense, steps)
	l.outputs = make([]*mat.Dense, steps)
	l.deltas = make([]*mat.Dense, steps)
}

func (l *Linear) Forward(t int, input *mat.Dense, train bool) *mat.Dense {
	_, batch := input.Dims()
	out := mat.NewDense(l.out, batch, nil)
	out.Mul(l.w, input)
	addColBroadcast(out, l.b)

	l.inputs[t] = input
	l.outputs[t] = out
	return out
}

func (l *Linear) Backward(t int, upstream *mat.Dense) *mat.Dense {
	var gw mat.Dense
	gw.Mul(upstream, l.inputs[t].T())
	l.gw.Add(l.gw, &gw)
	accumRowSums(l.gb, upstream)

	_, batch := upstream.Dims()
	dx := mat.NewDense(l.in, batch, nil)
	dx.Mul(l.w.T(), upstream)
	l.deltas[t] = dx
	return dx
}

// LinearNoBias is a fully connected layer without bias: out = W*x.
type LinearNoBias struct {
	in  int
	out int

	w  *mat.Dense
	gw *mat.Dense

	inputs []*mat.Dense
}

// NewLinearNoBias creates a bias-free fully connected layer.
func NewLinearNoBias(in, out int) *LinearNoBias {
	return &LinearNoBias{in: in, out: out}
}

func (l *LinearNoBias) Name() string       { return constants.LayerTypeLinearNoBias }
func (l *LinearNoBias) InputSize() int     { return l.in }
func (l *LinearNoBias) OutputSize() int    { return l.out }
func (l *LinearNoBias) NumParameters() int { return l.out * l.in }
func (l *LinearNoBias) Clone() Layer       { return NewLinearNoBias(l.in, l.out) }

func (l *LinearNoBias) Bind(params, grads []float64) {
	l.w = denseView(params, l.out, l.in)
	l.gw = denseView(grads, l.out, l.in)
}

func (l *LinearNoBias) ResetParameters(rng *rand.Rand) {
	glorotFill(l.w.RawMatrix().Data, l.in, l.out, rng)
}

func (l *LinearNoBias) ResetState(batch, steps int) {
	l.inputs = make([]*mat.Dense, steps)
}

func (l *LinearNoBias) Forward(t int, input *mat.Dense, train bool) *mat.Dense {
	_, batch := input.Dims()
	out := mat.NewDense(l.out, batch, nil)
	out.Mul(l.w, input)

	l.inputs[t] = input
	return out
}

func (l *LinearNoBias) Backward(t int, upstream *mat.Dense) *mat.Dense {
	var gw mat.Dense
	gw.Mul(upstream, l.inputs[t].T())
	l.gw.Add(l.gw, &gw)

	_, batch := upstream.Dims()
	dx := mat.NewDense(l.in, batch, nil)
	dx.Mul(l.w.T(), upstream)
	return dx
}

// Add holds a learned bias vector and adds it to every column of its input.
// Inside a Recurrent wrapper it doubles as the start module providing the
// initial hidden activation.
type Add struct {
	size int

	b  []float64
	gb []float64
}

// NewAdd creates a learned bias layer of the given size.
func NewAdd(size int) *Add {
	return &Add{size: size}
}

func (l *Add) Name() string                { return constants.LayerTypeAdd }
func (l *Add) InputSize() int              { return l.size }
func (l *Add) OutputSize() int             { return l.size }
func (l *Add) NumParameters() int          { return l.size }
func (l *Add) Clone() Layer                { return NewAdd(l.size) }
func (l *Add) ResetState(batch, steps int) {}

func (l *Add) Bind(params, grads []float64) {
	l.b = params
	l.gb = grads
}

func (l *Add) ResetParameters(rng *rand.Rand) {
	glorotFill(l.b, l.size, l.size, rng)
}

func (l *Add) Forward(t int, input *mat.Dense, train bool) *mat.Dense {
	rows, batch := input.Dims()
	out := mat.NewDense(rows, batch, nil)
	out.Copy(input)
	addColBroadcast(out, l.b)
	return out
}

func (l *Add) Backward(t int, upstream *mat.Dense) *mat.Dense {
	accumRowSums(l.gb, upstream)
	return upstream
}
