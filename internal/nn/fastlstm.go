package nn

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/seqforge/seqnet/pkg/constants"
)

// FastLSTM is an LSTM cell without peephole connections. All four gate
// pre-activations are computed with one fused matrix product per direction,
// stacked in the row order input, forget, candidate, output:
//
//	[i; f; g; o] = W x_t + U h_{t-1} + b
//	c_t = sigmoid(f) . c_{t-1} + sigmoid(i) . tanh(g)
//	h_t = sigmoid(o) . tanh(c_t)
//
// The forget gate rows of the bias are initialized to one.
type FastLSTM struct {
	in  int
	out int

	w *mat.Dense
	u *mat.Dense
	b []float64

	gw *mat.Dense
	gu *mat.Dense
	gb []float64

	inputs []*mat.Dense
	hidden []*mat.Dense
	cell   []*mat.Dense
	gates  []*mat.Dense
	tanhC  []*mat.Dense

	dhNext *mat.Dense
	dcNext *mat.Dense
	batch  int
}

// NewFastLSTM creates a fused LSTM cell mapping in inputs to out hidden units.
func NewFastLSTM(in, out int) *FastLSTM {
	return &FastLSTM{in: in, out: out}
}

func (l *FastLSTM) Name() string    { return constants.LayerTypeFastLSTM }
func (l *FastLSTM) InputSize() int  { return l.in }
func (l *FastLSTM) OutputSize() int { return l.out }
func (l *FastLSTM) Clone() Layer    { return NewFastLSTM(l.in, l.out) }

func (l *FastLSTM) NumParameters() int {
	return 4*l.out*l.in + 4*l.out*l.out + 4*l.out
}

func (l *FastLSTM) Bind(params, grads []float64) {
	wn := 4 * l.out * l.in
	un := 4 * l.out * l.out

	l.w = denseView(params[:wn], 4*l.out, l.in)
	l.u = denseView(params[wn:wn+un], 4*l.out, l.out)
	l.b = params[wn+un : wn+un+4*l.out]

	l.gw = denseView(grads[:wn], 4*l.out, l.in)
	l.gu = denseView(grads[wn:wn+un], 4*l.out, l.out)
	l.gb = grads[wn+un : wn+un+4*l.out]
}

func (l *FastLSTM) ResetParameters(rng *rand.Rand) {
	glorotFill(l.w.RawMatrix().Data, l.in, l.out, rng)
	glorotFill(l.u.RawMatrix().Data, l.out, l.out, rng)
	zeroFill(l.b)
	constFill(l.b[l.out:2*l.out], 1.0)
}

func (l *FastLSTM) ResetState(batch, steps int) {
	l.inputs = make([]*mat.Dense, steps)
	l.hidden = make([]*mat.Dense, steps)
	l.cell = make([]*mat.Dense, steps)
	l.gates = make([]*mat.Dense, steps)
	l.tanhC = make([]*mat.Dense, steps)
	l.dhNext = nil
	l.dcNext = nil
	l.batch = batch
}

func (l *FastLSTM) Forward(t int, input *mat.Dense, train bool) *mat.Dense {
	var hPrev, cPrev *mat.Dense
	if t > 0 {
		hPrev = l.hidden[t-1]
		cPrev = l.cell[t-1]
	}

	pre := mat.NewDense(4*l.out, l.batch, nil)
	pre.Mul(l.w, input)
	if hPrev != nil {
		var rec mat.Dense
		rec.Mul(l.u, hPrev)
		pre.Add(pre, &rec)
	}
	addColBroadcast(pre, l.b)

	gates := mat.NewDense(4*l.out, l.batch, nil)
	c := mat.NewDense(l.out, l.batch, nil)
	tc := mat.NewDense(l.out, l.batch, nil)
	h := mat.NewDense(l.out, l.batch, nil)

	for j := 0; j < l.batch; j++ {
		for i := 0; i < l.out; i++ {
			iv := sigmoid(pre.At(i, j))
			fv := sigmoid(pre.At(l.out+i, j))
			gv := math.Tanh(pre.At(2*l.out+i, j))
			ov := sigmoid(pre.At(3*l.out+i, j))

			cp := 0.0
			if cPrev != nil {
				cp = cPrev.At(i, j)
			}
			cv := fv*cp + iv*gv
			tcv := math.Tanh(cv)

			gates.Set(i, j, iv)
			gates.Set(l.out+i, j, fv)
			gates.Set(2*l.out+i, j, gv)
			gates.Set(3*l.out+i, j, ov)
			c.Set(i, j, cv)
			tc.Set(i, j, tcv)
			h.Set(i, j, ov*tcv)
		}
	}

	l.inputs[t] = input
	l.gates[t] = gates
	l.cell[t] = c
	l.tanhC[t] = tc
	l.hidden[t] = h
	return h
}

func (l *FastLSTM) Backward(t int, upstream *mat.Dense) *mat.Dense {
	var cPrev *mat.Dense
	if t > 0 {
		cPrev = l.cell[t-1]
	}

	gates := l.gates[t]
	tc := l.tanhC[t]

	dGates := mat.NewDense(4*l.out, l.batch, nil)
	dcPrev := mat.NewDense(l.out, l.batch, nil)

	for j := 0; j < l.batch; j++ {
		for i := 0; i < l.out; i++ {
			dh := upstream.At(i, j)
			if l.dhNext != nil {
				dh += l.dhNext.At(i, j)
			}

			iv := gates.At(i, j)
			fv := gates.At(l.out+i, j)
			gv := gates.At(2*l.out+i, j)
			ov := gates.At(3*l.out+i, j)
			tcv := tc.At(i, j)

			dc := dh * ov * (1.0 - tcv*tcv)
			if l.dcNext != nil {
				dc += l.dcNext.At(i, j)
			}

			cp := 0.0
			if cPrev != nil {
				cp = cPrev.At(i, j)
			}

			dGates.Set(i, j, dc*gv*iv*(1.0-iv))
			dGates.Set(l.out+i, j, dc*cp*fv*(1.0-fv))
			dGates.Set(2*l.out+i, j, dc*iv*(1.0-gv*gv))
			dGates.Set(3*l.out+i, j, dh*tcv*ov*(1.0-ov))
			dcPrev.Set(i, j, dc*fv)
		}
	}

	accumOuter(l.gw, dGates, l.inputs[t])
	accumRowSums(l.gb, dGates)

	if t > 0 {
		accumOuter(l.gu, dGates, l.hidden[t-1])

		dhPrev := mat.NewDense(l.out, l.batch, nil)
		addMulT(dhPrev, l.u, dGates)
		l.dhNext = dhPrev
		l.dcNext = dcPrev
	} else {
		l.dhNext = nil
		l.dcNext = nil
	}

	dx := mat.NewDense(l.in, l.batch, nil)
	addMulT(dx, l.w, dGates)
	return dx
}
