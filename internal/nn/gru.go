package nn

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/seqforge/seqnet/pkg/constants"
)

// GRU is a gated recurrent unit. The update and reset gates are computed with
// one fused product, stacked in the row order update, reset; the candidate
// activation applies the reset gate to the previous hidden state:
//
//	[z; r] = sigmoid(Wg x_t + Ug h_{t-1} + bg)
//	n_t = tanh(Wn x_t + Un (r_t . h_{t-1}) + bn)
//	h_t = z_t . h_{t-1} + (1 - z_t) . n_t
type GRU struct {
	in  int
	out int

	wg *mat.Dense
	ug *mat.Dense
	bg []float64
	wn *mat.Dense
	un *mat.Dense
	bn []float64

	gwg *mat.Dense
	gug *mat.Dense
	gbg []float64
	gwn *mat.Dense
	gun *mat.Dense
	gbn []float64

	inputs []*mat.Dense
	hidden []*mat.Dense
	gates  []*mat.Dense
	cand   []*mat.Dense
	resetH []*mat.Dense

	dhNext *mat.Dense
	batch  int
}

// NewGRU creates a GRU cell mapping in inputs to out hidden units.
func NewGRU(in, out int) *GRU {
	return &GRU{in: in, out: out}
}

func (l *GRU) Name() string    { return constants.LayerTypeGRU }
func (l *GRU) InputSize() int  { return l.in }
func (l *GRU) OutputSize() int { return l.out }
func (l *GRU) Clone() Layer    { return NewGRU(l.in, l.out) }

func (l *GRU) NumParameters() int {
	return 3*l.out*l.in + 3*l.out*l.out + 3*l.out
}

func (l *GRU) Bind(params, grads []float64) {
	wgn := 2 * l.out * l.in
	ugn := 2 * l.out * l.out
	wnn := l.out * l.in
	unn := l.out * l.out

	off := 0
	l.wg = denseView(params[off:off+wgn], 2*l.out, l.in)
	l.gwg = denseView(grads[off:off+wgn], 2*l.out, l.in)
	off += wgn
	l.ug = denseView(params[off:off+ugn], 2*l.out, l.out)
	l.gug = denseView(grads[off:off+ugn], 2*l.out, l.out)
	off += ugn
	l.bg = params[off : off+2*l.out]
	l.gbg = grads[off : off+2*l.out]
	off += 2 * l.out

	l.wn = denseView(params[off:off+wnn], l.out, l.in)
	l.gwn = denseView(grads[off:off+wnn], l.out, l.in)
	off += wnn
	l.un = denseView(params[off:off+unn], l.out, l.out)
	l.gun = denseView(grads[off:off+unn], l.out, l.out)
	off += unn
	l.bn = params[off : off+l.out]
	l.gbn = grads[off : off+l.out]
}

func (l *GRU) ResetParameters(rng *rand.Rand) {
	glorotFill(l.wg.RawMatrix().Data, l.in, l.out, rng)
	glorotFill(l.ug.RawMatrix().Data, l.out, l.out, rng)
	zeroFill(l.bg)
	glorotFill(l.wn.RawMatrix().Data, l.in, l.out, rng)
	glorotFill(l.un.RawMatrix().Data, l.out, l.out, rng)
	zeroFill(l.bn)
}

func (l *GRU) ResetState(batch, steps int) {
	l.inputs = make([]*mat.Dense, steps)
	l.hidden = make([]*mat.Dense, steps)
	l.gates = make([]*mat.Dense, steps)
	l.cand = make([]*mat.Dense, steps)
	l.resetH = make([]*mat.Dense, steps)
	l.dhNext = nil
	l.batch = batch
}

func (l *GRU) Forward(t int, input *mat.Dense, train bool) *mat.Dense {
	var hPrev *mat.Dense
	if t > 0 {
		hPrev = l.hidden[t-1]
	}

	preG := mat.NewDense(2*l.out, l.batch, nil)
	preG.Mul(l.wg, input)
	if hPrev != nil {
		var rec mat.Dense
		rec.Mul(l.ug, hPrev)
		preG.Add(preG, &rec)
	}
	addColBroadcast(preG, l.bg)

	gates := mat.NewDense(2*l.out, l.batch, nil)
	rh := mat.NewDense(l.out, l.batch, nil)
	for j := 0; j < l.batch; j++ {
		for i := 0; i < l.out; i++ {
			zv := sigmoid(preG.At(i, j))
			rv := sigmoid(preG.At(l.out+i, j))
			gates.Set(i, j, zv)
			gates.Set(l.out+i, j, rv)
			if hPrev != nil {
				rh.Set(i, j, rv*hPrev.At(i, j))
			}
		}
	}

	preN := mat.NewDense(l.out, l.batch, nil)
	preN.Mul(l.wn, input)
	var recN mat.Dense
	recN.Mul(l.un, rh)
	preN.Add(preN, &recN)
	addColBroadcast(preN, l.bn)

	cand := mat.NewDense(l.out, l.batch, nil)
	h := mat.NewDense(l.out, l.batch, nil)
	for j := 0; j < l.batch; j++ {
		for i := 0; i < l.out; i++ {
			nv := math.Tanh(preN.At(i, j))
			hp := 0.0
			if hPrev != nil {
				hp = hPrev.At(i, j)
			}
			zv := gates.At(i, j)
			cand.Set(i, j, nv)
			h.Set(i, j, zv*hp+(1.0-zv)*nv)
		}
	}

	l.inputs[t] = input
	l.gates[t] = gates
	l.cand[t] = cand
	l.resetH[t] = rh
	l.hidden[t] = h
	return h
}

func (l *GRU) Backward(t int, upstream *mat.Dense) *mat.Dense {
	var hPrev *mat.Dense
	if t > 0 {
		hPrev = l.hidden[t-1]
	}

	gates := l.gates[t]
	cand := l.cand[t]

	dn := mat.NewDense(l.out, l.batch, nil)
	dh := mat.NewDense(l.out, l.batch, nil)
	for j := 0; j < l.batch; j++ {
		for i := 0; i < l.out; i++ {
			v := upstream.At(i, j)
			if l.dhNext != nil {
				v += l.dhNext.At(i, j)
			}
			dh.Set(i, j, v)

			zv := gates.At(i, j)
			nv := cand.At(i, j)
			dn.Set(i, j, v*(1.0-zv)*(1.0-nv*nv))
		}
	}

	// Gradient with respect to the reset-scaled hidden state.
	s := mat.NewDense(l.out, l.batch, nil)
	s.Mul(l.un.T(), dn)

	dGates := mat.NewDense(2*l.out, l.batch, nil)
	for j := 0; j < l.batch; j++ {
		for i := 0; i < l.out; i++ {
			hp := 0.0
			if hPrev != nil {
				hp = hPrev.At(i, j)
			}
			zv := gates.At(i, j)
			rv := gates.At(l.out+i, j)
			nv := cand.At(i, j)

			dGates.Set(i, j, dh.At(i, j)*(hp-nv)*zv*(1.0-zv))
			dGates.Set(l.out+i, j, s.At(i, j)*hp*rv*(1.0-rv))
		}
	}

	x := l.inputs[t]
	accumOuter(l.gwg, dGates, x)
	accumRowSums(l.gbg, dGates)
	accumOuter(l.gwn, dn, x)
	accumRowSums(l.gbn, dn)
	accumOuter(l.gun, dn, l.resetH[t])

	if t > 0 {
		accumOuter(l.gug, dGates, hPrev)

		dhPrev := mat.NewDense(l.out, l.batch, nil)
		addMulT(dhPrev, l.ug, dGates)
		for j := 0; j < l.batch; j++ {
			for i := 0; i < l.out; i++ {
				zv := gates.At(i, j)
				rv := gates.At(l.out+i, j)
				dhPrev.Set(i, j, dhPrev.At(i, j)+dh.At(i, j)*zv+s.At(i, j)*rv)
			}
		}
		l.dhNext = dhPrev
	} else {
		l.dhNext = nil
	}

	dx := mat.NewDense(l.in, l.batch, nil)
	addMulT(dx, l.wg, dGates)
	addMulT(dx, l.wn, dn)
	return dx
}
