package nn

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/seqforge/seqnet/pkg/constants"
)

// LSTM is a long short-term memory cell with peephole connections from the
// cell state to the input, forget and output gates:
//
//	i_t = sigmoid(Wi x_t + Ui h_{t-1} + pi . c_{t-1} + bi)
//	f_t = sigmoid(Wf x_t + Uf h_{t-1} + pf . c_{t-1} + bf)
//	g_t = tanh(Wg x_t + Ug h_{t-1} + bg)
//	c_t = f_t . c_{t-1} + i_t . g_t
//	o_t = sigmoid(Wo x_t + Uo h_{t-1} + po . c_t + bo)
//	h_t = o_t . tanh(c_t)
//
// The forget gate bias is initialized to one so that early training keeps the
// cell state alive.
type LSTM struct {
	in  int
	out int

	wi, wf, wg, wo *mat.Dense
	ui, uf, ug, uo *mat.Dense
	pi, pf, po     []float64
	bi, bf, bg, bo []float64

	gwi, gwf, gwg, gwo *mat.Dense
	gui, guf, gug, guo *mat.Dense
	gpi, gpf, gpo      []float64
	gbi, gbf, gbg, gbo []float64

	inputs []*mat.Dense
	hidden []*mat.Dense
	cell   []*mat.Dense
	gateI  []*mat.Dense
	gateF  []*mat.Dense
	gateG  []*mat.Dense
	gateO  []*mat.Dense
	tanhC  []*mat.Dense

	dhNext *mat.Dense
	dcNext *mat.Dense
	batch  int
}

// NewLSTM creates a peephole LSTM cell mapping in inputs to out hidden units.
func NewLSTM(in, out int) *LSTM {
	return &LSTM{in: in, out: out}
}

func (l *LSTM) Name() string    { return constants.LayerTypeLSTM }
func (l *LSTM) InputSize() int  { return l.in }
func (l *LSTM) OutputSize() int { return l.out }
func (l *LSTM) Clone() Layer    { return NewLSTM(l.in, l.out) }

func (l *LSTM) NumParameters() int {
	return 4*l.out*l.in + 4*l.out*l.out + 3*l.out + 4*l.out
}

func (l *LSTM) Bind(params, grads []float64) {
	n := l.out
	wn := n * l.in
	un := n * n

	take := func(buf []float64, off, ln int) []float64 { return buf[off : off+ln] }

	off := 0
	l.wi, l.gwi = denseView(take(params, off, wn), n, l.in), denseView(take(grads, off, wn), n, l.in)
	off += wn
	l.wf, l.gwf = denseView(take(params, off, wn), n, l.in), denseView(take(grads, off, wn), n, l.in)
	off += wn
	l.wg, l.gwg = denseView(take(params, off, wn), n, l.in), denseView(take(grads, off, wn), n, l.in)
	off += wn
	l.wo, l.gwo = denseView(take(params, off, wn), n, l.in), denseView(take(grads, off, wn), n, l.in)
	off += wn

	l.ui, l.gui = denseView(take(params, off, un), n, n), denseView(take(grads, off, un), n, n)
	off += un
	l.uf, l.guf = denseView(take(params, off, un), n, n), denseView(take(grads, off, un), n, n)
	off += un
	l.ug, l.gug = denseView(take(params, off, un), n, n), denseView(take(grads, off, un), n, n)
	off += un
	l.uo, l.guo = denseView(take(params, off, un), n, n), denseView(take(grads, off, un), n, n)
	off += un

	l.pi, l.gpi = take(params, off, n), take(grads, off, n)
	off += n
	l.pf, l.gpf = take(params, off, n), take(grads, off, n)
	off += n
	l.po, l.gpo = take(params, off, n), take(grads, off, n)
	off += n

	l.bi, l.gbi = take(params, off, n), take(grads, off, n)
	off += n
	l.bf, l.gbf = take(params, off, n), take(grads, off, n)
	off += n
	l.bg, l.gbg = take(params, off, n), take(grads, off, n)
	off += n
	l.bo, l.gbo = take(params, off, n), take(grads, off, n)
}

func (l *LSTM) ResetParameters(rng *rand.Rand) {
	for _, w := range []*mat.Dense{l.wi, l.wf, l.wg, l.wo} {
		glorotFill(w.RawMatrix().Data, l.in, l.out, rng)
	}
	for _, u := range []*mat.Dense{l.ui, l.uf, l.ug, l.uo} {
		glorotFill(u.RawMatrix().Data, l.out, l.out, rng)
	}
	zeroFill(l.pi)
	zeroFill(l.pf)
	zeroFill(l.po)
	zeroFill(l.bi)
	constFill(l.bf, 1.0)
	zeroFill(l.bg)
	zeroFill(l.bo)
}

func (l *LSTM) ResetState(batch, steps int) {
	l.inputs = make([]*mat.Dense, steps)
	l.hidden = make([]*mat.Dense, steps)
	l.cell = make([]*mat.Dense, steps)
	l.gateI = make([]*mat.Dense, steps)
	l.gateF = make([]*mat.Dense, steps)
	l.gateG = make([]*mat.Dense, steps)
	l.gateO = make([]*mat.Dense, steps)
	l.tanhC = make([]*mat.Dense, steps)
	l.dhNext = nil
	l.dcNext = nil
	l.batch = batch
}

// gatePre computes W*x + U*h + b for one gate into a fresh matrix.
func (l *LSTM) gatePre(w, u *mat.Dense, b []float64, x, hPrev *mat.Dense) *mat.Dense {
	pre := mat.NewDense(l.out, l.batch, nil)
	pre.Mul(w, x)
	if hPrev != nil {
		var rec mat.Dense
		rec.Mul(u, hPrev)
		pre.Add(pre, &rec)
	}
	addColBroadcast(pre, b)
	return pre
}

func (l *LSTM) Forward(t int, input *mat.Dense, train bool) *mat.Dense {
	var hPrev, cPrev *mat.Dense
	if t > 0 {
		hPrev = l.hidden[t-1]
		cPrev = l.cell[t-1]
	}

	preI := l.gatePre(l.wi, l.ui, l.bi, input, hPrev)
	preF := l.gatePre(l.wf, l.uf, l.bf, input, hPrev)
	preG := l.gatePre(l.wg, l.ug, l.bg, input, hPrev)
	preO := l.gatePre(l.wo, l.uo, l.bo, input, hPrev)

	gi := mat.NewDense(l.out, l.batch, nil)
	gf := mat.NewDense(l.out, l.batch, nil)
	gg := mat.NewDense(l.out, l.batch, nil)
	og := mat.NewDense(l.out, l.batch, nil)
	c := mat.NewDense(l.out, l.batch, nil)
	tc := mat.NewDense(l.out, l.batch, nil)
	h := mat.NewDense(l.out, l.batch, nil)

	for j := 0; j < l.batch; j++ {
		for i := 0; i < l.out; i++ {
			cp := 0.0
			if cPrev != nil {
				cp = cPrev.At(i, j)
			}
			iv := sigmoid(preI.At(i, j) + l.pi[i]*cp)
			fv := sigmoid(preF.At(i, j) + l.pf[i]*cp)
			gv := math.Tanh(preG.At(i, j))
			cv := fv*cp + iv*gv
			ov := sigmoid(preO.At(i, j) + l.po[i]*cv)
			tcv := math.Tanh(cv)

			gi.Set(i, j, iv)
			gf.Set(i, j, fv)
			gg.Set(i, j, gv)
			og.Set(i, j, ov)
			c.Set(i, j, cv)
			tc.Set(i, j, tcv)
			h.Set(i, j, ov*tcv)
		}
	}

	l.inputs[t] = input
	l.gateI[t] = gi
	l.gateF[t] = gf
	l.gateG[t] = gg
	l.gateO[t] = og
	l.cell[t] = c
	l.tanhC[t] = tc
	l.hidden[t] = h
	return h
}

func (l *LSTM) Backward(t int, upstream *mat.Dense) *mat.Dense {
	var cPrev *mat.Dense
	if t > 0 {
		cPrev = l.cell[t-1]
	}

	gi, gf, gg, og := l.gateI[t], l.gateF[t], l.gateG[t], l.gateO[t]
	tc := l.tanhC[t]

	di := mat.NewDense(l.out, l.batch, nil)
	df := mat.NewDense(l.out, l.batch, nil)
	dg := mat.NewDense(l.out, l.batch, nil)
	do := mat.NewDense(l.out, l.batch, nil)
	dcPrev := mat.NewDense(l.out, l.batch, nil)

	for j := 0; j < l.batch; j++ {
		for i := 0; i < l.out; i++ {
			dh := upstream.At(i, j)
			if l.dhNext != nil {
				dh += l.dhNext.At(i, j)
			}

			ov := og.At(i, j)
			tcv := tc.At(i, j)

			dov := dh * tcv * ov * (1.0 - ov)
			dc := dh*ov*(1.0-tcv*tcv) + l.po[i]*dov
			if l.dcNext != nil {
				dc += l.dcNext.At(i, j)
			}

			cp := 0.0
			if cPrev != nil {
				cp = cPrev.At(i, j)
			}

			iv := gi.At(i, j)
			fv := gf.At(i, j)
			gv := gg.At(i, j)

			div := dc * gv * iv * (1.0 - iv)
			dfv := dc * cp * fv * (1.0 - fv)
			dgv := dc * iv * (1.0 - gv*gv)

			di.Set(i, j, div)
			df.Set(i, j, dfv)
			dg.Set(i, j, dgv)
			do.Set(i, j, dov)
			dcPrev.Set(i, j, dc*fv+l.pi[i]*div+l.pf[i]*dfv)

			l.gpi[i] += div * cp
			l.gpf[i] += dfv * cp
			l.gpo[i] += dov * l.cell[t].At(i, j)
		}
	}

	x := l.inputs[t]
	accumOuter(l.gwi, di, x)
	accumOuter(l.gwf, df, x)
	accumOuter(l.gwg, dg, x)
	accumOuter(l.gwo, do, x)
	accumRowSums(l.gbi, di)
	accumRowSums(l.gbf, df)
	accumRowSums(l.gbg, dg)
	accumRowSums(l.gbo, do)

	if t > 0 {
		hPrev := l.hidden[t-1]
		accumOuter(l.gui, di, hPrev)
		accumOuter(l.guf, df, hPrev)
		accumOuter(l.gug, dg, hPrev)
		accumOuter(l.guo, do, hPrev)

		dhPrev := mat.NewDense(l.out, l.batch, nil)
		addMulT(dhPrev, l.ui, di)
		addMulT(dhPrev, l.uf, df)
		addMulT(dhPrev, l.ug, dg)
		addMulT(dhPrev, l.uo, do)
		l.dhNext = dhPrev
		l.dcNext = dcPrev
	} else {
		l.dhNext = nil
		l.dcNext = nil
	}

	dx := mat.NewDense(l.in, l.batch, nil)
	addMulT(dx, l.wi, di)
	addMulT(dx, l.wf, df)
	addMulT(dx, l.wg, dg)
	addMulT(dx, l.wo, do)
	return dx
}

// accumOuter adds delta * xT into the gradient matrix g.
func accumOuter(g, delta, x *mat.Dense) {
	var outer mat.Dense
	outer.Mul(delta, x.T())
	g.Add(g, &outer)
}

// addMulT adds wT * delta into dst.
func addMulT(dst, w, delta *mat.Dense) {
	var p mat.Dense
	p.Mul(w.T(), delta)
	dst.Add(dst, &p)
}
