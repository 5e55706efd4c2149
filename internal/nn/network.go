package nn

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// network owns an ordered layer stack together with the flat parameter and
// gradient vectors all layers are bound to.
type network struct {
	layers []Layer
	params []float64
	grads  []float64
	bound  bool
}

func newNetwork() *network {
	return &network{}
}

func (n *network) add(l Layer) {
	n.layers = append(n.layers, l)
	n.bound = false
}

func (n *network) numParameters() int {
	total := 0
	for _, l := range n.layers {
		total += l.NumParameters()
	}
	return total
}

// inputSize returns the input dimension declared by the first layer that
// declares one, or 0 if no layer does.
func (n *network) inputSize() int {
	for _, l := range n.layers {
		if in := l.InputSize(); in > 0 {
			return in
		}
	}
	return 0
}

// outputSize returns the output dimension declared by the last layer that
// declares one, or 0 if no layer does.
func (n *network) outputSize() int {
	for i := len(n.layers) - 1; i >= 0; i-- {
		if out := n.layers[i].OutputSize(); out > 0 {
			return out
		}
	}
	return 0
}

// bind allocates the flat vectors and hands each layer its windows. Existing
// parameter values are preserved when the total size is unchanged.
func (n *network) bind() {
	total := n.numParameters()
	if len(n.params) != total {
		n.params = make([]float64, total)
		n.grads = make([]float64, total)
	}
	n.bindTo(n.params, n.grads)
}

// bindTo hands each layer windows into externally owned flat vectors, which
// must have length numParameters.
func (n *network) bindTo(params, grads []float64) {
	n.params = params
	n.grads = grads

	off := 0
	for _, l := range n.layers {
		np := l.NumParameters()
		l.Bind(params[off:off+np], grads[off:off+np])
		off += np
	}
	n.bound = true
}

func (n *network) resetParameters(rng *rand.Rand) {
	if !n.bound {
		n.bind()
	}
	for _, l := range n.layers {
		l.ResetParameters(rng)
	}
}

func (n *network) zeroGrads() {
	for i := range n.grads {
		n.grads[i] = 0
	}
}

func (n *network) resetState(batch, steps int) {
	for _, l := range n.layers {
		l.ResetState(batch, steps)
	}
}

func (n *network) forward(t int, input *mat.Dense, train bool) *mat.Dense {
	out := input
	for _, l := range n.layers {
		out = l.Forward(t, out, train)
	}
	return out
}

func (n *network) backward(t int, delta *mat.Dense) *mat.Dense {
	d := delta
	for i := len(n.layers) - 1; i >= 0; i-- {
		d = n.layers[i].Backward(t, d)
	}
	return d
}

// setParameters copies src into the flat parameter vector unless src already
// is that vector.
func (n *network) setParameters(src []float64) {
	if !n.bound {
		n.bind()
	}
	if len(src) > 0 && len(n.params) > 0 && &src[0] == &n.params[0] {
		return
	}
	copy(n.params, src)
}

func (n *network) parametersCopy() []float64 {
	out := make([]float64, len(n.params))
	copy(out, n.params)
	return out
}
