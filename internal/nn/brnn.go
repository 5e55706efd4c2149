package nn

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/seqforge/seqnet/internal/optimize"
	"github.com/seqforge/seqnet/pkg/errors"
)

// BRNN is a bidirectional recurrent network. Every added layer is duplicated
// into a forward stack and an independently parameterized backward stack; the
// backward stack consumes the sequence in reversed time order. Per step the
// two stack outputs are summed, and with a negative log likelihood loss a
// log-softmax is applied to the merged activation.
type BRNN struct {
	rho    int
	single bool
	loss   Loss

	fwd   *network
	bwd   *network
	merge *LogSoftMax

	params []float64
	grads  []float64
	bound  bool

	rng    *rand.Rand
	seed   int64
	logger *logrus.Logger
}

// NewBRNN creates a bidirectional network with BPTT window rho. A nil loss
// defaults to negative log likelihood.
func NewBRNN(rho int, single bool, loss Loss) *BRNN {
	if loss == nil {
		loss = NewNegativeLogLikelihood()
	}
	return &BRNN{
		rho:    rho,
		single: single,
		loss:   loss,
		fwd:    newNetwork(),
		bwd:    newNetwork(),
		merge:  NewLogSoftMax(),
		logger: logrus.New(),
	}
}

// Add appends a layer to the forward stack and a clone of it to the backward
// stack.
func (m *BRNN) Add(l Layer) {
	m.fwd.add(l)
	m.bwd.add(l.Clone())
	m.bound = false
}

// Rho returns the BPTT window.
func (m *BRNN) Rho() int { return m.rho }

// Single reports whether only the final step is scored.
func (m *BRNN) Single() bool { return m.single }

// Loss returns the configured loss.
func (m *BRNN) Loss() Loss { return m.loss }

// Layers returns the forward stack. The backward stack mirrors it.
func (m *BRNN) Layers() []Layer { return m.fwd.layers }

// SetSeed fixes the weight initialization seed. A zero seed draws from the
// clock.
func (m *BRNN) SetSeed(seed int64) { m.seed = seed }

// SetLogger replaces the model logger.
func (m *BRNN) SetLogger(logger *logrus.Logger) { m.logger = logger }

// NumParameters returns the total parameter count over both stacks.
func (m *BRNN) NumParameters() int {
	return m.fwd.numParameters() + m.bwd.numParameters()
}

// applyMerge reports whether the merged activation passes through a
// log-softmax before scoring.
func (m *BRNN) applyMerge() bool {
	_, ok := m.loss.(*NegativeLogLikelihood)
	return ok
}

func (m *BRNN) bind() {
	total := m.NumParameters()
	if len(m.params) != total {
		m.params = make([]float64, total)
		m.grads = make([]float64, total)
	}
	nf := m.fwd.numParameters()
	m.fwd.bindTo(m.params[:nf], m.grads[:nf])
	m.bwd.bindTo(m.params[nf:], m.grads[nf:])
	m.bound = true
}

// Reset binds both stacks to fresh flat parameter storage and reinitializes
// all weights.
func (m *BRNN) Reset() {
	if m.rng == nil {
		seed := m.seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		m.rng = rand.New(rand.NewSource(seed))
	}
	m.bind()
	m.fwd.resetParameters(m.rng)
	m.bwd.resetParameters(m.rng)
}

// Parameters returns a copy of the flat parameter vector covering both
// stacks.
func (m *BRNN) Parameters() []float64 {
	if !m.bound {
		m.Reset()
	}
	out := make([]float64, len(m.params))
	copy(out, m.params)
	return out
}

// SetParameters copies the given flat vector into both stacks.
func (m *BRNN) SetParameters(params []float64) error {
	if !m.bound {
		m.bind()
	}
	if len(params) != len(m.params) {
		return errors.NewValidationError(errors.CodeInvalidInput,
			fmt.Sprintf("parameter vector has %d elements, want %d", len(params), len(m.params)))
	}
	if len(params) > 0 && &params[0] != &m.params[0] {
		copy(m.params, params)
	}
	return nil
}

func (m *BRNN) checkInputShape(rows int) error {
	expect := m.fwd.inputSize()
	if expect > 0 && expect != rows {
		return errors.NewValidationError(errors.CodeInvalidInputShape,
			fmt.Sprintf("the first layer of the network expects %d elements, but the input shape has %d dimensions",
				expect, rows))
	}
	return nil
}

func (m *BRNN) validate(inputs, targets *Cube) error {
	if inputs == nil || targets == nil {
		return errors.NewValidationError(errors.CodeMissingField, "inputs and targets must not be nil")
	}
	if err := m.checkInputShape(inputs.Rows()); err != nil {
		return err
	}
	if inputs.Cols() != targets.Cols() {
		return errors.NewValidationError(errors.CodeInvalidInput,
			fmt.Sprintf("inputs carry %d sequences but targets carry %d", inputs.Cols(), targets.Cols()))
	}
	if m.single {
		if targets.Steps() != 1 {
			return errors.NewValidationError(errors.CodeInvalidInput,
				fmt.Sprintf("single-response training expects one target step, got %d", targets.Steps()))
		}
	} else if targets.Steps() != inputs.Steps() {
		return errors.NewValidationError(errors.CodeInvalidInput,
			fmt.Sprintf("targets carry %d steps but inputs carry %d", targets.Steps(), inputs.Steps()))
	}
	return nil
}

// Train fits both stacks to the given sequences and returns the final
// objective over all of them.
func (m *BRNN) Train(ctx context.Context, inputs, targets *Cube, opt optimize.Optimizer) (float64, error) {
	if err := m.validate(inputs, targets); err != nil {
		return 0, err
	}
	if !m.bound {
		m.Reset()
	}

	m.logger.WithFields(logrus.Fields{
		"model":      "brnn",
		"sequences":  inputs.Cols(),
		"steps":      inputs.Steps(),
		"parameters": len(m.params),
	}).Debug("training bidirectional recurrent network")

	problem := newSequenceProblem(m.forwardBackward, m.params, m.grads, inputs, targets)
	obj, err := opt.Optimize(ctx, problem, m.params)
	if err != nil {
		return obj, err
	}
	return obj, nil
}

// Predict runs both stacks over the input in inference mode and returns the
// merged output per step.
func (m *BRNN) Predict(inputs *Cube) (*Cube, error) {
	if inputs == nil {
		return nil, errors.NewValidationError(errors.CodeMissingField, "inputs must not be nil")
	}
	if err := m.checkInputShape(inputs.Rows()); err != nil {
		return nil, err
	}
	if !m.bound {
		m.Reset()
	}

	merged := m.forwardPass(inputs, false)
	slices := make([]*mat.Dense, len(merged))
	for t, out := range merged {
		cp := mat.NewDense(out.RawMatrix().Rows, out.RawMatrix().Cols, nil)
		cp.Copy(out)
		slices[t] = cp
	}
	return NewCubeFromSlices(slices)
}

// forwardPass drives the forward stack over natural time order and the
// backward stack over reversed order and merges the per-step outputs.
func (m *BRNN) forwardPass(inputs *Cube, train bool) []*mat.Dense {
	batch := inputs.Cols()
	steps := inputs.Steps()

	m.fwd.resetState(batch, steps)
	m.bwd.resetState(batch, steps)
	m.merge.ResetState(batch, steps)

	fwdOut := make([]*mat.Dense, steps)
	for t := 0; t < steps; t++ {
		fwdOut[t] = m.fwd.forward(t, inputs.Slice(t), train)
	}

	bwdOut := make([]*mat.Dense, steps)
	for k := 0; k < steps; k++ {
		bwdOut[k] = m.bwd.forward(k, inputs.Slice(steps-1-k), train)
	}

	merged := make([]*mat.Dense, steps)
	for t := 0; t < steps; t++ {
		sum := mat.NewDense(fwdOut[t].RawMatrix().Rows, batch, nil)
		sum.Add(fwdOut[t], bwdOut[steps-1-t])
		if m.applyMerge() {
			sum = m.merge.Forward(t, sum, train)
		}
		merged[t] = sum
	}
	return merged
}

// forwardBackward scores a gathered batch and, when grad is set, accumulates
// parameter gradients for both stacks with truncated BPTT.
func (m *BRNN) forwardBackward(inputs, targets *Cube, grad bool) float64 {
	batch := inputs.Cols()
	steps := inputs.Steps()

	if grad {
		for i := range m.grads {
			m.grads[i] = 0
		}
	}

	merged := m.forwardPass(inputs, grad)

	loss := 0.0
	if m.single {
		loss = m.loss.Forward(merged[steps-1], targets.Slice(0))
	} else {
		for t := 0; t < steps; t++ {
			loss += m.loss.Forward(merged[t], targets.Slice(t))
		}
	}

	if !grad {
		return loss
	}

	window := m.rho
	if window > steps {
		window = steps
	}

	outRows, _ := merged[steps-1].Dims()
	deltas := make([]*mat.Dense, steps)
	for t := steps - 1; t >= steps-window; t-- {
		delta := mat.NewDense(outRows, batch, nil)
		if m.single {
			if t == steps-1 {
				m.loss.Backward(merged[t], targets.Slice(0), delta)
			}
		} else {
			m.loss.Backward(merged[t], targets.Slice(t), delta)
		}
		if m.applyMerge() {
			delta = m.merge.Backward(t, delta)
		}
		deltas[t] = delta
	}

	for t := steps - 1; t >= steps-window; t-- {
		m.fwd.backward(t, deltas[t])
	}

	// The backward stack sees reversed time, so its own late steps line up
	// with early input steps. Its BPTT window therefore covers the deltas of
	// the first window input steps.
	for k := steps - 1; k >= steps-window; k-- {
		t := steps - 1 - k
		delta := deltas[t]
		if delta == nil {
			delta = mat.NewDense(outRows, batch, nil)
		}
		m.bwd.backward(k, delta)
	}
	return loss
}
