// Package nn implements recurrent neural networks over batched sequence
// data. Models are layer stacks trained with truncated backpropagation
// through time against a pluggable optimizer.
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

// RNN is a recurrent network for sequence learning. Layers are applied in
// order at every time step; recurrent layers carry hidden state across steps.
// rho bounds how many steps gradients are propagated back through time.
//
// With single set, only the final time step is scored against a one-slice
// target cube. Otherwise targets must provide one slice per input step.
type RNN struct {
	rho    int
	single bool
	loss   Loss

	net    *network
	rng    *rand.Rand
	seed   int64
	logger *logrus.Logger
}

// NewRNN creates a recurrent network with BPTT window rho. A nil loss
// defaults to negative log likelihood.
func NewRNN(rho int, single bool, loss Loss) *RNN {
	if loss == nil {
		loss = NewNegativeLogLikelihood()
	}
	return &RNN{
		rho:    rho,
		single: single,
		loss:   loss,
		net:    newNetwork(),
		logger: logrus.New(),
	}
}

// Add appends a layer to the network.
func (m *RNN) Add(l Layer) {
	m.net.add(l)
}

// Rho returns the BPTT window.
func (m *RNN) Rho() int { return m.rho }

// Single reports whether only the final step is scored.
func (m *RNN) Single() bool { return m.single }

// Loss returns the configured loss.
func (m *RNN) Loss() Loss { return m.loss }

// Layers returns the layer stack.
func (m *RNN) Layers() []Layer { return m.net.layers }

// SetSeed fixes the weight initialization seed. A zero seed draws from the
// clock.
func (m *RNN) SetSeed(seed int64) { m.seed = seed }

// SetLogger replaces the model logger.
func (m *RNN) SetLogger(logger *logrus.Logger) { m.logger = logger }

// NumParameters returns the total number of trainable parameters.
func (m *RNN) NumParameters() int { return m.net.numParameters() }

// Reset binds all layers to fresh flat parameter storage and reinitializes
// the weights.
func (m *RNN) Reset() {
	if m.rng == nil {
		seed := m.seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		m.rng = rand.New(rand.NewSource(seed))
	}
	m.net.bind()
	m.net.resetParameters(m.rng)
}

// Parameters returns a copy of the flat parameter vector.
func (m *RNN) Parameters() []float64 {
	if !m.net.bound {
		m.Reset()
	}
	return m.net.parametersCopy()
}

// SetParameters copies the given flat vector into the network.
func (m *RNN) SetParameters(params []float64) error {
	if !m.net.bound {
		m.net.bind()
	}
	if len(params) != len(m.net.params) {
		return errors.NewValidationError(errors.CodeInvalidInput,
			fmt.Sprintf("parameter vector has %d elements, want %d", len(params), len(m.net.params)))
	}
	m.net.setParameters(params)
	return nil
}

// checkInputShape verifies the leading dimension of the input against the
// first layer that declares an input size.
func (m *RNN) checkInputShape(rows int) error {
	expect := m.net.inputSize()
	if expect > 0 && expect != rows {
		return errors.NewValidationError(errors.CodeInvalidInputShape,
			fmt.Sprintf("the first layer of the network expects %d elements, but the input shape has %d dimensions",
				expect, rows))
	}
	return nil
}

// validate checks input and target cubes for training.
func (m *RNN) validate(inputs, targets *Cube) error {
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

// Train fits the network to the given sequences and returns the final
// objective over all of them. Parameters persist across calls, so repeated
// Train calls continue from the current weights.
func (m *RNN) Train(ctx context.Context, inputs, targets *Cube, opt optimize.Optimizer) (float64, error) {
	if err := m.validate(inputs, targets); err != nil {
		return 0, err
	}
	if !m.net.bound {
		m.Reset()
	}

	m.logger.WithFields(logrus.Fields{
		"model":      "rnn",
		"sequences":  inputs.Cols(),
		"steps":      inputs.Steps(),
		"parameters": len(m.net.params),
	}).Debug("training recurrent network")

	problem := newSequenceProblem(m.forwardBackward, m.net.params, m.net.grads, inputs, targets)
	obj, err := opt.Optimize(ctx, problem, m.net.params)
	if err != nil {
		return obj, err
	}
	return obj, nil
}

// Predict runs the network over all time steps of the input in inference
// mode and returns one output slice per input step.
func (m *RNN) Predict(inputs *Cube) (*Cube, error) {
	if inputs == nil {
		return nil, errors.NewValidationError(errors.CodeMissingField, "inputs must not be nil")
	}
	if err := m.checkInputShape(inputs.Rows()); err != nil {
		return nil, err
	}
	if !m.net.bound {
		m.Reset()
	}

	batch := inputs.Cols()
	steps := inputs.Steps()
	m.net.resetState(batch, steps)

	slices := make([]*mat.Dense, steps)
	for t := 0; t < steps; t++ {
		out := m.net.forward(t, inputs.Slice(t), false)
		cp := mat.NewDense(out.RawMatrix().Rows, out.RawMatrix().Cols, nil)
		cp.Copy(out)
		slices[t] = cp
	}
	return NewCubeFromSlices(slices)
}

// forwardBackward scores a gathered batch and, when grad is set, accumulates
// parameter gradients with BPTT truncated to min(rho, steps).
func (m *RNN) forwardBackward(inputs, targets *Cube, grad bool) float64 {
	batch := inputs.Cols()
	steps := inputs.Steps()

	m.net.resetState(batch, steps)
	if grad {
		m.net.zeroGrads()
	}

	outputs := make([]*mat.Dense, steps)
	for t := 0; t < steps; t++ {
		outputs[t] = m.net.forward(t, inputs.Slice(t), grad)
	}

	loss := 0.0
	if m.single {
		loss = m.loss.Forward(outputs[steps-1], targets.Slice(0))
	} else {
		for t := 0; t < steps; t++ {
			loss += m.loss.Forward(outputs[t], targets.Slice(t))
		}
	}

	if grad {
		window := m.rho
		if window > steps {
			window = steps
		}

		outRows, _ := outputs[steps-1].Dims()
		for t := steps - 1; t >= steps-window; t-- {
			delta := mat.NewDense(outRows, batch, nil)
			if m.single {
				if t == steps-1 {
					m.loss.Backward(outputs[t], targets.Slice(0), delta)
				}
			} else {
				m.loss.Backward(outputs[t], targets.Slice(t), delta)
			}
			m.net.backward(t, delta)
		}
	}
	return loss
}

// evaluator scores one gathered batch of sequences, accumulating gradients
// into the owning model when requested.
type evaluator func(inputs, targets *Cube, grad bool) float64

// sequenceProblem adapts cube-batched sequence training to the separable
// objective the optimizers expect: every sequence column is one term. params
// and grads are the model's flat vectors; the evaluator reads the former and
// fills the latter.
type sequenceProblem struct {
	eval    evaluator
	params  []float64
	grads   []float64
	inputs  *Cube
	targets *Cube
	perm    []int
}

func newSequenceProblem(eval evaluator, params, grads []float64, inputs, targets *Cube) *sequenceProblem {
	perm := make([]int, inputs.Cols())
	for i := range perm {
		perm[i] = i
	}
	return &sequenceProblem{eval: eval, params: params, grads: grads, inputs: inputs, targets: targets, perm: perm}
}

// adopt copies the optimizer's iterate into the model unless both already
// share storage.
func (p *sequenceProblem) adopt(params []float64) {
	if len(params) == 0 || len(p.params) == 0 || &params[0] == &p.params[0] {
		return
	}
	copy(p.params, params)
}

func (p *sequenceProblem) NumFunctions() int { return len(p.perm) }

func (p *sequenceProblem) Shuffle(rng *rand.Rand) {
	rng.Shuffle(len(p.perm), func(i, j int) {
		p.perm[i], p.perm[j] = p.perm[j], p.perm[i]
	})
}

func (p *sequenceProblem) gather(begin, batchSize int) (*Cube, *Cube) {
	idx := p.perm[begin : begin+batchSize]
	return p.inputs.Columns(idx), p.targets.Columns(idx)
}

func (p *sequenceProblem) Evaluate(params []float64, begin, batchSize int) float64 {
	p.adopt(params)
	in, tg := p.gather(begin, batchSize)
	return p.eval(in, tg, false)
}

func (p *sequenceProblem) EvaluateWithGradient(params []float64, begin, batchSize int, grad []float64) float64 {
	p.adopt(params)
	in, tg := p.gather(begin, batchSize)
	loss := p.eval(in, tg, true)
	copy(grad, p.grads)
	return loss
}
