package optimize

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/seqforge/seqnet/pkg/errors"
)

// StandardSGD is plain stochastic gradient descent. One iteration processes
// one batch; batches wrap around the term ordering, and every full pass over
// the terms is one epoch. At each epoch boundary the summed epoch objective
// is compared against the previous epoch; training stops early when the
// absolute change drops below Tolerance. A negative Tolerance disables the
// convergence check, so exactly MaxIterations batches are processed.
type StandardSGD struct {
	StepSize      float64
	BatchSize     int
	MaxIterations int
	Tolerance     float64
	Shuffle       bool
	Seed          int64

	logger *logrus.Logger
}

// NewStandardSGD creates an SGD optimizer with shuffling enabled.
func NewStandardSGD(stepSize float64, batchSize, maxIterations int, tolerance float64) *StandardSGD {
	return &StandardSGD{
		StepSize:      stepSize,
		BatchSize:     batchSize,
		MaxIterations: maxIterations,
		Tolerance:     tolerance,
		Shuffle:       true,
		logger:        logrus.New(),
	}
}

// SetLogger replaces the optimizer logger.
func (s *StandardSGD) SetLogger(logger *logrus.Logger) {
	s.logger = logger
}

func (s *StandardSGD) Optimize(ctx context.Context, p Problem, params []float64) (float64, error) {
	n := p.NumFunctions()
	if n == 0 {
		return 0, errors.NewValidationError(errors.CodeInsufficientData, "optimizer received an empty objective")
	}
	if s.BatchSize <= 0 {
		return 0, errors.NewValidationError(errors.CodeInvalidInput, "batch size must be positive")
	}

	rng := newShuffleRNG(s.Seed)
	grad := make([]float64, len(params))

	overallObjective := 0.0
	lastObjective := math.MaxFloat64
	current := 0

	if s.Shuffle {
		p.Shuffle(rng)
	}

	for it := 1; it <= s.MaxIterations; it++ {
		select {
		case <-ctx.Done():
			return overallObjective, errors.WrapError(ctx.Err(), errors.ErrorTypeTraining,
				errors.CodeTrainingTimeout, "optimization cancelled")
		default:
		}

		if current == 0 && it > 1 {
			if math.IsNaN(overallObjective) || math.IsInf(overallObjective, 0) {
				s.logger.WithField("objective", overallObjective).Warn("SGD diverged, terminating")
				return overallObjective, nil
			}
			if math.Abs(lastObjective-overallObjective) < s.Tolerance {
				s.logger.WithFields(logrus.Fields{
					"objective": overallObjective,
					"iteration": it,
				}).Debug("SGD converged within tolerance")
				break
			}
			lastObjective = overallObjective
			overallObjective = 0
			if s.Shuffle {
				p.Shuffle(rng)
			}
		}

		bs := s.BatchSize
		if current+bs > n {
			bs = n - current
		}

		obj := p.EvaluateWithGradient(params, current, bs, grad)
		floats.AddScaled(params, -s.StepSize, grad)

		overallObjective += obj
		current += bs
		if current >= n {
			current = 0
		}
	}

	return finalObjective(p, params, n), nil
}

// finalObjective recomputes the objective over all terms after optimization.
func finalObjective(p Problem, params []float64, n int) float64 {
	return p.Evaluate(params, 0, n)
}

// newShuffleRNG seeds the shuffling source, falling back to the clock when no
// explicit seed is set.
func newShuffleRNG(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}
