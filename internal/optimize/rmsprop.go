package optimize

import (
	"context"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/seqforge/seqnet/pkg/errors"
)

// RMSProp divides the step size by a leaky moving average of the squared
// gradient magnitude, so steep coordinates take smaller steps than flat ones.
// Batch scheduling, epochs and the convergence check follow StandardSGD.
type RMSProp struct {
	StepSize      float64
	BatchSize     int
	Alpha         float64
	Epsilon       float64
	MaxIterations int
	Tolerance     float64
	Shuffle       bool
	Seed          int64

	logger *logrus.Logger
}

// NewRMSProp creates an RMSProp optimizer with shuffling enabled.
func NewRMSProp(stepSize float64, batchSize int, alpha, epsilon float64, maxIterations int, tolerance float64) *RMSProp {
	return &RMSProp{
		StepSize:      stepSize,
		BatchSize:     batchSize,
		Alpha:         alpha,
		Epsilon:       epsilon,
		MaxIterations: maxIterations,
		Tolerance:     tolerance,
		Shuffle:       true,
		logger:        logrus.New(),
	}
}

// SetLogger replaces the optimizer logger.
func (r *RMSProp) SetLogger(logger *logrus.Logger) {
	r.logger = logger
}

func (r *RMSProp) Optimize(ctx context.Context, p Problem, params []float64) (float64, error) {
	n := p.NumFunctions()
	if n == 0 {
		return 0, errors.NewValidationError(errors.CodeInsufficientData, "optimizer received an empty objective")
	}
	if r.BatchSize <= 0 {
		return 0, errors.NewValidationError(errors.CodeInvalidInput, "batch size must be positive")
	}

	rng := newShuffleRNG(r.Seed)
	grad := make([]float64, len(params))
	meanSquared := make([]float64, len(params))

	overallObjective := 0.0
	lastObjective := math.MaxFloat64
	current := 0

	if r.Shuffle {
		p.Shuffle(rng)
	}

	for it := 1; it <= r.MaxIterations; it++ {
		select {
		case <-ctx.Done():
			return overallObjective, errors.WrapError(ctx.Err(), errors.ErrorTypeTraining,
				errors.CodeTrainingTimeout, "optimization cancelled")
		default:
		}

		if current == 0 && it > 1 {
			if math.IsNaN(overallObjective) || math.IsInf(overallObjective, 0) {
				r.logger.WithField("objective", overallObjective).Warn("RMSProp diverged, terminating")
				return overallObjective, nil
			}
			if math.Abs(lastObjective-overallObjective) < r.Tolerance {
				r.logger.WithFields(logrus.Fields{
					"objective": overallObjective,
					"iteration": it,
				}).Debug("RMSProp converged within tolerance")
				break
			}
			lastObjective = overallObjective
			overallObjective = 0
			if r.Shuffle {
				p.Shuffle(rng)
			}
		}

		bs := r.BatchSize
		if current+bs > n {
			bs = n - current
		}

		obj := p.EvaluateWithGradient(params, current, bs, grad)
		for i, g := range grad {
			meanSquared[i] = r.Alpha*meanSquared[i] + (1.0-r.Alpha)*g*g
			params[i] -= r.StepSize * g / (math.Sqrt(meanSquared[i]) + r.Epsilon)
		}

		overallObjective += obj
		current += bs
		if current >= n {
			current = 0
		}
	}

	return finalObjective(p, params, n), nil
}
