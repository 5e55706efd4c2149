package optimize

import (
	"context"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/seqforge/seqnet/pkg/errors"
)

// Adam keeps exponential moving averages of the gradient and its square and
// applies bias-corrected adaptive steps. Batch scheduling, epochs and the
// convergence check follow StandardSGD.
type Adam struct {
	StepSize      float64
	BatchSize     int
	Beta1         float64
	Beta2         float64
	Epsilon       float64
	MaxIterations int
	Tolerance     float64
	Shuffle       bool
	Seed          int64

	logger *logrus.Logger
}

// NewAdam creates an Adam optimizer with the usual moment defaults.
func NewAdam(stepSize float64, batchSize, maxIterations int, tolerance float64) *Adam {
	return &Adam{
		StepSize:      stepSize,
		BatchSize:     batchSize,
		Beta1:         0.9,
		Beta2:         0.999,
		Epsilon:       1e-8,
		MaxIterations: maxIterations,
		Tolerance:     tolerance,
		Shuffle:       true,
		logger:        logrus.New(),
	}
}

// SetLogger replaces the optimizer logger.
func (a *Adam) SetLogger(logger *logrus.Logger) {
	a.logger = logger
}

func (a *Adam) Optimize(ctx context.Context, p Problem, params []float64) (float64, error) {
	n := p.NumFunctions()
	if n == 0 {
		return 0, errors.NewValidationError(errors.CodeInsufficientData, "optimizer received an empty objective")
	}
	if a.BatchSize <= 0 {
		return 0, errors.NewValidationError(errors.CodeInvalidInput, "batch size must be positive")
	}

	rng := newShuffleRNG(a.Seed)
	grad := make([]float64, len(params))
	m := make([]float64, len(params))
	v := make([]float64, len(params))

	overallObjective := 0.0
	lastObjective := math.MaxFloat64
	current := 0
	step := 0

	if a.Shuffle {
		p.Shuffle(rng)
	}

	for it := 1; it <= a.MaxIterations; it++ {
		select {
		case <-ctx.Done():
			return overallObjective, errors.WrapError(ctx.Err(), errors.ErrorTypeTraining,
				errors.CodeTrainingTimeout, "optimization cancelled")
		default:
		}

		if current == 0 && it > 1 {
			if math.IsNaN(overallObjective) || math.IsInf(overallObjective, 0) {
				a.logger.WithField("objective", overallObjective).Warn("Adam diverged, terminating")
				return overallObjective, nil
			}
			if math.Abs(lastObjective-overallObjective) < a.Tolerance {
				a.logger.WithFields(logrus.Fields{
					"objective": overallObjective,
					"iteration": it,
				}).Debug("Adam converged within tolerance")
				break
			}
			lastObjective = overallObjective
			overallObjective = 0
			if a.Shuffle {
				p.Shuffle(rng)
			}
		}

		bs := a.BatchSize
		if current+bs > n {
			bs = n - current
		}

		obj := p.EvaluateWithGradient(params, current, bs, grad)
		step++
		c1 := 1.0 - math.Pow(a.Beta1, float64(step))
		c2 := 1.0 - math.Pow(a.Beta2, float64(step))
		for i, g := range grad {
			m[i] = a.Beta1*m[i] + (1.0-a.Beta1)*g
			v[i] = a.Beta2*v[i] + (1.0-a.Beta2)*g*g
			params[i] -= a.StepSize * (m[i] / c1) / (math.Sqrt(v[i]/c2) + a.Epsilon)
		}

		overallObjective += obj
		current += bs
		if current >= n {
			current = 0
		}
	}

	return finalObjective(p, params, n), nil
}
