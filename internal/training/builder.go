// Package training turns declarative specs into runnable models and executes
// training jobs through a worker pool.
package training

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/seqforge/seqnet/internal/nn"
	"github.com/seqforge/seqnet/internal/optimize"
	"github.com/seqforge/seqnet/pkg/constants"
	"github.com/seqforge/seqnet/pkg/errors"
	"github.com/seqforge/seqnet/pkg/models"
)

// Model is the training surface shared by nn.RNN and nn.BRNN.
type Model interface {
	Train(ctx context.Context, inputs, targets *nn.Cube, opt optimize.Optimizer) (float64, error)
	Predict(inputs *nn.Cube) (*nn.Cube, error)
	Parameters() []float64
	NumParameters() int
	SetSeed(seed int64)
	SetLogger(logger *logrus.Logger)
	Save(w io.Writer, format string) error
}

// BuildModel constructs a recurrent model from its spec. An empty model type
// defaults to a plain RNN and an empty loss to negative log likelihood.
func BuildModel(spec models.ModelSpec) (Model, error) {
	if len(spec.Layers) == 0 {
		return nil, errors.NewValidationError(errors.CodeMissingField,
			"model spec needs at least one layer")
	}

	rho := spec.Rho
	if rho <= 0 {
		rho = constants.DefaultRho
	}

	loss, err := buildLoss(spec.Loss)
	if err != nil {
		return nil, err
	}

	var model Model
	switch spec.Type {
	case "", constants.ModelTypeRNN:
		net := nn.NewRNN(rho, spec.Single, loss)
		for i, layerSpec := range spec.Layers {
			layer, err := buildLayer(layerSpec, rho)
			if err != nil {
				return nil, annotateLayerError(err, i)
			}
			net.Add(layer)
		}
		model = net
	case constants.ModelTypeBRNN:
		net := nn.NewBRNN(rho, spec.Single, loss)
		for i, layerSpec := range spec.Layers {
			layer, err := buildLayer(layerSpec, rho)
			if err != nil {
				return nil, annotateLayerError(err, i)
			}
			net.Add(layer)
		}
		model = net
	default:
		return nil, errors.NewValidationError(errors.CodeUnsupportedType,
			fmt.Sprintf("model type %q is not supported", spec.Type))
	}

	if spec.Seed != 0 {
		model.SetSeed(spec.Seed)
	}

	return model, nil
}

// buildLayer constructs one layer from its spec. modelRho is the fallback
// unroll limit for recurrent wrapper layers that do not set their own.
func buildLayer(spec models.LayerSpec, modelRho int) (nn.Layer, error) {
	switch spec.Type {
	case constants.LayerTypeIdentity:
		return nn.NewIdentity(), nil

	case constants.LayerTypeLinear:
		if spec.In <= 0 || spec.Out <= 0 {
			return nil, errors.NewValidationError(errors.CodeInvalidLayer,
				"linear layer needs positive in and out sizes")
		}
		return nn.NewLinear(spec.In, spec.Out), nil

	case constants.LayerTypeLinearNoBias:
		if spec.In <= 0 || spec.Out <= 0 {
			return nil, errors.NewValidationError(errors.CodeInvalidLayer,
				"linear_no_bias layer needs positive in and out sizes")
		}
		return nn.NewLinearNoBias(spec.In, spec.Out), nil

	case constants.LayerTypeAdd:
		size := spec.Out
		if size == 0 {
			size = spec.In
		}
		if size <= 0 {
			return nil, errors.NewValidationError(errors.CodeInvalidLayer,
				"add layer needs a positive size")
		}
		return nn.NewAdd(size), nil

	case constants.LayerTypeSigmoid:
		return nn.NewSigmoid(), nil

	case constants.LayerTypeLogSoftMax:
		return nn.NewLogSoftMax(), nil

	case constants.LayerTypeDropout:
		ratio := spec.Ratio
		if ratio == 0 {
			ratio = 0.5
		}
		if ratio < 0 || ratio >= 1 {
			return nil, errors.NewValidationError(errors.CodeInvalidLayer,
				"dropout ratio must be in [0, 1)")
		}
		return nn.NewDropout(ratio), nil

	case constants.LayerTypeRecurrent:
		if spec.In <= 0 || spec.Out <= 0 {
			return nil, errors.NewValidationError(errors.CodeInvalidLayer,
				"recurrent layer needs positive in and out sizes")
		}
		rho := spec.Rho
		if rho <= 0 {
			rho = modelRho
		}
		return nn.NewRecurrent(
			nn.NewAdd(spec.Out),
			nn.NewLinear(spec.In, spec.Out),
			nn.NewLinear(spec.Out, spec.Out),
			nn.NewSigmoid(),
			rho,
		), nil

	case constants.LayerTypeLSTM:
		if spec.In <= 0 || spec.Out <= 0 {
			return nil, errors.NewValidationError(errors.CodeInvalidLayer,
				"lstm layer needs positive in and out sizes")
		}
		return nn.NewLSTM(spec.In, spec.Out), nil

	case constants.LayerTypeFastLSTM:
		if spec.In <= 0 || spec.Out <= 0 {
			return nil, errors.NewValidationError(errors.CodeInvalidLayer,
				"fast_lstm layer needs positive in and out sizes")
		}
		return nn.NewFastLSTM(spec.In, spec.Out), nil

	case constants.LayerTypeGRU:
		if spec.In <= 0 || spec.Out <= 0 {
			return nil, errors.NewValidationError(errors.CodeInvalidLayer,
				"gru layer needs positive in and out sizes")
		}
		return nn.NewGRU(spec.In, spec.Out), nil

	default:
		return nil, errors.NewValidationError(errors.CodeInvalidLayer,
			fmt.Sprintf("layer type %q is not supported", spec.Type))
	}
}

// annotateLayerError prefixes a layer construction error with its position.
func annotateLayerError(err error, index int) error {
	if appErr, ok := errors.AsAppError(err); ok {
		return appErr.WithDetails(fmt.Sprintf("layer %d", index))
	}
	return err
}

// buildLoss resolves a loss name. An empty name yields nil, which the
// network constructors default to negative log likelihood.
func buildLoss(name string) (nn.Loss, error) {
	switch name {
	case "":
		return nil, nil
	case constants.LossMeanSquaredError:
		return nn.NewMeanSquaredError(), nil
	case constants.LossNegativeLogLikelihood:
		return nn.NewNegativeLogLikelihood(), nil
	default:
		return nil, errors.NewValidationError(errors.CodeUnsupportedType,
			fmt.Sprintf("loss %q is not supported", name))
	}
}

// BuildOptimizer constructs an optimizer from its spec, falling back to the
// package defaults for unset numeric fields. An empty optimizer type selects
// standard SGD.
func BuildOptimizer(spec models.OptimizerSpec) (optimize.Optimizer, error) {
	stepSize := spec.StepSize
	if stepSize <= 0 {
		stepSize = constants.DefaultStepSize
	}
	batchSize := spec.BatchSize
	if batchSize <= 0 {
		batchSize = constants.DefaultBatchSize
	}
	maxIterations := spec.MaxIterations
	if maxIterations <= 0 {
		maxIterations = constants.DefaultMaxIterations
	}
	tolerance := spec.Tolerance
	if tolerance == 0 {
		tolerance = constants.DefaultTolerance
	}

	switch spec.Type {
	case "", constants.OptimizerSGD:
		opt := optimize.NewStandardSGD(stepSize, batchSize, maxIterations, tolerance)
		opt.Shuffle = !spec.NoShuffle
		return opt, nil

	case constants.OptimizerRMSProp:
		alpha := spec.Alpha
		if alpha == 0 {
			alpha = 0.99
		}
		epsilon := spec.Epsilon
		if epsilon == 0 {
			epsilon = 1e-8
		}
		opt := optimize.NewRMSProp(stepSize, batchSize, alpha, epsilon, maxIterations, tolerance)
		opt.Shuffle = !spec.NoShuffle
		return opt, nil

	case constants.OptimizerAdam:
		opt := optimize.NewAdam(stepSize, batchSize, maxIterations, tolerance)
		if spec.Beta1 != 0 {
			opt.Beta1 = spec.Beta1
		}
		if spec.Beta2 != 0 {
			opt.Beta2 = spec.Beta2
		}
		if spec.Epsilon != 0 {
			opt.Epsilon = spec.Epsilon
		}
		opt.Shuffle = !spec.NoShuffle
		return opt, nil

	default:
		return nil, errors.NewValidationError(errors.CodeUnsupportedType,
			fmt.Sprintf("optimizer type %q is not supported", spec.Type))
	}
}
