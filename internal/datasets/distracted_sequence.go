package datasets

import (
	"context"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/seqforge/seqnet/internal/nn"
	"github.com/seqforge/seqnet/pkg/constants"
	"github.com/seqforge/seqnet/pkg/errors"
	"github.com/seqforge/seqnet/pkg/models"
)

// GenerateDistractedSequence builds one distracted sequence recall instance.
// Ten symbols arrive over ten steps: two randomly placed target symbols
// drawn from {0, 1}, six distractors drawn from {2..7} and two prompt
// symbols at the fixed final positions 8 and 9. The network must answer the
// prompts with the target symbols in their order of appearance, so the
// earlier target is reported at step 8 and the later one at step 9, each on
// the output row of its symbol.
//
// The returned input cube is 10x1x10 one-hot, the output cube 3x1x10 with
// exactly the two answer cells hot.
func GenerateDistractedSequence(rng *rand.Rand) (*nn.Cube, *nn.Cube) {
	input := nn.NewCube(10, 1, 10)
	output := nn.NewCube(3, 1, 10)

	index := rng.Perm(8)

	for i := 0; i < 2; i++ {
		symbol := rng.Intn(2)
		input.Set(symbol, 0, index[i], 1)

		answer := 8
		if index[i] > index[1-i] {
			answer = 9
		}
		output.Set(symbol, 0, answer, 1)
	}

	for i := 2; i < 8; i++ {
		input.Set(2+rng.Intn(6), 0, index[i], 1)
	}

	// Prompt symbols at the two final steps.
	input.Set(8, 0, 8, 1)
	input.Set(9, 0, 9, 1)

	return input, output
}

// DistractedSequenceConfig configures distracted sequence recall sets.
type DistractedSequenceConfig struct {
	Sequences int `json:"sequences"`
}

func getDefaultDistractedSequenceConfig() *DistractedSequenceConfig {
	return &DistractedSequenceConfig{Sequences: 100}
}

// DistractedSequenceGenerator produces batches of distracted sequence recall
// instances.
type DistractedSequenceGenerator struct {
	logger *logrus.Logger
	config *DistractedSequenceConfig
}

// NewDistractedSequenceGenerator creates a distracted sequence generator.
func NewDistractedSequenceGenerator(config *DistractedSequenceConfig, logger *logrus.Logger) *DistractedSequenceGenerator {
	if config == nil {
		config = getDefaultDistractedSequenceConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &DistractedSequenceGenerator{logger: logger, config: config}
}

func (g *DistractedSequenceGenerator) GetType() string {
	return constants.DatasetTypeDistractedSequence
}

func (g *DistractedSequenceGenerator) GetName() string {
	return "Distracted Sequence Recall Generator"
}

func (g *DistractedSequenceGenerator) GetDescription() string {
	return "Generates distracted sequence recall tasks where two target symbols must be recalled in order after six distractors and two prompts"
}

func (g *DistractedSequenceGenerator) GetDefaultParameters() map[string]interface{} {
	return map[string]interface{}{
		"sequences": g.config.Sequences,
	}
}

func (g *DistractedSequenceGenerator) ValidateParameters(spec models.DatasetSpec) error {
	sequences, err := intParam(spec.Parameters, "sequences", g.config.Sequences)
	if err != nil {
		return err
	}
	if sequences <= 0 {
		return errors.NewValidationError(errors.CodeOutOfRange, "sequences must be positive")
	}
	return nil
}

func (g *DistractedSequenceGenerator) Generate(ctx context.Context, spec models.DatasetSpec) (*Dataset, error) {
	if err := g.ValidateParameters(spec); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeGeneration, errors.CodeGenerationFailed, "generation cancelled")
	}

	sequences, err := intParam(spec.Parameters, "sequences", g.config.Sequences)
	if err != nil {
		return nil, err
	}

	rng := NewRand(spec.Seed)
	inputs := nn.NewCube(10, sequences, 10)
	targets := nn.NewCube(3, sequences, 10)
	for j := 0; j < sequences; j++ {
		in, out := GenerateDistractedSequence(rng)
		for t := 0; t < 10; t++ {
			for i := 0; i < 10; i++ {
				inputs.Set(i, j, t, in.At(i, 0, t))
			}
			for i := 0; i < 3; i++ {
				targets.Set(i, j, t, out.At(i, 0, t))
			}
		}
	}

	g.logger.WithFields(logrus.Fields{
		"type":      g.GetType(),
		"sequences": sequences,
	}).Debug("generated distracted sequence dataset")

	return &Dataset{
		Info:    newDatasetInfo(g.GetType(), spec.Name, spec.Seed, inputs),
		Inputs:  inputs,
		Targets: targets,
	}, nil
}
