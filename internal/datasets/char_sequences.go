package datasets

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/seqforge/seqnet/internal/nn"
	"github.com/seqforge/seqnet/pkg/constants"
	"github.com/seqforge/seqnet/pkg/errors"
	"github.com/seqforge/seqnet/pkg/models"
)

// NumLetters is the alphabet size of one-hot encoded character sequences.
const NumLetters = 256

// EncodeCharSequence one-hot encodes a line of text for next-character
// prediction. The input cube is NumLetters x 1 x len(line); the target cube
// carries the 1-based code of the following character per step, with a null
// letter (class 1) after the final character.
func EncodeCharSequence(line string) (*nn.Cube, *nn.Cube) {
	if len(line) == 0 {
		panic("datasets: cannot encode an empty line")
	}

	input := nn.NewCube(NumLetters, 1, len(line))
	target := nn.NewCube(1, 1, len(line))
	for i := 0; i < len(line); i++ {
		input.Set(int(line[i]), 0, i, 1)
		if i+1 < len(line) {
			target.Set(0, 0, i, float64(line[i+1])+1)
		} else {
			target.Set(0, 0, i, 1)
		}
	}
	return input, target
}

// CharSequencesConfig configures character sequence sets.
type CharSequencesConfig struct {
	Lines []string `json:"lines"`
}

func getDefaultCharSequencesConfig() *CharSequencesConfig {
	return &CharSequencesConfig{
		Lines: []string{
			"THIS IS THE INPUT 0",
			"THIS IS THE INPUT 1",
			"THIS IS THE INPUT 3",
		},
	}
}

// CharSequencesGenerator produces one-hot character sequences for
// next-character prediction. All lines must share one length so they batch
// into a single cube.
type CharSequencesGenerator struct {
	logger *logrus.Logger
	config *CharSequencesConfig
}

// NewCharSequencesGenerator creates a character sequence generator.
func NewCharSequencesGenerator(config *CharSequencesConfig, logger *logrus.Logger) *CharSequencesGenerator {
	if config == nil {
		config = getDefaultCharSequencesConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &CharSequencesGenerator{logger: logger, config: config}
}

func (g *CharSequencesGenerator) GetType() string {
	return constants.DatasetTypeCharSequences
}

func (g *CharSequencesGenerator) GetName() string {
	return "Character Sequences Generator"
}

func (g *CharSequencesGenerator) GetDescription() string {
	return "Generates one-hot encoded character sequences with next-character targets"
}

func (g *CharSequencesGenerator) GetDefaultParameters() map[string]interface{} {
	return map[string]interface{}{
		"lines": g.config.Lines,
	}
}

func (g *CharSequencesGenerator) ValidateParameters(spec models.DatasetSpec) error {
	lines, err := stringsParam(spec.Parameters, "lines", g.config.Lines)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		return errors.NewValidationError(errors.CodeOutOfRange, "at least one line is required")
	}
	for i, line := range lines {
		if len(line) == 0 {
			return errors.NewValidationError(errors.CodeInvalidInput,
				fmt.Sprintf("line %d is empty", i))
		}
		if len(line) != len(lines[0]) {
			return errors.NewValidationError(errors.CodeInvalidInput,
				fmt.Sprintf("line %d has length %d, but line 0 has length %d", i, len(line), len(lines[0])))
		}
	}
	return nil
}

func (g *CharSequencesGenerator) Generate(ctx context.Context, spec models.DatasetSpec) (*Dataset, error) {
	if err := g.ValidateParameters(spec); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeGeneration, errors.CodeGenerationFailed, "generation cancelled")
	}

	lines, err := stringsParam(spec.Parameters, "lines", g.config.Lines)
	if err != nil {
		return nil, err
	}

	steps := len(lines[0])
	inputs := nn.NewCube(NumLetters, len(lines), steps)
	targets := nn.NewCube(1, len(lines), steps)
	for j, line := range lines {
		in, tg := EncodeCharSequence(line)
		for t := 0; t < steps; t++ {
			for i := 0; i < NumLetters; i++ {
				if v := in.At(i, 0, t); v != 0 {
					inputs.Set(i, j, t, v)
				}
			}
			targets.Set(0, j, t, tg.At(0, 0, t))
		}
	}

	g.logger.WithFields(logrus.Fields{
		"type":  g.GetType(),
		"lines": len(lines),
		"steps": steps,
	}).Debug("generated character sequence dataset")

	return &Dataset{
		Info:    newDatasetInfo(g.GetType(), spec.Name, spec.Seed, inputs),
		Inputs:  inputs,
		Targets: targets,
	}, nil
}
