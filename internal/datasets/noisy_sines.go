package datasets

import (
	"context"
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/seqforge/seqnet/internal/nn"
	"github.com/seqforge/seqnet/pkg/constants"
	"github.com/seqforge/seqnet/pkg/errors"
	"github.com/seqforge/seqnet/pkg/models"
)

// GenerateNoisySines builds a two-class sequence classification set. Half the
// columns carry a noisy sine wave, the other half a noisy sine of half the
// frequency; both use a random phase per class draw. The returned cube has
// one feature row, 2*sequences columns and points steps. The label matrix is
// one-hot with class 0 in the first sequences columns and class 1 in the
// rest.
func GenerateNoisySines(points, sequences int, noise float64, rng *rand.Rand) (*nn.Cube, *mat.Dense) {
	x := make([]float64, points)
	for i := range x {
		x[i] = float64(i) / float64(points) * 20.0
	}

	y1 := make([]float64, points)
	y2 := make([]float64, points)
	phase1 := rng.Float64() * 3.0
	phase2 := rng.Float64() * 3.0
	for i := range x {
		y1[i] = math.Sin(x[i] + phase1)
		y2[i] = math.Sin(x[i]/2.0 + phase2)
	}

	data := nn.NewCube(1, 2*sequences, points)
	for seq := 0; seq < sequences; seq++ {
		offset := (rng.Float64() - 0.5) * noise
		for t := 0; t < points; t++ {
			data.Set(0, seq, t, rng.Float64()*noise+y1[t]+offset)
		}
		offset = (rng.Float64() - 0.5) * noise
		for t := 0; t < points; t++ {
			data.Set(0, sequences+seq, t, rng.Float64()*noise+y2[t]+offset)
		}
	}

	labels := mat.NewDense(2, 2*sequences, nil)
	for seq := 0; seq < sequences; seq++ {
		labels.Set(0, seq, 1)
		labels.Set(1, sequences+seq, 1)
	}
	return data, labels
}

// NoisySinesConfig configures noisy sine classification sets.
type NoisySinesConfig struct {
	Points    int     `json:"points"`
	Sequences int     `json:"sequences"`
	Noise     float64 `json:"noise"`
}

func getDefaultNoisySinesConfig() *NoisySinesConfig {
	return &NoisySinesConfig{
		Points:    10,
		Sequences: 5,
		Noise:     0.3,
	}
}

// NoisySinesGenerator produces two-class noisy sine classification sets.
type NoisySinesGenerator struct {
	logger *logrus.Logger
	config *NoisySinesConfig
}

// NewNoisySinesGenerator creates a noisy sines generator.
func NewNoisySinesGenerator(config *NoisySinesConfig, logger *logrus.Logger) *NoisySinesGenerator {
	if config == nil {
		config = getDefaultNoisySinesConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &NoisySinesGenerator{logger: logger, config: config}
}

func (g *NoisySinesGenerator) GetType() string {
	return constants.DatasetTypeNoisySines
}

func (g *NoisySinesGenerator) GetName() string {
	return "Noisy Sines Generator"
}

func (g *NoisySinesGenerator) GetDescription() string {
	return "Generates two-class sequence classification data from sine waves of different frequencies with additive uniform noise"
}

func (g *NoisySinesGenerator) GetDefaultParameters() map[string]interface{} {
	return map[string]interface{}{
		"points":    g.config.Points,
		"sequences": g.config.Sequences,
		"noise":     g.config.Noise,
	}
}

func (g *NoisySinesGenerator) parseSpec(spec models.DatasetSpec) (*NoisySinesConfig, error) {
	points, err := intParam(spec.Parameters, "points", g.config.Points)
	if err != nil {
		return nil, err
	}
	sequences, err := intParam(spec.Parameters, "sequences", g.config.Sequences)
	if err != nil {
		return nil, err
	}
	noise, err := floatParam(spec.Parameters, "noise", g.config.Noise)
	if err != nil {
		return nil, err
	}
	return &NoisySinesConfig{Points: points, Sequences: sequences, Noise: noise}, nil
}

func (g *NoisySinesGenerator) ValidateParameters(spec models.DatasetSpec) error {
	cfg, err := g.parseSpec(spec)
	if err != nil {
		return err
	}
	if cfg.Points <= 0 {
		return errors.NewValidationError(errors.CodeOutOfRange, "points must be positive")
	}
	if cfg.Sequences <= 0 {
		return errors.NewValidationError(errors.CodeOutOfRange, "sequences must be positive")
	}
	if cfg.Noise < 0 {
		return errors.NewValidationError(errors.CodeOutOfRange, "noise must not be negative")
	}
	return nil
}

func (g *NoisySinesGenerator) Generate(ctx context.Context, spec models.DatasetSpec) (*Dataset, error) {
	if err := g.ValidateParameters(spec); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeGeneration, errors.CodeGenerationFailed, "generation cancelled")
	}

	cfg, err := g.parseSpec(spec)
	if err != nil {
		return nil, err
	}

	rng := NewRand(spec.Seed)
	data, labels := GenerateNoisySines(cfg.Points, cfg.Sequences, cfg.Noise, rng)

	g.logger.WithFields(logrus.Fields{
		"type":      g.GetType(),
		"points":    cfg.Points,
		"sequences": cfg.Sequences,
	}).Debug("generated noisy sines dataset")

	return &Dataset{
		Info:    newDatasetInfo(g.GetType(), spec.Name, spec.Seed, data),
		Inputs:  data,
		Targets: ClassTargets(labels, data.Steps()),
		Labels:  labels,
	}, nil
}
