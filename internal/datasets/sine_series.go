package datasets

import (
	"context"
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/seqforge/seqnet/internal/nn"
	"github.com/seqforge/seqnet/pkg/constants"
	"github.com/seqforge/seqnet/pkg/errors"
	"github.com/seqforge/seqnet/pkg/models"
)

// SineSeriesConfig configures noisy sine regression series.
type SineSeriesConfig struct {
	Rho          int     `json:"rho"`
	OutputSteps  int     `json:"output_steps"`
	DataPoints   int     `json:"data_points"`
	Gain         float64 `json:"gain"`
	Freq         int     `json:"freq"`
	Phase        float64 `json:"phase"`
	NoisePercent int     `json:"noise_percent"`
	NumCycles    float64 `json:"num_cycles"`
	Normalize    bool    `json:"normalize"`
}

func getDefaultSineSeriesConfig() *SineSeriesConfig {
	return &SineSeriesConfig{
		Rho:          10,
		OutputSteps:  1,
		DataPoints:   100,
		Gain:         1.0,
		Freq:         10,
		Phase:        0,
		NoisePercent: 20,
		NumCycles:    6.0,
		Normalize:    true,
	}
}

// GenerateNoisySineSeries samples a noisy sine wave and chops it into
// sequence windows for one-step-ahead regression. The wave is padded so its
// length is a multiple of cfg.Rho plus cfg.OutputSteps lookahead values, and
// optionally normalized to unit Euclidean norm. Each data column carries Rho
// consecutive samples; its label column carries the OutputSteps samples that
// follow the window.
func GenerateNoisySineSeries(cfg *SineSeriesConfig, rng *rand.Rand) (*nn.Cube, *nn.Cube) {
	points := cfg.DataPoints
	if r := cfg.DataPoints % cfg.Rho; r == 0 {
		points += cfg.OutputSteps
	} else {
		points += cfg.Rho - r + cfg.OutputSteps
	}

	interval := cfg.NumCycles / float64(cfg.Freq) / float64(points)
	y := make([]float64, points)
	for i := range y {
		t := interval * float64(i+1)
		noise := float64(cfg.NoisePercent) * cfg.Gain / 100.0 * (rng.Float64() * 0.1)
		y[i] = cfg.Gain*math.Sin(2.0*math.Pi*float64(cfg.Freq)*t+cfg.Phase) + noise
	}

	if cfg.Normalize {
		norm := floats.Norm(y, 2)
		if norm > 0 {
			floats.Scale(1.0/norm, y)
		}
	}

	numColumns := points / cfg.Rho
	data := nn.NewCube(1, numColumns, cfg.Rho)
	labels := nn.NewCube(cfg.OutputSteps, numColumns, 1)
	for i := 0; i < numColumns; i++ {
		data.SetTube(0, i, y[i*cfg.Rho:i*cfg.Rho+cfg.Rho])
		for k := 0; k < cfg.OutputSteps; k++ {
			labels.Set(k, i, 0, y[i*cfg.Rho+cfg.Rho+k])
		}
	}
	return data, labels
}

// SineSeriesGenerator produces noisy sine regression series.
type SineSeriesGenerator struct {
	logger *logrus.Logger
	config *SineSeriesConfig
}

// NewSineSeriesGenerator creates a sine series generator.
func NewSineSeriesGenerator(config *SineSeriesConfig, logger *logrus.Logger) *SineSeriesGenerator {
	if config == nil {
		config = getDefaultSineSeriesConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &SineSeriesGenerator{logger: logger, config: config}
}

func (g *SineSeriesGenerator) GetType() string {
	return constants.DatasetTypeNoisySineSeries
}

func (g *SineSeriesGenerator) GetName() string {
	return "Noisy Sine Series Generator"
}

func (g *SineSeriesGenerator) GetDescription() string {
	return "Generates windowed noisy sine wave series for one-step-ahead sequence regression"
}

func (g *SineSeriesGenerator) GetDefaultParameters() map[string]interface{} {
	return map[string]interface{}{
		"rho":           g.config.Rho,
		"output_steps":  g.config.OutputSteps,
		"data_points":   g.config.DataPoints,
		"gain":          g.config.Gain,
		"freq":          g.config.Freq,
		"phase":         g.config.Phase,
		"noise_percent": g.config.NoisePercent,
		"num_cycles":    g.config.NumCycles,
		"normalize":     g.config.Normalize,
	}
}

func (g *SineSeriesGenerator) parseSpec(spec models.DatasetSpec) (*SineSeriesConfig, error) {
	cfg := &SineSeriesConfig{}
	var err error
	if cfg.Rho, err = intParam(spec.Parameters, "rho", g.config.Rho); err != nil {
		return nil, err
	}
	if cfg.OutputSteps, err = intParam(spec.Parameters, "output_steps", g.config.OutputSteps); err != nil {
		return nil, err
	}
	if cfg.DataPoints, err = intParam(spec.Parameters, "data_points", g.config.DataPoints); err != nil {
		return nil, err
	}
	if cfg.Gain, err = floatParam(spec.Parameters, "gain", g.config.Gain); err != nil {
		return nil, err
	}
	if cfg.Freq, err = intParam(spec.Parameters, "freq", g.config.Freq); err != nil {
		return nil, err
	}
	if cfg.Phase, err = floatParam(spec.Parameters, "phase", g.config.Phase); err != nil {
		return nil, err
	}
	if cfg.NoisePercent, err = intParam(spec.Parameters, "noise_percent", g.config.NoisePercent); err != nil {
		return nil, err
	}
	if cfg.NumCycles, err = floatParam(spec.Parameters, "num_cycles", g.config.NumCycles); err != nil {
		return nil, err
	}
	if cfg.Normalize, err = boolParam(spec.Parameters, "normalize", g.config.Normalize); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (g *SineSeriesGenerator) ValidateParameters(spec models.DatasetSpec) error {
	cfg, err := g.parseSpec(spec)
	if err != nil {
		return err
	}
	if cfg.Rho <= 0 {
		return errors.NewValidationError(errors.CodeOutOfRange, "rho must be positive")
	}
	if cfg.OutputSteps <= 0 || cfg.OutputSteps >= cfg.Rho {
		return errors.NewValidationError(errors.CodeOutOfRange, "output_steps must be positive and smaller than rho")
	}
	if cfg.DataPoints <= 0 {
		return errors.NewValidationError(errors.CodeOutOfRange, "data_points must be positive")
	}
	if cfg.Freq <= 0 {
		return errors.NewValidationError(errors.CodeOutOfRange, "freq must be positive")
	}
	return nil
}

func (g *SineSeriesGenerator) Generate(ctx context.Context, spec models.DatasetSpec) (*Dataset, error) {
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
	data, labels := GenerateNoisySineSeries(cfg, rng)

	g.logger.WithFields(logrus.Fields{
		"type":    g.GetType(),
		"columns": data.Cols(),
		"rho":     cfg.Rho,
	}).Debug("generated sine series dataset")

	return &Dataset{
		Info:    newDatasetInfo(g.GetType(), spec.Name, spec.Seed, data),
		Inputs:  data,
		Targets: labels,
	}, nil
}
