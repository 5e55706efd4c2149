// Package datasets generates the synthetic sequence collections used for
// training and evaluating recurrent networks: noisy sine-wave classification
// sets, distracted sequence recall tasks, sine-wave regression series and
// one-hot encoded character sequences.
package datasets

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/seehuhn/mt19937"
	"gonum.org/v1/gonum/mat"

	"github.com/seqforge/seqnet/internal/nn"
	"github.com/seqforge/seqnet/pkg/errors"
	"github.com/seqforge/seqnet/pkg/models"
)

// Dataset is a generated collection of sequences. Inputs and Targets are
// aligned by column; Labels carries one-hot class labels for classification
// sets and is nil otherwise.
type Dataset struct {
	Info    models.DatasetInfo
	Inputs  *nn.Cube
	Targets *nn.Cube
	Labels  *mat.Dense
}

// Generator produces one family of synthetic sequence datasets.
type Generator interface {
	// GetType returns the dataset type identifier.
	GetType() string

	// GetName returns a human-readable name for the generator.
	GetName() string

	// GetDescription describes what the generator produces.
	GetDescription() string

	// GetDefaultParameters returns the parameter defaults as they appear in a
	// dataset spec.
	GetDefaultParameters() map[string]interface{}

	// ValidateParameters checks a dataset spec before generation.
	ValidateParameters(spec models.DatasetSpec) error

	// Generate produces a dataset from the spec.
	Generate(ctx context.Context, spec models.DatasetSpec) (*Dataset, error)
}

// NewRand creates a Mersenne Twister backed random source. A zero seed draws
// from the clock.
func NewRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	src := mt19937.New()
	src.Seed(seed)
	return rand.New(src)
}

// newDatasetInfo fills the common dataset metadata.
func newDatasetInfo(typ, name string, seed int64, inputs *nn.Cube) models.DatasetInfo {
	return models.DatasetInfo{
		ID:        uuid.New().String(),
		Type:      typ,
		Name:      name,
		Rows:      inputs.Rows(),
		Columns:   inputs.Cols(),
		Steps:     inputs.Steps(),
		Seed:      seed,
		CreatedAt: time.Now(),
	}
}

// intParam reads an integer parameter from a spec parameter map. JSON and
// YAML decoders deliver numbers as float64 or int, so both are accepted.
func intParam(params map[string]interface{}, key string, def int) (int, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, errors.NewValidationError(errors.CodeInvalidInput,
			fmt.Sprintf("parameter %q must be an integer, got %T", key, v))
	}
}

// floatParam reads a float parameter from a spec parameter map.
func floatParam(params map[string]interface{}, key string, def float64) (float64, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	default:
		return 0, errors.NewValidationError(errors.CodeInvalidInput,
			fmt.Sprintf("parameter %q must be a number, got %T", key, v))
	}
}

// boolParam reads a boolean parameter from a spec parameter map.
func boolParam(params map[string]interface{}, key string, def bool) (bool, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, errors.NewValidationError(errors.CodeInvalidInput,
			fmt.Sprintf("parameter %q must be a boolean, got %T", key, v))
	}
	return b, nil
}

// stringsParam reads a string slice parameter from a spec parameter map.
func stringsParam(params map[string]interface{}, key string, def []string) ([]string, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return def, nil
	}
	switch s := v.(type) {
	case []string:
		return s, nil
	case []interface{}:
		out := make([]string, 0, len(s))
		for _, e := range s {
			str, ok := e.(string)
			if !ok {
				return nil, errors.NewValidationError(errors.CodeInvalidInput,
					fmt.Sprintf("parameter %q must hold strings, got %T", key, e))
			}
			out = append(out, str)
		}
		return out, nil
	default:
		return nil, errors.NewValidationError(errors.CodeInvalidInput,
			fmt.Sprintf("parameter %q must be a string list, got %T", key, v))
	}
}

// ClassTargets expands one-hot labels into a class-ID target cube with the
// given number of steps: every step of column j carries the 1-based index of
// the hot row of labels column j.
func ClassTargets(labels *mat.Dense, steps int) *nn.Cube {
	rows, cols := labels.Dims()
	out := nn.NewCube(1, cols, steps)
	for j := 0; j < cols; j++ {
		class := 0
		best := labels.At(0, j)
		for i := 1; i < rows; i++ {
			if v := labels.At(i, j); v > best {
				best = v
				class = i
			}
		}
		for t := 0; t < steps; t++ {
			out.Set(0, j, t, float64(class+1))
		}
	}
	return out
}
