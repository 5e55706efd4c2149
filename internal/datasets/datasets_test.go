package datasets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/seqforge/seqnet/pkg/errors"
	"github.com/seqforge/seqnet/pkg/models"
)

func TestNewRandDeterministic(t *testing.T) {
	r1 := NewRand(42)
	r2 := NewRand(42)
	for i := 0; i < 5; i++ {
		assert.Equal(t, r1.Float64(), r2.Float64())
	}

	clock := NewRand(0)
	v := clock.Float64()
	assert.GreaterOrEqual(t, v, 0.0)
	assert.Less(t, v, 1.0)
}

func TestIntParam(t *testing.T) {
	params := map[string]interface{}{
		"int":     5,
		"int64":   int64(9),
		"float":   7.0,
		"bad":     "ten",
		"nothing": nil,
	}

	v, err := intParam(params, "int", 1)
	require.NoError(t, err)
	assert.Equal(t, 5, v)

	v, err = intParam(params, "int64", 1)
	require.NoError(t, err)
	assert.Equal(t, 9, v)

	v, err = intParam(params, "float", 1)
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	v, err = intParam(params, "missing", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	v, err = intParam(params, "nothing", 4)
	require.NoError(t, err)
	assert.Equal(t, 4, v)

	_, err = intParam(params, "bad", 1)
	var appErr *errors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, errors.CodeInvalidInput, appErr.Code)
}

func TestFloatParam(t *testing.T) {
	params := map[string]interface{}{
		"int":   3,
		"float": 2.5,
		"bad":   true,
	}

	v, err := floatParam(params, "int", 0)
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)

	v, err = floatParam(params, "float", 0)
	require.NoError(t, err)
	assert.Equal(t, 2.5, v)

	v, err = floatParam(params, "missing", 1.5)
	require.NoError(t, err)
	assert.Equal(t, 1.5, v)

	_, err = floatParam(params, "bad", 0)
	var appErr *errors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, errors.CodeInvalidInput, appErr.Code)
}

func TestBoolParam(t *testing.T) {
	params := map[string]interface{}{
		"flag": true,
		"bad":  1,
	}

	v, err := boolParam(params, "flag", false)
	require.NoError(t, err)
	assert.True(t, v)

	v, err = boolParam(params, "missing", true)
	require.NoError(t, err)
	assert.True(t, v)

	_, err = boolParam(params, "bad", false)
	var appErr *errors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, errors.CodeInvalidInput, appErr.Code)
}

func TestStringsParam(t *testing.T) {
	params := map[string]interface{}{
		"plain":   []string{"a", "b"},
		"decoded": []interface{}{"c", "d"},
		"mixed":   []interface{}{"e", 5},
		"bad":     42,
	}

	v, err := stringsParam(params, "plain", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, v)

	v, err = stringsParam(params, "decoded", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, v)

	v, err = stringsParam(params, "missing", []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, v)

	var appErr *errors.AppError
	_, err = stringsParam(params, "mixed", nil)
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, errors.CodeInvalidInput, appErr.Code)

	_, err = stringsParam(params, "bad", nil)
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, errors.CodeInvalidInput, appErr.Code)
}

func TestClassTargets(t *testing.T) {
	labels := mat.NewDense(3, 4, nil)
	labels.Set(0, 0, 1)
	labels.Set(2, 1, 1)
	labels.Set(1, 2, 1)
	labels.Set(2, 3, 1)

	targets := ClassTargets(labels, 2)
	assert.Equal(t, 1, targets.Rows())
	assert.Equal(t, 4, targets.Cols())
	assert.Equal(t, 2, targets.Steps())

	want := []float64{1, 3, 2, 3}
	for j, class := range want {
		for step := 0; step < 2; step++ {
			assert.Equal(t, class, targets.At(0, j, step))
		}
	}
}

func TestGenerateNoisySinesShapeAndLabels(t *testing.T) {
	data, labels := GenerateNoisySines(10, 3, 0.3, NewRand(7))

	assert.Equal(t, 1, data.Rows())
	assert.Equal(t, 6, data.Cols())
	assert.Equal(t, 10, data.Steps())

	rows, cols := labels.Dims()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 6, cols)
	for j := 0; j < 3; j++ {
		assert.Equal(t, 1.0, labels.At(0, j))
		assert.Equal(t, 0.0, labels.At(1, j))
		assert.Equal(t, 0.0, labels.At(0, 3+j))
		assert.Equal(t, 1.0, labels.At(1, 3+j))
	}
}

func TestGenerateNoisySinesDeterministicBySeed(t *testing.T) {
	d1, l1 := GenerateNoisySines(10, 4, 0.3, NewRand(19))
	d2, l2 := GenerateNoisySines(10, 4, 0.3, NewRand(19))

	assert.True(t, d1.EqualWithin(d2, 0))
	assert.True(t, mat.Equal(l1, l2))
}

func TestGenerateNoisySinesWithoutNoise(t *testing.T) {
	// With zero noise every column of a class is the pure wave for that
	// class, and the two classes use different frequencies.
	data, _ := GenerateNoisySines(10, 3, 0, NewRand(7))

	for step := 0; step < 10; step++ {
		for j := 1; j < 3; j++ {
			assert.Equal(t, data.At(0, 0, step), data.At(0, j, step))
			assert.Equal(t, data.At(0, 3, step), data.At(0, 3+j, step))
		}
	}

	same := true
	for step := 0; step < 10; step++ {
		if data.At(0, 0, step) != data.At(0, 3, step) {
			same = false
			break
		}
	}
	assert.False(t, same, "class waves must differ")
}

func TestDistractedSequenceGeneratorBatch(t *testing.T) {
	gen := NewDistractedSequenceGenerator(nil, nil)
	spec := models.DatasetSpec{
		Type:       gen.GetType(),
		Seed:       11,
		Parameters: map[string]interface{}{"sequences": 7},
	}

	ds, err := gen.Generate(context.Background(), spec)
	require.NoError(t, err)

	assert.Equal(t, 10, ds.Inputs.Rows())
	assert.Equal(t, 7, ds.Inputs.Cols())
	assert.Equal(t, 10, ds.Inputs.Steps())
	assert.Equal(t, 3, ds.Targets.Rows())
	assert.Equal(t, 7, ds.Targets.Cols())
	assert.Equal(t, 10, ds.Targets.Steps())

	for j := 0; j < 7; j++ {
		// One symbol per input step, prompts at the two final steps.
		for step := 0; step < 10; step++ {
			sum := 0.0
			for i := 0; i < 10; i++ {
				sum += ds.Inputs.At(i, j, step)
			}
			assert.Equalf(t, 1.0, sum, "column %d step %d", j, step)
		}
		assert.Equal(t, 1.0, ds.Inputs.At(8, j, 8))
		assert.Equal(t, 1.0, ds.Inputs.At(9, j, 9))

		// One recalled symbol per prompt step and nothing anywhere else.
		for _, step := range []int{8, 9} {
			sum := 0.0
			for i := 0; i < 3; i++ {
				sum += ds.Targets.At(i, j, step)
			}
			assert.Equalf(t, 1.0, sum, "column %d answer step %d", j, step)
		}
		total := 0.0
		for step := 0; step < 10; step++ {
			for i := 0; i < 3; i++ {
				total += ds.Targets.At(i, j, step)
			}
		}
		assert.Equal(t, 2.0, total)
	}
}

func TestGenerateNoisySineSeriesWindowAlignment(t *testing.T) {
	cfg := &SineSeriesConfig{
		Rho:          10,
		OutputSteps:  1,
		DataPoints:   100,
		Gain:         1.0,
		Freq:         10,
		Phase:        0,
		NoisePercent: 20,
		NumCycles:    5,
		Normalize:    false,
	}
	data, labels := GenerateNoisySineSeries(cfg, NewRand(3))

	assert.Equal(t, 1, data.Rows())
	assert.Equal(t, 10, data.Cols())
	assert.Equal(t, 10, data.Steps())
	assert.Equal(t, 1, labels.Rows())
	assert.Equal(t, 10, labels.Cols())
	assert.Equal(t, 1, labels.Steps())

	// Windows tile the series, so the label of a window is the first sample
	// of the next one.
	for i := 0; i < 9; i++ {
		assert.Equal(t, data.At(0, i+1, 0), labels.At(0, i, 0))
	}
}

func TestGenerateNoisySineSeriesPadding(t *testing.T) {
	cfg := &SineSeriesConfig{
		Rho:          10,
		OutputSteps:  2,
		DataPoints:   95,
		Gain:         2.0,
		Freq:         10,
		Phase:        0.5,
		NoisePercent: 10,
		NumCycles:    5,
		Normalize:    false,
	}
	data, labels := GenerateNoisySineSeries(cfg, NewRand(5))

	// 95 points pad up to 102 so the windows plus lookahead fit exactly.
	assert.Equal(t, 10, data.Cols())
	assert.Equal(t, 10, data.Steps())
	assert.Equal(t, 2, labels.Rows())

	for i := 0; i < 9; i++ {
		assert.Equal(t, data.At(0, i+1, 0), labels.At(0, i, 0))
		assert.Equal(t, data.At(0, i+1, 1), labels.At(1, i, 0))
	}
}

func TestGenerateNoisySineSeriesNormalization(t *testing.T) {
	cfg := &SineSeriesConfig{
		Rho:          10,
		OutputSteps:  1,
		DataPoints:   100,
		Gain:         20.0,
		Freq:         10,
		Phase:        0,
		NoisePercent: 20,
		NumCycles:    5,
		Normalize:    true,
	}
	data, labels := GenerateNoisySineSeries(cfg, NewRand(13))

	// The windows plus the final label cover every sample of the padded
	// series exactly once, so the squares sum to one.
	sum := 0.0
	for _, v := range data.Vectorize() {
		sum += v * v
	}
	last := labels.At(0, labels.Cols()-1, 0)
	sum += last * last
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestEncodeCharSequence(t *testing.T) {
	input, target := EncodeCharSequence("AB")

	assert.Equal(t, NumLetters, input.Rows())
	assert.Equal(t, 1, input.Cols())
	assert.Equal(t, 2, input.Steps())

	assert.Equal(t, 1.0, input.At('A', 0, 0))
	assert.Equal(t, 1.0, input.At('B', 0, 1))
	for step := 0; step < 2; step++ {
		sum := 0.0
		for i := 0; i < NumLetters; i++ {
			sum += input.At(i, 0, step)
		}
		assert.Equal(t, 1.0, sum)
	}

	assert.Equal(t, float64('B')+1, target.At(0, 0, 0))
	assert.Equal(t, 1.0, target.At(0, 0, 1))

	assert.Panics(t, func() { EncodeCharSequence("") })
}

func TestCharSequencesGeneratorBatches(t *testing.T) {
	gen := NewCharSequencesGenerator(nil, nil)
	spec := models.DatasetSpec{
		Type:       gen.GetType(),
		Parameters: map[string]interface{}{"lines": []interface{}{"AB", "CD"}},
	}

	ds, err := gen.Generate(context.Background(), spec)
	require.NoError(t, err)

	assert.Equal(t, NumLetters, ds.Inputs.Rows())
	assert.Equal(t, 2, ds.Inputs.Cols())
	assert.Equal(t, 2, ds.Inputs.Steps())

	assert.Equal(t, 1.0, ds.Inputs.At('A', 0, 0))
	assert.Equal(t, 1.0, ds.Inputs.At('B', 0, 1))
	assert.Equal(t, 1.0, ds.Inputs.At('C', 1, 0))
	assert.Equal(t, 1.0, ds.Inputs.At('D', 1, 1))

	assert.Equal(t, float64('B')+1, ds.Targets.At(0, 0, 0))
	assert.Equal(t, 1.0, ds.Targets.At(0, 0, 1))
	assert.Equal(t, float64('D')+1, ds.Targets.At(0, 1, 0))
	assert.Equal(t, 1.0, ds.Targets.At(0, 1, 1))
}

func TestNoisySinesGeneratorTargets(t *testing.T) {
	gen := NewNoisySinesGenerator(nil, nil)
	spec := models.DatasetSpec{
		Type: gen.GetType(),
		Seed: 9,
		Parameters: map[string]interface{}{
			"points":    4,
			"sequences": 2,
			"noise":     0.1,
		},
	}

	ds, err := gen.Generate(context.Background(), spec)
	require.NoError(t, err)
	require.NotNil(t, ds.Labels)

	assert.Equal(t, 1, ds.Targets.Rows())
	assert.Equal(t, 4, ds.Targets.Cols())
	assert.Equal(t, 4, ds.Targets.Steps())
	for step := 0; step < 4; step++ {
		assert.Equal(t, 1.0, ds.Targets.At(0, 0, step))
		assert.Equal(t, 1.0, ds.Targets.At(0, 1, step))
		assert.Equal(t, 2.0, ds.Targets.At(0, 2, step))
		assert.Equal(t, 2.0, ds.Targets.At(0, 3, step))
	}
}

func TestGeneratorDefaults(t *testing.T) {
	generators := []Generator{
		NewNoisySinesGenerator(nil, nil),
		NewDistractedSequenceGenerator(nil, nil),
		NewSineSeriesGenerator(nil, nil),
		NewCharSequencesGenerator(nil, nil),
	}

	for _, gen := range generators {
		t.Run(gen.GetType(), func(t *testing.T) {
			assert.NotEmpty(t, gen.GetName())
			assert.NotEmpty(t, gen.GetDescription())
			assert.NotEmpty(t, gen.GetDefaultParameters())
			require.NoError(t, gen.ValidateParameters(models.DatasetSpec{}))

			ds, err := gen.Generate(context.Background(), models.DatasetSpec{Seed: 21})
			require.NoError(t, err)
			require.NotNil(t, ds.Inputs)
			require.NotNil(t, ds.Targets)

			assert.NotEmpty(t, ds.Info.ID)
			assert.Equal(t, gen.GetType(), ds.Info.Type)
			assert.Equal(t, ds.Inputs.Rows(), ds.Info.Rows)
			assert.Equal(t, ds.Inputs.Cols(), ds.Info.Columns)
			assert.Equal(t, ds.Inputs.Steps(), ds.Info.Steps)
			assert.Equal(t, ds.Inputs.Cols(), ds.Targets.Cols())
		})
	}
}

func TestGeneratorParameterValidation(t *testing.T) {
	cases := []struct {
		name     string
		gen      Generator
		params   map[string]interface{}
		wantCode string
	}{
		{"negative points", NewNoisySinesGenerator(nil, nil), map[string]interface{}{"points": -1}, errors.CodeOutOfRange},
		{"points wrong type", NewNoisySinesGenerator(nil, nil), map[string]interface{}{"points": "ten"}, errors.CodeInvalidInput},
		{"negative noise", NewNoisySinesGenerator(nil, nil), map[string]interface{}{"noise": -0.1}, errors.CodeOutOfRange},
		{"zero sequences", NewDistractedSequenceGenerator(nil, nil), map[string]interface{}{"sequences": 0}, errors.CodeOutOfRange},
		{"lookahead too long", NewSineSeriesGenerator(nil, nil), map[string]interface{}{"output_steps": 10}, errors.CodeOutOfRange},
		{"zero freq", NewSineSeriesGenerator(nil, nil), map[string]interface{}{"freq": 0}, errors.CodeOutOfRange},
		{"normalize wrong type", NewSineSeriesGenerator(nil, nil), map[string]interface{}{"normalize": "yes"}, errors.CodeInvalidInput},
		{"no lines", NewCharSequencesGenerator(nil, nil), map[string]interface{}{"lines": []interface{}{}}, errors.CodeOutOfRange},
		{"ragged lines", NewCharSequencesGenerator(nil, nil), map[string]interface{}{"lines": []interface{}{"AB", "ABC"}}, errors.CodeInvalidInput},
		{"non-string line", NewCharSequencesGenerator(nil, nil), map[string]interface{}{"lines": []interface{}{"AB", 5}}, errors.CodeInvalidInput},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.gen.ValidateParameters(models.DatasetSpec{Parameters: tc.params})
			var appErr *errors.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tc.wantCode, appErr.Code)
		})
	}
}

func TestGenerateCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	factory := NewFactory(nil)
	for _, typ := range factory.GetAvailableTypes() {
		gen, err := factory.CreateGenerator(typ)
		require.NoError(t, err)

		_, err = gen.Generate(ctx, models.DatasetSpec{Type: typ, Seed: 3})
		var appErr *errors.AppError
		require.ErrorAsf(t, err, &appErr, "generator %s", typ)
		assert.Equal(t, errors.CodeGenerationFailed, appErr.Code)
	}
}
