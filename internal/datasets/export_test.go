package datasets

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/seqforge/seqnet/internal/nn"
	"github.com/seqforge/seqnet/pkg/models"
)

// exportFixture is a 2-sequence, 3-step dataset with one input feature,
// class-ID targets and one-hot labels.
func exportFixture() *Dataset {
	inputs := nn.NewCube(1, 2, 3)
	for j := 0; j < 2; j++ {
		for t := 0; t < 3; t++ {
			inputs.Set(0, j, t, float64(j*10+t))
		}
	}

	labels := mat.NewDense(2, 2, []float64{
		1, 0,
		0, 1,
	})

	return &Dataset{
		Info:    models.DatasetInfo{ID: "d1", Type: "noisy_sines", Rows: 1, Columns: 2, Steps: 3},
		Inputs:  inputs,
		Targets: ClassTargets(labels, 3),
		Labels:  labels,
	}
}

func TestBuildExport(t *testing.T) {
	doc, err := BuildExport(exportFixture())
	require.NoError(t, err)

	assert.Equal(t, "d1", doc.Info.ID)
	require.Len(t, doc.Sequences, 2)

	first := doc.Sequences[0]
	assert.Equal(t, 0, first.Index)
	require.NotNil(t, first.Label)
	assert.Equal(t, 0, *first.Label)
	require.Len(t, first.Values, 3)
	assert.Equal(t, []float64{2}, first.Values[2])
	require.Len(t, first.Targets, 3)
	assert.Equal(t, []float64{1}, first.Targets[0], "class targets are 1-based")

	second := doc.Sequences[1]
	require.NotNil(t, second.Label)
	assert.Equal(t, 1, *second.Label)
	assert.Equal(t, []float64{10}, second.Values[0])
}

func TestBuildExportWithoutLabels(t *testing.T) {
	ds := exportFixture()
	ds.Labels = nil
	ds.Targets = nil

	doc, err := BuildExport(ds)
	require.NoError(t, err)
	assert.Nil(t, doc.Sequences[0].Label)
	assert.Nil(t, doc.Sequences[0].Targets)
}

func TestBuildExportNilDataset(t *testing.T) {
	_, err := BuildExport(nil)
	require.Error(t, err)

	_, err = BuildExport(&Dataset{})
	require.Error(t, err)
}

func TestExportJSONRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ExportJSON(&buf, exportFixture()))

	var doc ExportDocument
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "noisy_sines", doc.Info.Type)
	require.Len(t, doc.Sequences, 2)
	assert.Equal(t, [][]float64{{0}, {1}, {2}}, doc.Sequences[0].Values)
}

func TestExportCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ExportCSV(&buf, exportFixture()))

	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)

	// Header plus 2 sequences of 3 steps.
	require.Len(t, records, 7)
	assert.Equal(t, []string{"sequence", "step", "x0", "y0", "label"}, records[0])
	assert.Equal(t, []string{"0", "0", "0", "1", "0"}, records[1])
	assert.Equal(t, []string{"0", "2", "2", "1", "0"}, records[3])
	assert.Equal(t, []string{"1", "0", "10", "2", "1"}, records[4])
}

func TestExportCSVWithoutTargets(t *testing.T) {
	ds := exportFixture()
	ds.Targets = nil
	ds.Labels = nil

	var buf bytes.Buffer
	require.NoError(t, ExportCSV(&buf, ds))

	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"sequence", "step", "x0"}, records[0])
	require.Len(t, records, 7)
	assert.Equal(t, []string{"1", "2", "12"}, records[6])
}

func TestExportGeneratedDataset(t *testing.T) {
	gen := NewNoisySinesGenerator(nil, nil)
	ds, err := gen.Generate(context.Background(), models.DatasetSpec{
		Type: gen.GetType(),
		Seed: 3,
		Parameters: map[string]interface{}{
			"points":    5,
			"sequences": 2,
		},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, ExportCSV(&buf, ds))

	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 1+4*5)
}
