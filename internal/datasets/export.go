package datasets

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/seqforge/seqnet/pkg/errors"
	"github.com/seqforge/seqnet/pkg/models"
)

// ExportedSequence is one sequence of an exported dataset: step-aligned
// input values, optional targets and the class label for labeled sets.
type ExportedSequence struct {
	Index   int         `json:"index"`
	Label   *int        `json:"label,omitempty"`
	Values  [][]float64 `json:"values"`
	Targets [][]float64 `json:"targets,omitempty"`
}

// ExportDocument is the JSON export format for a generated dataset.
type ExportDocument struct {
	Info      models.DatasetInfo `json:"info"`
	Sequences []ExportedSequence `json:"sequences"`
}

// BuildExport flattens a dataset into its export document.
func BuildExport(ds *Dataset) (*ExportDocument, error) {
	if ds == nil || ds.Inputs == nil {
		return nil, errors.NewValidationError(errors.CodeInvalidInput,
			"dataset has no inputs to export")
	}

	doc := &ExportDocument{
		Info:      ds.Info,
		Sequences: make([]ExportedSequence, 0, ds.Inputs.Cols()),
	}

	for j := 0; j < ds.Inputs.Cols(); j++ {
		seq := ExportedSequence{
			Index:  j,
			Values: make([][]float64, ds.Inputs.Steps()),
		}
		for t := 0; t < ds.Inputs.Steps(); t++ {
			row := make([]float64, ds.Inputs.Rows())
			for i := range row {
				row[i] = ds.Inputs.At(i, j, t)
			}
			seq.Values[t] = row
		}

		if ds.Targets != nil {
			seq.Targets = make([][]float64, ds.Targets.Steps())
			for t := 0; t < ds.Targets.Steps(); t++ {
				row := make([]float64, ds.Targets.Rows())
				for i := range row {
					row[i] = ds.Targets.At(i, j, t)
				}
				seq.Targets[t] = row
			}
		}

		if ds.Labels != nil {
			label := labelClass(ds.Labels, j)
			seq.Label = &label
		}

		doc.Sequences = append(doc.Sequences, seq)
	}

	return doc, nil
}

// ExportJSON writes the dataset as an indented JSON document, one entry per
// sequence with its step values, targets and label.
func ExportJSON(w io.Writer, ds *Dataset) error {
	doc, err := BuildExport(ds)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return errors.WrapError(err, errors.ErrorTypeSerialization, errors.CodeEncodeFailed,
			"failed to encode dataset")
	}
	return nil
}

// ExportCSV writes the dataset as CSV with one row per sequence and step.
// Input features become x columns, target rows y columns; labeled sets get a
// trailing label column repeated on every step of the sequence.
func ExportCSV(w io.Writer, ds *Dataset) error {
	if ds == nil || ds.Inputs == nil {
		return errors.NewValidationError(errors.CodeInvalidInput,
			"dataset has no inputs to export")
	}

	cw := csv.NewWriter(w)

	header := []string{"sequence", "step"}
	for i := 0; i < ds.Inputs.Rows(); i++ {
		header = append(header, "x"+strconv.Itoa(i))
	}
	targetRows := 0
	if ds.Targets != nil {
		targetRows = ds.Targets.Rows()
		for i := 0; i < targetRows; i++ {
			header = append(header, "y"+strconv.Itoa(i))
		}
	}
	if ds.Labels != nil {
		header = append(header, "label")
	}
	if err := cw.Write(header); err != nil {
		return wrapCSVError(err)
	}

	record := make([]string, 0, len(header))
	for j := 0; j < ds.Inputs.Cols(); j++ {
		label := 0
		if ds.Labels != nil {
			label = labelClass(ds.Labels, j)
		}
		for t := 0; t < ds.Inputs.Steps(); t++ {
			record = record[:0]
			record = append(record, strconv.Itoa(j), strconv.Itoa(t))
			for i := 0; i < ds.Inputs.Rows(); i++ {
				record = append(record, formatValue(ds.Inputs.At(i, j, t)))
			}
			if ds.Targets != nil {
				for i := 0; i < targetRows; i++ {
					if t < ds.Targets.Steps() {
						record = append(record, formatValue(ds.Targets.At(i, j, t)))
					} else {
						record = append(record, "")
					}
				}
			}
			if ds.Labels != nil {
				record = append(record, strconv.Itoa(label))
			}
			if err := cw.Write(record); err != nil {
				return wrapCSVError(err)
			}
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return wrapCSVError(err)
	}
	return nil
}

func wrapCSVError(err error) error {
	return errors.WrapError(err, errors.ErrorTypeSerialization, errors.CodeEncodeFailed,
		"failed to write dataset CSV")
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// labelClass returns the hot row of the labels column.
func labelClass(labels *mat.Dense, j int) int {
	rows, _ := labels.Dims()
	best := 0
	bestVal := labels.At(0, j)
	for i := 1; i < rows; i++ {
		if v := labels.At(i, j); v > bestVal {
			bestVal = v
			best = i
		}
	}
	return best
}
