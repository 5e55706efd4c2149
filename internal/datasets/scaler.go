package datasets

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/seqforge/seqnet/internal/nn"
	"github.com/seqforge/seqnet/pkg/errors"
)

// Scaling methods supported by DataScaler.
const (
	ScaleMinMax = "minmax"
	ScaleZScore = "zscore"
	ScaleRobust = "robust"
)

// DataScaler normalizes series values. Fit learns the statistics of a
// reference series; Transform and InverseTransform then map values into and
// out of the normalized range.
type DataScaler struct {
	method string
	min    float64
	max    float64
	mean   float64
	std    float64
	q25    float64
	q75    float64
	median float64
	fitted bool
}

// NewDataScaler creates a scaler for the given method.
func NewDataScaler(method string) *DataScaler {
	return &DataScaler{method: method}
}

// Fit learns the scaling statistics from data.
func (ds *DataScaler) Fit(data []float64) error {
	if len(data) == 0 {
		return errors.NewValidationError(errors.CodeInsufficientData, "cannot fit scaler on empty data")
	}

	switch ds.method {
	case ScaleMinMax:
		ds.min = floats.Min(data)
		ds.max = floats.Max(data)
	case ScaleZScore:
		ds.mean, ds.std = stat.MeanStdDev(data, nil)
		if len(data) == 1 {
			ds.std = 0
		}
	case ScaleRobust:
		sorted := make([]float64, len(data))
		copy(sorted, data)
		sort.Float64s(sorted)
		n := len(sorted)
		ds.median = sorted[n/2]
		ds.q25 = sorted[n/4]
		ds.q75 = sorted[3*n/4]
	default:
		return errors.NewValidationError(errors.CodeInvalidInput,
			fmt.Sprintf("unknown scaling method %q", ds.method))
	}

	ds.fitted = true
	return nil
}

// Transform maps values into the normalized range. An unfitted scaler
// returns the input unchanged.
func (ds *DataScaler) Transform(data []float64) []float64 {
	if !ds.fitted {
		return data
	}

	out := make([]float64, len(data))
	switch ds.method {
	case ScaleMinMax:
		scale := ds.max - ds.min
		if scale == 0 {
			scale = 1
		}
		for i, v := range data {
			out[i] = (v - ds.min) / scale
		}
	case ScaleZScore:
		if ds.std == 0 {
			copy(out, data)
		} else {
			for i, v := range data {
				out[i] = (v - ds.mean) / ds.std
			}
		}
	case ScaleRobust:
		scale := ds.q75 - ds.q25
		if scale == 0 {
			scale = 1
		}
		for i, v := range data {
			out[i] = (v - ds.median) / scale
		}
	}
	return out
}

// InverseTransform maps normalized values back to the original range.
func (ds *DataScaler) InverseTransform(data []float64) []float64 {
	if !ds.fitted {
		return data
	}

	out := make([]float64, len(data))
	switch ds.method {
	case ScaleMinMax:
		scale := ds.max - ds.min
		for i, v := range data {
			out[i] = v*scale + ds.min
		}
	case ScaleZScore:
		for i, v := range data {
			out[i] = v*ds.std + ds.mean
		}
	case ScaleRobust:
		scale := ds.q75 - ds.q25
		for i, v := range data {
			out[i] = v*scale + ds.median
		}
	}
	return out
}

// ScaleCube fits the scaler on all values of the cube and replaces them with
// their normalized counterparts.
func ScaleCube(c *nn.Cube, method string) (*DataScaler, error) {
	ds := NewDataScaler(method)
	flat := c.Vectorize()
	if err := ds.Fit(flat); err != nil {
		return nil, err
	}

	scaled := ds.Transform(flat)
	idx := 0
	for t := 0; t < c.Steps(); t++ {
		for j := 0; j < c.Cols(); j++ {
			for i := 0; i < c.Rows(); i++ {
				c.Set(i, j, t, scaled[idx])
				idx++
			}
		}
	}
	return ds, nil
}
