package nn

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Cube is a rank-3 container for sequence batches. It holds one rows×cols
// matrix per time step: rows index feature dimensions, columns index the
// sequences of a batch and slices index time steps.
type Cube struct {
	rows   int
	cols   int
	slices []*mat.Dense
}

// NewCube creates a zero-filled cube with the given dimensions.
func NewCube(rows, cols, steps int) *Cube {
	if rows <= 0 || cols <= 0 || steps <= 0 {
		panic(fmt.Sprintf("nn: invalid cube dimensions %dx%dx%d", rows, cols, steps))
	}

	slices := make([]*mat.Dense, steps)
	for t := range slices {
		slices[t] = mat.NewDense(rows, cols, nil)
	}

	return &Cube{rows: rows, cols: cols, slices: slices}
}

// NewCubeFromSlices wraps existing matrices as a cube. All matrices must share
// the same dimensions.
func NewCubeFromSlices(slices []*mat.Dense) (*Cube, error) {
	if len(slices) == 0 {
		return nil, fmt.Errorf("nn: cube requires at least one slice")
	}

	rows, cols := slices[0].Dims()
	for t, s := range slices {
		r, c := s.Dims()
		if r != rows || c != cols {
			return nil, fmt.Errorf("nn: slice %d has dimensions %dx%d, want %dx%d", t, r, c, rows, cols)
		}
	}

	return &Cube{rows: rows, cols: cols, slices: slices}, nil
}

// Rows returns the number of feature dimensions.
func (c *Cube) Rows() int { return c.rows }

// Cols returns the number of sequences in the batch.
func (c *Cube) Cols() int { return c.cols }

// Steps returns the number of time steps.
func (c *Cube) Steps() int { return len(c.slices) }

// At returns the value at feature row r, sequence col, time step t.
func (c *Cube) At(r, col, t int) float64 { return c.slices[t].At(r, col) }

// Set stores v at feature row r, sequence col, time step t.
func (c *Cube) Set(r, col, t int, v float64) { c.slices[t].Set(r, col, v) }

// Slice returns the matrix for time step t. The returned matrix shares
// storage with the cube.
func (c *Cube) Slice(t int) *mat.Dense { return c.slices[t] }

// Copy returns a deep copy of the cube.
func (c *Cube) Copy() *Cube {
	out := NewCube(c.rows, c.cols, len(c.slices))
	for t, s := range c.slices {
		out.slices[t].Copy(s)
	}
	return out
}

// Fill sets every element of the cube to v.
func (c *Cube) Fill(v float64) {
	for _, s := range c.slices {
		data := s.RawMatrix().Data
		for i := range data {
			data[i] = v
		}
	}
}

// ColumnRange returns a copy of the columns in [from, to).
func (c *Cube) ColumnRange(from, to int) *Cube {
	if from < 0 || to > c.cols || from >= to {
		panic(fmt.Sprintf("nn: invalid column range [%d, %d) for cube with %d columns", from, to, c.cols))
	}

	out := NewCube(c.rows, to-from, len(c.slices))
	for t, s := range c.slices {
		for j := from; j < to; j++ {
			for i := 0; i < c.rows; i++ {
				out.slices[t].Set(i, j-from, s.At(i, j))
			}
		}
	}
	return out
}

// Columns returns a copy of the cube restricted to the given column indices,
// in the given order.
func (c *Cube) Columns(idx []int) *Cube {
	if len(idx) == 0 {
		panic("nn: Columns requires at least one index")
	}

	out := NewCube(c.rows, len(idx), len(c.slices))
	for t, s := range c.slices {
		for j, col := range idx {
			for i := 0; i < c.rows; i++ {
				out.slices[t].Set(i, j, s.At(i, col))
			}
		}
	}
	return out
}

// Tube returns the values across all time steps at feature row r and
// sequence col.
func (c *Cube) Tube(r, col int) []float64 {
	out := make([]float64, len(c.slices))
	for t, s := range c.slices {
		out[t] = s.At(r, col)
	}
	return out
}

// SetTube stores vals across time steps at feature row r and sequence col.
func (c *Cube) SetTube(r, col int, vals []float64) {
	if len(vals) != len(c.slices) {
		panic(fmt.Sprintf("nn: SetTube got %d values for %d steps", len(vals), len(c.slices)))
	}
	for t, v := range vals {
		c.slices[t].Set(r, col, v)
	}
}

// Vectorize flattens the cube in slice-major order: time step outermost,
// then column, then row. Consecutive elements of one column therefore stay
// adjacent within each step.
func (c *Cube) Vectorize() []float64 {
	out := make([]float64, 0, c.rows*c.cols*len(c.slices))
	for _, s := range c.slices {
		for j := 0; j < c.cols; j++ {
			for i := 0; i < c.rows; i++ {
				out = append(out, s.At(i, j))
			}
		}
	}
	return out
}

// EqualWithin reports whether both cubes have identical dimensions and all
// elements agree within the absolute tolerance.
func (c *Cube) EqualWithin(other *Cube, tol float64) bool {
	if other == nil || c.rows != other.rows || c.cols != other.cols || len(c.slices) != len(other.slices) {
		return false
	}
	for t := range c.slices {
		for j := 0; j < c.cols; j++ {
			for i := 0; i < c.rows; i++ {
				d := c.slices[t].At(i, j) - other.slices[t].At(i, j)
				if d < -tol || d > tol {
					return false
				}
			}
		}
	}
	return true
}
