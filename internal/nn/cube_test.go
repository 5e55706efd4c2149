package nn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestNewCube(t *testing.T) {
	c := NewCube(3, 4, 5)

	assert.Equal(t, 3, c.Rows())
	assert.Equal(t, 4, c.Cols())
	assert.Equal(t, 5, c.Steps())

	for s := 0; s < c.Steps(); s++ {
		for j := 0; j < c.Cols(); j++ {
			for i := 0; i < c.Rows(); i++ {
				assert.Zero(t, c.At(i, j, s))
			}
		}
	}
}

func TestNewCubePanicsOnInvalidDims(t *testing.T) {
	assert.Panics(t, func() { NewCube(0, 1, 1) })
	assert.Panics(t, func() { NewCube(1, -1, 1) })
	assert.Panics(t, func() { NewCube(1, 1, 0) })
}

func TestNewCubeFromSlices(t *testing.T) {
	s0 := mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})
	s1 := mat.NewDense(2, 3, []float64{7, 8, 9, 10, 11, 12})

	c, err := NewCubeFromSlices([]*mat.Dense{s0, s1})
	require.NoError(t, err)
	assert.Equal(t, 2, c.Rows())
	assert.Equal(t, 3, c.Cols())
	assert.Equal(t, 2, c.Steps())
	assert.Equal(t, 6.0, c.At(1, 2, 0))
	assert.Equal(t, 7.0, c.At(0, 0, 1))
}

func TestNewCubeFromSlicesRejectsMismatchedDims(t *testing.T) {
	s0 := mat.NewDense(2, 3, nil)
	s1 := mat.NewDense(3, 3, nil)

	_, err := NewCubeFromSlices([]*mat.Dense{s0, s1})
	assert.Error(t, err)
}

func TestCubeSetAndAt(t *testing.T) {
	c := NewCube(2, 2, 2)
	c.Set(1, 0, 1, 42)

	assert.Equal(t, 42.0, c.At(1, 0, 1))
	assert.Zero(t, c.At(0, 1, 1))
	assert.Equal(t, 42.0, c.Slice(1).At(1, 0))
}

func TestCubeCopyIsIndependent(t *testing.T) {
	c := NewCube(2, 2, 2)
	c.Set(0, 0, 0, 1)

	cp := c.Copy()
	cp.Set(0, 0, 0, 9)

	assert.Equal(t, 1.0, c.At(0, 0, 0))
	assert.Equal(t, 9.0, cp.At(0, 0, 0))
}

func TestCubeFill(t *testing.T) {
	c := NewCube(2, 3, 2)
	c.Fill(7)

	for _, v := range c.Vectorize() {
		assert.Equal(t, 7.0, v)
	}
}

func TestCubeColumnRange(t *testing.T) {
	c := NewCube(2, 4, 3)
	for s := 0; s < 3; s++ {
		for j := 0; j < 4; j++ {
			for i := 0; i < 2; i++ {
				c.Set(i, j, s, float64(100*s+10*j+i))
			}
		}
	}

	sub := c.ColumnRange(1, 3)
	assert.Equal(t, 2, sub.Rows())
	assert.Equal(t, 2, sub.Cols())
	assert.Equal(t, 3, sub.Steps())
	assert.Equal(t, 10.0, sub.At(0, 0, 0))
	assert.Equal(t, 221.0, sub.At(1, 1, 2))

	// The sub-cube owns its data.
	sub.Set(0, 0, 0, -1)
	assert.Equal(t, 10.0, c.At(0, 1, 0))
}

func TestCubeColumns(t *testing.T) {
	c := NewCube(1, 5, 2)
	for j := 0; j < 5; j++ {
		c.Set(0, j, 0, float64(j))
		c.Set(0, j, 1, float64(10+j))
	}

	sub := c.Columns([]int{4, 0, 2})
	assert.Equal(t, 3, sub.Cols())
	assert.Equal(t, 4.0, sub.At(0, 0, 0))
	assert.Equal(t, 0.0, sub.At(0, 1, 0))
	assert.Equal(t, 12.0, sub.At(0, 2, 1))
}

func TestCubeTube(t *testing.T) {
	c := NewCube(2, 2, 4)
	c.SetTube(1, 1, []float64{1, 2, 3, 4})

	tube := c.Tube(1, 1)
	assert.Equal(t, []float64{1, 2, 3, 4}, tube)
	assert.Equal(t, 3.0, c.At(1, 1, 2))

	// Tube returns a copy.
	tube[0] = 99
	assert.Equal(t, 1.0, c.At(1, 1, 0))
}

func TestCubeVectorizeOrder(t *testing.T) {
	c := NewCube(2, 2, 2)
	v := 0.0
	for s := 0; s < 2; s++ {
		for j := 0; j < 2; j++ {
			for i := 0; i < 2; i++ {
				c.Set(i, j, s, v)
				v++
			}
		}
	}

	assert.Equal(t, []float64{0, 1, 2, 3, 4, 5, 6, 7}, c.Vectorize())
}

func TestCubeEqualWithin(t *testing.T) {
	a := NewCube(2, 2, 2)
	b := NewCube(2, 2, 2)
	a.Fill(1)
	b.Fill(1.0005)

	assert.True(t, a.EqualWithin(b, 1e-3))
	assert.False(t, a.EqualWithin(b, 1e-4))
	assert.False(t, a.EqualWithin(NewCube(2, 2, 3), 1))
	assert.False(t, a.EqualWithin(nil, 1))
}
