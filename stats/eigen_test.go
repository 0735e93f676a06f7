package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// reconstruct computes sum_k values[k] * v_k v_k^T, row-major.
func reconstruct(d *EigenDecomposition) []float64 {
	n := d.Dim()
	out := make([]float64, n*n)
	for k := 0; k < n; k++ {
		v := d.Vectors[k]
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				out[i*n+j] += d.Values[k] * v[i] * v[j]
			}
		}
	}
	return out
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func TestDecomposeKnownMatrix(t *testing.T) {
	m := mat.NewSymDense(2, []float64{2, 1, 1, 2})
	d, err := Decompose(m)
	require.NoError(t, err)

	require.Equal(t, 2, d.Dim())
	assert.InDelta(t, 3.0, d.Values[0], 1e-12)
	assert.InDelta(t, 1.0, d.Values[1], 1e-12)

	// Sign is implementation-defined, so compare through |cosine|.
	s := 1 / math.Sqrt2
	assert.InDelta(t, 1.0, math.Abs(dot(d.Vectors[0], []float64{s, s})), 1e-12)
	assert.InDelta(t, 1.0, math.Abs(dot(d.Vectors[1], []float64{s, -s})), 1e-12)
}

func TestDecomposeOrdersAndOrthonormal(t *testing.T) {
	m := mat.NewSymDense(4, []float64{
		4, 1, 0.5, 0,
		1, 3, 0, 0.2,
		0.5, 0, 2, 0.1,
		0, 0.2, 0.1, 1,
	})
	d, err := Decompose(m)
	require.NoError(t, err)

	for k := 1; k < d.Dim(); k++ {
		assert.GreaterOrEqual(t, d.Values[k-1], d.Values[k])
	}
	for i := 0; i < d.Dim(); i++ {
		for j := 0; j < d.Dim(); j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			assert.InDelta(t, want, dot(d.Vectors[i], d.Vectors[j]), 1e-12)
		}
	}
}

func TestDecomposeReconstruction(t *testing.T) {
	m := mat.NewSymDense(3, []float64{
		2, 0.5, 0.1,
		0.5, 1.5, 0.3,
		0.1, 0.3, 1,
	})
	d, err := Decompose(m)
	require.NoError(t, err)

	got := reconstruct(d)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			assert.InDelta(t, m.At(i, j), got[i*3+j], 1e-12)
		}
	}
}

func TestDecomposeRankDeficient(t *testing.T) {
	// Rank-1 covariance of perfectly correlated components.
	m := mat.NewSymDense(4, []float64{
		1, 1, 1, 1,
		1, 1, 1, 1,
		1, 1, 1, 1,
		1, 1, 1, 1,
	})
	d, err := Decompose(m)
	require.NoError(t, err)

	assert.InDelta(t, 4.0, d.Values[0], 1e-12)
	for k := 1; k < 4; k++ {
		assert.InDelta(t, 0.0, d.Values[k], 1e-12)
	}
	for i := 0; i < 4; i++ {
		assert.InDelta(t, 1.0, dot(d.Vectors[i], d.Vectors[i]), 1e-12)
	}
}

func TestDecomposeRejectsAsymmetric(t *testing.T) {
	_, err := Decompose(mat.NewDense(2, 2, []float64{1, 2, 0, 1}))
	require.ErrorIs(t, err, ErrNotSymmetric)

	_, err = Decompose(mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6}))
	require.ErrorIs(t, err, ErrNotSymmetric)
}

func TestDecomposeRepairsTinyAsymmetry(t *testing.T) {
	d, err := Decompose(mat.NewDense(2, 2, []float64{2, 1 + 1e-13, 1, 2}))
	require.NoError(t, err)
	assert.InDelta(t, 3.0, d.Values[0], 1e-9)
}
