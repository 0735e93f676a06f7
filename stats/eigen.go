package stats

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var ErrNotSymmetric = errors.New("stats: matrix is not symmetric")

// DefaultEigenFloor is the smallest eigenvalue admitted before taking
// square roots during standardization. Eigenvalues below the floor are
// clamped to it, so rank-deficient covariance (perfectly correlated
// bands) yields a zero component instead of Inf or NaN.
const DefaultEigenFloor = 1e-12

// symTol is the relative tolerance for the symmetry gate in Decompose.
const symTol = 1e-9

// EigenDecomposition holds the eigenvalues of a symmetric matrix in
// descending order. Vectors[k] is the unit-norm eigenvector paired with
// Values[k]; the rows form an orthonormal basis. Eigenvector sign carries
// no meaning.
type EigenDecomposition struct {
	Values  []float64
	Vectors [][]float64
}

// Dim returns the matrix order.
func (d *EigenDecomposition) Dim() int { return len(d.Values) }

// Decompose eigendecomposes a symmetric real matrix. Asymmetry beyond a
// small relative tolerance fails with ErrNotSymmetric; asymmetry within
// the tolerance is repaired by averaging with the transpose before
// factorizing. A singular input is fine, zero eigenvalues are legal
// output.
func Decompose(m mat.Matrix) (*EigenDecomposition, error) {
	r, c := m.Dims()
	if r != c {
		return nil, fmt.Errorf("stats: %dx%d matrix: %w", r, c, ErrNotSymmetric)
	}

	maxAbs := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < r; j++ {
			if v := math.Abs(m.At(i, j)); v > maxAbs {
				maxAbs = v
			}
		}
	}
	tol := symTol * math.Max(1, maxAbs)
	sym := mat.NewSymDense(r, nil)
	for i := 0; i < r; i++ {
		for j := i; j < r; j++ {
			if math.Abs(m.At(i, j)-m.At(j, i)) > tol {
				return nil, fmt.Errorf("stats: element (%d,%d)=%v vs (%d,%d)=%v: %w",
					i, j, m.At(i, j), j, i, m.At(j, i), ErrNotSymmetric)
			}
			sym.SetSym(i, j, (m.At(i, j)+m.At(j, i))*0.5)
		}
	}

	var es mat.EigenSym
	if !es.Factorize(sym, true) {
		return nil, errors.New("stats: eigendecomposition did not converge")
	}
	vals := es.Values(nil)
	var ev mat.Dense
	es.VectorsTo(&ev)

	// gonum orders eigenvalues ascending with eigenvectors in columns;
	// flip to descending with eigenvectors as rows.
	d := &EigenDecomposition{
		Values:  make([]float64, r),
		Vectors: make([][]float64, r),
	}
	for k := 0; k < r; k++ {
		src := r - 1 - k
		d.Values[k] = vals[src]
		vec := make([]float64, r)
		for j := 0; j < r; j++ {
			vec[j] = ev.At(j, src)
		}
		d.Vectors[k] = vec
	}
	return d, nil
}
