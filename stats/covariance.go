// Package stats provides the streaming statistics behind the data-driven
// spectral transforms: an online mean/covariance accumulator that merges
// across tiles, and an eigendecomposition of the resulting covariance.
package stats

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var ErrInsufficientSamples = errors.New("stats: insufficient samples")

// CovAccumulator accumulates a running mean vector and co-moment matrix
// using Welford's update, which stays stable when sample counts reach the
// millions. Accumulators for disjoint sample sets combine with Merge, so
// tiles can be reduced independently and folded deterministically.
//
// An accumulator is not safe for concurrent use. Use one per worker and
// merge the results.
type CovAccumulator struct {
	dim   int
	n     int64
	mean  []float64
	m2    []float64
	delta []float64
}

// NewCovAccumulator returns an accumulator for dim-component samples.
func NewCovAccumulator(dim int) *CovAccumulator {
	return &CovAccumulator{
		dim:   dim,
		mean:  make([]float64, dim),
		m2:    make([]float64, dim*dim),
		delta: make([]float64, dim),
	}
}

// Dim returns the sample dimensionality.
func (a *CovAccumulator) Dim() int { return a.dim }

// N returns the number of samples pushed or merged so far.
func (a *CovAccumulator) N() int64 { return a.n }

// Push folds one sample into the running statistics. x must hold Dim
// values.
func (a *CovAccumulator) Push(x []float64) {
	a.n++
	inv := 1 / float64(a.n)
	for i := range a.delta {
		a.delta[i] = x[i] - a.mean[i]
		a.mean[i] += a.delta[i] * inv
	}
	for i := 0; i < a.dim; i++ {
		di := a.delta[i]
		row := a.m2[i*a.dim : (i+1)*a.dim]
		for j := 0; j < a.dim; j++ {
			row[j] += di * (x[j] - a.mean[j])
		}
	}
}

// Merge folds the statistics of b into a, leaving b untouched. The result
// is identical (up to floating point) to pushing both sample sets into a
// single accumulator.
func (a *CovAccumulator) Merge(b *CovAccumulator) error {
	if b.dim != a.dim {
		return fmt.Errorf("stats: merging %d-band accumulator into %d-band accumulator", b.dim, a.dim)
	}
	if b.n == 0 {
		return nil
	}
	if a.n == 0 {
		a.n = b.n
		copy(a.mean, b.mean)
		copy(a.m2, b.m2)
		return nil
	}

	na, nb := float64(a.n), float64(b.n)
	w := na * nb / (na + nb)
	for i := range a.delta {
		a.delta[i] = b.mean[i] - a.mean[i]
		a.mean[i] += a.delta[i] * nb / (na + nb)
	}
	for i := 0; i < a.dim; i++ {
		di := a.delta[i]
		row := a.m2[i*a.dim : (i+1)*a.dim]
		brow := b.m2[i*a.dim : (i+1)*a.dim]
		for j := 0; j < a.dim; j++ {
			row[j] += brow[j] + di*a.delta[j]*w
		}
	}
	a.n += b.n
	return nil
}

// Mean returns a copy of the running mean vector.
func (a *CovAccumulator) Mean() []float64 {
	mean := make([]float64, a.dim)
	copy(mean, a.mean)
	return mean
}

// Covariance returns the population covariance matrix (1/N normalization)
// of the accumulated samples. Any residual floating-point asymmetry in the
// co-moments is removed by averaging with the transpose. Fails with
// ErrInsufficientSamples unless at least Dim+1 samples were accumulated.
func (a *CovAccumulator) Covariance() (*mat.SymDense, error) {
	if a.n < int64(a.dim)+1 {
		return nil, fmt.Errorf("stats: %d samples for %d bands: %w", a.n, a.dim, ErrInsufficientSamples)
	}
	inv := 1 / float64(a.n)
	data := make([]float64, a.dim*a.dim)
	for i := 0; i < a.dim; i++ {
		for j := 0; j < a.dim; j++ {
			data[i*a.dim+j] = (a.m2[i*a.dim+j] + a.m2[j*a.dim+i]) * 0.5 * inv
		}
	}
	return mat.NewSymDense(a.dim, data), nil
}
