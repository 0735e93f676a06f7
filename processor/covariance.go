package processor

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/arcfield/tessera/raster"
	"github.com/arcfield/tessera/stats"
	"github.com/arcfield/tessera/utils"
)

// CovarianceEstimator computes the band mean vector and covariance
// matrix of a raster over a region. A pixel contributes only when every
// band is valid; a no-data sample in any band drops the whole pixel.
//
// When the eligible pixel count exceeds MaxSamples the estimator thins
// systematically, keeping every strideth eligible pixel in scan order.
// Tiles accumulate independently and fold through a fixed-order merge
// tree, so the result is identical from run to run no matter how the
// scheduler interleaves the workers.
type CovarianceEstimator struct {
	MaxSamples  int
	TileRows    int
	Concurrency int
}

func NewCovarianceEstimator(maxSamples, tileRows, concurrency int) *CovarianceEstimator {
	if maxSamples <= 0 {
		maxSamples = utils.DefaultMaxSamples
	}
	return &CovarianceEstimator{MaxSamples: maxSamples, TileRows: tileRows, Concurrency: concurrency}
}

// RegionStats is the outcome of a covariance estimate: per-band means,
// the population covariance and the number of samples behind them.
type RegionStats struct {
	Mean    []float64
	Cov     *mat.SymDense
	Samples int64
}

// Estimate returns the mean vector and population covariance of r's
// bands over region. A nil region means the whole grid. Fails with
// stats.ErrInsufficientSamples when fewer than bandCount+1 eligible
// pixels exist.
func (e *CovarianceEstimator) Estimate(ctx context.Context, r *raster.Raster, region *raster.RegionMask) (*RegionStats, error) {
	if region != nil && !region.Grid.Equal(r.Grid) {
		return nil, fmt.Errorf("region mask: %w", raster.ErrGridMismatch)
	}
	dim := r.BandCount()
	tiles := SplitTiles(r.Grid, e.TileRows)

	// Pass 1: count eligible pixels per tile so pass 2 knows each
	// pixel's global ordinal without cross-tile coordination.
	counts := make([]int64, len(tiles))
	err := RunTiles(ctx, tiles, e.Concurrency, func(t Tile) error {
		src := make([]float64, dim)
		var n int64
		for idx := t.Lo; idx < t.Hi; idx++ {
			if region != nil && !region.Contains(idx) {
				continue
			}
			if r.Pixel(idx, src) {
				n++
			}
		}
		counts[t.Index] = n
		return nil
	})
	if err != nil {
		return nil, err
	}

	offsets := make([]int64, len(tiles))
	var total int64
	for i, n := range counts {
		offsets[i] = total
		total += n
	}
	if total < int64(dim)+1 {
		return nil, fmt.Errorf("region has %d eligible pixels for %d bands: %w",
			total, dim, stats.ErrInsufficientSamples)
	}

	stride := int64(1)
	if total > int64(e.MaxSamples) {
		stride = (total + int64(e.MaxSamples) - 1) / int64(e.MaxSamples)
	}

	// Pass 2: accumulate every strideth eligible pixel per tile.
	accs := make([]*stats.CovAccumulator, len(tiles))
	err = RunTiles(ctx, tiles, e.Concurrency, func(t Tile) error {
		src := make([]float64, dim)
		acc := stats.NewCovAccumulator(dim)
		ord := offsets[t.Index]
		for idx := t.Lo; idx < t.Hi; idx++ {
			if region != nil && !region.Contains(idx) {
				continue
			}
			if !r.Pixel(idx, src) {
				continue
			}
			if ord%stride == 0 {
				acc.Push(src)
			}
			ord++
		}
		accs[t.Index] = acc
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Fixed-order pairwise merge keeps the floating-point result
	// independent of worker scheduling.
	for step := 1; step < len(accs); step *= 2 {
		for i := 0; i+step < len(accs); i += 2 * step {
			if err := accs[i].Merge(accs[i+step]); err != nil {
				return nil, err
			}
		}
	}

	acc := accs[0]
	cov, err := acc.Covariance()
	if err != nil {
		return nil, err
	}
	return &RegionStats{Mean: acc.Mean(), Cov: cov, Samples: acc.N()}, nil
}
