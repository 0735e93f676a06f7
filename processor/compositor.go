package processor

import (
	"context"
	"fmt"

	"github.com/arcfield/tessera/raster"
	"github.com/arcfield/tessera/utils"
)

// Compositor reduces raster time series to seasonal mean composites.
// Each band of each pixel is averaged independently over the valid
// samples at that location; a composite pixel goes no-data only when
// every contributing sample is no-data. Composites always carry
// raster.DefaultNoData regardless of the input markers.
type Compositor struct {
	TileRows    int
	Concurrency int
}

func NewCompositor(tileRows, concurrency int) *Compositor {
	return &Compositor{TileRows: tileRows, Concurrency: concurrency}
}

// Composite averages the slices of series whose acquisition day of year
// falls inside window. Fails with utils.ErrInvalidWindow on a malformed
// window and ErrEmptySelection when the window selects nothing.
func (c *Compositor) Composite(ctx context.Context, series *raster.TimeSeries, window utils.TimeWindow) (*raster.Raster, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}

	var selected []*raster.Raster
	for _, slice := range series.Slices() {
		if window.Contains(slice.Time) {
			selected = append(selected, slice.Raster)
		}
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("window %v selected none of %d rasters: %w", window, series.Len(), ErrEmptySelection)
	}

	grid := series.Grid()
	out := raster.New(grid, series.BandNames(), raster.DefaultNoData)
	err := RunTiles(ctx, SplitTiles(grid, c.TileRows), c.Concurrency, func(t Tile) error {
		for b := range out.Bands {
			dst := out.Bands[b].Data
			for idx := t.Lo; idx < t.Hi; idx++ {
				sum, n := 0.0, 0
				for _, r := range selected {
					band := &r.Bands[b]
					if v := band.Data[idx]; !band.IsNoData(v) {
						sum += v
						n++
					}
				}
				if n > 0 {
					dst[idx] = sum / float64(n)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MergeComposites folds two composites of disjoint windows into one with
// equal weight: where both pixels are valid the result is their mean,
// where one is valid it passes through, and the result is no-data only
// where both inputs are.
func (c *Compositor) MergeComposites(ctx context.Context, a, b *raster.Raster) (*raster.Raster, error) {
	if !a.Grid.Equal(b.Grid) {
		return nil, fmt.Errorf("merging composites: %w", raster.ErrGridMismatch)
	}
	if !a.SameLayout(b) {
		return nil, fmt.Errorf("merging composites: %w", raster.ErrBandMismatch)
	}

	out := raster.New(a.Grid, a.BandNames(), raster.DefaultNoData)
	err := RunTiles(ctx, SplitTiles(a.Grid, c.TileRows), c.Concurrency, func(t Tile) error {
		for k := range out.Bands {
			ba, bb := &a.Bands[k], &b.Bands[k]
			dst := out.Bands[k].Data
			for idx := t.Lo; idx < t.Hi; idx++ {
				va, vb := ba.Data[idx], bb.Data[idx]
				okA, okB := !ba.IsNoData(va), !bb.IsNoData(vb)
				switch {
				case okA && okB:
					dst[idx] = (va + vb) * 0.5
				case okA:
					dst[idx] = va
				case okB:
					dst[idx] = vb
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CompositeSeason builds the season's composite from its one or two
// day-of-year windows.
func (c *Compositor) CompositeSeason(ctx context.Context, series *raster.TimeSeries, season utils.SeasonConfig) (*raster.Raster, error) {
	switch len(season.Windows) {
	case 1:
		return c.Composite(ctx, series, season.Windows[0])
	case 2:
		first, err := c.Composite(ctx, series, season.Windows[0])
		if err != nil {
			return nil, err
		}
		second, err := c.Composite(ctx, series, season.Windows[1])
		if err != nil {
			return nil, err
		}
		return c.MergeComposites(ctx, first, second)
	default:
		return nil, fmt.Errorf("season %s defines %d windows, want 1 or 2", season.Name, len(season.Windows))
	}
}
