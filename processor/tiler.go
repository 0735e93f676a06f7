package processor

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/arcfield/tessera/raster"
	"github.com/arcfield/tessera/utils"
)

// Tile is a horizontal block of raster rows. Every per-pixel stage maps
// over tiles independently; flat sample offsets [Lo, Hi) address the
// tile's pixels in any band of the raster.
type Tile struct {
	Index      int
	Row0, Row1 int
	Lo, Hi     int
}

// SplitTiles cuts the grid into blocks of at most tileRows rows.
func SplitTiles(grid raster.Grid, tileRows int) []Tile {
	if tileRows <= 0 {
		tileRows = utils.DefaultTileRows
	}
	var tiles []Tile
	for row := 0; row < grid.Height; row += tileRows {
		hi := row + tileRows
		if hi > grid.Height {
			hi = grid.Height
		}
		tiles = append(tiles, Tile{
			Index: len(tiles),
			Row0:  row,
			Row1:  hi,
			Lo:    row * grid.Width,
			Hi:    hi * grid.Width,
		})
	}
	return tiles
}

// RunTiles maps fn over tiles with at most concurrency workers. The
// first error cancels the remaining tiles.
func RunTiles(ctx context.Context, tiles []Tile, concurrency int, fn func(Tile) error) error {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, tile := range tiles {
		tile := tile
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			return fn(tile)
		})
	}
	return g.Wait()
}
