// Package raster holds the in-memory data model shared by every pipeline
// stage: grids, named bands, multi-band rasters, time series and region
// masks. All values are row-major float64 with a per-band no-data marker.
package raster

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrGridMismatch = errors.New("raster: grids are not co-registered")
	ErrBandMismatch = errors.New("raster: band layout mismatch")
)

// DefaultNoData is the marker used for freshly allocated bands when the
// caller does not supply one.
const DefaultNoData = -9999.0

// Grid describes the spatial footprint shared by all bands of a raster:
// pixel dimensions, the affine geotransform and the CRS identifier.
// The geotransform follows the usual 6-element convention
// {originX, xRes, 0, originY, 0, -yRes}; rotated grids are not supported.
type Grid struct {
	Width, Height int
	Transform     [6]float64
	SRS           string
}

// GridFromBBox builds an axis-aligned grid covering bbox {minX, minY, maxX, maxY}.
func GridFromBBox(width, height int, bbox [4]float64, srs string) Grid {
	return Grid{
		Width:  width,
		Height: height,
		Transform: [6]float64{
			bbox[0], (bbox[2] - bbox[0]) / float64(width), 0,
			bbox[3], 0, (bbox[1] - bbox[3]) / float64(height),
		},
		SRS: srs,
	}
}

// Size returns the pixel count of the grid.
func (g Grid) Size() int { return g.Width * g.Height }

// CellCenter returns the geographic coordinates of the center of pixel
// (col, row).
func (g Grid) CellCenter(col, row int) (float64, float64) {
	x := g.Transform[0] + (float64(col)+0.5)*g.Transform[1]
	y := g.Transform[3] + (float64(row)+0.5)*g.Transform[5]
	return x, y
}

// Equal reports whether two grids are co-registered: same dimensions,
// same geotransform and same CRS.
func (g Grid) Equal(o Grid) bool {
	return g.Width == o.Width && g.Height == o.Height &&
		g.Transform == o.Transform && g.SRS == o.SRS
}

// Band is one named channel of a raster, stored as a flat row-major grid.
// A sample equal to NoData (or NaN when NoData is NaN) is missing.
type Band struct {
	Name   string
	Data   []float64
	NoData float64
}

// IsNoData reports whether v is the missing-value marker of the band.
func (b *Band) IsNoData(v float64) bool {
	if math.IsNaN(b.NoData) {
		return math.IsNaN(v)
	}
	return v == b.NoData
}

// Raster is an ordered set of co-registered bands over one grid. The band
// order defines the vector layout seen by transforms: band i supplies
// component i of every pixel vector.
type Raster struct {
	Grid  Grid
	Bands []Band
}

// New allocates a raster with the named bands, every sample set to noData.
func New(grid Grid, bandNames []string, noData float64) *Raster {
	r := &Raster{Grid: grid, Bands: make([]Band, len(bandNames))}
	for i, name := range bandNames {
		data := make([]float64, grid.Size())
		if noData != 0 {
			for j := range data {
				data[j] = noData
			}
		}
		r.Bands[i] = Band{Name: name, Data: data, NoData: noData}
	}
	return r
}

// BandCount returns the number of bands.
func (r *Raster) BandCount() int { return len(r.Bands) }

// BandNames returns the band names in vector order.
func (r *Raster) BandNames() []string {
	names := make([]string, len(r.Bands))
	for i := range r.Bands {
		names[i] = r.Bands[i].Name
	}
	return names
}

// Band returns the band with the given name, or nil if absent.
func (r *Raster) Band(name string) *Band {
	for i := range r.Bands {
		if r.Bands[i].Name == name {
			return &r.Bands[i]
		}
	}
	return nil
}

// Pixel gathers the band vector at pixel index idx into dst and reports
// whether every band is valid there. dst must have length BandCount.
// Transforms and the covariance estimator treat a pixel with any missing
// band as wholly missing.
func (r *Raster) Pixel(idx int, dst []float64) bool {
	ok := true
	for i := range r.Bands {
		v := r.Bands[i].Data[idx]
		dst[i] = v
		if r.Bands[i].IsNoData(v) {
			ok = false
		}
	}
	return ok
}

// Validate checks that every band matches the grid size and that band
// names are unique.
func (r *Raster) Validate() error {
	seen := make(map[string]struct{}, len(r.Bands))
	for i := range r.Bands {
		b := &r.Bands[i]
		if len(b.Data) != r.Grid.Size() {
			return fmt.Errorf("band %q has %d samples, grid holds %d: %w",
				b.Name, len(b.Data), r.Grid.Size(), ErrBandMismatch)
		}
		if _, dup := seen[b.Name]; dup {
			return fmt.Errorf("duplicate band name %q: %w", b.Name, ErrBandMismatch)
		}
		seen[b.Name] = struct{}{}
	}
	return nil
}

// SameLayout reports whether o has the same grid and the same band names
// in the same order as r.
func (r *Raster) SameLayout(o *Raster) bool {
	if !r.Grid.Equal(o.Grid) || len(r.Bands) != len(o.Bands) {
		return false
	}
	for i := range r.Bands {
		if r.Bands[i].Name != o.Bands[i].Name {
			return false
		}
	}
	return true
}
