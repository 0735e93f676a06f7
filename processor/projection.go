package processor

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/arcfield/tessera/raster"
	"github.com/arcfield/tessera/stats"
)

// PixelProjector maps one pixel's band vector onto an output vector.
// The fixed-coefficient transform and the PCA projection both implement
// it, so a single engine applies either. Project must be safe for
// concurrent use; implementations hold only read-only state.
type PixelProjector interface {
	InDim() int
	OutDim() int
	OutputNames() []string
	Project(src, dst []float64)
}

// LinearTransform is a fixed-coefficient projector: output component i
// is the dot product of coefficient row i with the pixel vector.
type LinearTransform struct {
	coeff [][]float64
	names []string
}

// NewLinearTransform validates the coefficient matrix against the output
// names. Fails with ErrNameCountMismatch when the name count disagrees
// with the coefficient rows.
func NewLinearTransform(coeff [][]float64, outputNames []string) (*LinearTransform, error) {
	if len(coeff) == 0 {
		return nil, fmt.Errorf("empty coefficient matrix: %w", ErrBandCountMismatch)
	}
	cols := len(coeff[0])
	rows := make([][]float64, len(coeff))
	for i, row := range coeff {
		if len(row) != cols {
			return nil, fmt.Errorf("coefficient row %d has %d columns, row 0 has %d: %w",
				i, len(row), cols, ErrBandCountMismatch)
		}
		rows[i] = append([]float64(nil), row...)
	}
	if len(outputNames) != len(coeff) {
		return nil, fmt.Errorf("%d output names for %d coefficient rows: %w",
			len(outputNames), len(coeff), ErrNameCountMismatch)
	}
	return &LinearTransform{coeff: rows, names: append([]string(nil), outputNames...)}, nil
}

func (lt *LinearTransform) InDim() int            { return len(lt.coeff[0]) }
func (lt *LinearTransform) OutDim() int           { return len(lt.coeff) }
func (lt *LinearTransform) OutputNames() []string { return lt.names }

func (lt *LinearTransform) Project(src, dst []float64) {
	for i, row := range lt.coeff {
		s := 0.0
		for j, c := range row {
			s += c * src[j]
		}
		dst[i] = s
	}
}

// PCAProjection centers a pixel vector on the region mean, projects it
// onto the eigenvector rows and standardizes each component by the
// square root of its eigenvalue. Eigenvalues below the floor are clamped
// so a degenerate component comes out scaled by 1/sqrt(floor) instead of
// Inf or NaN.
type PCAProjection struct {
	mean    []float64
	vectors [][]float64
	scale   []float64
	names   []string
}

// NewPCAProjection builds the projector from the region statistics. A
// non-positive eigenFloor falls back to stats.DefaultEigenFloor.
func NewPCAProjection(mean []float64, eigen *stats.EigenDecomposition, eigenFloor float64, outputPrefix string) (*PCAProjection, error) {
	dim := eigen.Dim()
	if len(mean) != dim {
		return nil, fmt.Errorf("%d-band mean for %d-band eigendecomposition: %w",
			len(mean), dim, ErrBandCountMismatch)
	}
	if eigenFloor <= 0 {
		eigenFloor = stats.DefaultEigenFloor
	}
	if outputPrefix == "" {
		outputPrefix = "pc"
	}

	p := &PCAProjection{
		mean:    append([]float64(nil), mean...),
		vectors: make([][]float64, dim),
		scale:   make([]float64, dim),
		names:   make([]string, dim),
	}
	for k := 0; k < dim; k++ {
		p.vectors[k] = append([]float64(nil), eigen.Vectors[k]...)
		p.scale[k] = 1 / math.Sqrt(math.Max(eigen.Values[k], eigenFloor))
		p.names[k] = outputPrefix + strconv.Itoa(k+1)
	}
	return p, nil
}

func (p *PCAProjection) InDim() int            { return len(p.mean) }
func (p *PCAProjection) OutDim() int           { return len(p.vectors) }
func (p *PCAProjection) OutputNames() []string { return p.names }

func (p *PCAProjection) Project(src, dst []float64) {
	for k, vec := range p.vectors {
		s := 0.0
		for j, v := range vec {
			s += v * (src[j] - p.mean[j])
		}
		dst[k] = s * p.scale[k]
	}
}

// Projector applies a PixelProjector over a raster tile by tile.
type Projector struct {
	TileRows    int
	Concurrency int
}

func NewProjector(tileRows, concurrency int) *Projector {
	return &Projector{TileRows: tileRows, Concurrency: concurrency}
}

// Apply projects every pixel of r, producing a raster with proj's output
// bands. A pixel with no-data in any input band is no-data in every
// output band. Fails with ErrBandCountMismatch when r's band count does
// not match the projector input.
func (pr *Projector) Apply(ctx context.Context, r *raster.Raster, proj PixelProjector) (*raster.Raster, error) {
	if r.BandCount() != proj.InDim() {
		return nil, fmt.Errorf("raster has %d bands, projector wants %d: %w",
			r.BandCount(), proj.InDim(), ErrBandCountMismatch)
	}

	out := raster.New(r.Grid, proj.OutputNames(), raster.DefaultNoData)
	err := RunTiles(ctx, SplitTiles(r.Grid, pr.TileRows), pr.Concurrency, func(t Tile) error {
		src := make([]float64, proj.InDim())
		dst := make([]float64, proj.OutDim())
		for idx := t.Lo; idx < t.Hi; idx++ {
			if !r.Pixel(idx, src) {
				continue
			}
			proj.Project(src, dst)
			for k := range out.Bands {
				out.Bands[k].Data[idx] = dst[k]
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Transform applies a fixed coefficient matrix to r, renaming the output
// components to outputNames.
func (pr *Projector) Transform(ctx context.Context, r *raster.Raster, coeff [][]float64, outputNames []string) (*raster.Raster, error) {
	lt, err := NewLinearTransform(coeff, outputNames)
	if err != nil {
		return nil, err
	}
	return pr.Apply(ctx, r, lt)
}
