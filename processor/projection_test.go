package processor

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcfield/tessera/raster"
	"github.com/arcfield/tessera/stats"
)

func identity(n int) [][]float64 {
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		m[i][i] = 1
	}
	return m
}

func TestTransformIdentityRenames(t *testing.T) {
	g := grid2x2()
	names := []string{"blue", "green", "red", "nir", "swir1", "swir2"}
	bands := make(map[string][]float64, len(names))
	for i, name := range names {
		bands[name] = []float64{
			0.1 * float64(i+1), 0.2 * float64(i+1),
			0.3 * float64(i+1), 0.4 * float64(i+1),
		}
	}
	in := newTestRaster(t, g, bands, names)

	out, err := NewProjector(1, 2).Transform(context.Background(), in, identity(6), TasselledCapBands)
	require.NoError(t, err)

	assert.Equal(t, TasselledCapBands, out.BandNames())
	for i, name := range names {
		outBand := out.Band(TasselledCapBands[i])
		for idx, want := range in.Band(name).Data {
			assert.InDelta(t, want, outBand.Data[idx], 1e-12)
		}
	}
}

func TestTransformLinearity(t *testing.T) {
	g := grid2x2()
	coeff := [][]float64{{0.3, -1.2}, {2.5, 0.4}}
	names := []string{"u", "v"}
	r1 := newTestRaster(t, g, map[string][]float64{
		"a": {1, 2, 3, 4}, "b": {-1, 0.5, 2, -3},
	}, []string{"a", "b"})
	r2 := newTestRaster(t, g, map[string][]float64{
		"a": {0.2, -0.7, 1.1, 0}, "b": {4, 3, 2, 1},
	}, []string{"a", "b"})

	const ca, cb = 2.0, -0.5
	combined := raster.New(g, []string{"a", "b"}, raster.DefaultNoData)
	for bi := range combined.Bands {
		for idx := range combined.Bands[bi].Data {
			combined.Bands[bi].Data[idx] = ca*r1.Bands[bi].Data[idx] + cb*r2.Bands[bi].Data[idx]
		}
	}

	pr := NewProjector(1, 1)
	t1, err := pr.Transform(context.Background(), r1, coeff, names)
	require.NoError(t, err)
	t2, err := pr.Transform(context.Background(), r2, coeff, names)
	require.NoError(t, err)
	tc, err := pr.Transform(context.Background(), combined, coeff, names)
	require.NoError(t, err)

	for bi := range tc.Bands {
		for idx := range tc.Bands[bi].Data {
			want := ca*t1.Bands[bi].Data[idx] + cb*t2.Bands[bi].Data[idx]
			assert.InDelta(t, want, tc.Bands[bi].Data[idx], 1e-12)
		}
	}
}

func TestTransformNoDataPropagation(t *testing.T) {
	g := grid2x2()
	in := newTestRaster(t, g, map[string][]float64{
		"a": {1, raster.DefaultNoData, 3, 4},
		"b": {5, 6, 7, 8},
	}, []string{"a", "b"})

	out, err := NewProjector(1, 1).Transform(context.Background(), in, identity(2), []string{"x", "y"})
	require.NoError(t, err)

	for _, name := range []string{"x", "y"} {
		band := out.Band(name)
		assert.True(t, band.IsNoData(band.Data[1]))
		assert.False(t, band.IsNoData(band.Data[0]))
	}
}

func TestTransformMismatches(t *testing.T) {
	g := grid2x2()
	in := newTestRaster(t, g, map[string][]float64{
		"a": {1, 2, 3, 4}, "b": {5, 6, 7, 8}, "c": {1, 1, 1, 1},
	}, []string{"a", "b", "c"})

	_, err := NewProjector(1, 1).Transform(context.Background(), in, identity(2), []string{"x", "y"})
	require.ErrorIs(t, err, ErrBandCountMismatch)

	_, err = NewLinearTransform(identity(2), []string{"only"})
	require.ErrorIs(t, err, ErrNameCountMismatch)

	_, err = NewLinearTransform([][]float64{{1, 0}, {1}}, []string{"x", "y"})
	require.ErrorIs(t, err, ErrBandCountMismatch)

	_, err = NewLinearTransform(nil, nil)
	require.ErrorIs(t, err, ErrBandCountMismatch)
}

func TestTasselledCapOnConstantRaster(t *testing.T) {
	g := grid2x2()
	names := []string{"blue", "green", "red", "nir", "swir1", "swir2"}
	bands := make(map[string][]float64, len(names))
	for _, name := range names {
		bands[name] = []float64{0.1, 0.1, 0.1, 0.1}
	}
	in := newTestRaster(t, g, bands, names)

	out, err := NewProjector(1, 1).Transform(context.Background(), in, TasselledCapTM, TasselledCapBands)
	require.NoError(t, err)
	require.Equal(t, TasselledCapBands, out.BandNames())

	for i, row := range TasselledCapTM {
		rowSum := 0.0
		for _, c := range row {
			rowSum += c
		}
		band := out.Band(TasselledCapBands[i])
		for _, got := range band.Data {
			assert.InDelta(t, 0.1*rowSum, got, 1e-12)
		}
	}
}

func TestPCAProjectionKnown(t *testing.T) {
	s := 1 / math.Sqrt2
	eigen := &stats.EigenDecomposition{
		Values:  []float64{4, 1},
		Vectors: [][]float64{{s, s}, {s, -s}},
	}
	proj, err := NewPCAProjection([]float64{1, 1}, eigen, 0, "pc")
	require.NoError(t, err)

	assert.Equal(t, []string{"pc1", "pc2"}, proj.OutputNames())
	assert.Equal(t, 2, proj.InDim())
	assert.Equal(t, 2, proj.OutDim())

	// x - mean = (sqrt2, 0): projections are 1 and 1, standardized by
	// sqrt(4) and sqrt(1).
	dst := make([]float64, 2)
	proj.Project([]float64{1 + math.Sqrt2, 1}, dst)
	assert.InDelta(t, 0.5, dst[0], 1e-12)
	assert.InDelta(t, 1.0, dst[1], 1e-12)
}

func TestPCAProjectionClampsDegenerate(t *testing.T) {
	eigen := &stats.EigenDecomposition{
		Values:  []float64{2, 0},
		Vectors: [][]float64{{1, 0}, {0, 1}},
	}
	proj, err := NewPCAProjection([]float64{0, 0}, eigen, 1e-10, "pc")
	require.NoError(t, err)

	dst := make([]float64, 2)
	proj.Project([]float64{3, 1e-9}, dst)
	assert.False(t, math.IsInf(dst[1], 0))
	assert.False(t, math.IsNaN(dst[1]))
}

func TestPCAProjectionMismatchedMean(t *testing.T) {
	eigen := &stats.EigenDecomposition{
		Values:  []float64{1, 1},
		Vectors: [][]float64{{1, 0}, {0, 1}},
	}
	_, err := NewPCAProjection([]float64{0, 0, 0}, eigen, 0, "pc")
	require.ErrorIs(t, err, ErrBandCountMismatch)
}
