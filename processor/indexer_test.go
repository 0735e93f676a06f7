package processor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcfield/tessera/raster"
	"github.com/arcfield/tessera/utils"
)

func TestComputeIndicesNDVI(t *testing.T) {
	g := grid2x2()
	in := newTestRaster(t, g, map[string][]float64{
		"red": {0.2, 0.4, raster.DefaultNoData, 0},
		"nir": {0.8, 0.4, 0.5, 0},
	}, []string{"red", "nir"})

	out, err := NewIndexEngine(1, 2).ComputeIndices(context.Background(), in, []utils.IndexConfig{
		{Name: "ndvsi", Expr: "(nir - red) / (nir + red)"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"ndvsi"}, out.BandNames())

	band := out.Band("ndvsi")
	assert.InDelta(t, 0.6, band.Data[0], 1e-6)
	assert.InDelta(t, 0.0, band.Data[1], 1e-6)
	assert.True(t, band.IsNoData(band.Data[2]))
	assert.True(t, band.IsNoData(band.Data[3]))
}

func TestComputeIndicesMultiple(t *testing.T) {
	g := grid2x2()
	in := newTestRaster(t, g, map[string][]float64{
		"red":   {0.2, 0.2, 0.2, 0.2},
		"nir":   {0.8, 0.8, 0.8, 0.8},
		"swir1": {0.4, 0.4, 0.4, 0.4},
	}, []string{"red", "nir", "swir1"})

	out, err := NewIndexEngine(1, 1).ComputeIndices(context.Background(), in, []utils.IndexConfig{
		{Name: "ndvsi", Expr: "(nir - red) / (nir + red)"},
		{Name: "ratio", Expr: "swir1 / nir"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"ndvsi", "ratio"}, out.BandNames())
	assert.InDelta(t, 0.6, out.Band("ndvsi").Data[0], 1e-6)
	assert.InDelta(t, 0.5, out.Band("ratio").Data[0], 1e-6)
}

func TestComputeIndicesUnknownBand(t *testing.T) {
	in := newTestRaster(t, grid2x2(), map[string][]float64{
		"red": {1, 1, 1, 1},
	}, []string{"red"})

	_, err := NewIndexEngine(1, 1).ComputeIndices(context.Background(), in, []utils.IndexConfig{
		{Name: "ndvsi", Expr: "(nir - red) / (nir + red)"},
	})
	require.ErrorIs(t, err, ErrBandCountMismatch)
}

func TestComputeIndicesEmpty(t *testing.T) {
	in := newTestRaster(t, grid2x2(), map[string][]float64{
		"red": {1, 1, 1, 1},
	}, []string{"red"})

	_, err := NewIndexEngine(1, 1).ComputeIndices(context.Background(), in, nil)
	require.ErrorIs(t, err, ErrEmptySelection)
}
