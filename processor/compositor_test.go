package processor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcfield/tessera/raster"
	"github.com/arcfield/tessera/utils"
)

func grid2x2() raster.Grid {
	return raster.GridFromBBox(2, 2, [4]float64{0, 0, 2, 2}, "EPSG:32633")
}

// doyTime returns a 2023 timestamp at the given day of year.
func doyTime(doy int) time.Time {
	return time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, doy-1)
}

// newTestRaster builds a raster over grid with the named bands and the
// given per-band samples.
func newTestRaster(t *testing.T, grid raster.Grid, bands map[string][]float64, order []string) *raster.Raster {
	t.Helper()
	r := raster.New(grid, order, raster.DefaultNoData)
	for _, name := range order {
		copy(r.Band(name).Data, bands[name])
	}
	require.NoError(t, r.Validate())
	return r
}

func TestCompositeIdempotence(t *testing.T) {
	g := grid2x2()
	in := newTestRaster(t, g, map[string][]float64{
		"red": {0.1, 0.2, raster.DefaultNoData, 0.4},
		"nir": {0.5, 0.6, 0.7, raster.DefaultNoData},
	}, []string{"red", "nir"})
	ts := raster.NewTimeSeries()
	require.NoError(t, ts.Add(doyTime(120), in))

	out, err := NewCompositor(1, 1).Composite(context.Background(), ts, utils.TimeWindow{Lo: 1, Hi: 366})
	require.NoError(t, err)

	assert.Equal(t, in.BandNames(), out.BandNames())
	assert.Equal(t, in.Band("red").Data, out.Band("red").Data)
	assert.Equal(t, in.Band("nir").Data, out.Band("nir").Data)
}

func TestCompositeMeanOfValid(t *testing.T) {
	g := grid2x2()
	ts := raster.NewTimeSeries()
	nd := raster.DefaultNoData
	for i, values := range [][]float64{
		{1, 10, nd, nd},
		{2, nd, nd, 4},
		{3, 14, nd, 8},
	} {
		r := newTestRaster(t, g, map[string][]float64{"b": values}, []string{"b"})
		require.NoError(t, ts.Add(doyTime(100+i), r))
	}

	out, err := NewCompositor(1, 2).Composite(context.Background(), ts, utils.TimeWindow{Lo: 90, Hi: 110})
	require.NoError(t, err)

	data := out.Band("b").Data
	assert.InDelta(t, 2.0, data[0], 1e-12)
	assert.InDelta(t, 12.0, data[1], 1e-12)
	assert.True(t, out.Band("b").IsNoData(data[2]))
	assert.InDelta(t, 6.0, data[3], 1e-12)
}

func TestCompositeWindowFiltering(t *testing.T) {
	g := grid2x2()
	ts := raster.NewTimeSeries()
	inside := newTestRaster(t, g, map[string][]float64{"b": {1, 1, 1, 1}}, []string{"b"})
	outside := newTestRaster(t, g, map[string][]float64{"b": {9, 9, 9, 9}}, []string{"b"})
	require.NoError(t, ts.Add(doyTime(50), inside))
	require.NoError(t, ts.Add(doyTime(100), outside))

	out, err := NewCompositor(1, 1).Composite(context.Background(), ts, utils.TimeWindow{Lo: 40, Hi: 60})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 1, 1}, out.Band("b").Data)
}

func TestCompositeInvalidWindow(t *testing.T) {
	ts := raster.NewTimeSeries()
	r := newTestRaster(t, grid2x2(), map[string][]float64{"b": {1, 1, 1, 1}}, []string{"b"})
	require.NoError(t, ts.Add(doyTime(50), r))

	_, err := NewCompositor(1, 1).Composite(context.Background(), ts, utils.TimeWindow{Lo: 60, Hi: 40})
	require.ErrorIs(t, err, utils.ErrInvalidWindow)
}

func TestCompositeEmptySelection(t *testing.T) {
	ts := raster.NewTimeSeries()
	r := newTestRaster(t, grid2x2(), map[string][]float64{"b": {1, 1, 1, 1}}, []string{"b"})
	require.NoError(t, ts.Add(doyTime(50), r))

	_, err := NewCompositor(1, 1).Composite(context.Background(), ts, utils.TimeWindow{Lo: 300, Hi: 310})
	require.ErrorIs(t, err, ErrEmptySelection)
}

func TestMergeComposites(t *testing.T) {
	g := grid2x2()
	nd := raster.DefaultNoData
	a := newTestRaster(t, g, map[string][]float64{"b": {1, 3, nd, nd}}, []string{"b"})
	b := newTestRaster(t, g, map[string][]float64{"b": {3, nd, 5, nd}}, []string{"b"})

	out, err := NewCompositor(1, 1).MergeComposites(context.Background(), a, b)
	require.NoError(t, err)

	data := out.Band("b").Data
	assert.InDelta(t, 2.0, data[0], 1e-12)
	assert.InDelta(t, 3.0, data[1], 1e-12)
	assert.InDelta(t, 5.0, data[2], 1e-12)
	assert.True(t, out.Band("b").IsNoData(data[3]))
}

func TestMergeCompositesRejectsMismatches(t *testing.T) {
	g := grid2x2()
	a := newTestRaster(t, g, map[string][]float64{"b": {1, 1, 1, 1}}, []string{"b"})

	other := raster.GridFromBBox(4, 4, [4]float64{0, 0, 2, 2}, "EPSG:32633")
	b := raster.New(other, []string{"b"}, raster.DefaultNoData)
	_, err := NewCompositor(1, 1).MergeComposites(context.Background(), a, b)
	require.ErrorIs(t, err, raster.ErrGridMismatch)

	c := newTestRaster(t, g, map[string][]float64{"c": {1, 1, 1, 1}}, []string{"c"})
	_, err = NewCompositor(1, 1).MergeComposites(context.Background(), a, c)
	require.ErrorIs(t, err, raster.ErrBandMismatch)
}

func TestCompositeSeasonTwoWindows(t *testing.T) {
	g := grid2x2()
	ts := raster.NewTimeSeries()
	require.NoError(t, ts.Add(doyTime(20), newTestRaster(t, g,
		map[string][]float64{"b": {2, 2, 2, 2}}, []string{"b"})))
	require.NoError(t, ts.Add(doyTime(350), newTestRaster(t, g,
		map[string][]float64{"b": {4, 4, 4, 4}}, []string{"b"})))

	season := utils.SeasonConfig{
		Name:    "wet",
		Windows: []utils.TimeWindow{{Lo: 335, Hi: 366}, {Lo: 1, Hi: 90}},
	}
	out, err := NewCompositor(1, 2).CompositeSeason(context.Background(), ts, season)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 3, 3, 3}, out.Band("b").Data)

	_, err = NewCompositor(1, 1).CompositeSeason(context.Background(), ts, utils.SeasonConfig{Name: "broken"})
	require.Error(t, err)
}
