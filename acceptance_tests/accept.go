package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/crypto/ssh/terminal"

	"github.com/arcfield/tessera/metrics"
	"github.com/arcfield/tessera/processor"
	"github.com/arcfield/tessera/raster"
	"github.com/arcfield/tessera/utils"
)

var (
	Info  = log.New(os.Stdout, "TESSERA: ", log.Ldate|log.Ltime|log.Lshortfile)
	Error = log.New(os.Stderr, "TESSERA: ", log.Ldate|log.Ltime|log.Lshortfile)
)

var passed = "Passed"
var failed = "Failed"

// Square region inset from the synthetic grid so the estimator sees a
// proper subset of the pixels.
var regionDoc = []byte(`{"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[[[8,8],[56,8],[56,56],[8,56],[8,8]]]}}`)

var acquisitionDays = []int{10, 40, 75, 180, 210, 240, 340, 355}

func inRed(str string) string {
	return fmt.Sprintf("\x1b[31;1m%s\x1b[0m", str)
}

func inGreen(str string) string {
	return fmt.Sprintf("\x1b[32;1m%s\x1b[0m", str)
}

func fail(err error) {
	fmt.Println(failed)
	Error.Fatal(err)
}

func defaultConfig() *utils.Config {
	config := &utils.Config{
		Seasons: []utils.SeasonConfig{
			{Name: "wet", Windows: []utils.TimeWindow{{Lo: 335, Hi: 366}, {Lo: 1, Hi: 90}}},
			{Name: "dry", Windows: []utils.TimeWindow{{Lo: 152, Hi: 243}}},
		},
		Indices: []utils.IndexConfig{
			{Name: "ndvsi", Expr: "(nir - red) / (nir + red)"},
		},
		Transforms: []utils.TransformConfig{
			{Name: "tct", Coefficients: processor.TasselledCapTM, OutputBands: processor.TasselledCapBands},
		},
		PCA: utils.PCAConfig{Enabled: true},
	}
	if err := config.Validate(); err != nil {
		Error.Fatal(err)
	}
	return config
}

// syntheticSeries builds a cloud-free reflectance-like series: smooth
// terrain fields per band, a seasonal brightness term and scattered
// no-data gaps.
func syntheticSeries(grid raster.Grid) *raster.TimeSeries {
	bands := []string{"blue", "green", "red", "nir", "swir1", "swir2"}
	series := raster.NewTimeSeries()
	for _, doy := range acquisitionDays {
		r := raster.New(grid, bands, raster.DefaultNoData)
		season := 0.5 + 0.5*math.Sin(2*math.Pi*float64(doy)/365)
		for bi := range r.Bands {
			for y := 0; y < grid.Height; y++ {
				for x := 0; x < grid.Width; x++ {
					idx := y*grid.Width + x
					if (idx+doy+bi)%97 == 0 {
						continue
					}
					terrain := 0.05*math.Sin(float64(x)/9+float64(bi)) +
						0.05*math.Cos(float64(y)/7-float64(bi)) +
						0.01*float64((x*(bi+3)+y*(bi+5))%7)/7
					r.Bands[bi].Data[idx] = 0.1 + 0.02*float64(bi) + terrain + 0.03*season*float64(bi+1)
				}
			}
		}
		t := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, doy-1)
		if err := series.Add(t, r); err != nil {
			Error.Fatal(err)
		}
	}
	return series
}

func checkLinearity(composite, transformed *raster.Raster, coeff [][]float64) error {
	src := make([]float64, composite.BandCount())
	dst := make([]float64, transformed.BandCount())
	for idx := 0; idx < composite.Grid.Size(); idx += 509 {
		if !composite.Pixel(idx, src) || !transformed.Pixel(idx, dst) {
			continue
		}
		for i, row := range coeff {
			want := 0.0
			for j, c := range row {
				want += c * src[j]
			}
			if math.Abs(want-dst[i]) > 1e-9 {
				return fmt.Errorf("pixel %d component %d: got %v, want %v", idx, i, dst[i], want)
			}
		}
	}
	return nil
}

func checkProducts(config *utils.Config, p *processor.SeasonProducts) error {
	if p == nil {
		return fmt.Errorf("season missing from pipeline output")
	}
	if p.Composite == nil || p.Composite.BandCount() == 0 {
		return fmt.Errorf("composite missing")
	}
	rasters := []*raster.Raster{p.Composite}

	if len(config.Indices) > 0 {
		if p.Indices == nil {
			return fmt.Errorf("index bands missing")
		}
		for _, index := range config.Indices {
			if p.Indices.Band(index.Name) == nil {
				return fmt.Errorf("index band %s missing", index.Name)
			}
		}
		rasters = append(rasters, p.Indices)
	}

	for _, tr := range config.Transforms {
		transformed, ok := p.Transforms[tr.Name]
		if !ok {
			return fmt.Errorf("transform %s missing", tr.Name)
		}
		if err := checkLinearity(p.Composite, transformed, tr.Coefficients); err != nil {
			return fmt.Errorf("transform %s: %v", tr.Name, err)
		}
		rasters = append(rasters, transformed)
	}

	if config.PCA.Enabled {
		if p.PCA == nil {
			return fmt.Errorf("principal components missing")
		}
		rasters = append(rasters, p.PCA)
	}

	for _, r := range rasters {
		for _, band := range r.Bands {
			for _, v := range band.Data {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return fmt.Errorf("band %s contains non-finite samples", band.Name)
				}
			}
		}
	}
	return nil
}

func checkPCA(p *processor.SeasonProducts, region *raster.RegionMask) error {
	if p.Eigen == nil || p.PCA == nil {
		return fmt.Errorf("principal components missing")
	}
	values := p.Eigen.Values
	for k := 1; k < len(values); k++ {
		if values[k-1] < values[k] {
			return fmt.Errorf("eigenvalues out of order: %v", values)
		}
	}

	dim := p.PCA.BandCount()
	n := 0
	sum := make([]float64, dim)
	sumSq := make([]float64, dim)
	vec := make([]float64, dim)
	for idx := 0; idx < p.PCA.Grid.Size(); idx++ {
		if region != nil && !region.Contains(idx) {
			continue
		}
		if !p.PCA.Pixel(idx, vec) {
			continue
		}
		n++
		for k, v := range vec {
			sum[k] += v
			sumSq[k] += v * v
		}
	}
	if n == 0 {
		return fmt.Errorf("no valid pixels in region")
	}
	for k := 0; k < dim; k++ {
		if values[k] < 1e-6 {
			continue
		}
		mean := sum[k] / float64(n)
		variance := sumSq[k]/float64(n) - mean*mean
		if math.Abs(variance-1) > 0.05 {
			return fmt.Errorf("component %d variance %v over the region, want 1", k+1, variance)
		}
	}
	return nil
}

func runSuite(config *utils.Config, logger metrics.Logger) {
	grid := raster.GridFromBBox(64, 64, [4]float64{0, 0, 64, 64}, "EPSG:32633")

	fmt.Printf("Testing region rasterization: ")
	region, err := raster.RasterizeGeoJSON(regionDoc, grid)
	if err != nil {
		fail(err)
	}
	if region.Count() == 0 || region.Count() == grid.Size() {
		fail(fmt.Errorf("region mask covers %d of %d pixels", region.Count(), grid.Size()))
	}
	fmt.Println(passed)

	series := syntheticSeries(grid)

	fmt.Printf("Testing seasonal pipeline (%d slices, %d seasons): ", series.Len(), len(config.Seasons))
	start := time.Now()
	errChan := make(chan error, 100)
	pipeline := processor.InitSeasonalPipeline(context.Background(), config, region, errChan)
	pipeline.MetricsCollector = metrics.NewMetricsCollector(logger)

	products := make(map[string]*processor.SeasonProducts)
	for p := range pipeline.Process(series) {
		products[p.Season] = p
	}
	select {
	case err := <-errChan:
		fail(err)
	default:
	}
	if len(products) != len(config.Seasons) {
		fail(fmt.Errorf("pipeline produced %d of %d seasons", len(products), len(config.Seasons)))
	}
	fmt.Println(passed, time.Since(start))

	for _, season := range config.Seasons {
		p := products[season.Name]

		fmt.Printf("Testing %s products: ", season.Name)
		if err := checkProducts(config, p); err != nil {
			fail(fmt.Errorf("season %s: %v", season.Name, err))
		}
		fmt.Println(passed)

		if config.PCA.Enabled {
			fmt.Printf("Testing %s principal components: ", season.Name)
			if err := checkPCA(p, region); err != nil {
				fail(fmt.Errorf("season %s: %v", season.Name, err))
			}
			fmt.Println(passed)
		}
	}

	// Give the metrics queue a moment to drain before returning.
	time.Sleep(100 * time.Millisecond)
}

func main() {
	configFile := flag.String("c", "", "YAML run configuration (empty runs the built-in suite config)")
	metricsDir := flag.String("metrics_dir", "", "Directory for run metrics log files (empty logs to stdout)")
	watch := flag.Bool("watch", false, "Keep running and repeat the suite whenever SIGHUP reloads the config")
	verbose := flag.Bool("v", false, "Verbose metrics logging")
	flag.Parse()

	if terminal.IsTerminal(int(os.Stdout.Fd())) {
		passed = inGreen(passed)
		failed = inRed(failed)
	}

	config := defaultConfig()
	if *configFile != "" {
		config = &utils.Config{}
		if err := config.LoadConfigFile(*configFile); err != nil {
			Error.Fatal(err)
		}
	}

	var logger metrics.Logger
	if *metricsDir != "" {
		logger = metrics.NewFileLogger(*metricsDir, 0, 0, *verbose)
	} else {
		logger = metrics.NewStdoutLogger()
	}

	runSuite(config, logger)

	if *watch && *configFile != "" {
		utils.WatchConfig(Info, Error, *configFile, config)
		sighup := make(chan os.Signal, 1)
		signal.Notify(sighup, syscall.SIGHUP)
		Info.Printf("watching %s, send SIGHUP to reload and rerun", *configFile)
		for range sighup {
			// Let the config watcher finish its reload first.
			time.Sleep(100 * time.Millisecond)
			runSuite(config, logger)
		}
	}
}
