package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/arcfield/tessera/metrics"
	"github.com/arcfield/tessera/raster"
	"github.com/arcfield/tessera/stats"
	"github.com/arcfield/tessera/utils"
)

// SeasonProducts bundles everything the pipeline derives for one season.
// Fields for products the configuration did not ask for stay nil.
type SeasonProducts struct {
	Season     string
	Composite  *raster.Raster
	Indices    *raster.Raster
	Transforms map[string]*raster.Raster
	PCA        *raster.Raster
	Mean       []float64
	Eigen      *stats.EigenDecomposition
}

// SeasonalPipeline derives the configured products from a raster time
// series: per-season mean composites and, per composite, derived index
// bands, fixed-coefficient transforms and a standardized PCA over the
// region of interest. Seasons fan out across workers; failures surface
// on the shared error channel.
type SeasonalPipeline struct {
	Context          context.Context
	Config           *utils.Config
	Region           *raster.RegionMask
	Error            chan error
	MetricsCollector *metrics.MetricsCollector
}

func InitSeasonalPipeline(ctx context.Context, config *utils.Config, region *raster.RegionMask, errChan chan error) *SeasonalPipeline {
	return &SeasonalPipeline{
		Context: ctx,
		Config:  config,
		Region:  region,
		Error:   errChan,
	}
}

// Process runs every configured season over series. The returned channel
// yields one SeasonProducts per season, in completion order, and closes
// when all seasons are done.
func (p *SeasonalPipeline) Process(series *raster.TimeSeries) chan *SeasonProducts {
	out := make(chan *SeasonProducts, len(p.Config.Seasons))
	go func() {
		defer close(out)
		start := time.Now()

		if series.Len() == 0 {
			p.sendError(fmt.Errorf("empty time series: %w", ErrEmptySelection))
			return
		}
		grid := series.Grid()
		if limit := p.Config.Pipeline.MaxPixels; limit > 0 {
			total := int64(grid.Size()) * int64(series.Len())
			if total > limit {
				p.sendError(fmt.Errorf("run wants %d samples, limit is %d: %w", total, limit, ErrResourceExceeded))
				return
			}
		}
		if p.Region != nil && !p.Region.Grid.Equal(grid) {
			p.sendError(fmt.Errorf("region mask: %w", raster.ErrGridMismatch))
			return
		}

		if mc := p.MetricsCollector; mc != nil {
			mc.Info.RunTime = start.UTC().Format(utils.ISOFormat)
			mc.Info.GridWidth = grid.Width
			mc.Info.GridHeight = grid.Height
			mc.Info.Bands = series.BandNames()
			mc.Info.Slices = series.Len()
			if p.Region != nil {
				mc.Info.RegionPixels = p.Region.Count()
			} else {
				mc.Info.RegionPixels = grid.Size()
			}
		}

		cLimiter := NewConcLimiter(p.Config.Pipeline.Concurrency)
		for _, season := range p.Config.Seasons {
			if p.checkCancellation() {
				break
			}
			season := season
			cLimiter.Increase()
			go func() {
				defer cLimiter.Decrease()
				products, err := p.processSeason(series, season)
				if err != nil {
					p.sendError(fmt.Errorf("season %s: %w", season.Name, err))
					return
				}
				out <- products
			}()
		}
		cLimiter.Wait()

		if mc := p.MetricsCollector; mc != nil {
			mc.Info.Duration = time.Since(start)
			mc.Log()
		}
	}()
	return out
}

func (p *SeasonalPipeline) processSeason(series *raster.TimeSeries, season utils.SeasonConfig) (*SeasonProducts, error) {
	start := time.Now()
	cfg := p.Config
	tileRows, conc := cfg.Pipeline.TileRows, cfg.Pipeline.Concurrency

	composite, err := NewCompositor(tileRows, conc).CompositeSeason(p.Context, series, season)
	if err != nil {
		return nil, err
	}

	products := &SeasonProducts{Season: season.Name, Composite: composite}
	info := &metrics.SeasonInfo{Season: season.Name, Products: []string{"composite"}}

	if len(cfg.Indices) > 0 {
		indices, err := NewIndexEngine(tileRows, conc).ComputeIndices(p.Context, composite, cfg.Indices)
		if err != nil {
			return nil, err
		}
		products.Indices = indices
		info.Products = append(info.Products, "indices")
	}

	projector := NewProjector(tileRows, conc)
	if len(cfg.Transforms) > 0 {
		products.Transforms = make(map[string]*raster.Raster, len(cfg.Transforms))
		for _, tr := range cfg.Transforms {
			transformed, err := projector.Transform(p.Context, composite, tr.Coefficients, tr.OutputBands)
			if err != nil {
				return nil, fmt.Errorf("transform %s: %w", tr.Name, err)
			}
			products.Transforms[tr.Name] = transformed
			info.Products = append(info.Products, tr.Name)
		}
	}

	if cfg.PCA.Enabled {
		estimator := NewCovarianceEstimator(cfg.PCA.MaxSamples, tileRows, conc)
		regionStats, err := estimator.Estimate(p.Context, composite, p.Region)
		if err != nil {
			return nil, err
		}
		eigen, err := stats.Decompose(regionStats.Cov)
		if err != nil {
			return nil, err
		}
		proj, err := NewPCAProjection(regionStats.Mean, eigen, cfg.PCA.EigenFloor, cfg.PCA.OutputPrefix)
		if err != nil {
			return nil, err
		}
		pca, err := projector.Apply(p.Context, composite, proj)
		if err != nil {
			return nil, err
		}
		products.PCA = pca
		products.Mean = regionStats.Mean
		products.Eigen = eigen
		info.Products = append(info.Products, "pca")
		info.Samples = regionStats.Samples
		info.Eigenvalues = eigen.Values
	}

	info.Duration = time.Since(start)
	if p.MetricsCollector != nil {
		p.MetricsCollector.AddSeason(info)
	}
	return products, nil
}

func (p *SeasonalPipeline) sendError(err error) {
	select {
	case p.Error <- err:
	default:
	}
}

func (p *SeasonalPipeline) checkCancellation() bool {
	select {
	case <-p.Context.Done():
		p.sendError(fmt.Errorf("seasonal pipeline: context has been cancelled: %v", p.Context.Err()))
		return true
	default:
		return false
	}
}
