package utils

import (
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"gopkg.in/yaml.v2"

	"github.com/arcfield/tessera/stats"
)

// string used to format Go ISO times
const ISOFormat = "2006-01-02T15:04:05.000Z"

// Defaults applied by Validate when the corresponding field is unset.
const (
	DefaultMaxSamples = 1000000
	DefaultTileRows   = 256
	DefaultPCAPrefix  = "pc"
)

// PipelineConfig bounds the resources of one pipeline run. MaxPixels
// zero means unbounded.
type PipelineConfig struct {
	Concurrency int   `yaml:"concurrency"`
	TileRows    int   `yaml:"tile_rows"`
	MaxPixels   int64 `yaml:"max_pixels"`
}

// SeasonConfig names a season and the day-of-year windows composing it.
// A season split by the turn of the year carries two windows, which are
// composited separately and merged with equal weight.
type SeasonConfig struct {
	Name    string       `yaml:"name"`
	Windows []TimeWindow `yaml:"windows"`
}

// IndexConfig defines a derived band as an arithmetic expression over
// the composite's band names.
type IndexConfig struct {
	Name string `yaml:"name"`
	Expr string `yaml:"expr"`
}

// TransformConfig defines a fixed-coefficient spectral transform. Rows
// of Coefficients are output components over the input bands in raster
// band order.
type TransformConfig struct {
	Name         string      `yaml:"name"`
	Coefficients [][]float64 `yaml:"coefficients"`
	OutputBands  []string    `yaml:"output_bands"`
}

// PCAConfig controls the data-driven transform.
type PCAConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OutputPrefix string  `yaml:"output_prefix"`
	MaxSamples   int     `yaml:"max_samples"`
	EigenFloor   float64 `yaml:"eigen_floor"`
}

// Config is the struct representing the configuration of a seasonal
// processing run: the seasons to composite and the derived products to
// compute for each.
type Config struct {
	Pipeline   PipelineConfig    `yaml:"pipeline"`
	Seasons    []SeasonConfig    `yaml:"seasons"`
	Indices    []IndexConfig     `yaml:"indices"`
	Transforms []TransformConfig `yaml:"transforms"`
	PCA        PCAConfig         `yaml:"pca"`
}

// LoadConfigFile unmarshalls the YAML config document returning an
// instance of a Config variable containing all the values.
func (config *Config) LoadConfigFile(configFile string) error {
	*config = Config{}
	cfg, err := ioutil.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("Error while reading config file: %s. Error: %v", configFile, err)
	}

	err = yaml.Unmarshal(cfg, config)
	if err != nil {
		return fmt.Errorf("Error at YAML parsing config document: %s. Error: %v", configFile, err)
	}
	return config.Validate()
}

// Validate fills in defaults and checks the configuration for
// consistency.
func (config *Config) Validate() error {
	if config.Pipeline.Concurrency <= 0 {
		config.Pipeline.Concurrency = runtime.NumCPU()
	}
	if config.Pipeline.TileRows <= 0 {
		config.Pipeline.TileRows = DefaultTileRows
	}
	if config.Pipeline.MaxPixels < 0 {
		return fmt.Errorf("max_pixels must not be negative, got %d", config.Pipeline.MaxPixels)
	}

	for _, season := range config.Seasons {
		if season.Name == "" {
			return fmt.Errorf("Season without a name")
		}
		if len(season.Windows) < 1 || len(season.Windows) > 2 {
			return fmt.Errorf("Season %s must define one or two windows, got %d", season.Name, len(season.Windows))
		}
		for _, w := range season.Windows {
			if err := w.Validate(); err != nil {
				return fmt.Errorf("Season %s: %w", season.Name, err)
			}
		}
	}

	for _, index := range config.Indices {
		if index.Name == "" || index.Expr == "" {
			return fmt.Errorf("Index %s must define both name and expr", index.Name)
		}
		if _, err := ParseBandExpressions([]string{index.Expr}); err != nil {
			return fmt.Errorf("Index %s: %v", index.Name, err)
		}
	}

	for _, tr := range config.Transforms {
		rows := len(tr.Coefficients)
		if rows == 0 {
			return fmt.Errorf("Transform %s has an empty coefficient matrix", tr.Name)
		}
		for i, row := range tr.Coefficients {
			if len(row) != len(tr.Coefficients[0]) {
				return fmt.Errorf("Transform %s row %d has %d coefficients, row 0 has %d",
					tr.Name, i, len(row), len(tr.Coefficients[0]))
			}
		}
		if len(tr.OutputBands) != rows {
			return fmt.Errorf("Transform %s has %d output bands for %d coefficient rows",
				tr.Name, len(tr.OutputBands), rows)
		}
	}

	if config.PCA.OutputPrefix == "" {
		config.PCA.OutputPrefix = DefaultPCAPrefix
	}
	if config.PCA.MaxSamples < 0 {
		return fmt.Errorf("pca max_samples must not be negative, got %d", config.PCA.MaxSamples)
	}
	if config.PCA.MaxSamples == 0 {
		config.PCA.MaxSamples = DefaultMaxSamples
	}
	if config.PCA.EigenFloor < 0 {
		return fmt.Errorf("pca eigen_floor must not be negative, got %v", config.PCA.EigenFloor)
	}
	if config.PCA.EigenFloor == 0 {
		config.PCA.EigenFloor = stats.DefaultEigenFloor
	}
	return nil
}

// WatchConfig reloads the config file on SIGHUP. The running config is
// replaced only when the reload succeeds.
func WatchConfig(infoLog, errLog *log.Logger, configFile string, config *Config) {
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	go func() {
		for {
			select {
			case <-sighup:
				infoLog.Println("Caught SIGHUP, reloading config...")
				next := &Config{}
				if err := next.LoadConfigFile(configFile); err != nil {
					errLog.Printf("Error in loading config file: %v\n", err)
					continue
				}
				*config = *next
			}
		}
	}()
}
