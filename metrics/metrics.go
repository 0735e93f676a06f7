// Package metrics reports what a pipeline run did: the grid and series
// it consumed, and per season the sample counts, eigenvalues and
// products it produced. Records are emitted as one JSON document per
// run through a pluggable Logger.
package metrics

import (
	"bytes"
	"encoding/json"
	"sync"
	"time"
)

// SeasonInfo describes the outcome of one season's processing.
type SeasonInfo struct {
	Season      string        `json:"season"`
	Duration    time.Duration `json:"duration"`
	Products    []string      `json:"products"`
	Samples     int64         `json:"samples"`
	Eigenvalues []float64     `json:"eigenvalues,omitempty"`
}

// RunInfo describes one pipeline run.
type RunInfo struct {
	RunTime      string        `json:"run_time"`
	Duration     time.Duration `json:"duration"`
	GridWidth    int           `json:"grid_width"`
	GridHeight   int           `json:"grid_height"`
	Bands        []string      `json:"bands"`
	Slices       int           `json:"slices"`
	RegionPixels int           `json:"region_pixels"`
	Seasons      []*SeasonInfo `json:"seasons"`
}

// MetricsCollector gathers RunInfo across the season workers and hands
// the finished record to its logger.
type MetricsCollector struct {
	Info   *RunInfo
	logger Logger
	mu     sync.Mutex
}

func NewMetricsCollector(logger Logger) *MetricsCollector {
	return &MetricsCollector{
		Info:   &RunInfo{},
		logger: logger,
	}
}

// AddSeason records one season's outcome. Safe to call from concurrent
// season workers.
func (m *MetricsCollector) AddSeason(info *SeasonInfo) {
	m.mu.Lock()
	m.Info.Seasons = append(m.Info.Seasons, info)
	m.mu.Unlock()
}

func (m *MetricsCollector) Log() {
	if m.logger != nil {
		m.logger.Log(m.Info)
	}
}

func (i *RunInfo) ToJSON() (string, error) {
	buf := new(bytes.Buffer)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	err := enc.Encode(i)
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
