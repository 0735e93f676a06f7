package raster

import (
	"fmt"
	"sort"
	"time"
)

// TimeSlice is one acquisition: a timestamp and its raster.
type TimeSlice struct {
	Time   time.Time
	Raster *Raster
}

// TimeSeries is a chronologically ordered sequence of co-registered
// acquisitions with an identical band layout. Membership is validated on
// Add so downstream stages can rely on the invariant instead of checking
// per pixel.
type TimeSeries struct {
	slices []TimeSlice
}

// NewTimeSeries returns an empty series.
func NewTimeSeries() *TimeSeries {
	return &TimeSeries{}
}

// Add inserts an acquisition keeping chronological order. The first
// raster fixes the grid and band layout; later ones must match it.
func (ts *TimeSeries) Add(t time.Time, r *Raster) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if len(ts.slices) > 0 {
		first := ts.slices[0].Raster
		if !first.Grid.Equal(r.Grid) {
			return fmt.Errorf("raster at %s: %w", t.Format(time.RFC3339), ErrGridMismatch)
		}
		if !first.SameLayout(r) {
			return fmt.Errorf("raster at %s: %w", t.Format(time.RFC3339), ErrBandMismatch)
		}
	}
	i := sort.Search(len(ts.slices), func(i int) bool { return ts.slices[i].Time.After(t) })
	ts.slices = append(ts.slices, TimeSlice{})
	copy(ts.slices[i+1:], ts.slices[i:])
	ts.slices[i] = TimeSlice{Time: t, Raster: r}
	return nil
}

// Len returns the number of acquisitions.
func (ts *TimeSeries) Len() int { return len(ts.slices) }

// Slices returns the acquisitions in chronological order. The returned
// slice is owned by the series and must not be mutated.
func (ts *TimeSeries) Slices() []TimeSlice { return ts.slices }

// Grid returns the shared grid. It panics on an empty series.
func (ts *TimeSeries) Grid() Grid { return ts.slices[0].Raster.Grid }

// BandNames returns the shared band order. It panics on an empty series.
func (ts *TimeSeries) BandNames() []string { return ts.slices[0].Raster.BandNames() }
