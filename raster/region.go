package raster

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	geo "github.com/nci/geometry"
)

var ErrUnsupportedGeometry = errors.New("raster: only Polygon and MultiPolygon regions are supported")

// RegionMask flags the pixels of a grid whose centers fall inside a
// region of interest. A nil mask is treated as the whole grid by
// consumers.
type RegionMask struct {
	Grid Grid
	Pix  []bool
}

// Contains reports whether pixel idx is inside the region.
func (m *RegionMask) Contains(idx int) bool { return m.Pix[idx] }

// Count returns the number of pixels inside the region.
func (m *RegionMask) Count() int {
	n := 0
	for _, in := range m.Pix {
		if in {
			n++
		}
	}
	return n
}

type ring [][2]float64

// RasterizeGeoJSON burns a GeoJSON region onto the grid, marking every
// pixel whose center lies inside the region (even-odd rule, so holes are
// honored). The document may be a Feature, a FeatureCollection (all
// features are burnt) or a bare Polygon/MultiPolygon geometry. The
// region is expected in the grid's CRS.
func RasterizeGeoJSON(doc []byte, grid Grid) (*RegionMask, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(doc, &probe); err != nil {
		return nil, fmt.Errorf("raster: parsing region document: %w", err)
	}

	var rings []ring
	switch probe.Type {
	case "Feature":
		var feat geo.Feature
		if err := json.Unmarshal(doc, &feat); err != nil {
			return nil, fmt.Errorf("raster: parsing region feature: %w", err)
		}
		rs, err := featureRings(feat.Geometry)
		if err != nil {
			return nil, err
		}
		rings = rs
	case "FeatureCollection":
		var fc geo.FeatureCollection
		if err := json.Unmarshal(doc, &fc); err != nil {
			return nil, fmt.Errorf("raster: parsing region feature collection: %w", err)
		}
		for _, feat := range fc.Features {
			rs, err := featureRings(feat.Geometry)
			if err != nil {
				return nil, err
			}
			rings = append(rings, rs...)
		}
	case "Polygon", "MultiPolygon":
		rs, err := decodeRings(doc)
		if err != nil {
			return nil, err
		}
		rings = rs
	default:
		return nil, fmt.Errorf("raster: region type %q: %w", probe.Type, ErrUnsupportedGeometry)
	}

	mask := &RegionMask{Grid: grid, Pix: make([]bool, grid.Size())}
	burnRings(mask, rings)
	return mask, nil
}

// featureRings extracts the polygon rings of a feature geometry. The
// geometry travels as GeoJSON between components, so coordinates are
// recovered through a JSON round trip rather than by poking at the
// geometry types.
func featureRings(g geo.Geometry) ([]ring, error) {
	switch g.(type) {
	case *geo.Polygon, *geo.MultiPolygon:
	default:
		return nil, fmt.Errorf("raster: region feature geometry %T: %w", g, ErrUnsupportedGeometry)
	}
	geomJSON, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("raster: marshaling region geometry: %w", err)
	}
	return decodeRings(geomJSON)
}

func decodeRings(geomJSON []byte) ([]ring, error) {
	var g struct {
		Type        string          `json:"type"`
		Coordinates json.RawMessage `json:"coordinates"`
	}
	if err := json.Unmarshal(geomJSON, &g); err != nil {
		return nil, fmt.Errorf("raster: parsing region geometry: %w", err)
	}

	var polys [][][][]float64
	switch g.Type {
	case "Polygon":
		var p [][][]float64
		if err := json.Unmarshal(g.Coordinates, &p); err != nil {
			return nil, fmt.Errorf("raster: parsing polygon coordinates: %w", err)
		}
		polys = append(polys, p)
	case "MultiPolygon":
		if err := json.Unmarshal(g.Coordinates, &polys); err != nil {
			return nil, fmt.Errorf("raster: parsing multipolygon coordinates: %w", err)
		}
	default:
		return nil, fmt.Errorf("raster: region geometry type %q: %w", g.Type, ErrUnsupportedGeometry)
	}

	var rings []ring
	for _, poly := range polys {
		for _, coords := range poly {
			r := make(ring, 0, len(coords))
			for _, pt := range coords {
				if len(pt) < 2 {
					return nil, fmt.Errorf("raster: ring vertex has %d ordinates", len(pt))
				}
				r = append(r, [2]float64{pt[0], pt[1]})
			}
			if len(r) >= 3 {
				rings = append(rings, r)
			}
		}
	}
	return rings, nil
}

// burnRings fills mask by scanline: for each pixel row, the crossings of
// every ring edge with the row's center latitude are collected and the
// spans between alternate crossings are marked (even-odd rule).
func burnRings(mask *RegionMask, rings []ring) {
	g := mask.Grid
	originX, resX := g.Transform[0], g.Transform[1]
	var xs []float64
	for row := 0; row < g.Height; row++ {
		_, y := g.CellCenter(0, row)
		xs = xs[:0]
		for _, r := range rings {
			for i := range r {
				j := (i + len(r) - 1) % len(r)
				y1, y2 := r[j][1], r[i][1]
				if (y1 > y) == (y2 > y) {
					continue
				}
				x1, x2 := r[j][0], r[i][0]
				xs = append(xs, x1+(y-y1)*(x2-x1)/(y2-y1))
			}
		}
		if len(xs) < 2 {
			continue
		}
		sort.Float64s(xs)
		base := row * g.Width
		for k := 0; k+1 < len(xs); k += 2 {
			// Pixel centers in [xs[k], xs[k+1]): half-open so shared
			// boundaries between spans are not marked twice.
			c0 := int(math.Ceil((xs[k]-originX)/resX - 0.5))
			c1 := int(math.Ceil((xs[k+1]-originX)/resX-0.5)) - 1
			if c0 < 0 {
				c0 = 0
			}
			if c1 > g.Width-1 {
				c1 = g.Width - 1
			}
			for c := c0; c <= c1; c++ {
				mask.Pix[base+c] = true
			}
		}
	}
}
