// Package geo holds the primitive coordinate types shared by the
// clustering engine, the view synchronizer, and the projector.
package geo

import (
	"math"

	"github.com/twpayne/go-geom"
)

// LngLat is a geographic coordinate in degrees.
type LngLat struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

// Valid reports whether the coordinate is a finite, on-world position.
func (c LngLat) Valid() bool {
	if math.IsNaN(c.Lng) || math.IsNaN(c.Lat) || math.IsInf(c.Lng, 0) || math.IsInf(c.Lat, 0) {
		return false
	}
	return c.Lng >= -180 && c.Lng <= 180 && c.Lat >= -90 && c.Lat <= 90
}

// ScreenPoint is a projected position in viewport pixels.
type ScreenPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Valid reports whether both components are finite.
func (p ScreenPoint) Valid() bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

// Dist returns the Euclidean pixel distance to q.
func (p ScreenPoint) Dist(q ScreenPoint) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Viewport is the pixel size of the visible map area.
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// BBox represents a geographic bounding box.
type BBox struct {
	MinLng float64 `json:"min_lng"`
	MinLat float64 `json:"min_lat"`
	MaxLng float64 `json:"max_lng"`
	MaxLat float64 `json:"max_lat"`
}

// Center returns the midpoint of the box.
func (b BBox) Center() LngLat {
	return LngLat{Lng: (b.MinLng + b.MaxLng) / 2, Lat: (b.MinLat + b.MaxLat) / 2}
}

// Contains reports whether the coordinate lies inside the box (inclusive).
func (b BBox) Contains(c LngLat) bool {
	return c.Lng >= b.MinLng && c.Lng <= b.MaxLng && c.Lat >= b.MinLat && c.Lat <= b.MaxLat
}

// BoundsOf computes the bounding box of a non-empty coordinate set.
// The second return value is false when coords is empty or contains no
// valid coordinate.
func BoundsOf(coords []LngLat) (BBox, bool) {
	flat := make([]float64, 0, len(coords)*2)
	for _, c := range coords {
		if !c.Valid() {
			continue
		}
		flat = append(flat, c.Lng, c.Lat)
	}
	if len(flat) == 0 {
		return BBox{}, false
	}
	b := geom.NewBounds(geom.XY)
	b.Extend(geom.NewMultiPointFlat(geom.XY, flat))
	return BBox{
		MinLng: b.Min(0),
		MinLat: b.Min(1),
		MaxLng: b.Max(0),
		MaxLat: b.Max(1),
	}, true
}
