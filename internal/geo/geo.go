// Package geo holds the WGS84 value types shared by the map session, the
// marker layer and the search flow.
package geo

import (
	"fmt"
	"math"
)

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the point lies within WGS84 bounds.
func (p Point) Valid() bool {
	return !math.IsNaN(p.Lat) && !math.IsNaN(p.Lng) &&
		p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

func (p Point) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng)
}

// BoundingBox represents a geographic bounding box
type BoundingBox struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// Center returns the midpoint of the box
func (b BoundingBox) Center() Point {
	return Point{Lat: (b.South + b.North) / 2, Lng: (b.West + b.East) / 2}
}

// Contains reports whether p lies inside the box (edges included)
func (b BoundingBox) Contains(p Point) bool {
	return p.Lat >= b.South && p.Lat <= b.North && p.Lng >= b.West && p.Lng <= b.East
}

// Extend grows the box to include p
func (b BoundingBox) Extend(p Point) BoundingBox {
	return BoundingBox{
		South: math.Min(b.South, p.Lat),
		West:  math.Min(b.West, p.Lng),
		North: math.Max(b.North, p.Lat),
		East:  math.Max(b.East, p.Lng),
	}
}

// BoundsOf returns the smallest box covering all points. ok is false for an empty slice.
func BoundsOf(points []Point) (box BoundingBox, ok bool) {
	if len(points) == 0 {
		return BoundingBox{}, false
	}
	box = BoundingBox{South: points[0].Lat, West: points[0].Lng, North: points[0].Lat, East: points[0].Lng}
	for _, p := range points[1:] {
		box = box.Extend(p)
	}
	return box, true
}

// Result is one search hit. IDs are unique within a result set.
type Result struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Address   string  `json:"address,omitempty"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Caption   string  `json:"caption,omitempty"`
	Thumbnail string  `json:"thumbnail,omitempty"` // data URL or http(s) URL
}

// Point returns the result location
func (r Result) Point() Point {
	return Point{Lat: r.Lat, Lng: r.Lng}
}

// Points collects the locations of a result set
func Points(results []Result) []Point {
	points := make([]Point, len(results))
	for i, r := range results {
		points[i] = r.Point()
	}
	return points
}

// FindResult looks up a result by ID
func FindResult(results []Result, id string) (Result, bool) {
	for _, r := range results {
		if r.ID == id {
			return r, true
		}
	}
	return Result{}, false
}
