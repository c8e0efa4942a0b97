package model

import "fmt"

// ScanPoint is a geographic position in decimal degrees with altitude in metres.
type ScanPoint struct {
	Latitude  float64
	Longitude float64
	Altitude  float64
}

// String renders the point as lat/lng/alt for logs.
func (p ScanPoint) String() string {
	return fmt.Sprintf("%.6f/%.6f/%.1f", p.Latitude, p.Longitude, p.Altitude)
}

// Surface returns p with the altitude dropped to zero.
func (p ScanPoint) Surface() ScanPoint {
	return ScanPoint{Latitude: p.Latitude, Longitude: p.Longitude}
}

// CoverageSet is the ordered list of probe locations tiling a disc around
// Origin. The origin is always the final element of Points.
type CoverageSet struct {
	Origin ScanPoint
	Radius float64 // metres

	// Rings is the number of hexagonal rings that contributed at least one point.
	Rings int

	Points []ScanPoint
}

// Len returns the number of probe locations, origin included.
func (c CoverageSet) Len() int {
	return len(c.Points)
}

// At returns the i-th probe location (zero based).
func (c CoverageSet) At(i int) ScanPoint {
	return c.Points[i]
}
