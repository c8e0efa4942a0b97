package core

import (
	"math"
	"sort"

	"github.com/golang/geo/s2"
)

const (
	// CellLevel is the S2 level used to address map cells.
	CellLevel = 15
	// CellWalk is the number of neighbouring cells requested on each side
	// of the cell containing the probe location.
	CellWalk = 10
)

// FixedPoint encodes a coordinate as its IEEE-754 bit pattern, the form the
// remote service expects for request coordinates.
func FixedPoint(f float64) uint64 {
	return math.Float64bits(f)
}

// FromFixedPoint reverses FixedPoint.
func FromFixedPoint(v uint64) float64 {
	return math.Float64frombits(v)
}

// CellIDs returns the level-15 cell containing (lat, lng) together with
// CellWalk cells before and after it along the Hilbert curve, sorted
// ascending.
func CellIDs(lat, lng float64) []uint64 {
	origin := s2.CellIDFromLatLng(s2.LatLngFromDegrees(lat, lng)).Parent(CellLevel)

	ids := make([]uint64, 0, 2*CellWalk+1)
	ids = append(ids, uint64(origin))
	next, prev := origin.Next(), origin.Prev()
	for i := 0; i < CellWalk; i++ {
		ids = append(ids, uint64(prev), uint64(next))
		next, prev = next.Next(), prev.Prev()
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	return ids
}
