package core

import (
	"testing"

	"github.com/golang/geo/s2"
)

func TestFixedPointRoundTrip(t *testing.T) {
	if got := FixedPoint(1.0); got != 0x3FF0000000000000 {
		t.Fatalf("FixedPoint(1.0) = %#x, want 0x3ff0000000000000", got)
	}
	for _, v := range []float64{0, -73.9855, 40.758, 179.999999} {
		if got := FromFixedPoint(FixedPoint(v)); got != v {
			t.Fatalf("round trip %v = %v", v, got)
		}
	}
}

func TestCellIDsWalk(t *testing.T) {
	ids := CellIDs(testOrigin.Latitude, testOrigin.Longitude)

	if len(ids) != 2*CellWalk+1 {
		t.Fatalf("len = %d, want %d", len(ids), 2*CellWalk+1)
	}
	for i := 1; i < len(ids); i++ {
		if ids[i-1] >= ids[i] {
			t.Fatalf("ids not strictly ascending at %d: %d >= %d", i, ids[i-1], ids[i])
		}
	}

	origin := s2.CellIDFromLatLng(s2.LatLngFromDegrees(testOrigin.Latitude, testOrigin.Longitude)).Parent(CellLevel)
	if ids[CellWalk] != uint64(origin) {
		t.Fatalf("middle id = %d, want containing cell %d", ids[CellWalk], uint64(origin))
	}
	for _, id := range ids {
		if lvl := s2.CellID(id).Level(); lvl != CellLevel {
			t.Fatalf("cell %d level = %d, want %d", id, lvl, CellLevel)
		}
	}
}
