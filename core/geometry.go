package core

import (
	"github.com/tidwall/geodesic"

	"github.com/signalsfoundry/geoscan/model"
)

// Direct projects a point from origin along the given bearing (degrees,
// clockwise from north) for distance metres on the WGS84 ellipsoid.
// The altitude of the result is zero.
func Direct(origin model.ScanPoint, bearingDeg, distance float64) model.ScanPoint {
	var lat, lng float64
	geodesic.WGS84.Direct(origin.Latitude, origin.Longitude, bearingDeg, distance, &lat, &lng, nil)
	return model.ScanPoint{Latitude: lat, Longitude: lng}
}

// Distance returns the WGS84 geodesic distance between a and b in metres.
// Altitudes are ignored.
func Distance(a, b model.ScanPoint) float64 {
	var s12 float64
	geodesic.WGS84.Inverse(a.Latitude, a.Longitude, b.Latitude, b.Longitude, &s12, nil, nil)
	return s12
}
