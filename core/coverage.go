package core

import (
	"math"

	"github.com/signalsfoundry/geoscan/model"
)

// RingSpacing is the per-ring unit of the hexagonal tiling, in metres.
const RingSpacing = 100.0

var sin60 = math.Sin(60 * math.Pi / 180)

// RingDistance returns the distance from the origin of the candidate at
// bearing angleDeg on ring i. Along each 60° sector the candidates sit on a
// straight hexagon edge, so the distance is smallest mid-sector.
func RingDistance(ring int, angleDeg float64) float64 {
	theta := math.Mod(angleDeg, 60)
	return math.Sqrt(3) * RingSpacing * float64(ring) * sin60 / math.Sin((120-theta)*math.Pi/180)
}

// GenerateCoverage tiles the disc of the given radius (metres) around origin
// with concentric hexagonal rings of probe locations. Ring i holds 6i
// candidates; a candidate is kept only when it lies strictly inside radius,
// and generation stops at the first ring with no candidate in range. The
// origin, at altitude zero, is appended last.
func GenerateCoverage(origin model.ScanPoint, radius float64) model.CoverageSet {
	origin = origin.Surface()
	set := model.CoverageSet{Origin: origin, Radius: radius}

	if !(radius > 0) || math.IsInf(radius, 1) {
		set.Points = []model.ScanPoint{origin}
		return set
	}

	var points []model.ScanPoint
	for i := 1; ; i++ {
		candidates := 6 * i
		outOfRange := 0
		for j := 0; j < candidates; j++ {
			angle := (360.0 / float64(candidates)) * float64(j)
			d := RingDistance(i, angle)
			if d < radius {
				points = append(points, Direct(origin, angle, d))
			} else {
				outOfRange++
			}
		}
		if outOfRange == candidates {
			break
		}
		set.Rings = i
	}

	set.Points = append(points, origin)
	return set
}
