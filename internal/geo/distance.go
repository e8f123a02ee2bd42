// Package geo computes great-circle distances between GPS fixes using the
// haversine formula on a spherical Earth.
package geo

import (
	"math"

	"fleet-asset-report/internal/models"
)

// EarthRadiusKM is the mean Earth radius in kilometers.
const EarthRadiusKM = 6371.0

// Distance returns the great-circle distance between a and b in kilometers.
// It returns 0 when either coordinate is missing a component.
//
//	a = sin²(Δφ/2) + cos φ1 ⋅ cos φ2 ⋅ sin²(Δλ/2)
//	d = 2R ⋅ asin(√a)
func Distance(a, b models.Coordinate) float64 {
	if !a.Valid() || !b.Valid() {
		return 0
	}

	lat1 := degreesToRadians(a.Lat)
	lat2 := degreesToRadians(b.Lat)
	deltaLat := degreesToRadians(b.Lat - a.Lat)
	deltaLon := degreesToRadians(b.Lon - a.Lon)

	sinLat := math.Sin(deltaLat / 2)
	sinLon := math.Sin(deltaLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon

	// rounding can push h just outside [0, 1] near antipodes
	h = math.Min(1, math.Max(0, h))

	return 2 * EarthRadiusKM * math.Asin(math.Sqrt(h))
}

func degreesToRadians(degrees float64) float64 {
	return degrees * math.Pi / 180
}
