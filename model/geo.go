package model

import (
	"math"
)

const earthRadiusMeters = 6371000

// Great-circle distance between a and b, in meters.
func Distance(a, b Coordinate) float64 {
	aLatRad := a.Lat * math.Pi / 180
	aLngRad := a.Lng * math.Pi / 180
	bLatRad := b.Lat * math.Pi / 180
	bLngRad := b.Lng * math.Pi / 180
	deltaLat := aLatRad - bLatRad
	deltaLng := aLngRad - bLngRad

	h := math.Cos(aLatRad)*math.Cos(bLatRad)*math.Pow(math.Sin(deltaLng/2), 2) + math.Pow(math.Sin(deltaLat/2), 2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return c * earthRadiusMeters
}

func MetersToMiles(m float64) float64 {
	return m / 1609.344
}
