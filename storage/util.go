package storage

import (
	"sort"

	"tcat.dev/transit/model"
)

// Sorts stops by distance from lat/lng, nearest first, and truncates
// to limit unless it's 0.
func nearest(stops []model.Stop, lat float64, lng float64, limit int) []model.Stop {
	origin := model.Coordinate{Lat: lat, Lng: lng}

	sort.SliceStable(stops, func(i, j int) bool {
		di := model.Distance(origin, stops[i].Coordinate())
		dj := model.Distance(origin, stops[j].Coordinate())
		return di < dj
	})

	if limit > 0 && len(stops) > limit {
		stops = stops[:limit]
	}

	return stops
}
