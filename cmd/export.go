package main

import (
	"strconv"
	"time"

	"tcat.dev/transit/model"
)

// One direction, flattened for CSV export.
type directionRow struct {
	RouteID     string  `csv:"route_id"`
	Index       int     `csv:"index"`
	Type        string  `csv:"type"`
	Name        string  `csv:"name"`
	StartTime   string  `csv:"start_time"`
	EndTime     string  `csv:"end_time"`
	StartLat    float64 `csv:"start_lat"`
	StartLng    float64 `csv:"start_lng"`
	EndLat      float64 `csv:"end_lat"`
	EndLng      float64 `csv:"end_lng"`
	RouteNumber int     `csv:"route_number"`
	NumStops    int     `csv:"num_stops"`
	Stay        bool    `csv:"stay_on_bus"`
	DelaySecs   string  `csv:"delay_seconds"`
}

func directionRows(routeID string, directions []model.Direction) []*directionRow {
	rows := make([]*directionRow, 0, len(directions))
	for i, d := range directions {
		row := &directionRow{
			RouteID:     routeID,
			Index:       i,
			Type:        d.Type.String(),
			Name:        d.Name,
			StartTime:   d.StartTime.UTC().Format(time.RFC3339),
			EndTime:     d.EndTime.UTC().Format(time.RFC3339),
			StartLat:    d.StartLocation.Lat,
			StartLng:    d.StartLocation.Lng,
			EndLat:      d.EndLocation.Lat,
			EndLng:      d.EndLocation.Lng,
			RouteNumber: d.RouteNumber,
			NumStops:    len(d.Stops),
			Stay:        d.StayOnBusForTransfer,
		}
		if d.Delay != nil {
			row.DelaySecs = strconv.Itoa(int(d.Delay.Round(time.Second) / time.Second))
		}
		rows = append(rows, row)
	}
	return rows
}
