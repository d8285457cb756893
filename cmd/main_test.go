package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcat.dev/transit/model"
)

func TestParseHeaders(t *testing.T) {
	h, err := parseHeaders([]string{"x-api-key: hunter2", "Accept:application/json"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"x-api-key": "hunter2", "Accept": "application/json"}, h)

	_, err = parseHeaders([]string{"nocolon"})
	assert.Error(t, err)
}

func TestParseCoordinate(t *testing.T) {
	c, err := parseCoordinate("42.4477, -76.4841")
	require.NoError(t, err)
	assert.Equal(t, model.Coordinate{Lat: 42.4477, Lng: -76.4841}, c)

	for _, s := range []string{"", "42.4", "a,b", "1,2,3"} {
		_, err = parseCoordinate(s)
		assert.Error(t, err, s)
	}
}

func TestDirectionRows(t *testing.T) {
	delay := 90 * time.Second
	start := time.Date(2018, 3, 26, 17, 0, 0, 0, time.UTC)
	rows := directionRows("r1", []model.Direction{
		{Type: model.DirectionWalk, Name: "Arts Quad", StartTime: start, EndTime: start.Add(5 * time.Minute)},
		{
			Type:        model.DirectionDepart,
			Name:        "Route 10",
			StartTime:   start.Add(5 * time.Minute),
			RouteNumber: 10,
			Stops:       []model.Stop{{ID: "1"}, {ID: "2"}},
			Delay:       &delay,
		},
	})

	require.Len(t, rows, 2)
	assert.Equal(t, "walk", rows[0].Type)
	assert.Equal(t, "2018-03-26T17:00:00Z", rows[0].StartTime)
	assert.Equal(t, "", rows[0].DelaySecs)
	assert.Equal(t, 1, rows[1].Index)
	assert.Equal(t, 2, rows[1].NumStops)
	assert.Equal(t, "90", rows[1].DelaySecs)
}
