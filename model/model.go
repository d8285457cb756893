package model

import (
	"fmt"
	"time"
)

// Holds all external facing types and constants.

type DirectionType int

const (
	DirectionDepart DirectionType = iota
	DirectionTransfer
	DirectionWalk
	DirectionArrive
)

func (t DirectionType) String() string {
	switch t {
	case DirectionDepart:
		return "depart"
	case DirectionTransfer:
		return "transfer"
	case DirectionWalk:
		return "walk"
	case DirectionArrive:
		return "arrive"
	}
	return fmt.Sprintf("DirectionType(%d)", int(t))
}

// Maps the wire representation of a direction type.
func ParseDirectionType(s string) (DirectionType, error) {
	switch s {
	case "depart":
		return DirectionDepart, nil
	case "transfer":
		return DirectionTransfer, nil
	case "walk":
		return DirectionWalk, nil
	case "arrive":
		return DirectionArrive, nil
	}
	return 0, fmt.Errorf("unknown direction type '%s'", s)
}

func (t DirectionType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *DirectionType) UnmarshalText(text []byte) error {
	parsed, err := ParseDirectionType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// A named geographic point. Name is optional.
type Location struct {
	Name string  `json:"name,omitempty"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

func (l Location) Coordinate() Coordinate {
	return Coordinate{Lat: l.Lat, Lng: l.Lng}
}

type Stop struct {
	ID   string  `json:"id" csv:"stop_id"`
	Name string  `json:"name" csv:"stop_name"`
	Lat  float64 `json:"lat" csv:"stop_lat"`
	Lng  float64 `json:"lng" csv:"stop_lon"`
}

func (s Stop) Coordinate() Coordinate {
	return Coordinate{Lat: s.Lat, Lng: s.Lng}
}

// The most extreme points of a route. No ordering is enforced
// between min and max.
type Bounds struct {
	MinLat  float64 `json:"minLat"`
	MinLong float64 `json:"minLong"`
	MaxLat  float64 `json:"maxLat"`
	MaxLong float64 `json:"maxLong"`
}

// One leg of a trip.
//
// For depart and transfer legs, Stops holds the stops passed along
// the way. RouteNumber is only meaningful for those two types.
type Direction struct {
	Type                 DirectionType  `json:"type"`
	Name                 string         `json:"name"`
	StartLocation        Location       `json:"startLocation"`
	EndLocation          Location       `json:"endLocation"`
	StartTime            time.Time      `json:"startTime"`
	EndTime              time.Time      `json:"endTime"`
	Path                 []Coordinate   `json:"path"`
	TravelDistance       float64        `json:"travelDistance"`
	RouteNumber          int            `json:"routeNumber"`
	Stops                []Stop         `json:"stops"`
	StayOnBusForTransfer bool           `json:"stayOnBusForTransfer"`
	TripIdentifiers      []string       `json:"tripIdentifiers,omitempty"`
	Delay                *time.Duration `json:"delay,omitempty"`
}

// Returns a deep copy. Nothing is shared between the copy and the
// original, including the delay.
func (d Direction) Clone() Direction {
	c := d
	if d.Path != nil {
		c.Path = append([]Coordinate{}, d.Path...)
	}
	if d.Stops != nil {
		c.Stops = append([]Stop{}, d.Stops...)
	}
	if d.TripIdentifiers != nil {
		c.TripIdentifiers = append([]string{}, d.TripIdentifiers...)
	}
	if d.Delay != nil {
		delay := *d.Delay
		c.Delay = &delay
	}
	return c
}

// Last stop of the leg, if any.
func (d Direction) LastStop() (Stop, bool) {
	if len(d.Stops) == 0 {
		return Stop{}, false
	}
	return d.Stops[len(d.Stops)-1], true
}

// True for legs spent on a bus.
func (d Direction) IsBus() bool {
	return d.Type == DirectionDepart || d.Type == DirectionTransfer
}

func CloneDirections(directions []Direction) []Direction {
	out := make([]Direction, len(directions))
	for i, d := range directions {
		out[i] = d.Clone()
	}
	return out
}
