package parse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"tcat.dev/transit/model"
)

// A single route option, with every field typed and validated. The
// segments in Directions are in trip order, exactly as received.
type RoutePayload struct {
	DepartureTime     time.Time
	ArrivalTime       time.Time
	StartCoords       model.Coordinate
	EndCoords         model.Coordinate
	StartName         string
	EndName           string
	BoundingBox       model.Bounds
	NumberOfTransfers int
	Directions        []model.Direction

	// The JSON the payload was parsed from.
	Raw json.RawMessage
}

type coordinateJSON struct {
	Lat *float64 `json:"lat" validate:"required"`
	Lng *float64 `json:"lng" validate:"required_without=Long"`

	// Older responses spell it out.
	Long *float64 `json:"long"`
}

func (c coordinateJSON) coordinate() model.Coordinate {
	lng := c.Lng
	if lng == nil {
		lng = c.Long
	}
	return model.Coordinate{Lat: *c.Lat, Lng: *lng}
}

type locationJSON struct {
	coordinateJSON
	Name string `json:"name"`
}

func (l locationJSON) location() model.Location {
	c := l.coordinate()
	return model.Location{Name: l.Name, Lat: c.Lat, Lng: c.Lng}
}

// Stop IDs are sometimes sent as numbers.
type stopID string

func (s *stopID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = stopID(str)
		return nil
	}
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if _, err := strconv.ParseFloat(string(data), 64); err != nil {
		return fmt.Errorf("stop id %s is neither string nor number", data)
	}
	*s = stopID(data)
	return nil
}

type stopJSON struct {
	coordinateJSON
	ID   stopID `json:"id"`
	Name string `json:"name"`
}

type boundsJSON struct {
	MinLat  float64 `json:"minLat"`
	MinLong float64 `json:"minLong"`
	MaxLat  float64 `json:"maxLat"`
	MaxLong float64 `json:"maxLong"`
}

type directionJSON struct {
	Type                 string           `json:"type" validate:"required,oneof=depart transfer walk arrive"`
	Name                 string           `json:"name"`
	StartLocation        *locationJSON    `json:"startLocation" validate:"required"`
	EndLocation          *locationJSON    `json:"endLocation" validate:"required"`
	StartTime            string           `json:"startTime" validate:"required"`
	EndTime              string           `json:"endTime" validate:"required"`
	Path                 []coordinateJSON `json:"path" validate:"dive"`
	TravelDistance       float64          `json:"travelDistance" validate:"gte=0"`
	RouteNumber          int              `json:"routeNumber"`
	Stops                []stopJSON       `json:"stops" validate:"dive"`
	StayOnBusForTransfer bool             `json:"stayOnBusForTransfer"`
	TripIdentifiers      []string         `json:"tripIdentifiers"`
	Delay                *int             `json:"delay"`
}

type routeJSON struct {
	DepartureTime     string          `json:"departureTime" validate:"required"`
	ArrivalTime       string          `json:"arrivalTime" validate:"required"`
	StartCoords       *coordinateJSON `json:"startCoords" validate:"required"`
	EndCoords         *coordinateJSON `json:"endCoords" validate:"required"`
	StartName         string          `json:"startName"`
	EndName           string          `json:"endName"`
	BoundingBox       *boundsJSON     `json:"boundingBox" validate:"required"`
	NumberOfTransfers int             `json:"numberOfTransfers" validate:"gte=0"`
	Directions        []directionJSON `json:"directions" validate:"dive"`
}

type routeResponseJSON struct {
	Success bool              `json:"success"`
	Data    []json.RawMessage `json:"data"`
	Error   string            `json:"error"`
}

// Parses a single route object.
func ParseRoutePayload(data []byte) (*RoutePayload, error) {
	rj := routeJSON{}
	if err := json.Unmarshal(data, &rj); err != nil {
		return nil, &ParseError{Err: fmt.Errorf("decoding route: %w", err)}
	}

	if err := validateStruct(rj); err != nil {
		return nil, err
	}

	departure, err := parseTime("departureTime", rj.DepartureTime)
	if err != nil {
		return nil, err
	}
	arrival, err := parseTime("arrivalTime", rj.ArrivalTime)
	if err != nil {
		return nil, err
	}
	if departure.After(arrival) {
		return nil, &ParseError{
			Field: "arrivalTime",
			Err:   fmt.Errorf("arrival %s precedes departure %s", arrival, departure),
		}
	}

	directions := make([]model.Direction, 0, len(rj.Directions))
	for i, dj := range rj.Directions {
		d, err := parseDirection(fmt.Sprintf("directions[%d]", i), dj)
		if err != nil {
			return nil, err
		}
		directions = append(directions, d)
	}

	return &RoutePayload{
		DepartureTime: departure,
		ArrivalTime:   arrival,
		StartCoords:   rj.StartCoords.coordinate(),
		EndCoords:     rj.EndCoords.coordinate(),
		StartName:     rj.StartName,
		EndName:       rj.EndName,
		BoundingBox: model.Bounds{
			MinLat:  rj.BoundingBox.MinLat,
			MinLong: rj.BoundingBox.MinLong,
			MaxLat:  rj.BoundingBox.MaxLat,
			MaxLong: rj.BoundingBox.MaxLong,
		},
		NumberOfTransfers: rj.NumberOfTransfers,
		Directions:        directions,
		Raw:               append(json.RawMessage{}, data...),
	}, nil
}

func parseDirection(field string, dj directionJSON) (model.Direction, error) {
	dt, err := model.ParseDirectionType(dj.Type)
	if err != nil {
		return model.Direction{}, &ParseError{Field: field + ".type", Err: err}
	}

	start, err := parseTime(field+".startTime", dj.StartTime)
	if err != nil {
		return model.Direction{}, err
	}
	end, err := parseTime(field+".endTime", dj.EndTime)
	if err != nil {
		return model.Direction{}, err
	}
	if start.After(end) {
		return model.Direction{}, &ParseError{
			Field: field + ".endTime",
			Err:   fmt.Errorf("end %s precedes start %s", end, start),
		}
	}

	d := model.Direction{
		Type:                 dt,
		Name:                 dj.Name,
		StartLocation:        dj.StartLocation.location(),
		EndLocation:          dj.EndLocation.location(),
		StartTime:            start,
		EndTime:              end,
		Path:                 make([]model.Coordinate, 0, len(dj.Path)),
		TravelDistance:       dj.TravelDistance,
		RouteNumber:          dj.RouteNumber,
		Stops:                make([]model.Stop, 0, len(dj.Stops)),
		StayOnBusForTransfer: dj.StayOnBusForTransfer,
		TripIdentifiers:      dj.TripIdentifiers,
	}

	for _, p := range dj.Path {
		d.Path = append(d.Path, p.coordinate())
	}

	for _, sj := range dj.Stops {
		c := sj.coordinate()
		d.Stops = append(d.Stops, model.Stop{
			ID:   string(sj.ID),
			Name: sj.Name,
			Lat:  c.Lat,
			Lng:  c.Lng,
		})
	}

	if dj.Delay != nil {
		delay := time.Duration(*dj.Delay) * time.Second
		d.Delay = &delay
	}

	return d, nil
}

// Parses a route calculation response holding any number of route
// options.
//
// The start and end names of every route are overridden by the ones
// given, defaulting to CurrentLocation and Destination. If the server
// reports failure, a *RouteCalculationError is returned and no routes.
func ParseRouteResponse(data []byte, startName string, endName string) ([]*RoutePayload, error) {
	resp := routeResponseJSON{}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &ParseError{Err: fmt.Errorf("decoding response: %w", err)}
	}

	if !resp.Success {
		return []*RoutePayload{}, &RouteCalculationError{
			Title:       "Route Calculation Failure",
			Description: resp.Error,
		}
	}

	if startName == "" {
		startName = CurrentLocation
	}
	if endName == "" {
		endName = Destination
	}

	payloads := make([]*RoutePayload, 0, len(resp.Data))
	for i, raw := range resp.Data {
		payload, err := ParseRoutePayload(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing route %d: %w", i, err)
		}
		payload.StartName = startName
		payload.EndName = endName
		payloads = append(payloads, payload)
	}

	return payloads, nil
}
