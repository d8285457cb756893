package transit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"tcat.dev/transit/model"
	"tcat.dev/transit/parse"
)

// Name given to arrive legs created for a bus leg without stops.
const UnknownStopName = "Unknown Stop"

var ErrNoDepartDirection = errors.New("route has no depart direction")

// One complete trip option.
//
// A Route owns both of its direction lists. They are built once, by
// NewRoute, and only their delays change afterwards. Accessors hand
// out copies, so callers are free to modify what they get back.
type Route struct {
	ID string

	DepartureTime     time.Time
	ArrivalTime       time.Time
	StartCoords       model.Coordinate
	EndCoords         model.Coordinate
	StartName         string
	EndName           string
	BoundingBox       model.Bounds
	NumberOfTransfers int

	// Straight line distance in meters from the start to the
	// first meaningful leg.
	TravelDistance float64

	mu            sync.RWMutex
	rawDirections []model.Direction
	directions    []model.Direction
}

// Builds a Route from a parsed payload. The payload is not modified.
func NewRoute(p *parse.RoutePayload) (*Route, error) {
	if p == nil {
		return nil, &parse.ParseError{Err: fmt.Errorf("no payload")}
	}

	r := &Route{
		ID:                uuid.NewString(),
		DepartureTime:     p.DepartureTime,
		ArrivalTime:       p.ArrivalTime,
		StartCoords:       p.StartCoords,
		EndCoords:         p.EndCoords,
		StartName:         p.StartName,
		EndName:           p.EndName,
		BoundingBox:       p.BoundingBox,
		NumberOfTransfers: p.NumberOfTransfers,
	}

	r.rawDirections = buildRawDirections(p.Directions, p.StartName, p.EndName)
	r.directions = buildDirections(p.Directions)
	r.TravelDistance = travelDistance(r.StartCoords, r.rawDirections)

	return r, nil
}

// Parses and builds a single route object.
func BuildRoute(data []byte, startName string, endName string) (*Route, error) {
	p, err := parse.ParseRoutePayload(data)
	if err != nil {
		return nil, err
	}
	p.StartName = startName
	p.EndName = endName
	return NewRoute(p)
}

// Parses a route calculation response and builds all route options
// in it. If the server failed to calculate routes, an empty slice and
// a *parse.RouteCalculationError are returned.
func ParseRoutes(data []byte, startName string, endName string) ([]*Route, error) {
	payloads, err := parse.ParseRouteResponse(data, startName, endName)
	if err != nil {
		var rce *parse.RouteCalculationError
		if errors.As(err, &rce) {
			return []*Route{}, err
		}
		return nil, err
	}

	routes := make([]*Route, 0, len(payloads))
	for _, p := range payloads {
		r, err := NewRoute(p)
		if err != nil {
			return nil, err
		}
		routes = append(routes, r)
	}

	return routes, nil
}

// Builds the raw direction list. Walking legs are named after where
// the walk starts, the destination is appended as a final leg, and
// walks between buses become arrivals.
func buildRawDirections(segments []model.Direction, startName string, endName string) []model.Direction {
	raw := model.CloneDirections(segments)
	if len(raw) == 0 {
		return raw
	}

	for i := range raw {
		if raw[i].Type != model.DirectionWalk {
			continue
		}
		if i == 0 {
			raw[i].Name = startName
			continue
		}
		if stop, ok := raw[i-1].LastStop(); ok {
			raw[i].Name = stop.Name
		} else {
			raw[i].Name = raw[i-1].Name
		}
	}

	// The final leg can never transfer.
	last := raw[len(raw)-1]
	switch last.Type {
	case model.DirectionWalk, model.DirectionDepart:
		end := last.Clone()
		end.Name = endName
		end.StayOnBusForTransfer = false
		if last.Type == model.DirectionDepart {
			end.Type = model.DirectionArrive
		}
		raw = append(raw, end)
	}

	for i := 1; i < len(raw)-1; i++ {
		if raw[i].Type == model.DirectionWalk {
			raw[i].Type = model.DirectionArrive
			raw[i].Name = raw[i-1].EndLocation.Name
		}
	}

	return raw
}

// Builds the display direction list. Bus legs that don't continue as
// a transfer get an arrive leg after them, and lose their boundary
// stops.
//
// Split decisions read original, which is never modified. Inserts go
// to output, offset by the number of arrive legs inserted so far.
func buildDirections(segments []model.Direction) []model.Direction {
	original := segments
	output := model.CloneDirections(segments)

	offset := 0
	for i, segment := range original {
		if segment.Type != model.DirectionDepart {
			continue
		}

		at := i + offset
		if segment.StayOnBusForTransfer {
			output[at].Type = model.DirectionTransfer
		}

		beyondRange := i+1 > len(original)-1
		isLastDepart := i == len(original)-1

		if (!beyondRange && !original[i+1].StayOnBusForTransfer) || isLastDepart {
			arrive := output[at].Clone()
			arrive.Type = model.DirectionArrive
			arrive.StartTime = arrive.EndTime
			arrive.StartLocation = arrive.EndLocation
			arrive.Stops = []model.Stop{}
			arrive.Name = UnknownStopName
			if stop, ok := segment.LastStop(); ok {
				arrive.Name = stop.Name
			}

			output = append(output, model.Direction{})
			copy(output[at+2:], output[at+1:])
			output[at+1] = arrive
			offset++
		}

		if len(output[at].Stops) >= 2 {
			output[at].Stops = output[at].Stops[1 : len(output[at].Stops)-1]
		}
	}

	return output
}

func isWalkingRoute(raw []model.Direction) bool {
	for _, d := range raw {
		if d.Type != model.DirectionWalk {
			return false
		}
	}
	return true
}

// Distance from start to the first bus stop of the route, or to the
// end of the first leg for routes that are all walking.
func travelDistance(start model.Coordinate, raw []model.Direction) float64 {
	if len(raw) == 0 {
		return 0
	}

	walking := isWalkingRoute(raw)

	stop := raw[0]
	if !walking && raw[0].Type == model.DirectionWalk && len(raw) > 1 {
		stop = raw[1]
	}

	if walking {
		return model.Distance(start, stop.EndLocation.Coordinate())
	}
	return model.Distance(start, stop.StartLocation.Coordinate())
}

// A copy of the raw direction list.
func (r *Route) RawDirections() []model.Direction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return model.CloneDirections(r.rawDirections)
}

// A copy of the display direction list.
func (r *Route) Directions() []model.Direction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return model.CloneDirections(r.directions)
}

func (r *Route) IsRawWalkingRoute() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return isWalkingRoute(r.rawDirections)
}

// Index and copy of the first raw depart direction. The index is -1
// and ok false if there is none.
func (r *Route) FirstDepartRawDirection() (int, model.Direction, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i, d := range r.rawDirections {
		if d.Type == model.DirectionDepart {
			return i, d.Clone(), true
		}
	}
	return -1, model.Direction{}, false
}

func (r *Route) LastDepartRawDirection() (int, model.Direction, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.rawDirections) - 1; i >= 0; i-- {
		if r.rawDirections[i].Type == model.DirectionDepart {
			return i, r.rawDirections[i].Clone(), true
		}
	}
	return -1, model.Direction{}, false
}

// Number of walking legs in the raw directions, not counting the
// final one.
func (r *Route) RawNumOfWalkLines() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for i, d := range r.rawDirections {
		if i != len(r.rawDirections)-1 && d.Type == model.DirectionWalk {
			count++
		}
	}
	return count
}

func (r *Route) TotalDuration() time.Duration {
	return r.ArrivalTime.Sub(r.DepartureTime)
}

// Whole minutes between departure and arrival.
func (r *Route) TotalMinutes() int {
	return int(r.TotalDuration() / time.Minute)
}

func (r *Route) TimeUntilDeparture(now time.Time) time.Duration {
	return r.DepartureTime.Sub(now)
}

func (r *Route) String() string {
	return fmt.Sprintf(
		"Route(%s %s -> %s, departs %s, arrives %s)",
		r.ID,
		r.StartName,
		r.EndName,
		r.DepartureTime.Format(time.RFC3339),
		r.ArrivalTime.Format(time.RFC3339),
	)
}
