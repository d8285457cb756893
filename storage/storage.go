package storage

import (
	"errors"
	"time"

	"tcat.dev/transit/model"
)

var ErrNotFound = errors.New("not found")

type Storage interface {
	// Writes a route record. A record with the same ID is
	// replaced.
	WriteRoute(route *RouteRecord) error

	// Gets the route with the given ID, or ErrNotFound.
	GetRoute(id string) (*RouteRecord, error)

	// Lists routes matching the filter, ordered by departure time.
	ListRoutes(filter ListRoutesFilter) ([]*RouteRecord, error)

	// Deletes a route along with its delay observations. Returns
	// ErrNotFound if no such route exists.
	DeleteRoute(id string) error

	WriteDelay(delay *DelayObservation) error

	// Lists delay observations matching the filter, oldest first.
	ListDelays(filter ListDelaysFilter) ([]*DelayObservation, error)

	// Replaces the bus stop catalog.
	WriteStops(stops []model.Stop) error

	// All stops, ordered by ID.
	Stops() ([]model.Stop, error)

	// Stops near given lat/lng, ordered by distance. At most limit
	// results (pass 0 for no limit.)
	NearbyStops(lat float64, lng float64, limit int) ([]model.Stop, error)

	Close() error
}

// A route calculated by the upstream server. The payload it was built
// from is kept, so that the route can be rebuilt later.
type RouteRecord struct {
	ID                string
	StartName         string
	EndName           string
	DepartureTime     time.Time
	ArrivalTime       time.Time
	NumberOfTransfers int

	// Trip identifiers of all bus legs, in trip order.
	TripIDs []string

	Payload   []byte
	CreatedAt time.Time
}

type ListRoutesFilter struct {
	// If set, only include routes with these names.
	StartName string
	EndName   string

	// If set, only include routes departing within [DepartingAfter,
	// DepartingBefore).
	DepartingAfter  time.Time
	DepartingBefore time.Time

	// If set, only include routes riding this trip.
	TripID string
}

// A delay reported for a trip at a stop, while tracking a route.
type DelayObservation struct {
	RouteID    string
	TripID     string
	StopID     string
	Delay      time.Duration
	ObservedAt time.Time
}

type ListDelaysFilter struct {
	RouteID string

	// If set, only include observations for any of these trips.
	TripIDs []string

	// If set, only include observations made at or after Since.
	Since time.Time
}

func (f ListRoutesFilter) match(r *RouteRecord) bool {
	if f.StartName != "" && r.StartName != f.StartName {
		return false
	}
	if f.EndName != "" && r.EndName != f.EndName {
		return false
	}
	if !f.DepartingAfter.IsZero() && r.DepartureTime.Before(f.DepartingAfter) {
		return false
	}
	if !f.DepartingBefore.IsZero() && !r.DepartureTime.Before(f.DepartingBefore) {
		return false
	}
	if f.TripID != "" {
		found := false
		for _, id := range r.TripIDs {
			if id == f.TripID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (f ListDelaysFilter) match(d *DelayObservation) bool {
	if f.RouteID != "" && d.RouteID != f.RouteID {
		return false
	}
	if len(f.TripIDs) > 0 {
		found := false
		for _, id := range f.TripIDs {
			if id == d.TripID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.Since.IsZero() && d.ObservedAt.Before(f.Since) {
		return false
	}
	return true
}
