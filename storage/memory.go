package storage

import (
	"sort"
	"sync"

	"tcat.dev/transit/model"
)

// In memory implementation of Storage below

type MemoryStorage struct {
	mutex  sync.RWMutex
	routes map[string]*RouteRecord
	delays []*DelayObservation
	stops  map[string]model.Stop
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		routes: map[string]*RouteRecord{},
		stops:  map[string]model.Stop{},
	}
}

func (s *MemoryStorage) WriteRoute(route *RouteRecord) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.routes[route.ID] = copyRoute(route)
	return nil
}

func (s *MemoryStorage) GetRoute(id string) (*RouteRecord, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	route, found := s.routes[id]
	if !found {
		return nil, ErrNotFound
	}
	return copyRoute(route), nil
}

func (s *MemoryStorage) ListRoutes(filter ListRoutesFilter) ([]*RouteRecord, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	routes := []*RouteRecord{}
	for _, route := range s.routes {
		if filter.match(route) {
			routes = append(routes, copyRoute(route))
		}
	}

	sort.Slice(routes, func(i, j int) bool {
		if routes[i].DepartureTime.Equal(routes[j].DepartureTime) {
			return routes[i].ID < routes[j].ID
		}
		return routes[i].DepartureTime.Before(routes[j].DepartureTime)
	})

	return routes, nil
}

func (s *MemoryStorage) DeleteRoute(id string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, found := s.routes[id]; !found {
		return ErrNotFound
	}
	delete(s.routes, id)

	kept := []*DelayObservation{}
	for _, d := range s.delays {
		if d.RouteID != id {
			kept = append(kept, d)
		}
	}
	s.delays = kept

	return nil
}

func (s *MemoryStorage) WriteDelay(delay *DelayObservation) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	d := *delay
	d.ObservedAt = d.ObservedAt.UTC()
	s.delays = append(s.delays, &d)
	return nil
}

func (s *MemoryStorage) ListDelays(filter ListDelaysFilter) ([]*DelayObservation, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	delays := []*DelayObservation{}
	for _, d := range s.delays {
		if filter.match(d) {
			c := *d
			delays = append(delays, &c)
		}
	}

	sort.SliceStable(delays, func(i, j int) bool {
		return delays[i].ObservedAt.Before(delays[j].ObservedAt)
	})

	return delays, nil
}

func (s *MemoryStorage) WriteStops(stops []model.Stop) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.stops = map[string]model.Stop{}
	for _, stop := range stops {
		s.stops[stop.ID] = stop
	}
	return nil
}

func (s *MemoryStorage) Stops() ([]model.Stop, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	stops := make([]model.Stop, 0, len(s.stops))
	for _, stop := range s.stops {
		stops = append(stops, stop)
	}
	sort.Slice(stops, func(i, j int) bool {
		return stops[i].ID < stops[j].ID
	})
	return stops, nil
}

func (s *MemoryStorage) NearbyStops(lat float64, lng float64, limit int) ([]model.Stop, error) {
	stops, err := s.Stops()
	if err != nil {
		return nil, err
	}
	return nearest(stops, lat, lng, limit), nil
}

func (s *MemoryStorage) Close() error {
	return nil
}

func copyRoute(r *RouteRecord) *RouteRecord {
	c := *r
	c.DepartureTime = r.DepartureTime.UTC()
	c.ArrivalTime = r.ArrivalTime.UTC()
	c.CreatedAt = r.CreatedAt.UTC()
	c.TripIDs = append([]string{}, r.TripIDs...)
	c.Payload = append([]byte{}, r.Payload...)
	return &c
}
