package transit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"tcat.dev/transit/config"
	"tcat.dev/transit/downloader"
	"tcat.dev/transit/model"
	"tcat.dev/transit/parse"
	"tcat.dev/transit/storage"
)

const (
	DefaultRouteTimeout         = 30 * time.Second
	DefaultRouteMaxSize         = 4 << 20 // 4 MB
	DefaultDelayTimeout         = 10 * time.Second
	DefaultDelayMaxSize         = 1 << 20 // 1 MB
	DefaultDelayTTL             = 5 * time.Second
	DefaultDelayRefreshInterval = 10 * time.Second
)

// Parameters of a route calculation request.
type RouteQuery struct {
	Start model.Coordinate
	End   model.Coordinate

	// Display names. Empty names get the usual defaults.
	StartName string
	EndName   string

	// Departure time, or arrival time if ArriveBy is set. Zero
	// means now.
	Time     time.Time
	ArriveBy bool
}

// Manager requests routes from the upstream server, keeps them in
// storage, and keeps their delays up to date.
type Manager struct {
	RouteTimeout         time.Duration
	RouteMaxSize         int
	DelayTimeout         time.Duration
	DelayMaxSize         int
	DelayTTL             time.Duration
	DelayRefreshInterval time.Duration
	Downloader           downloader.Downloader
	Logger               *zap.Logger

	// Where delays come from. If nil, one is built from the
	// upstream configuration on first use.
	DelaySource DelaySource

	TimeNow func() time.Time

	upstream config.Upstream
	storage  storage.Storage
	sourceMu sync.Mutex
}

// Creates a new Manager on top of the given storage.
//
// By default, delays are cached in memory for DelayTTL, while route
// requests always go upstream.
func NewManager(s storage.Storage, upstream config.Upstream) *Manager {
	m := &Manager{
		RouteTimeout:         DefaultRouteTimeout,
		RouteMaxSize:         DefaultRouteMaxSize,
		DelayTimeout:         DefaultDelayTimeout,
		DelayMaxSize:         DefaultDelayMaxSize,
		DelayTTL:             DefaultDelayTTL,
		DelayRefreshInterval: DefaultDelayRefreshInterval,

		Downloader: downloader.NewMemory(),
		Logger:     zap.NewNop(),
		TimeNow:    time.Now,

		upstream: upstream,
		storage:  s,
	}

	if upstream.RouteTimeout > 0 {
		m.RouteTimeout = upstream.RouteTimeout
	}
	if upstream.DelayTimeout > 0 {
		m.DelayTimeout = upstream.DelayTimeout
	}
	if upstream.DelayTTL > 0 {
		m.DelayTTL = upstream.DelayTTL
	}
	if upstream.DelayRefreshInterval > 0 {
		m.DelayRefreshInterval = upstream.DelayRefreshInterval
	}

	return m
}

// Requests routes from the upstream server, builds them and stores
// them.
//
// If the server couldn't calculate a route, an empty slice is
// returned along with a *parse.RouteCalculationError.
func (m *Manager) LoadRoutes(ctx context.Context, q RouteQuery) ([]*Route, error) {
	when := q.Time
	if when.IsZero() {
		when = m.TimeNow()
	}

	params := url.Values{}
	params.Set("start", formatCoordinate(q.Start))
	params.Set("end", formatCoordinate(q.End))
	params.Set("time", strconv.FormatInt(when.Unix(), 10))
	params.Set("arriveBy", strconv.FormatBool(q.ArriveBy))
	if q.EndName != "" {
		params.Set("destinationName", q.EndName)
	}

	body, err := m.Downloader.Get(
		ctx,
		m.upstream.BaseURL+"/route?"+params.Encode(),
		m.upstream.Headers(),
		downloader.GetOptions{
			Cache:   false,
			Timeout: m.RouteTimeout,
			MaxSize: m.RouteMaxSize,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("downloading routes: %w", err)
	}

	payloads, err := parse.ParseRouteResponse(body, q.StartName, q.EndName)
	if err != nil {
		var rce *parse.RouteCalculationError
		if errors.As(err, &rce) {
			m.Logger.Info("no route calculated", zap.String("reason", rce.Description))
			return []*Route{}, err
		}
		return nil, fmt.Errorf("parsing routes: %w", err)
	}

	routes := make([]*Route, 0, len(payloads))
	for _, p := range payloads {
		route, err := NewRoute(p)
		if err != nil {
			return nil, fmt.Errorf("building route: %w", err)
		}

		err = m.storage.WriteRoute(m.record(route, p))
		if err != nil {
			return nil, fmt.Errorf("writing route: %w", err)
		}

		routes = append(routes, route)
	}

	m.Logger.Debug(
		"loaded routes",
		zap.String("start", payloadName(payloads, true)),
		zap.String("end", payloadName(payloads, false)),
		zap.Int("count", len(routes)),
	)

	return routes, nil
}

// Loads a previously stored route. Returns storage.ErrNotFound if
// there is none with the given ID.
func (m *Manager) Route(id string) (*Route, error) {
	rec, err := m.storage.GetRoute(id)
	if err != nil {
		return nil, fmt.Errorf("getting route %s: %w", id, err)
	}
	return rebuild(rec)
}

// Loads all stored routes matching the filter.
func (m *Manager) Routes(filter storage.ListRoutesFilter) ([]*Route, error) {
	recs, err := m.storage.ListRoutes(filter)
	if err != nil {
		return nil, fmt.Errorf("listing routes: %w", err)
	}

	routes := make([]*Route, 0, len(recs))
	for _, rec := range recs {
		route, err := rebuild(rec)
		if err != nil {
			return nil, err
		}
		routes = append(routes, route)
	}

	return routes, nil
}

func (m *Manager) DeleteRoute(id string) error {
	return m.storage.DeleteRoute(id)
}

// Delay observations made for a route, oldest first.
func (m *Manager) Delays(routeID string) ([]*storage.DelayObservation, error) {
	return m.storage.ListDelays(storage.ListDelaysFilter{RouteID: routeID})
}

// Fetches the current delay of the route's first bus and applies it.
//
// Routes without a bus, or whose first bus lacks a trip or stop to
// look up, are left alone. On failure, the route is not modified.
func (m *Manager) FetchDelay(ctx context.Context, route *Route) error {
	_, first, ok := route.FirstDepartRawDirection()
	if !ok {
		return nil
	}

	if len(first.TripIdentifiers) == 0 || len(first.Stops) == 0 {
		route.ResetDelays()
		return nil
	}
	tripID := first.TripIdentifiers[0]
	stopID := first.Stops[0].ID

	delay, found, err := m.delaySource().Delay(ctx, tripID, stopID)
	if err != nil {
		return fmt.Errorf("getting delay of trip %s at stop %s: %w", tripID, stopID, err)
	}

	route.ResetDelays()
	if !found {
		return nil
	}

	err = route.ApplyDelay(delay)
	if err != nil {
		return fmt.Errorf("applying delay: %w", err)
	}

	err = m.storage.WriteDelay(&storage.DelayObservation{
		RouteID:    route.ID,
		TripID:     tripID,
		StopID:     stopID,
		Delay:      delay,
		ObservedAt: m.TimeNow().UTC(),
	})
	if err != nil {
		return fmt.Errorf("writing delay: %w", err)
	}

	return nil
}

// Keeps the route's delays fresh until ctx is done. Fetches right
// away, and then every DelayRefreshInterval. Failed fetches are
// logged and retried on the next tick.
func (m *Manager) PollDelays(ctx context.Context, route *Route) error {
	logger := m.Logger.With(zap.String("route", route.ID))

	fetch := func() {
		if err := m.FetchDelay(ctx, route); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("fetching delay", zap.Error(err))
			return
		}
		if delay, ok := route.DepartureDelay(); ok {
			logger.Debug("delay updated", zap.Duration("delay", delay))
		}
	}

	fetch()

	ticker := time.NewTicker(m.DelayRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			fetch()
		}
	}
}

// Parses a stop catalog and replaces the stored one with it. Returns
// the number of stops imported.
func (m *Manager) ImportStops(r io.Reader) (int, error) {
	stops, err := parse.ParseStops(r)
	if err != nil {
		return 0, fmt.Errorf("parsing stops: %w", err)
	}

	err = m.storage.WriteStops(stops)
	if err != nil {
		return 0, fmt.Errorf("writing stops: %w", err)
	}

	m.Logger.Info("imported stops", zap.Int("count", len(stops)))

	return len(stops), nil
}

func (m *Manager) Stops() ([]model.Stop, error) {
	return m.storage.Stops()
}

// Stops nearest to the given point, at most limit of them (0 for no
// limit.)
func (m *Manager) NearbyStops(lat float64, lng float64, limit int) ([]model.Stop, error) {
	stops, err := m.storage.NearbyStops(lat, lng, limit)
	if err != nil {
		return nil, fmt.Errorf("getting nearby stops: %w", err)
	}
	return stops, nil
}

func (m *Manager) delaySource() DelaySource {
	m.sourceMu.Lock()
	defer m.sourceMu.Unlock()

	if m.DelaySource != nil {
		return m.DelaySource
	}

	options := downloader.GetOptions{
		Cache:    true,
		CacheTTL: m.DelayTTL,
		Timeout:  m.DelayTimeout,
		MaxSize:  m.DelayMaxSize,
	}

	if m.upstream.RealtimeURL != "" {
		m.DelaySource = &RealtimeDelaySource{
			URL:        m.upstream.RealtimeURL,
			Headers:    m.upstream.Headers(),
			Downloader: m.Downloader,
			Options:    options,
		}
	} else {
		m.DelaySource = &APIDelaySource{
			URL:        m.upstream.BaseURL + "/delay",
			Headers:    m.upstream.Headers(),
			Downloader: m.Downloader,
			Options:    options,
		}
	}

	return m.DelaySource
}

func (m *Manager) record(route *Route, p *parse.RoutePayload) *storage.RouteRecord {
	tripIDs := []string{}
	for _, d := range p.Directions {
		if d.IsBus() {
			tripIDs = append(tripIDs, d.TripIdentifiers...)
		}
	}

	return &storage.RouteRecord{
		ID:                route.ID,
		StartName:         route.StartName,
		EndName:           route.EndName,
		DepartureTime:     route.DepartureTime,
		ArrivalTime:       route.ArrivalTime,
		NumberOfTransfers: route.NumberOfTransfers,
		TripIDs:           tripIDs,
		Payload:           p.Raw,
		CreatedAt:         m.TimeNow().UTC(),
	}
}

// Builds a Route from a stored record, keeping its ID.
func rebuild(rec *storage.RouteRecord) (*Route, error) {
	p, err := parse.ParseRoutePayload(rec.Payload)
	if err != nil {
		return nil, fmt.Errorf("parsing stored route %s: %w", rec.ID, err)
	}
	p.StartName = rec.StartName
	p.EndName = rec.EndName

	route, err := NewRoute(p)
	if err != nil {
		return nil, fmt.Errorf("building stored route %s: %w", rec.ID, err)
	}
	route.ID = rec.ID

	return route, nil
}

func formatCoordinate(c model.Coordinate) string {
	return strconv.FormatFloat(c.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lng, 'f', -1, 64)
}

func payloadName(payloads []*parse.RoutePayload, start bool) string {
	if len(payloads) == 0 {
		return ""
	}
	if start {
		return payloads[0].StartName
	}
	return payloads[0].EndName
}
