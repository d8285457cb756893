package storage

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"tcat.dev/transit/model"
)

type SQLiteConfig struct {
	OnDisk    bool
	Directory string
}

type SQLiteStorage struct {
	SQLiteConfig

	db *sql.DB
}

func NewSQLiteStorage(cfg ...SQLiteConfig) (*SQLiteStorage, error) {
	onDisk := false
	directory := ""
	if len(cfg) > 0 {
		onDisk = cfg[0].OnDisk
		directory = cfg[0].Directory
	}

	sourceName := ":memory:"
	if onDisk {
		sourceName = filepath.Join(directory, "transit.db")
	}

	db, err := sql.Open("sqlite3", sourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Every connection to :memory: is a database of its own
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS route (
    id TEXT NOT NULL,
    start_name TEXT NOT NULL,
    end_name TEXT NOT NULL,
    departure_time TIMESTAMP NOT NULL,
    arrival_time TIMESTAMP NOT NULL,
    number_of_transfers INTEGER NOT NULL,
    payload BLOB NOT NULL,
    created_at TIMESTAMP NOT NULL,
PRIMARY KEY (id)
);

CREATE TABLE IF NOT EXISTS route_trip (
    route_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    trip_id TEXT NOT NULL,
PRIMARY KEY (route_id, seq)
);

CREATE INDEX IF NOT EXISTS route_trip_trip_id ON route_trip (trip_id);

CREATE TABLE IF NOT EXISTS delay (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    route_id TEXT NOT NULL,
    trip_id TEXT NOT NULL,
    stop_id TEXT NOT NULL,
    delay_ms INTEGER NOT NULL,
    observed_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS stop (
    id TEXT NOT NULL,
    name TEXT NOT NULL,
    lat REAL NOT NULL,
    lng REAL NOT NULL,
PRIMARY KEY (id)
);`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	return &SQLiteStorage{
		SQLiteConfig: SQLiteConfig{
			OnDisk:    onDisk,
			Directory: directory,
		},
		db: db,
	}, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) WriteRoute(route *RouteRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
INSERT OR REPLACE INTO route (
    id,
    start_name,
    end_name,
    departure_time,
    arrival_time,
    number_of_transfers,
    payload,
    created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		route.ID,
		route.StartName,
		route.EndName,
		route.DepartureTime.UTC(),
		route.ArrivalTime.UTC(),
		route.NumberOfTransfers,
		route.Payload,
		route.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting route: %w", err)
	}

	_, err = tx.Exec(`DELETE FROM route_trip WHERE route_id = ?`, route.ID)
	if err != nil {
		return fmt.Errorf("clearing trips: %w", err)
	}
	for i, tripID := range route.TripIDs {
		_, err = tx.Exec(
			`INSERT INTO route_trip (route_id, seq, trip_id) VALUES (?, ?, ?)`,
			route.ID, i, tripID,
		)
		if err != nil {
			return fmt.Errorf("inserting trip: %w", err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("committing: %w", err)
	}

	return nil
}

func (s *SQLiteStorage) GetRoute(id string) (*RouteRecord, error) {
	routes, err := s.queryRoutes(" WHERE id = ?", []interface{}{id})
	if err != nil {
		return nil, err
	}
	if len(routes) == 0 {
		return nil, ErrNotFound
	}
	return routes[0], nil
}

func (s *SQLiteStorage) ListRoutes(filter ListRoutesFilter) ([]*RouteRecord, error) {
	conditions := []string{}
	params := []interface{}{}
	if filter.StartName != "" {
		conditions = append(conditions, "start_name = ?")
		params = append(params, filter.StartName)
	}
	if filter.EndName != "" {
		conditions = append(conditions, "end_name = ?")
		params = append(params, filter.EndName)
	}
	if !filter.DepartingAfter.IsZero() {
		conditions = append(conditions, "departure_time >= ?")
		params = append(params, filter.DepartingAfter.UTC())
	}
	if !filter.DepartingBefore.IsZero() {
		conditions = append(conditions, "departure_time < ?")
		params = append(params, filter.DepartingBefore.UTC())
	}
	if filter.TripID != "" {
		conditions = append(conditions, "id IN (SELECT route_id FROM route_trip WHERE trip_id = ?)")
		params = append(params, filter.TripID)
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	return s.queryRoutes(where, params)
}

func (s *SQLiteStorage) queryRoutes(where string, params []interface{}) ([]*RouteRecord, error) {
	rows, err := s.db.Query(`
SELECT
    id,
    start_name,
    end_name,
    departure_time,
    arrival_time,
    number_of_transfers,
    payload,
    created_at
FROM route`+where+`
ORDER BY departure_time ASC, id ASC`, params...)
	if err != nil {
		return nil, fmt.Errorf("querying routes: %w", err)
	}
	defer rows.Close()

	routes := []*RouteRecord{}
	for rows.Next() {
		r := &RouteRecord{}
		err := rows.Scan(
			&r.ID,
			&r.StartName,
			&r.EndName,
			&r.DepartureTime,
			&r.ArrivalTime,
			&r.NumberOfTransfers,
			&r.Payload,
			&r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning route: %w", err)
		}
		r.DepartureTime = r.DepartureTime.UTC()
		r.ArrivalTime = r.ArrivalTime.UTC()
		r.CreatedAt = r.CreatedAt.UTC()
		routes = append(routes, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating routes: %w", err)
	}
	rows.Close()

	for _, r := range routes {
		r.TripIDs, err = s.routeTrips(r.ID)
		if err != nil {
			return nil, err
		}
	}

	return routes, nil
}

func (s *SQLiteStorage) routeTrips(routeID string) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT trip_id FROM route_trip WHERE route_id = ? ORDER BY seq ASC`,
		routeID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying trips: %w", err)
	}
	defer rows.Close()

	tripIDs := []string{}
	for rows.Next() {
		var tripID string
		if err := rows.Scan(&tripID); err != nil {
			return nil, fmt.Errorf("scanning trip: %w", err)
		}
		tripIDs = append(tripIDs, tripID)
	}

	return tripIDs, rows.Err()
}

func (s *SQLiteStorage) DeleteRoute(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM route WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting route: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("counting deleted routes: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	for _, query := range []string{
		`DELETE FROM route_trip WHERE route_id = ?`,
		`DELETE FROM delay WHERE route_id = ?`,
	} {
		if _, err := tx.Exec(query, id); err != nil {
			return fmt.Errorf("deleting route data: %w", err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStorage) WriteDelay(delay *DelayObservation) error {
	_, err := s.db.Exec(`
INSERT INTO delay (route_id, trip_id, stop_id, delay_ms, observed_at)
VALUES (?, ?, ?, ?, ?)`,
		delay.RouteID,
		delay.TripID,
		delay.StopID,
		delay.Delay.Milliseconds(),
		delay.ObservedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting delay: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) ListDelays(filter ListDelaysFilter) ([]*DelayObservation, error) {
	query := `
SELECT route_id, trip_id, stop_id, delay_ms, observed_at
FROM delay`

	conditions := []string{}
	params := []interface{}{}
	if filter.RouteID != "" {
		conditions = append(conditions, "route_id = ?")
		params = append(params, filter.RouteID)
	}
	if len(filter.TripIDs) > 0 {
		conditions = append(conditions, fmt.Sprintf(
			"trip_id IN (%s)",
			strings.TrimSuffix(strings.Repeat("?, ", len(filter.TripIDs)), ", "),
		))
		for _, id := range filter.TripIDs {
			params = append(params, id)
		}
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "observed_at >= ?")
		params = append(params, filter.Since.UTC())
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY observed_at ASC, id ASC"

	rows, err := s.db.Query(query, params...)
	if err != nil {
		return nil, fmt.Errorf("querying delays: %w", err)
	}
	defer rows.Close()

	delays := []*DelayObservation{}
	for rows.Next() {
		d := &DelayObservation{}
		var delayMs int64
		err := rows.Scan(&d.RouteID, &d.TripID, &d.StopID, &delayMs, &d.ObservedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning delay: %w", err)
		}
		d.Delay = time.Duration(delayMs) * time.Millisecond
		d.ObservedAt = d.ObservedAt.UTC()
		delays = append(delays, d)
	}

	return delays, rows.Err()
}

func (s *SQLiteStorage) WriteStops(stops []model.Stop) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM stop`); err != nil {
		return fmt.Errorf("clearing stops: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO stop (id, name, lat, lng) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, stop := range stops {
		_, err := stmt.Exec(stop.ID, stop.Name, stop.Lat, stop.Lng)
		if err != nil {
			return fmt.Errorf("inserting stop %s: %w", stop.ID, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStorage) Stops() ([]model.Stop, error) {
	rows, err := s.db.Query(`SELECT id, name, lat, lng FROM stop ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying stops: %w", err)
	}
	defer rows.Close()

	stops := []model.Stop{}
	for rows.Next() {
		var stop model.Stop
		if err := rows.Scan(&stop.ID, &stop.Name, &stop.Lat, &stop.Lng); err != nil {
			return nil, fmt.Errorf("scanning stop: %w", err)
		}
		stops = append(stops, stop)
	}

	return stops, rows.Err()
}

func (s *SQLiteStorage) NearbyStops(lat float64, lng float64, limit int) ([]model.Stop, error) {
	stops, err := s.Stops()
	if err != nil {
		return nil, fmt.Errorf("getting all stops: %w", err)
	}
	return nearest(stops, lat, lng, limit), nil
}
