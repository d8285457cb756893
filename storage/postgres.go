package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"tcat.dev/transit/model"
)

type PSQLStorage struct {
	db *sql.DB
}

// Creates a new Postgres Storage using the provided connection string.
//
// If clearDB is true, the database will be cleared on startup. You
// probably only want this for testing.
func NewPSQLStorage(connStr string, clearDB bool) (*PSQLStorage, error) {

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if clearDB {
		_, err = db.Exec(`
DROP TABLE IF EXISTS route;
DROP TABLE IF EXISTS delay;
DROP TABLE IF EXISTS stop;
`)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("clearing db: %w", err)
		}
	}

	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS route (
    id TEXT NOT NULL,
    start_name TEXT NOT NULL,
    end_name TEXT NOT NULL,
    departure_time TIMESTAMPTZ NOT NULL,
    arrival_time TIMESTAMPTZ NOT NULL,
    number_of_transfers INTEGER NOT NULL,
    trip_ids TEXT[] NOT NULL,
    payload BYTEA NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (id)
);

CREATE TABLE IF NOT EXISTS delay (
    id BIGSERIAL PRIMARY KEY,
    route_id TEXT NOT NULL,
    trip_id TEXT NOT NULL,
    stop_id TEXT NOT NULL,
    delay_ms BIGINT NOT NULL,
    observed_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS delay_route_id ON delay (route_id);

CREATE TABLE IF NOT EXISTS stop (
    id TEXT NOT NULL,
    name TEXT NOT NULL,
    lat DOUBLE PRECISION NOT NULL,
    lng DOUBLE PRECISION NOT NULL,
    PRIMARY KEY (id)
);`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	return &PSQLStorage{
		db: db,
	}, nil
}

func (s *PSQLStorage) Close() error {
	err := s.db.Close()
	if err != nil {
		return fmt.Errorf("failed to close db: %w", err)
	}
	return nil
}

func (s *PSQLStorage) WriteRoute(route *RouteRecord) error {
	tripIDs := route.TripIDs
	if tripIDs == nil {
		tripIDs = []string{}
	}

	_, err := s.db.Exec(`
INSERT INTO route (
    id,
    start_name,
    end_name,
    departure_time,
    arrival_time,
    number_of_transfers,
    trip_ids,
    payload,
    created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
    start_name = EXCLUDED.start_name,
    end_name = EXCLUDED.end_name,
    departure_time = EXCLUDED.departure_time,
    arrival_time = EXCLUDED.arrival_time,
    number_of_transfers = EXCLUDED.number_of_transfers,
    trip_ids = EXCLUDED.trip_ids,
    payload = EXCLUDED.payload,
    created_at = EXCLUDED.created_at`,
		route.ID,
		route.StartName,
		route.EndName,
		route.DepartureTime.UTC(),
		route.ArrivalTime.UTC(),
		route.NumberOfTransfers,
		pq.Array(tripIDs),
		route.Payload,
		route.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upserting route: %w", err)
	}
	return nil
}

func (s *PSQLStorage) GetRoute(id string) (*RouteRecord, error) {
	routes, err := s.queryRoutes(" WHERE id = $1", []interface{}{id})
	if err != nil {
		return nil, err
	}
	if len(routes) == 0 {
		return nil, ErrNotFound
	}
	return routes[0], nil
}

func (s *PSQLStorage) ListRoutes(filter ListRoutesFilter) ([]*RouteRecord, error) {
	conditions := []string{}
	params := []interface{}{}
	paramCount := 1

	if filter.StartName != "" {
		conditions = append(conditions, fmt.Sprintf("start_name = $%d", paramCount))
		params = append(params, filter.StartName)
		paramCount++
	}
	if filter.EndName != "" {
		conditions = append(conditions, fmt.Sprintf("end_name = $%d", paramCount))
		params = append(params, filter.EndName)
		paramCount++
	}
	if !filter.DepartingAfter.IsZero() {
		conditions = append(conditions, fmt.Sprintf("departure_time >= $%d", paramCount))
		params = append(params, filter.DepartingAfter.UTC())
		paramCount++
	}
	if !filter.DepartingBefore.IsZero() {
		conditions = append(conditions, fmt.Sprintf("departure_time < $%d", paramCount))
		params = append(params, filter.DepartingBefore.UTC())
		paramCount++
	}
	if filter.TripID != "" {
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(trip_ids)", paramCount))
		params = append(params, filter.TripID)
		paramCount++
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	return s.queryRoutes(where, params)
}

func (s *PSQLStorage) queryRoutes(where string, params []interface{}) ([]*RouteRecord, error) {
	rows, err := s.db.Query(`
SELECT
    id,
    start_name,
    end_name,
    departure_time,
    arrival_time,
    number_of_transfers,
    trip_ids,
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
		tripIDs := pq.StringArray{}
		err := rows.Scan(
			&r.ID,
			&r.StartName,
			&r.EndName,
			&r.DepartureTime,
			&r.ArrivalTime,
			&r.NumberOfTransfers,
			&tripIDs,
			&r.Payload,
			&r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning route: %w", err)
		}
		r.TripIDs = []string(tripIDs)
		r.DepartureTime = r.DepartureTime.UTC()
		r.ArrivalTime = r.ArrivalTime.UTC()
		r.CreatedAt = r.CreatedAt.UTC()
		routes = append(routes, r)
	}

	return routes, rows.Err()
}

func (s *PSQLStorage) DeleteRoute(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM route WHERE id = $1`, id)
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

	_, err = tx.Exec(`DELETE FROM delay WHERE route_id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting delays: %w", err)
	}

	return tx.Commit()
}

func (s *PSQLStorage) WriteDelay(delay *DelayObservation) error {
	_, err := s.db.Exec(`
INSERT INTO delay (route_id, trip_id, stop_id, delay_ms, observed_at)
VALUES ($1, $2, $3, $4, $5)`,
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

func (s *PSQLStorage) ListDelays(filter ListDelaysFilter) ([]*DelayObservation, error) {
	query := `
SELECT route_id, trip_id, stop_id, delay_ms, observed_at
FROM delay`

	conditions := []string{}
	params := []interface{}{}
	paramCount := 1

	if filter.RouteID != "" {
		conditions = append(conditions, fmt.Sprintf("route_id = $%d", paramCount))
		params = append(params, filter.RouteID)
		paramCount++
	}
	if len(filter.TripIDs) > 0 {
		conditions = append(conditions, fmt.Sprintf("trip_id = ANY($%d)", paramCount))
		params = append(params, pq.Array(filter.TripIDs))
		paramCount++
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, fmt.Sprintf("observed_at >= $%d", paramCount))
		params = append(params, filter.Since.UTC())
		paramCount++
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

func (s *PSQLStorage) WriteStops(stops []model.Stop) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM stop`); err != nil {
		return fmt.Errorf("clearing stops: %w", err)
	}

	stmt, err := tx.Prepare(pq.CopyIn("stop", "id", "name", "lat", "lng"))
	if err != nil {
		return fmt.Errorf("preparing copy: %w", err)
	}

	for _, stop := range stops {
		_, err := stmt.Exec(stop.ID, stop.Name, stop.Lat, stop.Lng)
		if err != nil {
			stmt.Close()
			return fmt.Errorf("copying stop %s: %w", stop.ID, err)
		}
	}

	if _, err := stmt.Exec(); err != nil {
		stmt.Close()
		return fmt.Errorf("flushing copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("closing copy: %w", err)
	}

	return tx.Commit()
}

func (s *PSQLStorage) Stops() ([]model.Stop, error) {
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

func (s *PSQLStorage) NearbyStops(lat float64, lng float64, limit int) ([]model.Stop, error) {
	stops, err := s.Stops()
	if err != nil {
		return nil, fmt.Errorf("getting all stops: %w", err)
	}
	return nearest(stops, lat, lng, limit), nil
}
