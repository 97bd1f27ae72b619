package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"train-positions/internal/gtfs"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// LoadSchedule reads the whole static schedule from a GTFS Postgres import
// (postgis-gtfs-importer layout). calendar and calendar_dates may be absent.
func LoadSchedule(ctx context.Context, db *sql.DB) (*gtfs.Feed, error) {
	f := &gtfs.Feed{}
	var err error
	if f.Stops, err = fetchStops(ctx, db); err != nil {
		return nil, err
	}
	if f.Routes, err = fetchRoutes(ctx, db); err != nil {
		return nil, err
	}
	if f.Trips, err = fetchTrips(ctx, db); err != nil {
		return nil, err
	}
	if err = fetchStopTimes(ctx, db, f.Trips); err != nil {
		return nil, err
	}
	if f.ShapePoints, err = fetchShapePoints(ctx, db); err != nil {
		return nil, err
	}
	if f.Calendar, err = fetchCalendar(ctx, db); err != nil {
		return nil, err
	}
	if f.Exceptions, err = fetchCalendarDates(ctx, db); err != nil {
		return nil, err
	}
	return f, nil
}

func fetchStops(ctx context.Context, db *sql.DB) ([]gtfs.Stop, error) {
	cols, err := hasColumns(ctx, db, "public", "stops", "stop_lat", "stop_lon")
	if err != nil {
		return nil, fmt.Errorf("introspect stops columns: %w", err)
	}
	q := `SELECT stop_id, COALESCE(stop_name, ''), COALESCE(stop_lat, 0), COALESCE(stop_lon, 0), COALESCE(parent_station, '')
          FROM stops`
	if !cols["stop_lat"] || !cols["stop_lon"] {
		q = `SELECT stop_id, COALESCE(stop_name, ''),
                    COALESCE(ST_Y(stop_loc::geometry), 0),
                    COALESCE(ST_X(stop_loc::geometry), 0),
                    COALESCE(parent_station, '')
             FROM stops`
	}
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query stops: %w", err)
	}
	defer rows.Close()
	var stops []gtfs.Stop
	for rows.Next() {
		var s gtfs.Stop
		if err := rows.Scan(&s.ID, &s.Name, &s.Lat, &s.Lon, &s.ParentID); err != nil {
			return nil, err
		}
		stops = append(stops, s)
	}
	return stops, rows.Err()
}

func fetchRoutes(ctx context.Context, db *sql.DB) ([]gtfs.Route, error) {
	q := `SELECT route_id, COALESCE(route_short_name, ''), COALESCE(route_long_name, ''),
                 COALESCE(route_color, ''), COALESCE(route_text_color, '')
          FROM routes`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query routes: %w", err)
	}
	defer rows.Close()
	var routes []gtfs.Route
	for rows.Next() {
		var r gtfs.Route
		if err := rows.Scan(&r.ID, &r.ShortName, &r.LongName, &r.Color, &r.TextColor); err != nil {
			return nil, err
		}
		r.Color = withHash(r.Color, "#0066cc")
		r.TextColor = withHash(r.TextColor, "#ffffff")
		routes = append(routes, r)
	}
	return routes, rows.Err()
}

func withHash(c, def string) string {
	if c == "" {
		return def
	}
	if c[0] != '#' {
		return "#" + c
	}
	return c
}

func fetchTrips(ctx context.Context, db *sql.DB) ([]gtfs.Trip, error) {
	q := `SELECT trip_id, route_id, service_id, COALESCE(shape_id, ''), COALESCE(direction_id::text, '0')
          FROM trips ORDER BY trip_id`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query trips: %w", err)
	}
	defer rows.Close()
	var trips []gtfs.Trip
	for rows.Next() {
		var t gtfs.Trip
		var dir string
		if err := rows.Scan(&t.ID, &t.RouteID, &t.ServiceID, &t.ShapeID, &dir); err != nil {
			return nil, err
		}
		// importer enums render as "inbound"/"outbound" or 0/1
		if dir == "1" || dir == "inbound" {
			t.DirectionID = 1
		}
		trips = append(trips, t)
	}
	return trips, rows.Err()
}

// fetchStopTimes attaches stop_times to trips in a single ordered scan.
func fetchStopTimes(ctx context.Context, db *sql.DB, trips []gtfs.Trip) error {
	idx := make(map[string]int, len(trips))
	for i, t := range trips {
		idx[t.ID] = i
	}
	q := `SELECT trip_id, stop_id, stop_sequence,
                 COALESCE(arrival_time::text, ''),
                 COALESCE(departure_time::text, ''),
                 shape_dist_traveled
          FROM stop_times
          ORDER BY trip_id, stop_sequence`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return fmt.Errorf("query stop_times: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var tripID, arr, dep string
		var st gtfs.StopTime
		var dist sql.NullFloat64
		if err := rows.Scan(&tripID, &st.StopID, &st.Sequence, &arr, &dep, &dist); err != nil {
			return err
		}
		i, ok := idx[tripID]
		if !ok {
			continue
		}
		st.ArrivalSec = gtfs.ParseDaySeconds(arr)
		st.DepartureSec = gtfs.ParseDaySeconds(dep)
		if dep == "" {
			st.DepartureSec = st.ArrivalSec
		}
		if arr == "" {
			st.ArrivalSec = st.DepartureSec
		}
		if dist.Valid {
			d := dist.Float64
			st.ShapeDistance = &d
		}
		trips[i].StopTimes = append(trips[i].StopTimes, st)
	}
	return rows.Err()
}

func fetchShapePoints(ctx context.Context, db *sql.DB) ([]gtfs.RawShapePoint, error) {
	// Either shape_pt_lat/lon exist, or the PostGIS shape_pt_loc geography
	cols, err := hasColumns(ctx, db, "public", "shapes", "shape_pt_lat", "shape_pt_lon", "shape_pt_loc")
	if err != nil {
		return nil, fmt.Errorf("introspect shapes columns: %w", err)
	}
	var q string
	switch {
	case cols["shape_pt_lat"] && cols["shape_pt_lon"]:
		q = `SELECT shape_id, shape_pt_lat, shape_pt_lon, shape_pt_sequence, shape_dist_traveled
             FROM shapes ORDER BY shape_id, shape_pt_sequence`
	case cols["shape_pt_loc"]:
		q = `SELECT shape_id, ST_Y(shape_pt_loc::geometry), ST_X(shape_pt_loc::geometry),
                    shape_pt_sequence, shape_dist_traveled
             FROM shapes ORDER BY shape_id, shape_pt_sequence`
	default:
		return nil, fmt.Errorf("shapes table missing expected columns (lat/lon or shape_pt_loc)")
	}
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query shapes: %w", err)
	}
	defer rows.Close()
	var pts []gtfs.RawShapePoint
	for rows.Next() {
		var p gtfs.RawShapePoint
		var dist sql.NullFloat64
		if err := rows.Scan(&p.ShapeID, &p.Lat, &p.Lon, &p.Sequence, &dist); err != nil {
			return nil, err
		}
		if dist.Valid {
			d := dist.Float64
			p.Distance = &d
		}
		pts = append(pts, p)
	}
	return pts, rows.Err()
}

func fetchCalendar(ctx context.Context, db *sql.DB) ([]gtfs.CalendarEntry, error) {
	ok, err := tableExists(ctx, db, "calendar")
	if err != nil || !ok {
		return nil, err
	}
	// booleans may be stored as 0/1, t/f or the importer's availability enum
	q := `
SELECT service_id,
       sunday::text IN ('1','t','true','available'),
       monday::text IN ('1','t','true','available'),
       tuesday::text IN ('1','t','true','available'),
       wednesday::text IN ('1','t','true','available'),
       thursday::text IN ('1','t','true','available'),
       friday::text IN ('1','t','true','available'),
       saturday::text IN ('1','t','true','available'),
       to_char(start_date::date, 'YYYYMMDD'),
       to_char(end_date::date, 'YYYYMMDD')
FROM calendar`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query calendar: %w", err)
	}
	defer rows.Close()
	var out []gtfs.CalendarEntry
	for rows.Next() {
		var c gtfs.CalendarEntry
		if err := rows.Scan(&c.ServiceID, &c.Days[0], &c.Days[1], &c.Days[2], &c.Days[3], &c.Days[4], &c.Days[5], &c.Days[6], &c.StartDate, &c.EndDate); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func fetchCalendarDates(ctx context.Context, db *sql.DB) ([]gtfs.CalendarException, error) {
	ok, err := tableExists(ctx, db, "calendar_dates")
	if err != nil || !ok {
		return nil, err
	}
	q := `SELECT service_id, to_char(date::date, 'YYYYMMDD'), exception_type::text FROM calendar_dates`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query calendar_dates: %w", err)
	}
	defer rows.Close()
	var out []gtfs.CalendarException
	for rows.Next() {
		var e gtfs.CalendarException
		var typ string
		if err := rows.Scan(&e.ServiceID, &e.Date, &typ); err != nil {
			return nil, err
		}
		switch typ {
		case "1", "added":
			e.Type = gtfs.ExceptionAdded
		case "2", "removed":
			e.Type = gtfs.ExceptionRemoved
		default:
			continue
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func tableExists(ctx context.Context, db *sql.DB, table string) (bool, error) {
	var name sql.NullString
	if err := db.QueryRowContext(ctx, `SELECT to_regclass($1)::text`, "public."+table).Scan(&name); err != nil {
		return false, fmt.Errorf("check table %s: %w", table, err)
	}
	return name.Valid, nil
}

// hasColumns returns a map of requested column names to existence for the given table.
func hasColumns(ctx context.Context, db *sql.DB, schema, table string, cols ...string) (map[string]bool, error) {
	res := make(map[string]bool, len(cols))
	if len(cols) == 0 {
		return res, nil
	}
	q := `SELECT column_name FROM information_schema.columns
          WHERE table_schema = $1 AND table_name = $2 AND column_name = ANY($3)`
	rows, err := db.QueryContext(ctx, q, schema, table, cols)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		res[name] = true
	}
	return res, rows.Err()
}
