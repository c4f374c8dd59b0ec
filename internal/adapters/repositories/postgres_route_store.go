package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"itinerary-route-service/internal/domain"
	"itinerary-route-service/internal/platform/obs"
	"itinerary-route-service/internal/ports"
)

// Postgres-backed implementation of the RouteVersionStore port.
type PostgresRouteStore struct{ DB *sql.DB }

func NewPostgresRouteStore(db *sql.DB) *PostgresRouteStore {
	return &PostgresRouteStore{DB: db}
}

// Store a new route version; the version number is allocated under a
// per-plan advisory lock.
func (s *PostgresRouteStore) Create(ctx context.Context, route *domain.Route) (_ int, err error) {
	defer obs.Time(ctx, "routeStore.Create")(&err)

	if s.DB == nil {
		return 0, errors.New("route store: DB is nil")
	}
	if route == nil {
		return 0, errors.New("create route: route is nil")
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("create route: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1));`, route.PlanID); err != nil {
		return 0, fmt.Errorf("create route: lock plan: %w", err)
	}

	var version int
	if err := tx.QueryRowContext(ctx, `
	SELECT COALESCE(MAX(version), 0) + 1
	FROM routes
	WHERE plan_id = $1;
	`, route.PlanID).Scan(&version); err != nil {
		return 0, fmt.Errorf("create route: next version: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO routes (
		id, plan_id, version, revision,
		departure_label, departure_lat, departure_lon,
		hotel_label, hotel_lat, hotel_lon,
		travel_mode, optimize_for, return_to_departure, dwell_minutes,
		total_distance_m, total_duration_s, total_spots,
		estimated, low_confidence, calculated_at
	)
	VALUES ($1, $2, $3, 0, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19);
	`,
		route.ID, route.PlanID, version,
		route.Departure.Label, route.Departure.Coordinates.Lat, route.Departure.Coordinates.Lon,
		route.Hotel.Label, route.Hotel.Coordinates.Lat, route.Hotel.Coordinates.Lon,
		string(route.TravelMode), string(route.OptimizeFor), route.ReturnToDeparture, route.DwellMinutes,
		route.TotalDistanceMeters, route.TotalDurationSeconds, route.TotalSpots,
		route.Estimated, route.LowConfidence, route.CalculatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("create route: insert route plan_id=%q: %w", route.PlanID, err)
	}

	for _, d := range route.Days {
		if err := insertDay(ctx, tx, route.ID, d); err != nil {
			return 0, fmt.Errorf("create route: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("create route: commit tx: %w", err)
	}
	return version, nil
}

func (s *PostgresRouteStore) Read(ctx context.Context, planID string, version int) (_ *domain.Route, err error) {
	defer obs.Time(ctx, "routeStore.Read")(&err)

	if s.DB == nil {
		return nil, errors.New("route store: DB is nil")
	}

	r := &domain.Route{PlanID: planID, Version: version}
	var mode, optimizeFor string
	err = s.DB.QueryRowContext(ctx, `
	SELECT
		id, revision,
		departure_label, departure_lat, departure_lon,
		hotel_label, hotel_lat, hotel_lon,
		travel_mode, optimize_for, return_to_departure, dwell_minutes,
		total_distance_m, total_duration_s, total_spots,
		estimated, low_confidence, calculated_at
	FROM routes
	WHERE plan_id = $1 AND version = $2;
	`, planID, version).Scan(
		&r.ID, &r.Revision,
		&r.Departure.Label, &r.Departure.Coordinates.Lat, &r.Departure.Coordinates.Lon,
		&r.Hotel.Label, &r.Hotel.Coordinates.Lat, &r.Hotel.Coordinates.Lon,
		&mode, &optimizeFor, &r.ReturnToDeparture, &r.DwellMinutes,
		&r.TotalDistanceMeters, &r.TotalDurationSeconds, &r.TotalSpots,
		&r.Estimated, &r.LowConfidence, &r.CalculatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFound("route", routeID(planID, version))
	}
	if err != nil {
		return nil, fmt.Errorf("read route: query routes table: %w", err)
	}
	r.TravelMode = domain.TravelMode(mode)
	r.OptimizeFor = domain.OptimizeFor(optimizeFor)

	if r.Days, err = s.readDays(ctx, r.ID); err != nil {
		return nil, fmt.Errorf("read route: %w", err)
	}
	if err := s.readStops(ctx, r); err != nil {
		return nil, fmt.Errorf("read route: %w", err)
	}
	if err := s.readSegments(ctx, r); err != nil {
		return nil, fmt.Errorf("read route: %w", err)
	}
	return r, nil
}

// List reads every version of the plan. Each version is loaded the same way
// Read loads it.
func (s *PostgresRouteStore) List(ctx context.Context, planID string) (_ []*domain.Route, err error) {
	defer obs.Time(ctx, "routeStore.List")(&err)

	if s.DB == nil {
		return nil, errors.New("route store: DB is nil")
	}

	rows, err := s.DB.QueryContext(ctx, `
	SELECT version
	FROM routes
	WHERE plan_id = $1
	ORDER BY version;
	`, planID)
	if err != nil {
		return nil, fmt.Errorf("list routes: query routes table: %w", err)
	}
	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return nil, fmt.Errorf("list routes: scan version: %w", err)
		}
		versions = append(versions, v)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list routes: version iteration: %w", err)
	}

	out := make([]*domain.Route, 0, len(versions))
	for _, v := range versions {
		r, err := s.Read(ctx, planID, v)
		if err != nil {
			return nil, fmt.Errorf("list routes: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}

// Replace the patched days and route fields in one transaction. The row lock
// on routes serializes writers across processes; the revision check and the
// final totals check fail the patch with a ConsistencyError.
func (s *PostgresRouteStore) ReplaceSegments(ctx context.Context, patch ports.RoutePatch) (err error) {
	defer obs.Time(ctx, "routeStore.ReplaceSegments")(&err)

	if s.DB == nil {
		return errors.New("route store: DB is nil")
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace segments: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id string
	var revision int
	err = tx.QueryRowContext(ctx, `
	SELECT id, revision
	FROM routes
	WHERE plan_id = $1 AND version = $2
	FOR UPDATE;
	`, patch.PlanID, patch.Version).Scan(&id, &revision)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewNotFound("route", routeID(patch.PlanID, patch.Version))
	}
	if err != nil {
		return fmt.Errorf("replace segments: lock route: %w", err)
	}
	if revision != patch.ExpectedRevision {
		return &domain.ConsistencyError{
			PlanID:  patch.PlanID,
			Version: patch.Version,
			Reason:  fmt.Sprintf("revision is %d, expected %d", revision, patch.ExpectedRevision),
		}
	}

	for _, d := range patch.Days {
		res, err := tx.ExecContext(ctx, `
		DELETE FROM route_days
		WHERE route_id = $1 AND day_number = $2;
		`, id, d.DayNumber)
		if err != nil {
			return fmt.Errorf("replace segments: delete day %d: %w", d.DayNumber, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.NewNotFound("day", fmt.Sprint(d.DayNumber))
		}
		if err := insertDay(ctx, tx, id, d); err != nil {
			return fmt.Errorf("replace segments: %w", err)
		}
	}

	var distance, duration, spots int
	if err := tx.QueryRowContext(ctx, `
	SELECT
		COALESCE((SELECT SUM(distance_m) FROM route_days WHERE route_id = $1), 0),
		COALESCE((SELECT SUM(duration_s) FROM route_days WHERE route_id = $1), 0),
		(SELECT COUNT(*) FROM route_stops WHERE route_id = $1);
	`, id).Scan(&distance, &duration, &spots); err != nil {
		return fmt.Errorf("replace segments: sum days: %w", err)
	}
	if distance != patch.TotalDistanceMeters || duration != patch.TotalDurationSeconds || spots != patch.TotalSpots {
		return &domain.ConsistencyError{
			PlanID:  patch.PlanID,
			Version: patch.Version,
			Reason: fmt.Sprintf("patch totals %dm/%ds/%d spots, days sum to %dm/%ds/%d spots",
				patch.TotalDistanceMeters, patch.TotalDurationSeconds, patch.TotalSpots, distance, duration, spots),
		}
	}

	_, err = tx.ExecContext(ctx, `
	UPDATE routes
	SET hotel_label = $2, hotel_lat = $3, hotel_lon = $4,
		travel_mode = $5,
		total_distance_m = $6, total_duration_s = $7, total_spots = $8,
		estimated = $9,
		revision = revision + 1
	WHERE id = $1;
	`, id,
		patch.Hotel.Label, patch.Hotel.Coordinates.Lat, patch.Hotel.Coordinates.Lon,
		string(patch.TravelMode),
		patch.TotalDistanceMeters, patch.TotalDurationSeconds, patch.TotalSpots,
		patch.Estimated,
	)
	if err != nil {
		return fmt.Errorf("replace segments: update route: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace segments: commit tx: %w", err)
	}
	return nil
}

func insertDay(ctx context.Context, tx *sql.Tx, routeID string, d domain.ItineraryDay) error {
	_, err := tx.ExecContext(ctx, `
	INSERT INTO route_days (route_id, day_number, start_kind, end_kind, start_at, distance_m, duration_s)
	VALUES ($1, $2, $3, $4, $5, $6, $7);
	`, routeID, d.DayNumber, string(d.StartKind), string(d.EndKind), d.StartAt, d.DistanceMeters, d.DurationSeconds)
	if err != nil {
		return fmt.Errorf("insert day %d: %w", d.DayNumber, err)
	}

	for _, st := range d.Stops {
		raw, err := marshalCandidate(st.Candidate)
		if err != nil {
			return fmt.Errorf("insert day %d: encode spot_id=%q: %w", d.DayNumber, st.SpotID(), err)
		}
		_, err = tx.ExecContext(ctx, `
		INSERT INTO route_stops (route_id, day_number, stop_order, spot_id, slot, arrive_at, score, candidate)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
		`, routeID, d.DayNumber, st.Order, st.SpotID(), string(st.Slot), st.ArriveAt, st.Score, raw)
		if err != nil {
			return fmt.Errorf("insert day %d: stop spot_id=%q: %w", d.DayNumber, st.SpotID(), err)
		}
	}

	for _, seg := range d.Segments {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO route_segments (
			route_id, day_number, seg_order,
			from_label, from_spot_id, to_label, to_spot_id,
			distance_m, duration_s, travel_mode, estimated
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
		`, routeID, d.DayNumber, seg.Order,
			seg.From, seg.FromSpotID, seg.To, seg.ToSpotID,
			seg.DistanceMeters, seg.DurationSeconds, string(seg.Mode), seg.Estimated)
		if err != nil {
			return fmt.Errorf("insert day %d: segment #%d: %w", d.DayNumber, seg.Order, err)
		}
	}
	return nil
}

func (s *PostgresRouteStore) readDays(ctx context.Context, routeID string) ([]domain.ItineraryDay, error) {
	rows, err := s.DB.QueryContext(ctx, `
	SELECT day_number, start_kind, end_kind, start_at, distance_m, duration_s
	FROM route_days
	WHERE route_id = $1
	ORDER BY day_number;
	`, routeID)
	if err != nil {
		return nil, fmt.Errorf("query route_days table: %w", err)
	}
	defer rows.Close()

	days := make([]domain.ItineraryDay, 0, 8)
	for rows.Next() {
		var d domain.ItineraryDay
		var start, end string
		if err := rows.Scan(&d.DayNumber, &start, &end, &d.StartAt, &d.DistanceMeters, &d.DurationSeconds); err != nil {
			return nil, fmt.Errorf("scan day row: %w", err)
		}
		d.StartKind, d.EndKind = domain.AnchorKind(start), domain.AnchorKind(end)
		days = append(days, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("day row iteration: %w", err)
	}
	return days, nil
}

func (s *PostgresRouteStore) readStops(ctx context.Context, r *domain.Route) error {
	rows, err := s.DB.QueryContext(ctx, `
	SELECT day_number, stop_order, slot, arrive_at, score, candidate
	FROM route_stops
	WHERE route_id = $1
	ORDER BY day_number, stop_order;
	`, r.ID)
	if err != nil {
		return fmt.Errorf("query route_stops table: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var dayNumber int
		var slot string
		var raw []byte
		var st domain.Stop
		if err := rows.Scan(&dayNumber, &st.Order, &slot, &st.ArriveAt, &st.Score, &raw); err != nil {
			return fmt.Errorf("scan stop row: %w", err)
		}
		if st.Candidate, err = unmarshalCandidate(raw); err != nil {
			return fmt.Errorf("decode stop candidate: %w", err)
		}
		if st.Slot, err = domain.ParseTimeSlot(slot); err != nil {
			return fmt.Errorf("stop %d of day %d: %w", st.Order, dayNumber, err)
		}

		d, ok := r.Day(dayNumber)
		if !ok {
			return fmt.Errorf("stop references missing day %d", dayNumber)
		}
		d.Stops = append(d.Stops, st)
	}
	return rows.Err()
}

func (s *PostgresRouteStore) readSegments(ctx context.Context, r *domain.Route) error {
	rows, err := s.DB.QueryContext(ctx, `
	SELECT
		day_number, seg_order,
		from_label, from_spot_id, to_label, to_spot_id,
		distance_m, duration_s, travel_mode, estimated
	FROM route_segments
	WHERE route_id = $1
	ORDER BY day_number, seg_order;
	`, r.ID)
	if err != nil {
		return fmt.Errorf("query route_segments table: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var dayNumber int
		var mode string
		var seg domain.Segment
		if err := rows.Scan(
			&dayNumber, &seg.Order,
			&seg.From, &seg.FromSpotID, &seg.To, &seg.ToSpotID,
			&seg.DistanceMeters, &seg.DurationSeconds, &mode, &seg.Estimated,
		); err != nil {
			return fmt.Errorf("scan segment row: %w", err)
		}
		seg.Mode = domain.TravelMode(mode)

		d, ok := r.Day(dayNumber)
		if !ok {
			return fmt.Errorf("segment references missing day %d", dayNumber)
		}
		d.Segments = append(d.Segments, seg)
	}
	return rows.Err()
}
