package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"itinerary-route-service/internal/domain"
	"os"
	"strings"

	"github.com/goccy/go-json"
)

// Initialize the Postgres schema for routes, candidate pools and caches.
func InitSchema(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return errors.New("init schema: DB is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("init schema: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createRoutesQuery := `
	CREATE TABLE IF NOT EXISTS routes (
		id TEXT PRIMARY KEY,
		plan_id TEXT NOT NULL,
		version INTEGER NOT NULL,
		revision INTEGER NOT NULL DEFAULT 0,
		departure_label TEXT NOT NULL,
		departure_lat DOUBLE PRECISION NOT NULL,
		departure_lon DOUBLE PRECISION NOT NULL,
		hotel_label TEXT NOT NULL,
		hotel_lat DOUBLE PRECISION NOT NULL,
		hotel_lon DOUBLE PRECISION NOT NULL,
		travel_mode TEXT NOT NULL,
		optimize_for TEXT NOT NULL,
		return_to_departure BOOLEAN NOT NULL,
		dwell_minutes INTEGER NOT NULL,
		total_distance_m INTEGER NOT NULL,
		total_duration_s INTEGER NOT NULL,
		total_spots INTEGER NOT NULL,
		estimated BOOLEAN NOT NULL,
		low_confidence BOOLEAN NOT NULL,
		calculated_at TIMESTAMPTZ NOT NULL,
		UNIQUE (plan_id, version)
	);
	`

	createDaysQuery := `
	CREATE TABLE IF NOT EXISTS route_days (
		route_id TEXT NOT NULL REFERENCES routes(id) ON DELETE CASCADE,
		day_number INTEGER NOT NULL,
		start_kind TEXT NOT NULL,
		end_kind TEXT NOT NULL,
		start_at TIMESTAMPTZ NOT NULL,
		distance_m INTEGER NOT NULL,
		duration_s INTEGER NOT NULL,
		PRIMARY KEY (route_id, day_number)
	);
	`

	createStopsQuery := `
	CREATE TABLE IF NOT EXISTS route_stops (
		route_id TEXT NOT NULL,
		day_number INTEGER NOT NULL,
		stop_order INTEGER NOT NULL,
		spot_id TEXT NOT NULL,
		slot TEXT NOT NULL,
		arrive_at TIMESTAMPTZ NOT NULL,
		score DOUBLE PRECISION NOT NULL,
		candidate JSONB NOT NULL,
		PRIMARY KEY (route_id, day_number, stop_order),
		FOREIGN KEY (route_id, day_number) REFERENCES route_days(route_id, day_number) ON DELETE CASCADE
	);
	`

	createSegmentsQuery := `
	CREATE TABLE IF NOT EXISTS route_segments (
		route_id TEXT NOT NULL,
		day_number INTEGER NOT NULL,
		seg_order INTEGER NOT NULL,
		from_label TEXT NOT NULL,
		from_spot_id TEXT NOT NULL,
		to_label TEXT NOT NULL,
		to_spot_id TEXT NOT NULL,
		distance_m INTEGER NOT NULL,
		duration_s INTEGER NOT NULL,
		travel_mode TEXT NOT NULL,
		estimated BOOLEAN NOT NULL,
		PRIMARY KEY (route_id, day_number, seg_order),
		FOREIGN KEY (route_id, day_number) REFERENCES route_days(route_id, day_number) ON DELETE CASCADE
	);
	`

	createCandidatesQuery := `
	CREATE TABLE IF NOT EXISTS plan_candidates (
		plan_id TEXT NOT NULL,
		spot_id TEXT NOT NULL,
		candidate JSONB NOT NULL,
		PRIMARY KEY (plan_id, spot_id)
	);
	`

	createDistanceCacheQuery := `
	CREATE TABLE IF NOT EXISTS distance_cache (
		mode TEXT NOT NULL,
		origin TEXT NOT NULL,
		destination TEXT NOT NULL,
		distance_meters INTEGER NOT NULL,
		duration_seconds INTEGER NOT NULL,
		PRIMARY KEY (mode, origin, destination)
	);
	`

	createGeocodeCacheQuery := `
	CREATE TABLE IF NOT EXISTS geocode_cache (
		address TEXT PRIMARY KEY,
		lon DOUBLE PRECISION NOT NULL,
		lat DOUBLE PRECISION NOT NULL
	);
	`

	createIndexQuery := `
	CREATE INDEX IF NOT EXISTS idx_route_stops_spot
	ON route_stops(route_id, spot_id);
	`

	statements := []string{
		createRoutesQuery,
		createDaysQuery,
		createStopsQuery,
		createSegmentsQuery,
		createCandidatesQuery,
		createDistanceCacheQuery,
		createGeocodeCacheQuery,
		createIndexQuery,
	}

	for i, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: exec statement #%d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("init schema: commit tx: %w", err)
	}

	return nil
}

// Load a demo candidate pool for planID from a JSON file.
func SeedCandidates(ctx context.Context, db *sql.DB, planID, jsonPath string) error {
	bytes, err := os.ReadFile(jsonPath)
	if err != nil {
		return fmt.Errorf("seed candidates: read %q: %w", jsonPath, err)
	}

	var data []candidateRecord
	if err := json.Unmarshal(bytes, &data); err != nil {
		return fmt.Errorf("seed candidates: parse json: %w", err)
	}

	candidates := make([]domain.Candidate, 0, len(data))
	for i, item := range data {
		c := item.toDomain()
		c.ID = strings.TrimSpace(c.ID)
		if err := c.Validate(); err != nil {
			return fmt.Errorf("seed candidates: item at index %d: %w", i+1, err)
		}
		candidates = append(candidates, c)
	}

	return NewPostgresCatalog(db).PutMany(ctx, planID, candidates)
}
