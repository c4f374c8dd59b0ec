package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"itinerary-route-service/internal/domain"
	"itinerary-route-service/internal/platform/obs"
	"itinerary-route-service/internal/ports"
	"strings"
)

// SQLDistanceCache is a Postgres-backed cache of provider-sourced hops keyed
// by (travel mode, origin, destination).
type SQLDistanceCache struct {
	DB *sql.DB
}

func NewSQLDistanceCache(db *sql.DB) *SQLDistanceCache {
	return &SQLDistanceCache{DB: db}
}

// Fetch cached hops. Missing keys are absent from the result.
func (s *SQLDistanceCache) GetMany(
	ctx context.Context,
	keys []ports.DistanceKey,
) (_ map[ports.DistanceKey]ports.DistanceResult, err error) {
	defer obs.Time(ctx, "distance.cache.GetMany")(&err)

	if s.DB == nil {
		return nil, errors.New("distance cache: db is nil")
	}

	uniq := uniqueDistanceKeys(keys)
	if len(uniq) == 0 {
		return map[ports.DistanceKey]ports.DistanceResult{}, nil
	}

	modes := make([]string, len(uniq))
	origins := make([]string, len(uniq))
	destinations := make([]string, len(uniq))
	for i, k := range uniq {
		modes[i] = string(k.Mode)
		origins[i] = k.Origin
		destinations[i] = k.Destination
	}

	q := `
	SELECT c.mode, c.origin, c.destination, c.distance_meters, c.duration_seconds
	FROM distance_cache c
	JOIN UNNEST($1::text[], $2::text[], $3::text[]) AS k(mode, origin, destination)
		ON c.mode = k.mode AND c.origin = k.origin AND c.destination = k.destination;
	`

	rows, err := s.DB.QueryContext(ctx, q, modes, origins, destinations)
	if err != nil {
		return nil, fmt.Errorf("get distance cache: query distance_cache table: %w", err)
	}
	defer rows.Close()

	out := make(map[ports.DistanceKey]ports.DistanceResult, len(uniq))
	for rows.Next() {
		var mode, origin, dest string
		var meters, seconds int
		if err := rows.Scan(&mode, &origin, &dest, &meters, &seconds); err != nil {
			return nil, fmt.Errorf("get distance cache: scan rows: %w", err)
		}
		key := ports.DistanceKey{Mode: domain.TravelMode(mode), Origin: origin, Destination: dest}
		out[key] = ports.DistanceResult{
			DistanceMeters:  meters,
			DurationSeconds: seconds,
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get distance cache: row iteration: %w", err)
	}

	return out, nil
}

// Store provider-sourced hops. Estimated results are skipped.
func (s *SQLDistanceCache) PutMany(
	ctx context.Context,
	entries map[ports.DistanceKey]ports.DistanceResult,
) error {
	if s.DB == nil {
		return errors.New("distance cache: db is nil")
	}

	if len(entries) == 0 {
		return nil
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("insert distance cache: db begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO distance_cache (mode, origin, destination, distance_meters, duration_seconds)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (mode, origin, destination) DO UPDATE
	SET distance_meters = EXCLUDED.distance_meters,
		duration_seconds = EXCLUDED.duration_seconds;
	`)
	if err != nil {
		return fmt.Errorf("insert distance cache: db prepare: %w", err)
	}
	defer stmt.Close()

	for k, r := range entries {
		if r.Estimated {
			continue
		}
		if !validDistanceKey(k) {
			return fmt.Errorf("insert distance cache: incomplete key %+v", k)
		}

		if _, err := stmt.ExecContext(ctx, string(k.Mode), k.Origin, k.Destination, r.DistanceMeters, r.DurationSeconds); err != nil {
			return fmt.Errorf("insert distance cache %s %s->%s: %w", k.Mode, k.Origin, k.Destination, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("insert distance cache commit: %w", err)
	}

	return nil
}

func validDistanceKey(k ports.DistanceKey) bool {
	return k.Mode != "" && strings.TrimSpace(k.Origin) != "" && strings.TrimSpace(k.Destination) != ""
}

func uniqueDistanceKeys(keys []ports.DistanceKey) []ports.DistanceKey {
	seen := map[ports.DistanceKey]struct{}{}
	uniq := make([]ports.DistanceKey, 0, len(keys))
	for _, k := range keys {
		if !validDistanceKey(k) {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		uniq = append(uniq, k)
	}
	return uniq
}
