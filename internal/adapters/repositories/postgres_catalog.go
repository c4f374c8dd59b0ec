package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"itinerary-route-service/internal/domain"
	"itinerary-route-service/internal/platform/obs"

	"github.com/goccy/go-json"
)

// candidateRecord is the JSONB form of a candidate snapshot.
type candidateRecord struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Categories  []string  `json:"categories,omitempty"`
	Lat         float64   `json:"lat"`
	Lng         float64   `json:"lng"`
	PriceTier   int       `json:"price_tier"`
	Rating      float64   `json:"rating"`
	RatingCount int       `json:"rating_count"`
	Similarity  *float64  `json:"similarity,omitempty"`
	Congestion  []float64 `json:"congestion,omitempty"`
	CloseMinute *int      `json:"close_minute,omitempty"`
}

func newCandidateRecord(c domain.Candidate) candidateRecord {
	return candidateRecord{
		ID:          c.ID,
		Name:        c.Name,
		Categories:  c.Categories,
		Lat:         c.Location.Lat,
		Lng:         c.Location.Lon,
		PriceTier:   c.PriceTier,
		Rating:      c.Rating,
		RatingCount: c.RatingCount,
		Similarity:  c.Similarity,
		Congestion:  c.Congestion,
		CloseMinute: c.CloseMinute,
	}
}

func (r candidateRecord) toDomain() domain.Candidate {
	return domain.Candidate{
		ID:          r.ID,
		Name:        r.Name,
		Categories:  r.Categories,
		Location:    domain.Coordinates{Lon: r.Lng, Lat: r.Lat},
		PriceTier:   r.PriceTier,
		Rating:      r.Rating,
		RatingCount: r.RatingCount,
		Similarity:  r.Similarity,
		Congestion:  r.Congestion,
		CloseMinute: r.CloseMinute,
	}
}

func marshalCandidate(c domain.Candidate) ([]byte, error) {
	return json.Marshal(newCandidateRecord(c))
}

func unmarshalCandidate(raw []byte) (domain.Candidate, error) {
	var rec candidateRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.Candidate{}, err
	}
	return rec.toDomain(), nil
}

// Postgres-backed implementation of the CandidateCatalog port.
type PostgresCatalog struct{ DB *sql.DB }

func NewPostgresCatalog(db *sql.DB) *PostgresCatalog {
	return &PostgresCatalog{DB: db}
}

// Upsert the candidate pool of a plan.
func (p *PostgresCatalog) PutMany(ctx context.Context, planID string, candidates []domain.Candidate) (err error) {
	defer obs.Time(ctx, "catalog.PutMany")(&err)

	if p.DB == nil {
		return errors.New("candidate catalog: DB is nil")
	}
	if len(candidates) == 0 {
		return nil
	}

	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put candidates: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO plan_candidates (plan_id, spot_id, candidate)
	VALUES ($1, $2, $3)
	ON CONFLICT (plan_id, spot_id) DO UPDATE
	SET candidate = EXCLUDED.candidate;
	`)
	if err != nil {
		return fmt.Errorf("put candidates: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range candidates {
		raw, err := marshalCandidate(c)
		if err != nil {
			return fmt.Errorf("put candidates: encode spot_id=%q: %w", c.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, planID, c.ID, raw); err != nil {
			return fmt.Errorf("put candidates: insert spot_id=%q: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("put candidates: commit tx: %w", err)
	}
	return nil
}

func (p *PostgresCatalog) Get(ctx context.Context, planID, spotID string) (domain.Candidate, error) {
	if p.DB == nil {
		return domain.Candidate{}, errors.New("candidate catalog: DB is nil")
	}

	var raw []byte
	err := p.DB.QueryRowContext(ctx, `
	SELECT candidate
	FROM plan_candidates
	WHERE plan_id = $1 AND spot_id = $2;
	`, planID, spotID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Candidate{}, domain.NewNotFound("spot", spotID)
	}
	if err != nil {
		return domain.Candidate{}, fmt.Errorf("get candidate: query plan_candidates: %w", err)
	}

	c, err := unmarshalCandidate(raw)
	if err != nil {
		return domain.Candidate{}, fmt.Errorf("get candidate: decode spot_id=%q: %w", spotID, err)
	}
	return c, nil
}
