package services

import (
	"context"
	"errors"
	"fmt"
	"itinerary-route-service/internal/domain"
	"itinerary-route-service/internal/platform/logger"
	"math"
	"sort"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// neutralScore replaces any dimension that cannot be computed.
const neutralScore = 0.5

type priceBand struct{ min, max float64 }

// Price bands per tier, in yen per person.
var priceBands = map[int]priceBand{
	1: {0, 30000},
	2: {20000, 80000},
	3: {60000, 150000},
	4: {120000, 300000},
}

var preferredPopularity = map[domain.Atmosphere]float64{
	domain.AtmosphereQuiet:    0.2,
	domain.AtmosphereOrdinary: 0.6,
	domain.AtmosphereLively:   1.0,
	domain.AtmosphereRomantic: 0.4,
}

var errNotFinite = errors.New("input is not a finite number")

// ScoreEngine ranks candidates by a weighted four-dimension composite.
type ScoreEngine struct {
	parallelism int
}

func NewScoreEngine(parallelism int) *ScoreEngine {
	return &ScoreEngine{parallelism: max(1, parallelism)}
}

// Score computes per-dimension scores and the composite for every candidate,
// sorts descending by composite (ties keep input order) and keeps the first
// topN. topN <= 0 keeps all candidates.
func (e *ScoreEngine) Score(
	ctx context.Context,
	candidates []domain.Candidate,
	weights domain.Weights,
	prefs domain.Preferences,
	topN int,
) ([]domain.ScoredCandidate, error) {
	if err := weights.Validate(); err != nil {
		return nil, fmt.Errorf("score: %w", err)
	}
	atmosphere, err := domain.ParseAtmosphere(string(prefs.Atmosphere))
	if err != nil {
		return nil, fmt.Errorf("score: %w", err)
	}
	prefs.Atmosphere = atmosphere

	scored := make([]domain.ScoredCandidate, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)
	for i := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			scored[i] = scoreCandidate(gctx, candidates[i], weights, prefs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("score: %w", err)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Composite > scored[j].Composite
	})
	if topN > 0 && len(scored) > topN {
		scored = scored[:topN]
	}
	return scored, nil
}

func scoreCandidate(ctx context.Context, c domain.Candidate, w domain.Weights, prefs domain.Preferences) domain.ScoredCandidate {
	log := logger.FromContext(ctx)
	dim := func(name string) func(float64, error) float64 {
		return func(v float64, err error) float64 {
			if err != nil {
				log.Debug("score dimension fell back to neutral",
					zap.String("spot_id", c.ID), zap.String("dimension", name), zap.Error(err))
				return neutralScore
			}
			return v
		}
	}

	s := domain.Scores{}
	s.Price = dim("price")(PriceScore(c.PriceTier, prefs.Budget))
	s.Rating = dim("rating")(RatingScore(c.Rating, c.RatingCount))
	s.Congestion = dim("congestion")(CongestionScore(prefs.Atmosphere, c.RatingCount))
	s.Similarity = dim("similarity")(SimilarityScore(c.Similarity))

	return domain.ScoredCandidate{
		Candidate: c,
		Scores:    s,
		Weights:   w,
		Composite: lo.Clamp(s.Weighted(w), 0, 1),
	}
}

// PriceScore rates how well a price tier fits the budget. A budget at or
// above the band midpoint scores min(1, budget/mid*0.8).
func PriceScore(tier int, budget float64) (float64, error) {
	if !finite(budget) {
		return 0, errNotFinite
	}
	if budget < 0 {
		return 0, fmt.Errorf("negative budget %v", budget)
	}

	band, ok := priceBands[tier]
	if !ok {
		band = priceBands[2]
	}
	mid := (band.min + band.max) / 2
	if mid <= 0 {
		return 0, fmt.Errorf("zero midpoint for tier %d", tier)
	}

	ratio := budget / mid
	if budget >= mid {
		return math.Min(1, ratio*0.8), nil
	}
	return lo.Clamp(ratio, 0, 1), nil
}

// RatingScore is rating/5 plus a reliability bonus for well-reviewed spots.
func RatingScore(rating float64, count int) (float64, error) {
	if !finite(rating) {
		return 0, errNotFinite
	}
	return lo.Clamp(rating/5+reliabilityBonus(count), 0, 1), nil
}

func reliabilityBonus(count int) float64 {
	switch {
	case count >= 1000:
		return 0.2
	case count >= 100:
		return 0.1
	case count >= 10:
		return 0.05
	}
	return 0
}

// ActualPopularity derives popularity from the number of ratings.
func ActualPopularity(count int) float64 {
	switch {
	case count >= 1000:
		return 1.0
	case count >= 500:
		return 0.8
	case count >= 100:
		return 0.6
	case count >= 50:
		return 0.4
	}
	return 0.2
}

// CongestionScore is 1 - |preferred - actual| popularity.
func CongestionScore(atmosphere domain.Atmosphere, count int) (float64, error) {
	preferred, ok := preferredPopularity[atmosphere]
	if !ok {
		return 0, fmt.Errorf("unknown atmosphere %q", atmosphere)
	}
	return lo.Clamp(1-math.Abs(preferred-ActualPopularity(count)), 0, 1), nil
}

func SimilarityScore(similarity *float64) (float64, error) {
	if similarity == nil {
		return neutralScore, nil
	}
	if !finite(*similarity) {
		return 0, errNotFinite
	}
	return lo.Clamp(*similarity, 0, 1), nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
