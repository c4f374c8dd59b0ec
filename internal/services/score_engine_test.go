package services

import (
	"context"
	"itinerary-route-service/internal/domain"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestScoreEngineScenarioComposite(t *testing.T) {
	c := domain.Candidate{
		ID:          "spot-1",
		Name:        "Gyeongbokgung",
		Location:    domain.Coordinates{Lon: 126.977, Lat: 37.579},
		PriceTier:   2,
		Rating:      4.2,
		RatingCount: 1234,
		Similarity:  ptr(0.85),
	}
	w := domain.Weights{Price: 0.3, Rating: 0.3, Congestion: 0.3, Similarity: 0.1}
	prefs := domain.Preferences{Budget: 50000, Atmosphere: domain.AtmosphereOrdinary}

	got, err := NewScoreEngine(2).Score(context.Background(), []domain.Candidate{c}, w, prefs, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)

	s := got[0].Scores
	assert.InDelta(t, 0.8, s.Price, 1e-9)
	assert.InDelta(t, 1.0, s.Rating, 1e-9)
	assert.InDelta(t, 0.85, s.Similarity, 1e-9)
	// ordinary prefers 0.6, 1234 ratings is popularity 1.0
	assert.InDelta(t, 0.6, s.Congestion, 1e-9)

	want := 0.8*0.3 + 1.0*0.3 + s.Congestion*0.3 + 0.85*0.1
	assert.InDelta(t, want, got[0].Composite, 1e-9)
	assert.Equal(t, w, got[0].Weights)
}

func TestScoreEngineScoresStayInUnitRange(t *testing.T) {
	weightSets := []domain.Weights{
		domain.DefaultWeights(),
		{Price: 1},
		{Rating: 1},
		{Congestion: 0.5, Similarity: 0.5},
		{Price: 0.1, Rating: 0.2, Congestion: 0.3, Similarity: 0.4},
	}

	var candidates []domain.Candidate
	for tier := 0; tier <= 5; tier++ {
		for _, rating := range []float64{-1, 0, 2.5, 5, 7} {
			for _, count := range []int{0, 9, 10, 99, 100, 999, 1000, 50000} {
				for _, sim := range []*float64{nil, ptr(-0.5), ptr(0.3), ptr(1.7), ptr(math.NaN())} {
					candidates = append(candidates, domain.Candidate{
						ID:          "c",
						PriceTier:   tier,
						Rating:      rating,
						RatingCount: count,
						Similarity:  sim,
					})
				}
			}
		}
	}

	for _, budget := range []float64{0, 10000, 50000, 1e9, math.Inf(1), -5} {
		for _, atmosphere := range []domain.Atmosphere{domain.AtmosphereQuiet, domain.AtmosphereLively, domain.AtmosphereRomantic} {
			for _, w := range weightSets {
				got, err := NewScoreEngine(4).Score(context.Background(), candidates, w,
					domain.Preferences{Budget: budget, Atmosphere: atmosphere}, 0)
				require.NoError(t, err)
				for _, sc := range got {
					for name, v := range map[string]float64{
						"price":      sc.Scores.Price,
						"rating":     sc.Scores.Rating,
						"congestion": sc.Scores.Congestion,
						"similarity": sc.Scores.Similarity,
						"composite":  sc.Composite,
					} {
						if v < 0 || v > 1 || math.IsNaN(v) {
							t.Fatalf("%s score %v out of [0,1] (budget=%v candidate=%+v)", name, v, budget, sc.Candidate)
						}
					}
				}
			}
		}
	}
}

func TestScoreEngineFallsBackToNeutral(t *testing.T) {
	c := domain.Candidate{ID: "x", PriceTier: 1, Rating: math.NaN(), Similarity: ptr(math.Inf(1))}
	got, err := NewScoreEngine(1).Score(context.Background(), []domain.Candidate{c}, domain.DefaultWeights(),
		domain.Preferences{Budget: math.NaN()}, 0)
	require.NoError(t, err)

	assert.Equal(t, neutralScore, got[0].Scores.Price)
	assert.Equal(t, neutralScore, got[0].Scores.Rating)
	assert.Equal(t, neutralScore, got[0].Scores.Similarity)
}

func TestRatingScoreMonotonic(t *testing.T) {
	counts := []int{0, 5, 10, 50, 100, 500, 1000, 10000}
	ratings := []float64{0, 1, 2.5, 3.9, 4.2, 4.8, 5}

	for _, count := range counts {
		prev := -1.0
		for _, rating := range ratings {
			s, err := RatingScore(rating, count)
			require.NoError(t, err)
			if s < prev {
				t.Fatalf("rating score decreased: rating=%v count=%d score=%v prev=%v", rating, count, s, prev)
			}
			prev = s
		}
	}

	for _, rating := range ratings {
		prev := -1.0
		for _, count := range counts {
			s, err := RatingScore(rating, count)
			require.NoError(t, err)
			if s < prev {
				t.Fatalf("rating score decreased: count=%d rating=%v score=%v prev=%v", count, rating, s, prev)
			}
			prev = s
		}
	}
}

func TestCongestionScoreIsOneOnlyOnMatch(t *testing.T) {
	for atmosphere, preferred := range preferredPopularity {
		for _, count := range []int{0, 49, 50, 100, 500, 999, 1000, 5000} {
			s, err := CongestionScore(atmosphere, count)
			require.NoError(t, err)

			match := preferred == ActualPopularity(count)
			if match != (s == 1.0) {
				t.Fatalf("atmosphere=%s count=%d: score=%v preferred=%v actual=%v",
					atmosphere, count, s, preferred, ActualPopularity(count))
			}
		}
	}
}

func TestPriceScore(t *testing.T) {
	tests := []struct {
		name   string
		tier   int
		budget float64
		want   float64
	}{
		{"at midpoint", 2, 50000, 0.8},
		{"far above midpoint caps", 1, 1_000_000, 1},
		{"below midpoint is ratio", 3, 52500, 0.5},
		{"zero budget", 4, 0, 0},
		{"unknown tier uses tier 2", 9, 25000, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PriceScore(tt.tier, tt.budget)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}

	_, err := PriceScore(2, -1)
	assert.Error(t, err)
}

func TestScoreEngineSortsStableAndTruncates(t *testing.T) {
	mk := func(id string, count int) domain.Candidate {
		return domain.Candidate{ID: id, PriceTier: 2, Rating: 4, RatingCount: count}
	}
	candidates := []domain.Candidate{mk("low", 0), mk("tie-a", 1000), mk("tie-b", 1000), mk("mid", 100)}

	got, err := NewScoreEngine(3).Score(context.Background(), candidates, domain.DefaultWeights(),
		domain.Preferences{Budget: 50000, Atmosphere: domain.AtmosphereLively}, 3)
	require.NoError(t, err)

	ids := []string{got[0].ID, got[1].ID, got[2].ID}
	assert.Equal(t, []string{"tie-a", "tie-b", "mid"}, ids)
}

func TestScoreEngineRejectsBadWeights(t *testing.T) {
	_, err := NewScoreEngine(1).Score(context.Background(), nil,
		domain.Weights{Price: 0.5, Rating: 0.6}, domain.Preferences{}, 0)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestScoreEngineHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewScoreEngine(1).Score(ctx, []domain.Candidate{{ID: "a"}}, domain.DefaultWeights(), domain.Preferences{}, 0)
	assert.ErrorIs(t, err, context.Canceled)
}
