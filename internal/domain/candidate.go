package domain

import (
	"math"
	"strings"
)

const (
	MaxPriceTier = 4
	MaxRating    = 5.0
)

// Candidate is a point of interest already filtered and re-ranked upstream.
// It is immutable input to scoring and slot allocation.
type Candidate struct {
	ID         string
	Name       string
	Categories []string
	Location   Coordinates
	// PriceTier is 1 (cheap) to 4 (luxury); 0 means unknown.
	PriceTier   int
	Rating      float64
	RatingCount int
	// Similarity is the semantic similarity from vector search; nil when unknown.
	Similarity *float64
	// Congestion holds 24 hourly values (0-100) when available.
	Congestion []float64
	// CloseMinute is the closing time as minutes after midnight; values past
	// 1440 mean closing after midnight.
	CloseMinute *int
}

func (c Candidate) HasCategory(category string) bool {
	for _, cat := range c.Categories {
		if strings.EqualFold(strings.TrimSpace(cat), category) {
			return true
		}
	}
	return false
}

func (c Candidate) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return NewValidationError("candidate.id", "must not be empty")
	}
	if !c.Location.Valid() {
		return NewValidationError("candidate.location", "invalid coordinates for %q", c.ID)
	}
	if c.PriceTier < 0 || c.PriceTier > MaxPriceTier {
		return NewValidationError("candidate.price_tier", "%q: must be within 0..%d, got %d", c.ID, MaxPriceTier, c.PriceTier)
	}
	if !(c.Rating >= 0 && c.Rating <= MaxRating) {
		return NewValidationError("candidate.rating", "%q: must be within 0..%v, got %v", c.ID, MaxRating, c.Rating)
	}
	if c.RatingCount < 0 {
		return NewValidationError("candidate.rating_count", "%q: must not be negative, got %d", c.ID, c.RatingCount)
	}
	if len(c.Congestion) != 0 && len(c.Congestion) != 24 {
		return NewValidationError("candidate.congestion", "%q: expected 24 hourly values, got %d", c.ID, len(c.Congestion))
	}
	return nil
}

type Atmosphere string

const (
	AtmosphereQuiet    Atmosphere = "quiet"
	AtmosphereOrdinary Atmosphere = "ordinary"
	AtmosphereLively   Atmosphere = "lively"
	AtmosphereRomantic Atmosphere = "romantic"
)

func ParseAtmosphere(s string) (Atmosphere, error) {
	switch a := Atmosphere(strings.ToLower(strings.TrimSpace(s))); a {
	case "":
		return AtmosphereOrdinary, nil
	case AtmosphereQuiet, AtmosphereOrdinary, AtmosphereLively, AtmosphereRomantic:
		return a, nil
	}
	return "", NewValidationError("atmosphere", "unknown atmosphere %q", s)
}

// Preferences are the traveller's inputs to scoring.
type Preferences struct {
	Budget     float64
	Atmosphere Atmosphere
}

const weightEpsilon = 1e-6

// Weights of the four scoring dimensions. They must sum to 1.
type Weights struct {
	Price      float64
	Rating     float64
	Congestion float64
	Similarity float64
}

func DefaultWeights() Weights {
	return Weights{Price: 0.25, Rating: 0.35, Congestion: 0.25, Similarity: 0.15}
}

func (w Weights) Sum() float64 {
	return w.Price + w.Rating + w.Congestion + w.Similarity
}

func (w Weights) Validate() error {
	dims := []struct {
		name string
		v    float64
	}{
		{"price", w.Price},
		{"rating", w.Rating},
		{"congestion", w.Congestion},
		{"similarity", w.Similarity},
	}
	for _, d := range dims {
		if math.IsNaN(d.v) || math.IsInf(d.v, 0) || d.v < 0 {
			return NewValidationError("weights."+d.name, "must be a non-negative number, got %v", d.v)
		}
	}
	if sum := w.Sum(); math.Abs(sum-1) > weightEpsilon {
		return NewValidationError("weights", "must sum to 1, got %.6f", sum)
	}
	return nil
}

// Scores holds per-dimension scores, each in [0,1].
type Scores struct {
	Price      float64
	Rating     float64
	Congestion float64
	Similarity float64
}

func (s Scores) Weighted(w Weights) float64 {
	return s.Price*w.Price + s.Rating*w.Rating + s.Congestion*w.Congestion + s.Similarity*w.Similarity
}

// ScoredCandidate carries the score breakdown and the weights used so the
// ranking can be explained downstream.
type ScoredCandidate struct {
	Candidate
	Scores    Scores
	Weights   Weights
	Composite float64
}
