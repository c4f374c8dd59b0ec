package ports

import (
	"context"
	"itinerary-route-service/internal/domain"
)

// RoutePatch is the full replacement set of one partial update: the touched
// days (stops, segments, aggregates) plus the route-level fields.
type RoutePatch struct {
	PlanID           string
	Version          int
	ExpectedRevision int
	Days             []domain.ItineraryDay

	Hotel                domain.Anchor
	TravelMode           domain.TravelMode
	TotalDistanceMeters  int
	TotalDurationSeconds int
	TotalSpots           int
	Estimated            bool
}

// Persists materialized routes keyed by (plan, version).
type RouteVersionStore interface {
	// Store a new route and return its version (max existing version + 1).
	Create(ctx context.Context, route *domain.Route) (int, error)
	// Return the stored route or a domain.NotFoundError.
	Read(ctx context.Context, planID string, version int) (*domain.Route, error)
	// Return every stored version of the plan in ascending version order.
	// A plan without routes yields an empty slice.
	List(ctx context.Context, planID string) ([]*domain.Route, error)
	// Apply the patch atomically and bump the revision. A revision other than
	// ExpectedRevision fails with a domain.ConsistencyError.
	ReplaceSegments(ctx context.Context, patch RoutePatch) error
}

// Per-plan pool of candidates used to resolve spot ids.
type CandidateCatalog interface {
	PutMany(ctx context.Context, planID string, candidates []domain.Candidate) error
	Get(ctx context.Context, planID, spotID string) (domain.Candidate, error)
}
