package ports

import (
	"context"
	"itinerary-route-service/internal/domain"
)

// Distance and travel duration of one hop.
// Estimated is set when the values were not sourced from a routing provider.
type DistanceResult struct {
	DistanceMeters  int
	DurationSeconds int
	Estimated       bool
}

// Contract for retrieving travel distance and duration along ordered points.
type DistanceProvider interface {
	// Return one result per consecutive pair of points (len(points)-1 results).
	Legs(ctx context.Context, points []domain.Coordinates, mode domain.TravelMode) ([]DistanceResult, error)
}

// Optional extension for providers that only route some travel modes.
type ModeSupporter interface {
	SupportsMode(mode domain.TravelMode) bool
}
