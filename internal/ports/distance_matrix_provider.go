package ports

import (
	"context"
	"itinerary-route-service/internal/domain"
)

// Optional extension of DistanceProvider that supports pairwise lookups.
type DistanceMatrixProvider interface {
	DistanceProvider
	// Return an n x n matrix where [i][j] is the hop from points[i] to points[j].
	Matrix(ctx context.Context, points []domain.Coordinates, mode domain.TravelMode) ([][]DistanceResult, error)
}
