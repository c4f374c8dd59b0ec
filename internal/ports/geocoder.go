package ports

import (
	"context"
	"itinerary-route-service/internal/domain"
)

// Resolves a free-form address to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (domain.Coordinates, error)
}
