package ports

import (
	"context"
	"itinerary-route-service/internal/domain"
)

// Identifies one cached hop. Origin and Destination are Coordinates.Key values.
type DistanceKey struct {
	Mode        domain.TravelMode
	Origin      string
	Destination string
}

// Cache for provider-sourced hops. Estimated results are never cached.
type DistanceCache interface {
	GetMany(ctx context.Context, keys []DistanceKey) (map[DistanceKey]DistanceResult, error)
	PutMany(ctx context.Context, entries map[DistanceKey]DistanceResult) error
}

// Cache for geocoded addresses.
type GeocodeCache interface {
	GetMany(ctx context.Context, addresses []string) (map[string]domain.Coordinates, error)
	PutMany(ctx context.Context, entries map[string]domain.Coordinates) error
}
