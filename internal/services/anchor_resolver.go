package services

import (
	"context"
	"fmt"
	"itinerary-route-service/internal/domain"
	"itinerary-route-service/internal/ports"
	"strings"
)

// AnchorResolver turns "lat,lng" strings or addresses into anchors.
type AnchorResolver struct {
	geocoder ports.Geocoder
}

// NewAnchorResolver accepts a nil geocoder; addresses are then rejected.
func NewAnchorResolver(geocoder ports.Geocoder) *AnchorResolver {
	return &AnchorResolver{geocoder: geocoder}
}

func (r *AnchorResolver) Resolve(ctx context.Context, field, s string) (domain.Anchor, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return domain.Anchor{}, domain.NewValidationError(field, "must not be empty")
	}
	if a, ok := domain.ParseAnchor(s); ok {
		return a, nil
	}
	if r.geocoder == nil {
		return domain.Anchor{}, domain.NewValidationError(field, "%q is not a lat,lng pair and geocoding is disabled", s)
	}

	c, err := r.geocoder.Geocode(ctx, s)
	if err != nil {
		return domain.Anchor{}, fmt.Errorf("resolve %s %q: %w", field, s, err)
	}
	return domain.Anchor{Label: s, Coordinates: c}, nil
}
