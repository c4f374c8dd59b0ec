package distance

import (
	"context"
	"fmt"
	"itinerary-route-service/internal/domain"
	"itinerary-route-service/internal/ports"
)

// Estimator answers distance lookups with straight-line distance and the
// configured average speed per travel mode. Every result is marked estimated.
type Estimator struct {
	speeds domain.SpeedTable
}

func NewEstimator(speeds domain.SpeedTable) *Estimator {
	return &Estimator{speeds: speeds}
}

func (e *Estimator) Legs(
	ctx context.Context,
	points []domain.Coordinates,
	mode domain.TravelMode,
) ([]ports.DistanceResult, error) {
	if len(points) < 2 {
		return []ports.DistanceResult{}, nil
	}

	out := make([]ports.DistanceResult, len(points)-1)
	for i := 1; i < len(points); i++ {
		r, err := e.estimate(points[i-1], points[i], mode)
		if err != nil {
			return nil, fmt.Errorf("estimate legs: %w", err)
		}
		out[i-1] = r
	}
	return out, nil
}

func (e *Estimator) Matrix(
	ctx context.Context,
	points []domain.Coordinates,
	mode domain.TravelMode,
) ([][]ports.DistanceResult, error) {
	out := make([][]ports.DistanceResult, len(points))
	for i := range points {
		out[i] = make([]ports.DistanceResult, len(points))
		for j := range points {
			if i == j {
				out[i][j] = ports.DistanceResult{Estimated: true}
				continue
			}
			r, err := e.estimate(points[i], points[j], mode)
			if err != nil {
				return nil, fmt.Errorf("estimate matrix: %w", err)
			}
			out[i][j] = r
		}
	}
	return out, nil
}

func (e *Estimator) estimate(from, to domain.Coordinates, mode domain.TravelMode) (ports.DistanceResult, error) {
	meters, seconds, err := e.speeds.EstimateLeg(from, to, mode)
	if err != nil {
		return ports.DistanceResult{}, err
	}
	return ports.DistanceResult{DistanceMeters: meters, DurationSeconds: seconds, Estimated: true}, nil
}
