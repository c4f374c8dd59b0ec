package services

import (
	"context"
	"fmt"
	"itinerary-route-service/internal/domain"
	"itinerary-route-service/internal/platform/logger"
	"itinerary-route-service/internal/platform/obs"
	"itinerary-route-service/internal/ports"
	"slices"

	"go.uber.org/zap"
)

// SegmentBuilder turns ordered points into segments. Provider failures are
// recovered with the straight-line estimate; only an unknown travel mode is
// an error.
type SegmentBuilder struct {
	provider ports.DistanceProvider
	speeds   domain.SpeedTable
}

func NewSegmentBuilder(provider ports.DistanceProvider, speeds domain.SpeedTable) *SegmentBuilder {
	return &SegmentBuilder{provider: provider, speeds: speeds}
}

func (b *SegmentBuilder) Speeds() domain.SpeedTable { return b.speeds }

// Legs returns len(points)-1 hop metrics, from the provider when it answers
// and from the estimator otherwise.
func (b *SegmentBuilder) Legs(
	ctx context.Context,
	points []domain.Coordinates,
	mode domain.TravelMode,
) ([]ports.DistanceResult, error) {
	if len(points) < 2 {
		return []ports.DistanceResult{}, nil
	}

	if b.provider != nil {
		legs, err := b.provider.Legs(ctx, points, mode)
		if err == nil && len(legs) == len(points)-1 {
			return legs, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if err == nil {
			err = fmt.Errorf("provider returned %d legs for %d points", len(legs), len(points))
		}
		obs.ProviderFallbacks.WithLabelValues("segments").Inc()
		logger.FromContext(ctx).Warn("distance provider unavailable, segments estimated",
			zap.String("req_id", obs.RequestID(ctx)),
			zap.String("mode", string(mode)),
			zap.Int("points", len(points)),
			zap.Error(err),
		)
	}

	out := make([]ports.DistanceResult, len(points)-1)
	for i := 1; i < len(points); i++ {
		m, s, err := b.speeds.EstimateLeg(points[i-1], points[i], mode)
		if err != nil {
			return nil, fmt.Errorf("estimate legs: %w", err)
		}
		out[i-1] = ports.DistanceResult{DistanceMeters: m, DurationSeconds: s, Estimated: true}
	}
	return out, nil
}

// RebuildDay replaces every segment of d.
func (b *SegmentBuilder) RebuildDay(ctx context.Context, r *domain.Route, d *domain.ItineraryDay) error {
	pts := r.Points(d)
	legs, err := b.Legs(ctx, pts, r.TravelMode)
	if err != nil {
		return fmt.Errorf("rebuild day %d: %w", d.DayNumber, err)
	}

	labels, ids := r.PointLabels(d)
	d.Segments = make([]domain.Segment, len(legs))
	for i, leg := range legs {
		d.Segments[i] = newSegment(i, labels, ids, leg, r.TravelMode)
	}
	return nil
}

// RebuildHops replaces only the listed segment indices of d. Contiguous hops
// are looked up together.
func (b *SegmentBuilder) RebuildHops(ctx context.Context, r *domain.Route, d *domain.ItineraryDay, hops []int) error {
	pts := r.Points(d)
	labels, ids := r.PointLabels(d)
	if len(d.Segments) != len(pts)-1 {
		return fmt.Errorf("rebuild hops: day %d has %d segments for %d points", d.DayNumber, len(d.Segments), len(pts))
	}

	for _, run := range contiguousRuns(hops) {
		first, last := run[0], run[len(run)-1]
		if first < 0 || last >= len(d.Segments) {
			return fmt.Errorf("rebuild hops: day %d: hop %d..%d out of range", d.DayNumber, first, last)
		}

		legs, err := b.Legs(ctx, pts[first:last+2], r.TravelMode)
		if err != nil {
			return fmt.Errorf("rebuild hops: day %d: %w", d.DayNumber, err)
		}
		for k, leg := range legs {
			d.Segments[first+k] = newSegment(first+k, labels, ids, leg, r.TravelMode)
		}
	}
	return nil
}

func newSegment(i int, labels, ids []string, leg ports.DistanceResult, mode domain.TravelMode) domain.Segment {
	return domain.Segment{
		Order:           i,
		From:            labels[i],
		FromSpotID:      ids[i],
		To:              labels[i+1],
		ToSpotID:        ids[i+1],
		DistanceMeters:  leg.DistanceMeters,
		DurationSeconds: leg.DurationSeconds,
		Mode:            mode,
		Estimated:       leg.Estimated,
	}
}

// contiguousRuns groups sorted, de-duplicated indices into consecutive runs.
func contiguousRuns(idx []int) [][]int {
	sorted := slices.Clone(idx)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	var runs [][]int
	for _, v := range sorted {
		if n := len(runs); n > 0 && runs[n-1][len(runs[n-1])-1] == v-1 {
			runs[n-1] = append(runs[n-1], v)
			continue
		}
		runs = append(runs, []int{v})
	}
	return runs
}
