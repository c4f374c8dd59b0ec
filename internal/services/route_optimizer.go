package services

import (
	"context"
	"errors"
	"fmt"
	"itinerary-route-service/internal/domain"
	"itinerary-route-service/internal/platform/logger"
	"itinerary-route-service/internal/platform/obs"
	"itinerary-route-service/internal/ports"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type OptimizerConfig struct {
	MaxIterations int
	TimeBudget    time.Duration
	// SlotPenalty is added, in cost units (meters or seconds), to every hop
	// that goes back to an earlier time slot.
	SlotPenalty    float64
	DwellMinutes   int
	DayStartMinute int
}

// RouteOptimizer orders each day's stops between its anchors and
// materializes the route with provider-sourced segments.
type RouteOptimizer struct {
	provider ports.DistanceProvider
	segments *SegmentBuilder
	cfg      OptimizerConfig
	now      func() time.Time
}

func NewRouteOptimizer(provider ports.DistanceProvider, segments *SegmentBuilder, cfg OptimizerConfig) *RouteOptimizer {
	return &RouteOptimizer{
		provider: provider,
		segments: segments,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type OptimizeRequest struct {
	PlanID string
	// Days holds the slot-assigned candidates of each day, in day order.
	Days      [][]domain.SlotAssignment
	Departure domain.Anchor
	// Hotel is optional; the departure point is used when nil.
	Hotel             *domain.Anchor
	TravelMode        domain.TravelMode
	OptimizeFor       domain.OptimizeFor
	ReturnToDeparture bool
	StartDate         time.Time
}

// Optimize builds the materialized route. Running out of the search budget
// is not an error: the best ordering found is kept and the route is flagged
// LowConfidence.
func (o *RouteOptimizer) Optimize(ctx context.Context, req OptimizeRequest) (_ *domain.Route, err error) {
	defer obs.Time(ctx, "optimizer.Optimize")(&err)

	if len(req.Days) == 0 {
		return nil, domain.NewValidationError("days", "must be >= 1")
	}

	hotel := req.Departure
	if req.Hotel != nil {
		hotel = *req.Hotel
	}

	route := &domain.Route{
		ID:                uuid.NewString(),
		PlanID:            req.PlanID,
		Departure:         req.Departure,
		Hotel:             hotel,
		TravelMode:        req.TravelMode,
		OptimizeFor:       req.OptimizeFor,
		ReturnToDeparture: req.ReturnToDeparture,
		DwellMinutes:      o.cfg.DwellMinutes,
		Days:              make([]domain.ItineraryDay, len(req.Days)),
		CalculatedAt:      o.now(),
	}

	y, m, d := req.StartDate.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, req.StartDate.Location()).
		Add(time.Duration(o.cfg.DayStartMinute) * time.Minute)

	for i, assignments := range req.Days {
		day := &route.Days[i]
		day.DayNumber = i + 1
		day.StartKind, day.EndKind = dayAnchors(i, len(req.Days), req.ReturnToDeparture)
		day.StartAt = start.AddDate(0, 0, i)

		lowConfidence, err := o.orderDay(ctx, route, day, assignments)
		if err != nil {
			return nil, fmt.Errorf("optimize: day %d: %w", day.DayNumber, err)
		}
		route.LowConfidence = route.LowConfidence || lowConfidence

		if err := o.segments.RebuildDay(ctx, route, day); err != nil {
			return nil, fmt.Errorf("optimize: %w", err)
		}
	}

	route.Recompute()
	return route, nil
}

// dayAnchors: day 1 starts at departure, later days at the hotel; every day
// ends at the hotel except a last day that returns to departure.
func dayAnchors(i, days int, returnToDeparture bool) (start, end domain.AnchorKind) {
	start, end = domain.AnchorHotel, domain.AnchorHotel
	if i == 0 {
		start = domain.AnchorDeparture
	}
	if i == days-1 && returnToDeparture {
		end = domain.AnchorDeparture
	}
	return start, end
}

func (o *RouteOptimizer) orderDay(
	ctx context.Context,
	route *domain.Route,
	day *domain.ItineraryDay,
	assignments []domain.SlotAssignment,
) (lowConfidence bool, err error) {
	began := time.Now()

	n := len(assignments) + 2
	points := make([]domain.Coordinates, 0, n)
	slots := make([]int, 0, n)
	ids := make([]string, 0, n)

	points = append(points, route.Anchor(day.StartKind).Coordinates)
	slots = append(slots, -1)
	ids = append(ids, "")
	for _, as := range assignments {
		points = append(points, as.Candidate.Location)
		slots = append(slots, as.Slot.Index())
		ids = append(ids, as.Candidate.ID)
	}
	points = append(points, route.Anchor(day.EndKind).Coordinates)
	slots = append(slots, -1)
	ids = append(ids, "")

	cost, err := o.costMatrix(ctx, points, route.TravelMode, route.OptimizeFor)
	if err != nil {
		return false, err
	}

	p := &tourProblem{cost: cost, slots: slots, ids: ids, penalty: o.cfg.SlotPenalty}
	order := nearestNeighborOrder(p)
	res := twoOpt(ctx, p, order, o.cfg.MaxIterations, began.Add(o.cfg.TimeBudget))
	if err := ctx.Err(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return false, err
	}

	confidence := "normal"
	if res.exhausted {
		confidence = "low"
		logger.FromContext(ctx).Info("optimizer budget exhausted, keeping best tour",
			zap.String("plan_id", route.PlanID),
			zap.Int("day", day.DayNumber),
			zap.Int("iterations", res.iterations),
		)
	}
	obs.OptimizerDuration.WithLabelValues(confidence).Observe(time.Since(began).Seconds())

	day.Stops = make([]domain.Stop, len(res.order))
	for k, node := range res.order {
		as := assignments[node-1]
		day.Stops[k] = domain.Stop{
			Candidate: as.Candidate.Candidate,
			Order:     k,
			Slot:      as.Slot,
			Score:     as.Candidate.Composite,
		}
	}
	return res.exhausted, nil
}

// costMatrix uses the provider's matrix when available and the straight-line
// estimate otherwise.
func (o *RouteOptimizer) costMatrix(
	ctx context.Context,
	points []domain.Coordinates,
	mode domain.TravelMode,
	optimizeFor domain.OptimizeFor,
) ([][]float64, error) {
	var matrix [][]ports.DistanceResult
	if mp, ok := o.provider.(ports.DistanceMatrixProvider); ok {
		m, err := mp.Matrix(ctx, points, mode)
		if err == nil && len(m) == len(points) {
			matrix = m
		} else if ctx.Err() == nil {
			logger.FromContext(ctx).Debug("distance matrix unavailable, optimizing on estimates", zap.Error(err))
		}
	}

	cost := make([][]float64, len(points))
	for i := range points {
		cost[i] = make([]float64, len(points))
		for j := range points {
			if i == j {
				continue
			}
			var r ports.DistanceResult
			if matrix != nil && len(matrix[i]) == len(points) {
				r = matrix[i][j]
			} else {
				meters, seconds, err := o.segments.Speeds().EstimateLeg(points[i], points[j], mode)
				if err != nil {
					return nil, fmt.Errorf("cost matrix: %w", err)
				}
				r = ports.DistanceResult{DistanceMeters: meters, DurationSeconds: seconds}
			}

			if optimizeFor == domain.OptimizeTime {
				cost[i][j] = float64(r.DurationSeconds)
			} else {
				cost[i][j] = float64(r.DistanceMeters)
			}
		}
	}
	return cost, nil
}
