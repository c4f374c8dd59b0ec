package services

import (
	"context"
	"errors"
	"fmt"
	"itinerary-route-service/internal/domain"
	"itinerary-route-service/internal/platform/logger"
	"itinerary-route-service/internal/platform/obs"
	"itinerary-route-service/internal/ports"
	"slices"

	"go.uber.org/zap"
)

// PartialUpdateCoordinator applies one scoped mutation to a stored route
// version. Calls are serialized per (plan, version); each call re-derives
// every aggregate bottom-up and commits the touched days and route totals
// in a single revision-checked store call.
type PartialUpdateCoordinator struct {
	store    ports.RouteVersionStore
	catalog  ports.CandidateCatalog
	segments *SegmentBuilder
	anchors  *AnchorResolver
	locks    *keyedMutex
}

func NewPartialUpdateCoordinator(
	store ports.RouteVersionStore,
	catalog ports.CandidateCatalog,
	segments *SegmentBuilder,
	anchors *AnchorResolver,
) *PartialUpdateCoordinator {
	return &PartialUpdateCoordinator{
		store:    store,
		catalog:  catalog,
		segments: segments,
		anchors:  anchors,
		locks:    newKeyedMutex(),
	}
}

// Apply validates m, applies it and returns the updated route. A mutation
// that changes nothing returns the stored route without writing.
func (c *PartialUpdateCoordinator) Apply(
	ctx context.Context,
	planID string,
	version int,
	m domain.Mutation,
) (_ *domain.Route, err error) {
	defer obs.Time(ctx, "partialUpdate.Apply")(&err)

	if m == nil {
		return nil, domain.NewValidationError("mutation", "must not be empty")
	}
	kind := m.Kind()
	defer func() { obs.PartialUpdates.WithLabelValues(string(kind), outcome(err)).Inc() }()

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("apply %s: %w", kind, err)
	}

	unlock := c.locks.Lock(routeKey(planID, version))
	defer unlock()

	stored, err := c.store.Read(ctx, planID, version)
	if err != nil {
		return nil, fmt.Errorf("apply %s: %w", kind, err)
	}
	if err := stored.CheckTotals(); err != nil {
		return nil, &domain.ConsistencyError{PlanID: planID, Version: version, Reason: err.Error()}
	}

	next := stored.Clone()
	touched, err := c.mutate(ctx, next, m)
	if err != nil {
		return nil, fmt.Errorf("apply %s: %w", kind, err)
	}
	if touched == nil {
		return stored, nil
	}

	next.Recompute()
	if err := next.Validate(); err != nil {
		return nil, fmt.Errorf("apply %s: mutated route is invalid: %w", kind, err)
	}

	patch := ports.RoutePatch{
		PlanID:               planID,
		Version:              version,
		ExpectedRevision:     stored.Revision,
		Hotel:                next.Hotel,
		TravelMode:           next.TravelMode,
		TotalDistanceMeters:  next.TotalDistanceMeters,
		TotalDurationSeconds: next.TotalDurationSeconds,
		TotalSpots:           next.TotalSpots,
		Estimated:            next.Estimated,
	}
	for _, i := range touched {
		patch.Days = append(patch.Days, next.Days[i])
	}
	if err := c.store.ReplaceSegments(ctx, patch); err != nil {
		return nil, fmt.Errorf("apply %s: %w", kind, err)
	}

	next.Revision = stored.Revision + 1
	logger.FromContext(ctx).Info("route partially updated",
		zap.String("plan_id", planID),
		zap.Int("version", version),
		zap.String("mutation", string(kind)),
		zap.Int("days_touched", len(touched)),
		zap.Int("revision", next.Revision),
	)
	return next, nil
}

// mutate changes r in place and returns the indices of the touched days;
// nil means the mutation was a no-op.
func (c *PartialUpdateCoordinator) mutate(ctx context.Context, r *domain.Route, m domain.Mutation) ([]int, error) {
	switch m := m.(type) {
	case domain.HotelLocationUpdate:
		return c.updateHotel(ctx, r, m)
	case domain.TravelModeUpdate:
		return c.updateTravelMode(r, m)
	case domain.DayReorder:
		return c.reorderDay(ctx, r, m)
	case domain.SpotReplacement:
		return c.replaceSpot(ctx, r, m)
	}
	return nil, domain.NewValidationError("mutation", "unsupported mutation %T", m)
}

// updateHotel regenerates only the hops touching the hotel: the first hop
// of days starting there and the last hop of days ending there.
func (c *PartialUpdateCoordinator) updateHotel(ctx context.Context, r *domain.Route, m domain.HotelLocationUpdate) ([]int, error) {
	hotel, err := c.anchors.Resolve(ctx, "hotel", m.Hotel)
	if err != nil {
		return nil, err
	}
	if hotel == r.Hotel {
		return nil, nil
	}
	r.Hotel = hotel

	touched := []int{}
	for i := range r.Days {
		d := &r.Days[i]
		var hops []int
		if d.StartKind == domain.AnchorHotel {
			hops = append(hops, 0)
		}
		if d.EndKind == domain.AnchorHotel {
			hops = append(hops, len(d.Segments)-1)
		}
		if len(hops) == 0 {
			continue
		}
		if err := c.segments.RebuildHops(ctx, r, d, hops); err != nil {
			return nil, err
		}
		touched = append(touched, i)
	}
	return touched, nil
}

// updateTravelMode keeps every distance and re-derives durations from the
// new mode's average speed.
func (c *PartialUpdateCoordinator) updateTravelMode(r *domain.Route, m domain.TravelModeUpdate) ([]int, error) {
	mode, err := domain.ParseTravelMode(string(m.Mode))
	if err != nil {
		return nil, err
	}
	if mode == r.TravelMode {
		return nil, nil
	}
	r.TravelMode = mode

	touched := make([]int, len(r.Days))
	for i := range r.Days {
		touched[i] = i
		for j := range r.Days[i].Segments {
			seg := &r.Days[i].Segments[j]
			secs, err := c.segments.Speeds().Duration(mode, seg.DistanceMeters)
			if err != nil {
				return nil, err
			}
			seg.DurationSeconds = secs
			seg.Mode = mode
			seg.Estimated = true
		}
	}
	return touched, nil
}

func (c *PartialUpdateCoordinator) reorderDay(ctx context.Context, r *domain.Route, m domain.DayReorder) ([]int, error) {
	d, ok := r.Day(m.DayNumber)
	if !ok {
		return nil, domain.NewNotFound("day", fmt.Sprint(m.DayNumber))
	}
	current := d.SpotIDs()
	if !m.IsPermutationOf(current) {
		return nil, domain.NewValidationError("spot_ids",
			"must be a permutation of day %d stops %v", m.DayNumber, current)
	}
	if slices.Equal(current, m.SpotIDs) {
		return nil, nil
	}

	byID := make(map[string]domain.Stop, len(d.Stops))
	for _, s := range d.Stops {
		byID[s.SpotID()] = s
	}
	for i, id := range m.SpotIDs {
		d.Stops[i] = byID[id]
	}

	if err := c.segments.RebuildDay(ctx, r, d); err != nil {
		return nil, err
	}
	return []int{m.DayNumber - 1}, nil
}

// replaceSpot swaps one stop in place, keeping its slot, and regenerates
// only the hop into it and the hop out of it.
func (c *PartialUpdateCoordinator) replaceSpot(ctx context.Context, r *domain.Route, m domain.SpotReplacement) ([]int, error) {
	di, si, ok := r.FindSpot(m.OldSpotID)
	if !ok {
		return nil, domain.NewNotFound("spot", m.OldSpotID)
	}
	if _, _, dup := r.FindSpot(m.NewSpotID); dup {
		return nil, domain.NewValidationError("new_spot_id", "%q is already on the route", m.NewSpotID)
	}

	var cand domain.Candidate
	if m.Candidate != nil {
		cand = *m.Candidate
	} else {
		var err error
		cand, err = c.catalog.Get(ctx, r.PlanID, m.NewSpotID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, domain.NewNotFound("spot", m.NewSpotID)
			}
			return nil, err
		}
	}

	d := &r.Days[di]
	d.Stops[si].Candidate = cand
	// The replacement was never scored against the traveller's preferences.
	d.Stops[si].Score = 0

	// Stop si sits between points si and si+1 of the day, i.e. hops si and si+1.
	if err := c.segments.RebuildHops(ctx, r, d, []int{si, si + 1}); err != nil {
		return nil, err
	}
	return []int{di}, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrConsistencyViolation):
		return "conflict"
	}
	return "error"
}
