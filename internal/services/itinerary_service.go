package services

import (
	"context"
	"fmt"
	"itinerary-route-service/internal/domain"
	"itinerary-route-service/internal/platform/logger"
	"itinerary-route-service/internal/platform/obs"
	"itinerary-route-service/internal/ports"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Settings are the route-shaping inputs shared by compute and regenerate.
type Settings struct {
	TravelMode  domain.TravelMode
	OptimizeFor domain.OptimizeFor
	// Departure and Hotel are "lat,lng" or an address. Hotel may be empty.
	Departure         string
	Hotel             string
	Days              int
	StartDate         time.Time
	ReturnToDeparture bool
}

type ComputeRequest struct {
	PlanID      string
	Candidates  []domain.Candidate
	Preferences domain.Preferences
	Weights     domain.Weights
	// TopN <= 0 uses the service default.
	TopN int
	Settings
}

type ItineraryConfig struct {
	TopN              int
	MaxStopsPerDay    int
	DefaultTravelMode domain.TravelMode
}

// ItineraryService runs the candidates → scores → slots → days → route
// pipeline and exposes the stored routes.
type ItineraryService struct {
	scorer    *ScoreEngine
	allocator *SlotAllocator
	optimizer *RouteOptimizer
	updates   *PartialUpdateCoordinator
	anchors   *AnchorResolver
	store     ports.RouteVersionStore
	catalog   ports.CandidateCatalog
	cfg       ItineraryConfig
}

func NewItineraryService(
	scorer *ScoreEngine,
	allocator *SlotAllocator,
	optimizer *RouteOptimizer,
	updates *PartialUpdateCoordinator,
	anchors *AnchorResolver,
	store ports.RouteVersionStore,
	catalog ports.CandidateCatalog,
	cfg ItineraryConfig,
) *ItineraryService {
	if cfg.DefaultTravelMode == "" {
		cfg.DefaultTravelMode = domain.TravelModeWalking
	}
	return &ItineraryService{
		scorer:    scorer,
		allocator: allocator,
		optimizer: optimizer,
		updates:   updates,
		anchors:   anchors,
		store:     store,
		catalog:   catalog,
		cfg:       cfg,
	}
}

// ComputeRoute materializes a new route version for the plan.
func (s *ItineraryService) ComputeRoute(ctx context.Context, req ComputeRequest) (_ *domain.Route, err error) {
	defer obs.Time(ctx, "itinerary.ComputeRoute")(&err)
	defer func() { obs.RouteComputations.WithLabelValues("compute", status(err)).Inc() }()

	if strings.TrimSpace(req.PlanID) == "" {
		return nil, domain.NewValidationError("plan_id", "must not be empty")
	}
	if len(req.Candidates) == 0 {
		return nil, domain.NewValidationError("candidates", "must not be empty")
	}
	seen := make(map[string]struct{}, len(req.Candidates))
	for _, c := range req.Candidates {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("compute route: %w", err)
		}
		if _, dup := seen[c.ID]; dup {
			return nil, domain.NewValidationError("candidates", "duplicate candidate id %q", c.ID)
		}
		seen[c.ID] = struct{}{}
	}

	settings, departure, hotel, err := s.resolveSettings(ctx, req.Settings)
	if err != nil {
		return nil, fmt.Errorf("compute route: %w", err)
	}

	topN := req.TopN
	if topN <= 0 {
		topN = s.cfg.TopN
	}
	scored, err := s.scorer.Score(ctx, req.Candidates, req.Weights, req.Preferences, topN)
	if err != nil {
		return nil, fmt.Errorf("compute route: %w", err)
	}

	route, err := s.materialize(ctx, req.PlanID, scored, settings, departure, hotel)
	if err != nil {
		return nil, err
	}

	// A missing pool only affects swaps to spots that missed the cut.
	if err := s.catalog.PutMany(ctx, req.PlanID, req.Candidates); err != nil {
		logger.FromContext(ctx).Error("candidate pool not stored",
			zap.String("plan_id", req.PlanID),
			zap.Int("version", route.Version),
			zap.Error(err),
		)
	}
	return route, nil
}

// Regenerate builds a new version from the candidates selected in
// sourceVersion, re-allocating slots and re-optimizing with new settings.
// Empty settings fields inherit the source version's values.
func (s *ItineraryService) Regenerate(
	ctx context.Context,
	planID string,
	sourceVersion int,
	next Settings,
) (_ *domain.Route, err error) {
	defer obs.Time(ctx, "itinerary.Regenerate")(&err)
	defer func() { obs.RouteComputations.WithLabelValues("regenerate", status(err)).Inc() }()

	source, err := s.store.Read(ctx, planID, sourceVersion)
	if err != nil {
		return nil, fmt.Errorf("regenerate: %w", err)
	}

	if next.TravelMode == "" {
		next.TravelMode = source.TravelMode
	}
	if next.OptimizeFor == "" {
		next.OptimizeFor = source.OptimizeFor
	}
	if strings.TrimSpace(next.Departure) == "" {
		next.Departure = anchorString(source.Departure)
	}
	if strings.TrimSpace(next.Hotel) == "" {
		next.Hotel = anchorString(source.Hotel)
	}
	if next.Days == 0 {
		next.Days = source.TotalDays()
	}
	if next.StartDate.IsZero() && len(source.Days) > 0 {
		next.StartDate = source.Days[0].StartAt
	}

	settings, departure, hotel, err := s.resolveSettings(ctx, next)
	if err != nil {
		return nil, fmt.Errorf("regenerate: %w", err)
	}

	var scored []domain.ScoredCandidate
	for _, d := range source.Days {
		for _, st := range d.Stops {
			scored = append(scored, domain.ScoredCandidate{Candidate: st.Candidate, Composite: st.Score})
		}
	}
	if len(scored) == 0 {
		return nil, domain.NewValidationError("source_version", "route %s v%d has no stops", planID, sourceVersion)
	}

	return s.materialize(ctx, planID, scored, settings, departure, hotel)
}

func (s *ItineraryService) ApplyPartialUpdate(
	ctx context.Context,
	planID string,
	version int,
	m domain.Mutation,
) (*domain.Route, error) {
	return s.updates.Apply(ctx, planID, version, m)
}

func (s *ItineraryService) GetRoute(ctx context.Context, planID string, version int) (*domain.Route, error) {
	r, err := s.store.Read(ctx, planID, version)
	if err != nil {
		return nil, fmt.Errorf("get route: %w", err)
	}
	return r, nil
}

// ListRoutes returns every version of the plan, oldest first.
func (s *ItineraryService) ListRoutes(ctx context.Context, planID string) ([]*domain.Route, error) {
	routes, err := s.store.List(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("list routes: %w", err)
	}
	if len(routes) == 0 {
		return nil, domain.NewNotFound("routes for plan", planID)
	}
	return routes, nil
}

// RouteStatistics summarizes the stored versions of a plan. Latest is nil
// when the plan has no routes.
type RouteStatistics struct {
	PlanID        string
	TotalVersions int
	Latest        *domain.Route
}

func (s *ItineraryService) Statistics(ctx context.Context, planID string) (RouteStatistics, error) {
	routes, err := s.store.List(ctx, planID)
	if err != nil {
		return RouteStatistics{}, fmt.Errorf("route statistics: %w", err)
	}
	stats := RouteStatistics{PlanID: planID, TotalVersions: len(routes)}
	if len(routes) > 0 {
		stats.Latest = routes[len(routes)-1]
	}
	return stats, nil
}

func (s *ItineraryService) materialize(
	ctx context.Context,
	planID string,
	scored []domain.ScoredCandidate,
	settings Settings,
	departure domain.Anchor,
	hotel *domain.Anchor,
) (*domain.Route, error) {
	assignments := s.allocator.Allocate(ctx, scored)

	center := departure.Coordinates
	if hotel != nil {
		center = hotel.Coordinates
	}
	days, dropped, err := GroupByDay(assignments, settings.Days, center, s.cfg.MaxStopsPerDay)
	if err != nil {
		return nil, err
	}
	if len(dropped) > 0 {
		logger.FromContext(ctx).Info("candidates exceed trip capacity, lowest scores dropped",
			zap.String("plan_id", planID),
			zap.Strings("dropped", lo.Map(dropped, func(a domain.SlotAssignment, _ int) string {
				return a.Candidate.ID
			})),
		)
	}

	route, err := s.optimizer.Optimize(ctx, OptimizeRequest{
		PlanID:            planID,
		Days:              days,
		Departure:         departure,
		Hotel:             hotel,
		TravelMode:        settings.TravelMode,
		OptimizeFor:       settings.OptimizeFor,
		ReturnToDeparture: settings.ReturnToDeparture,
		StartDate:         settings.StartDate,
	})
	if err != nil {
		return nil, err
	}

	version, err := s.store.Create(ctx, route)
	if err != nil {
		return nil, fmt.Errorf("store route: %w", err)
	}
	route.Version = version

	logger.FromContext(ctx).Info("route materialized",
		zap.String("plan_id", planID),
		zap.Int("version", version),
		zap.Int("days", route.TotalDays()),
		zap.Int("spots", route.TotalSpots),
		zap.Int("distance_m", route.TotalDistanceMeters),
		zap.Bool("estimated", route.Estimated),
		zap.Bool("low_confidence", route.LowConfidence),
	)
	return route, nil
}

// resolveSettings validates settings and resolves the anchors. The returned
// hotel is nil when none was given.
func (s *ItineraryService) resolveSettings(
	ctx context.Context,
	in Settings,
) (Settings, domain.Anchor, *domain.Anchor, error) {
	out := in

	mode := string(in.TravelMode)
	if mode == "" {
		mode = string(s.cfg.DefaultTravelMode)
	}
	m, err := domain.ParseTravelMode(mode)
	if err != nil {
		return out, domain.Anchor{}, nil, err
	}
	out.TravelMode = m

	of, err := domain.ParseOptimizeFor(string(in.OptimizeFor))
	if err != nil {
		return out, domain.Anchor{}, nil, err
	}
	out.OptimizeFor = of

	if in.Days < 1 {
		return out, domain.Anchor{}, nil, domain.NewValidationError("days", "must be >= 1, got %d", in.Days)
	}
	if out.StartDate.IsZero() {
		out.StartDate = time.Now().UTC()
	}

	departure, err := s.anchors.Resolve(ctx, "departure", in.Departure)
	if err != nil {
		return out, domain.Anchor{}, nil, err
	}

	var hotel *domain.Anchor
	if strings.TrimSpace(in.Hotel) != "" {
		h, err := s.anchors.Resolve(ctx, "hotel", in.Hotel)
		if err != nil {
			return out, domain.Anchor{}, nil, err
		}
		hotel = &h
	}
	return out, departure, hotel, nil
}

// anchorString renders an anchor so that it resolves back to the same
// coordinates without a geocoder.
func anchorString(a domain.Anchor) string {
	if _, ok := domain.ParseAnchor(a.Label); ok {
		return a.Label
	}
	return fmt.Sprintf("%.7f,%.7f", a.Coordinates.Lat, a.Coordinates.Lon)
}

func status(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}
