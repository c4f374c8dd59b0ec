package repositories

import (
	"context"
	"fmt"
	"itinerary-route-service/internal/domain"
	"itinerary-route-service/internal/ports"

	"github.com/puzpuzpuz/xsync/v3"
)

// MemoryRouteStore keeps route versions in process memory. Values are deep
// copied on the way in and out.
type MemoryRouteStore struct {
	mu     *xsync.RBMutex
	routes map[string][]*domain.Route // plan id -> versions, index = version-1
}

func NewMemoryRouteStore() *MemoryRouteStore {
	return &MemoryRouteStore{
		mu:     xsync.NewRBMutex(),
		routes: make(map[string][]*domain.Route),
	}
}

func (s *MemoryRouteStore) Create(ctx context.Context, route *domain.Route) (int, error) {
	if route == nil {
		return 0, fmt.Errorf("create route: route is nil")
	}
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("create route: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := route.Clone()
	stored.Version = len(s.routes[route.PlanID]) + 1
	stored.Revision = 0
	s.routes[route.PlanID] = append(s.routes[route.PlanID], stored)
	return stored.Version, nil
}

func (s *MemoryRouteStore) Read(ctx context.Context, planID string, version int) (*domain.Route, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("read route: %w", err)
	}

	token := s.mu.RLock()
	defer s.mu.RUnlock(token)

	r, ok := s.lookup(planID, version)
	if !ok {
		return nil, domain.NewNotFound("route", routeID(planID, version))
	}
	return r.Clone(), nil
}

func (s *MemoryRouteStore) List(ctx context.Context, planID string) ([]*domain.Route, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("list routes: %w", err)
	}

	token := s.mu.RLock()
	defer s.mu.RUnlock(token)

	versions := s.routes[planID]
	out := make([]*domain.Route, len(versions))
	for i, r := range versions {
		out[i] = r.Clone()
	}
	return out, nil
}

// ReplaceSegments swaps in the patched days and route fields as one unit.
// The result must still sum up; otherwise nothing is stored.
func (s *MemoryRouteStore) ReplaceSegments(ctx context.Context, patch ports.RoutePatch) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("replace segments: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.lookup(patch.PlanID, patch.Version)
	if !ok {
		return domain.NewNotFound("route", routeID(patch.PlanID, patch.Version))
	}
	if current.Revision != patch.ExpectedRevision {
		return &domain.ConsistencyError{
			PlanID:  patch.PlanID,
			Version: patch.Version,
			Reason:  fmt.Sprintf("revision is %d, expected %d", current.Revision, patch.ExpectedRevision),
		}
	}

	next := current.Clone()
	for _, d := range patch.Days {
		if d.DayNumber < 1 || d.DayNumber > len(next.Days) {
			return domain.NewNotFound("day", fmt.Sprint(d.DayNumber))
		}
		next.Days[d.DayNumber-1] = d.Clone()
	}
	next.Hotel = patch.Hotel
	next.TravelMode = patch.TravelMode
	next.TotalDistanceMeters = patch.TotalDistanceMeters
	next.TotalDurationSeconds = patch.TotalDurationSeconds
	next.TotalSpots = patch.TotalSpots
	next.Estimated = patch.Estimated

	if err := next.CheckTotals(); err != nil {
		return &domain.ConsistencyError{PlanID: patch.PlanID, Version: patch.Version, Reason: err.Error()}
	}

	next.Revision++
	s.routes[patch.PlanID][patch.Version-1] = next
	return nil
}

func (s *MemoryRouteStore) lookup(planID string, version int) (*domain.Route, bool) {
	versions := s.routes[planID]
	if version < 1 || version > len(versions) {
		return nil, false
	}
	return versions[version-1], true
}

func routeID(planID string, version int) string {
	return fmt.Sprintf("%s/v%d", planID, version)
}
