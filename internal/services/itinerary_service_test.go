package services

import (
	"context"
	"errors"
	"fmt"
	"itinerary-route-service/internal/adapters/distance"
	"itinerary-route-service/internal/adapters/repositories"
	"itinerary-route-service/internal/domain"
	"itinerary-route-service/internal/ports"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*ItineraryService, *repositories.MemoryRouteStore) {
	t.Helper()
	store := repositories.NewMemoryRouteStore()
	return newTestServiceWith(t, store, repositories.NewMemoryCatalog()), store
}

func newTestServiceWith(t *testing.T, store ports.RouteVersionStore, catalog ports.CandidateCatalog) *ItineraryService {
	t.Helper()
	provider := distance.NewMockDistanceProvider(nil)
	segments := NewSegmentBuilder(provider, domain.DefaultSpeeds())
	anchors := NewAnchorResolver(nil)

	return NewItineraryService(
		NewScoreEngine(4),
		newTestAllocator(t),
		NewRouteOptimizer(provider, segments, testOptimizerConfig()),
		NewPartialUpdateCoordinator(store, catalog, segments, anchors),
		anchors,
		store,
		catalog,
		ItineraryConfig{TopN: 12, MaxStopsPerDay: 8},
	)
}

func seoulCandidates(n int) []domain.Candidate {
	categories := []string{"cafe", "museum", "restaurant", "bar", "park", "shopping", "tourist_attraction"}
	out := make([]domain.Candidate, n)
	for i := range out {
		out[i] = domain.Candidate{
			ID:          fmt.Sprintf("spot-%02d", i),
			Name:        fmt.Sprintf("Spot %d", i),
			Categories:  []string{categories[i%len(categories)]},
			Location:    domain.Coordinates{Lon: 126.95 + 0.007*float64(i%6), Lat: 37.54 + 0.006*float64(i/6)},
			PriceTier:   1 + i%4,
			Rating:      3.5 + 0.1*float64(i%15),
			RatingCount: 20 * (i + 1),
			Similarity:  ptr(0.4 + 0.03*float64(i%10)),
		}
	}
	return out
}

func computeRequest(n, days int) ComputeRequest {
	return ComputeRequest{
		PlanID:      testPlan,
		Candidates:  seoulCandidates(n),
		Preferences: domain.Preferences{Budget: 60000, Atmosphere: domain.AtmosphereOrdinary},
		Weights:     domain.DefaultWeights(),
		Settings: Settings{
			TravelMode: domain.TravelModeWalking,
			Departure:  "37.5547,126.9707",
			Hotel:      "37.5600,126.9800",
			Days:       days,
			StartDate:  testStart,
		},
	}
}

func TestComputeRouteMaterializesAndStores(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	r, err := svc.ComputeRoute(ctx, computeRequest(20, 2))
	require.NoError(t, err)

	assert.Equal(t, 1, r.Version)
	assert.Equal(t, 2, r.TotalDays())
	assert.Equal(t, 12, r.TotalSpots, "top-N caps the selection")
	require.NoError(t, r.Validate())

	stored, err := svc.GetRoute(ctx, testPlan, 1)
	require.NoError(t, err)
	assert.Equal(t, r.TotalDistanceMeters, stored.TotalDistanceMeters)
	assert.Equal(t, r.Days, stored.Days)

	for _, d := range r.Days {
		assert.LessOrEqual(t, len(d.Stops), 8)
		for _, s := range d.Stops {
			assert.Positive(t, s.Score)
		}
	}
}

func TestComputeRouteCreatesNewVersions(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.ComputeRoute(ctx, computeRequest(6, 1))
	require.NoError(t, err)
	second, err := svc.ComputeRoute(ctx, computeRequest(6, 1))
	require.NoError(t, err)

	assert.Equal(t, 1, first.Version)
	assert.Equal(t, 2, second.Version)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestComputeRouteValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*ComputeRequest)
	}{
		{"empty plan", func(r *ComputeRequest) { r.PlanID = " " }},
		{"no candidates", func(r *ComputeRequest) { r.Candidates = nil }},
		{"duplicate ids", func(r *ComputeRequest) { r.Candidates[1].ID = r.Candidates[0].ID }},
		{"weights", func(r *ComputeRequest) { r.Weights = domain.Weights{Price: 1, Rating: 1} }},
		{"travel mode", func(r *ComputeRequest) { r.TravelMode = "HOVERCRAFT" }},
		{"optimize for", func(r *ComputeRequest) { r.OptimizeFor = "scenery" }},
		{"days", func(r *ComputeRequest) { r.Days = 0 }},
		{"departure", func(r *ComputeRequest) { r.Departure = "" }},
		{"address without geocoder", func(r *ComputeRequest) { r.Hotel = "Lotte Hotel" }},
		{"atmosphere", func(r *ComputeRequest) { r.Preferences.Atmosphere = "spooky" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := computeRequest(6, 1)
			tt.mutate(&req)
			_, err := svc.ComputeRoute(ctx, req)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestComputeRouteWithoutHotelUsesDeparture(t *testing.T) {
	svc, _ := newTestService(t)
	req := computeRequest(6, 2)
	req.Hotel = ""

	r, err := svc.ComputeRoute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, r.Departure, r.Hotel)
}

func TestRegenerateKeepsSelectedCandidates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	src, err := svc.ComputeRoute(ctx, computeRequest(15, 2))
	require.NoError(t, err)

	next, err := svc.Regenerate(ctx, testPlan, src.Version, Settings{
		TravelMode: domain.TravelModeDriving,
		Days:       3,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, next.Version)
	assert.Equal(t, 3, next.TotalDays())
	assert.Equal(t, domain.TravelModeDriving, next.TravelMode)
	assert.Equal(t, src.Departure.Coordinates, next.Departure.Coordinates)
	assert.Equal(t, src.Hotel.Coordinates, next.Hotel.Coordinates)

	spots := func(r *domain.Route) []string {
		var ids []string
		for _, d := range r.Days {
			ids = append(ids, d.SpotIDs()...)
		}
		slices.Sort(ids)
		return ids
	}
	assert.Equal(t, spots(src), spots(next))

	// the source version is untouched
	again, err := svc.GetRoute(ctx, testPlan, src.Version)
	require.NoError(t, err)
	assert.Equal(t, src.TravelMode, again.TravelMode)
	assert.Equal(t, src.TotalDays(), again.TotalDays())
}

func TestRegenerateUnknownVersion(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Regenerate(context.Background(), testPlan, 3, Settings{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestApplyPartialUpdateThroughService(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	req := computeRequest(10, 1)
	req.TopN = 6
	r, err := svc.ComputeRoute(ctx, req)
	require.NoError(t, err)

	order := slices.Clone(r.Days[0].SpotIDs())
	slices.Reverse(order)
	got, err := svc.ApplyPartialUpdate(ctx, testPlan, r.Version, domain.DayReorder{DayNumber: 1, SpotIDs: order})
	require.NoError(t, err)
	assert.Equal(t, order, got.Days[0].SpotIDs())
	assert.Equal(t, r.Version, got.Version)

	stored, err := store.Read(ctx, testPlan, r.Version)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Revision)
	require.NoError(t, stored.Validate())

	// a candidate that missed the top-N cut can still be swapped in
	var unused string
	for _, c := range req.Candidates {
		if _, _, on := stored.FindSpot(c.ID); !on {
			unused = c.ID
			break
		}
	}
	require.NotEmpty(t, unused)

	replaced, err := svc.ApplyPartialUpdate(ctx, testPlan, r.Version,
		domain.SpotReplacement{OldSpotID: order[0], NewSpotID: unused})
	require.NoError(t, err)
	assert.Equal(t, unused, replaced.Days[0].Stops[0].SpotID())
	assert.Equal(t, 2, replaced.Revision)
}

func TestListRoutesAndStatistics(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.ListRoutes(ctx, testPlan)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	stats, err := svc.Statistics(ctx, testPlan)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalVersions)
	assert.Nil(t, stats.Latest)

	_, err = svc.ComputeRoute(ctx, computeRequest(6, 1))
	require.NoError(t, err)
	second, err := svc.Regenerate(ctx, testPlan, 1, Settings{Days: 2})
	require.NoError(t, err)

	routes, err := svc.ListRoutes(ctx, testPlan)
	require.NoError(t, err)
	require.Len(t, routes, 2)
	assert.Equal(t, 1, routes[0].Version)
	assert.Equal(t, 2, routes[1].Version)

	stats, err = svc.Statistics(ctx, testPlan)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalVersions)
	require.NotNil(t, stats.Latest)
	assert.Equal(t, second.Version, stats.Latest.Version)
	assert.Equal(t, second.TotalDistanceMeters, stats.Latest.TotalDistanceMeters)
	assert.Equal(t, 2, stats.Latest.TotalDays())
}

type failingCreateStore struct{ *repositories.MemoryRouteStore }

func (failingCreateStore) Create(context.Context, *domain.Route) (int, error) {
	return 0, errors.New("disk full")
}

type failingCatalog struct{ *repositories.MemoryCatalog }

func (failingCatalog) PutMany(context.Context, string, []domain.Candidate) error {
	return errors.New("catalog down")
}

func TestComputeRouteFailureLeavesNoCandidatePool(t *testing.T) {
	catalog := repositories.NewMemoryCatalog()
	svc := newTestServiceWith(t, failingCreateStore{repositories.NewMemoryRouteStore()}, catalog)
	ctx := context.Background()

	req := computeRequest(6, 1)
	_, err := svc.ComputeRoute(ctx, req)
	require.Error(t, err)

	_, err = catalog.Get(ctx, testPlan, req.Candidates[0].ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// invalid input fails before anything is stored as well
	req.Candidates[0].PriceTier = 9
	_, err = svc.ComputeRoute(ctx, req)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = catalog.Get(ctx, testPlan, req.Candidates[1].ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestComputeRouteSurvivesCatalogFailure(t *testing.T) {
	store := repositories.NewMemoryRouteStore()
	svc := newTestServiceWith(t, store, failingCatalog{repositories.NewMemoryCatalog()})

	r, err := svc.ComputeRoute(context.Background(), computeRequest(6, 1))
	require.NoError(t, err)

	stored, err := store.Read(context.Background(), testPlan, r.Version)
	require.NoError(t, err)
	assert.Equal(t, r.TotalSpots, stored.TotalSpots)
}
