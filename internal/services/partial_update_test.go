package services

import (
	"context"
	"errors"
	"fmt"
	"itinerary-route-service/internal/adapters/distance"
	"itinerary-route-service/internal/adapters/repositories"
	"itinerary-route-service/internal/domain"
	"itinerary-route-service/internal/ports"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPlan = "plan-1"

var (
	station = anchorAt("station", 126.96, 37.55)
	hotelA  = anchorAt("hotel", 126.97, 37.55)

	spot1 = domain.Candidate{ID: "s1", Name: "Spot 1", Categories: []string{"cafe"}, Location: domain.Coordinates{Lon: 126.98, Lat: 37.55}}
	spot2 = domain.Candidate{ID: "s2", Name: "Spot 2", Categories: []string{"museum"}, Location: domain.Coordinates{Lon: 126.99, Lat: 37.55}}
	spot3 = domain.Candidate{ID: "s3", Name: "Spot 3", Categories: []string{"bar"}, Location: domain.Coordinates{Lon: 127.00, Lat: 37.56}}
	spot4 = domain.Candidate{ID: "s4", Name: "Spot 4", Categories: []string{"gallery"}, Location: domain.Coordinates{Lon: 126.995, Lat: 37.545}}
)

type fixture struct {
	provider *distance.MockDistanceProvider
	store    *repositories.MemoryRouteStore
	catalog  *repositories.MemoryCatalog
	segments *SegmentBuilder
	coord    *PartialUpdateCoordinator
	version  int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	provider := distance.NewMockDistanceProvider([]distance.MockPair{
		{From: station.Coordinates, To: spot1.Location, Meters: 2000, Seconds: 180},
	})
	f := &fixture{
		provider: provider,
		store:    repositories.NewMemoryRouteStore(),
		catalog:  repositories.NewMemoryCatalog(),
		segments: NewSegmentBuilder(provider, domain.DefaultSpeeds()),
	}

	r := &domain.Route{
		ID:           "route-1",
		PlanID:       testPlan,
		Departure:    station,
		Hotel:        hotelA,
		TravelMode:   domain.TravelModeDriving,
		OptimizeFor:  domain.OptimizeDistance,
		DwellMinutes: 60,
		Days: []domain.ItineraryDay{
			{
				DayNumber: 1,
				StartKind: domain.AnchorDeparture,
				EndKind:   domain.AnchorHotel,
				StartAt:   testStart.Add(9 * time.Hour),
				Stops: []domain.Stop{
					{Candidate: spot1, Slot: domain.SlotMorning, Score: 0.7},
					{Candidate: spot2, Slot: domain.SlotAfternoon, Score: 0.6},
				},
			},
			{
				DayNumber: 2,
				StartKind: domain.AnchorHotel,
				EndKind:   domain.AnchorHotel,
				StartAt:   testStart.AddDate(0, 0, 1).Add(9 * time.Hour),
				Stops: []domain.Stop{
					{Candidate: spot3, Slot: domain.SlotEvening, Score: 0.5},
				},
			},
		},
	}
	for i := range r.Days {
		require.NoError(t, f.segments.RebuildDay(ctx, r, &r.Days[i]))
	}
	r.Recompute()
	require.NoError(t, r.Validate())

	v, err := f.store.Create(ctx, r)
	require.NoError(t, err)
	f.version = v

	require.NoError(t, f.catalog.PutMany(ctx, testPlan, []domain.Candidate{spot1, spot2, spot3, spot4}))
	f.coord = NewPartialUpdateCoordinator(f.store, f.catalog, f.segments, NewAnchorResolver(nil))
	return f
}

func (f *fixture) read(t *testing.T) *domain.Route {
	t.Helper()
	r, err := f.store.Read(context.Background(), testPlan, f.version)
	require.NoError(t, err)
	return r
}

func (f *fixture) apply(m domain.Mutation) (*domain.Route, error) {
	return f.coord.Apply(context.Background(), testPlan, f.version, m)
}

func TestTravelModeRecomputesDurationsFromDistance(t *testing.T) {
	f := newFixture(t)
	before := f.read(t)
	require.Equal(t, 2000, before.Days[0].Segments[0].DistanceMeters)

	got, err := f.apply(domain.TravelModeUpdate{Mode: domain.TravelModeWalking})
	require.NoError(t, err)

	seg := got.Days[0].Segments[0]
	assert.Equal(t, 2000, seg.DistanceMeters)
	assert.Equal(t, 1440, seg.DurationSeconds)
	assert.Equal(t, 24, seg.DurationSeconds/60)
	assert.Equal(t, domain.TravelModeWalking, seg.Mode)

	assert.Equal(t, before.TotalDistanceMeters, got.TotalDistanceMeters)
	assert.Greater(t, got.TotalDurationSeconds, before.TotalDurationSeconds)
	assert.Equal(t, 1, got.Revision)
	assert.Equal(t, got, f.read(t))
}

func TestTravelModeSameModeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	before := f.read(t)

	got, err := f.apply(domain.TravelModeUpdate{Mode: "driving"})
	require.NoError(t, err)

	assert.Equal(t, before, got)
	assert.Equal(t, 0, f.read(t).Revision, "no-op must not write")
}

func TestTravelModeTwiceToSameModeMatches(t *testing.T) {
	f := newFixture(t)

	first, err := f.apply(domain.TravelModeUpdate{Mode: domain.TravelModeBicycling})
	require.NoError(t, err)
	second, err := f.apply(domain.TravelModeUpdate{Mode: domain.TravelModeBicycling})
	require.NoError(t, err)

	assert.Equal(t, first.TotalDurationSeconds, second.TotalDurationSeconds)
	assert.Equal(t, first.TotalDistanceMeters, second.TotalDistanceMeters)
	assert.Equal(t, first.Days, second.Days)
}

func TestTravelModeRejectsUnknownMode(t *testing.T) {
	f := newFixture(t)
	_, err := f.apply(domain.TravelModeUpdate{Mode: "TELEPORT"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestDayReorderRoundTripIsIdentical(t *testing.T) {
	f := newFixture(t)
	before := f.read(t)
	calls := len(f.provider.LegCalls())

	got, err := f.apply(domain.DayReorder{DayNumber: 1, SpotIDs: []string{"s1", "s2"}})
	require.NoError(t, err)

	assert.Equal(t, before, got)
	assert.Equal(t, before, f.read(t))
	assert.Len(t, f.provider.LegCalls(), calls, "round trip must not hit the provider")
}

func TestDayReorderOfEmptyDayIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := f.read(t)
	r.Days = append(r.Days, domain.ItineraryDay{
		DayNumber: 3,
		StartKind: domain.AnchorHotel,
		EndKind:   domain.AnchorHotel,
		StartAt:   testStart.AddDate(0, 0, 2).Add(9 * time.Hour),
	})
	require.NoError(t, f.segments.RebuildDay(ctx, r, &r.Days[2]))
	r.Recompute()
	require.NoError(t, r.Validate())
	v, err := f.store.Create(ctx, r)
	require.NoError(t, err)

	before, err := f.store.Read(ctx, testPlan, v)
	require.NoError(t, err)

	for _, ids := range [][]string{nil, {}} {
		got, err := f.coord.Apply(ctx, testPlan, v, domain.DayReorder{DayNumber: 3, SpotIDs: ids})
		require.NoError(t, err, "%v", ids)
		assert.Equal(t, before, got)
	}

	after, err := f.store.Read(ctx, testPlan, v)
	require.NoError(t, err)
	assert.Equal(t, 0, after.Revision, "a no-op reorder is not written")

	_, err = f.coord.Apply(ctx, testPlan, v, domain.DayReorder{DayNumber: 3, SpotIDs: []string{"s1"}})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestDayReorderOmittingStopIsRejected(t *testing.T) {
	f := newFixture(t)
	before := f.read(t)

	_, err := f.apply(domain.DayReorder{DayNumber: 1, SpotIDs: []string{"s2"}})
	require.ErrorIs(t, err, domain.ErrValidation)

	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "spot_ids", verr.Field)
	assert.Equal(t, before, f.read(t))
}

func TestDayReorderRejectsForeignAndDuplicateIds(t *testing.T) {
	f := newFixture(t)
	for _, ids := range [][]string{{"s1", "s3"}, {"s1", "s1"}, {"s1", "s2", "s3"}} {
		_, err := f.apply(domain.DayReorder{DayNumber: 1, SpotIDs: ids})
		assert.ErrorIs(t, err, domain.ErrValidation, "%v", ids)
	}
}

func TestDayReorderUnknownDay(t *testing.T) {
	f := newFixture(t)
	_, err := f.apply(domain.DayReorder{DayNumber: 7, SpotIDs: []string{"s1"}})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDayReorderRegeneratesOnlyThatDay(t *testing.T) {
	f := newFixture(t)
	before := f.read(t)

	got, err := f.apply(domain.DayReorder{DayNumber: 1, SpotIDs: []string{"s2", "s1"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"s2", "s1"}, got.Days[0].SpotIDs())
	assert.Equal(t, 0, got.Days[0].Stops[0].Order)
	assert.Equal(t, domain.SlotAfternoon, got.Days[0].Stops[0].Slot)
	assert.Equal(t, "s2", got.Days[0].Segments[0].ToSpotID)
	assert.Equal(t, before.Days[1], got.Days[1])
	require.NoError(t, got.Validate())
	assert.Equal(t, got, f.read(t))
}

func TestSpotReplacementRegeneratesAdjacentSegments(t *testing.T) {
	f := newFixture(t)
	before := f.read(t)
	calls := len(f.provider.LegCalls())

	got, err := f.apply(domain.SpotReplacement{OldSpotID: "s2", NewSpotID: "s4"})
	require.NoError(t, err)

	day := got.Days[0]
	assert.Equal(t, []string{"s1", "s4"}, day.SpotIDs())
	assert.Equal(t, domain.SlotAfternoon, day.Stops[1].Slot)
	assert.Zero(t, day.Stops[1].Score)
	assert.Equal(t, before.Days[0].Segments[0], day.Segments[0])
	assert.Equal(t, "s4", day.Segments[1].ToSpotID)
	assert.Equal(t, "s4", day.Segments[2].FromSpotID)
	assert.Equal(t, before.Days[1], got.Days[1])

	legCalls := f.provider.LegCalls()[calls:]
	require.Len(t, legCalls, 1)
	assert.Equal(t, []domain.Coordinates{spot1.Location, spot4.Location, hotelA.Coordinates}, legCalls[0])

	require.NoError(t, got.Validate())
}

func TestSpotReplacementWithInlineCandidate(t *testing.T) {
	f := newFixture(t)
	inline := domain.Candidate{ID: "s9", Name: "Pop-up", Location: domain.Coordinates{Lon: 127.005, Lat: 37.565}}

	got, err := f.apply(domain.SpotReplacement{OldSpotID: "s3", NewSpotID: "s9", Candidate: &inline})
	require.NoError(t, err)
	assert.Equal(t, []string{"s9"}, got.Days[1].SpotIDs())
	assert.Equal(t, "Pop-up", got.Days[1].Segments[0].To)
}

func TestSpotReplacementErrors(t *testing.T) {
	f := newFixture(t)
	before := f.read(t)

	_, err := f.apply(domain.SpotReplacement{OldSpotID: "nope", NewSpotID: "s4"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.apply(domain.SpotReplacement{OldSpotID: "s1", NewSpotID: "unknown"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.apply(domain.SpotReplacement{OldSpotID: "s1", NewSpotID: "s3"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.apply(domain.SpotReplacement{OldSpotID: "s1", NewSpotID: "s1"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	assert.Equal(t, before, f.read(t))
}

func TestHotelLocationRegeneratesHotelHops(t *testing.T) {
	f := newFixture(t)
	before := f.read(t)
	calls := len(f.provider.LegCalls())

	got, err := f.apply(domain.HotelLocationUpdate{Hotel: "37.56,126.99"})
	require.NoError(t, err)

	assert.Equal(t, domain.Coordinates{Lon: 126.99, Lat: 37.56}, got.Hotel.Coordinates)
	assert.Equal(t, before.Departure, got.Departure)

	d1, d2 := got.Days[0], got.Days[1]
	assert.Equal(t, before.Days[0].Segments[0], d1.Segments[0], "departure hop is untouched")
	assert.Equal(t, before.Days[0].Segments[1], d1.Segments[1])
	assert.Equal(t, "37.56,126.99", d1.Segments[2].To)
	assert.Equal(t, "37.56,126.99", d2.Segments[0].From)
	assert.Equal(t, "37.56,126.99", d2.Segments[1].To)

	// day 1: last hop only; day 2: both hops in one lookup
	assert.Len(t, f.provider.LegCalls()[calls:], 2)
	require.NoError(t, got.Validate())
}

func TestHotelLocationSameHotelIsNoop(t *testing.T) {
	f := newFixture(t)
	r := f.read(t)
	r.Hotel = anchorAt("37.55,126.97", 126.97, 37.55)
	v, err := f.store.Create(context.Background(), r)
	require.NoError(t, err)

	got, err := f.coord.Apply(context.Background(), testPlan, v, domain.HotelLocationUpdate{Hotel: "37.55,126.97"})
	require.NoError(t, err)
	assert.Equal(t, 0, got.Revision)
}

func TestHotelAddressWithoutGeocoderIsRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.apply(domain.HotelLocationUpdate{Hotel: "Lotte Hotel Seoul"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestApplyRejectsBadInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.apply(nil)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.apply(domain.HotelLocationUpdate{})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.coord.Apply(context.Background(), "other-plan", 1, domain.TravelModeUpdate{Mode: domain.TravelModeWalking})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestApplyDetectsDriftedTotals(t *testing.T) {
	f := newFixture(t)
	r := f.read(t)
	r.TotalDistanceMeters += 5
	v, err := f.store.Create(context.Background(), r)
	require.NoError(t, err)

	_, err = f.coord.Apply(context.Background(), testPlan, v, domain.TravelModeUpdate{Mode: domain.TravelModeWalking})
	assert.ErrorIs(t, err, domain.ErrConsistencyViolation)
}

// racingStore commits a competing write right after the first read.
type racingStore struct {
	*repositories.MemoryRouteStore
	once sync.Once
}

func (s *racingStore) Read(ctx context.Context, planID string, version int) (*domain.Route, error) {
	r, err := s.MemoryRouteStore.Read(ctx, planID, version)
	if err != nil {
		return nil, err
	}
	s.once.Do(func() {
		_ = s.MemoryRouteStore.ReplaceSegments(ctx, ports.RoutePatch{
			PlanID:               planID,
			Version:              version,
			ExpectedRevision:     r.Revision,
			Hotel:                r.Hotel,
			TravelMode:           r.TravelMode,
			TotalDistanceMeters:  r.TotalDistanceMeters,
			TotalDurationSeconds: r.TotalDurationSeconds,
			TotalSpots:           r.TotalSpots,
			Estimated:            r.Estimated,
		})
	})
	return r, nil
}

func TestApplyFailsOnConcurrentWrite(t *testing.T) {
	f := newFixture(t)
	store := &racingStore{MemoryRouteStore: f.store}
	coord := NewPartialUpdateCoordinator(store, f.catalog, f.segments, NewAnchorResolver(nil))

	_, err := coord.Apply(context.Background(), testPlan, f.version, domain.TravelModeUpdate{Mode: domain.TravelModeWalking})
	require.ErrorIs(t, err, domain.ErrConsistencyViolation)

	after := f.read(t)
	assert.Equal(t, domain.TravelModeDriving, after.TravelMode, "failed mutation must not be stored")

	// a re-read and retry succeeds
	_, err = coord.Apply(context.Background(), testPlan, f.version, domain.TravelModeUpdate{Mode: domain.TravelModeWalking})
	require.NoError(t, err)
}

func TestApplySerializesPerRoute(t *testing.T) {
	f := newFixture(t)
	modes := []domain.TravelMode{
		domain.TravelModeWalking, domain.TravelModeDriving, domain.TravelModeBicycling, domain.TravelModeTransit,
	}

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var m domain.Mutation = domain.TravelModeUpdate{Mode: modes[i%len(modes)]}
			if i%5 == 0 {
				order := []string{"s1", "s2"}
				if i%10 == 0 {
					order = []string{"s2", "s1"}
				}
				m = domain.DayReorder{DayNumber: 1, SpotIDs: order}
			}
			if _, err := f.apply(m); err != nil {
				errs <- fmt.Errorf("mutation %d: %w", i, err)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}

	final := f.read(t)
	require.NoError(t, final.Validate())
	assert.Positive(t, final.Revision)
}
