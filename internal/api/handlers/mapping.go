package handlers

import (
	"itinerary-route-service/internal/api/dto"
	"itinerary-route-service/internal/domain"
	"itinerary-route-service/internal/services"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
)

const dateLayout = "2006-01-02"

func toComputeRequest(planID string, req dto.ComputeRouteRequest) (services.ComputeRequest, error) {
	settings, err := toSettings(req.SettingsRequest)
	if err != nil {
		return services.ComputeRequest{}, err
	}

	candidates := make([]domain.Candidate, 0, len(req.Candidates))
	for _, c := range req.Candidates {
		cand, err := toCandidate(c)
		if err != nil {
			return services.ComputeRequest{}, err
		}
		candidates = append(candidates, cand)
	}

	weights := domain.DefaultWeights()
	if req.Weights != nil {
		weights = domain.Weights{
			Price:      req.Weights.Price,
			Rating:     req.Weights.Rating,
			Congestion: req.Weights.Congestion,
			Similarity: req.Weights.Similarity,
		}
	}

	return services.ComputeRequest{
		PlanID:     planID,
		Candidates: candidates,
		Preferences: domain.Preferences{
			Budget:     req.Preferences.Budget,
			Atmosphere: domain.Atmosphere(req.Preferences.Atmosphere),
		},
		Weights:  weights,
		TopN:     req.TopN,
		Settings: settings,
	}, nil
}

func toSettings(req dto.SettingsRequest) (services.Settings, error) {
	s := services.Settings{
		TravelMode:        domain.TravelMode(strings.ToUpper(strings.TrimSpace(req.TravelMode))),
		OptimizeFor:       domain.OptimizeFor(req.OptimizeFor),
		Departure:         req.Departure,
		Hotel:             req.Hotel,
		Days:              req.Days,
		ReturnToDeparture: req.ReturnToDeparture,
	}
	if d := strings.TrimSpace(req.StartDate); d != "" {
		t, err := time.Parse(dateLayout, d)
		if err != nil {
			return services.Settings{}, domain.NewValidationError("start_date", "expected YYYY-MM-DD, got %q", d)
		}
		s.StartDate = t
	}
	return s, nil
}

func toCandidate(c dto.CandidateRequest) (domain.Candidate, error) {
	cand := domain.Candidate{
		ID:          strings.TrimSpace(c.ID),
		Name:        c.Name,
		Categories:  c.Categories,
		Location:    domain.Coordinates{Lon: c.Lng, Lat: c.Lat},
		PriceTier:   c.PriceTier,
		Rating:      c.Rating,
		RatingCount: c.RatingCount,
		Similarity:  c.Similarity,
		Congestion:  c.Congestion,
	}
	if c.CloseTime != "" {
		m, err := parseClock(c.CloseTime)
		if err != nil {
			return domain.Candidate{}, domain.NewValidationError("candidate.close_time", "%q: %v", c.ID, err)
		}
		cand.CloseMinute = &m
	}
	return cand, nil
}

// parseClock parses "HH:MM" into minutes after midnight. Hours up to 47
// are accepted for venues closing after midnight.
func parseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, strconv.ErrSyntax
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, err
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, err
	}
	if h < 0 || h > 47 || m < 0 || m > 59 {
		return 0, strconv.ErrRange
	}
	return h*60 + m, nil
}

func toMutation(req dto.PartialUpdateRequest) (domain.Mutation, error) {
	switch domain.MutationKind(strings.ToLower(strings.TrimSpace(req.Type))) {
	case domain.MutationHotelLocation:
		return domain.HotelLocationUpdate{Hotel: req.Hotel}, nil
	case domain.MutationTravelMode:
		return domain.TravelModeUpdate{Mode: domain.TravelMode(strings.ToUpper(strings.TrimSpace(req.TravelMode)))}, nil
	case domain.MutationDayReorder:
		return domain.DayReorder{DayNumber: req.DayNumber, SpotIDs: req.SpotIDs}, nil
	case domain.MutationSpotReplacement:
		m := domain.SpotReplacement{OldSpotID: req.OldSpotID, NewSpotID: req.NewSpotID}
		if req.Candidate != nil {
			c, err := toCandidate(*req.Candidate)
			if err != nil {
				return nil, err
			}
			m.Candidate = &c
		}
		return m, nil
	}
	return nil, domain.NewValidationError("type", "unknown partial update type %q", req.Type)
}

func toRouteSummary(r *domain.Route) dto.RouteSummary {
	return dto.RouteSummary{
		ID:                   r.ID,
		PlanID:               r.PlanID,
		Version:              r.Version,
		Revision:             r.Revision,
		TotalDays:            r.TotalDays(),
		Departure:            r.Departure.Label,
		Hotel:                r.Hotel.Label,
		TravelMode:           string(r.TravelMode),
		OptimizeFor:          string(r.OptimizeFor),
		TotalDistanceKm:      r.TotalDistanceKm(),
		TotalDurationMinutes: r.TotalDurationMinutes(),
		TotalSpots:           r.TotalSpots,
		Estimated:            r.Estimated,
		LowConfidence:        r.LowConfidence,
		CalculatedAt:         r.CalculatedAt,
	}
}

func toRouteRecord(r *domain.Route) dto.RouteRecord {
	rec := dto.RouteRecord{
		Route:    toRouteSummary(r),
		Days:     make([]dto.DayRecord, 0, len(r.Days)),
		Segments: []dto.SegmentRecord{},
	}

	for _, d := range r.Days {
		rec.Days = append(rec.Days, dto.DayRecord{
			DayNumber:       d.DayNumber,
			Start:           r.Anchor(d.StartKind).Label,
			End:             r.Anchor(d.EndKind).Label,
			StartAt:         d.StartAt,
			DistanceKm:      d.DistanceKm(),
			DurationMinutes: d.DurationMinutes(),
			Stops: lo.Map(d.Stops, func(s domain.Stop, _ int) dto.StopRecord {
				return dto.StopRecord{
					SpotID:      s.SpotID(),
					Name:        s.Candidate.Name,
					Order:       s.Order,
					Slot:        string(s.Slot),
					ArrivalTime: s.ArriveAt,
					Score:       s.Score,
				}
			}),
		})
		for _, seg := range d.Segments {
			rec.Segments = append(rec.Segments, dto.SegmentRecord{
				DayNumber:  d.DayNumber,
				Order:      seg.Order,
				From:       seg.From,
				To:         seg.To,
				ToSpotID:   seg.ToSpotID,
				DistanceM:  seg.DistanceMeters,
				DurationS:  seg.DurationSeconds,
				TravelMode: string(seg.Mode),
				Estimated:  seg.Estimated,
			})
		}
	}
	return rec
}
