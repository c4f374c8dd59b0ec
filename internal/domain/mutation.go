package domain

import (
	"slices"
	"strings"
)

type MutationKind string

const (
	MutationHotelLocation   MutationKind = "hotel_location"
	MutationTravelMode      MutationKind = "travel_mode"
	MutationDayReorder      MutationKind = "day_reorder"
	MutationSpotReplacement MutationKind = "spot_replacement"
)

// Mutation is one scoped change to a materialized route.
// Validate only checks the payload shape; checks against the stored route
// happen when the mutation is applied.
type Mutation interface {
	Kind() MutationKind
	Validate() error
}

// HotelLocationUpdate replaces the hotel anchor. Hotel is either "lat,lng"
// or an address resolved by a geocoder.
type HotelLocationUpdate struct {
	Hotel string
}

func (HotelLocationUpdate) Kind() MutationKind { return MutationHotelLocation }

func (m HotelLocationUpdate) Validate() error {
	if strings.TrimSpace(m.Hotel) == "" {
		return NewValidationError("hotel", "must not be empty")
	}
	return nil
}

type TravelModeUpdate struct {
	Mode TravelMode
}

func (TravelModeUpdate) Kind() MutationKind { return MutationTravelMode }

func (m TravelModeUpdate) Validate() error {
	_, err := ParseTravelMode(string(m.Mode))
	return err
}

// DayReorder sets a new stop order for one day. SpotIDs must be a
// permutation of the day's current stops.
type DayReorder struct {
	DayNumber int
	SpotIDs   []string
}

func (DayReorder) Kind() MutationKind { return MutationDayReorder }

func (m DayReorder) Validate() error {
	if m.DayNumber < 1 {
		return NewValidationError("day_number", "must be >= 1, got %d", m.DayNumber)
	}
	seen := make(map[string]struct{}, len(m.SpotIDs))
	for _, id := range m.SpotIDs {
		if strings.TrimSpace(id) == "" {
			return NewValidationError("spot_ids", "contains an empty id")
		}
		if _, dup := seen[id]; dup {
			return NewValidationError("spot_ids", "duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// IsPermutationOf reports whether SpotIDs holds exactly the ids in current.
func (m DayReorder) IsPermutationOf(current []string) bool {
	if len(m.SpotIDs) != len(current) {
		return false
	}
	a := slices.Clone(m.SpotIDs)
	b := slices.Clone(current)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}

// SpotReplacement swaps one stop for another spot. Candidate is optional;
// when nil the new spot is resolved from the plan's candidate catalog.
type SpotReplacement struct {
	OldSpotID string
	NewSpotID string
	Candidate *Candidate
}

func (SpotReplacement) Kind() MutationKind { return MutationSpotReplacement }

func (m SpotReplacement) Validate() error {
	if strings.TrimSpace(m.OldSpotID) == "" {
		return NewValidationError("old_spot_id", "must not be empty")
	}
	if strings.TrimSpace(m.NewSpotID) == "" {
		return NewValidationError("new_spot_id", "must not be empty")
	}
	if m.OldSpotID == m.NewSpotID {
		return NewValidationError("new_spot_id", "must differ from old_spot_id")
	}
	if m.Candidate != nil {
		if m.Candidate.ID != m.NewSpotID {
			return NewValidationError("candidate.id", "%q does not match new_spot_id %q", m.Candidate.ID, m.NewSpotID)
		}
		return m.Candidate.Validate()
	}
	return nil
}
