package dto

import "time"

type SettingsRequest struct {
	TravelMode  string `json:"travel_mode"`
	OptimizeFor string `json:"optimize_for"`
	// Departure and Hotel accept "lat,lng" or an address.
	Departure string `json:"departure"`
	Hotel     string `json:"hotel"`
	Days      int    `json:"days"`
	// StartDate is "YYYY-MM-DD".
	StartDate         string `json:"start_date"`
	ReturnToDeparture bool   `json:"return_to_departure"`
}

type ComputeRouteRequest struct {
	Candidates  []CandidateRequest `json:"candidates"`
	Preferences PreferencesRequest `json:"preferences"`
	Weights     *WeightsRequest    `json:"weights"`
	TopN        int                `json:"top_n"`
	SettingsRequest
}

type RegenerateRequest struct {
	SettingsRequest
}

// PartialUpdateRequest is a tagged union; Type selects which fields apply.
type PartialUpdateRequest struct {
	Type string `json:"type"`

	Hotel string `json:"hotel,omitempty"`

	TravelMode string `json:"travel_mode,omitempty"`

	DayNumber int      `json:"day_number,omitempty"`
	SpotIDs   []string `json:"spot_ids,omitempty"`

	OldSpotID string            `json:"old_spot_id,omitempty"`
	NewSpotID string            `json:"new_spot_id,omitempty"`
	Candidate *CandidateRequest `json:"candidate,omitempty"`
}

// RouteRecord is the persisted-state shape of one route version.
type RouteRecord struct {
	Route    RouteSummary    `json:"route"`
	Days     []DayRecord     `json:"days"`
	Segments []SegmentRecord `json:"segments"`
}

type RouteSummary struct {
	ID                   string    `json:"id"`
	PlanID               string    `json:"plan_id"`
	Version              int       `json:"version"`
	Revision             int       `json:"revision"`
	TotalDays            int       `json:"total_days"`
	Departure            string    `json:"departure"`
	Hotel                string    `json:"hotel"`
	TravelMode           string    `json:"travel_mode"`
	OptimizeFor          string    `json:"optimize_for"`
	TotalDistanceKm      float64   `json:"total_distance_km"`
	TotalDurationMinutes int       `json:"total_duration_minutes"`
	TotalSpots           int       `json:"total_spots"`
	Estimated            bool      `json:"estimated"`
	LowConfidence        bool      `json:"low_confidence"`
	CalculatedAt         time.Time `json:"calculated_at"`
}

type DayRecord struct {
	DayNumber       int          `json:"day_number"`
	Start           string       `json:"start"`
	End             string       `json:"end"`
	StartAt         time.Time    `json:"start_at"`
	DistanceKm      float64      `json:"distance_km"`
	DurationMinutes int          `json:"duration_minutes"`
	Stops           []StopRecord `json:"stops"`
}

type StopRecord struct {
	SpotID      string    `json:"spot_id"`
	Name        string    `json:"name"`
	Order       int       `json:"order"`
	Slot        string    `json:"slot"`
	ArrivalTime time.Time `json:"arrival_time"`
	Score       float64   `json:"score"`
}

type SegmentRecord struct {
	DayNumber  int    `json:"day_number"`
	Order      int    `json:"order"`
	From       string `json:"from"`
	To         string `json:"to"`
	ToSpotID   string `json:"to_spot_id"`
	DistanceM  int    `json:"distance_m"`
	DurationS  int    `json:"duration_s"`
	TravelMode string `json:"travel_mode"`
	Estimated  bool   `json:"estimated"`
}

type RouteVersionsRecord struct {
	PlanID   string         `json:"plan_id"`
	Versions []RouteSummary `json:"versions"`
}

type RouteStatisticsRecord struct {
	PlanID        string        `json:"plan_id"`
	TotalVersions int           `json:"total_versions"`
	LatestVersion int           `json:"latest_version"`
	HasRoutes     bool          `json:"has_routes"`
	Latest        *RouteSummary `json:"latest_route_summary,omitempty"`
}
