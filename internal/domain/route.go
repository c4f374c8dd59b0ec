package domain

import (
	"fmt"
	"math"
	"slices"
	"time"
)

// Represents a single visited spot in a day of the itinerary.
// A Stop keeps a snapshot of its candidate so the route can be regenerated
// or partially replaced without the original request.
type Stop struct {
	Candidate Candidate
	Order     int
	Slot      TimeSlot
	ArriveAt  time.Time
	Score     float64
}

func (s Stop) SpotID() string { return s.Candidate.ID }

// Segment is one directed hop between consecutive points of a day.
// FromSpotID / ToSpotID are empty when the endpoint is an anchor.
type Segment struct {
	Order           int
	From            string
	FromSpotID      string
	To              string
	ToSpotID        string
	DistanceMeters  int
	DurationSeconds int
	Mode            TravelMode
	Estimated       bool
}

// ItineraryDay is the ordered stop sequence of one day between its anchors.
// It has len(Stops)+1 segments: start anchor, stops..., end anchor.
type ItineraryDay struct {
	DayNumber int
	StartKind AnchorKind
	EndKind   AnchorKind
	StartAt   time.Time
	Stops     []Stop
	Segments  []Segment

	DistanceMeters  int
	DurationSeconds int
}

// Recompute rebuilds order indices, arrival times and day totals from the
// segments. Totals are always summed, never adjusted by deltas.
func (d *ItineraryDay) Recompute(dwell time.Duration) {
	distance, duration := 0, 0
	for i := range d.Segments {
		d.Segments[i].Order = i
		distance += d.Segments[i].DistanceMeters
		duration += d.Segments[i].DurationSeconds
	}
	d.DistanceMeters = distance
	d.DurationSeconds = duration

	t := d.StartAt
	for i := range d.Stops {
		d.Stops[i].Order = i
		if i < len(d.Segments) {
			t = t.Add(time.Duration(d.Segments[i].DurationSeconds) * time.Second)
		}
		d.Stops[i].ArriveAt = t
		t = t.Add(dwell)
	}
}

func (d ItineraryDay) DistanceKm() float64 { return metersToKm(d.DistanceMeters) }

func (d ItineraryDay) DurationMinutes() int { return d.DurationSeconds / 60 }

// StopIndex returns the position of spotID in the day, or -1.
func (d ItineraryDay) StopIndex(spotID string) int {
	return slices.IndexFunc(d.Stops, func(s Stop) bool { return s.SpotID() == spotID })
}

func (d ItineraryDay) SpotIDs() []string {
	ids := make([]string, len(d.Stops))
	for i, s := range d.Stops {
		ids[i] = s.SpotID()
	}
	return ids
}

func (d ItineraryDay) Clone() ItineraryDay {
	out := d
	out.Stops = make([]Stop, len(d.Stops))
	for i, s := range d.Stops {
		out.Stops[i] = s
		out.Stops[i].Candidate = s.Candidate.Clone()
	}
	out.Segments = slices.Clone(d.Segments)
	return out
}

// Route is the materialized itinerary for one (plan, version).
// Revision increments on every committed partial update.
type Route struct {
	ID                string
	PlanID            string
	Version           int
	Revision          int
	Departure         Anchor
	Hotel             Anchor
	TravelMode        TravelMode
	OptimizeFor       OptimizeFor
	ReturnToDeparture bool
	DwellMinutes      int
	Days              []ItineraryDay

	TotalDistanceMeters  int
	TotalDurationSeconds int
	TotalSpots           int

	// Estimated is set when any segment was not sourced from the provider.
	Estimated bool
	// LowConfidence is set when the optimizer ran out of budget.
	LowConfidence bool
	CalculatedAt  time.Time
}

func (r *Route) TotalDays() int { return len(r.Days) }

func (r *Route) Dwell() time.Duration { return time.Duration(r.DwellMinutes) * time.Minute }

func (r *Route) TotalDistanceKm() float64 { return metersToKm(r.TotalDistanceMeters) }

func (r *Route) TotalDurationMinutes() int { return r.TotalDurationSeconds / 60 }

// Anchor resolves an anchor kind against the route's current anchors.
func (r *Route) Anchor(kind AnchorKind) Anchor {
	if kind == AnchorHotel {
		return r.Hotel
	}
	return r.Departure
}

// Day returns the day with the given 1-based number.
func (r *Route) Day(number int) (*ItineraryDay, bool) {
	for i := range r.Days {
		if r.Days[i].DayNumber == number {
			return &r.Days[i], true
		}
	}
	return nil, false
}

// FindSpot returns the day index and stop index holding spotID.
func (r *Route) FindSpot(spotID string) (dayIdx, stopIdx int, ok bool) {
	for di, d := range r.Days {
		if si := d.StopIndex(spotID); si >= 0 {
			return di, si, true
		}
	}
	return -1, -1, false
}

// Points returns the ordered coordinates of a day including both anchors.
func (r *Route) Points(d *ItineraryDay) []Coordinates {
	pts := make([]Coordinates, 0, len(d.Stops)+2)
	pts = append(pts, r.Anchor(d.StartKind).Coordinates)
	for _, s := range d.Stops {
		pts = append(pts, s.Candidate.Location)
	}
	pts = append(pts, r.Anchor(d.EndKind).Coordinates)
	return pts
}

// PointLabels returns the label and spot id of each point returned by Points.
func (r *Route) PointLabels(d *ItineraryDay) (labels, spotIDs []string) {
	labels = make([]string, 0, len(d.Stops)+2)
	spotIDs = make([]string, 0, len(d.Stops)+2)

	labels = append(labels, r.Anchor(d.StartKind).Label)
	spotIDs = append(spotIDs, "")
	for _, s := range d.Stops {
		labels = append(labels, s.Candidate.Name)
		spotIDs = append(spotIDs, s.SpotID())
	}
	labels = append(labels, r.Anchor(d.EndKind).Label)
	spotIDs = append(spotIDs, "")
	return labels, spotIDs
}

// Recompute rebuilds every day and the route totals bottom-up
// (segment -> day -> route).
func (r *Route) Recompute() {
	dwell := r.Dwell()
	distance, duration, spots := 0, 0, 0
	estimated := false
	for i := range r.Days {
		d := &r.Days[i]
		d.Recompute(dwell)
		distance += d.DistanceMeters
		duration += d.DurationSeconds
		spots += len(d.Stops)
		for _, s := range d.Segments {
			estimated = estimated || s.Estimated
		}
	}
	r.TotalDistanceMeters = distance
	r.TotalDurationSeconds = duration
	r.TotalSpots = spots
	r.Estimated = estimated
}

// CheckTotals reports whether the stored day and route totals equal a fresh
// bottom-up sum of the segments. It does not modify r.
func (r *Route) CheckTotals() error {
	distance, duration, spots := 0, 0, 0
	for _, d := range r.Days {
		dd, ds := 0, 0
		for _, s := range d.Segments {
			dd += s.DistanceMeters
			ds += s.DurationSeconds
		}
		if dd != d.DistanceMeters || ds != d.DurationSeconds {
			return fmt.Errorf("day %d totals %dm/%ds, segments sum to %dm/%ds",
				d.DayNumber, d.DistanceMeters, d.DurationSeconds, dd, ds)
		}
		distance += dd
		duration += ds
		spots += len(d.Stops)
	}
	if distance != r.TotalDistanceMeters || duration != r.TotalDurationSeconds || spots != r.TotalSpots {
		return fmt.Errorf("route totals %dm/%ds/%d spots, days sum to %dm/%ds/%d spots",
			r.TotalDistanceMeters, r.TotalDurationSeconds, r.TotalSpots, distance, duration, spots)
	}
	return nil
}

// Validate checks the structural invariants of a materialized route.
func (r *Route) Validate() error {
	seen := make(map[string]struct{})
	for i, d := range r.Days {
		if d.DayNumber != i+1 {
			return fmt.Errorf("day at index %d has number %d", i, d.DayNumber)
		}
		if len(d.Segments) != len(d.Stops)+1 {
			return fmt.Errorf("day %d: %d segments for %d stops", d.DayNumber, len(d.Segments), len(d.Stops))
		}
		for j, s := range d.Stops {
			if s.Order != j {
				return fmt.Errorf("day %d: stop %q has order %d at position %d", d.DayNumber, s.SpotID(), s.Order, j)
			}
			if _, dup := seen[s.SpotID()]; dup {
				return fmt.Errorf("spot %q appears more than once", s.SpotID())
			}
			seen[s.SpotID()] = struct{}{}
		}
	}
	return r.CheckTotals()
}

// Clone returns a deep copy so mutations never touch the stored value.
func (r *Route) Clone() *Route {
	out := *r
	out.Days = make([]ItineraryDay, len(r.Days))
	for i, d := range r.Days {
		out.Days[i] = d.Clone()
	}
	return &out
}

func (c Candidate) Clone() Candidate {
	out := c
	out.Categories = slices.Clone(c.Categories)
	out.Congestion = slices.Clone(c.Congestion)
	if c.Similarity != nil {
		v := *c.Similarity
		out.Similarity = &v
	}
	if c.CloseMinute != nil {
		v := *c.CloseMinute
		out.CloseMinute = &v
	}
	return out
}

func metersToKm(m int) float64 {
	return math.Round(float64(m)/10) / 100
}
