package domain

import (
	"math"
	"strings"
)

type TravelMode string

const (
	TravelModeDriving   TravelMode = "DRIVING"
	TravelModeWalking   TravelMode = "WALKING"
	TravelModeTransit   TravelMode = "TRANSIT"
	TravelModeBicycling TravelMode = "BICYCLING"
)

func ParseTravelMode(s string) (TravelMode, error) {
	m := TravelMode(strings.ToUpper(strings.TrimSpace(s)))
	switch m {
	case TravelModeDriving, TravelModeWalking, TravelModeTransit, TravelModeBicycling:
		return m, nil
	}
	return "", NewValidationError("travel_mode", "unknown travel mode %q", s)
}

// SpeedTable maps a travel mode to its average speed in km/h.
type SpeedTable map[TravelMode]float64

func DefaultSpeeds() SpeedTable {
	return SpeedTable{
		TravelModeDriving:   40,
		TravelModeWalking:   5,
		TravelModeTransit:   24,
		TravelModeBicycling: 15,
	}
}

// Duration estimates travel seconds for the given distance, rounded to the
// nearest second.
func (t SpeedTable) Duration(mode TravelMode, meters int) (int, error) {
	kmh, ok := t[mode]
	if !ok || kmh <= 0 {
		return 0, NewValidationError("travel_mode", "no average speed configured for %q", mode)
	}
	if meters <= 0 {
		return 0, nil
	}
	metersPerSecond := kmh * 1000 / 3600
	return int(math.Round(float64(meters) / metersPerSecond)), nil
}

type OptimizeFor string

const (
	OptimizeDistance OptimizeFor = "distance"
	OptimizeTime     OptimizeFor = "time"
)

func ParseOptimizeFor(s string) (OptimizeFor, error) {
	switch o := OptimizeFor(strings.ToLower(strings.TrimSpace(s))); o {
	case "":
		return OptimizeDistance, nil
	case OptimizeDistance, OptimizeTime:
		return o, nil
	}
	return "", NewValidationError("optimize_for", "must be %q or %q, got %q", OptimizeDistance, OptimizeTime, s)
}

func (o OptimizeFor) String() string { return string(o) }

func (m TravelMode) String() string { return string(m) }

// EstimateLeg returns the straight-line distance between two points and the
// travel time at the mode's average speed.
func (t SpeedTable) EstimateLeg(from, to Coordinates, mode TravelMode) (meters, seconds int, err error) {
	meters = int(math.Round(from.DistanceTo(to)))
	seconds, err = t.Duration(mode, meters)
	return meters, seconds, err
}
