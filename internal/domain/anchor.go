package domain

import (
	"strconv"
	"strings"
)

type AnchorKind string

const (
	AnchorDeparture AnchorKind = "departure"
	AnchorHotel     AnchorKind = "hotel"
)

// Anchor is a fixed start/end location of a day (departure point or hotel).
type Anchor struct {
	Label       string
	Coordinates Coordinates
}

// ParseAnchor parses "lat,lng". ok is false when s is not a coordinate pair
// and has to be resolved through a geocoder instead.
func ParseAnchor(s string) (Anchor, bool) {
	s = strings.TrimSpace(s)
	latStr, lngStr, found := strings.Cut(s, ",")
	if !found {
		return Anchor{}, false
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return Anchor{}, false
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(lngStr), 64)
	if err != nil {
		return Anchor{}, false
	}

	c := Coordinates{Lon: lng, Lat: lat}
	if !c.Valid() {
		return Anchor{}, false
	}
	return Anchor{Label: s, Coordinates: c}, true
}
