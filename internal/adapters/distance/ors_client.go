package distance

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"itinerary-route-service/internal/domain"
	"itinerary-route-service/internal/platform/logger"
	"itinerary-route-service/internal/platform/obs"
	"itinerary-route-service/internal/ports"
	"math"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// ORSClient implements DistanceMatrixProvider and Geocoder using OpenRouteService.
//
// It coordinates:
//   - Travel mode to ORS profile mapping
//   - Persistent distance and geocode caching
//   - External API calls with retry/backoff
//
// The client is safe for concurrent use.
type ORSClient struct {
	session       *http.Client
	apiKey        string
	baseURL       string
	maxAttempts   int
	backoff       time.Duration
	distanceCache ports.DistanceCache
	geocodeCache  ports.GeocodeCache
}

type ORSOption func(*ORSClient)

func WithBaseURL(u string) ORSOption { return func(o *ORSClient) { o.baseURL = u } }

func WithHTTPClient(c *http.Client) ORSOption { return func(o *ORSClient) { o.session = c } }

func WithDistanceCache(c ports.DistanceCache) ORSOption {
	return func(o *ORSClient) { o.distanceCache = c }
}

func WithGeocodeCache(c ports.GeocodeCache) ORSOption {
	return func(o *ORSClient) { o.geocodeCache = c }
}

func WithRetry(maxAttempts int, backoff time.Duration) ORSOption {
	return func(o *ORSClient) {
		o.maxAttempts = max(1, maxAttempts)
		o.backoff = backoff
	}
}

func NewORSClient(apiKey string, opts ...ORSOption) (*ORSClient, error) {
	if apiKey == "" {
		return nil, errors.New("ORS api key is empty")
	}

	o := &ORSClient{
		session:     &http.Client{Timeout: 10 * time.Second},
		apiKey:      apiKey,
		baseURL:     "https://api.openrouteservice.org",
		maxAttempts: 4,
		backoff:     200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

var orsProfiles = map[domain.TravelMode]string{
	domain.TravelModeDriving:   "driving-car",
	domain.TravelModeWalking:   "foot-walking",
	domain.TravelModeBicycling: "cycling-regular",
}

// profile maps a travel mode to an ORS profile. ORS has no public transit
// routing, so TRANSIT is an unsupported mode.
func profile(mode domain.TravelMode) (string, error) {
	p, ok := orsProfiles[mode]
	if !ok {
		return "", fmt.Errorf("ors: no profile for %s: %w: %w", mode, domain.ErrUnsupportedMode, domain.ErrProviderUnavailable)
	}
	return p, nil
}

func (o *ORSClient) SupportsMode(mode domain.TravelMode) bool {
	_, ok := orsProfiles[mode]
	return ok
}

type directionsRequest struct {
	Coordinates [][]float64 `json:"coordinates"`
}

type directionsResponse struct {
	Routes []struct {
		Segments []struct {
			Distance float64 `json:"distance"`
			Duration float64 `json:"duration"`
		} `json:"segments"`
	} `json:"routes"`
}

// Legs returns one result per consecutive pair of points.
// Hops already cached are not requested again; any miss triggers a single
// directions call over the full point sequence.
func (o *ORSClient) Legs(
	ctx context.Context,
	points []domain.Coordinates,
	mode domain.TravelMode,
) (_ []ports.DistanceResult, err error) {
	defer obs.Time(ctx, "ors.Legs")(&err)

	if len(points) < 2 {
		return []ports.DistanceResult{}, nil
	}
	prof, err := profile(mode)
	if err != nil {
		return nil, err
	}

	keys := make([]ports.DistanceKey, len(points)-1)
	for i := 1; i < len(points); i++ {
		keys[i-1] = ports.DistanceKey{Mode: mode, Origin: points[i-1].Key(), Destination: points[i].Key()}
	}

	hits := o.cachedHops(ctx, keys)
	if len(hits) == len(uniqueKeys(keys)) {
		out := make([]ports.DistanceResult, len(keys))
		for i, k := range keys {
			out[i] = hits[k]
		}
		return out, nil
	}

	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = p.CoordsToList()
	}
	payload, err := json.Marshal(directionsRequest{Coordinates: coords})
	if err != nil {
		return nil, fmt.Errorf("marshal directions request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v2/directions/%s/json", o.baseURL, prof)
	resp, err := o.doWithRetry(ctx, func() (*http.Request, error) {
		return o.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	})
	if err != nil {
		return nil, fmt.Errorf("directions request failed: %w: %w", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	var dr directionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return nil, fmt.Errorf("decode directions response: %w", err)
	}
	if len(dr.Routes) == 0 || len(dr.Routes[0].Segments) != len(keys) {
		return nil, fmt.Errorf("directions returned an unexpected shape for %d legs: %w", len(keys), domain.ErrProviderUnavailable)
	}

	out := make([]ports.DistanceResult, len(keys))
	fresh := make(map[ports.DistanceKey]ports.DistanceResult, len(keys))
	for i, seg := range dr.Routes[0].Segments {
		// ORS returns float metrics; round to nearest integer for domain consistency.
		r := ports.DistanceResult{
			DistanceMeters:  int(math.Round(seg.Distance)),
			DurationSeconds: int(math.Round(seg.Duration)),
		}
		out[i] = r
		fresh[keys[i]] = r
	}
	o.storeHops(ctx, fresh)

	return out, nil
}

// cachedHops reads cached hops; cache failures only cost a provider call.
func (o *ORSClient) cachedHops(ctx context.Context, keys []ports.DistanceKey) map[ports.DistanceKey]ports.DistanceResult {
	if o.distanceCache == nil {
		return map[ports.DistanceKey]ports.DistanceResult{}
	}
	hits, err := o.distanceCache.GetMany(ctx, keys)
	if err != nil {
		logger.FromContext(ctx).Warn("distance cache read failed", zap.Error(err))
		return map[ports.DistanceKey]ports.DistanceResult{}
	}
	obs.DistanceCacheLookups.WithLabelValues("hit").Add(float64(len(hits)))
	obs.DistanceCacheLookups.WithLabelValues("miss").Add(float64(len(uniqueKeys(keys)) - len(hits)))
	return hits
}

func (o *ORSClient) storeHops(ctx context.Context, fresh map[ports.DistanceKey]ports.DistanceResult) {
	if o.distanceCache == nil || len(fresh) == 0 {
		return
	}
	if err := o.distanceCache.PutMany(ctx, fresh); err != nil {
		logger.FromContext(ctx).Warn("distance cache write failed", zap.Error(err))
	}
}

func uniqueKeys(keys []ports.DistanceKey) map[ports.DistanceKey]struct{} {
	seen := make(map[ports.DistanceKey]struct{}, len(keys))
	for _, k := range keys {
		seen[k] = struct{}{}
	}
	return seen
}
