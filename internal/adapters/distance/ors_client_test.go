package distance

import (
	"context"
	"errors"
	"io"
	"itinerary-route-service/internal/domain"
	"itinerary-route-service/internal/ports"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryDistanceCache struct {
	mu sync.Mutex
	m  map[ports.DistanceKey]ports.DistanceResult
}

func (c *memoryDistanceCache) GetMany(_ context.Context, keys []ports.DistanceKey) (map[ports.DistanceKey]ports.DistanceResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[ports.DistanceKey]ports.DistanceResult)
	for _, k := range keys {
		if r, ok := c.m[k]; ok {
			out[k] = r
		}
	}
	return out, nil
}

func (c *memoryDistanceCache) PutMany(_ context.Context, entries map[ports.DistanceKey]ports.DistanceResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.m == nil {
		c.m = make(map[ports.DistanceKey]ports.DistanceResult)
	}
	for k, v := range entries {
		c.m[k] = v
	}
	return nil
}

var (
	ptA = domain.Coordinates{Lon: 126.97, Lat: 37.55}
	ptB = domain.Coordinates{Lon: 126.99, Lat: 37.57}
	ptC = domain.Coordinates{Lon: 127.01, Lat: 37.52}
)

func TestORSLegsUsesDirectionsAndCache(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/v2/directions/foot-walking/json", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("Authorization"))

		var req directionsRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.Coordinates, 3)

		_, _ = io.WriteString(w, `{"routes":[{"segments":[{"distance":1200.4,"duration":864.6},{"distance":900,"duration":648}]}]}`)
	}))
	defer srv.Close()

	cache := &memoryDistanceCache{}
	client, err := NewORSClient("test-key", WithBaseURL(srv.URL), WithDistanceCache(cache))
	require.NoError(t, err)

	pts := []domain.Coordinates{ptA, ptB, ptC}
	legs, err := client.Legs(context.Background(), pts, domain.TravelModeWalking)
	require.NoError(t, err)
	require.Len(t, legs, 2)
	assert.Equal(t, ports.DistanceResult{DistanceMeters: 1200, DurationSeconds: 865}, legs[0])
	assert.False(t, legs[1].Estimated)

	again, err := client.Legs(context.Background(), pts, domain.TravelModeWalking)
	require.NoError(t, err)
	assert.Equal(t, legs, again)
	assert.EqualValues(t, 1, calls.Load())
}

func TestORSRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"distances":[[0,10],[11,0]],"durations":[[0,20],[21,0]]}`)
	}))
	defer srv.Close()

	client, err := NewORSClient("k", WithBaseURL(srv.URL), WithRetry(4, time.Millisecond))
	require.NoError(t, err)

	m, err := client.Matrix(context.Background(), []domain.Coordinates{ptA, ptB}, domain.TravelModeDriving)
	require.NoError(t, err)
	assert.Equal(t, 10, m[0][1].DistanceMeters)
	assert.Equal(t, 21, m[1][0].DurationSeconds)
	assert.EqualValues(t, 3, calls.Load())
}

func TestORSDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, "bad coordinates")
	}))
	defer srv.Close()

	client, err := NewORSClient("k", WithBaseURL(srv.URL), WithRetry(4, time.Millisecond))
	require.NoError(t, err)

	_, err = client.Legs(context.Background(), []domain.Coordinates{ptA, ptB}, domain.TravelModeDriving)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrProviderUnavailable))

	var he *httpStatusError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusBadRequest, he.Code)
	assert.EqualValues(t, 1, calls.Load())
}

func TestORSTransitIsUnavailable(t *testing.T) {
	client, err := NewORSClient("k", WithBaseURL("http://127.0.0.1:1"))
	require.NoError(t, err)

	_, err = client.Legs(context.Background(), []domain.Coordinates{ptA, ptB}, domain.TravelModeTransit)
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
	assert.ErrorIs(t, err, domain.ErrUnsupportedMode)

	assert.False(t, client.SupportsMode(domain.TravelModeTransit))
	assert.True(t, client.SupportsMode(domain.TravelModeWalking))
}

func TestORSGeocode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/geocode/search", r.URL.Path)
		if r.URL.Query().Get("text") == "Nowhere" {
			_, _ = io.WriteString(w, `{"features":[]}`)
			return
		}
		assert.Equal(t, "Seoul Station", r.URL.Query().Get("text"))
		_, _ = io.WriteString(w, `{"features":[{"geometry":{"coordinates":[126.9707,37.5547]}}]}`)
	}))
	defer srv.Close()

	client, err := NewORSClient("k", WithBaseURL(srv.URL))
	require.NoError(t, err)

	c, err := client.Geocode(context.Background(), "  Seoul   Station ")
	require.NoError(t, err)
	assert.Equal(t, domain.Coordinates{Lon: 126.9707, Lat: 37.5547}, c)

	_, err = client.Geocode(context.Background(), "Nowhere")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
