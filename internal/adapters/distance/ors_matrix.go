package distance

import (
	"bytes"
	"context"
	"fmt"
	"itinerary-route-service/internal/domain"
	"itinerary-route-service/internal/platform/obs"
	"itinerary-route-service/internal/ports"
	"math"
	"net/http"

	"github.com/goccy/go-json"
)

type matrixRequest struct {
	Locations [][]float64 `json:"locations"`
	Metrics   []string    `json:"metrics"`
}

type matrixResponse struct {
	Distances [][]*float64 `json:"distances"`
	Durations [][]*float64 `json:"durations"`
}

// Matrix retrieves the full pairwise distance/duration matrix for points
// using the OpenRouteService matrix endpoint. A fully cached matrix skips
// the call.
func (o *ORSClient) Matrix(
	ctx context.Context,
	points []domain.Coordinates,
	mode domain.TravelMode,
) (_ [][]ports.DistanceResult, err error) {
	defer obs.Time(ctx, "ors.Matrix")(&err)

	n := len(points)
	if n == 0 {
		return [][]ports.DistanceResult{}, nil
	}
	prof, err := profile(mode)
	if err != nil {
		return nil, err
	}

	keys := make([]ports.DistanceKey, 0, n*(n-1))
	for i := range points {
		for j := range points {
			if i != j {
				keys = append(keys, ports.DistanceKey{Mode: mode, Origin: points[i].Key(), Destination: points[j].Key()})
			}
		}
	}

	if hits := o.cachedHops(ctx, keys); len(hits) == len(uniqueKeys(keys)) {
		return buildMatrix(points, mode, func(k ports.DistanceKey) (ports.DistanceResult, bool) {
			r, ok := hits[k]
			return r, ok
		})
	}

	locations := make([][]float64, n)
	for i, p := range points {
		locations[i] = p.CoordsToList()
	}
	payload, err := json.Marshal(matrixRequest{
		Locations: locations,
		Metrics:   []string{"distance", "duration"},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal matrix request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v2/matrix/%s", o.baseURL, prof)
	resp, err := o.doWithRetry(ctx, func() (*http.Request, error) {
		return o.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	})
	if err != nil {
		return nil, fmt.Errorf("matrix request failed: %w: %w", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	var mr matrixResponse
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		return nil, fmt.Errorf("decode matrix response: %w", err)
	}
	if len(mr.Distances) != n || len(mr.Durations) != n {
		return nil, fmt.Errorf(
			"expected %d rows; got distances=%d durations=%d: %w",
			n, len(mr.Distances), len(mr.Durations), domain.ErrProviderUnavailable,
		)
	}

	out := make([][]ports.DistanceResult, n)
	fresh := make(map[ports.DistanceKey]ports.DistanceResult, len(keys))
	for i := range points {
		if len(mr.Distances[i]) != n || len(mr.Durations[i]) != n {
			return nil, fmt.Errorf("row %d has the wrong length: %w", i, domain.ErrProviderUnavailable)
		}
		out[i] = make([]ports.DistanceResult, n)
		for j := range points {
			if i == j {
				continue
			}
			metersPtr, secondsPtr := mr.Distances[i][j], mr.Durations[i][j]
			if metersPtr == nil || secondsPtr == nil {
				return nil, fmt.Errorf("matrix returned no route from %d to %d: %w", i, j, domain.ErrProviderUnavailable)
			}
			r := ports.DistanceResult{
				DistanceMeters:  int(math.Round(*metersPtr)),
				DurationSeconds: int(math.Round(*secondsPtr)),
			}
			out[i][j] = r
			fresh[ports.DistanceKey{Mode: mode, Origin: points[i].Key(), Destination: points[j].Key()}] = r
		}
	}
	o.storeHops(ctx, fresh)

	return out, nil
}

func buildMatrix(
	points []domain.Coordinates,
	mode domain.TravelMode,
	lookup func(ports.DistanceKey) (ports.DistanceResult, bool),
) ([][]ports.DistanceResult, error) {
	out := make([][]ports.DistanceResult, len(points))
	for i := range points {
		out[i] = make([]ports.DistanceResult, len(points))
		for j := range points {
			if i == j {
				continue
			}
			k := ports.DistanceKey{Mode: mode, Origin: points[i].Key(), Destination: points[j].Key()}
			r, ok := lookup(k)
			if !ok {
				return nil, fmt.Errorf("missing matrix entry %s -> %s", k.Origin, k.Destination)
			}
			out[i][j] = r
		}
	}
	return out, nil
}
