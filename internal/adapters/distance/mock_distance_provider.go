package distance

import (
	"context"
	"fmt"
	"itinerary-route-service/internal/domain"
	"itinerary-route-service/internal/ports"
	"sync"
)

type MockPair struct {
	From, To domain.Coordinates
	Meters   int
	Seconds  int
}

// MockDistanceProvider answers listed pairs exactly and every other pair with
// a straight-line estimate that is reported as provider-sourced.
// It records calls and can be switched into a failing state.
type MockDistanceProvider struct {
	mu          sync.Mutex
	m           map[string]ports.DistanceResult
	estimator   *Estimator
	failErr     error
	unsupported map[domain.TravelMode]bool
	legCalls    [][]domain.Coordinates
	matrixCalls int
}

func NewMockDistanceProvider(pairs []MockPair) *MockDistanceProvider {
	m := make(map[string]ports.DistanceResult, len(pairs))
	for _, p := range pairs {
		m[p.From.Key()+"|"+p.To.Key()] = ports.DistanceResult{DistanceMeters: p.Meters, DurationSeconds: p.Seconds}
	}
	return &MockDistanceProvider{m: m, estimator: NewEstimator(domain.DefaultSpeeds())}
}

// SetFailure makes every following call fail with err; nil restores service.
func (p *MockDistanceProvider) SetFailure(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failErr = err
}

// SetUnsupportedModes makes the provider refuse the given modes.
func (p *MockDistanceProvider) SetUnsupportedModes(modes ...domain.TravelMode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unsupported = make(map[domain.TravelMode]bool, len(modes))
	for _, m := range modes {
		p.unsupported[m] = true
	}
}

func (p *MockDistanceProvider) SupportsMode(mode domain.TravelMode) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.unsupported[mode]
}

// LegCalls returns the point sequences passed to Legs so far.
func (p *MockDistanceProvider) LegCalls() [][]domain.Coordinates {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]domain.Coordinates, len(p.legCalls))
	copy(out, p.legCalls)
	return out
}

func (p *MockDistanceProvider) MatrixCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.matrixCalls
}

func (p *MockDistanceProvider) Legs(
	ctx context.Context,
	points []domain.Coordinates,
	mode domain.TravelMode,
) ([]ports.DistanceResult, error) {
	p.mu.Lock()
	p.legCalls = append(p.legCalls, append([]domain.Coordinates(nil), points...))
	failErr := p.failErr
	unsupported := p.unsupported[mode]
	p.mu.Unlock()

	if failErr != nil {
		return nil, failErr
	}
	if unsupported {
		return nil, fmt.Errorf("mock: %s: %w", mode, domain.ErrUnsupportedMode)
	}
	if len(points) < 2 {
		return []ports.DistanceResult{}, nil
	}

	out := make([]ports.DistanceResult, len(points)-1)
	for i := 1; i < len(points); i++ {
		r, err := p.lookup(points[i-1], points[i], mode)
		if err != nil {
			return nil, err
		}
		out[i-1] = r
	}
	return out, nil
}

func (p *MockDistanceProvider) Matrix(
	ctx context.Context,
	points []domain.Coordinates,
	mode domain.TravelMode,
) ([][]ports.DistanceResult, error) {
	p.mu.Lock()
	p.matrixCalls++
	failErr := p.failErr
	unsupported := p.unsupported[mode]
	p.mu.Unlock()

	if failErr != nil {
		return nil, failErr
	}
	if unsupported {
		return nil, fmt.Errorf("mock: %s: %w", mode, domain.ErrUnsupportedMode)
	}

	out := make([][]ports.DistanceResult, len(points))
	for i := range points {
		out[i] = make([]ports.DistanceResult, len(points))
		for j := range points {
			if i == j {
				continue
			}
			r, err := p.lookup(points[i], points[j], mode)
			if err != nil {
				return nil, err
			}
			out[i][j] = r
		}
	}
	return out, nil
}

func (p *MockDistanceProvider) lookup(from, to domain.Coordinates, mode domain.TravelMode) (ports.DistanceResult, error) {
	if r, ok := p.m[from.Key()+"|"+to.Key()]; ok {
		return r, nil
	}
	r, err := p.estimator.estimate(from, to, mode)
	if err != nil {
		return ports.DistanceResult{}, fmt.Errorf("mock lookup %s -> %s: %w", from.Key(), to.Key(), err)
	}
	r.Estimated = false
	return r, nil
}
