package distance

import (
	"context"
	"errors"
	"fmt"
	"itinerary-route-service/internal/domain"
	"itinerary-route-service/internal/platform/obs"
	"itinerary-route-service/internal/ports"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// errThrottled marks a call that never left the process because the rate
// limiter could not admit it before the caller's deadline.
var errThrottled = errors.New("distance provider throttled")

type ResilienceConfig struct {
	RatePerSecond   float64
	Burst           int
	FailureTrip     uint32
	OpenTimeout     time.Duration
	HalfOpenProbes  uint32
	FailureInterval time.Duration
}

// ResilientProvider guards a routing provider with a rate limiter and a
// circuit breaker, and answers from the straight-line estimator whenever the
// provider cannot. Fallback results are marked estimated.
type ResilientProvider struct {
	primary  ports.DistanceProvider
	fallback *Estimator
	limiter  *rate.Limiter
	legsCB   *gobreaker.CircuitBreaker[[]ports.DistanceResult]
	matrixCB *gobreaker.CircuitBreaker[[][]ports.DistanceResult]
	log      *zap.Logger
}

func NewResilientProvider(
	primary ports.DistanceProvider,
	fallback *Estimator,
	cfg ResilienceConfig,
	log *zap.Logger,
) *ResilientProvider {
	if log == nil {
		log = zap.NewNop()
	}
	limit := rate.Limit(cfg.RatePerSecond)
	if cfg.RatePerSecond <= 0 {
		limit = rate.Inf
	}

	p := &ResilientProvider{
		primary:  primary,
		fallback: fallback,
		limiter:  rate.NewLimiter(limit, max(1, cfg.Burst)),
		log:      log,
	}

	settings := func(name string) gobreaker.Settings {
		return gobreaker.Settings{
			Name:        name,
			MaxRequests: max(1, cfg.HalfOpenProbes),
			Interval:    cfg.FailureInterval,
			Timeout:     cfg.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= max(1, cfg.FailureTrip)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn("distance provider circuit changed state",
					zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
			},
			// Caller cancellation, local throttling and unsupported modes say
			// nothing about provider health.
			IsSuccessful: func(err error) bool {
				return err == nil ||
					errors.Is(err, context.Canceled) ||
					errors.Is(err, errThrottled) ||
					errors.Is(err, domain.ErrUnsupportedMode)
			},
		}
	}
	p.legsCB = gobreaker.NewCircuitBreaker[[]ports.DistanceResult](settings("distance-legs"))
	p.matrixCB = gobreaker.NewCircuitBreaker[[][]ports.DistanceResult](settings("distance-matrix"))
	return p
}

func (p *ResilientProvider) Legs(
	ctx context.Context,
	points []domain.Coordinates,
	mode domain.TravelMode,
) ([]ports.DistanceResult, error) {
	if !p.supports(mode) {
		obs.ProviderFallbacks.WithLabelValues("unsupported_mode").Inc()
		return p.fallback.Legs(ctx, points, mode)
	}

	res, err := p.legsCB.Execute(func() ([]ports.DistanceResult, error) {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", errThrottled, err)
		}
		return p.primary.Legs(ctx, points, mode)
	})
	if err == nil && len(res) == max(0, len(points)-1) {
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err == nil {
		err = fmt.Errorf("provider returned %d legs for %d points", len(res), len(points))
	}

	p.degraded(ctx, "legs", err)
	return p.fallback.Legs(ctx, points, mode)
}

// Matrix uses the primary's matrix when it has one; otherwise it is answered
// by the estimator.
func (p *ResilientProvider) Matrix(
	ctx context.Context,
	points []domain.Coordinates,
	mode domain.TravelMode,
) ([][]ports.DistanceResult, error) {
	mp, ok := p.primary.(ports.DistanceMatrixProvider)
	if !ok {
		return p.fallback.Matrix(ctx, points, mode)
	}
	if !p.supports(mode) {
		obs.ProviderFallbacks.WithLabelValues("unsupported_mode").Inc()
		return p.fallback.Matrix(ctx, points, mode)
	}

	res, err := p.matrixCB.Execute(func() ([][]ports.DistanceResult, error) {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", errThrottled, err)
		}
		return mp.Matrix(ctx, points, mode)
	})
	if err == nil && len(res) == len(points) {
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err == nil {
		err = fmt.Errorf("provider returned %d rows for %d points", len(res), len(points))
	}

	p.degraded(ctx, "matrix", err)
	return p.fallback.Matrix(ctx, points, mode)
}

func (p *ResilientProvider) supports(mode domain.TravelMode) bool {
	ms, ok := p.primary.(ports.ModeSupporter)
	return !ok || ms.SupportsMode(mode)
}

func (p *ResilientProvider) degraded(ctx context.Context, call string, err error) {
	reason := "error"
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		reason = "circuit_open"
	case errors.Is(err, errThrottled):
		reason = "throttled"
	case errors.Is(err, domain.ErrUnsupportedMode):
		reason = "unsupported_mode"
	case errors.Is(err, domain.ErrProviderUnavailable):
		reason = "unavailable"
	}
	obs.ProviderFallbacks.WithLabelValues(reason).Inc()

	p.log.Warn("distance provider degraded, using straight-line estimate",
		zap.String("req_id", obs.RequestID(ctx)),
		zap.String("call", call),
		zap.String("reason", reason),
		zap.Error(err),
	)
}
