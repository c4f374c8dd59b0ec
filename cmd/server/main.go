package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"itinerary-route-service/internal/adapters/cache"
	"itinerary-route-service/internal/adapters/distance"
	"itinerary-route-service/internal/adapters/repositories"
	"itinerary-route-service/internal/api"
	"itinerary-route-service/internal/config"
	"itinerary-route-service/internal/platform/db"
	"itinerary-route-service/internal/platform/logger"
	"itinerary-route-service/internal/ports"
	"itinerary-route-service/internal/services"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// main is the application composition root.
// It wires concrete adapters (Postgres, Redis, ORS) behind ports and starts the HTTP server.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	zl, err := logger.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.ContextWithLogger(ctx, zl)

	if err := run(ctx, cfg, zl); err != nil {
		zl.Fatal("server stopped", zap.Error(err))
	}
}

type backends struct {
	store         ports.RouteVersionStore
	catalog       ports.CandidateCatalog
	distanceCache ports.DistanceCache
	geocodeCache  ports.GeocodeCache
	closers       []func() error
}

func (b *backends) close() {
	for _, c := range b.closers {
		_ = c()
	}
}

// openBackends picks Postgres and Redis when configured and falls back to
// in-memory stores otherwise.
func openBackends(ctx context.Context, cfg config.Config, zl *zap.Logger) (*backends, error) {
	b := &backends{
		store:   repositories.NewMemoryRouteStore(),
		catalog: repositories.NewMemoryCatalog(),
	}

	var tiers []ports.DistanceCache

	if cfg.RedisAddr != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, rdb.Close)
		tiers = append(tiers, cache.NewRedisDistanceCache(rdb, cfg.RedisTTL))
		zl.Info("redis distance cache enabled", zap.String("addr", cfg.RedisAddr))
	}

	if cfg.DatabaseURL != "" {
		sqlDB, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			b.close()
			return nil, err
		}
		b.closers = append(b.closers, sqlDB.Close)

		if err := repositories.InitSchema(ctx, sqlDB); err != nil {
			b.close()
			return nil, err
		}
		b.useSQL(sqlDB)
		tiers = append(tiers, cache.NewSQLDistanceCache(sqlDB))
		zl.Info("postgres storage enabled")
	} else {
		zl.Warn("DATABASE_URL not set, routes are kept in memory")
	}

	if len(tiers) > 0 {
		b.distanceCache = cache.NewTieredDistanceCache(tiers...)
	}
	return b, nil
}

func (b *backends) useSQL(sqlDB *sql.DB) {
	b.store = repositories.NewPostgresRouteStore(sqlDB)
	b.catalog = repositories.NewPostgresCatalog(sqlDB)
	b.geocodeCache = cache.NewSQLGeocodeCache(sqlDB)
}

// buildProvider returns the ORS client guarded by the resilient wrapper, or
// the straight-line estimator alone when no API key is configured.
func buildProvider(cfg config.Config, b *backends, zl *zap.Logger) (ports.DistanceProvider, ports.Geocoder, error) {
	estimator := distance.NewEstimator(cfg.Speeds)
	if cfg.ORSAPIKey == "" {
		zl.Warn("ORS_API_KEY not set, distances are estimated and addresses cannot be geocoded")
		return estimator, nil, nil
	}

	var opts []distance.ORSOption
	if b.distanceCache != nil {
		opts = append(opts, distance.WithDistanceCache(b.distanceCache))
	}
	if b.geocodeCache != nil {
		opts = append(opts, distance.WithGeocodeCache(b.geocodeCache))
	}
	ors, err := distance.NewORSClient(cfg.ORSAPIKey, opts...)
	if err != nil {
		return nil, nil, err
	}

	provider := distance.NewResilientProvider(ors, estimator, distance.ResilienceConfig{
		RatePerSecond: cfg.ORSRatePerSecond,
		Burst:         cfg.ORSBurst,
		FailureTrip:   cfg.BreakerFailures,
		OpenTimeout:   cfg.BreakerOpenPeriod,
	}, zl)
	return provider, ors, nil
}

func run(ctx context.Context, cfg config.Config, zl *zap.Logger) error {
	b, err := openBackends(ctx, cfg, zl)
	if err != nil {
		return fmt.Errorf("open backends: %w", err)
	}
	defer b.close()

	provider, geocoder, err := buildProvider(cfg, b, zl)
	if err != nil {
		return fmt.Errorf("build provider: %w", err)
	}

	tables, err := services.DefaultSlotTables()
	if cfg.SlotTablesPath != "" {
		tables, err = services.LoadSlotTables(cfg.SlotTablesPath)
	}
	if err != nil {
		return fmt.Errorf("slot tables: %w", err)
	}

	segments := services.NewSegmentBuilder(provider, cfg.Speeds)
	anchors := services.NewAnchorResolver(geocoder)
	optimizer := services.NewRouteOptimizer(provider, segments, services.OptimizerConfig{
		MaxIterations:  cfg.OptimizerMaxIter,
		TimeBudget:     cfg.OptimizerBudget,
		SlotPenalty:    cfg.SlotOrderPenalty,
		DwellMinutes:   cfg.DwellMinutes,
		DayStartMinute: cfg.DayStartMinute,
	})
	svc := services.NewItineraryService(
		services.NewScoreEngine(cfg.ScoreParallelism),
		services.NewSlotAllocator(tables),
		optimizer,
		services.NewPartialUpdateCoordinator(b.store, b.catalog, segments, anchors),
		anchors,
		b.store,
		b.catalog,
		services.ItineraryConfig{
			TopN:              cfg.TopN,
			MaxStopsPerDay:    cfg.MaxStopsPerDay,
			DefaultTravelMode: cfg.DefaultTravelMode,
		},
	)

	// Timeouts are tuned for cold-cache route computation (external API latency).
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(svc, zl, cfg.MaxTripDays),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		zl.Info("server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	zl.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
