package config

import (
	"fmt"
	"itinerary-route-service/internal/domain"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the process configuration read from the environment.
// Optional backends (Postgres, Redis, ORS) are disabled when left empty.
type Config struct {
	Env      string
	LogLevel string
	Port     string

	DatabaseURL string
	RedisAddr   string
	RedisTTL    time.Duration

	ORSAPIKey         string
	ORSRatePerSecond  float64
	ORSBurst          int
	BreakerFailures   uint32
	BreakerOpenPeriod time.Duration

	SlotTablesPath string
	Speeds         domain.SpeedTable

	MaxTripDays       int
	TopN              int
	ScoreParallelism  int
	MaxStopsPerDay    int
	DwellMinutes      int
	DayStartMinute    int
	OptimizerMaxIter  int
	OptimizerBudget   time.Duration
	SlotOrderPenalty  float64
	DefaultTravelMode domain.TravelMode
}

// Get returns the environment value for key, or fallback when unset or blank.
func Get(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// Load reads the configuration from the environment and validates it.
func Load() (Config, error) {
	p := &parser{}

	cfg := Config{
		Env:      Get("APP_ENV", "dev"),
		LogLevel: Get("LOG_LEVEL", ""),
		Port:     Get("PORT", "8080"),

		DatabaseURL: Get("DATABASE_URL", ""),
		RedisAddr:   Get("REDIS_ADDR", ""),
		RedisTTL:    p.duration("REDIS_TTL", 24*time.Hour),

		ORSAPIKey:         Get("ORS_API_KEY", ""),
		ORSRatePerSecond:  p.float("ORS_RATE_PER_SECOND", 0.6),
		ORSBurst:          p.int("ORS_BURST", 1),
		BreakerFailures:   uint32(p.int("BREAKER_FAILURES", 5)),
		BreakerOpenPeriod: p.duration("BREAKER_OPEN_PERIOD", 30*time.Second),

		SlotTablesPath: Get("SLOT_TABLES_PATH", ""),
		Speeds:         domain.DefaultSpeeds(),

		MaxTripDays:      p.int("MAX_TRIP_DAYS", 14),
		TopN:             p.int("TOP_N", 12),
		ScoreParallelism: p.int("SCORE_PARALLELISM", 8),
		MaxStopsPerDay:   p.int("MAX_STOPS_PER_DAY", 8),
		DwellMinutes:     p.int("DWELL_MINUTES", 60),
		DayStartMinute:   p.int("DAY_START_MINUTE", 9*60),
		OptimizerMaxIter: p.int("OPTIMIZER_MAX_ITERATIONS", 100),
		OptimizerBudget:  p.duration("OPTIMIZER_BUDGET", 200*time.Millisecond),
		SlotOrderPenalty: p.float("SLOT_ORDER_PENALTY", 300),
	}

	for mode, key := range map[domain.TravelMode]string{
		domain.TravelModeDriving:   "SPEED_DRIVING_KMH",
		domain.TravelModeWalking:   "SPEED_WALKING_KMH",
		domain.TravelModeTransit:   "SPEED_TRANSIT_KMH",
		domain.TravelModeBicycling: "SPEED_BICYCLING_KMH",
	} {
		cfg.Speeds[mode] = p.float(key, cfg.Speeds[mode])
	}

	mode, err := domain.ParseTravelMode(Get("DEFAULT_TRAVEL_MODE", string(domain.TravelModeWalking)))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("DEFAULT_TRAVEL_MODE: %w", err))
	}
	cfg.DefaultTravelMode = mode

	if len(p.errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", p.errs[0])
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch {
	case c.MaxTripDays < 0:
		return fmt.Errorf("MAX_TRIP_DAYS must be >= 0, got %d", c.MaxTripDays)
	case c.TopN < 0:
		return fmt.Errorf("TOP_N must be >= 0, got %d", c.TopN)
	case c.ScoreParallelism < 1:
		return fmt.Errorf("SCORE_PARALLELISM must be >= 1, got %d", c.ScoreParallelism)
	case c.MaxStopsPerDay < 1:
		return fmt.Errorf("MAX_STOPS_PER_DAY must be >= 1, got %d", c.MaxStopsPerDay)
	case c.DwellMinutes < 0:
		return fmt.Errorf("DWELL_MINUTES must be >= 0, got %d", c.DwellMinutes)
	case c.DayStartMinute < 0 || c.DayStartMinute >= 24*60:
		return fmt.Errorf("DAY_START_MINUTE must be within a day, got %d", c.DayStartMinute)
	case c.OptimizerMaxIter < 1:
		return fmt.Errorf("OPTIMIZER_MAX_ITERATIONS must be >= 1, got %d", c.OptimizerMaxIter)
	case c.ORSRatePerSecond <= 0:
		return fmt.Errorf("ORS_RATE_PER_SECOND must be > 0, got %v", c.ORSRatePerSecond)
	}
	for mode, kmh := range c.Speeds {
		if kmh <= 0 {
			return fmt.Errorf("speed for %s must be > 0, got %v", mode, kmh)
		}
	}
	return nil
}

// parser records parse errors and keeps the fallback so Load can report the first one.
type parser struct {
	errs []error
}

func (p *parser) int(key string, fallback int) int {
	raw := Get(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: parse int %q: %w", key, raw, err))
		return fallback
	}
	return v
}

func (p *parser) float(key string, fallback float64) float64 {
	raw := Get(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: parse float %q: %w", key, raw, err))
		return fallback
	}
	return v
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	raw := Get(key, "")
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: parse duration %q: %w", key, raw, err))
		return fallback
	}
	return v
}
