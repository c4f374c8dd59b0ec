package config

import (
	"itinerary-route-service/internal/domain"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 8, cfg.MaxStopsPerDay)
	assert.Equal(t, 100, cfg.OptimizerMaxIter)
	assert.Equal(t, domain.TravelModeWalking, cfg.DefaultTravelMode)
	assert.Equal(t, 5.0, cfg.Speeds[domain.TravelModeWalking])
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("SPEED_WALKING_KMH", "4.5")
	t.Setenv("OPTIMIZER_BUDGET", "50ms")
	t.Setenv("DEFAULT_TRAVEL_MODE", "driving")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 4.5, cfg.Speeds[domain.TravelModeWalking])
	assert.Equal(t, 50*time.Millisecond, cfg.OptimizerBudget)
	assert.Equal(t, domain.TravelModeDriving, cfg.DefaultTravelMode)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"MAX_STOPS_PER_DAY":   "0",
		"TOP_N":               "many",
		"SPEED_DRIVING_KMH":   "-1",
		"DEFAULT_TRAVEL_MODE": "rocket",
		"OPTIMIZER_BUDGET":    "soon",

		"OPTIMIZER_MAX_ITERATIONS": "0",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
