package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propertyvet/internal/platform/config"
	"propertyvet/internal/screening/models"
	"propertyvet/internal/screening/providers"
)

func TestTiers(t *testing.T) {
	cfg := config.Default().Screening
	cfg.Tiers = map[string][]string{"basic": {"credit", "public_records"}}

	table, err := Tiers(cfg)
	require.NoError(t, err)
	assert.Equal(t, []models.ProviderID{models.ProviderCredit, models.ProviderPublicRecords}, table[models.TierBasic])
	assert.Len(t, table[models.TierEnterprise], 5, "unconfigured tiers keep defaults")

	cfg.Tiers = map[string][]string{"platinum": {"credit"}}
	_, err = Tiers(cfg)
	assert.ErrorContains(t, err, "platinum")
}

func TestWeights(t *testing.T) {
	cfg := config.Default().Screening
	cfg.Weights.Tiers = map[string]map[string]float64{"standard": {"credit": 0.5, "public_records": 0.5}}

	table, err := Weights(cfg)
	require.NoError(t, err)
	assert.Equal(t, 0.5, table.For(models.TierStandard)[models.ProviderCredit])
	assert.Equal(t, 0.4, table.For(models.TierPremium)[models.ProviderCredit])

	cfg.Weights.Global = map[string]float64{"credit": -1}
	_, err = Weights(cfg)
	assert.Error(t, err)
}

func TestDispatcherConfig(t *testing.T) {
	cfg := config.Default().Screening
	cfg.Retries = 0
	cfg.ProviderTimeout = 3 * time.Second
	cfg.ProviderTimeouts = map[string]time.Duration{"osint": 10 * time.Second}

	dc, err := DispatcherConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, 0, dc.Retries)
	assert.Equal(t, 3*time.Second, dc.Timeout)
	assert.Equal(t, 10*time.Second, dc.Timeouts[models.ProviderOSINT])
}

func TestDeciderRejectsBadThresholds(t *testing.T) {
	cfg := config.Default().Screening
	_, err := Decider(cfg)
	require.NoError(t, err)

	cfg.Thresholds.Low = 100
	_, err = Decider(cfg)
	assert.Error(t, err)
}

func TestRateLimits(t *testing.T) {
	limits := RateLimits(config.Default().Screening)
	assert.Equal(t, 60, limits[models.ProviderCredit])
	assert.Equal(t, 30, limits[models.ProviderOSINT])
}

func TestRegistry(t *testing.T) {
	t.Run("simulated", func(t *testing.T) {
		reg, err := Registry(config.Providers{Simulated: true}, nil)
		require.NoError(t, err)
		assert.Len(t, reg.IDs(), 5)
	})

	t.Run("http backend replaces simulated", func(t *testing.T) {
		reg, err := Registry(config.Providers{
			Simulated: true,
			HTTP: []config.HTTPProvider{{
				ID:         "credit",
				Endpoint:   "http://bureau.internal/check",
				Categories: []string{"identity"},
			}},
		}, nil)
		require.NoError(t, err)

		a, ok := reg.Get(models.ProviderCredit)
		require.True(t, ok)
		assert.Equal(t, providers.ProtocolHTTP, a.Capabilities().Protocol)
		assert.Len(t, reg.IDs(), 5)
	})

	t.Run("invalid backend", func(t *testing.T) {
		_, err := Registry(config.Providers{HTTP: []config.HTTPProvider{{ID: "credit", Endpoint: "http://x"}}}, nil)
		assert.ErrorContains(t, err, "category")
	})

	t.Run("nothing configured", func(t *testing.T) {
		_, err := Registry(config.Providers{}, nil)
		assert.ErrorIs(t, err, providers.ErrNoProvidersAvailable)
	})
}
