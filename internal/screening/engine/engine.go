// Package engine translates service configuration into the screening
// engine's tables and provider registry.
package engine

import (
	"errors"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"time"

	"propertyvet/internal/platform/config"
	"propertyvet/internal/screening/aggregator"
	"propertyvet/internal/screening/dispatcher"
	"propertyvet/internal/screening/models"
	"propertyvet/internal/screening/providers"
	"propertyvet/internal/screening/providers/httpjson"
	"propertyvet/internal/screening/providers/osint"
	"propertyvet/internal/screening/providers/simulated"
	"propertyvet/internal/screening/ratelimit"
	"propertyvet/internal/screening/recommend"
	"propertyvet/internal/screening/service"
)

// Tiers returns the stock tier table with configured tiers replacing
// their defaults.
func Tiers(cfg config.Screening) (dispatcher.TierTable, error) {
	table := dispatcher.DefaultTiers()
	for name, ids := range cfg.Tiers {
		tier := models.Tier(name)
		if !tier.IsValid() {
			return nil, fmt.Errorf("unknown tier %q", name)
		}
		table[tier] = providerIDs(ids)
	}
	return table, nil
}

// Weights returns the stock weight table with configured tables replacing
// their defaults.
func Weights(cfg config.Screening) (aggregator.WeightTable, error) {
	table := aggregator.DefaultWeightTable()
	if len(cfg.Weights.Global) > 0 {
		table.Global = weights(cfg.Weights.Global)
	}
	for name, w := range cfg.Weights.Tiers {
		tier := models.Tier(name)
		if !tier.IsValid() {
			return aggregator.WeightTable{}, fmt.Errorf("unknown tier %q in weights", name)
		}
		table.Tiers[tier] = weights(w)
	}
	return table, table.Validate()
}

// DispatcherConfig returns the dispatcher settings for cfg.
func DispatcherConfig(cfg config.Screening) (dispatcher.Config, error) {
	tiers, err := Tiers(cfg)
	if err != nil {
		return dispatcher.Config{}, err
	}
	dc := dispatcher.DefaultConfig()
	dc.Tiers = tiers
	dc.Retries = cfg.Retries
	if cfg.ProviderTimeout > 0 {
		dc.Timeout = cfg.ProviderTimeout
	}
	if len(cfg.ProviderTimeouts) > 0 {
		dc.Timeouts = make(map[models.ProviderID]time.Duration, len(cfg.ProviderTimeouts))
		for id, d := range cfg.ProviderTimeouts {
			dc.Timeouts[models.ProviderID(id)] = d
		}
	}
	return dc, nil
}

// Decider returns the recommendation engine for cfg.
func Decider(cfg config.Screening) (*recommend.Engine, error) {
	t := recommend.Thresholds{Low: cfg.Thresholds.Low, Medium: cfg.Thresholds.Medium, High: cfg.Thresholds.High}
	return recommend.New(t, cfg.MinCoverage)
}

// RateLimits converts per-provider quotas.
func RateLimits(cfg config.Screening) ratelimit.Limits {
	limits := make(ratelimit.Limits, len(cfg.RateLimits))
	for id, n := range cfg.RateLimits {
		limits[models.ProviderID(id)] = n
	}
	return limits
}

// ControllerConfig returns the controller settings for cfg.
func ControllerConfig(cfg config.Screening) service.Config {
	return service.Config{
		MaxConcurrent:  cfg.MaxConcurrent,
		RequestTimeout: cfg.RequestTimeout,
		Retention:      cfg.Retention,
		SweepInterval:  cfg.SweepInterval,
	}
}

// Registry builds the provider registry. Configured HTTP and OSINT backends
// replace the simulated adapter with the same id. client is shared by every
// network adapter and may be nil.
func Registry(cfg config.Providers, client *http.Client) (*providers.Registry, error) {
	adapters := map[models.ProviderID]providers.Adapter{}
	if cfg.Simulated {
		for _, a := range simulated.Defaults() {
			adapters[a.ID()] = a
		}
	}

	var errs []error
	for _, p := range cfg.HTTP {
		opts := []httpjson.Option{}
		if client != nil {
			opts = append(opts, httpjson.WithHTTPClient(client))
		}
		a, err := httpjson.New(httpjson.Config{
			ID:         models.ProviderID(p.ID),
			Endpoint:   p.Endpoint,
			HealthURL:  p.HealthURL,
			APIKey:     p.APIKey,
			Secret:     p.Secret,
			Categories: categories(p.Categories),
			ScoreMin:   p.ScoreMin,
			ScoreMax:   p.ScoreMax,
		}, opts...)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		adapters[a.ID()] = a
	}
	if cfg.OSINT.SearchURL != "" {
		a, err := osint.New(osint.Config{SearchURL: cfg.OSINT.SearchURL, AdverseTerms: cfg.OSINT.AdverseTerms}, client)
		if err != nil {
			errs = append(errs, err)
		} else {
			adapters[a.ID()] = a
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if len(adapters) == 0 {
		return nil, providers.ErrNoProvidersAvailable
	}

	registry := providers.NewRegistry()
	for _, id := range slices.Sorted(maps.Keys(adapters)) {
		registry.MustRegister(adapters[id])
	}
	return registry, nil
}

func providerIDs(ids []string) []models.ProviderID {
	out := make([]models.ProviderID, len(ids))
	for i, id := range ids {
		out[i] = models.ProviderID(id)
	}
	return out
}

func weights(w map[string]float64) aggregator.Weights {
	out := make(aggregator.Weights, len(w))
	for id, v := range w {
		out[models.ProviderID(id)] = v
	}
	return out
}

func categories(cs []string) []models.Category {
	out := make([]models.Category, len(cs))
	for i, c := range cs {
		out[i] = models.Category(c)
	}
	return out
}
