package aggregator

import (
	"fmt"
	"math"

	"propertyvet/internal/screening/models"
)

// Weights maps a provider to its relative weight. Weights need not sum to 1;
// they are renormalized over the providers that returned ok.
type Weights map[models.ProviderID]float64

// WeightTable holds a global table and optional per-tier overrides.
type WeightTable struct {
	Global Weights
	Tiers  map[models.Tier]Weights
}

// DefaultWeightTable returns the stock weights. The global table is the
// premium table; standard and enterprise carry their own.
func DefaultWeightTable() WeightTable {
	premium := Weights{
		models.ProviderCredit:        0.4,
		models.ProviderPublicRecords: 0.3,
		models.ProviderEmployment:    0.2,
		models.ProviderIdentity:      0.1,
	}
	return WeightTable{
		Global: premium,
		Tiers: map[models.Tier]Weights{
			models.TierBasic: {
				models.ProviderPublicRecords: 1.0,
			},
			models.TierStandard: {
				models.ProviderCredit:        0.6,
				models.ProviderPublicRecords: 0.4,
			},
			models.TierPremium: premium,
			models.TierEnterprise: {
				models.ProviderCredit:        0.35,
				models.ProviderPublicRecords: 0.25,
				models.ProviderEmployment:    0.15,
				models.ProviderIdentity:      0.1,
				models.ProviderOSINT:         0.15,
			},
		},
	}
}

// For returns the tier's weights, falling back to the global table.
func (t WeightTable) For(tier models.Tier) Weights {
	if w, ok := t.Tiers[tier]; ok && len(w) > 0 {
		return w
	}
	return t.Global
}

// Validate rejects negative or non-finite weights.
func (t WeightTable) Validate() error {
	check := func(scope string, w Weights) error {
		for id, v := range w {
			if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
				return fmt.Errorf("weight for %s in %s must be a finite non-negative number, got %v", id, scope, v)
			}
		}
		return nil
	}
	if err := check("global", t.Global); err != nil {
		return err
	}
	for tier, w := range t.Tiers {
		if err := check(string(tier), w); err != nil {
			return err
		}
	}
	return nil
}
