package dispatcher

import (
	"slices"

	"propertyvet/internal/screening/models"
)

// TierTable maps a tier to the providers it consults.
type TierTable map[models.Tier][]models.ProviderID

// DefaultTiers is the stock tier table.
func DefaultTiers() TierTable {
	return TierTable{
		models.TierBasic:    {models.ProviderPublicRecords},
		models.TierStandard: {models.ProviderCredit, models.ProviderPublicRecords},
		models.TierPremium: {
			models.ProviderCredit,
			models.ProviderPublicRecords,
			models.ProviderEmployment,
			models.ProviderIdentity,
		},
		models.TierEnterprise: {
			models.ProviderCredit,
			models.ProviderPublicRecords,
			models.ProviderEmployment,
			models.ProviderIdentity,
			models.ProviderOSINT,
		},
	}
}

// Providers returns the tier's providers in table order with duplicates removed.
// The bool is false when the tier has no entry.
func (t TierTable) Providers(tier models.Tier) ([]models.ProviderID, bool) {
	ids, ok := t[tier]
	if !ok {
		return nil, false
	}
	out := make([]models.ProviderID, 0, len(ids))
	for _, id := range ids {
		if id == "" || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out, true
}
