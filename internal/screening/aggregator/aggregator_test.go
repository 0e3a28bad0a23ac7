package aggregator

import (
	"encoding/json"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propertyvet/internal/screening/models"
)

func ok(id models.ProviderID, score, confidence float64, categories []models.Category, verdicts map[models.Category]models.Verdict, flags ...string) models.ProviderResult {
	return models.ProviderResult{
		Provider:   id,
		Status:     models.StatusOK,
		Score:      models.Float(score),
		Confidence: models.Float(confidence),
		Categories: categories,
		Verdicts:   verdicts,
		Flags:      flags,
	}
}

func failed(id models.ProviderID, status models.Status, categories ...models.Category) models.ProviderResult {
	return models.ProviderResult{Provider: id, Status: status, Categories: categories, Error: "unavailable"}
}

var (
	identityOnly   = []models.Category{models.CategoryIdentity}
	backgroundOnly = []models.Category{models.CategoryBackground}
)

func TestAggregate(t *testing.T) {
	t.Run("full coverage is the weighted mean", func(t *testing.T) {
		results := []models.ProviderResult{
			ok(models.ProviderCredit, 720, 90, identityOnly, nil),
			ok(models.ProviderPublicRecords, 800, 85, backgroundOnly, nil),
		}

		agg := Aggregate(results, DefaultWeightTable().For(models.TierStandard), nil)

		assert.Equal(t, 752.0, agg.CompositeScore)
		assert.Equal(t, 1.0, agg.Coverage)
		assert.Equal(t, 2, agg.OKCount)
		assert.Equal(t, 2, agg.RequestedCount)
		assert.Equal(t, 88.0, agg.MeanConfidence)
	})

	t.Run("single ok provider renormalizes to its own score", func(t *testing.T) {
		results := []models.ProviderResult{
			ok(models.ProviderCredit, 640, 70, identityOnly, nil),
			failed(models.ProviderPublicRecords, models.StatusTimeout, models.CategoryBackground),
		}

		agg := Aggregate(results, DefaultWeightTable().For(models.TierStandard), nil)

		assert.Equal(t, 640.0, agg.CompositeScore)
		assert.Equal(t, 0.5, agg.Coverage)
		assert.Equal(t, 1, agg.OKCount)
	})

	t.Run("non-ok results are excluded, not treated as zero", func(t *testing.T) {
		results := []models.ProviderResult{
			ok(models.ProviderCredit, 700, 80, nil, nil),
			ok(models.ProviderPublicRecords, 800, 80, nil, nil),
			failed(models.ProviderEmployment, models.StatusError),
			failed(models.ProviderIdentity, models.StatusRateLimited),
		}

		agg := Aggregate(results, DefaultWeightTable().For(models.TierPremium), nil)

		// 700*0.4/0.7 + 800*0.3/0.7
		assert.Equal(t, 742.86, agg.CompositeScore)
		assert.Equal(t, 0.5, agg.Coverage)
	})

	t.Run("zero ok results yield zero score and coverage", func(t *testing.T) {
		results := []models.ProviderResult{
			failed(models.ProviderCredit, models.StatusTimeout, models.CategoryIdentity),
			failed(models.ProviderPublicRecords, models.StatusError, models.CategoryBackground),
		}

		agg := Aggregate(results, DefaultWeightTable().For(models.TierStandard), nil)

		assert.Zero(t, agg.CompositeScore)
		assert.Zero(t, agg.Coverage)
		assert.Zero(t, agg.OKCount)
		assert.Equal(t, map[models.Category]bool{
			models.CategoryIdentity:   false,
			models.CategoryBackground: false,
		}, agg.CrossValidation)
		assert.Empty(t, agg.Flags)
	})

	t.Run("empty input", func(t *testing.T) {
		agg := Aggregate(nil, DefaultWeightTable().Global, nil)

		assert.Zero(t, agg.CompositeScore)
		assert.Zero(t, agg.Coverage)
		assert.NotNil(t, agg.Providers)
		assert.False(t, agg.AllCrossValidated())
	})

	t.Run("zero total weight falls back to the unweighted mean", func(t *testing.T) {
		results := []models.ProviderResult{
			ok(models.ProviderOSINT, 600, 60, nil, nil),
			ok(models.ProviderIdentity, 800, 90, nil, nil),
		}

		agg := Aggregate(results, Weights{models.ProviderCredit: 1}, nil)

		assert.Equal(t, 700.0, agg.CompositeScore)
	})

	t.Run("unregistered providers count against coverage", func(t *testing.T) {
		results := []models.ProviderResult{ok(models.ProviderPublicRecords, 800, 85, nil, nil)}

		agg := Aggregate(results, DefaultWeightTable().For(models.TierStandard), []models.ProviderID{models.ProviderCredit})

		assert.Equal(t, 0.5, agg.Coverage)
		assert.Equal(t, 2, agg.RequestedCount)
		assert.Equal(t, 1, agg.OKCount)
		assert.Equal(t, 800.0, agg.CompositeScore)
		assert.Equal(t, []models.ProviderID{models.ProviderCredit}, agg.Unregistered)
	})

	t.Run("one ok of four requested", func(t *testing.T) {
		results := []models.ProviderResult{ok(models.ProviderCredit, 800, 90, nil, nil)}
		missing := []models.ProviderID{
			models.ProviderPublicRecords, models.ProviderIdentity, models.ProviderEmployment, models.ProviderIdentity,
		}

		agg := Aggregate(results, DefaultWeightTable().For(models.TierPremium), missing)

		assert.Equal(t, 4, agg.RequestedCount)
		assert.Equal(t, 0.25, agg.Coverage)
		assert.Equal(t, []models.ProviderID{models.ProviderEmployment, models.ProviderIdentity, models.ProviderPublicRecords}, agg.Unregistered)
	})

	t.Run("coverage is rounded to four places", func(t *testing.T) {
		results := []models.ProviderResult{
			ok(models.ProviderCredit, 700, 80, nil, nil),
			failed(models.ProviderPublicRecords, models.StatusError),
			failed(models.ProviderEmployment, models.StatusError),
		}

		agg := Aggregate(results, DefaultWeightTable().Global, nil)

		assert.Equal(t, 0.3333, agg.Coverage)
	})
}

func TestCrossValidation(t *testing.T) {
	confirmedIdentity := map[models.Category]models.Verdict{models.CategoryIdentity: models.VerdictConfirmed}
	negativeIdentity := map[models.Category]models.Verdict{models.CategoryIdentity: models.VerdictNegative}
	confirmedBackground := map[models.Category]models.Verdict{models.CategoryBackground: models.VerdictConfirmed}

	t.Run("any confirming ok provider sets the flag", func(t *testing.T) {
		results := []models.ProviderResult{
			ok(models.ProviderCredit, 700, 80, identityOnly, negativeIdentity),
			ok(models.ProviderIdentity, 800, 95, identityOnly, confirmedIdentity),
			ok(models.ProviderPublicRecords, 800, 85, backgroundOnly, confirmedBackground),
		}

		agg := Aggregate(results, DefaultWeightTable().Global, nil)

		assert.True(t, agg.CrossValidation[models.CategoryIdentity])
		assert.True(t, agg.CrossValidation[models.CategoryBackground])
		assert.True(t, agg.AllCrossValidated())
	})

	t.Run("failed providers cannot confirm but keep the category expected", func(t *testing.T) {
		identity := failed(models.ProviderIdentity, models.StatusTimeout, models.CategoryIdentity)
		identity.Verdicts = confirmedIdentity
		results := []models.ProviderResult{
			identity,
			ok(models.ProviderPublicRecords, 800, 85, backgroundOnly, confirmedBackground),
		}

		agg := Aggregate(results, DefaultWeightTable().Global, nil)

		assert.False(t, agg.CrossValidation[models.CategoryIdentity])
		assert.True(t, agg.CrossValidation[models.CategoryBackground])
		assert.False(t, agg.AllCrossValidated())
	})

	t.Run("inconclusive is not confirmation", func(t *testing.T) {
		results := []models.ProviderResult{
			ok(models.ProviderEmployment, 700, 80, []models.Category{models.CategoryEmployment},
				map[models.Category]models.Verdict{models.CategoryEmployment: models.VerdictInconclusive}),
		}

		agg := Aggregate(results, DefaultWeightTable().Global, nil)

		assert.Equal(t, map[models.Category]bool{models.CategoryEmployment: false}, agg.CrossValidation)
	})
}

func TestFlagsUnion(t *testing.T) {
	results := []models.ProviderResult{
		ok(models.ProviderPublicRecords, 650, 85, nil, nil, "criminal_record", "civil_judgment"),
		ok(models.ProviderCredit, 580, 90, nil, nil, "low_credit_score", "criminal_record"),
		failed(models.ProviderEmployment, models.StatusError),
	}

	agg := Aggregate(results, DefaultWeightTable().Global, nil)

	assert.Equal(t, []string{"low_credit_score", "criminal_record", "civil_judgment"}, agg.Flags)
}

// =============================================================================
// Determinism
// =============================================================================
// Justification: results arrive in completion order, so the reduction must be
// byte-identical for any permutation of the same set.

func TestAggregateIsDeterministic(t *testing.T) {
	results := []models.ProviderResult{
		ok(models.ProviderCredit, 712.5, 90, identityOnly,
			map[models.Category]models.Verdict{models.CategoryIdentity: models.VerdictConfirmed}, "recent_delinquencies"),
		ok(models.ProviderPublicRecords, 650, 85, backgroundOnly,
			map[models.Category]models.Verdict{models.CategoryBackground: models.VerdictNegative}, "criminal_record"),
		failed(models.ProviderEmployment, models.StatusTimeout, models.CategoryEmployment),
		ok(models.ProviderIdentity, 800, 95, identityOnly, nil),
		failed(models.ProviderOSINT, models.StatusRateLimited, models.CategoryIdentity, models.CategoryBackground),
	}
	weights := DefaultWeightTable().For(models.TierEnterprise)

	want, err := json.Marshal(Aggregate(results, weights, nil))
	require.NoError(t, err)

	again, err := json.Marshal(Aggregate(results, weights, nil))
	require.NoError(t, err)
	assert.Equal(t, string(want), string(again))

	rng := rand.New(rand.NewPCG(1, 2))
	for range 20 {
		shuffled := slices.Clone(results)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		got, err := json.Marshal(Aggregate(shuffled, weights, nil))
		require.NoError(t, err)
		assert.Equal(t, string(want), string(got))
	}
}

func TestAggregateDoesNotMutateInput(t *testing.T) {
	results := []models.ProviderResult{
		ok(models.ProviderPublicRecords, 800, 85, nil, nil),
		ok(models.ProviderCredit, 700, 80, nil, nil),
	}

	Aggregate(results, DefaultWeightTable().Global, nil)

	assert.Equal(t, models.ProviderPublicRecords, results[0].Provider)
}

func TestWeightTable(t *testing.T) {
	table := DefaultWeightTable()
	require.NoError(t, table.Validate())

	assert.Equal(t, 0.6, table.For(models.TierStandard)[models.ProviderCredit])
	assert.Equal(t, table.Global, table.For(models.Tier("custom")))

	table.Tiers[models.TierBasic] = Weights{models.ProviderPublicRecords: -1}
	assert.Error(t, table.Validate())
}
