package providers

import (
	"fmt"
	"math"
	"slices"

	"propertyvet/internal/screening/models"
)

// Validate checks an ok result against the result contract: score within
// [0, 850] and confidence within [0, 100], both present and finite.
func Validate(r models.ProviderResult) error {
	if r.Status != models.StatusOK {
		return nil
	}
	if r.Score == nil || r.Confidence == nil {
		return fmt.Errorf("ok result requires score and confidence")
	}
	if s := *r.Score; math.IsNaN(s) || s < models.MinScore || s > models.MaxScore {
		return fmt.Errorf("score %v outside [%v, %v]", s, models.MinScore, models.MaxScore)
	}
	if c := *r.Confidence; math.IsNaN(c) || c < 0 || c > models.MaxConfidence {
		return fmt.Errorf("confidence %v outside [0, %v]", c, models.MaxConfidence)
	}
	return nil
}

// RestrictVerdicts drops verdicts for categories the adapter did not declare.
func RestrictVerdicts(verdicts map[models.Category]models.Verdict, allowed []models.Category) map[models.Category]models.Verdict {
	if len(verdicts) == 0 {
		return nil
	}
	out := make(map[models.Category]models.Verdict, len(verdicts))
	for cat, v := range verdicts {
		if slices.Contains(allowed, cat) {
			out[cat] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Failed builds a non-ok result for err. Score and confidence are always nil.
func Failed(id models.ProviderID, err error) models.ProviderResult {
	category := GetCategory(err)
	return models.ProviderResult{
		Provider:      id,
		Status:        StatusFor(category),
		Error:         err.Error(),
		ErrorCategory: string(category),
	}
}

// ClampScore bounds a raw score to the shared scale.
func ClampScore(v float64) float64 {
	return math.Max(models.MinScore, math.Min(models.MaxScore, v))
}

// ScaleTo850 maps a value from [lo, hi] onto the 0-850 scale.
func ScaleTo850(v, lo, hi float64) float64 {
	if hi <= lo {
		return 0
	}
	return ClampScore((v - lo) / (hi - lo) * models.MaxScore)
}
