// Package recommend maps an aggregated result to a risk level and a
// recommendation. It is pure domain logic with no I/O.
package recommend

import (
	"fmt"
	"math"
	"slices"

	"propertyvet/internal/screening/models"
)

const (
	DefaultMinCoverage = 0.5

	// FlagProcessingError marks a result produced by an internal fault.
	FlagProcessingError = "processing_error"
)

// Thresholds are inclusive lower bounds for each risk band. Scores below High
// are VERY_HIGH.
type Thresholds struct {
	Low    float64 `yaml:"low" json:"low"`
	Medium float64 `yaml:"medium" json:"medium"`
	High   float64 `yaml:"high" json:"high"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{Low: 750, Medium: 650, High: 550}
}

// Validate requires strictly ordered, non-negative bands.
func (t Thresholds) Validate() error {
	if t.High < 0 || math.IsNaN(t.High) {
		return fmt.Errorf("high threshold must be >= 0, got %v", t.High)
	}
	if !(t.Low > t.Medium && t.Medium > t.High) {
		return fmt.Errorf("thresholds must satisfy low > medium > high, got %v/%v/%v", t.Low, t.Medium, t.High)
	}
	return nil
}

// Level returns the risk band for score.
func (t Thresholds) Level(score float64) models.RiskLevel {
	switch {
	case score >= t.Low:
		return models.RiskLow
	case score >= t.Medium:
		return models.RiskMedium
	case score >= t.High:
		return models.RiskHigh
	default:
		return models.RiskVeryHigh
	}
}

// Engine applies the decision rules with a fixed configuration.
type Engine struct {
	thresholds  Thresholds
	minCoverage float64
}

// New validates thresholds and minCoverage and returns an Engine.
func New(thresholds Thresholds, minCoverage float64) (*Engine, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	if minCoverage < 0 || minCoverage > 1 || math.IsNaN(minCoverage) {
		return nil, fmt.Errorf("min coverage must be within [0, 1], got %v", minCoverage)
	}
	return &Engine{thresholds: thresholds, minCoverage: minCoverage}, nil
}

func (e *Engine) Thresholds() Thresholds { return e.thresholds }

// Decide derives the risk level and recommendation.
// Rule priority (first match wins):
//  1. No ok provider - nothing to score, decline
//  2. Coverage below minimum - not enough evidence, manual review
//  3. VERY_HIGH - decline
//  4. HIGH - manual review
//  5. LOW with every category cross-validated - approve
//  6. Anything else - approve with conditions
func (e *Engine) Decide(agg models.AggregatedResult) (models.RiskLevel, models.Recommendation) {
	// Rule 1: zero ok providers
	if agg.OKCount == 0 {
		return models.RiskVeryHigh, build(models.DecisionDecline, "no provider returned a usable result", agg.Flags)
	}

	level := e.thresholds.Level(agg.CompositeScore)

	// Rule 2: insufficient coverage overrides the score
	if agg.Coverage < e.minCoverage {
		reason := fmt.Sprintf("coverage %.2f below minimum %.2f", agg.Coverage, e.minCoverage)
		return level, build(models.DecisionManualReview, reason, agg.Flags)
	}

	switch level {
	case models.RiskVeryHigh:
		return level, build(models.DecisionDecline, fmt.Sprintf("composite score %.2f below %.0f", agg.CompositeScore, e.thresholds.High), agg.Flags)
	case models.RiskHigh:
		return level, build(models.DecisionManualReview, fmt.Sprintf("composite score %.2f in high risk band", agg.CompositeScore), agg.Flags)
	case models.RiskLow:
		if agg.AllCrossValidated() {
			return level, build(models.DecisionApprove, fmt.Sprintf("composite score %.2f with full cross-validation", agg.CompositeScore), agg.Flags)
		}
		return level, build(models.DecisionApproveWithConditions, fmt.Sprintf("composite score %.2f with partial cross-validation", agg.CompositeScore), agg.Flags)
	default:
		return level, build(models.DecisionApproveWithConditions, fmt.Sprintf("composite score %.2f in medium risk band", agg.CompositeScore), agg.Flags)
	}
}

// ProcessingFailure is the worst-case recommendation recorded when the
// pipeline faults.
func ProcessingFailure() (models.RiskLevel, models.Recommendation) {
	return models.RiskVeryHigh, models.Recommendation{
		Decision: models.DecisionManualReview,
		Reason:   "processing error",
		Actions:  []string{"Manual review required due to processing error"},
	}
}

func build(decision models.Decision, reason string, flags []string) models.Recommendation {
	return models.Recommendation{
		Decision:   decision,
		Reason:     reason,
		Actions:    Actions(decision),
		Advisories: Advisories(flags),
	}
}

var actionTable = map[models.Decision][]string{
	models.DecisionApprove: {
		"Proceed with standard lease terms",
		"Standard security deposit required",
		"Consider preferred tenant benefits",
		"Schedule lease signing appointment",
	},
	models.DecisionApproveWithConditions: {
		"Approve with additional security deposit",
		"Require co-signer or guarantor",
		"Consider shorter initial lease term",
		"Additional income verification required",
	},
	models.DecisionManualReview: {
		"Schedule manual review with leasing manager",
		"Request additional documentation",
		"Consider alternative verification methods",
		"Set review deadline within 48 hours",
	},
	models.DecisionDecline: {
		"Decline application professionally",
		"Provide adverse action notice if required",
		"Suggest alternative properties if appropriate",
		"Document decision reasoning",
	},
}

// Actions returns a copy of the ordered follow-up actions for decision.
func Actions(decision models.Decision) []string {
	return slices.Clone(actionTable[decision])
}

var advisoryTable = map[string]string{
	"low_credit_score":      "Low credit score - consider requiring co-signer",
	"recent_delinquencies":  "Recent delinquencies on credit file - verify payment history",
	"criminal_record":       "Criminal records found - review for property management suitability",
	"civil_judgment":        "Civil judgments found - review prior landlord disputes",
	"employment_unverified": "Employment could not be verified - request pay stubs",
	"identity_mismatch":     "Identity details do not match records - verify government ID in person",
	"adverse_media":         "Adverse media mentions found - review before approval",
}

// Advisories maps known flags to advisory text in flag order. Unknown flags
// are ignored.
func Advisories(flags []string) []string {
	var out []string
	for _, f := range flags {
		if text, ok := advisoryTable[f]; ok && !slices.Contains(out, text) {
			out = append(out, text)
		}
	}
	return out
}
