// Package models holds the value types shared by every stage of the screening
// pipeline: the request, per-provider results, the aggregate, the decision and
// the published report.
package models

import (
	"time"
)

// Tier is the requested thoroughness of a check.
type Tier string

const (
	TierBasic      Tier = "basic"
	TierStandard   Tier = "standard"
	TierPremium    Tier = "premium"
	TierEnterprise Tier = "enterprise"
)

// Tiers lists the known tiers from least to most thorough.
var Tiers = []Tier{TierBasic, TierStandard, TierPremium, TierEnterprise}

func (t Tier) IsValid() bool {
	switch t {
	case TierBasic, TierStandard, TierPremium, TierEnterprise:
		return true
	}
	return false
}

// ProviderID names a verification source.
type ProviderID string

const (
	ProviderCredit        ProviderID = "credit"
	ProviderPublicRecords ProviderID = "public_records"
	ProviderEmployment    ProviderID = "employment"
	ProviderIdentity      ProviderID = "identity"
	ProviderOSINT         ProviderID = "osint"
)

// Category is a cross-validation dimension.
type Category string

const (
	CategoryIdentity   Category = "identity"
	CategoryBackground Category = "background"
	CategoryEmployment Category = "employment"
)

// Verdict is a provider's finding on one Category. A missing verdict means the
// provider said nothing, which is distinct from VerdictNegative.
type Verdict string

const (
	VerdictConfirmed    Verdict = "confirmed"
	VerdictNegative     Verdict = "negative"
	VerdictInconclusive Verdict = "inconclusive"
)

// Status is the outcome of one provider call.
type Status string

const (
	StatusOK          Status = "ok"
	StatusTimeout     Status = "timeout"
	StatusRateLimited Status = "rate_limited"
	StatusError       Status = "error"
)

// Score bounds shared by providers and the composite.
const (
	MinScore      = 0.0
	MaxScore      = 850.0
	MaxConfidence = 100.0
)

// ProviderResult is the normalized output of one adapter call.
type ProviderResult struct {
	Provider   ProviderID `json:"provider"`
	Status     Status     `json:"status"`
	Score      *float64   `json:"score,omitempty"`
	Confidence *float64   `json:"confidence,omitempty"`
	// Findings is adapter-specific detail kept for audit; the engine never reads it.
	Findings      map[string]any       `json:"findings,omitempty"`
	Flags         []string             `json:"flags,omitempty"`
	Verdicts      map[Category]Verdict `json:"verdicts,omitempty"`
	Categories    []Category           `json:"categories,omitempty"`
	Error         string               `json:"error,omitempty"`
	ErrorCategory string               `json:"error_category,omitempty"`
	Attempts      int                  `json:"attempts"`
	LatencyMillis int64                `json:"latency_ms"`
}

// OK reports whether the result may contribute to aggregation.
func (r ProviderResult) OK() bool {
	return r.Status == StatusOK && r.Score != nil && r.Confidence != nil
}

// Float returns a pointer to v, for building results.
func Float(v float64) *float64 { return &v }

// AggregatedResult is the reduction of a request's provider results.
type AggregatedResult struct {
	CompositeScore  float64           `json:"composite_score"`
	Coverage        float64           `json:"coverage"`
	MeanConfidence  float64           `json:"mean_confidence"`
	OKCount         int               `json:"ok_count"`
	RequestedCount  int               `json:"requested_count"`
	CrossValidation map[Category]bool `json:"cross_validation"`
	Flags           []string          `json:"flags"`
	Providers       []ProviderResult  `json:"providers"`
	Unregistered    []ProviderID      `json:"unregistered,omitempty"`
}

// AllCrossValidated reports whether every expected category was confirmed.
// An empty map is not considered validated.
func (a AggregatedResult) AllCrossValidated() bool {
	if len(a.CrossValidation) == 0 {
		return false
	}
	for _, ok := range a.CrossValidation {
		if !ok {
			return false
		}
	}
	return true
}

// RiskLevel is the score band.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskVeryHigh RiskLevel = "VERY_HIGH"
)

// Decision is the categorical outcome.
type Decision string

const (
	DecisionApprove               Decision = "approve"
	DecisionApproveWithConditions Decision = "approve_with_conditions"
	DecisionManualReview          Decision = "manual_review"
	DecisionDecline               Decision = "decline"
)

// Recommendation is the decision plus its human-facing follow-ups.
type Recommendation struct {
	Decision   Decision `json:"decision"`
	Reason     string   `json:"reason"`
	Actions    []string `json:"actions"`
	Advisories []string `json:"advisories,omitempty"`
}

// Lifecycle is the state of a request inside the controller.
type Lifecycle string

const (
	LifecyclePending    Lifecycle = "PENDING"
	LifecycleInProgress Lifecycle = "IN_PROGRESS"
	LifecycleCompleted  Lifecycle = "COMPLETED"
	LifecycleFailed     Lifecycle = "FAILED"
)

func (l Lifecycle) IsTerminal() bool {
	return l == LifecycleCompleted || l == LifecycleFailed
}

// Report is the terminal payload handed to publication sinks.
type Report struct {
	RequestID      string           `json:"request_id"`
	Tier           Tier             `json:"tier"`
	SubjectRef     string           `json:"subject_ref"`
	PropertyID     string           `json:"property_id,omitempty"`
	Callback       string           `json:"-"`
	State          Lifecycle        `json:"state"`
	Result         AggregatedResult `json:"result"`
	RiskLevel      RiskLevel        `json:"risk_level"`
	Recommendation Recommendation   `json:"recommendation"`
	Failure        string           `json:"failure,omitempty"`
	SubmittedAt    time.Time        `json:"submitted_at"`
	StartedAt      time.Time        `json:"started_at"`
	CompletedAt    time.Time        `json:"completed_at"`
	DurationMillis int64            `json:"duration_ms"`
}
