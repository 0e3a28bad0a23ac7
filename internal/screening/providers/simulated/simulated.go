// Package simulated provides deterministic in-process adapters for the five
// provider kinds. Outcomes are derived from a hash of the subject so the same
// applicant always gets the same result. Used for local runs, the CLI and tests.
package simulated

import (
	"context"
	"hash/fnv"
	"time"

	"propertyvet/internal/screening/models"
	"propertyvet/internal/screening/providers"
)

const version = "sim-1"

// Adapter simulates one verification source.
type Adapter struct {
	id      models.ProviderID
	kind    models.ProviderID
	latency time.Duration
	failure *providers.ErrorCategory
	down    bool
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLatency delays every Check by d, or until ctx is done.
func WithLatency(d time.Duration) Option {
	return func(a *Adapter) { a.latency = d }
}

// WithID registers the adapter under a different provider ID.
func WithID(id models.ProviderID) Option {
	return func(a *Adapter) { a.id = id }
}

// WithFailure makes every Check fail with the given category.
func WithFailure(category providers.ErrorCategory) Option {
	return func(a *Adapter) { a.failure = &category }
}

// WithHealthDown makes Health report the adapter as unavailable.
func WithHealthDown() Option {
	return func(a *Adapter) { a.down = true }
}

// New returns a simulated adapter of the given kind. Kind must be one of the
// models.Provider* constants.
func New(kind models.ProviderID, opts ...Option) *Adapter {
	a := &Adapter{id: kind, kind: kind}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Defaults returns one simulated adapter per provider kind.
func Defaults(opts ...Option) []providers.Adapter {
	kinds := []models.ProviderID{
		models.ProviderCredit,
		models.ProviderPublicRecords,
		models.ProviderEmployment,
		models.ProviderIdentity,
		models.ProviderOSINT,
	}
	out := make([]providers.Adapter, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, New(k, opts...))
	}
	return out
}

func (a *Adapter) ID() models.ProviderID { return a.id }

func (a *Adapter) Capabilities() providers.Capabilities {
	caps := providers.Capabilities{Protocol: providers.ProtocolInProcess, Version: version}
	switch a.kind {
	case models.ProviderCredit:
		caps.Categories = []models.Category{models.CategoryIdentity}
		caps.Description = "simulated credit bureau"
	case models.ProviderPublicRecords:
		caps.Categories = []models.Category{models.CategoryBackground}
		caps.Description = "simulated criminal and civil court index"
	case models.ProviderEmployment:
		caps.Categories = []models.Category{models.CategoryEmployment}
		caps.Description = "simulated employment verification"
	case models.ProviderIdentity:
		caps.Categories = []models.Category{models.CategoryIdentity}
		caps.Description = "simulated identity document check"
	case models.ProviderOSINT:
		caps.Categories = []models.Category{models.CategoryIdentity, models.CategoryBackground}
		caps.Description = "simulated open-source intelligence sweep"
	}
	return caps
}

func (a *Adapter) Health(context.Context) error {
	if a.down {
		return providers.NewProviderError(providers.ErrorProviderOutage, a.id, "simulated outage", nil)
	}
	return nil
}

func (a *Adapter) Check(ctx context.Context, req models.CheckRequest) (models.ProviderResult, error) {
	if a.latency > 0 {
		timer := time.NewTimer(a.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return models.ProviderResult{}, providers.NewProviderError(providers.ErrorTimeout, a.id, "simulated call abandoned", ctx.Err())
		case <-timer.C:
		}
	}
	if a.failure != nil {
		return models.ProviderResult{}, providers.NewProviderError(*a.failure, a.id, "simulated failure", nil)
	}

	seed := subjectSeed(req.Subject, a.kind)
	result := models.ProviderResult{Provider: a.id, Status: models.StatusOK}

	switch a.kind {
	case models.ProviderCredit:
		result = a.credit(result, seed)
	case models.ProviderPublicRecords:
		result = a.publicRecords(result, seed)
	case models.ProviderEmployment:
		result = a.employment(result, seed)
	case models.ProviderIdentity:
		result = a.identity(result, seed)
	case models.ProviderOSINT:
		result = a.osint(result, seed)
	default:
		return models.ProviderResult{}, providers.NewProviderError(providers.ErrorInternal, a.id, "unknown simulated kind "+string(a.kind), nil)
	}
	return result, nil
}

func (a *Adapter) credit(r models.ProviderResult, seed uint64) models.ProviderResult {
	score := 550 + float64(seed%300)
	delinquencies := int((seed >> 12) % 4)
	r.Score = models.Float(score)
	r.Confidence = models.Float(85 + float64((seed>>20)%15))
	r.Findings = map[string]any{
		"open_accounts":  int((seed >> 4) % 12),
		"delinquencies":  delinquencies,
		"bureau_version": version,
	}
	if score < 600 {
		r.Flags = append(r.Flags, "low_credit_score")
	}
	if delinquencies >= 3 {
		r.Flags = append(r.Flags, "recent_delinquencies")
	}
	r.Verdicts = map[models.Category]models.Verdict{models.CategoryIdentity: models.VerdictConfirmed}
	return r
}

// publicRecords scores 850 less 200 per criminal and 50 per civil record.
func (a *Adapter) publicRecords(r models.ProviderResult, seed uint64) models.ProviderResult {
	criminal := 0
	if seed%10 == 0 {
		criminal = 1
	}
	civil := int((seed >> 8) % 3)
	score := providers.ClampScore(850 - float64(criminal)*200 - float64(civil)*50)

	r.Score = models.Float(score)
	r.Confidence = models.Float(90)
	r.Findings = map[string]any{
		"criminal_records": criminal,
		"civil_records":    civil,
		"evictions":        0,
	}
	verdict := models.VerdictConfirmed
	if criminal > 0 {
		r.Flags = append(r.Flags, "criminal_record")
		verdict = models.VerdictNegative
	}
	if civil > 0 {
		r.Flags = append(r.Flags, "civil_judgment")
	}
	r.Verdicts = map[models.Category]models.Verdict{models.CategoryBackground: verdict}
	return r
}

func (a *Adapter) employment(r models.ProviderResult, seed uint64) models.ProviderResult {
	r.Score = models.Float(700)
	r.Confidence = models.Float(80)
	verdict := models.VerdictConfirmed
	if seed%7 == 0 {
		verdict = models.VerdictInconclusive
		r.Flags = append(r.Flags, "employment_unverified")
	}
	r.Findings = map[string]any{"tenure_months": int(seed % 120)}
	r.Verdicts = map[models.Category]models.Verdict{models.CategoryEmployment: verdict}
	return r
}

func (a *Adapter) identity(r models.ProviderResult, seed uint64) models.ProviderResult {
	r.Score = models.Float(800)
	r.Confidence = models.Float(95)
	verdict := models.VerdictConfirmed
	if seed%13 == 0 {
		verdict = models.VerdictNegative
		r.Flags = append(r.Flags, "identity_mismatch")
	}
	r.Findings = map[string]any{"document_checked": true}
	r.Verdicts = map[models.Category]models.Verdict{models.CategoryIdentity: verdict}
	return r
}

// osint scores 850 less 120 per adverse mention.
func (a *Adapter) osint(r models.ProviderResult, seed uint64) models.ProviderResult {
	adverse := 0
	if seed%4 == 0 {
		adverse = 1
	}
	r.Score = models.Float(providers.ClampScore(850 - 120*float64(adverse)))
	r.Confidence = models.Float(60)
	r.Findings = map[string]any{"profiles": int(seed%3) + 1, "adverse_mentions": adverse}
	r.Verdicts = map[models.Category]models.Verdict{models.CategoryIdentity: models.VerdictConfirmed}
	if adverse > 0 {
		r.Flags = append(r.Flags, "adverse_media")
	} else {
		r.Verdicts[models.CategoryBackground] = models.VerdictConfirmed
	}
	return r
}

func subjectSeed(s models.Subject, kind models.ProviderID) uint64 {
	h := fnv.New64a()
	for _, part := range []string{s.NationalID, s.DateOfBirth, s.FullName, string(kind)} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return h.Sum64()
}
