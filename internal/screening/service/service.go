// Package service is the orchestration controller. It owns the lifecycle of
// every check: admission, dispatch, aggregation, decision and publication.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"propertyvet/internal/screening/aggregator"
	"propertyvet/internal/screening/dispatcher"
	"propertyvet/internal/screening/metrics"
	"propertyvet/internal/screening/models"
	"propertyvet/internal/screening/ports"
	"propertyvet/internal/screening/providers"
	"propertyvet/internal/screening/ratelimit"
	"propertyvet/internal/screening/recommend"
	dErrors "propertyvet/pkg/domain-errors"
	"propertyvet/pkg/platform/audit"
	"propertyvet/pkg/platform/privacy"
	"propertyvet/pkg/requestcontext"
)

const (
	DefaultMaxConcurrent  = 10
	DefaultRequestTimeout = 120 * time.Second
	DefaultRetention      = 90 * 24 * time.Hour
	DefaultSweepInterval  = time.Hour
)

// Dispatcher runs the providers for a request.
type Dispatcher interface {
	Dispatch(ctx context.Context, req models.CheckRequest) (dispatcher.Outcome, error)
}

// Decider maps an aggregate to a risk level and recommendation.
type Decider interface {
	Decide(agg models.AggregatedResult) (models.RiskLevel, models.Recommendation)
}

type Config struct {
	MaxConcurrent  int
	RequestTimeout time.Duration
	Retention      time.Duration
	SweepInterval  time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.Retention <= 0 {
		c.Retention = DefaultRetention
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	return c
}

// Status is the externally visible state of one check. Report is set once the
// check is terminal.
type Status struct {
	RequestID   string           `json:"request_id"`
	State       models.Lifecycle `json:"status"`
	SubmittedAt time.Time        `json:"submitted_at"`
	StartedAt   time.Time        `json:"started_at,omitzero"`
	Report      *models.Report   `json:"report,omitempty"`
}

// Controller coordinates checks. The active and completed indices share one
// mutex; an entry is never visible in both.
type Controller struct {
	cfg        Config
	dispatcher Dispatcher
	decider    Decider
	weights    aggregator.WeightTable

	registry   *providers.Registry
	limiter    ratelimit.Limiter
	publisher  ports.ReportPublisher
	auditor    ports.AuditPort
	pseudonyms *privacy.Pseudonymizer
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	now        func() time.Time

	mu        sync.Mutex
	active    map[string]*models.Report
	completed map[string]*models.Report
	perf      performance

	inflight sync.WaitGroup
}

type Option func(*Controller)

// WithRegistry and WithLimiter feed SystemStatus.
func WithRegistry(r *providers.Registry) Option {
	return func(c *Controller) { c.registry = r }
}

func WithLimiter(l ratelimit.Limiter) Option {
	return func(c *Controller) { c.limiter = l }
}

func WithPublisher(p ports.ReportPublisher) Option {
	return func(c *Controller) { c.publisher = p }
}

func WithAuditor(a ports.AuditPort) Option {
	return func(c *Controller) { c.auditor = a }
}

func WithPseudonymizer(p *privacy.Pseudonymizer) Option {
	return func(c *Controller) { c.pseudonyms = p }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(c *Controller) { c.tracer = t }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func New(cfg Config, d Dispatcher, decider Decider, weights aggregator.WeightTable, opts ...Option) *Controller {
	c := &Controller{
		cfg:        cfg.withDefaults(),
		dispatcher: d,
		decider:    decider,
		weights:    weights,
		logger:     slog.Default(),
		tracer:     otel.Tracer("propertyvet/internal/screening/service"),
		now:        time.Now,
		active:     make(map[string]*models.Report),
		completed:  make(map[string]*models.Report),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit admits a request and runs it in the background. A request id that
// already completed is an idempotent replay and returns the id unchanged.
func (c *Controller) Submit(ctx context.Context, req models.CheckRequest) (string, error) {
	req, replay, err := c.admit(ctx, req)
	if err != nil {
		return "", err
	}
	if replay != nil {
		return replay.RequestID, nil
	}

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.RequestTimeout)
		defer cancel()
		c.run(runCtx, req)
	}()
	return req.ID, nil
}

// Execute admits a request and runs it on the caller's goroutine under ctx,
// bounded by the request timeout.
func (c *Controller) Execute(ctx context.Context, req models.CheckRequest) (models.Report, error) {
	req, replay, err := c.admit(ctx, req)
	if err != nil {
		return models.Report{}, err
	}
	if replay != nil {
		return *replay, nil
	}

	c.inflight.Add(1)
	defer c.inflight.Done()
	runCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()
	return c.run(runCtx, req), nil
}

// admit validates req and records it as PENDING. A non-nil report means the
// id already completed.
func (c *Controller) admit(ctx context.Context, req models.CheckRequest) (models.CheckRequest, *models.Report, error) {
	req = req.Normalized()
	if err := req.Validate(); err != nil {
		c.reject(ctx, req, "validation", err)
		return req, nil, err
	}

	c.mu.Lock()
	if _, exists := c.active[req.ID]; exists {
		c.mu.Unlock()
		err := dErrors.New(dErrors.CodeConflict, fmt.Sprintf("check %s is already in progress", req.ID))
		c.reject(ctx, req, "duplicate", err)
		return req, nil, err
	}
	if done, exists := c.completed[req.ID]; exists {
		replay := *done
		c.mu.Unlock()
		c.logger.InfoContext(ctx, "check already completed, returning stored result", "request_id", req.ID)
		return req, &replay, nil
	}
	if len(c.active) >= c.cfg.MaxConcurrent {
		c.mu.Unlock()
		err := dErrors.New(dErrors.CodeUnavailable, "too many checks in progress, retry later")
		c.reject(ctx, req, "capacity", err)
		return req, nil, err
	}
	report := &models.Report{
		RequestID:   req.ID,
		Tier:        req.Tier,
		SubjectRef:  c.subjectRef(req.Subject),
		PropertyID:  req.PropertyID,
		Callback:    req.Callback,
		State:       models.LifecyclePending,
		SubmittedAt: c.now(),
	}
	c.active[req.ID] = report
	active := len(c.active)
	c.mu.Unlock()

	c.metrics.SetActive(active)
	c.emit(ctx, audit.Event{
		Action:     string(audit.EventCheckSubmitted),
		CheckID:    req.ID,
		SubjectRef: report.SubjectRef,
		Tier:       string(req.Tier),
	})
	c.logger.InfoContext(ctx, "check submitted",
		"request_id", req.ID,
		"tier", req.Tier,
		"subject_ref", report.SubjectRef,
	)
	return req, nil, nil
}

func (c *Controller) reject(ctx context.Context, req models.CheckRequest, reason string, err error) {
	c.metrics.IncrementRejected(reason)
	c.logger.InfoContext(ctx, "check rejected", "request_id", req.ID, "reason", reason, "error", err)
	c.emit(ctx, audit.Event{
		Action:  string(audit.EventCheckRejected),
		CheckID: req.ID,
		Tier:    string(req.Tier),
		Reason:  reason,
	})
}

// run is the pipeline. Any panic is recovered and recorded as a FAILED check
// with the worst-case result.
func (c *Controller) run(ctx context.Context, req models.CheckRequest) (report models.Report) {
	ctx, span := c.tracer.Start(ctx, "controller.run", trace.WithAttributes(
		attribute.String("check.id", req.ID),
		attribute.String("check.tier", string(req.Tier)),
	))
	defer span.End()

	defer func() {
		if rec := recover(); rec != nil {
			c.logger.ErrorContext(ctx, "screening pipeline panicked",
				"request_id", req.ID,
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			report = c.finalize(ctx, req.ID, failure(fmt.Sprintf("internal fault: %v", rec)))
		}
	}()

	c.markInProgress(req.ID)

	outcome, err := c.dispatcher.Dispatch(ctx, req)
	if err != nil {
		c.logger.ErrorContext(ctx, "dispatch failed", "request_id", req.ID, "error", err)
		return c.finalize(ctx, req.ID, failure(err.Error()))
	}

	agg := aggregator.Aggregate(outcome.Results, c.weights.For(req.Tier), outcome.Unregistered)
	level, rec := c.decider.Decide(agg)
	span.SetAttributes(
		attribute.Float64("check.composite_score", agg.CompositeScore),
		attribute.String("check.decision", string(rec.Decision)),
	)
	return c.finalize(ctx, req.ID, terminal{
		state:          models.LifecycleCompleted,
		result:         agg,
		level:          level,
		recommendation: rec,
	})
}

type terminal struct {
	state          models.Lifecycle
	result         models.AggregatedResult
	level          models.RiskLevel
	recommendation models.Recommendation
	failure        string
}

func failure(reason string) terminal {
	level, rec := recommend.ProcessingFailure()
	return terminal{
		state: models.LifecycleFailed,
		result: models.AggregatedResult{
			CrossValidation: map[models.Category]bool{},
			Flags:           []string{recommend.FlagProcessingError},
			Providers:       []models.ProviderResult{},
		},
		level:          level,
		recommendation: rec,
		failure:        reason,
	}
}

func (c *Controller) markInProgress(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.active[id]; ok {
		r.State = models.LifecycleInProgress
		r.StartedAt = c.now()
	}
}

// finalize moves the entry from active to completed in one critical section,
// then publishes outside the lock.
func (c *Controller) finalize(ctx context.Context, id string, t terminal) models.Report {
	c.mu.Lock()
	entry, ok := c.active[id]
	if !ok {
		var report models.Report
		if done, exists := c.completed[id]; exists {
			report = *done
		}
		c.mu.Unlock()
		return report
	}

	report := *entry
	report.State = t.state
	report.Result = t.result
	report.RiskLevel = t.level
	report.Recommendation = t.recommendation
	report.Failure = t.failure
	report.CompletedAt = c.now()
	if report.StartedAt.IsZero() {
		report.StartedAt = report.SubmittedAt
	}
	report.DurationMillis = report.CompletedAt.Sub(report.StartedAt).Milliseconds()

	delete(c.active, id)
	stored := report
	c.completed[id] = &stored
	c.perf.record(report)
	active := len(c.active)
	c.mu.Unlock()

	c.metrics.SetActive(active)
	c.metrics.ObserveFinished(string(report.Tier), string(report.State), report.CompletedAt.Sub(report.StartedAt))
	c.metrics.IncrementDecision(string(report.Recommendation.Decision), string(report.RiskLevel))
	c.logger.InfoContext(ctx, "check finished",
		"request_id", id,
		"state", report.State,
		"composite_score", report.Result.CompositeScore,
		"coverage", report.Result.Coverage,
		"risk_level", report.RiskLevel,
		"decision", report.Recommendation.Decision,
		"duration_ms", report.DurationMillis,
	)

	if c.publisher != nil {
		if err := c.publisher.Publish(ctx, report); err != nil {
			c.logger.WarnContext(ctx, "report not accepted for publication", "request_id", id, "error", err)
		}
	}
	return report
}

// GetStatus returns the state of a check, with its report once terminal.
func (c *Controller) GetStatus(_ context.Context, id string) (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r, ok := c.active[id]; ok {
		return Status{RequestID: id, State: r.State, SubmittedAt: r.SubmittedAt, StartedAt: r.StartedAt}, nil
	}
	if r, ok := c.completed[id]; ok {
		report := *r
		return Status{RequestID: id, State: r.State, SubmittedAt: r.SubmittedAt, StartedAt: r.StartedAt, Report: &report}, nil
	}
	return Status{}, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("check %s not found", id))
}

// PruneCompleted drops completed checks that finished before cutoff and
// returns how many were removed.
func (c *Controller) PruneCompleted(ctx context.Context, cutoff time.Time) int {
	c.mu.Lock()
	pruned := 0
	for id, r := range c.completed {
		if r.CompletedAt.Before(cutoff) {
			delete(c.completed, id)
			pruned++
		}
	}
	c.mu.Unlock()

	if pruned > 0 {
		c.logger.InfoContext(ctx, "pruned completed checks", "count", pruned, "cutoff", cutoff)
		c.emit(ctx, audit.Event{
			Action: string(audit.EventResultsPruned),
			Reason: fmt.Sprintf("%d checks completed before %s", pruned, cutoff.Format(time.RFC3339)),
		})
	}
	return pruned
}

// RunRetention prunes expired results on every sweep interval until ctx is done.
func (c *Controller) RunRetention(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.PruneCompleted(ctx, c.now().Add(-c.cfg.Retention))
		}
	}
}

// Wait blocks until every background check has finished or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) subjectRef(s models.Subject) string {
	if c.pseudonyms == nil {
		return ""
	}
	return c.pseudonyms.Ref(s.NationalID, s.DateOfBirth)
}

func (c *Controller) emit(ctx context.Context, event audit.Event) {
	if c.auditor == nil {
		return
	}
	event.RequestID = requestcontext.RequestID(ctx)
	event.ActorID = requestcontext.Operator(ctx)
	if err := c.auditor.Emit(ctx, event); err != nil {
		c.logger.WarnContext(ctx, "audit emit failed", "action", event.Action, "check_id", event.CheckID, "error", err)
	}
}
