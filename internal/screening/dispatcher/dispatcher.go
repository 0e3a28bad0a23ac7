// Package dispatcher fans a check request out to the providers of its tier.
//
// Every admitted provider runs in its own goroutine under a per-attempt
// timeout, with transient failures retried on a bounded exponential backoff.
// Provider failures never fail the batch: each one becomes a non-ok
// ProviderResult.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"propertyvet/internal/screening/metrics"
	"propertyvet/internal/screening/models"
	"propertyvet/internal/screening/providers"
	"propertyvet/internal/screening/ratelimit"
)

const (
	DefaultTimeout = 30 * time.Second
	DefaultRetries = 2

	defaultBackoffInitial = 100 * time.Millisecond
	defaultBackoffMax     = 2 * time.Second
)

// Config controls fan-out. A zero Timeout or backoff interval takes the
// default; Retries is used as given, so zero disables retry.
type Config struct {
	Tiers          TierTable
	Timeout        time.Duration
	Timeouts       map[models.ProviderID]time.Duration
	Retries        int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// DefaultConfig returns the stock tier table, a 30s timeout and two retries.
func DefaultConfig() Config {
	return Config{
		Tiers:          DefaultTiers(),
		Timeout:        DefaultTimeout,
		Retries:        DefaultRetries,
		BackoffInitial: defaultBackoffInitial,
		BackoffMax:     defaultBackoffMax,
	}
}

// Outcome is the full result set for one request.
type Outcome struct {
	// Requested is the tier's provider list after deduplication.
	Requested []models.ProviderID
	// Results holds one entry per registered provider, in Requested order.
	Results []models.ProviderResult
	// Unregistered lists requested providers with no adapter.
	Unregistered []models.ProviderID
}

type Dispatcher struct {
	cfg      Config
	registry *providers.Registry
	limiter  ratelimit.Limiter
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) {
		d.tracer = t
	}
}

// New builds a Dispatcher. A nil limiter admits every call.
func New(cfg Config, registry *providers.Registry, limiter ratelimit.Limiter, opts ...Option) *Dispatcher {
	if cfg.Tiers == nil {
		cfg.Tiers = DefaultTiers()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = defaultBackoffInitial
	}
	if cfg.BackoffMax < cfg.BackoffInitial {
		cfg.BackoffMax = max(defaultBackoffMax, cfg.BackoffInitial)
	}
	d := &Dispatcher{
		cfg:      cfg,
		registry: registry,
		limiter:  limiter,
		logger:   slog.Default(),
		tracer:   otel.Tracer("propertyvet/internal/screening/dispatcher"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// TimeoutFor returns the per-attempt timeout for a provider.
func (d *Dispatcher) TimeoutFor(id models.ProviderID) time.Duration {
	if t, ok := d.cfg.Timeouts[id]; ok && t > 0 {
		return t
	}
	return d.cfg.Timeout
}

// Tiers exposes the configured tier table.
func (d *Dispatcher) Tiers() TierTable {
	return d.cfg.Tiers
}

// Dispatch runs every provider of the request's tier and returns once all of
// them have terminated. The only error is an unknown tier; provider failures
// are reported in the results.
func (d *Dispatcher) Dispatch(ctx context.Context, req models.CheckRequest) (Outcome, error) {
	requested, ok := d.cfg.Tiers.Providers(req.Tier)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s", providers.ErrNoProvidersAvailable, req.Tier)
	}

	out := Outcome{Requested: requested}
	adapters := make([]providers.Adapter, 0, len(requested))
	for _, id := range requested {
		a, found := d.registry.Get(id)
		if !found {
			d.logger.WarnContext(ctx, "provider not registered, skipping",
				"provider", id,
				"tier", req.Tier,
				"request_id", req.ID,
			)
			out.Unregistered = append(out.Unregistered, id)
			continue
		}
		adapters = append(adapters, a)
	}

	results := make([]models.ProviderResult, len(adapters))
	var g errgroup.Group
	for i, a := range adapters {
		g.Go(func() error {
			results[i] = d.run(ctx, a, req)
			return nil
		})
	}
	_ = g.Wait()

	out.Results = results
	return out, nil
}

func (d *Dispatcher) run(ctx context.Context, a providers.Adapter, req models.CheckRequest) models.ProviderResult {
	id := a.ID()
	caps := a.Capabilities()

	ctx, span := d.tracer.Start(ctx, "dispatcher.check", trace.WithAttributes(
		attribute.String("provider.id", string(id)),
		attribute.String("check.tier", string(req.Tier)),
	))
	defer span.End()

	start := time.Now()
	result := d.admitAndCall(ctx, a, req)
	elapsed := time.Since(start)

	result.Provider = id
	result.Categories = slices.Clone(caps.Categories)
	result.Verdicts = providers.RestrictVerdicts(result.Verdicts, caps.Categories)
	result.LatencyMillis = elapsed.Milliseconds()

	span.SetAttributes(
		attribute.String("provider.status", string(result.Status)),
		attribute.Int("provider.attempts", result.Attempts),
	)
	if !result.OK() {
		span.SetStatus(codes.Error, result.Error)
		d.logger.InfoContext(ctx, "provider returned no usable result",
			"provider", id,
			"status", result.Status,
			"error_category", result.ErrorCategory,
			"attempts", result.Attempts,
			"request_id", req.ID,
		)
	}
	d.metrics.ObserveProviderCall(string(id), string(result.Status), elapsed)
	return result
}

func (d *Dispatcher) admitAndCall(ctx context.Context, a providers.Adapter, req models.CheckRequest) models.ProviderResult {
	id := a.ID()
	if err := ctx.Err(); err != nil {
		return deadlineResult(id, err)
	}

	if d.limiter != nil {
		admitted, err := d.limiter.Acquire(ctx, id)
		switch {
		case err != nil:
			// fail open
			d.logger.WarnContext(ctx, "rate limiter unavailable, admitting call",
				"provider", id,
				"error", err,
			)
		case !admitted:
			return models.ProviderResult{
				Provider:      id,
				Status:        models.StatusRateLimited,
				Error:         "local rate limit exceeded",
				ErrorCategory: string(providers.ErrorRateLimited),
			}
		}
	}

	return d.callWithRetry(ctx, a, req)
}

// callWithRetry runs attempts and backoff waits under one budget of
// timeout x (1 + retries), so a late attempt gets only the time left.
func (d *Dispatcher) callWithRetry(ctx context.Context, a providers.Adapter, req models.CheckRequest) models.ProviderResult {
	id := a.ID()
	timeout := d.TimeoutFor(id)

	budgetCtx, cancel := context.WithTimeout(ctx, timeout*time.Duration(1+d.cfg.Retries))
	defer cancel()

	var (
		result   models.ProviderResult
		attempts int
	)
	operation := func() error {
		attempts++
		if attempts > 1 {
			d.metrics.IncrementRetry(string(id))
		}
		r, err := d.attempt(budgetCtx, a, req, timeout)
		if err != nil {
			result = providers.Failed(id, err)
			if providers.IsRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		result = r
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.cfg.BackoffInitial
	b.MaxInterval = d.cfg.BackoffMax
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(d.cfg.Retries)), budgetCtx)
	_ = backoff.Retry(operation, policy)

	if err := ctx.Err(); err != nil && !result.OK() {
		result = deadlineResult(id, err)
	}
	result.Attempts = attempts
	return result
}

type reply struct {
	result models.ProviderResult
	err    error
}

// attempt makes one adapter call. The adapter runs in its own goroutine so a
// call that ignores ctx is abandoned at the deadline.
func (d *Dispatcher) attempt(ctx context.Context, a providers.Adapter, req models.CheckRequest, timeout time.Duration) (models.ProviderResult, error) {
	id := a.ID()
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan reply, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				ch <- reply{err: providers.NewProviderError(providers.ErrorInternal, id, fmt.Sprintf("adapter panic: %v", rec), nil)}
			}
		}()
		r, err := a.Check(callCtx, req)
		ch <- reply{result: r, err: err}
	}()

	select {
	case rep := <-ch:
		if rep.err != nil {
			return models.ProviderResult{}, rep.err
		}
		return normalize(id, rep.result)
	case <-callCtx.Done():
		return models.ProviderResult{}, providers.NewProviderError(providers.ErrorTimeout, id,
			fmt.Sprintf("no response within %s", timeout), callCtx.Err())
	}
}

// normalize enforces the result contract on a returned result. A non-ok status
// reported without an error is converted to the matching ProviderError.
func normalize(id models.ProviderID, r models.ProviderResult) (models.ProviderResult, error) {
	r.Provider = id
	if r.Status == "" {
		r.Status = models.StatusOK
	}
	if r.Status != models.StatusOK {
		category := providers.ErrorCategory(r.ErrorCategory)
		if category == "" {
			switch r.Status {
			case models.StatusTimeout:
				category = providers.ErrorTimeout
			case models.StatusRateLimited:
				category = providers.ErrorRateLimited
			default:
				category = providers.ErrorInternal
			}
		}
		msg := r.Error
		if msg == "" {
			msg = fmt.Sprintf("provider reported status %s", r.Status)
		}
		return models.ProviderResult{}, providers.NewProviderError(category, id, msg, nil)
	}
	if err := providers.Validate(r); err != nil {
		return models.ProviderResult{}, providers.NewProviderError(providers.ErrorContractMismatch, id, "invalid result", err)
	}
	return r, nil
}

func deadlineResult(id models.ProviderID, err error) models.ProviderResult {
	return providers.Failed(id, providers.NewProviderError(providers.ErrorTimeout, id, "request deadline exceeded", err))
}
