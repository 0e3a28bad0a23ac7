package service

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"propertyvet/internal/screening/models"
	"propertyvet/internal/screening/providers"
	"propertyvet/internal/screening/ratelimit"
	"propertyvet/pkg/platform/audit"
)

const healthTimeout = 2 * time.Second

// Performance summarizes terminal checks since start.
type Performance struct {
	Total                 int     `json:"total_requests"`
	Successful            int     `json:"successful_requests"`
	Failed                int     `json:"failed_requests"`
	AverageProcessingMSec float64 `json:"average_processing_ms"`
}

type performance struct {
	total, successful, failed int
	totalMillis               int64
}

func (p *performance) record(r models.Report) {
	p.total++
	if r.State == models.LifecycleCompleted {
		p.successful++
	} else {
		p.failed++
	}
	p.totalMillis += r.DurationMillis
}

func (p performance) snapshot() Performance {
	out := Performance{Total: p.total, Successful: p.successful, Failed: p.failed}
	if p.total > 0 {
		out.AverageProcessingMSec = float64(p.totalMillis) / float64(p.total)
	}
	return out
}

// ProviderStatus describes one registered adapter.
type ProviderStatus struct {
	ID          models.ProviderID  `json:"id"`
	Protocol    providers.Protocol `json:"protocol"`
	Version     string             `json:"version,omitempty"`
	Description string             `json:"description,omitempty"`
	Categories  []models.Category  `json:"categories"`
	Healthy     bool               `json:"healthy"`
	HealthError string             `json:"health_error,omitempty"`
	Quota       *ratelimit.Quota   `json:"quota,omitempty"`
}

type SystemStatus struct {
	Active        int              `json:"active"`
	Completed     int              `json:"completed"`
	MaxConcurrent int              `json:"max_concurrent"`
	Providers     []ProviderStatus `json:"providers"`
	Performance   Performance      `json:"performance"`
	CheckedAt     time.Time        `json:"checked_at"`
}

// SystemStatus reports lifecycle counts, performance, and the health and
// quota of every registered provider. Health probes run concurrently.
func (c *Controller) SystemStatus(ctx context.Context) SystemStatus {
	c.mu.Lock()
	status := SystemStatus{
		Active:        len(c.active),
		Completed:     len(c.completed),
		MaxConcurrent: c.cfg.MaxConcurrent,
		Performance:   c.perf.snapshot(),
		CheckedAt:     c.now(),
	}
	c.mu.Unlock()

	if c.registry == nil {
		status.Providers = []ProviderStatus{}
		return status
	}

	adapters := c.registry.All()
	status.Providers = make([]ProviderStatus, len(adapters))
	var g errgroup.Group
	for i, a := range adapters {
		g.Go(func() error {
			status.Providers[i] = c.providerStatus(ctx, a)
			return nil
		})
	}
	_ = g.Wait()
	return status
}

func (c *Controller) providerStatus(ctx context.Context, a providers.Adapter) ProviderStatus {
	caps := a.Capabilities()
	ps := ProviderStatus{
		ID:          a.ID(),
		Protocol:    caps.Protocol,
		Version:     caps.Version,
		Description: caps.Description,
		Categories:  caps.Categories,
		Healthy:     true,
	}

	if hc, ok := a.(providers.HealthChecker); ok {
		hctx, cancel := context.WithTimeout(ctx, healthTimeout)
		defer cancel()
		if err := hc.Health(hctx); err != nil {
			ps.Healthy = false
			ps.HealthError = err.Error()
			c.emit(ctx, audit.Event{
				Action: string(audit.EventProviderDegraded),
				Reason: fmt.Sprintf("%s: %v", ps.ID, err),
			})
		}
	}

	if c.limiter != nil {
		if q, err := c.limiter.Status(ctx, ps.ID); err == nil {
			ps.Quota = &q
		} else {
			c.logger.WarnContext(ctx, "rate limit status unavailable", "provider", ps.ID, "error", err)
		}
	}
	return ps
}
