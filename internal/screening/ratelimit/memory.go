package ratelimit

import (
	"context"
	"maps"
	"sync"
	"time"

	"propertyvet/internal/screening/models"
)

type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter keeps windows in process. All mutation happens under mu, so
// concurrent Acquire calls for the same provider never over-admit.
type MemoryLimiter struct {
	mu      sync.Mutex
	limits  Limits
	windows map[models.ProviderID]*window
	window  time.Duration
	now     func() time.Time
}

// MemoryOption configures a MemoryLimiter.
type MemoryOption func(*MemoryLimiter)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) MemoryOption {
	return func(l *MemoryLimiter) { l.now = now }
}

// WithWindow overrides the window length. Tests only.
func WithWindow(d time.Duration) MemoryOption {
	return func(l *MemoryLimiter) {
		if d > 0 {
			l.window = d
		}
	}
}

func NewMemory(limits Limits, opts ...MemoryOption) *MemoryLimiter {
	l := &MemoryLimiter{
		limits:  maps.Clone(limits),
		windows: make(map[models.ProviderID]*window),
		window:  Window,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *MemoryLimiter) Acquire(_ context.Context, provider models.ProviderID) (bool, error) {
	limit, limited := l.limits.limitFor(provider)
	if !limited {
		return true, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[provider]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(l.window)}
		l.windows[provider] = w
	}
	if w.count >= limit {
		return false, nil
	}
	w.count++
	return true, nil
}

func (l *MemoryLimiter) Status(_ context.Context, provider models.ProviderID) (Quota, error) {
	limit, limited := l.limits.limitFor(provider)
	if !limited {
		return unlimited(provider), nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	q := Quota{Provider: provider, Limit: limit, Remaining: limit}
	if w, ok := l.windows[provider]; ok && l.now().Before(w.resetAt) {
		q.Used = w.count
		q.Remaining = max(0, limit-w.count)
		q.ResetAt = w.resetAt
	}
	return q, nil
}
