// Package ratelimit admits provider calls under per-provider fixed windows.
//
// A window opens at the first admitted acquisition after the previous window
// expired and lasts Window; it is not aligned to wall-clock minutes. Denied
// acquisitions never consume quota and never block.
package ratelimit

import (
	"context"
	"time"

	"propertyvet/internal/screening/models"
)

// Window is the fixed window length for every provider.
const Window = time.Minute

// Limits maps a provider to its max admitted calls per Window. Providers
// missing from the map, or with a limit <= 0, are unlimited.
type Limits map[models.ProviderID]int

// Quota is a point-in-time view of one provider's window.
type Quota struct {
	Provider  models.ProviderID `json:"provider"`
	Limit     int               `json:"limit"`
	Used      int               `json:"used"`
	Remaining int               `json:"remaining"`
	ResetAt   time.Time         `json:"reset_at,omitzero"`
	Unlimited bool              `json:"unlimited,omitempty"`
}

// Limiter is the admission contract used by the dispatcher.
type Limiter interface {
	// Acquire returns true and consumes one unit when the provider is under
	// its limit, false otherwise.
	Acquire(ctx context.Context, provider models.ProviderID) (bool, error)
	Status(ctx context.Context, provider models.ProviderID) (Quota, error)
}

func (l Limits) limitFor(p models.ProviderID) (int, bool) {
	limit, ok := l[p]
	if !ok || limit <= 0 {
		return 0, false
	}
	return limit, true
}

func unlimited(p models.ProviderID) Quota {
	return Quota{Provider: p, Unlimited: true}
}
