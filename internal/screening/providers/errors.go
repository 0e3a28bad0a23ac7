package providers

import (
	"context"
	"errors"
	"fmt"

	"propertyvet/internal/screening/models"
	"propertyvet/pkg/platform/sentinel"
)

// ErrorCategory classifies provider errors for retry and status mapping.
type ErrorCategory string

const (
	ErrorTimeout          ErrorCategory = "timeout"
	ErrorBadData          ErrorCategory = "bad_data"
	ErrorAuthentication   ErrorCategory = "authentication"
	ErrorProviderOutage   ErrorCategory = "provider_outage"
	ErrorContractMismatch ErrorCategory = "contract_mismatch"
	ErrorNotFound         ErrorCategory = "not_found"
	ErrorRateLimited      ErrorCategory = "rate_limited"
	ErrorValidation       ErrorCategory = "validation"
	ErrorInternal         ErrorCategory = "internal"
)

// ProviderError is the typed failure an adapter returns.
type ProviderError struct {
	Category   ErrorCategory
	ProviderID models.ProviderID
	Message    string
	Underlying error
	Retryable  bool
}

func (e *ProviderError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("provider %s [%s]: %s: %v", e.ProviderID, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("provider %s [%s]: %s", e.ProviderID, e.Category, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Underlying
}

// NewProviderError builds a ProviderError. Timeouts, outages and upstream rate
// limits are transient and marked retryable.
func NewProviderError(category ErrorCategory, providerID models.ProviderID, message string, underlying error) *ProviderError {
	retryable := false
	switch category {
	case ErrorTimeout, ErrorProviderOutage, ErrorRateLimited:
		retryable = true
	}
	return &ProviderError{
		Category:   category,
		ProviderID: providerID,
		Message:    message,
		Underlying: underlying,
		Retryable:  retryable,
	}
}

// IsRetryable reports whether err is a transient provider failure. Deadline
// expiry counts as retryable; validation and contract errors never do.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// GetCategory classifies any error. Untyped errors are internal, except
// deadline expiry which is a timeout.
func GetCategory(err error) ErrorCategory {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Category
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTimeout
	}
	return ErrorInternal
}

// StatusFor maps an error category to the ProviderResult status recorded for it.
func StatusFor(category ErrorCategory) models.Status {
	switch category {
	case ErrorTimeout:
		return models.StatusTimeout
	case ErrorRateLimited:
		return models.StatusRateLimited
	default:
		return models.StatusError
	}
}

// ErrNoProvidersAvailable is returned when a tier resolves to no registered adapter.
var ErrNoProvidersAvailable = fmt.Errorf("no providers available for tier: %w", sentinel.ErrUnavailable)
