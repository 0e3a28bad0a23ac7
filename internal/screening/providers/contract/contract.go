// Package contract provides a reusable harness that checks an Adapter against
// the result contract the dispatcher relies on. Adapter packages call it from
// their own tests.
package contract

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"propertyvet/internal/screening/models"
	"propertyvet/internal/screening/providers"
)

// Case is one request the adapter is expected to answer successfully.
type Case struct {
	Name         string
	Request      models.CheckRequest
	ValidateFunc func(result models.ProviderResult) error
}

// Suite is a collection of contract cases for one adapter.
type Suite struct {
	Adapter providers.Adapter
	Cases   []Case
	// Timeout bounds each Check; defaults to 5s.
	Timeout time.Duration
}

// Run executes every case.
func (s *Suite) Run(t *testing.T) {
	t.Helper()
	timeout := s.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	caps := s.Adapter.Capabilities()

	for _, c := range s.Cases {
		t.Run(c.Name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			result, err := s.Adapter.Check(ctx, c.Request)
			if err != nil {
				t.Fatalf("check failed: %v", err)
			}
			if result.Provider != s.Adapter.ID() {
				t.Errorf("expected provider ID %s, got %s", s.Adapter.ID(), result.Provider)
			}
			if result.Status != models.StatusOK {
				t.Errorf("expected status ok, got %s", result.Status)
			}
			if err := providers.Validate(result); err != nil {
				t.Errorf("result violates contract: %v", err)
			}
			for cat := range result.Verdicts {
				if !slices.Contains(caps.Categories, cat) {
					t.Errorf("verdict for undeclared category %s", cat)
				}
			}
			if c.ValidateFunc != nil {
				if err := c.ValidateFunc(result); err != nil {
					t.Errorf("custom validation failed: %v", err)
				}
			}
		})
	}
}

// CapabilityTest validates that adapter capabilities are correctly declared.
type CapabilityTest struct {
	Adapter providers.Adapter
}

func (ct *CapabilityTest) Run(t *testing.T) {
	t.Helper()
	caps := ct.Adapter.Capabilities()
	if ct.Adapter.ID() == "" {
		t.Error("provider ID not set")
	}
	if caps.Protocol == "" {
		t.Error("protocol not set")
	}
	if caps.Version == "" {
		t.Error("version not set")
	}
	if len(caps.Categories) == 0 {
		t.Error("adapter declares no categories")
	}
}

// ErrorContractTest asserts that a failing scenario yields a typed
// ProviderError with the expected category and retryability.
type ErrorContractTest struct {
	Name              string
	Adapter           providers.Adapter
	Request           models.CheckRequest
	ExpectedCategory  providers.ErrorCategory
	ExpectedRetryable bool
}

func (et *ErrorContractTest) Run(t *testing.T) {
	t.Helper()
	t.Run(et.Name, func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_, err := et.Adapter.Check(ctx, et.Request)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		var pe *providers.ProviderError
		if !errors.As(err, &pe) {
			t.Fatalf("expected *ProviderError, got %T: %v", err, err)
		}
		if pe.Category != et.ExpectedCategory {
			t.Errorf("expected category %s, got %s", et.ExpectedCategory, pe.Category)
		}
		if pe.Retryable != et.ExpectedRetryable {
			t.Errorf("expected retryable=%v, got %v", et.ExpectedRetryable, pe.Retryable)
		}
		if pe.ProviderID != et.Adapter.ID() {
			t.Errorf("expected provider ID %s, got %s", et.Adapter.ID(), pe.ProviderID)
		}
	})
}
