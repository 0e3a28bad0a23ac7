package providers

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"propertyvet/internal/screening/models"
)

//go:generate mockgen -source=adapter.go -destination=mocks/mocks.go -package=mocks Adapter,HealthChecker

// Protocol defines how an adapter reaches its source
type Protocol string

const (
	ProtocolInProcess Protocol = "in_process"
	ProtocolHTTP      Protocol = "http"
	ProtocolScrape    Protocol = "scrape"
)

// Capabilities describes what an adapter can attest to
type Capabilities struct {
	Protocol Protocol
	// Categories lists the cross-validation categories the adapter may report
	// verdicts for. Verdicts outside this list are discarded by the dispatcher.
	Categories  []models.Category
	Version     string
	Description string
}

// Adapter is the contract every verification source implements.
//
// Check must honour ctx and return promptly once it is done. Adapters never
// retry internally; the dispatcher owns retry policy. Failures are returned as
// *ProviderError so the dispatcher can classify them.
type Adapter interface {
	ID() models.ProviderID
	Capabilities() Capabilities
	Check(ctx context.Context, req models.CheckRequest) (models.ProviderResult, error)
}

// HealthChecker is optionally implemented by adapters with a cheap liveness probe.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Registry maintains the registered adapters. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	adapters map[models.ProviderID]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[models.ProviderID]Adapter)}
}

// Register adds an adapter; a second adapter with the same ID is an error.
func (r *Registry) Register(a Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := a.ID()
	if _, exists := r.adapters[id]; exists {
		return fmt.Errorf("provider %s already registered", id)
	}
	r.adapters[id] = a
	return nil
}

// MustRegister is Register for wiring code where a duplicate is a programming error.
func (r *Registry) MustRegister(adapters ...Adapter) {
	for _, a := range adapters {
		if err := r.Register(a); err != nil {
			panic(err)
		}
	}
}

func (r *Registry) Get(id models.ProviderID) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[id]
	return a, ok
}

// IDs returns the registered provider IDs, sorted.
func (r *Registry) IDs() []models.ProviderID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]models.ProviderID, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// All returns all registered adapters ordered by ID.
func (r *Registry) All() []Adapter {
	ids := r.IDs()
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Adapter, 0, len(ids))
	for _, id := range ids {
		result = append(result, r.adapters[id])
	}
	return result
}
