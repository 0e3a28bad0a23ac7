package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance:
	// tenant screening outcomes and adverse-action inputs (FCRA-style records).
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to security monitoring.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity that may be sampled.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from the screening pipeline to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        string
	Category  EventCategory
	Timestamp time.Time
	CheckID   string
	// SubjectRef is a keyed pseudonym of the screened subject, never raw PII.
	SubjectRef string
	Action     string
	Tier       string
	Decision   string
	RiskLevel  string
	Reason     string
	RequestID  string
	// ActorID is the operator that submitted the check, when authenticated.
	ActorID string
}

type AuditEvent string

const (
	EventCheckSubmitted   AuditEvent = "check_submitted"
	EventCheckRejected    AuditEvent = "check_rejected"
	EventCheckCompleted   AuditEvent = "check_completed"
	EventCheckFailed      AuditEvent = "check_failed"
	EventProviderDegraded AuditEvent = "provider_degraded"
	EventResultsPruned    AuditEvent = "results_pruned"
)

// eventCategories maps each audit event to its category.
var eventCategories = map[AuditEvent]EventCategory{
	EventCheckCompleted: CategoryCompliance,
	EventCheckFailed:    CategoryCompliance,
	EventResultsPruned:  CategoryCompliance,

	EventCheckRejected: CategorySecurity,

	EventCheckSubmitted:   CategoryOperations,
	EventProviderDegraded: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByCheck(ctx context.Context, checkID string) ([]Event, error)
}
