// Package ports declares the outbound interfaces of the screening controller.
package ports

import (
	"context"

	"propertyvet/internal/screening/models"
	"propertyvet/pkg/platform/audit"
)

// AuditPort emits audit events. It matches the audit publisher but is declared
// here so the controller does not depend on a concrete store.
type AuditPort interface {
	Emit(ctx context.Context, event audit.Event) error
}

// ReportPublisher hands a terminal report to downstream sinks. Publish must not
// block on delivery; an error means the report was not accepted.
type ReportPublisher interface {
	Publish(ctx context.Context, report models.Report) error
}
