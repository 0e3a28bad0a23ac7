package publish

import (
	"context"

	"propertyvet/internal/screening/models"
	"propertyvet/internal/screening/ports"
	"propertyvet/pkg/platform/audit"
)

// AuditSink records the terminal outcome of every check as a compliance event.
type AuditSink struct {
	auditor ports.AuditPort
}

func NewAuditSink(auditor ports.AuditPort) *AuditSink {
	return &AuditSink{auditor: auditor}
}

func (s *AuditSink) Name() string { return "audit" }

func (s *AuditSink) Publish(ctx context.Context, report models.Report) error {
	action := audit.EventCheckCompleted
	reason := report.Recommendation.Reason
	if report.State == models.LifecycleFailed {
		action = audit.EventCheckFailed
		reason = report.Failure
	}
	return s.auditor.Emit(ctx, audit.Event{
		Action:     string(action),
		CheckID:    report.RequestID,
		SubjectRef: report.SubjectRef,
		Tier:       string(report.Tier),
		Decision:   string(report.Recommendation.Decision),
		RiskLevel:  string(report.RiskLevel),
		Reason:     reason,
	})
}
