package publish

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"propertyvet/internal/screening/models"
)

// Execer is satisfied by *pgxpool.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const upsertReport = `
INSERT INTO screening_reports (
	request_id, tier, subject_ref, property_id, state, risk_level, decision,
	composite_score, coverage, report, submitted_at, completed_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (request_id) DO UPDATE SET
	state = EXCLUDED.state,
	risk_level = EXCLUDED.risk_level,
	decision = EXCLUDED.decision,
	composite_score = EXCLUDED.composite_score,
	coverage = EXCLUDED.coverage,
	report = EXCLUDED.report,
	completed_at = EXCLUDED.completed_at`

// PostgresSink upserts reports into screening_reports with the full report
// kept as JSONB.
type PostgresSink struct {
	db Execer
}

func NewPostgresSink(db Execer) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) Publish(ctx context.Context, report models.Report) error {
	doc, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	_, err = s.db.Exec(ctx, upsertReport,
		report.RequestID,
		string(report.Tier),
		report.SubjectRef,
		report.PropertyID,
		string(report.State),
		string(report.RiskLevel),
		string(report.Recommendation.Decision),
		report.Result.CompositeScore,
		report.Result.Coverage,
		doc,
		report.SubmittedAt,
		report.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert report %s: %w", report.RequestID, err)
	}
	return nil
}
