package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	audit "propertyvet/pkg/platform/audit"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

const table = "audit_events"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Store implements audit.Store on the audit_events table (see
// internal/platform/migrate/sql). Rows are append-only.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store. db is expected to use the lib/pq driver.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append inserts an audit event. The category is always derived from the
// action so callers cannot misfile compliance events.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	category := audit.AuditEvent(event.Action).Category()

	query, args, err := psql.Insert(table).
		Columns("id", "category", "occurred_at", "check_id", "subject_ref", "action",
			"tier", "decision", "risk_level", "reason", "request_id", "actor_id").
		Values(event.ID, string(category), event.Timestamp, event.CheckID, event.SubjectRef, event.Action,
			event.Tier, event.Decision, event.RiskLevel, event.Reason, event.RequestID, event.ActorID).
		Suffix("ON CONFLICT (id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build audit insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByCheck returns a check's audit trail in occurrence order.
func (s *Store) ListByCheck(ctx context.Context, checkID string) ([]audit.Event, error) {
	query, args, err := psql.Select("id", "category", "occurred_at", "check_id", "subject_ref", "action",
		"tier", "decision", "risk_level", "reason", "request_id", "actor_id").
		From(table).
		Where(sq.Eq{"check_id": checkID}).
		OrderBy("occurred_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build audit select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var e audit.Event
		var category string
		if err := rows.Scan(&e.ID, &category, &e.Timestamp, &e.CheckID, &e.SubjectRef, &e.Action,
			&e.Tier, &e.Decision, &e.RiskLevel, &e.Reason, &e.RequestID, &e.ActorID); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Category = audit.EventCategory(category)
		events = append(events, e)
	}
	return events, rows.Err()
}
