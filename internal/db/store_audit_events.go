package db

import (
	"context"
	"fmt"

	"github.com/lodomap/lodo/internal/models"
)

// CreateAuditEvent appends one event to the audit trail.
func (s *Store) CreateAuditEvent(ctx context.Context, event *models.AuditEvent) error {
	err := s.db.Pool.QueryRow(ctx, `
		INSERT INTO audit_events (entity_type, entity_id, action, from_status, to_status, performed_by, performed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		event.EntityType, event.EntityID, event.Action, event.FromStatus,
		event.ToStatus, event.PerformedBy, event.PerformedAt,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListAuditEvents returns the audit trail for one entity, newest first.
func (s *Store) ListAuditEvents(ctx context.Context, entityType, entityID string, limit int) ([]models.AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Pool.Query(ctx, `
		SELECT id, entity_type, entity_id, action, from_status, to_status, performed_by, performed_at
		FROM audit_events
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY performed_at DESC, id DESC
		LIMIT $3`,
		entityType, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	events := []models.AuditEvent{}
	for rows.Next() {
		var e models.AuditEvent
		if err := rows.Scan(&e.ID, &e.EntityType, &e.EntityID, &e.Action,
			&e.FromStatus, &e.ToStatus, &e.PerformedBy, &e.PerformedAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
