package models

import "time"

// AuditAction identifies what happened to an entity.
type AuditAction string

const (
	AuditActionCreate  AuditAction = "CREATE"
	AuditActionUpdate  AuditAction = "UPDATE"
	AuditActionReview  AuditAction = "REVIEW"
	AuditActionPublish AuditAction = "PUBLISH"
	AuditActionArchive AuditAction = "ARCHIVE"
	AuditActionDelete  AuditAction = "DELETE"
)

// AuditEvent records one lifecycle transition or destructive operation.
// Events are append-only.
type AuditEvent struct {
	ID          int64              `json:"id"`
	EntityType  string             `json:"entityType"`
	EntityID    string             `json:"entityId"`
	Action      AuditAction        `json:"action"`
	FromStatus  OrganizationStatus `json:"fromStatus,omitempty"`
	ToStatus    OrganizationStatus `json:"toStatus,omitempty"`
	PerformedBy string             `json:"performedBy"`
	PerformedAt time.Time          `json:"performedAt"`
}

// NewOrganizationAudit builds an audit event for an organization record.
func NewOrganizationAudit(id string, action AuditAction, from, to OrganizationStatus, actor string) *AuditEvent {
	return &AuditEvent{
		EntityType:  "organization",
		EntityID:    id,
		Action:      action,
		FromStatus:  from,
		ToStatus:    to,
		PerformedBy: actor,
		PerformedAt: time.Now().UTC(),
	}
}
