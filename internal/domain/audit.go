package domain

import "time"

// AuditAction identifies what an audit entry records.
type AuditAction string

const (
	AuditActionCreated           AuditAction = "CREATED"
	AuditActionAssigned          AuditAction = "ASSIGNED"
	AuditActionAssignmentPending AuditAction = "ASSIGNMENT_PENDING"
	AuditActionStatusChanged     AuditAction = "STATUS_CHANGED"
	AuditActionEscalated         AuditAction = "ESCALATED"
	AuditActionAutoClosed        AuditAction = "AUTO_CLOSED"
)

// AuditEntry is an immutable trail record. Seq is assigned by the
// store and totally orders entries independent of wall-clock skew;
// entries are append-only and never rewritten.
type AuditEntry struct {
	ID        string
	TicketID  string
	Seq       int64
	Action    AuditAction
	Actor     Actor
	Details   map[string]any
	CreatedAt time.Time
}
