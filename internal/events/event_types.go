package events

import (
	"time"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated           EventType = "ticket_created"
	EventTicketAssigned          EventType = "ticket_assigned"
	EventTicketAssignmentPending EventType = "ticket_assignment_pending"
	EventTicketStatusChanged     EventType = "ticket_status_changed"
	EventTicketEscalated         EventType = "ticket_escalated"
	EventTicketReminderDue       EventType = "ticket_reminder_due"
	EventTicketAutoClosed        EventType = "ticket_auto_closed"
)

// Event represents a domain event emitted by the engine.
type Event struct {
	ID        string       `json:"id"`
	Type      EventType    `json:"type"`
	TicketID  string       `json:"ticket_id"`
	Actor     domain.Actor `json:"actor"`
	Timestamp time.Time    `json:"timestamp"`
	Payload   interface{}  `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	ExternalKey string `json:"external_key"`
	Unit        string `json:"unit"`
	Title       string `json:"title"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	HandlerID string         `json:"handler_id"`
	Unit      string         `json:"unit"`
	Loads     map[string]int `json:"loads,omitempty"`
	Manual    bool           `json:"manual"`
}

// TicketAssignmentPendingPayload payload.
type TicketAssignmentPendingPayload struct {
	Unit   string `json:"unit"`
	Reason string `json:"reason"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// TicketEscalatedPayload payload.
type TicketEscalatedPayload struct {
	Unit              string  `json:"unit"`
	PreviousHandlerID *string `json:"previous_handler_id,omitempty"`
	HandlerID         *string `json:"handler_id,omitempty"`
	Reassigned        bool    `json:"reassigned"`
}

// TicketReminderDuePayload payload.
type TicketReminderDuePayload struct {
	HandlerID string    `json:"handler_id"`
	DueAt     time.Time `json:"due_at"`
}

// TicketAutoClosedPayload payload.
type TicketAutoClosedPayload struct {
	ResolvedAt time.Time `json:"resolved_at"`
}
