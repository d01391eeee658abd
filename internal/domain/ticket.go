package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew               TicketStatus = "NEW"
	TicketStatusPendingAssignment TicketStatus = "PENDING_ASSIGNMENT"
	TicketStatusAssigned          TicketStatus = "ASSIGNED"
	TicketStatusInProgress        TicketStatus = "IN_PROGRESS"
	TicketStatusOnHold            TicketStatus = "ON_HOLD"
	TicketStatusEscalated         TicketStatus = "ESCALATED"
	TicketStatusResolved          TicketStatus = "RESOLVED"
	TicketStatusClosed            TicketStatus = "CLOSED"
)

// Terminal reports whether the status admits no further transitions.
func (s TicketStatus) Terminal() bool {
	return s == TicketStatusClosed
}

// ActiveStatuses are the states that count toward a handler's load.
// ON_HOLD and the terminal states are excluded: a handler frees up
// while waiting on the requester or after closure.
var ActiveStatuses = []TicketStatus{
	TicketStatusAssigned,
	TicketStatusInProgress,
	TicketStatusEscalated,
}

// Ticket is the aggregate for support requests. Once created it is
// owned by the engine and mutated only through engine operations;
// Version backs the optimistic-lock commit of every mutation.
type Ticket struct {
	ID              string
	ExternalKey     string
	Unit            string
	RequesterRef    string
	Title           string
	Description     string
	Status          TicketStatus
	HandlerID       *string
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
	AssignedAt      *time.Time
	FirstResponseAt *time.Time
	ResolvedAt      *time.Time
	ClosedAt        *time.Time
}
