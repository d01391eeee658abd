package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Unit         string `json:"unit"`
	RequesterRef string `json:"requester_ref"`
	Title        string `json:"title"`
	Description  string `json:"description"`
}

// ChangeStatusRequest payload.
type ChangeStatusRequest struct {
	Status domain.TicketStatus `json:"status"`
}

// AssignTicketRequest payload.
type AssignTicketRequest struct {
	HandlerID string `json:"handler_id"`
}

// TicketResponse mirrors the ticket aggregate on the wire.
type TicketResponse struct {
	ID              string              `json:"id"`
	ExternalKey     string              `json:"external_key"`
	Unit            string              `json:"unit"`
	RequesterRef    string              `json:"requester_ref"`
	Title           string              `json:"title"`
	Description     string              `json:"description"`
	Status          domain.TicketStatus `json:"status"`
	HandlerID       *string             `json:"handler_id"`
	Version         int64               `json:"version"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
	AssignedAt      *time.Time          `json:"assigned_at,omitempty"`
	FirstResponseAt *time.Time          `json:"first_response_at,omitempty"`
	ResolvedAt      *time.Time          `json:"resolved_at,omitempty"`
	ClosedAt        *time.Time          `json:"closed_at,omitempty"`
}

// AuditEntryResponse represents one audit trail record.
type AuditEntryResponse struct {
	Seq       int64              `json:"seq"`
	Action    domain.AuditAction `json:"action"`
	Actor     domain.Actor       `json:"actor"`
	Details   map[string]any     `json:"details,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

// TicketDetailResponse provides the ticket with its audit trail.
type TicketDetailResponse struct {
	Ticket TicketResponse       `json:"ticket"`
	Audit  []AuditEntryResponse `json:"audit"`
}

// AssignmentOutcomeResponse reports what an assignment attempt did.
type AssignmentOutcomeResponse struct {
	Ticket    TicketResponse `json:"ticket"`
	Outcome   string         `json:"outcome"`
	HandlerID *string        `json:"handler_id,omitempty"`
	Loads     map[string]int `json:"loads,omitempty"`
	Committed bool           `json:"committed"`
}
