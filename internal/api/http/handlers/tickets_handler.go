package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-engine/internal/api/dto"
	"github.com/spec-kit/helpdesk-engine/internal/auth"
	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/repository"
	"github.com/spec-kit/helpdesk-engine/internal/service"
	"github.com/spec-kit/helpdesk-engine/pkg/util"
)

// TicketsHandler exposes the engine facade over HTTP.
type TicketsHandler struct {
	engine *service.Engine
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(engine *service.Engine) *TicketsHandler {
	return &TicketsHandler{engine: engine}
}

// CreateTicket POST /v1/tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}
	if req.Unit == "" || req.RequesterRef == "" || req.Title == "" {
		return util.NewValidationError("unit, requester_ref, title required", nil)
	}

	outcome, err := h.engine.OnTicketCreated(c.UserContext(), service.CreateTicketInput{
		Unit:         req.Unit,
		RequesterRef: req.RequesterRef,
		Title:        req.Title,
		Description:  req.Description,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": assignmentOutcomeResponse(outcome)})
}

// GetTicket GET /v1/tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, trail, err := h.engine.GetTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetailResponse(ticket, trail)})
}

// ListTickets GET /v1/tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	tickets, err := h.engine.ListTickets(c.UserContext(), parseTicketQuery(c))
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketResponse(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// ChangeStatus POST /v1/tickets/:id/status.
func (h *TicketsHandler) ChangeStatus(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Handler == nil {
		return util.NewUnauthorized("handler required")
	}
	var req dto.ChangeStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}
	if req.Status == "" {
		return util.NewValidationError("status required", nil)
	}

	actor := domain.HandlerActor(principal.Handler.ID)
	ticket, err := h.engine.OnStatusChanged(c.UserContext(), c.Params("id"), req.Status, actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// Assign POST /v1/tickets/:id/assign.
func (h *TicketsHandler) Assign(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Handler == nil {
		return util.NewUnauthorized("handler required")
	}
	var req dto.AssignTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}
	if req.HandlerID == "" {
		return util.NewValidationError("handler_id required", nil)
	}

	actor := domain.HandlerActor(principal.Handler.ID)
	outcome, err := h.engine.OnManualAssign(c.UserContext(), c.Params("id"), req.HandlerID, actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": assignmentOutcomeResponse(outcome)})
}

func parseTicketQuery(c *fiber.Ctx) repository.TicketFilter {
	filter := repository.TicketFilter{}
	if unit := c.Query("unit"); unit != "" {
		filter.Unit = &unit
	}
	if handlerID := c.Query("handler_id"); handlerID != "" {
		filter.HandlerID = &handlerID
	}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			filter.Statuses = append(filter.Statuses, domain.TicketStatus(strings.TrimSpace(part)))
		}
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketResponse(ticket *domain.Ticket) dto.TicketResponse {
	return dto.TicketResponse{
		ID:              ticket.ID,
		ExternalKey:     ticket.ExternalKey,
		Unit:            ticket.Unit,
		RequesterRef:    ticket.RequesterRef,
		Title:           ticket.Title,
		Description:     ticket.Description,
		Status:          ticket.Status,
		HandlerID:       ticket.HandlerID,
		Version:         ticket.Version,
		CreatedAt:       ticket.CreatedAt,
		UpdatedAt:       ticket.UpdatedAt,
		AssignedAt:      ticket.AssignedAt,
		FirstResponseAt: ticket.FirstResponseAt,
		ResolvedAt:      ticket.ResolvedAt,
		ClosedAt:        ticket.ClosedAt,
	}
}

func ticketDetailResponse(ticket *domain.Ticket, trail []domain.AuditEntry) dto.TicketDetailResponse {
	audit := make([]dto.AuditEntryResponse, 0, len(trail))
	for _, entry := range trail {
		audit = append(audit, dto.AuditEntryResponse{
			Seq:       entry.Seq,
			Action:    entry.Action,
			Actor:     entry.Actor,
			Details:   entry.Details,
			CreatedAt: entry.CreatedAt,
		})
	}
	return dto.TicketDetailResponse{Ticket: ticketResponse(ticket), Audit: audit}
}

func assignmentOutcomeResponse(outcome *domain.AssignmentOutcome) dto.AssignmentOutcomeResponse {
	return dto.AssignmentOutcomeResponse{
		Ticket:    ticketResponse(outcome.Ticket),
		Outcome:   string(outcome.Decision.Outcome),
		HandlerID: outcome.Decision.HandlerID,
		Loads:     outcome.Decision.Loads,
		Committed: outcome.Committed,
	}
}
