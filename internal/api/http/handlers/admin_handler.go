package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-engine/internal/api/dto"
	"github.com/spec-kit/helpdesk-engine/internal/auth"
	"github.com/spec-kit/helpdesk-engine/internal/observability"
	"github.com/spec-kit/helpdesk-engine/internal/repository"
	"github.com/spec-kit/helpdesk-engine/internal/sched"
	"github.com/spec-kit/helpdesk-engine/pkg/util"
)

// AdminHandler exposes operator endpoints: token minting, scheduler
// controls and the metrics snapshot.
type AdminHandler struct {
	directory repository.HandlerDirectory
	tokens    *auth.TokenManager
	scheduler *sched.Scheduler
	metrics   *observability.Metrics
}

// NewAdminHandler constructs handler.
func NewAdminHandler(directory repository.HandlerDirectory, tokens *auth.TokenManager, scheduler *sched.Scheduler, metrics *observability.Metrics) *AdminHandler {
	return &AdminHandler{directory: directory, tokens: tokens, scheduler: scheduler, metrics: metrics}
}

// MintToken POST /v1/admin/tokens.
func (h *AdminHandler) MintToken(c *fiber.Ctx) error {
	var req dto.MintTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}
	if req.HandlerID == "" {
		return util.NewValidationError("handler_id required", nil)
	}

	handler, err := h.directory.GetByID(c.UserContext(), req.HandlerID)
	if err != nil {
		return util.MapError(err)
	}
	if !handler.Active {
		return util.NewHandlerInactive(handler.ID)
	}

	token, expiresAt, err := h.tokens.GenerateToken(handler.ID, handler.Tier)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.MintTokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	}})
}

// Reconcile POST /v1/admin/reconcile.
func (h *AdminHandler) Reconcile(c *fiber.Ctx) error {
	if err := h.scheduler.Reconcile(c.UserContext()); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"status": "reconciled"}})
}

// CancelTimer POST /v1/admin/timers/:id/cancel.
func (h *AdminHandler) CancelTimer(c *fiber.Ctx) error {
	intentID := c.Params("id")
	cancelled, err := h.scheduler.Cancel(c.UserContext(), intentID)
	if err != nil {
		return util.MapError(err)
	}
	if !cancelled {
		return util.NewTimerAlreadyResolved(intentID)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"intent_id": intentID, "cancelled": true}})
}

// Metrics GET /v1/admin/metrics.
func (h *AdminHandler) Metrics(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.metrics.Snapshot()})
}
