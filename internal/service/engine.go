package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-engine/internal/clock"
	"github.com/spec-kit/helpdesk-engine/internal/config"
	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/events"
	"github.com/spec-kit/helpdesk-engine/internal/observability"
	"github.com/spec-kit/helpdesk-engine/internal/repository"
	"github.com/spec-kit/helpdesk-engine/pkg/util"
)

// EngineDependencies bundles collaborators for the engine facade.
type EngineDependencies struct {
	Tickets    repository.TicketRepository
	Audits     repository.AuditRepository
	Directory  repository.HandlerDirectory
	Timers     TimerScheduler
	Dispatcher events.Dispatcher
	Clock      clock.Clock
	Logger     *zap.Logger
	Metrics    *observability.Metrics
}

// Engine is the facade the transport layer and the timer scheduler
// drive. It owns the lock table shared by assignment, status and
// timer-fire commits, and publishes domain events only after every
// lock has been released.
type Engine struct {
	cfg         config.EngineConfig
	tickets     repository.TicketRepository
	audits      repository.AuditRepository
	coordinator *Coordinator
	sla         *SLAManager
	timers      TimerScheduler
	dispatcher  events.Dispatcher
	locks       *util.KeyedMutex
	clk         clock.Clock
	logger      *zap.Logger
	metrics     *observability.Metrics
}

// NewEngine wires the assignment and SLA subsystems behind one facade.
func NewEngine(cfg config.EngineConfig, deps EngineDependencies) *Engine {
	locks := util.NewKeyedMutex()
	loads := NewLoadTracker(deps.Tickets)
	resolver := NewResolver(cfg, loads, deps.Clock)
	sla := NewSLAManager(cfg, deps.Timers, deps.Clock, deps.Logger)
	coordinator := NewCoordinator(CoordinatorDeps{
		Config:    cfg,
		Tickets:   deps.Tickets,
		Directory: deps.Directory,
		Resolver:  resolver,
		SLA:       sla,
		Locks:     locks,
		Clock:     deps.Clock,
		Logger:    deps.Logger,
		Metrics:   deps.Metrics,
	})
	return &Engine{
		cfg:         cfg,
		tickets:     deps.Tickets,
		audits:      deps.Audits,
		coordinator: coordinator,
		sla:         sla,
		timers:      deps.Timers,
		dispatcher:  deps.Dispatcher,
		locks:       locks,
		clk:         deps.Clock,
		logger:      deps.Logger,
		metrics:     deps.Metrics,
	}
}

// CreateTicketInput describes ticket creation payload.
type CreateTicketInput struct {
	Unit         string
	RequesterRef string
	Title        string
	Description  string
}

// OnTicketCreated persists a new ticket and immediately attempts
// automatic assignment. An unknown unit does not fail the call: the
// ticket degrades to PENDING_ASSIGNMENT and the outcome records why.
func (e *Engine) OnTicketCreated(ctx context.Context, input CreateTicketInput) (*domain.AssignmentOutcome, error) {
	input.Unit = strings.TrimSpace(input.Unit)
	input.RequesterRef = strings.TrimSpace(input.RequesterRef)
	input.Title = strings.TrimSpace(input.Title)
	if input.Title == "" {
		return nil, util.NewValidationError("title is required", nil)
	}
	if input.RequesterRef == "" {
		return nil, util.NewValidationError("requester_ref is required", nil)
	}
	if input.Unit == "" {
		return nil, util.NewValidationError("unit is required", nil)
	}

	actor := domain.RequesterActor(input.RequesterRef)
	ticket := &domain.Ticket{
		ExternalKey:  generateTicketKey(),
		Unit:         input.Unit,
		RequesterRef: input.RequesterRef,
		Title:        input.Title,
		Description:  input.Description,
		Status:       domain.TicketStatusNew,
	}
	entry := &domain.AuditEntry{
		Action: domain.AuditActionCreated,
		Actor:  actor,
		Details: map[string]any{
			"unit":  ticket.Unit,
			"title": ticket.Title,
		},
	}
	if err := e.tickets.Create(ctx, ticket, entry); err != nil {
		return nil, err
	}
	e.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    actor,
		Payload: events.TicketCreatedPayload{
			ExternalKey: ticket.ExternalKey,
			Unit:        ticket.Unit,
			Title:       ticket.Title,
		},
	})

	outcome, err := e.coordinator.AssignAuto(ctx, ticket.ID)
	if err != nil {
		return nil, err
	}
	e.publishAssignment(ctx, outcome, domain.SystemActor(), false)
	return outcome, nil
}

// OnManualAssign assigns the ticket to an explicit handler, bypassing
// the resolver but not the per-ticket commit gate.
func (e *Engine) OnManualAssign(ctx context.Context, ticketID, handlerID string, actor domain.Actor) (*domain.AssignmentOutcome, error) {
	outcome, err := e.coordinator.AssignManual(ctx, ticketID, handlerID, actor)
	if err != nil {
		return nil, err
	}
	e.publishAssignment(ctx, outcome, actor, true)
	return outcome, nil
}

// OnStatusChanged applies a lifecycle transition and re-arms the
// ticket's SLA timers accordingly.
func (e *Engine) OnStatusChanged(ctx context.Context, ticketID string, newStatus domain.TicketStatus, actor domain.Actor) (*domain.Ticket, error) {
	ticket, old, err := e.changeStatus(ctx, ticketID, newStatus, actor)
	if err != nil {
		return nil, err
	}
	e.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		Actor:    actor,
		Payload: events.TicketStatusChangedPayload{
			OldStatus: old,
			NewStatus: newStatus,
		},
	})
	return ticket, nil
}

func (e *Engine) changeStatus(ctx context.Context, ticketID string, newStatus domain.TicketStatus, actor domain.Actor) (*domain.Ticket, domain.TicketStatus, error) {
	unlock := e.locks.Lock(ticketLockKey(ticketID))
	defer unlock()

	ticket, err := e.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, "", err
	}
	old := ticket.Status
	// Assignment states are reached only through assignment commits.
	if newStatus == domain.TicketStatusAssigned || newStatus == domain.TicketStatusPendingAssignment {
		return nil, "", util.NewInvalidTransition(string(old), string(newStatus))
	}
	if !isValidTransition(old, newStatus) {
		return nil, "", util.NewInvalidTransition(string(old), string(newStatus))
	}

	applyStatusStamps(ticket, newStatus, e.clk.Now())
	ticket.Status = newStatus

	entry := &domain.AuditEntry{
		Action: domain.AuditActionStatusChanged,
		Actor:  actor,
		Details: map[string]any{
			"old_status": string(old),
			"new_status": string(newStatus),
		},
	}
	if err := e.tickets.Update(ctx, ticket, entry); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, "", util.NewConflict("ticket was modified concurrently", map[string]any{"ticket_id": ticketID})
		}
		return nil, "", err
	}
	if err := e.sla.OnStatusChanged(ctx, ticket, old); err != nil {
		return nil, "", err
	}
	return ticket, old, nil
}

// OnTimerFired is the scheduler's delivery entry point. Claiming the
// intent settles any fire/cancel race at the store; replays and
// already-resolved intents are benign no-ops.
func (e *Engine) OnTimerFired(ctx context.Context, intentID string) error {
	intent, ok, err := e.timers.Claim(ctx, intentID)
	if err != nil {
		return err
	}
	if !ok {
		if intent != nil {
			e.logger.Info("timer already resolved",
				zap.String("intent_id", intentID),
				zap.String("state", string(intent.State)))
		}
		return nil
	}

	switch intent.Kind {
	case domain.TimerKindReminder:
		return e.fireReminder(ctx, intent)
	case domain.TimerKindEscalate:
		return e.fireEscalate(ctx, intent)
	case domain.TimerKindAutoClose:
		return e.fireAutoClose(ctx, intent)
	default:
		e.logger.Warn("unknown timer kind",
			zap.String("intent_id", intent.ID),
			zap.String("kind", string(intent.Kind)))
		return nil
	}
}

func (e *Engine) fireReminder(ctx context.Context, intent *domain.TimerIntent) error {
	ticket, err := e.tickets.GetByID(ctx, intent.TicketID)
	if err != nil {
		return err
	}
	if !reminderEligible(ticket.Status) || ticket.HandlerID == nil {
		e.logger.Debug("reminder skipped",
			zap.String("ticket_id", ticket.ID),
			zap.String("status", string(ticket.Status)))
		return nil
	}
	e.publishEvent(ctx, events.Event{
		Type:     events.EventTicketReminderDue,
		TicketID: ticket.ID,
		Actor:    domain.SystemActor(),
		Payload: events.TicketReminderDuePayload{
			HandlerID: *ticket.HandlerID,
			DueAt:     intent.FireAt.Add(e.cfg.ReminderLead),
		},
	})
	return nil
}

func (e *Engine) fireEscalate(ctx context.Context, intent *domain.TimerIntent) error {
	result, err := e.coordinator.Escalate(ctx, intent.TicketID)
	if err != nil {
		return err
	}
	if result == nil || !result.Committed {
		return nil
	}
	e.metrics.RecordEscalation()
	e.publishEvent(ctx, events.Event{
		Type:     events.EventTicketEscalated,
		TicketID: result.Ticket.ID,
		Actor:    domain.SystemActor(),
		Payload: events.TicketEscalatedPayload{
			Unit:              result.Ticket.Unit,
			PreviousHandlerID: result.PreviousHandlerID,
			HandlerID:         result.Ticket.HandlerID,
			Reassigned:        result.Reassigned,
		},
	})
	return nil
}

func (e *Engine) fireAutoClose(ctx context.Context, intent *domain.TimerIntent) error {
	ticket, closed, err := e.autoClose(ctx, intent.TicketID)
	if err != nil {
		return err
	}
	if !closed {
		return nil
	}
	e.metrics.RecordAutoClose()
	resolvedAt := intent.FireAt
	if ticket.ResolvedAt != nil {
		resolvedAt = *ticket.ResolvedAt
	}
	e.publishEvent(ctx, events.Event{
		Type:     events.EventTicketAutoClosed,
		TicketID: ticket.ID,
		Actor:    domain.SystemActor(),
		Payload: events.TicketAutoClosedPayload{
			ResolvedAt: resolvedAt,
		},
	})
	return nil
}

func (e *Engine) autoClose(ctx context.Context, ticketID string) (*domain.Ticket, bool, error) {
	unlock := e.locks.Lock(ticketLockKey(ticketID))
	defer unlock()

	ticket, err := e.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, false, err
	}
	if ticket.Status != domain.TicketStatusResolved {
		e.logger.Debug("auto-close skipped, ticket moved on",
			zap.String("ticket_id", ticket.ID),
			zap.String("status", string(ticket.Status)))
		return ticket, false, nil
	}

	old := ticket.Status
	now := e.clk.Now()
	ticket.Status = domain.TicketStatusClosed
	ticket.ClosedAt = &now

	entry := &domain.AuditEntry{
		Action: domain.AuditActionAutoClosed,
		Actor:  domain.SystemActor(),
		Details: map[string]any{
			"resolved_at": ticket.ResolvedAt,
		},
	}
	if err := e.tickets.Update(ctx, ticket, entry); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			e.logger.Warn("auto-close lost a concurrent commit",
				zap.String("ticket_id", ticketID))
			return ticket, false, nil
		}
		return nil, false, err
	}
	if err := e.sla.OnStatusChanged(ctx, ticket, old); err != nil {
		return nil, false, err
	}
	return ticket, true, nil
}

// GetTicket returns a ticket together with its audit trail.
func (e *Engine) GetTicket(ctx context.Context, id string) (*domain.Ticket, []domain.AuditEntry, error) {
	ticket, err := e.tickets.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	trail, err := e.audits.ListByTicket(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return ticket, trail, nil
}

// GetTicketByKey returns a ticket looked up by its external key.
func (e *Engine) GetTicketByKey(ctx context.Context, key string) (*domain.Ticket, []domain.AuditEntry, error) {
	ticket, err := e.tickets.GetByExternalKey(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	trail, err := e.audits.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, nil, err
	}
	return ticket, trail, nil
}

// ListTickets returns tickets matching the filter.
func (e *Engine) ListTickets(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	return e.tickets.List(ctx, filter)
}

func (e *Engine) publishAssignment(ctx context.Context, outcome *domain.AssignmentOutcome, actor domain.Actor, manual bool) {
	if outcome == nil || !outcome.Committed {
		return
	}
	switch outcome.Decision.Outcome {
	case domain.DecisionAssigned:
		e.publishEvent(ctx, events.Event{
			Type:     events.EventTicketAssigned,
			TicketID: outcome.Ticket.ID,
			Actor:    actor,
			Payload: events.TicketAssignedPayload{
				HandlerID: *outcome.Decision.HandlerID,
				Unit:      outcome.Ticket.Unit,
				Loads:     outcome.Decision.Loads,
				Manual:    manual,
			},
		})
	default:
		e.publishEvent(ctx, events.Event{
			Type:     events.EventTicketAssignmentPending,
			TicketID: outcome.Ticket.ID,
			Actor:    actor,
			Payload: events.TicketAssignmentPendingPayload{
				Unit:   outcome.Ticket.Unit,
				Reason: string(outcome.Decision.Outcome),
			},
		})
	}
}

func (e *Engine) publishEvent(ctx context.Context, event events.Event) {
	if e.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = e.clk.Now()
	}
	_ = e.dispatcher.Publish(ctx, event)
}

func applyStatusStamps(ticket *domain.Ticket, next domain.TicketStatus, now time.Time) {
	switch next {
	case domain.TicketStatusInProgress:
		if ticket.FirstResponseAt == nil {
			ticket.FirstResponseAt = &now
		}
		// A reopen invalidates the resolution stamp.
		if ticket.Status == domain.TicketStatusResolved {
			ticket.ResolvedAt = nil
		}
	case domain.TicketStatusResolved:
		ticket.ResolvedAt = &now
	case domain.TicketStatusClosed:
		ticket.ClosedAt = &now
	}
}

func reminderEligible(status domain.TicketStatus) bool {
	switch status {
	case domain.TicketStatusAssigned, domain.TicketStatusInProgress,
		domain.TicketStatusOnHold, domain.TicketStatusEscalated:
		return true
	}
	return false
}

func generateTicketKey() string {
	return "TCK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusNew:               {domain.TicketStatusPendingAssignment, domain.TicketStatusAssigned},
	domain.TicketStatusPendingAssignment: {domain.TicketStatusAssigned},
	domain.TicketStatusAssigned:          {domain.TicketStatusInProgress, domain.TicketStatusOnHold, domain.TicketStatusEscalated, domain.TicketStatusResolved},
	domain.TicketStatusInProgress:        {domain.TicketStatusOnHold, domain.TicketStatusEscalated, domain.TicketStatusResolved},
	domain.TicketStatusOnHold:            {domain.TicketStatusInProgress, domain.TicketStatusEscalated, domain.TicketStatusResolved},
	domain.TicketStatusEscalated:         {domain.TicketStatusInProgress, domain.TicketStatusResolved},
	domain.TicketStatusResolved:          {domain.TicketStatusInProgress, domain.TicketStatusClosed},
	domain.TicketStatusClosed:            {},
}

func isValidTransition(current, next domain.TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}
