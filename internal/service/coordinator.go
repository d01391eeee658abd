package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-engine/internal/clock"
	"github.com/spec-kit/helpdesk-engine/internal/config"
	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/observability"
	"github.com/spec-kit/helpdesk-engine/internal/repository"
	"github.com/spec-kit/helpdesk-engine/pkg/util"
)

// Lock keys. Ticket locks and pool locks share one keyed mutex; the
// acquisition order is always ticket first, pool second, so the two
// kinds can never deadlock against each other.
func ticketLockKey(ticketID string) string { return "ticket:" + ticketID }
func unitPoolKey(unit string) string       { return "pool:unit:" + unit }

const elevatedPoolKey = "pool:elevated"

// CoordinatorDeps bundles collaborators for the coordinator.
type CoordinatorDeps struct {
	Config    config.EngineConfig
	Tickets   repository.TicketRepository
	Directory repository.HandlerDirectory
	Resolver  *Resolver
	SLA       *SLAManager
	Locks     *util.KeyedMutex
	Clock     clock.Clock
	Logger    *zap.Logger
	Metrics   *observability.Metrics
}

// Coordinator serializes assignment attempts and commits their
// decisions. The per-ticket lock makes attempts on one ticket mutually
// exclusive in-process; the version CAS in the ticket store settles
// races across processes. Pool locks serialize automatic resolutions
// per eligibility pool so concurrent decisions observe sequential load
// snapshots.
type Coordinator struct {
	cfg       config.EngineConfig
	tickets   repository.TicketRepository
	directory repository.HandlerDirectory
	resolver  *Resolver
	sla       *SLAManager
	locks     *util.KeyedMutex
	clk       clock.Clock
	logger    *zap.Logger
	metrics   *observability.Metrics
}

// EscalateResult reports what an escalation attempt changed. Nil when
// the ticket had already reached RESOLVED or CLOSED.
type EscalateResult struct {
	Ticket            *domain.Ticket
	PreviousHandlerID *string
	Reassigned        bool
	Committed         bool
}

// NewCoordinator constructs the coordinator.
func NewCoordinator(deps CoordinatorDeps) *Coordinator {
	return &Coordinator{
		cfg:       deps.Config,
		tickets:   deps.Tickets,
		directory: deps.Directory,
		resolver:  deps.Resolver,
		sla:       deps.SLA,
		locks:     deps.Locks,
		clk:       deps.Clock,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
	}
}

// AssignAuto runs least-load assignment for a ticket awaiting one. A
// ticket no longer in NEW or PENDING_ASSIGNMENT means another attempt
// won; the winner's state is reported with Committed=false.
func (c *Coordinator) AssignAuto(ctx context.Context, ticketID string) (*domain.AssignmentOutcome, error) {
	unlockTicket := c.locks.Lock(ticketLockKey(ticketID))
	defer unlockTicket()

	ticket, err := c.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status != domain.TicketStatusNew && ticket.Status != domain.TicketStatusPendingAssignment {
		return lostOutcome(ticket, c.clk.Now()), nil
	}

	unlockPool := c.locks.Lock(unitPoolKey(ticket.Unit))
	pool, err := c.eligiblePool(ctx, ticket.Unit)
	if err != nil {
		unlockPool()
		return nil, err
	}
	decision, err := c.resolver.Resolve(ctx, ticket, pool)
	if err != nil {
		unlockPool()
		return nil, err
	}
	outcome, err := c.commitDecision(ctx, ticket, decision, domain.SystemActor())
	unlockPool()
	if err != nil {
		return nil, err
	}

	if outcome.Committed && outcome.Decision.Outcome == domain.DecisionAssigned {
		if err := c.sla.OnAssigned(ctx, outcome.Ticket); err != nil {
			return nil, err
		}
	}
	return outcome, nil
}

// AssignManual assigns a specific handler, bypassing the resolver. The
// target must be active; the ticket must be in a state that still
// admits (re)assignment. Commits status ASSIGNED and restarts the SLA
// clock.
func (c *Coordinator) AssignManual(ctx context.Context, ticketID, handlerID string, actor domain.Actor) (*domain.AssignmentOutcome, error) {
	unlockTicket := c.locks.Lock(ticketLockKey(ticketID))
	defer unlockTicket()

	ticket, err := c.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	handler, err := c.directory.GetByID(ctx, handlerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, util.NewHandlerInactive(handlerID)
		}
		return nil, err
	}
	if !handler.Active {
		return nil, util.NewHandlerInactive(handlerID)
	}

	switch ticket.Status {
	case domain.TicketStatusNew, domain.TicketStatusPendingAssignment,
		domain.TicketStatusAssigned, domain.TicketStatusEscalated:
	default:
		return nil, util.NewInvalidTransition(string(ticket.Status), string(domain.TicketStatusAssigned))
	}

	now := c.clk.Now()
	decision := &domain.AssignmentDecision{
		Outcome:   domain.DecisionAssigned,
		HandlerID: &handler.ID,
		DecidedAt: now,
	}
	outcome, err := c.commitDecision(ctx, ticket, decision, actor)
	if err != nil {
		return nil, err
	}
	if outcome.Committed {
		if err := c.sla.OnAssigned(ctx, outcome.Ticket); err != nil {
			return nil, err
		}
	}
	return outcome, nil
}

// Escalate moves a breached ticket to ESCALATED and reassigns it from
// the elevated pool. An empty elevated pool keeps the current handler;
// the caller then raises a manual-intervention notice. Returns nil when
// the ticket already reached RESOLVED or CLOSED.
func (c *Coordinator) Escalate(ctx context.Context, ticketID string) (*EscalateResult, error) {
	unlockTicket := c.locks.Lock(ticketLockKey(ticketID))
	defer unlockTicket()

	ticket, err := c.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	switch ticket.Status {
	case domain.TicketStatusResolved, domain.TicketStatusClosed:
		return nil, nil
	}

	unlockPool := c.locks.Lock(elevatedPoolKey)
	elevated, err := c.directory.ListActiveElevated(ctx)
	if err != nil {
		unlockPool()
		return nil, err
	}
	decision, err := c.resolver.Resolve(ctx, ticket, elevated)
	if err != nil {
		unlockPool()
		return nil, err
	}

	now := c.clk.Now()
	prev := ticket.HandlerID
	reassigned := decision.Outcome == domain.DecisionAssigned
	details := map[string]any{"reassigned": reassigned}
	if prev != nil {
		details["previous_handler_id"] = *prev
	}
	if reassigned {
		ticket.HandlerID = decision.HandlerID
		ticket.AssignedAt = &now
		details["handler_id"] = *decision.HandlerID
		details["loads"] = decision.Loads
	}
	ticket.Status = domain.TicketStatusEscalated

	entry := &domain.AuditEntry{
		Action:  domain.AuditActionEscalated,
		Actor:   domain.SystemActor(),
		Details: details,
	}
	err = c.tickets.Update(ctx, ticket, entry)
	if errors.Is(err, repository.ErrVersionConflict) {
		unlockPool()
		c.metrics.RecordAssignmentRaceLost()
		c.logger.Warn("escalation lost a concurrent commit", zap.String("ticket_id", ticketID))
		fresh, readErr := c.tickets.GetByID(ctx, ticketID)
		if readErr != nil {
			return nil, readErr
		}
		return &EscalateResult{Ticket: fresh, PreviousHandlerID: prev, Committed: false}, nil
	}
	if err != nil {
		unlockPool()
		return nil, err
	}
	unlockPool()

	if err := c.sla.OnEscalated(ctx, ticket); err != nil {
		return nil, err
	}
	return &EscalateResult{
		Ticket:            ticket,
		PreviousHandlerID: prev,
		Reassigned:        reassigned,
		Committed:         true,
	}, nil
}

// eligiblePool builds the candidate set for a unit according to the
// configured elevated policy.
func (c *Coordinator) eligiblePool(ctx context.Context, unit string) ([]domain.Handler, error) {
	unitPool, err := c.directory.ListActiveByUnit(ctx, unit)
	if err != nil {
		return nil, err
	}
	elevated, err := c.directory.ListActiveElevated(ctx)
	if err != nil {
		return nil, err
	}

	if c.cfg.ElevatedPolicy == config.ElevatedPolicyFallback {
		if len(unitPool) > 0 {
			return unitPool, nil
		}
		return elevated, nil
	}

	seen := make(map[string]struct{}, len(unitPool))
	pool := make([]domain.Handler, 0, len(unitPool)+len(elevated))
	for _, handler := range unitPool {
		seen[handler.ID] = struct{}{}
		pool = append(pool, handler)
	}
	for _, handler := range elevated {
		if _, ok := seen[handler.ID]; !ok {
			pool = append(pool, handler)
		}
	}
	return pool, nil
}

// commitDecision applies a decision to the ticket under its version
// CAS and appends the audit entry in the same transaction. A version
// conflict means another attempt committed first: the fresh state is
// returned with Committed=false.
func (c *Coordinator) commitDecision(ctx context.Context, ticket *domain.Ticket, decision *domain.AssignmentDecision, actor domain.Actor) (*domain.AssignmentOutcome, error) {
	now := c.clk.Now()
	var entry *domain.AuditEntry

	if decision.Outcome == domain.DecisionAssigned {
		ticket.Status = domain.TicketStatusAssigned
		ticket.HandlerID = decision.HandlerID
		ticket.AssignedAt = &now
		details := map[string]any{"handler_id": *decision.HandlerID}
		if decision.Loads != nil {
			details["loads"] = decision.Loads
		}
		entry = &domain.AuditEntry{
			Action:  domain.AuditActionAssigned,
			Actor:   actor,
			Details: details,
		}
	} else {
		ticket.Status = domain.TicketStatusPendingAssignment
		entry = &domain.AuditEntry{
			Action: domain.AuditActionAssignmentPending,
			Actor:  actor,
			Details: map[string]any{
				"reason": string(decision.Outcome),
				"unit":   ticket.Unit,
			},
		}
	}

	err := c.tickets.Update(ctx, ticket, entry)
	if errors.Is(err, repository.ErrVersionConflict) {
		c.metrics.RecordAssignmentRaceLost()
		c.logger.Info("assignment lost a concurrent commit", zap.String("ticket_id", ticket.ID))
		fresh, readErr := c.tickets.GetByID(ctx, ticket.ID)
		if readErr != nil {
			return nil, readErr
		}
		return lostOutcome(fresh, now), nil
	}
	if err != nil {
		return nil, err
	}

	c.metrics.RecordAssignment(string(decision.Outcome))
	return &domain.AssignmentOutcome{
		Ticket:    ticket,
		Decision:  *decision,
		Committed: true,
	}, nil
}

// lostOutcome derives the reply for an attempt that lost the commit
// race: the winner's state, reported as success without a commit.
func lostOutcome(ticket *domain.Ticket, at time.Time) *domain.AssignmentOutcome {
	decision := domain.AssignmentDecision{DecidedAt: at}
	if ticket.HandlerID != nil {
		decision.Outcome = domain.DecisionAssigned
		decision.HandlerID = ticket.HandlerID
	} else {
		decision.Outcome = domain.DecisionNoEligibleHandler
	}
	return &domain.AssignmentOutcome{
		Ticket:    ticket,
		Decision:  decision,
		Committed: false,
	}
}
