package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-engine/internal/clock"
	"github.com/spec-kit/helpdesk-engine/internal/config"
	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

// TimerScheduler is the slice of the durable scheduler the engine
// drives: arm a timer, cancel a ticket's timers, claim a fired one.
type TimerScheduler interface {
	Schedule(ctx context.Context, ticketID string, kind domain.TimerKind, fireAt time.Time) (*domain.TimerIntent, error)
	CancelForTicket(ctx context.Context, ticketID string, kinds ...domain.TimerKind) (int, error)
	Claim(ctx context.Context, id string) (*domain.TimerIntent, bool, error)
}

// SLAManager arms and cancels a ticket's SLA timers in response to
// lifecycle changes. Callers invoke it while holding the ticket's lock
// so no concurrent commit can interleave between a state change and
// its re-arm; at most one live intent per kind per ticket holds as an
// invariant.
type SLAManager struct {
	cfg    config.EngineConfig
	timers TimerScheduler
	clk    clock.Clock
	logger *zap.Logger
}

// NewSLAManager constructs the manager.
func NewSLAManager(cfg config.EngineConfig, timers TimerScheduler, clk clock.Clock, logger *zap.Logger) *SLAManager {
	return &SLAManager{
		cfg:    cfg,
		timers: timers,
		clk:    clk,
		logger: logger,
	}
}

// OnAssigned restarts the SLA clock from the ticket's assignment
// instant: a reminder at the lead offset before breach and an escalate
// at the breach itself. A lead of zero or one at least as long as the
// window skips the reminder.
func (m *SLAManager) OnAssigned(ctx context.Context, ticket *domain.Ticket) error {
	if _, err := m.timers.CancelForTicket(ctx, ticket.ID, domain.TimerKindReminder, domain.TimerKindEscalate); err != nil {
		return err
	}

	base := m.clk.Now()
	if ticket.AssignedAt != nil {
		base = *ticket.AssignedAt
	}

	if m.cfg.ReminderLead > 0 && m.cfg.ReminderLead < m.cfg.SLAWindow {
		if _, err := m.timers.Schedule(ctx, ticket.ID, domain.TimerKindReminder, base.Add(m.cfg.SLAWindow-m.cfg.ReminderLead)); err != nil {
			return err
		}
	} else {
		m.logger.Debug("reminder lead outside window, skipping reminder",
			zap.String("ticket_id", ticket.ID),
			zap.Duration("lead", m.cfg.ReminderLead),
			zap.Duration("window", m.cfg.SLAWindow))
	}

	_, err := m.timers.Schedule(ctx, ticket.ID, domain.TimerKindEscalate, base.Add(m.cfg.SLAWindow))
	return err
}

// OnEscalated arms the next escalation tier. Any live reminder is
// dropped; the nudge is not repeated within a tier.
func (m *SLAManager) OnEscalated(ctx context.Context, ticket *domain.Ticket) error {
	if _, err := m.timers.CancelForTicket(ctx, ticket.ID, domain.TimerKindReminder); err != nil {
		return err
	}
	_, err := m.timers.Schedule(ctx, ticket.ID, domain.TimerKindEscalate, m.clk.Now().Add(m.cfg.EscalationWindow))
	return err
}

// OnStatusChanged re-arms timers after a committed status change.
func (m *SLAManager) OnStatusChanged(ctx context.Context, ticket *domain.Ticket, old domain.TicketStatus) error {
	switch ticket.Status {
	case domain.TicketStatusResolved:
		if _, err := m.timers.CancelForTicket(ctx, ticket.ID, domain.TimerKindReminder, domain.TimerKindEscalate); err != nil {
			return err
		}
		base := m.clk.Now()
		if ticket.ResolvedAt != nil {
			base = *ticket.ResolvedAt
		}
		_, err := m.timers.Schedule(ctx, ticket.ID, domain.TimerKindAutoClose, base.Add(m.cfg.AutoCloseWindow))
		return err

	case domain.TicketStatusClosed:
		_, err := m.timers.CancelForTicket(ctx, ticket.ID)
		return err

	case domain.TicketStatusEscalated:
		return m.OnEscalated(ctx, ticket)

	case domain.TicketStatusInProgress:
		if _, err := m.timers.CancelForTicket(ctx, ticket.ID, domain.TimerKindAutoClose); err != nil {
			return err
		}
		if old == domain.TicketStatusResolved {
			// Reopen restarts the SLA clock from the reopen instant.
			now := m.clk.Now()
			if m.cfg.ReminderLead > 0 && m.cfg.ReminderLead < m.cfg.SLAWindow {
				if _, err := m.timers.Schedule(ctx, ticket.ID, domain.TimerKindReminder, now.Add(m.cfg.SLAWindow-m.cfg.ReminderLead)); err != nil {
					return err
				}
			}
			if _, err := m.timers.Schedule(ctx, ticket.ID, domain.TimerKindEscalate, now.Add(m.cfg.SLAWindow)); err != nil {
				return err
			}
		}
		return nil

	case domain.TicketStatusOnHold:
		// The SLA clock keeps running while on hold.
		_, err := m.timers.CancelForTicket(ctx, ticket.ID, domain.TimerKindAutoClose)
		return err
	}
	return nil
}
