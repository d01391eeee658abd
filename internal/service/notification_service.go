package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-engine/internal/events"
	"github.com/spec-kit/helpdesk-engine/internal/notify"
)

// NotificationService translates domain events into notification
// intents and hands them to the configured sink.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	sink       notify.Sink
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, sink notify.Sink) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		sink:       sink,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil || n.sink == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketAssigned, n.handleTicketAssigned)
	n.dispatcher.Subscribe(events.EventTicketAssignmentPending, n.handleAssignmentPending)
	n.dispatcher.Subscribe(events.EventTicketEscalated, n.handleTicketEscalated)
	n.dispatcher.Subscribe(events.EventTicketReminderDue, n.handleReminderDue)
}

func (n *NotificationService) handleTicketAssigned(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketAssignedPayload)
	if !ok {
		return nil
	}
	return n.sink.NotifyHandler(ctx, notify.HandlerNotice{
		TicketID:   event.TicketID,
		Unit:       payload.Unit,
		HandlerID:  payload.HandlerID,
		Reason:     "assigned",
		OccurredAt: event.Timestamp,
	})
}

func (n *NotificationService) handleAssignmentPending(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketAssignmentPendingPayload)
	if !ok {
		return nil
	}
	return n.sink.NotifyManualIntervention(ctx, notify.InterventionNotice{
		TicketID:   event.TicketID,
		Unit:       payload.Unit,
		Reason:     payload.Reason,
		OccurredAt: event.Timestamp,
	})
}

func (n *NotificationService) handleTicketEscalated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketEscalatedPayload)
	if !ok {
		return nil
	}
	if payload.Reassigned && payload.HandlerID != nil {
		return n.sink.NotifyHandler(ctx, notify.HandlerNotice{
			TicketID:   event.TicketID,
			Unit:       payload.Unit,
			HandlerID:  *payload.HandlerID,
			Reason:     "escalated",
			OccurredAt: event.Timestamp,
		})
	}
	// No elevated handler took the ticket; operations has to step in.
	return n.sink.NotifyManualIntervention(ctx, notify.InterventionNotice{
		TicketID:   event.TicketID,
		Unit:       payload.Unit,
		Reason:     "escalation_unassigned",
		OccurredAt: event.Timestamp,
	})
}

func (n *NotificationService) handleReminderDue(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketReminderDuePayload)
	if !ok {
		return nil
	}
	return n.sink.NotifyReminder(ctx, notify.ReminderNotice{
		TicketID:   event.TicketID,
		HandlerID:  payload.HandlerID,
		DueAt:      payload.DueAt,
		OccurredAt: event.Timestamp,
	})
}
