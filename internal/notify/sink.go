// Package notify delivers fire-and-forget notification intents to an
// external channel. Delivery failures are logged by the caller and
// never affect ticket state.
package notify

import (
	"context"
	"time"
)

// HandlerNotice tells a handler a ticket now needs their attention.
type HandlerNotice struct {
	TicketID   string
	Unit       string
	HandlerID  string
	Reason     string
	OccurredAt time.Time
}

// InterventionNotice asks operations staff to route a ticket the
// engine could not.
type InterventionNotice struct {
	TicketID   string
	Unit       string
	Reason     string
	OccurredAt time.Time
}

// ReminderNotice nudges the assigned handler ahead of the SLA breach.
type ReminderNotice struct {
	TicketID   string
	HandlerID  string
	DueAt      time.Time
	OccurredAt time.Time
}

// Sink is a notification transport.
type Sink interface {
	NotifyHandler(ctx context.Context, notice HandlerNotice) error
	NotifyManualIntervention(ctx context.Context, notice InterventionNotice) error
	NotifyReminder(ctx context.Context, notice ReminderNotice) error
}
