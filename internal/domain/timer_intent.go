package domain

import "time"

// TimerKind enumerates the scheduled actions the engine arms per ticket.
type TimerKind string

const (
	TimerKindReminder  TimerKind = "REMINDER"
	TimerKindEscalate  TimerKind = "ESCALATE"
	TimerKindAutoClose TimerKind = "AUTO_CLOSE"
)

// AllTimerKinds lists every kind, for whole-ticket cancellation.
var AllTimerKinds = []TimerKind{TimerKindReminder, TimerKindEscalate, TimerKindAutoClose}

// TimerIntentState tracks the lifecycle of a scheduled intent. An
// intent leaves PENDING exactly once: a fire racing a cancel resolves
// to a single winner at the store.
type TimerIntentState string

const (
	TimerIntentPending   TimerIntentState = "PENDING"
	TimerIntentFired     TimerIntentState = "FIRED"
	TimerIntentCancelled TimerIntentState = "CANCELLED"
)

// TimerIntent is a durable, cancellable future action tied to a
// ticket. The ID doubles as the cancellation token. At most one
// PENDING intent of each kind exists per ticket; re-arming cancels the
// previous intent and inserts a fresh one.
type TimerIntent struct {
	ID          string
	TicketID    string
	Kind        TimerKind
	FireAt      time.Time
	State       TimerIntentState
	CreatedAt   time.Time
	FiredAt     *time.Time
	CancelledAt *time.Time
}
