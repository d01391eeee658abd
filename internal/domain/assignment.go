package domain

import "time"

// DecisionOutcome classifies the result of a resolution attempt.
type DecisionOutcome string

const (
	DecisionAssigned          DecisionOutcome = "ASSIGNED"
	DecisionNoEligibleHandler DecisionOutcome = "NO_ELIGIBLE_HANDLER"
	DecisionInvalidUnit       DecisionOutcome = "INVALID_UNIT"
)

// AssignmentDecision is the immutable output of a resolution attempt.
// Loads carries the per-handler active counts the decision was based
// on; it is nil for non-assigned outcomes.
type AssignmentDecision struct {
	Outcome   DecisionOutcome
	HandlerID *string
	Loads     map[string]int
	DecidedAt time.Time
}

// AssignmentOutcome is the reply of facade assignment operations.
// Committed is false when a concurrent attempt won the commit; the
// ticket then reflects the winner's state and Decision is derived from
// it. Callers treat a lost race the same as success.
type AssignmentOutcome struct {
	Ticket    *Ticket
	Decision  AssignmentDecision
	Committed bool
}
