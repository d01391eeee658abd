package service

import (
	"context"

	"github.com/spec-kit/helpdesk-engine/internal/repository"
)

// LoadTracker reports how many active tickets each handler carries.
// Load is derived from ticket state on every read; there is no counter
// to drift.
type LoadTracker struct {
	tickets repository.TicketRepository
}

// NewLoadTracker constructs the tracker.
func NewLoadTracker(tickets repository.TicketRepository) *LoadTracker {
	return &LoadTracker{tickets: tickets}
}

// ActiveLoad returns one handler's count of tickets in an active
// status.
func (l *LoadTracker) ActiveLoad(ctx context.Context, handlerID string) (int, error) {
	loads, err := l.tickets.ActiveLoads(ctx, []string{handlerID})
	if err != nil {
		return 0, err
	}
	return loads[handlerID], nil
}

// Snapshot returns active loads for a whole pool in one consistent
// read. Handlers without active tickets map to zero.
func (l *LoadTracker) Snapshot(ctx context.Context, handlerIDs []string) (map[string]int, error) {
	return l.tickets.ActiveLoads(ctx, handlerIDs)
}
