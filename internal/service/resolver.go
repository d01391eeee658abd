package service

import (
	"context"

	"github.com/spec-kit/helpdesk-engine/internal/clock"
	"github.com/spec-kit/helpdesk-engine/internal/config"
	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

// Resolver picks a handler from an eligibility pool by least active
// load, breaking ties toward the smaller handler id. Resolving never
// mutates anything; committing the decision is the coordinator's job.
type Resolver struct {
	validUnits map[string]struct{}
	loads      *LoadTracker
	clk        clock.Clock
}

// NewResolver constructs a resolver over the configured unit set.
func NewResolver(cfg config.EngineConfig, loads *LoadTracker, clk clock.Clock) *Resolver {
	return &Resolver{
		validUnits: cfg.UnitSet(),
		loads:      loads,
		clk:        clk,
	}
}

// Resolve decides which pool member should take the ticket. An unknown
// unit wins over pool contents: the decision is INVALID_UNIT even when
// elevated handlers would be eligible.
func (r *Resolver) Resolve(ctx context.Context, ticket *domain.Ticket, pool []domain.Handler) (*domain.AssignmentDecision, error) {
	decision := &domain.AssignmentDecision{DecidedAt: r.clk.Now()}

	if _, ok := r.validUnits[ticket.Unit]; !ok {
		decision.Outcome = domain.DecisionInvalidUnit
		return decision, nil
	}
	if len(pool) == 0 {
		decision.Outcome = domain.DecisionNoEligibleHandler
		return decision, nil
	}

	ids := make([]string, len(pool))
	for i, handler := range pool {
		ids[i] = handler.ID
	}
	loads, err := r.loads.Snapshot(ctx, ids)
	if err != nil {
		return nil, err
	}

	best := pool[0].ID
	for _, handler := range pool[1:] {
		if loads[handler.ID] < loads[best] || (loads[handler.ID] == loads[best] && handler.ID < best) {
			best = handler.ID
		}
	}

	decision.Outcome = domain.DecisionAssigned
	decision.HandlerID = &best
	decision.Loads = loads
	return decision, nil
}
