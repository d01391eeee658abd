package service

import (
	"context"
	"testing"

	"github.com/spec-kit/helpdesk-engine/internal/clock"
	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

func newTestResolver(store *memTicketStore) *Resolver {
	return NewResolver(testEngineConfig(), NewLoadTracker(store), clock.Fake(epoch))
}

func TestResolvePicksLeastLoaded(t *testing.T) {
	store := newMemTicketStore()
	store.seedAssigned("tck-a1", "billing", "h-a")
	store.seedAssigned("tck-a2", "billing", "h-a")
	store.seedAssigned("tck-b1", "billing", "h-b")
	store.seedAssigned("tck-c1", "billing", "h-c")
	store.seedAssigned("tck-c2", "billing", "h-c")
	store.seedAssigned("tck-c3", "billing", "h-c")

	pool := []domain.Handler{
		ordinaryHandler("h-a", "billing"),
		ordinaryHandler("h-b", "billing"),
		ordinaryHandler("h-c", "billing"),
	}
	ticket := &domain.Ticket{ID: "tck-new", Unit: "billing", Status: domain.TicketStatusNew}

	decision, err := newTestResolver(store).Resolve(context.Background(), ticket, pool)
	if err != nil {
		t.Fatalf("Resolve() = %v", err)
	}
	if decision.Outcome != domain.DecisionAssigned {
		t.Fatalf("outcome = %v, want %v", decision.Outcome, domain.DecisionAssigned)
	}
	if decision.HandlerID == nil || *decision.HandlerID != "h-b" {
		t.Fatalf("handler = %v, want h-b", decision.HandlerID)
	}
	if decision.Loads["h-a"] != 2 || decision.Loads["h-b"] != 1 || decision.Loads["h-c"] != 3 {
		t.Fatalf("loads = %v, want h-a:2 h-b:1 h-c:3", decision.Loads)
	}
}

func TestResolveTieBreaksOnSmallerHandlerID(t *testing.T) {
	store := newMemTicketStore()
	// Pool deliberately out of order; the tiebreak must not depend on it.
	pool := []domain.Handler{
		ordinaryHandler("h-c", "support"),
		ordinaryHandler("h-a", "support"),
		ordinaryHandler("h-b", "support"),
	}
	ticket := &domain.Ticket{ID: "tck-new", Unit: "support", Status: domain.TicketStatusNew}

	decision, err := newTestResolver(store).Resolve(context.Background(), ticket, pool)
	if err != nil {
		t.Fatalf("Resolve() = %v", err)
	}
	if decision.HandlerID == nil || *decision.HandlerID != "h-a" {
		t.Fatalf("handler = %v, want h-a", decision.HandlerID)
	}
}

func TestResolveExcludesNonActiveLoad(t *testing.T) {
	store := newMemTicketStore()
	// Resolved and on-hold tickets do not count toward load, so h-a is
	// free despite carrying more rows.
	resolvedHandler := "h-a"
	store.seed(domain.Ticket{ID: "tck-r1", Unit: "billing", Status: domain.TicketStatusResolved, HandlerID: &resolvedHandler})
	store.seed(domain.Ticket{ID: "tck-r2", Unit: "billing", Status: domain.TicketStatusOnHold, HandlerID: &resolvedHandler})
	store.seedAssigned("tck-b1", "billing", "h-b")

	pool := []domain.Handler{
		ordinaryHandler("h-a", "billing"),
		ordinaryHandler("h-b", "billing"),
	}
	ticket := &domain.Ticket{ID: "tck-new", Unit: "billing", Status: domain.TicketStatusNew}

	decision, err := newTestResolver(store).Resolve(context.Background(), ticket, pool)
	if err != nil {
		t.Fatalf("Resolve() = %v", err)
	}
	if decision.HandlerID == nil || *decision.HandlerID != "h-a" {
		t.Fatalf("handler = %v, want h-a", decision.HandlerID)
	}
	if decision.Loads["h-a"] != 0 {
		t.Fatalf("load h-a = %d, want 0", decision.Loads["h-a"])
	}
}

func TestResolveInvalidUnitWinsOverPool(t *testing.T) {
	store := newMemTicketStore()
	pool := []domain.Handler{elevatedHandler("h-e")}
	ticket := &domain.Ticket{ID: "tck-new", Unit: "facilities", Status: domain.TicketStatusNew}

	decision, err := newTestResolver(store).Resolve(context.Background(), ticket, pool)
	if err != nil {
		t.Fatalf("Resolve() = %v", err)
	}
	if decision.Outcome != domain.DecisionInvalidUnit {
		t.Fatalf("outcome = %v, want %v", decision.Outcome, domain.DecisionInvalidUnit)
	}
	if decision.HandlerID != nil {
		t.Fatalf("handler = %v, want nil", *decision.HandlerID)
	}
}

func TestResolveEmptyPool(t *testing.T) {
	store := newMemTicketStore()
	ticket := &domain.Ticket{ID: "tck-new", Unit: "general", Status: domain.TicketStatusNew}

	decision, err := newTestResolver(store).Resolve(context.Background(), ticket, nil)
	if err != nil {
		t.Fatalf("Resolve() = %v", err)
	}
	if decision.Outcome != domain.DecisionNoEligibleHandler {
		t.Fatalf("outcome = %v, want %v", decision.Outcome, domain.DecisionNoEligibleHandler)
	}
	if !decision.DecidedAt.Equal(epoch) {
		t.Fatalf("DecidedAt = %v, want %v", decision.DecidedAt, epoch)
	}
}
