package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-engine/internal/config"
	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/events"
	"github.com/spec-kit/helpdesk-engine/internal/repository"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		ValidUnits:       []string{"general", "support", "billing"},
		SLAWindow:        24 * time.Hour,
		ReminderLead:     2 * time.Hour,
		EscalationWindow: 4 * time.Hour,
		AutoCloseWindow:  72 * time.Hour,
		ElevatedPolicy:   config.ElevatedPolicyUnion,
	}
}

// memTicketStore is a map-backed TicketRepository with the same version
// CAS semantics as the SQL implementation. Audit entries append under
// the same lock as the ticket write.
type memTicketStore struct {
	mu     sync.Mutex
	rows   map[string]*domain.Ticket
	trails map[string][]domain.AuditEntry
	nextID int
	seq    int64

	// beforeUpdate runs once at the top of Update, letting a test
	// interleave a conflicting commit. Cleared after it fires.
	beforeUpdate func()
}

var _ repository.TicketRepository = (*memTicketStore)(nil)

func newMemTicketStore() *memTicketStore {
	return &memTicketStore{
		rows:   make(map[string]*domain.Ticket),
		trails: make(map[string][]domain.AuditEntry),
	}
}

func (m *memTicketStore) Create(_ context.Context, ticket *domain.Ticket, entry *domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	ticket.ID = fmt.Sprintf("tck-%d", m.nextID)
	ticket.Version = 1
	ticket.CreatedAt = epoch
	ticket.UpdatedAt = epoch

	cp := *ticket
	m.rows[ticket.ID] = &cp
	if entry != nil {
		entry.TicketID = ticket.ID
		m.appendEntryLocked(entry)
	}
	return nil
}

func (m *memTicketStore) Update(_ context.Context, ticket *domain.Ticket, entry *domain.AuditEntry) error {
	if m.beforeUpdate != nil {
		hook := m.beforeUpdate
		m.beforeUpdate = nil
		hook()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[ticket.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if row.Version != ticket.Version {
		return repository.ErrVersionConflict
	}

	row.Status = ticket.Status
	row.HandlerID = ticket.HandlerID
	row.AssignedAt = ticket.AssignedAt
	row.FirstResponseAt = ticket.FirstResponseAt
	row.ResolvedAt = ticket.ResolvedAt
	row.ClosedAt = ticket.ClosedAt
	row.Version++
	ticket.Version = row.Version

	if entry != nil {
		entry.TicketID = ticket.ID
		m.appendEntryLocked(entry)
	}
	return nil
}

func (m *memTicketStore) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *row
	return &cp, nil
}

func (m *memTicketStore) GetByExternalKey(_ context.Context, key string) (*domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.ExternalKey == key {
			cp := *row
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memTicketStore) List(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Ticket
	for _, row := range m.rows {
		if filter.Unit != nil && row.Unit != *filter.Unit {
			continue
		}
		if filter.HandlerID != nil && (row.HandlerID == nil || *row.HandlerID != *filter.HandlerID) {
			continue
		}
		if len(filter.Statuses) > 0 {
			matched := false
			for _, status := range filter.Statuses {
				if row.Status == status {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		}
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(out) {
		return nil, nil
	}
	if offset+limit > len(out) {
		limit = len(out) - offset
	}
	return out[offset : offset+limit], nil
}

func (m *memTicketStore) ActiveLoads(_ context.Context, handlerIDs []string) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	loads := make(map[string]int, len(handlerIDs))
	for _, id := range handlerIDs {
		loads[id] = 0
	}
	for _, row := range m.rows {
		if row.HandlerID == nil {
			continue
		}
		if _, wanted := loads[*row.HandlerID]; !wanted {
			continue
		}
		for _, status := range domain.ActiveStatuses {
			if row.Status == status {
				loads[*row.HandlerID]++
				break
			}
		}
	}
	return loads, nil
}

// seed inserts a ticket bypassing Create, for fixtures that need a
// specific ID or status.
func (m *memTicketStore) seed(ticket domain.Ticket) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ticket.Version == 0 {
		ticket.Version = 1
	}
	m.rows[ticket.ID] = &ticket
}

// seedAssigned inserts an ASSIGNED ticket carried by handlerID, to
// shape the load a resolver snapshot will observe.
func (m *memTicketStore) seedAssigned(id, unit, handlerID string) {
	assignedAt := epoch
	m.seed(domain.Ticket{
		ID:         id,
		Unit:       unit,
		Status:     domain.TicketStatusAssigned,
		HandlerID:  &handlerID,
		AssignedAt: &assignedAt,
	})
}

// mutate edits a stored row in place, simulating a commit from another
// process.
func (m *memTicketStore) mutate(id string, fn func(*domain.Ticket)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[id]; ok {
		fn(row)
	}
}

func (m *memTicketStore) appendEntryLocked(entry *domain.AuditEntry) {
	m.seq++
	entry.Seq = m.seq
	entry.ID = fmt.Sprintf("audit-%d", m.seq)
	entry.CreatedAt = epoch
	m.trails[entry.TicketID] = append(m.trails[entry.TicketID], *entry)
}

func (m *memTicketStore) trail(ticketID string) []domain.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.AuditEntry{}, m.trails[ticketID]...)
}

func (m *memTicketStore) trailByAction(ticketID string, action domain.AuditAction) []domain.AuditEntry {
	var out []domain.AuditEntry
	for _, entry := range m.trail(ticketID) {
		if entry.Action == action {
			out = append(out, entry)
		}
	}
	return out
}

// memAuditStore adapts the ticket store's trails to AuditRepository.
type memAuditStore struct {
	tickets *memTicketStore
}

var _ repository.AuditRepository = (*memAuditStore)(nil)

func (m *memAuditStore) ListByTicket(_ context.Context, ticketID string) ([]domain.AuditEntry, error) {
	return m.tickets.trail(ticketID), nil
}

// memDirectory is a map-backed HandlerDirectory.
type memDirectory struct {
	mu       sync.Mutex
	handlers map[string]*domain.Handler
}

var _ repository.HandlerDirectory = (*memDirectory)(nil)

func newMemDirectory(handlers ...domain.Handler) *memDirectory {
	d := &memDirectory{handlers: make(map[string]*domain.Handler)}
	for i := range handlers {
		h := handlers[i]
		d.handlers[h.ID] = &h
	}
	return d
}

func (d *memDirectory) GetByID(_ context.Context, id string) (*domain.Handler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	handler, ok := d.handlers[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *handler
	return &cp, nil
}

func (d *memDirectory) ListActiveByUnit(_ context.Context, unit string) ([]domain.Handler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []domain.Handler
	for _, handler := range d.handlers {
		if !handler.Active {
			continue
		}
		for _, u := range handler.Units {
			if u == unit {
				out = append(out, *handler)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *memDirectory) ListActiveElevated(_ context.Context) ([]domain.Handler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []domain.Handler
	for _, handler := range d.handlers {
		if handler.Active && handler.Tier == domain.HandlerTierElevated {
			out = append(out, *handler)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *memDirectory) deactivate(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if handler, ok := d.handlers[id]; ok {
		handler.Active = false
	}
}

func ordinaryHandler(id string, units ...string) domain.Handler {
	return domain.Handler{
		ID:     id,
		Name:   "Handler " + id,
		Email:  id + "@example.test",
		Units:  units,
		Tier:   domain.HandlerTierOrdinary,
		Active: true,
	}
}

func elevatedHandler(id string, units ...string) domain.Handler {
	h := ordinaryHandler(id, units...)
	h.Tier = domain.HandlerTierElevated
	return h
}

// timerRecorder captures SLA manager calls without a real scheduler.
type timerRecorder struct {
	mu        sync.Mutex
	scheduled []scheduledTimer
	cancelled []cancelledTimers
	nextID    int
}

type scheduledTimer struct {
	TicketID string
	Kind     domain.TimerKind
	FireAt   time.Time
}

type cancelledTimers struct {
	TicketID string
	Kinds    []domain.TimerKind
}

var _ TimerScheduler = (*timerRecorder)(nil)

func newTimerRecorder() *timerRecorder {
	return &timerRecorder{}
}

func (r *timerRecorder) Schedule(_ context.Context, ticketID string, kind domain.TimerKind, fireAt time.Time) (*domain.TimerIntent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.scheduled = append(r.scheduled, scheduledTimer{TicketID: ticketID, Kind: kind, FireAt: fireAt})
	return &domain.TimerIntent{
		ID:       fmt.Sprintf("intent-%d", r.nextID),
		TicketID: ticketID,
		Kind:     kind,
		FireAt:   fireAt,
		State:    domain.TimerIntentPending,
	}, nil
}

func (r *timerRecorder) CancelForTicket(_ context.Context, ticketID string, kinds ...domain.TimerKind) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = append(r.cancelled, cancelledTimers{TicketID: ticketID, Kinds: kinds})
	return 0, nil
}

func (r *timerRecorder) Claim(_ context.Context, _ string) (*domain.TimerIntent, bool, error) {
	return nil, false, nil
}

func (r *timerRecorder) scheduledOf(kind domain.TimerKind) []scheduledTimer {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []scheduledTimer
	for _, call := range r.scheduled {
		if call.Kind == kind {
			out = append(out, call)
		}
	}
	return out
}

// assertScheduled requires exactly one scheduled timer of the kind and
// checks its target.
func assertScheduled(t *testing.T, timers *timerRecorder, kind domain.TimerKind, ticketID string, fireAt time.Time) {
	t.Helper()
	calls := timers.scheduledOf(kind)
	if len(calls) != 1 {
		t.Fatalf("%s timers scheduled = %d, want 1", kind, len(calls))
	}
	if calls[0].TicketID != ticketID {
		t.Fatalf("%s timer ticket = %s, want %s", kind, calls[0].TicketID, ticketID)
	}
	if !calls[0].FireAt.Equal(fireAt) {
		t.Fatalf("%s timer fires at %v, want %v", kind, calls[0].FireAt, fireAt)
	}
}

// assertNoneScheduled requires that no timer of the kind was armed.
func assertNoneScheduled(t *testing.T, timers *timerRecorder, kind domain.TimerKind) {
	t.Helper()
	if calls := timers.scheduledOf(kind); len(calls) != 0 {
		t.Fatalf("%s timers scheduled = %d, want 0", kind, len(calls))
	}
}

// eventRecorder is a Dispatcher that stores published events. The
// channel mirror lets tests block on asynchronous publications.
type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
	ch     chan events.Event
}

var _ events.Dispatcher = (*eventRecorder)(nil)

func newEventRecorder() *eventRecorder {
	return &eventRecorder{ch: make(chan events.Event, 32)}
}

func (r *eventRecorder) Publish(_ context.Context, event events.Event) error {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
	select {
	case r.ch <- event:
	default:
	}
	return nil
}

func (r *eventRecorder) Subscribe(events.EventType, events.EventHandler) {}

func (r *eventRecorder) ofType(eventType events.EventType) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, event := range r.events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

// waitFor blocks until an event of the type is published, failing the
// test after a real-time deadline.
func (r *eventRecorder) waitFor(t *testing.T, eventType events.EventType) events.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case event := <-r.ch:
			if event.Type == eventType {
				return event
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", eventType)
			return events.Event{}
		}
	}
}
