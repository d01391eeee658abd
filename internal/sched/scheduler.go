// Package sched schedules durable ticket timers. Intents are persisted
// before they are armed, so pending timers survive restarts; firing and
// cancellation race through compare-and-swap state flips in the store.
package sched

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-engine/internal/clock"
	"github.com/spec-kit/helpdesk-engine/internal/config"
	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/observability"
	"github.com/spec-kit/helpdesk-engine/internal/repository"
)

// Deliverer receives due timer intents. The engine implements this;
// delivery is at-least-once and the receiver claims the intent before
// acting on it.
type Deliverer interface {
	OnTimerFired(ctx context.Context, intentID string) error
}

// Scheduler arms, fires and cancels timer intents. One goroutine pops
// due entries off a min-heap ordered by fire time; a clock timer wakes
// it when the earliest entry comes due.
type Scheduler struct {
	cfg     config.SchedulerConfig
	intents repository.TimerIntentRepository
	clk     clock.Clock
	logger  *zap.Logger
	metrics *observability.Metrics

	deliverer Deliverer

	mu      sync.Mutex
	pending timerHeap
	wake    *clock.Timer
	notify  chan struct{}

	cron     *cron.Cron
	stopOnce sync.Once
	stop     context.CancelFunc
	done     chan struct{}
}

// NewScheduler builds a scheduler. SetDeliverer must be called before
// Start.
func NewScheduler(cfg config.SchedulerConfig, intents repository.TimerIntentRepository, clk clock.Clock, logger *zap.Logger, metrics *observability.Metrics) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		intents: intents,
		clk:     clk,
		logger:  logger,
		metrics: metrics,
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// SetDeliverer wires the component that consumes due intents. Split
// from the constructor because the engine and the scheduler reference
// each other.
func (s *Scheduler) SetDeliverer(d Deliverer) {
	s.deliverer = d
}

// Schedule persists a new pending intent and arms it. Any pending
// intent of the same kind for the ticket is cancelled first, so
// re-arming always replaces rather than stacks.
func (s *Scheduler) Schedule(ctx context.Context, ticketID string, kind domain.TimerKind, fireAt time.Time) (*domain.TimerIntent, error) {
	if _, err := s.CancelForTicket(ctx, ticketID, kind); err != nil {
		return nil, err
	}

	intent := &domain.TimerIntent{
		ID:        uuid.NewString(),
		TicketID:  ticketID,
		Kind:      kind,
		FireAt:    fireAt,
		State:     domain.TimerIntentPending,
		CreatedAt: s.clk.Now(),
	}
	if err := s.intents.Insert(ctx, intent); err != nil {
		return nil, fmt.Errorf("insert timer intent: %w", err)
	}

	s.mu.Lock()
	heap.Push(&s.pending, &timerEntry{
		fireAt:   intent.FireAt,
		intentID: intent.ID,
		ticketID: intent.TicketID,
		kind:     intent.Kind,
	})
	s.rescheduleLocked()
	s.mu.Unlock()

	s.metrics.RecordTimerArmed(string(kind))
	s.logger.Debug("timer armed",
		zap.String("intent_id", intent.ID),
		zap.String("ticket_id", ticketID),
		zap.String("kind", string(kind)),
		zap.Time("fire_at", fireAt))
	return intent, nil
}

// Cancel marks a single intent cancelled. Returns false when the intent
// does not exist or was already fired or cancelled.
func (s *Scheduler) Cancel(ctx context.Context, id string) (bool, error) {
	intent, err := s.intents.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	ok, err := s.intents.MarkCancelled(ctx, id, s.clk.Now())
	if err != nil {
		return false, err
	}
	if ok {
		s.metrics.RecordTimerCancelled(string(intent.Kind))
	}
	return ok, nil
}

// CancelForTicket cancels every pending intent for the ticket matching
// the given kinds (all kinds when none given). Heap entries are not
// touched; they are discarded when they surface.
func (s *Scheduler) CancelForTicket(ctx context.Context, ticketID string, kinds ...domain.TimerKind) (int, error) {
	cancelled, err := s.intents.CancelByTicket(ctx, ticketID, s.clk.Now(), kinds...)
	if err != nil {
		return 0, err
	}
	for _, intent := range cancelled {
		s.metrics.RecordTimerCancelled(string(intent.Kind))
		s.logger.Debug("timer cancelled",
			zap.String("intent_id", intent.ID),
			zap.String("ticket_id", ticketID),
			zap.String("kind", string(intent.Kind)))
	}
	return len(cancelled), nil
}

// Claim atomically flips a pending intent to FIRED on behalf of a
// deliverer acting on it. ok is false when the intent is unknown or was
// already resolved, in which case the firing must be dropped.
func (s *Scheduler) Claim(ctx context.Context, id string) (*domain.TimerIntent, bool, error) {
	intent, err := s.intents.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	now := s.clk.Now()
	ok, err := s.intents.MarkFired(ctx, id, now)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		s.metrics.RecordTimerStale(string(intent.Kind))
		return intent, false, nil
	}
	intent.State = domain.TimerIntentFired
	intent.FiredAt = &now
	s.metrics.RecordTimerFired(string(intent.Kind))
	return intent, true, nil
}

// Start recovers pending intents from the store, arms them and begins
// delivering. Periodic reconcile and purge jobs run until Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)

	if err := s.Reconcile(runCtx); err != nil {
		cancel()
		return fmt.Errorf("recover pending timers: %w", err)
	}

	c := cron.New()
	if _, err := c.AddFunc("@every "+s.cfg.ReconcileEvery.String(), func() {
		if err := s.Reconcile(context.Background()); err != nil {
			s.logger.Error("timer reconcile failed", zap.Error(err))
		}
	}); err != nil {
		cancel()
		return err
	}
	if _, err := c.AddFunc("@every "+s.cfg.PurgeEvery.String(), func() {
		if err := s.PurgeResolved(context.Background()); err != nil {
			s.logger.Error("timer purge failed", zap.Error(err))
		}
	}); err != nil {
		cancel()
		return err
	}
	c.Start()

	s.cron = c
	s.stop = cancel
	go s.run(runCtx)
	return nil
}

// Stop halts delivery and the periodic jobs. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		if s.cron != nil {
			<-s.cron.Stop().Done()
		}
		if s.stop != nil {
			s.stop()
			<-s.done
		}

		s.mu.Lock()
		if s.wake != nil {
			s.wake.Stop()
			s.wake = nil
		}
		s.mu.Unlock()
	})
}

// Reconcile rebuilds the in-memory heap from the store. Run at startup
// and periodically to pick up anything the armed state drifted from.
func (s *Scheduler) Reconcile(ctx context.Context) error {
	intents, err := s.intents.ListPending(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.pending = s.pending[:0]
	for i := range intents {
		intent := &intents[i]
		s.pending = append(s.pending, &timerEntry{
			fireAt:   intent.FireAt,
			intentID: intent.ID,
			ticketID: intent.TicketID,
			kind:     intent.Kind,
		})
	}
	heap.Init(&s.pending)
	s.rescheduleLocked()
	s.mu.Unlock()

	s.logger.Debug("timer heap reconciled", zap.Int("pending", len(intents)))
	return nil
}

// PurgeResolved deletes fired and cancelled intents older than the
// configured retention.
func (s *Scheduler) PurgeResolved(ctx context.Context) error {
	cutoff := s.clk.Now().Add(-s.cfg.IntentRetention)
	deleted, err := s.intents.DeleteResolvedBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if deleted > 0 {
		s.logger.Info("purged resolved timer intents", zap.Int64("deleted", deleted))
	}
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.notify:
			s.drainDue(ctx)
		}
	}
}

// drainDue pops and delivers every entry whose fire time has passed.
// Delivery happens outside the mutex so handlers may schedule or cancel
// timers themselves.
func (s *Scheduler) drainDue(ctx context.Context) {
	for {
		s.mu.Lock()
		if s.pending.Len() == 0 || s.pending[0].fireAt.After(s.clk.Now()) {
			s.rescheduleLocked()
			s.mu.Unlock()
			return
		}
		entry := heap.Pop(&s.pending).(*timerEntry)
		s.mu.Unlock()

		s.deliver(ctx, entry)
	}
}

func (s *Scheduler) deliver(ctx context.Context, entry *timerEntry) {
	// The store is authoritative. Skip entries cancelled since they
	// were armed instead of bothering the deliverer.
	intent, err := s.intents.GetByID(ctx, entry.intentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return
		}
		s.logger.Error("timer lookup failed", zap.String("intent_id", entry.intentID), zap.Error(err))
		return
	}
	if intent.State != domain.TimerIntentPending {
		s.metrics.RecordTimerStale(string(intent.Kind))
		return
	}

	if err := s.deliverer.OnTimerFired(ctx, entry.intentID); err != nil {
		s.logger.Error("timer delivery failed",
			zap.String("intent_id", entry.intentID),
			zap.String("ticket_id", entry.ticketID),
			zap.String("kind", string(entry.kind)),
			zap.Error(err))
	}
}

// rescheduleLocked re-arms the wake timer for the heap's earliest
// entry. When that entry is already due the loop is signalled inline;
// going through the clock here could deadlock a test clock advancing
// under our mutex.
func (s *Scheduler) rescheduleLocked() {
	if s.wake != nil {
		s.wake.Stop()
		s.wake = nil
	}
	if s.pending.Len() == 0 {
		return
	}
	delay := s.pending[0].fireAt.Sub(s.clk.Now())
	if delay <= 0 {
		s.signal()
		return
	}
	s.wake = s.clk.AfterFunc(delay, s.signal)
}

func (s *Scheduler) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
