package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

// TimerIntentRepository persists scheduled timers. State transitions
// are compare-and-swap on state='PENDING' so an intent fires or
// cancels exactly once regardless of racing workers.
type TimerIntentRepository interface {
	Insert(ctx context.Context, intent *domain.TimerIntent) error
	GetByID(ctx context.Context, id string) (*domain.TimerIntent, error)
	ListPending(ctx context.Context) ([]domain.TimerIntent, error)
	MarkFired(ctx context.Context, id string, at time.Time) (bool, error)
	MarkCancelled(ctx context.Context, id string, at time.Time) (bool, error)
	CancelByTicket(ctx context.Context, ticketID string, at time.Time, kinds ...domain.TimerKind) ([]domain.TimerIntent, error)
	DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type timerIntentRepository struct {
	pool *pgxpool.Pool
}

// NewTimerIntentRepository instantiates repository.
func NewTimerIntentRepository(pool *pgxpool.Pool) TimerIntentRepository {
	return &timerIntentRepository{pool: pool}
}

func (r *timerIntentRepository) Insert(ctx context.Context, intent *domain.TimerIntent) error {
	const query = `
        INSERT INTO timer_intents (id, ticket_id, kind, fire_at, state, created_at)
        VALUES ($1,$2,$3,$4,$5,$6)`
	_, err := r.pool.Exec(ctx, query,
		intent.ID,
		intent.TicketID,
		intent.Kind,
		intent.FireAt,
		intent.State,
		intent.CreatedAt,
	)
	return err
}

func (r *timerIntentRepository) GetByID(ctx context.Context, id string) (*domain.TimerIntent, error) {
	const query = `
        SELECT id, ticket_id, kind, fire_at, state, created_at, fired_at, cancelled_at
        FROM timer_intents WHERE id=$1`
	var intent domain.TimerIntent
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&intent.ID,
		&intent.TicketID,
		&intent.Kind,
		&intent.FireAt,
		&intent.State,
		&intent.CreatedAt,
		&intent.FiredAt,
		&intent.CancelledAt,
	); err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *timerIntentRepository) ListPending(ctx context.Context) ([]domain.TimerIntent, error) {
	const query = `
        SELECT id, ticket_id, kind, fire_at, state, created_at, fired_at, cancelled_at
        FROM timer_intents WHERE state=$1 ORDER BY fire_at ASC`
	rows, err := r.pool.Query(ctx, query, domain.TimerIntentPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TimerIntent
	for rows.Next() {
		var intent domain.TimerIntent
		if err := rows.Scan(
			&intent.ID,
			&intent.TicketID,
			&intent.Kind,
			&intent.FireAt,
			&intent.State,
			&intent.CreatedAt,
			&intent.FiredAt,
			&intent.CancelledAt,
		); err != nil {
			return nil, err
		}
		result = append(result, intent)
	}
	return result, rows.Err()
}

// MarkFired flips a pending intent to FIRED. Returns false when the
// intent was already fired or cancelled.
func (r *timerIntentRepository) MarkFired(ctx context.Context, id string, at time.Time) (bool, error) {
	const query = `
        UPDATE timer_intents SET state=$1, fired_at=$2
        WHERE id=$3 AND state=$4`
	cmd, err := r.pool.Exec(ctx, query, domain.TimerIntentFired, at, id, domain.TimerIntentPending)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

// MarkCancelled flips a pending intent to CANCELLED. Returns false when
// the intent was already fired or cancelled.
func (r *timerIntentRepository) MarkCancelled(ctx context.Context, id string, at time.Time) (bool, error) {
	const query = `
        UPDATE timer_intents SET state=$1, cancelled_at=$2
        WHERE id=$3 AND state=$4`
	cmd, err := r.pool.Exec(ctx, query, domain.TimerIntentCancelled, at, id, domain.TimerIntentPending)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

// CancelByTicket cancels every pending intent for the ticket matching
// one of the given kinds (all kinds when none given) and returns the
// intents it cancelled.
func (r *timerIntentRepository) CancelByTicket(ctx context.Context, ticketID string, at time.Time, kinds ...domain.TimerKind) ([]domain.TimerIntent, error) {
	if len(kinds) == 0 {
		kinds = domain.AllTimerKinds
	}
	kindVals := make([]string, len(kinds))
	for i, kind := range kinds {
		kindVals[i] = string(kind)
	}

	const query = `
        UPDATE timer_intents SET state=$1, cancelled_at=$2
        WHERE ticket_id=$3 AND state=$4 AND kind = ANY($5)
        RETURNING id, ticket_id, kind, fire_at, state, created_at, fired_at, cancelled_at`
	rows, err := r.pool.Query(ctx, query, domain.TimerIntentCancelled, at, ticketID, domain.TimerIntentPending, kindVals)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TimerIntent
	for rows.Next() {
		var intent domain.TimerIntent
		if err := rows.Scan(
			&intent.ID,
			&intent.TicketID,
			&intent.Kind,
			&intent.FireAt,
			&intent.State,
			&intent.CreatedAt,
			&intent.FiredAt,
			&intent.CancelledAt,
		); err != nil {
			return nil, err
		}
		result = append(result, intent)
	}
	return result, rows.Err()
}

// DeleteResolvedBefore removes fired and cancelled intents resolved
// before the cutoff, returning the number deleted.
func (r *timerIntentRepository) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `
        DELETE FROM timer_intents
        WHERE state <> $1 AND COALESCE(fired_at, cancelled_at) < $2`
	cmd, err := r.pool.Exec(ctx, query, domain.TimerIntentPending, cutoff)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
