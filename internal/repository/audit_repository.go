package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

// AuditRepository reads the per-ticket audit trail. Entries are only
// ever written through TicketRepository commits, which keeps the trail
// in lockstep with ticket state.
type AuditRepository interface {
	ListByTicket(ctx context.Context, ticketID string) ([]domain.AuditEntry, error)
}

type auditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository builds repository.
func NewAuditRepository(pool *pgxpool.Pool) AuditRepository {
	return &auditRepository{pool: pool}
}

func (r *auditRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.AuditEntry, error) {
	const query = `
        SELECT id, ticket_id, seq, action, actor_type, actor_id, details, created_at
        FROM ticket_audit WHERE ticket_id=$1 ORDER BY seq ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AuditEntry
	for rows.Next() {
		var entry domain.AuditEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.TicketID,
			&entry.Seq,
			&entry.Action,
			&entry.Actor.Type,
			&entry.Actor.ID,
			&entry.Details,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

func insertAuditEntry(ctx context.Context, tx pgx.Tx, entry *domain.AuditEntry) error {
	const query = `
        INSERT INTO ticket_audit (ticket_id, action, actor_type, actor_id, details)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, seq, created_at`
	return tx.QueryRow(ctx, query,
		entry.TicketID,
		entry.Action,
		entry.Actor.Type,
		entry.Actor.ID,
		entry.Details,
	).Scan(&entry.ID, &entry.Seq, &entry.CreatedAt)
}
