package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

// ErrVersionConflict reports that a ticket commit lost a concurrent
// update race. Callers re-read the ticket and decide how to proceed.
var ErrVersionConflict = errors.New("ticket version conflict")

// TicketFilter captures listing parameters.
type TicketFilter struct {
	Unit      *string
	HandlerID *string
	Statuses  []domain.TicketStatus
	Limit     int
	Offset    int
}

// TicketRepository encapsulates ticket persistence. Create and Update
// append the given audit entry in the same transaction as the ticket
// write, so state changes and their audit trail can never diverge.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket, entry *domain.AuditEntry) error
	Update(ctx context.Context, ticket *domain.Ticket, entry *domain.AuditEntry) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByExternalKey(ctx context.Context, key string) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	ActiveLoads(ctx context.Context, handlerIDs []string) (map[string]int, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket, entry *domain.AuditEntry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const query = `
        INSERT INTO tickets (external_key, unit, requester_ref, title, description, status, handler_id, assigned_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, version, created_at, updated_at`
	if err := tx.QueryRow(ctx, query,
		ticket.ExternalKey,
		ticket.Unit,
		ticket.RequesterRef,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		ticket.HandlerID,
		ticket.AssignedAt,
	).Scan(&ticket.ID, &ticket.Version, &ticket.CreatedAt, &ticket.UpdatedAt); err != nil {
		return err
	}

	if entry != nil {
		entry.TicketID = ticket.ID
		if err := insertAuditEntry(ctx, tx, entry); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// Update commits the ticket's mutable fields guarded by its version.
// A concurrent commit since the caller's read yields ErrVersionConflict.
func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket, entry *domain.AuditEntry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const query = `
        UPDATE tickets SET status=$1, handler_id=$2, assigned_at=$3, first_response_at=$4,
            resolved_at=$5, closed_at=$6, version=version+1, updated_at=NOW()
        WHERE id=$7 AND version=$8
        RETURNING version, updated_at`
	err = tx.QueryRow(ctx, query,
		ticket.Status,
		ticket.HandlerID,
		ticket.AssignedAt,
		ticket.FirstResponseAt,
		ticket.ResolvedAt,
		ticket.ClosedAt,
		ticket.ID,
		ticket.Version,
	).Scan(&ticket.Version, &ticket.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if probeErr := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tickets WHERE id=$1)`, ticket.ID).Scan(&exists); probeErr != nil {
			return probeErr
		}
		if exists {
			return ErrVersionConflict
		}
		return pgx.ErrNoRows
	}
	if err != nil {
		return err
	}

	if entry != nil {
		entry.TicketID = ticket.ID
		if err := insertAuditEntry(ctx, tx, entry); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	const query = `
        SELECT id, external_key, unit, requester_ref, title, description, status, handler_id,
               version, created_at, updated_at, assigned_at, first_response_at, resolved_at, closed_at
        FROM tickets WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetByExternalKey(ctx context.Context, key string) (*domain.Ticket, error) {
	const query = `
        SELECT id, external_key, unit, requester_ref, title, description, status, handler_id,
               version, created_at, updated_at, assigned_at, first_response_at, resolved_at, closed_at
        FROM tickets WHERE external_key=$1`
	return r.fetchSingle(ctx, query, key)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&ticket.ID,
		&ticket.ExternalKey,
		&ticket.Unit,
		&ticket.RequesterRef,
		&ticket.Title,
		&ticket.Description,
		&ticket.Status,
		&ticket.HandlerID,
		&ticket.Version,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.AssignedAt,
		&ticket.FirstResponseAt,
		&ticket.ResolvedAt,
		&ticket.ClosedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := `SELECT id, external_key, unit, requester_ref, title, description, status, handler_id,
                    version, created_at, updated_at, assigned_at, first_response_at, resolved_at, closed_at
             FROM tickets`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.Unit != nil {
		args = append(args, *filter.Unit)
		clauses = append(clauses, fmt.Sprintf("unit=$%d", len(args)))
	}
	if filter.HandlerID != nil {
		args = append(args, *filter.HandlerID)
		clauses = append(clauses, fmt.Sprintf("handler_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

// ActiveLoads counts tickets in an active status per handler. Handlers
// with no active tickets are present in the result with a zero count.
func (r *ticketRepository) ActiveLoads(ctx context.Context, handlerIDs []string) (map[string]int, error) {
	loads := make(map[string]int, len(handlerIDs))
	for _, id := range handlerIDs {
		loads[id] = 0
	}
	if len(handlerIDs) == 0 {
		return loads, nil
	}

	statuses := make([]string, len(domain.ActiveStatuses))
	for i, status := range domain.ActiveStatuses {
		statuses[i] = string(status)
	}

	const query = `
        SELECT handler_id, COUNT(*) FROM tickets
        WHERE handler_id = ANY($1) AND status = ANY($2)
        GROUP BY handler_id`
	rows, err := r.pool.Query(ctx, query, handlerIDs, statuses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var handlerID string
		var count int
		if err := rows.Scan(&handlerID, &count); err != nil {
			return nil, err
		}
		loads[handlerID] = count
	}
	return loads, rows.Err()
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.ExternalKey,
			&ticket.Unit,
			&ticket.RequesterRef,
			&ticket.Title,
			&ticket.Description,
			&ticket.Status,
			&ticket.HandlerID,
			&ticket.Version,
			&ticket.CreatedAt,
			&ticket.UpdatedAt,
			&ticket.AssignedAt,
			&ticket.FirstResponseAt,
			&ticket.ResolvedAt,
			&ticket.ClosedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
