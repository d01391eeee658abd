package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

// HandlerDirectory looks up handlers for assignment. The engine treats
// the directory as read-only; handler onboarding is out of band.
type HandlerDirectory interface {
	GetByID(ctx context.Context, id string) (*domain.Handler, error)
	ListActiveByUnit(ctx context.Context, unit string) ([]domain.Handler, error)
	ListActiveElevated(ctx context.Context) ([]domain.Handler, error)
}

type handlerDirectory struct {
	pool *pgxpool.Pool
}

// NewHandlerDirectory instantiates the directory.
func NewHandlerDirectory(pool *pgxpool.Pool) HandlerDirectory {
	return &handlerDirectory{pool: pool}
}

func (r *handlerDirectory) GetByID(ctx context.Context, id string) (*domain.Handler, error) {
	const query = `
        SELECT id, name, email, units, tier, active_flag, created_at, updated_at
        FROM handlers WHERE id=$1`
	var handler domain.Handler
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&handler.ID,
		&handler.Name,
		&handler.Email,
		&handler.Units,
		&handler.Tier,
		&handler.Active,
		&handler.CreatedAt,
		&handler.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &handler, nil
}

func (r *handlerDirectory) ListActiveByUnit(ctx context.Context, unit string) ([]domain.Handler, error) {
	const query = `
        SELECT id, name, email, units, tier, active_flag, created_at, updated_at
        FROM handlers WHERE active_flag AND $1 = ANY(units)
        ORDER BY id ASC`
	rows, err := r.pool.Query(ctx, query, unit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHandlers(rows)
}

func (r *handlerDirectory) ListActiveElevated(ctx context.Context) ([]domain.Handler, error) {
	const query = `
        SELECT id, name, email, units, tier, active_flag, created_at, updated_at
        FROM handlers WHERE active_flag AND tier=$1
        ORDER BY id ASC`
	rows, err := r.pool.Query(ctx, query, domain.HandlerTierElevated)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHandlers(rows)
}

func scanHandlers(rows pgx.Rows) ([]domain.Handler, error) {
	var result []domain.Handler
	for rows.Next() {
		var handler domain.Handler
		if err := rows.Scan(
			&handler.ID,
			&handler.Name,
			&handler.Email,
			&handler.Units,
			&handler.Tier,
			&handler.Active,
			&handler.CreatedAt,
			&handler.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, handler)
	}
	return result, rows.Err()
}
