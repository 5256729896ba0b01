package rbac

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/formwell/formwell-portal/internal/platform/db"
)

// Repository persists consultant grants.
type Repository interface {
	ListGrants(ctx context.Context, consultantID string) ([]Grant, error)
	UpsertGrant(ctx context.Context, consultantID string, grant Grant) (Grant, error)
	DeleteGrant(ctx context.Context, consultantID, resource string) (int64, error)
	ReplaceGrants(ctx context.Context, consultantID string, grants []Grant) ([]Grant, error)
}

// PGRepository implements Repository on the consultant_permissions table,
// keyed by (consultant_id, resource).
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const listGrantsSQL = `SELECT resource, can_read, can_write, can_delete, updated_at
FROM consultant_permissions
WHERE consultant_id = $1
ORDER BY resource`

// ListGrants returns every grant held by a consultant.
func (r *PGRepository) ListGrants(ctx context.Context, consultantID string) ([]Grant, error) {
	rows, err := r.pool.Query(ctx, listGrantsSQL, consultantID)
	if err != nil {
		if isInvalidID(err) {
			return []Grant{}, nil
		}
		return nil, fmt.Errorf("rbac: list grants: %w", err)
	}
	defer rows.Close()

	grants := make([]Grant, 0)
	for rows.Next() {
		var g Grant
		var updatedAt pgtype.Timestamptz
		if err := rows.Scan(&g.Resource, &g.CanRead, &g.CanWrite, &g.CanDelete, &updatedAt); err != nil {
			return nil, fmt.Errorf("rbac: scan grant: %w", err)
		}
		if updatedAt.Valid {
			g.UpdatedAt = updatedAt.Time
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

const upsertGrantSQL = `INSERT INTO consultant_permissions (consultant_id, resource, can_read, can_write, can_delete, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (consultant_id, resource)
DO UPDATE SET can_read = EXCLUDED.can_read, can_write = EXCLUDED.can_write, can_delete = EXCLUDED.can_delete, updated_at = EXCLUDED.updated_at
RETURNING updated_at`

// UpsertGrant writes the single authoritative grant for (consultant, resource).
func (r *PGRepository) UpsertGrant(ctx context.Context, consultantID string, grant Grant) (Grant, error) {
	now := time.Now().UTC()
	var updatedAt pgtype.Timestamptz
	err := r.pool.QueryRow(ctx, upsertGrantSQL,
		consultantID,
		grant.Resource,
		grant.CanRead,
		grant.CanWrite,
		grant.CanDelete,
		pgtype.Timestamptz{Time: now, Valid: true},
	).Scan(&updatedAt)
	if err != nil {
		if isMissingConsultant(err) || isInvalidID(err) {
			return Grant{}, ErrNotFound
		}
		return Grant{}, fmt.Errorf("rbac: upsert grant: %w", err)
	}
	grant.UpdatedAt = now
	if updatedAt.Valid {
		grant.UpdatedAt = updatedAt.Time
	}
	return grant, nil
}

const deleteGrantSQL = `DELETE FROM consultant_permissions WHERE consultant_id = $1 AND resource = $2`

// DeleteGrant removes a grant and reports how many rows went away.
func (r *PGRepository) DeleteGrant(ctx context.Context, consultantID, resource string) (int64, error) {
	tag, err := r.pool.Exec(ctx, deleteGrantSQL, consultantID, resource)
	if err != nil {
		if isInvalidID(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("rbac: delete grant: %w", err)
	}
	return tag.RowsAffected(), nil
}

const clearGrantsSQL = `DELETE FROM consultant_permissions WHERE consultant_id = $1`

// ReplaceGrants swaps the consultant's whole grant list in one transaction.
func (r *PGRepository) ReplaceGrants(ctx context.Context, consultantID string, grants []Grant) ([]Grant, error) {
	now := time.Now().UTC()
	stored := make([]Grant, 0, len(grants))
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, clearGrantsSQL, consultantID); err != nil {
			if isInvalidID(err) {
				return ErrNotFound
			}
			return fmt.Errorf("rbac: clear grants: %w", err)
		}
		batch := &pgx.Batch{}
		for _, g := range grants {
			batch.Queue(upsertGrantSQL, consultantID, g.Resource, g.CanRead, g.CanWrite, g.CanDelete,
				pgtype.Timestamptz{Time: now, Valid: true})
		}
		results := tx.SendBatch(ctx, batch)
		for _, g := range grants {
			var updatedAt pgtype.Timestamptz
			if err := results.QueryRow().Scan(&updatedAt); err != nil {
				_ = results.Close()
				if isMissingConsultant(err) {
					return ErrNotFound
				}
				return fmt.Errorf("rbac: insert grant %s: %w", g.Resource, err)
			}
			g.UpdatedAt = updatedAt.Time
			stored = append(stored, g)
		}
		return results.Close()
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func isMissingConsultant(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.ConstraintName == "fk_consultant_permissions_user"
}

const invalidTextRepresentation = "22P02"

// isInvalidID reports a consultant id Postgres could not parse as a UUID.
// No consultant can own such an id.
func isInvalidID(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == invalidTextRepresentation
}

var _ Repository = (*PGRepository)(nil)
