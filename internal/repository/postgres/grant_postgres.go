package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"docportal/internal/model"
	"docportal/internal/repository"
)

const grantColumns = `user_id, document_id, can_read, can_edit, can_delete, created_at, updated_at`

// GrantPostgres is a PostgreSQL implementation of repository.GrantRepository.
type GrantPostgres struct {
	q sqlx.ExtContext
}

var _ repository.GrantRepository = (*GrantPostgres)(nil)

func (r *GrantPostgres) FindGrant(ctx context.Context, userID, documentID int64) (*model.AccessGrant, error) {
	const q = `SELECT ` + grantColumns + ` FROM access_grants WHERE user_id = $1 AND document_id = $2`

	var g model.AccessGrant
	if err := sqlx.GetContext(ctx, r.q, &g, q, userID, documentID); err != nil {
		return nil, mapError(err)
	}
	return &g, nil
}

// Upsert serializes concurrent grants on the (user_id, document_id) key.
func (r *GrantPostgres) Upsert(ctx context.Context, g *model.AccessGrant) (*model.AccessGrant, error) {
	const q = `
		INSERT INTO access_grants (user_id, document_id, can_read, can_edit, can_delete)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, document_id) DO UPDATE
		SET can_read = EXCLUDED.can_read,
		    can_edit = EXCLUDED.can_edit,
		    can_delete = EXCLUDED.can_delete,
		    updated_at = NOW()
		RETURNING ` + grantColumns

	var out model.AccessGrant
	if err := sqlx.GetContext(ctx, r.q, &out, q, g.UserID, g.DocumentID, g.CanRead, g.CanEdit, g.CanDelete); err != nil {
		return nil, mapError(err)
	}
	return &out, nil
}

func (r *GrantPostgres) Delete(ctx context.Context, userID, documentID int64) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM access_grants WHERE user_id = $1 AND document_id = $2`, userID, documentID)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *GrantPostgres) ListByDocument(ctx context.Context, documentID int64) ([]model.AccessGrant, error) {
	const q = `SELECT ` + grantColumns + ` FROM access_grants WHERE document_id = $1 ORDER BY user_id`

	grants := make([]model.AccessGrant, 0)
	if err := sqlx.SelectContext(ctx, r.q, &grants, q, documentID); err != nil {
		return nil, mapError(err)
	}
	return grants, nil
}
