package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"docportal/internal/model"
	"docportal/internal/repository"
)

const userColumns = `id, email, password_hash, role, created_at`

// UserPostgres is a PostgreSQL implementation of repository.UserRepository.
type UserPostgres struct {
	q sqlx.ExtContext
}

var _ repository.UserRepository = (*UserPostgres)(nil)

func (r *UserPostgres) Create(ctx context.Context, u *model.User) (*model.User, error) {
	const q = `
		INSERT INTO users (email, password_hash, role)
		VALUES ($1, $2, $3)
		RETURNING ` + userColumns

	var out model.User
	if err := sqlx.GetContext(ctx, r.q, &out, q, u.Email, u.PasswordHash, u.Role); err != nil {
		return nil, mapError(err)
	}
	return &out, nil
}

func (r *UserPostgres) FindByID(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	if err := sqlx.GetContext(ctx, r.q, &u, `SELECT `+userColumns+` FROM users WHERE id = $1`, id); err != nil {
		return nil, mapError(err)
	}
	return &u, nil
}

func (r *UserPostgres) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	if err := sqlx.GetContext(ctx, r.q, &u, `SELECT `+userColumns+` FROM users WHERE email = $1`, email); err != nil {
		return nil, mapError(err)
	}
	return &u, nil
}

func (r *UserPostgres) List(ctx context.Context) ([]model.User, error) {
	users := make([]model.User, 0)
	if err := sqlx.SelectContext(ctx, r.q, &users, `SELECT `+userColumns+` FROM users ORDER BY id`); err != nil {
		return nil, mapError(err)
	}
	return users, nil
}

// Delete removes the account; its grants cascade, uploaded documents block it.
func (r *UserPostgres) Delete(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
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

func (r *UserPostgres) UpdateRole(ctx context.Context, id int64, role model.Role) (*model.User, error) {
	const q = `UPDATE users SET role = $2 WHERE id = $1 RETURNING ` + userColumns

	var u model.User
	if err := sqlx.GetContext(ctx, r.q, &u, q, id, role); err != nil {
		return nil, mapError(err)
	}
	return &u, nil
}

// UpsertAdmin relies on a single statement so that concurrent starts agree on
// the outcome. xmax is zero only for a freshly inserted row.
func (r *UserPostgres) UpsertAdmin(ctx context.Context, email, passwordHash string) (*model.User, repository.AdminUpsert, error) {
	const q = `
		INSERT INTO users (email, password_hash, role)
		VALUES ($1, $2, 'admin')
		ON CONFLICT (email) DO UPDATE SET role = 'admin'
		WHERE users.role <> 'admin'
		RETURNING ` + userColumns + `, (xmax = 0) AS inserted`

	var row struct {
		model.User
		Inserted bool `db:"inserted"`
	}
	err := sqlx.GetContext(ctx, r.q, &row, q, email, passwordHash)
	switch {
	case err == nil:
		if row.Inserted {
			return &row.User, repository.AdminCreated, nil
		}
		return &row.User, repository.AdminPromoted, nil
	case errors.Is(mapError(err), repository.ErrNotFound):
		// Conflict with a row that is already admin: nothing was written.
		u, err := r.FindByEmail(ctx, email)
		if err != nil {
			return nil, repository.AdminUnchanged, err
		}
		return u, repository.AdminUnchanged, nil
	default:
		return nil, repository.AdminUnchanged, mapError(err)
	}
}

func (r *UserPostgres) LockAdmins(ctx context.Context) ([]int64, error) {
	ids := make([]int64, 0)
	if err := sqlx.SelectContext(ctx, r.q, &ids, `SELECT id FROM users WHERE role = 'admin' ORDER BY id FOR UPDATE`); err != nil {
		return nil, mapError(err)
	}
	return ids, nil
}
