package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"docportal/internal/repository"
)

// DriverName is the database/sql driver the store binds queries for.
const DriverName = "pgx"

// PostgreSQL error codes mapped to repository sentinels.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// Store is the PostgreSQL implementation of repository.Store.
// It is safe for concurrent use; a Store handed to WithinTx callbacks is not.
type Store struct {
	db *sqlx.DB
	q  sqlx.ExtContext
}

// NewStore wraps an open *sql.DB, typically the otelsql instrumented pool.
func NewStore(db *sql.DB) *Store {
	x := sqlx.NewDb(db, DriverName)
	return &Store{db: x, q: x}
}

var _ repository.Store = (*Store)(nil)

func (s *Store) Users() repository.UserRepository         { return &UserPostgres{q: s.q} }
func (s *Store) Documents() repository.DocumentRepository { return &DocumentPostgres{q: s.q} }
func (s *Store) Grants() repository.GrantRepository       { return &GrantPostgres{q: s.q} }

// WithinTx runs fn inside a transaction. Calling it on a transactional Store
// joins the running transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.Store) error) (err error) {
	if s.db == nil {
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&Store{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", mapError(err))
	}
	return nil
}

// mapError translates driver errors into repository sentinels, keeping the
// original error in the chain.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%w: %s: %w", repository.ErrDuplicate, pgErr.ConstraintName, err)
		case codeForeignKeyViolation:
			return fmt.Errorf("%w: %s: %w", repository.ErrForeignKey, pgErr.ConstraintName, err)
		}
	}
	return err
}

func pageDefaults(pq repository.PageQuery) repository.PageQuery {
	if pq.Limit <= 0 {
		pq.Limit = 10
	}
	if pq.Offset < 0 {
		pq.Offset = 0
	}
	return pq
}
