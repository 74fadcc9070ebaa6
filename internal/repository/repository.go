// Package repository contains data access abstractions.
// Implementations live in subpackages (postgres, memory) and contain no business logic.
package repository

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("duplicate record")
	// ErrForeignKey is returned when a write references a missing row, or a
	// delete is blocked by rows still referencing it.
	ErrForeignKey = errors.New("foreign key violation")
)

// Store groups the repositories that share one connection or transaction.
type Store interface {
	Users() UserRepository
	Documents() DocumentRepository
	Grants() GrantRepository

	// WithinTx runs fn against a Store bound to a single transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}

// PageQuery holds limit/offset pagination parameters.
type PageQuery struct {
	Limit  int
	Offset int
}

// PageResult is a generic pagination result wrapper.
// T is typically a model type.
type PageResult[T any] struct {
	Items []T
	Total int
}
