package repository

import (
	"context"

	"docportal/internal/model"
)

// GrantRepository defines data access for access grants. At most one grant
// exists per (user, document) pair.
type GrantRepository interface {
	// FindGrant returns ErrNotFound when the user holds no grant on the document.
	FindGrant(ctx context.Context, userID, documentID int64) (*model.AccessGrant, error)

	// Upsert creates the grant or replaces the capabilities of the existing
	// one. It returns ErrForeignKey when the user or document is missing.
	Upsert(ctx context.Context, g *model.AccessGrant) (*model.AccessGrant, error)

	// Delete returns ErrNotFound when there was no grant to remove.
	Delete(ctx context.Context, userID, documentID int64) error

	ListByDocument(ctx context.Context, documentID int64) ([]model.AccessGrant, error)
}
