package repository

import (
	"context"
	"time"

	"docportal/internal/model"
)

// DocumentRepository defines data access for document metadata.
type DocumentRepository interface {
	// Create inserts a document and returns the stored row with its generated
	// id and timestamps.
	Create(ctx context.Context, doc *model.Document) (*model.Document, error)

	// FindByID returns ErrNotFound when no row matches.
	FindByID(ctx context.Context, id int64) (*model.Document, error)

	// List returns every document, newest first.
	List(ctx context.Context, pq PageQuery) (*PageResult[model.Document], error)

	// ListReadableBy returns the documents userID holds a readable grant on,
	// together with that grant's capabilities.
	ListReadableBy(ctx context.Context, userID int64, pq PageQuery) (*PageResult[model.DocumentAccess], error)

	// Update applies the non-nil fields of patch and sets updated_at.
	Update(ctx context.Context, id int64, patch model.DocumentPatch, updatedAt time.Time) (*model.Document, error)

	// Delete removes the row and, by cascade, its grants. It returns
	// ErrNotFound when no row matched.
	Delete(ctx context.Context, id int64) error

	// ExistingStoredNames reports which of names are referenced by a document.
	ExistingStoredNames(ctx context.Context, names []string) (map[string]bool, error)
}
