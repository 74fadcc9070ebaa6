package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"docportal/internal/model"
	"docportal/internal/repository"
)

const documentColumns = `id, title, description, stored_name, original_name, content_type, size, checksum, uploaded_by, created_at, updated_at`

// DocumentPostgres is a PostgreSQL implementation of repository.DocumentRepository.
type DocumentPostgres struct {
	q sqlx.ExtContext
}

var _ repository.DocumentRepository = (*DocumentPostgres)(nil)

// Create inserts a new document row and returns the stored record.
func (r *DocumentPostgres) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	const q = `
		INSERT INTO documents (title, description, stored_name, original_name, content_type, size, checksum, uploaded_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING ` + documentColumns

	var out model.Document
	if err := sqlx.GetContext(ctx, r.q, &out, q,
		doc.Title,
		doc.Description,
		doc.StoredName,
		doc.OriginalName,
		doc.ContentType,
		doc.Size,
		doc.Checksum,
		doc.UploadedBy,
		doc.CreatedAt,
	); err != nil {
		return nil, mapError(err)
	}
	return &out, nil
}

// FindByID fetches a single document by its ID.
func (r *DocumentPostgres) FindByID(ctx context.Context, id int64) (*model.Document, error) {
	const q = `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`

	var d model.Document
	if err := sqlx.GetContext(ctx, r.q, &d, q, id); err != nil {
		return nil, mapError(err)
	}
	return &d, nil
}

// List returns documents using LIMIT/OFFSET pagination and a total count.
func (r *DocumentPostgres) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Document], error) {
	pq = pageDefaults(pq)

	var total int
	if err := sqlx.GetContext(ctx, r.q, &total, `SELECT COUNT(*) FROM documents`); err != nil {
		return nil, mapError(err)
	}

	const qList = `
		SELECT ` + documentColumns + `
		FROM documents
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`

	items := make([]model.Document, 0)
	if err := sqlx.SelectContext(ctx, r.q, &items, qList, pq.Limit, pq.Offset); err != nil {
		return nil, mapError(err)
	}
	return &repository.PageResult[model.Document]{Items: items, Total: total}, nil
}

// ListReadableBy returns the documents userID may read with its capabilities.
func (r *DocumentPostgres) ListReadableBy(ctx context.Context, userID int64, pq repository.PageQuery) (*repository.PageResult[model.DocumentAccess], error) {
	pq = pageDefaults(pq)

	const qCount = `
		SELECT COUNT(*)
		FROM documents d
		JOIN access_grants g ON g.document_id = d.id
		WHERE g.user_id = $1 AND g.can_read`

	var total int
	if err := sqlx.GetContext(ctx, r.q, &total, qCount, userID); err != nil {
		return nil, mapError(err)
	}

	const qList = `
		SELECT d.id, d.title, d.description, d.stored_name, d.original_name, d.content_type,
		       d.size, d.checksum, d.uploaded_by, d.created_at, d.updated_at,
		       g.can_read, g.can_edit, g.can_delete
		FROM documents d
		JOIN access_grants g ON g.document_id = d.id
		WHERE g.user_id = $1 AND g.can_read
		ORDER BY d.created_at DESC, d.id DESC
		LIMIT $2 OFFSET $3`

	items := make([]model.DocumentAccess, 0)
	if err := sqlx.SelectContext(ctx, r.q, &items, qList, userID, pq.Limit, pq.Offset); err != nil {
		return nil, mapError(err)
	}
	return &repository.PageResult[model.DocumentAccess]{Items: items, Total: total}, nil
}

// Update sets the supplied fields. An empty description clears it.
func (r *DocumentPostgres) Update(ctx context.Context, id int64, patch model.DocumentPatch, updatedAt time.Time) (*model.Document, error) {
	const q = `
		UPDATE documents
		SET title = COALESCE($2, title),
		    description = CASE WHEN $3::text IS NULL THEN description ELSE NULLIF($3::text, '') END,
		    updated_at = $4
		WHERE id = $1
		RETURNING ` + documentColumns

	var d model.Document
	if err := sqlx.GetContext(ctx, r.q, &d, q, id, patch.Title, patch.Description, updatedAt); err != nil {
		return nil, mapError(err)
	}
	return &d, nil
}

// Delete removes a document by ID. Grants go with it through ON DELETE CASCADE.
func (r *DocumentPostgres) Delete(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
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

// ExistingStoredNames reports which of names belong to a document row.
func (r *DocumentPostgres) ExistingStoredNames(ctx context.Context, names []string) (map[string]bool, error) {
	out := make(map[string]bool, len(names))
	if len(names) == 0 {
		return out, nil
	}

	q, args, err := sqlx.In(`SELECT stored_name FROM documents WHERE stored_name IN (?)`, names)
	if err != nil {
		return nil, fmt.Errorf("expand stored names: %w", err)
	}

	var found []string
	if err := sqlx.SelectContext(ctx, r.q, &found, r.q.Rebind(q), args...); err != nil {
		return nil, mapError(err)
	}
	for _, n := range found {
		out[n] = true
	}
	return out, nil
}
