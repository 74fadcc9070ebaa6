package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docportal/internal/model"
	"docportal/internal/repository"
)

var documentCols = []string{"id", "title", "description", "stored_name", "original_name", "content_type", "size", "checksum", "uploaded_by", "created_at", "updated_at"}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func documentRow(id int64, now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(documentCols).
		AddRow(id, "Quarterly report", nil, "documents/abc", "report.pdf", "application/pdf", 100, "deadbeef", 1, now, now)
}

func TestDocumentPostgres_Create(t *testing.T) {
	store, mock := newMockStore(t)
	repo := store.Documents()

	now := time.Now().UTC()
	desc := "numbers"
	doc := &model.Document{
		Title:        "Quarterly report",
		Description:  &desc,
		StoredName:   "documents/abc",
		OriginalName: "report.pdf",
		ContentType:  "application/pdf",
		Size:         100,
		Checksum:     "deadbeef",
		UploadedBy:   1,
		CreatedAt:    now,
	}

	mock.ExpectQuery("INSERT INTO documents").
		WithArgs(doc.Title, desc, doc.StoredName, doc.OriginalName, doc.ContentType, doc.Size, doc.Checksum, doc.UploadedBy, now).
		WillReturnRows(documentRow(7, now))

	result, err := repo.Create(context.Background(), doc)

	require.NoError(t, err)
	assert.Equal(t, int64(7), result.ID)
	assert.Equal(t, "documents/abc", result.StoredName)
	assert.Nil(t, result.Description)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentPostgres_Create_DuplicateStoredName(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO documents").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "documents_stored_name_key"})

	_, err := store.Documents().Create(context.Background(), &model.Document{Title: "x"})
	assert.ErrorIs(t, err, repository.ErrDuplicate)
	assert.Contains(t, err.Error(), "documents_stored_name_key")
}

func TestDocumentPostgres_FindByID(t *testing.T) {
	store, mock := newMockStore(t)
	repo := store.Documents()
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM documents WHERE id = ?").
			WithArgs(int64(7)).
			WillReturnRows(documentRow(7, time.Now()))

		doc, err := repo.FindByID(ctx, 7)

		assert.NoError(t, err)
		assert.Equal(t, int64(7), doc.ID)
		assert.Equal(t, int64(1), doc.UploadedBy)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM documents WHERE id = ?").
			WithArgs(int64(404)).
			WillReturnError(sql.ErrNoRows)

		doc, err := repo.FindByID(ctx, 404)

		assert.ErrorIs(t, err, repository.ErrNotFound)
		assert.Nil(t, doc)
	})

	t.Run("driver failure passes through", func(t *testing.T) {
		cause := errors.New("conn reset")
		mock.ExpectQuery("SELECT (.+) FROM documents WHERE id = ?").
			WithArgs(int64(8)).
			WillReturnError(cause)

		_, err := repo.FindByID(ctx, 8)
		assert.ErrorIs(t, err, cause)
		assert.NotErrorIs(t, err, repository.ErrNotFound)
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentPostgres_List(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM documents")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT (.+) FROM documents ORDER BY").
		WithArgs(10, 0).
		WillReturnRows(documentRow(1, time.Now()))

	res, err := store.Documents().List(context.Background(), repository.PageQuery{Limit: 0, Offset: -5})

	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	assert.Len(t, res.Items, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentPostgres_ListReadableBy(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	cols := append(append([]string{}, documentCols...), "can_read", "can_edit", "can_delete")
	mock.ExpectQuery("JOIN access_grants g ON g.document_id = d.id").
		WithArgs(int64(2), 20, 40).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(3, "Shared", nil, "documents/s", "s.txt", "text/plain", 5, "ff", 1, now, now, true, true, false))

	res, err := store.Documents().ListReadableBy(context.Background(), 2, repository.PageQuery{Limit: 20, Offset: 40})

	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, int64(3), res.Items[0].ID)
	assert.Equal(t, model.Capabilities{CanRead: true, CanEdit: true}, res.Items[0].Capabilities)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentPostgres_Update(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	title := "Renamed"

	mock.ExpectQuery("UPDATE documents").
		WithArgs(int64(7), title, nil, now).
		WillReturnRows(documentRow(7, now))

	doc, err := store.Documents().Update(context.Background(), 7, model.DocumentPatch{Title: &title}, now)
	require.NoError(t, err)
	assert.Equal(t, int64(7), doc.ID)

	mock.ExpectQuery("UPDATE documents").WillReturnError(sql.ErrNoRows)
	_, err = store.Documents().Update(context.Background(), 8, model.DocumentPatch{Title: &title}, now)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentPostgres_Delete(t *testing.T) {
	store, mock := newMockStore(t)
	repo := store.Documents()

	mock.ExpectExec("DELETE FROM documents WHERE id = ?").
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.Delete(context.Background(), 7))

	mock.ExpectExec("DELETE FROM documents WHERE id = ?").
		WithArgs(int64(8)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Delete(context.Background(), 8), repository.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentPostgres_ExistingStoredNames(t *testing.T) {
	store, mock := newMockStore(t)
	repo := store.Documents()

	got, err := repo.ExistingStoredNames(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT stored_name FROM documents WHERE stored_name IN ($1, $2)")).
		WithArgs("documents/a", "documents/b").
		WillReturnRows(sqlmock.NewRows([]string{"stored_name"}).AddRow("documents/a"))

	got, err = repo.ExistingStoredNames(context.Background(), []string{"documents/a", "documents/b"})
	require.NoError(t, err)
	assert.True(t, got["documents/a"])
	assert.False(t, got["documents/b"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithinTx(t *testing.T) {
	t.Run("commit", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM documents").WithArgs(int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := store.WithinTx(context.Background(), func(tx repository.Store) error {
			return tx.Documents().Delete(context.Background(), 1)
		})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rollback on error", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM documents").WithArgs(int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectRollback()

		cause := errors.New("blob delete failed")
		err := store.WithinTx(context.Background(), func(tx repository.Store) error {
			if err := tx.Documents().Delete(context.Background(), 1); err != nil {
				return err
			}
			return cause
		})
		assert.ErrorIs(t, err, cause)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nested joins outer transaction", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectCommit()

		err := store.WithinTx(context.Background(), func(tx repository.Store) error {
			return tx.WithinTx(context.Background(), func(repository.Store) error { return nil })
		})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
