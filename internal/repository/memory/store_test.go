package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docportal/internal/model"
	"docportal/internal/repository"
)

func seed(t *testing.T, s *Store) (admin, user *model.User, doc *model.Document) {
	t.Helper()
	ctx := context.Background()
	var err error
	admin, err = s.Users().Create(ctx, &model.User{Email: "admin@example.com", PasswordHash: "h", Role: model.RoleAdmin})
	require.NoError(t, err)
	user, err = s.Users().Create(ctx, &model.User{Email: "u@example.com", PasswordHash: "h", Role: model.RoleUser})
	require.NoError(t, err)
	doc, err = s.Documents().Create(ctx, &model.Document{Title: "T", StoredName: "documents/1", UploadedBy: admin.ID})
	require.NoError(t, err)
	return admin, user, doc
}

func TestStore_Constraints(t *testing.T) {
	s := New()
	ctx := context.Background()
	admin, user, doc := seed(t, s)

	_, err := s.Users().Create(ctx, &model.User{Email: "u@example.com", Role: model.RoleUser})
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	_, err = s.Documents().Create(ctx, &model.Document{Title: "x", StoredName: "documents/2", UploadedBy: 999})
	assert.ErrorIs(t, err, repository.ErrForeignKey)

	_, err = s.Grants().Upsert(ctx, &model.AccessGrant{UserID: user.ID, DocumentID: 999})
	assert.ErrorIs(t, err, repository.ErrForeignKey)

	assert.ErrorIs(t, s.Users().Delete(ctx, admin.ID), repository.ErrForeignKey)

	_, err = s.Grants().Upsert(ctx, &model.AccessGrant{UserID: user.ID, DocumentID: doc.ID, Capabilities: model.ReadOnly})
	require.NoError(t, err)
	require.NoError(t, s.Documents().Delete(ctx, doc.ID))

	_, err = s.Grants().FindGrant(ctx, user.ID, doc.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound, "grants cascade with their document")
}

func TestStore_GrantUpsertIsIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, user, doc := seed(t, s)

	caps := model.Capabilities{CanRead: true, CanEdit: true}
	for i := 0; i < 3; i++ {
		_, err := s.Grants().Upsert(ctx, &model.AccessGrant{UserID: user.ID, DocumentID: doc.ID, Capabilities: caps})
		require.NoError(t, err)
	}
	grants, err := s.Grants().ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, caps, grants[0].Capabilities)
}

func TestStore_ListReadableBy(t *testing.T) {
	s := New()
	ctx := context.Background()
	admin, user, doc := seed(t, s)

	hidden, err := s.Documents().Create(ctx, &model.Document{Title: "H", StoredName: "documents/h", UploadedBy: admin.ID})
	require.NoError(t, err)
	_, err = s.Documents().Create(ctx, &model.Document{Title: "N", StoredName: "documents/n", UploadedBy: admin.ID})
	require.NoError(t, err)

	_, err = s.Grants().Upsert(ctx, &model.AccessGrant{UserID: user.ID, DocumentID: doc.ID, Capabilities: model.ReadOnly})
	require.NoError(t, err)
	_, err = s.Grants().Upsert(ctx, &model.AccessGrant{UserID: user.ID, DocumentID: hidden.ID, Capabilities: model.Capabilities{CanEdit: true}})
	require.NoError(t, err)

	res, err := s.Documents().ListReadableBy(ctx, user.ID, repository.PageQuery{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	require.Len(t, res.Items, 1)
	assert.Equal(t, doc.ID, res.Items[0].ID)

	all, err := s.Documents().List(ctx, repository.PageQuery{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, all.Total)
	assert.Len(t, all.Items, 2)
}

func TestStore_WithinTxRollsBack(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, _, doc := seed(t, s)

	cause := errors.New("blob delete failed")
	err := s.WithinTx(ctx, func(tx repository.Store) error {
		require.NoError(t, tx.Documents().Delete(ctx, doc.ID))
		return tx.WithinTx(ctx, func(repository.Store) error { return cause })
	})
	assert.ErrorIs(t, err, cause)

	_, err = s.Documents().FindByID(ctx, doc.ID)
	assert.NoError(t, err)
}

func TestStore_UpsertAdmin(t *testing.T) {
	s := New()
	ctx := context.Background()

	u, outcome, err := s.Users().UpsertAdmin(ctx, "root@example.com", "h1")
	require.NoError(t, err)
	assert.Equal(t, repository.AdminCreated, outcome)

	_, outcome, err = s.Users().UpsertAdmin(ctx, "root@example.com", "h2")
	require.NoError(t, err)
	assert.Equal(t, repository.AdminUnchanged, outcome)

	_, err = s.Users().UpdateRole(ctx, u.ID, model.RoleUser)
	require.NoError(t, err)
	promoted, outcome, err := s.Users().UpsertAdmin(ctx, "root@example.com", "h3")
	require.NoError(t, err)
	assert.Equal(t, repository.AdminPromoted, outcome)
	assert.Equal(t, "h1", promoted.PasswordHash)
}

func TestStore_CancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Documents().FindByID(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
