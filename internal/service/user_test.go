package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"docportal/internal/access"
	"docportal/internal/apperr"
	"docportal/internal/credential"
	"docportal/internal/model"
	"docportal/internal/repository/memory"
)

func newUserFixture(t *testing.T) (UserService, *memory.Store, access.Caller) {
	t.Helper()
	store := memory.New()
	root, err := store.Users().Create(context.Background(), &model.User{Email: "root@example.com", PasswordHash: "x", Role: model.RoleAdmin})
	require.NoError(t, err)
	svc := NewUserService(store, credential.NewStore(bcrypt.MinCost), " Root@Example.com ")
	return svc, store, access.Caller{UserID: root.ID, Role: model.RoleAdmin}
}

func TestUserService_Create(t *testing.T) {
	svc, _, root := newUserFixture(t)
	ctx := context.Background()

	u, err := svc.Create(ctx, root, "  New@Example.com", "long enough")
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", u.Email)
	assert.Equal(t, model.RoleUser, u.Role)
	assert.True(t, credential.IsHash(u.PasswordHash))

	_, err = svc.Create(ctx, root, "new@example.com", "long enough")
	e := apperr.FromError(err)
	assert.Equal(t, apperr.KindConflict, e.Kind)
	assert.Equal(t, "EMAIL_TAKEN", e.Code)

	_, err = svc.Create(ctx, root, "not-an-email", "short")
	e = apperr.FromError(err)
	assert.Equal(t, apperr.KindValidation, e.Kind)
	assert.Contains(t, e.Fields, "email")
	assert.Contains(t, e.Fields, "password")

	_, err = svc.Create(ctx, access.Caller{UserID: u.ID, Role: model.RoleUser}, "x@example.com", "long enough")
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
}

func TestUserService_DeleteGuards(t *testing.T) {
	svc, store, root := newUserFixture(t)
	ctx := context.Background()

	second, err := store.Users().Create(ctx, &model.User{Email: "second@example.com", PasswordHash: "x", Role: model.RoleAdmin})
	require.NoError(t, err)
	uploader, err := store.Users().Create(ctx, &model.User{Email: "up@example.com", PasswordHash: "x", Role: model.RoleUser})
	require.NoError(t, err)
	_, err = store.Documents().Create(ctx, &model.Document{Title: "T", StoredName: "documents/x", UploadedBy: uploader.ID})
	require.NoError(t, err)
	plain, err := store.Users().Create(ctx, &model.User{Email: "plain@example.com", PasswordHash: "x", Role: model.RoleUser})
	require.NoError(t, err)

	tests := []struct {
		name     string
		caller   access.Caller
		target   int64
		wantCode string
	}{
		{name: "self", caller: root, target: root.UserID, wantCode: "CANNOT_DELETE_SELF"},
		{name: "default admin", caller: access.Caller{UserID: second.ID, Role: model.RoleAdmin}, target: root.UserID, wantCode: "DEFAULT_ADMIN_PROTECTED"},
		{name: "uploader", caller: root, target: uploader.ID, wantCode: "USER_HAS_DOCUMENTS"},
		{name: "missing", caller: root, target: 999, wantCode: "USER_NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Delete(ctx, tt.caller, tt.target)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, apperr.FromError(err).Code)
		})
	}

	require.NoError(t, svc.Delete(ctx, root, plain.ID))
	require.NoError(t, svc.Delete(ctx, root, second.ID))

	users, err := svc.List(ctx, root)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestUserService_ChangeRole(t *testing.T) {
	svc, store, root := newUserFixture(t)
	ctx := context.Background()

	u, err := store.Users().Create(ctx, &model.User{Email: "u@example.com", PasswordHash: "x", Role: model.RoleUser})
	require.NoError(t, err)

	promoted, err := svc.ChangeRole(ctx, root, u.ID, model.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, promoted.Role)

	_, err = svc.ChangeRole(ctx, root, root.UserID, model.RoleUser)
	assert.Equal(t, "DEFAULT_ADMIN_PROTECTED", apperr.FromError(err).Code)

	demoted, err := svc.ChangeRole(ctx, root, u.ID, model.RoleUser)
	require.NoError(t, err)
	assert.Equal(t, model.RoleUser, demoted.Role)

	_, err = svc.ChangeRole(ctx, root, u.ID, model.Role("owner"))
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestUserService_LastAdminCannotBeDemoted(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	only, err := store.Users().Create(ctx, &model.User{Email: "only@example.com", PasswordHash: "x", Role: model.RoleAdmin})
	require.NoError(t, err)

	svc := NewUserService(store, credential.NewStore(bcrypt.MinCost), "")
	caller := access.Caller{UserID: only.ID, Role: model.RoleAdmin}

	_, err = svc.ChangeRole(ctx, caller, only.ID, model.RoleUser)
	assert.Equal(t, "LAST_ADMIN", apperr.FromError(err).Code)

	stored, err := store.Users().FindByID(ctx, only.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, stored.Role)
}
