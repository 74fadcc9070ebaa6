package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"docportal/internal/access"
	"docportal/internal/apperr"
	"docportal/internal/credential"
	"docportal/internal/model"
	"docportal/internal/repository/memory"
	"docportal/internal/service"
	"docportal/internal/service/mocks"
	"docportal/internal/session"
)

type authFixture struct {
	store    *memory.Store
	issuer   *session.Issuer
	throttle *mocks.MockLoginThrottle
	svc      service.AuthService
	user     *model.User
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	creds := credential.NewStore(bcrypt.MinCost)
	issuer, err := session.NewIssuer(session.Config{
		Secret: []byte("0123456789abcdef0123456789abcdef"),
		Issuer: "docportal",
		TTL:    15 * time.Minute,
	})
	require.NoError(t, err)

	store := memory.New()
	u := &model.User{Email: "alice@example.com", Role: model.RoleUser}
	require.NoError(t, creds.SetPassword(u, "correct horse"))
	u, err = store.Users().Create(context.Background(), u)
	require.NoError(t, err)

	throttle := new(mocks.MockLoginThrottle)
	return &authFixture{
		store:    store,
		issuer:   issuer,
		throttle: throttle,
		svc:      service.NewAuthService(store, creds, issuer, throttle),
		user:     u,
	}
}

func TestAuthService_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("success issues a resolvable session", func(t *testing.T) {
		f := newAuthFixture(t)
		f.throttle.On("Allow", mock.Anything, "alice@example.com").Return(true, nil)
		f.throttle.On("Reset", mock.Anything, "alice@example.com").Return(nil)

		res, err := f.svc.Login(ctx, "  Alice@Example.com ", "correct horse")
		require.NoError(t, err)
		assert.Equal(t, f.user.ID, res.User.ID)

		id, err := f.issuer.Resolve(res.Session.Value)
		require.NoError(t, err)
		assert.Equal(t, f.user.ID, id.UserID)
		assert.Equal(t, model.RoleUser, id.Role)
		assert.Equal(t, res.Session.CSRF, id.CSRF)
		f.throttle.AssertExpectations(t)
	})

	t.Run("unknown email and wrong password fail alike", func(t *testing.T) {
		f := newAuthFixture(t)
		f.throttle.On("Allow", mock.Anything, mock.Anything).Return(true, nil)
		f.throttle.On("RecordFailure", mock.Anything, mock.Anything).Return(nil)

		_, errWrong := f.svc.Login(ctx, "alice@example.com", "wrong")
		_, errUnknown := f.svc.Login(ctx, "nobody@example.com", "wrong")

		for _, err := range []error{errWrong, errUnknown} {
			e := apperr.FromError(err)
			assert.Equal(t, apperr.KindUnauthenticated, e.Kind)
			assert.Equal(t, "INVALID_CREDENTIALS", e.Code)
		}
		assert.Equal(t, apperr.FromError(errWrong).Message, apperr.FromError(errUnknown).Message)
		f.throttle.AssertNumberOfCalls(t, "RecordFailure", 2)
	})

	t.Run("throttled", func(t *testing.T) {
		f := newAuthFixture(t)
		f.throttle.On("Allow", mock.Anything, "alice@example.com").Return(false, nil)

		_, err := f.svc.Login(ctx, "alice@example.com", "correct horse")
		assert.True(t, apperr.IsKind(err, apperr.KindRateLimited))
	})

	t.Run("throttle outage fails open", func(t *testing.T) {
		f := newAuthFixture(t)
		f.throttle.On("Allow", mock.Anything, mock.Anything).Return(false, errors.New("redis down"))
		f.throttle.On("Reset", mock.Anything, mock.Anything).Return(errors.New("redis down"))

		_, err := f.svc.Login(ctx, "alice@example.com", "correct horse")
		assert.NoError(t, err)
	})

	t.Run("missing fields", func(t *testing.T) {
		f := newAuthFixture(t)
		_, err := f.svc.Login(ctx, " ", "")
		e := apperr.FromError(err)
		assert.Equal(t, apperr.KindValidation, e.Kind)
		assert.Contains(t, e.Fields, "email")
		assert.Contains(t, e.Fields, "password")
	})

	t.Run("nil throttle", func(t *testing.T) {
		f := newAuthFixture(t)
		svc := service.NewAuthService(f.store, credential.NewStore(bcrypt.MinCost), f.issuer, nil)
		_, err := svc.Login(ctx, "alice@example.com", "correct horse")
		assert.NoError(t, err)
	})
}

func TestAuthService_Me(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	u, err := f.svc.Me(ctx, access.Caller{UserID: f.user.ID, Role: model.RoleUser})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", u.Email)

	_, err = f.svc.Me(ctx, access.Caller{UserID: 999, Role: model.RoleUser})
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthenticated))
}
