package credential

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"docportal/internal/apperr"
	"docportal/internal/model"
)

func TestStore_SetPasswordAndCheck(t *testing.T) {
	s := NewStore(bcrypt.MinCost)
	u := &model.User{Email: "a@example.com"}

	require.NoError(t, s.SetPassword(u, "correct horse"))
	assert.NotEqual(t, "correct horse", u.PasswordHash)
	assert.True(t, IsHash(u.PasswordHash))

	assert.True(t, s.Check(u, "correct horse"))
	assert.False(t, s.Check(u, "battery staple"))
	assert.False(t, s.Check(nil, "correct horse"))
}

func TestStore_HashIsSalted(t *testing.T) {
	s := NewStore(bcrypt.MinCost)
	a, err := s.Hash("same")
	require.NoError(t, err)
	b, err := s.Hash("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestStore_HashValidation(t *testing.T) {
	s := NewStore(bcrypt.MinCost)

	_, err := s.Hash("")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = s.Hash(strings.Repeat("x", 73))
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestStore_VerifyFailsClosed(t *testing.T) {
	s := NewStore(bcrypt.MinCost)

	assert.False(t, s.Verify("", "pw"))
	assert.False(t, s.Verify("not-a-bcrypt-hash", "pw"))
	assert.False(t, s.Verify("$2a$04$short", "pw"))

	h, err := s.Hash("pw")
	require.NoError(t, err)
	assert.False(t, s.Verify(h, ""))
}

func TestNewStore_CostBounds(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewStore(0).cost)
	assert.Equal(t, bcrypt.DefaultCost, NewStore(99).cost)
	assert.Equal(t, bcrypt.MinCost, NewStore(bcrypt.MinCost).cost)
}

func TestVerifyDummy(t *testing.T) {
	s := NewStore(bcrypt.MinCost)
	assert.NotPanics(t, func() { s.VerifyDummy("anything") })
}
