// Package credential hashes and verifies account passwords. Plaintext
// passwords are accepted as arguments only and never stored or logged.
package credential

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"docportal/internal/apperr"
	"docportal/internal/model"
)

// maxPasswordBytes is the bcrypt input limit.
const maxPasswordBytes = 72

// Store hashes and checks passwords with bcrypt.
type Store struct {
	cost int
	// dummy is compared against when the account does not exist, so a
	// missing email costs as much as a wrong password.
	dummy []byte
}

// NewStore returns a Store using the given bcrypt cost; out of range values
// fall back to bcrypt.DefaultCost.
func NewStore(cost int) *Store {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("docportal-unknown-account"), cost)
	return &Store{cost: cost, dummy: dummy}
}

// Hash returns a salted bcrypt hash of plaintext.
func (s *Store) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", apperr.Field("password", "required")
	}
	if len(plaintext) > maxPasswordBytes {
		return "", apperr.Field("password", "must be at most 72 bytes")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(plaintext), s.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", apperr.Field("password", "must be at most 72 bytes")
		}
		return "", apperr.Internal(err, "failed to hash password")
	}
	return string(h), nil
}

// SetPassword replaces u's credential with a hash of plaintext.
func (s *Store) SetPassword(u *model.User, plaintext string) error {
	h, err := s.Hash(plaintext)
	if err != nil {
		return err
	}
	u.PasswordHash = h
	return nil
}

// Verify reports whether plaintext matches hash. Malformed hashes, errors and
// panics all count as a mismatch.
func (s *Store) Verify(hash, plaintext string) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	if hash == "" || plaintext == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// Check is Verify against the stored credential of u.
func (s *Store) Check(u *model.User, plaintext string) bool {
	if u == nil {
		return false
	}
	return s.Verify(u.PasswordHash, plaintext)
}

// VerifyDummy performs a comparison whose result is discarded.
func (s *Store) VerifyDummy(plaintext string) {
	_ = bcrypt.CompareHashAndPassword(s.dummy, []byte(plaintext))
}

// IsHash reports whether h looks like a bcrypt hash this store can verify.
func IsHash(h string) bool {
	_, err := bcrypt.Cost([]byte(h))
	return err == nil
}
