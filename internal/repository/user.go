package repository

import (
	"context"

	"docportal/internal/model"
)

// AdminUpsert is the outcome of UserRepository.UpsertAdmin.
type AdminUpsert int

const (
	AdminUnchanged AdminUpsert = iota
	AdminCreated
	AdminPromoted
)

func (a AdminUpsert) String() string {
	switch a {
	case AdminCreated:
		return "created"
	case AdminPromoted:
		return "promoted"
	default:
		return "unchanged"
	}
}

// UserRepository defines data access for accounts. Emails are expected in
// normalized form.
type UserRepository interface {
	// Create returns ErrDuplicate when the email is taken.
	Create(ctx context.Context, u *model.User) (*model.User, error)
	FindByID(ctx context.Context, id int64) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	List(ctx context.Context) ([]model.User, error)

	// Delete returns ErrNotFound when no row matched and ErrForeignKey when
	// documents still reference the user as uploader.
	Delete(ctx context.Context, id int64) error

	UpdateRole(ctx context.Context, id int64, role model.Role) (*model.User, error)

	// UpsertAdmin inserts an admin with the given hash, or promotes an
	// existing account with that email. An existing password hash is never
	// replaced.
	UpsertAdmin(ctx context.Context, email, passwordHash string) (*model.User, AdminUpsert, error)

	// LockAdmins returns the ids of all admins, locking their rows until the
	// surrounding transaction ends.
	LockAdmins(ctx context.Context) ([]int64, error)
}
