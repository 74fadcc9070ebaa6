package service

import (
	"context"
	"errors"
	"unicode/utf8"

	"go.uber.org/zap"

	"docportal/internal/access"
	"docportal/internal/apperr"
	"docportal/internal/credential"
	"docportal/internal/model"
	"docportal/internal/repository"
)

const minPasswordLen = 8

// UserService defines account administration. Every operation requires an
// admin caller.
type UserService interface {
	// Create registers a regular user. Admins are only made by bootstrap or ChangeRole.
	Create(ctx context.Context, caller access.Caller, email, password string) (*model.User, error)
	List(ctx context.Context, caller access.Caller) ([]model.User, error)
	// Delete refuses the default admin, the caller itself, uploaders and the last admin.
	Delete(ctx context.Context, caller access.Caller, userID int64) error
	// ChangeRole refuses to demote the default admin or the last admin.
	ChangeRole(ctx context.Context, caller access.Caller, userID int64, role model.Role) (*model.User, error)
}

type userService struct {
	options
	store        repository.Store
	creds        *credential.Store
	defaultAdmin string
}

// NewUserService constructs a UserService. defaultAdminEmail names the
// bootstrap account that can neither be deleted nor demoted.
func NewUserService(store repository.Store, creds *credential.Store, defaultAdminEmail string, opts ...Option) UserService {
	return &userService{
		options:      buildOptions(opts),
		store:        store,
		creds:        creds,
		defaultAdmin: model.NormalizeEmail(defaultAdminEmail),
	}
}

func (s *userService) Create(ctx context.Context, caller access.Caller, email, password string) (_ *model.User, err error) {
	ctx, span := tracer.Start(ctx, "UserService.Create")
	defer func() { finishSpan(span, err) }()

	if err := requireAdmin(caller); err != nil {
		return nil, err
	}

	email = model.NormalizeEmail(email)
	fields := map[string]string{}
	if err := validate.Var(email, "required,email,max=254"); err != nil {
		fields["email"] = "must be a valid email address"
	}
	if utf8.RuneCountInString(password) < minPasswordLen {
		fields["password"] = "must be at least 8 characters"
	}
	if len(fields) > 0 {
		return nil, apperr.Validation("validation failed", fields)
	}

	u := &model.User{Email: email, Role: model.RoleUser}
	if err := s.creds.SetPassword(u, password); err != nil {
		return nil, err
	}

	dbCtx, cancel := s.dbCtx(ctx)
	defer cancel()

	created, err := s.store.Users().Create(dbCtx, u)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Conflict("EMAIL_TAKEN", "email already registered")
		}
		return nil, apperr.Persistence(err, "failed to create user")
	}

	s.log.Info("user created", zap.Int64("user_id", created.ID), zap.Int64("created_by", caller.UserID))
	return created, nil
}

func (s *userService) List(ctx context.Context, caller access.Caller) (_ []model.User, err error) {
	ctx, span := tracer.Start(ctx, "UserService.List")
	defer func() { finishSpan(span, err) }()

	if err := requireAdmin(caller); err != nil {
		return nil, err
	}

	dbCtx, cancel := s.dbCtx(ctx)
	defer cancel()

	users, err := s.store.Users().List(dbCtx)
	if err != nil {
		return nil, apperr.Persistence(err, "failed to list users")
	}
	return users, nil
}

func (s *userService) Delete(ctx context.Context, caller access.Caller, userID int64) (err error) {
	ctx, span := tracer.Start(ctx, "UserService.Delete")
	defer func() { finishSpan(span, err) }()

	if err := requireAdmin(caller); err != nil {
		return err
	}
	if userID == caller.UserID {
		return apperr.Conflict("CANNOT_DELETE_SELF", "you cannot delete your own account")
	}

	dbCtx, cancel := s.dbCtx(ctx)
	defer cancel()

	err = s.store.WithinTx(dbCtx, func(tx repository.Store) error {
		target, err := tx.Users().FindByID(dbCtx, userID)
		if err != nil {
			if isNotFound(err) {
				return errUserNotFound()
			}
			return apperr.Persistence(err, "failed to load user")
		}
		if s.isDefaultAdmin(target) {
			return apperr.Conflict("DEFAULT_ADMIN_PROTECTED", "the default admin cannot be deleted")
		}
		if target.Role == model.RoleAdmin {
			if err := s.ensureOtherAdmin(dbCtx, tx); err != nil {
				return err
			}
		}

		if err := tx.Users().Delete(dbCtx, userID); err != nil {
			switch {
			case isNotFound(err):
				return errUserNotFound()
			case errors.Is(err, repository.ErrForeignKey):
				return apperr.Conflict("USER_HAS_DOCUMENTS", "user has uploaded documents and cannot be deleted")
			}
			return apperr.Persistence(err, "failed to delete user")
		}
		return nil
	})
	if err != nil {
		return persistErr(err, "failed to delete user")
	}

	s.log.Info("user deleted", zap.Int64("user_id", userID), zap.Int64("deleted_by", caller.UserID))
	return nil
}

func (s *userService) ChangeRole(ctx context.Context, caller access.Caller, userID int64, role model.Role) (_ *model.User, err error) {
	ctx, span := tracer.Start(ctx, "UserService.ChangeRole")
	defer func() { finishSpan(span, err) }()

	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, apperr.Field("role", "must be admin or user")
	}

	dbCtx, cancel := s.dbCtx(ctx)
	defer cancel()

	var updated *model.User
	err = s.store.WithinTx(dbCtx, func(tx repository.Store) error {
		target, err := tx.Users().FindByID(dbCtx, userID)
		if err != nil {
			if isNotFound(err) {
				return errUserNotFound()
			}
			return apperr.Persistence(err, "failed to load user")
		}
		if target.Role == role {
			updated = target
			return nil
		}
		if target.Role == model.RoleAdmin {
			if s.isDefaultAdmin(target) {
				return apperr.Conflict("DEFAULT_ADMIN_PROTECTED", "the default admin cannot be demoted")
			}
			if err := s.ensureOtherAdmin(dbCtx, tx); err != nil {
				return err
			}
		}

		updated, err = tx.Users().UpdateRole(dbCtx, userID, role)
		if err != nil {
			return apperr.Persistence(err, "failed to change role")
		}
		return nil
	})
	if err != nil {
		return nil, persistErr(err, "failed to change role")
	}

	s.log.Info("user role changed",
		zap.Int64("user_id", userID),
		zap.String("role", role.String()),
		zap.Int64("changed_by", caller.UserID),
	)
	return updated, nil
}

// ensureOtherAdmin locks the admin rows and fails when removing one admin
// would leave none.
func (s *userService) ensureOtherAdmin(ctx context.Context, tx repository.Store) error {
	ids, err := tx.Users().LockAdmins(ctx)
	if err != nil {
		return apperr.Persistence(err, "failed to count admins")
	}
	if len(ids) <= 1 {
		return apperr.Conflict("LAST_ADMIN", "at least one admin must remain")
	}
	return nil
}

func (s *userService) isDefaultAdmin(u *model.User) bool {
	return s.defaultAdmin != "" && u.Email == s.defaultAdmin
}
