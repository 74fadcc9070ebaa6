package service

import (
	"context"

	"go.uber.org/zap"

	"docportal/internal/access"
	"docportal/internal/apperr"
	"docportal/internal/credential"
	"docportal/internal/model"
	"docportal/internal/repository"
	"docportal/internal/session"
)

// LoginThrottle limits failed logins per account key.
type LoginThrottle interface {
	// Allow reports whether another attempt may be made for key.
	Allow(ctx context.Context, key string) (bool, error)
	RecordFailure(ctx context.Context, key string) error
	Reset(ctx context.Context, key string) error
}

// LoginResult is a successful sign-in.
type LoginResult struct {
	User    *model.User
	Session session.Token
}

// AuthService signs callers in and resolves who they are.
type AuthService interface {
	// Login verifies the credentials and issues a session. Unknown emails and
	// wrong passwords fail identically.
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	// Me returns the account behind caller.
	Me(ctx context.Context, caller access.Caller) (*model.User, error)
}

type authService struct {
	options
	store    repository.Store
	creds    *credential.Store
	issuer   *session.Issuer
	throttle LoginThrottle
}

// NewAuthService constructs an AuthService. throttle may be nil.
func NewAuthService(store repository.Store, creds *credential.Store, issuer *session.Issuer, throttle LoginThrottle, opts ...Option) AuthService {
	return &authService{
		options:  buildOptions(opts),
		store:    store,
		creds:    creds,
		issuer:   issuer,
		throttle: throttle,
	}
}

func errInvalidCredentials() *apperr.Error {
	return apperr.Unauthenticated("INVALID_CREDENTIALS", "invalid email or password")
}

func (s *authService) Login(ctx context.Context, email, password string) (_ *LoginResult, err error) {
	ctx, span := tracer.Start(ctx, "AuthService.Login")
	defer func() { finishSpan(span, err) }()

	email = model.NormalizeEmail(email)
	fields := map[string]string{}
	if email == "" {
		fields["email"] = "is required"
	}
	if password == "" {
		fields["password"] = "is required"
	}
	if len(fields) > 0 {
		return nil, apperr.Validation("email and password required", fields)
	}

	if !s.allow(ctx, email) {
		return nil, apperr.RateLimited("too many failed login attempts, try again later")
	}

	dbCtx, cancel := s.dbCtx(ctx)
	u, err := s.store.Users().FindByEmail(dbCtx, email)
	cancel()
	if err != nil {
		if !isNotFound(err) {
			return nil, apperr.Persistence(err, "failed to load account")
		}
		s.creds.VerifyDummy(password)
		s.recordFailure(ctx, email)
		return nil, errInvalidCredentials()
	}
	if !s.creds.Check(u, password) {
		s.recordFailure(ctx, email)
		return nil, errInvalidCredentials()
	}

	tok, err := s.issuer.Issue(u)
	if err != nil {
		return nil, apperr.Internal(err, "failed to issue session")
	}
	s.reset(ctx, email)

	s.log.Info("login succeeded", zap.Int64("user_id", u.ID), zap.String("role", u.Role.String()))
	return &LoginResult{User: u, Session: tok}, nil
}

func (s *authService) Me(ctx context.Context, caller access.Caller) (_ *model.User, err error) {
	ctx, span := tracer.Start(ctx, "AuthService.Me")
	defer func() { finishSpan(span, err) }()

	dbCtx, cancel := s.dbCtx(ctx)
	defer cancel()

	u, err := s.store.Users().FindByID(dbCtx, caller.UserID)
	if err != nil {
		if isNotFound(err) {
			return nil, apperr.Unauthenticated("SESSION_INVALID", "account no longer exists")
		}
		return nil, apperr.Persistence(err, "failed to load account")
	}
	return u, nil
}

// Throttle failures never block a login.
func (s *authService) allow(ctx context.Context, key string) bool {
	if s.throttle == nil {
		return true
	}
	ok, err := s.throttle.Allow(ctx, key)
	if err != nil {
		s.log.Warn("login throttle unavailable", zap.Error(err))
		return true
	}
	return ok
}

func (s *authService) recordFailure(ctx context.Context, key string) {
	s.log.Info("login failed")
	if s.throttle == nil {
		return
	}
	if err := s.throttle.RecordFailure(ctx, key); err != nil {
		s.log.Warn("login throttle unavailable", zap.Error(err))
	}
}

func (s *authService) reset(ctx context.Context, key string) {
	if s.throttle == nil {
		return
	}
	if err := s.throttle.Reset(ctx, key); err != nil {
		s.log.Warn("login throttle unavailable", zap.Error(err))
	}
}
