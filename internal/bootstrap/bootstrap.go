// Package bootstrap prepares the schema and the default administrator when
// the server starts.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"docportal/internal/apperr"
	"docportal/internal/config"
	"docportal/internal/credential"
	"docportal/internal/model"
	"docportal/internal/repository"
)

// ErrNotConfigured is returned by EnsureAdmin when no default admin email or
// password is configured.
var ErrNotConfigured = errors.New("default admin not configured")

var validate = validator.New()

// Migrator brings the schema up to date.
type Migrator func(ctx context.Context) error

// Provisioner ensures the configured administrator exists.
type Provisioner struct {
	store repository.Store
	creds *credential.Store
	cfg   config.AdminConfig
	log   *zap.Logger

	initialInterval time.Duration
	maxInterval     time.Duration
	timeout         time.Duration
}

// Option customises a Provisioner.
type Option func(*Provisioner)

func WithLogger(l *zap.Logger) Option {
	return func(p *Provisioner) {
		if l != nil {
			p.log = l
		}
	}
}

// WithRetry sets the exponential backoff bounds used by Run.
func WithRetry(initial, ceiling time.Duration) Option {
	return func(p *Provisioner) {
		if initial > 0 {
			p.initialInterval = initial
		}
		if ceiling > 0 {
			p.maxInterval = ceiling
		}
	}
}

// WithAttemptTimeout bounds a single migrate+provision attempt.
func WithAttemptTimeout(d time.Duration) Option {
	return func(p *Provisioner) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func NewProvisioner(store repository.Store, creds *credential.Store, cfg config.AdminConfig, opts ...Option) *Provisioner {
	p := &Provisioner{
		store:           store,
		creds:           creds,
		cfg:             cfg,
		log:             zap.NewNop(),
		initialInterval: time.Second,
		maxInterval:     30 * time.Second,
		timeout:         30 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// EnsureAdmin creates the default admin, or promotes an existing account with
// the same email. An existing password is never overwritten, so running it
// again on every start is safe.
func (p *Provisioner) EnsureAdmin(ctx context.Context) (*model.User, repository.AdminUpsert, error) {
	email := model.NormalizeEmail(p.cfg.Email)
	if email == "" || (p.cfg.Password == "" && p.cfg.PasswordHash == "") {
		return nil, repository.AdminUnchanged, ErrNotConfigured
	}
	if err := validate.Var(email, "email,max=254"); err != nil {
		return nil, repository.AdminUnchanged, apperr.Field("email", "must be a valid email address")
	}

	hash, err := p.passwordHash()
	if err != nil {
		return nil, repository.AdminUnchanged, err
	}

	u, outcome, err := p.store.Users().UpsertAdmin(ctx, email, hash)
	if err != nil {
		return nil, repository.AdminUnchanged, fmt.Errorf("upsert admin: %w", err)
	}
	return u, outcome, nil
}

func (p *Provisioner) passwordHash() (string, error) {
	if p.cfg.PasswordHash != "" {
		if !credential.IsHash(p.cfg.PasswordHash) {
			return "", apperr.Field("password_hash", "must be a bcrypt hash")
		}
		return p.cfg.PasswordHash, nil
	}
	return p.creds.Hash(p.cfg.Password)
}

// Run migrates the schema and then ensures the admin, retrying with
// exponential backoff until it succeeds, the error is permanent or ctx ends.
// It is meant to run in the background while the HTTP server already serves.
func (p *Provisioner) Run(ctx context.Context, migrate Migrator) error {
	start := time.Now()
	log := p.log.With(zap.String("component", "bootstrap"))
	log.Info("bootstrap started", zap.String("event", "bootstrap_start"), zap.String("status", "starting"))

	attempt := func() (*model.User, error) {
		actx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		if migrate != nil {
			if err := migrate(actx); err != nil {
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		u, outcome, err := p.EnsureAdmin(actx)
		switch {
		case errors.Is(err, ErrNotConfigured):
			log.Info("default admin not configured, skipping",
				zap.String("event", "admin_provision"),
				zap.String("status", "skipped"),
			)
			return nil, nil
		case apperr.IsKind(err, apperr.KindValidation):
			return nil, backoff.Permanent(err)
		case err != nil:
			return nil, err
		}
		log.Info("default admin ensured",
			zap.String("event", "admin_provision"),
			zap.String("status", outcome.String()),
			zap.Int64("user_id", u.ID),
		)
		return u, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.initialInterval
	b.MaxInterval = p.maxInterval

	_, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn("bootstrap attempt failed, retrying",
				zap.String("event", "bootstrap_retry"),
				zap.String("status", "error"),
				zap.Duration("retry_in", next),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		log.Error("bootstrap failed",
			zap.String("event", "bootstrap_failed"),
			zap.String("status", "error"),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return err
	}
	log.Info("bootstrap finished",
		zap.String("event", "bootstrap_success"),
		zap.String("status", "success"),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}
