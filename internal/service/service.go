// Package service holds the use cases of the portal. Every document use case
// is authorized through access.Engine before it reaches persistence or the
// blob store.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"docportal/internal/access"
	"docportal/internal/apperr"
	"docportal/internal/repository"
)

const (
	defaultDBTimeout       = 5 * time.Second
	defaultBlobTimeout     = time.Minute
	defaultDownloadTimeout = 30 * time.Minute

	defaultPageLimit = 10
	maxPageLimit     = 100
)

var (
	tracer   = otel.Tracer("docportal/internal/service")
	validate = validator.New()
)

// Option tunes a service constructed by this package.
type Option func(*options)

type options struct {
	dbTimeout       time.Duration
	blobTimeout     time.Duration
	downloadTimeout time.Duration
	now             func() time.Time
	log             *zap.Logger
}

func defaultOptions() options {
	return options{
		dbTimeout:       defaultDBTimeout,
		blobTimeout:     defaultBlobTimeout,
		downloadTimeout: defaultDownloadTimeout,
		now:             func() time.Time { return time.Now().UTC() },
		log:             zap.NewNop(),
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithTimeouts bounds each persistence call and each blob call.
// Non-positive values keep the defaults.
func WithTimeouts(db, blob time.Duration) Option {
	return func(o *options) {
		if db > 0 {
			o.dbTimeout = db
		}
		if blob > 0 {
			o.blobTimeout = blob
		}
	}
}

// WithDownloadTimeout bounds a content stream from open to Close. It is
// separate from the blob timeout. Non-positive values keep the default.
func WithDownloadTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.downloadTimeout = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

func (o options) dbCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.dbTimeout)
}

func (o options) blobCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.blobTimeout)
}

func requireAdmin(c access.Caller) error {
	if c.UserID <= 0 || !c.IsAdmin() {
		return apperr.Forbidden("FORBIDDEN", "admin role required")
	}
	return nil
}

// persistErr keeps typed errors as they are and wraps everything else as a
// persistence failure.
func persistErr(err error, message string) error {
	var typed *apperr.Error
	if errors.As(err, &typed) {
		return typed
	}
	return apperr.Persistence(err, message)
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.KindOf(err).String())
	}
	span.End()
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
