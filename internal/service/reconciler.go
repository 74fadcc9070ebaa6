package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"docportal/internal/repository"
	"docportal/internal/storage"
)

const reconcileBatch = 500

// SweepResult summarises one reconciliation pass.
type SweepResult struct {
	Scanned  int
	Orphaned int
	Deleted  int
}

// Reconciler removes document content that no metadata row references,
// typically left behind when an upload's compensation failed.
type Reconciler struct {
	options
	store repository.Store
	blobs storage.Storage
	grace time.Duration
}

// NewReconciler creates a Reconciler. Blobs younger than grace are never
// touched, so uploads still in flight survive.
func NewReconciler(store repository.Store, blobs storage.Storage, grace time.Duration, opts ...Option) *Reconciler {
	return &Reconciler{
		options: buildOptions(opts),
		store:   store,
		blobs:   blobs,
		grace:   grace,
	}
}

// Sweep runs one pass. Failing deletes are logged and the sweep moves on;
// once the pass completes they are returned together, joined with errors.Join.
func (r *Reconciler) Sweep(ctx context.Context) (res SweepResult, err error) {
	ctx, span := tracer.Start(ctx, "Reconciler.Sweep")
	defer func() { finishSpan(span, err) }()

	blobCtx, cancel := r.blobCtx(ctx)
	objects, err := r.blobs.List(blobCtx, StoredNamePrefix)
	cancel()
	if err != nil {
		return res, fmt.Errorf("list blobs: %w", err)
	}
	res.Scanned = len(objects)

	cutoff := r.now().Add(-r.grace)
	candidates := make([]string, 0)
	for _, obj := range objects {
		if obj.LastModified.Before(cutoff) {
			candidates = append(candidates, obj.Key)
		}
	}

	var errs []error
	for start := 0; start < len(candidates); start += reconcileBatch {
		end := min(start+reconcileBatch, len(candidates))
		batch := candidates[start:end]

		dbCtx, cancel := r.dbCtx(ctx)
		existing, err := r.store.Documents().ExistingStoredNames(dbCtx, batch)
		cancel()
		if err != nil {
			return res, fmt.Errorf("check stored names: %w", err)
		}

		for _, key := range batch {
			if existing[key] {
				continue
			}
			res.Orphaned++

			blobCtx, cancel := r.blobCtx(ctx)
			err := r.blobs.Delete(blobCtx, key)
			cancel()
			if err != nil {
				r.log.Error("orphan blob delete failed", zap.String("stored_name", key), zap.Error(err))
				errs = append(errs, err)
				continue
			}
			res.Deleted++
			r.log.Info("orphan blob deleted", zap.String("stored_name", key))
		}
	}

	r.log.Info("reconcile sweep finished",
		zap.String("component", "reconciler"),
		zap.Int("scanned", res.Scanned),
		zap.Int("orphaned", res.Orphaned),
		zap.Int("deleted", res.Deleted),
	)
	if len(errs) > 0 {
		return res, errors.Join(errs...)
	}
	return res, nil
}

// Run sweeps every interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				r.log.Warn("reconcile sweep failed", zap.Error(err))
			}
		}
	}
}
