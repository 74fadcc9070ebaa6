package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"docportal/internal/access"
	"docportal/internal/apperr"
	"docportal/internal/model"
	"docportal/internal/repository"
)

func (s *documentService) Grant(ctx context.Context, caller access.Caller, documentID, userID int64, caps model.Capabilities) (_ *model.AccessGrant, err error) {
	ctx, span := startSpan(ctx, "DocumentService.Grant", caller, documentID)
	defer func() { finishSpan(span, err) }()

	if _, err := s.authorize(ctx, caller, documentID, access.ActionGrant); err != nil {
		return nil, err
	}
	if !caps.CanRead {
		problem := "is required; use revoke to remove access"
		if caps.CanEdit || caps.CanDelete {
			problem = "is required when can_edit or can_delete is set"
		}
		return nil, apperr.Field("can_read", problem)
	}

	if _, err := s.findDocument(ctx, s.store, documentID); err != nil {
		return nil, err
	}
	target, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if target.Role != model.RoleUser {
		return nil, apperr.Field("user_id", "grants can only target regular users")
	}

	dbCtx, cancel := s.dbCtx(ctx)
	defer cancel()

	g, err := s.store.Grants().Upsert(dbCtx, &model.AccessGrant{
		UserID:       userID,
		DocumentID:   documentID,
		Capabilities: caps,
	})
	if err != nil {
		if errors.Is(err, repository.ErrForeignKey) {
			return nil, apperr.NotFound("GRANT_TARGET_NOT_FOUND", "document or user no longer exists")
		}
		return nil, apperr.Persistence(err, "failed to save grant")
	}

	s.log.Info("access granted",
		zap.Int64("document_id", documentID),
		zap.Int64("user_id", userID),
		zap.Bool("can_read", caps.CanRead),
		zap.Bool("can_edit", caps.CanEdit),
		zap.Bool("can_delete", caps.CanDelete),
		zap.Int64("granted_by", caller.UserID),
	)
	return g, nil
}

func (s *documentService) Revoke(ctx context.Context, caller access.Caller, documentID, userID int64) (err error) {
	ctx, span := startSpan(ctx, "DocumentService.Revoke", caller, documentID)
	defer func() { finishSpan(span, err) }()

	if _, err := s.authorize(ctx, caller, documentID, access.ActionRevoke); err != nil {
		return err
	}

	dbCtx, cancel := s.dbCtx(ctx)
	defer cancel()

	if err := s.store.Grants().Delete(dbCtx, userID, documentID); err != nil {
		if isNotFound(err) {
			return apperr.NotFound("GRANT_NOT_FOUND", "access not found")
		}
		return apperr.Persistence(err, "failed to revoke grant")
	}

	s.log.Info("access revoked",
		zap.Int64("document_id", documentID),
		zap.Int64("user_id", userID),
		zap.Int64("revoked_by", caller.UserID),
	)
	return nil
}

func (s *documentService) ListGrants(ctx context.Context, caller access.Caller, documentID int64) (_ []model.AccessGrant, err error) {
	ctx, span := startSpan(ctx, "DocumentService.ListGrants", caller, documentID)
	defer func() { finishSpan(span, err) }()

	if _, err := s.authorize(ctx, caller, documentID, access.ActionGrant); err != nil {
		return nil, err
	}
	if _, err := s.findDocument(ctx, s.store, documentID); err != nil {
		return nil, err
	}

	dbCtx, cancel := s.dbCtx(ctx)
	defer cancel()

	grants, err := s.store.Grants().ListByDocument(dbCtx, documentID)
	if err != nil {
		return nil, apperr.Persistence(err, "failed to list grants")
	}
	return grants, nil
}

func (s *documentService) findUser(ctx context.Context, id int64) (*model.User, error) {
	ctx, cancel := s.dbCtx(ctx)
	defer cancel()

	u, err := s.store.Users().FindByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, errUserNotFound()
		}
		return nil, apperr.Persistence(err, "failed to load user")
	}
	return u, nil
}

func errUserNotFound() *apperr.Error {
	return apperr.NotFound("USER_NOT_FOUND", "user not found")
}
