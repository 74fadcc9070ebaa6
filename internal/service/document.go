package service

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/zeebo/blake3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"docportal/internal/access"
	"docportal/internal/apperr"
	"docportal/internal/model"
	"docportal/internal/repository"
	"docportal/internal/storage"
)

const (
	// StoredNamePrefix is the blob key namespace of document content.
	StoredNamePrefix = "documents/"

	maxTitleLen        = 200
	genericContentType = "application/octet-stream"
	sniffLen           = 3072
)

// CreateDocumentInput is an upload as received from the transport.
type CreateDocumentInput struct {
	Title        string
	Description  *string
	OriginalName string
	ContentType  string
	Size         int64
	Body         io.Reader
}

// DocumentListResult is the service-level DTO for paginated documents.
type DocumentListResult struct {
	Items  []model.DocumentAccess `json:"data"`
	Total  int                    `json:"total"`
	Limit  int                    `json:"limit"`
	Offset int                    `json:"offset"`
}

// Download is an authorized content stream. The caller must Close Body.
type Download struct {
	Body     io.ReadCloser
	Document model.Document
}

// DocumentService defines the document and access grant use cases.
type DocumentService interface {
	// Create stores the content first, then the metadata row. A failed row
	// insert removes the stored content again.
	Create(ctx context.Context, caller access.Caller, in CreateDocumentInput) (*model.Document, error)

	// Get returns the document together with the caller's capabilities on it.
	Get(ctx context.Context, caller access.Caller, id int64) (*model.DocumentAccess, error)

	// List returns every document for admins and the readable ones for users.
	List(ctx context.Context, caller access.Caller, limit, offset int) (*DocumentListResult, error)

	// Update changes the supplied metadata fields.
	Update(ctx context.Context, caller access.Caller, id int64, patch model.DocumentPatch) (*model.Document, error)

	// Delete removes the row, its grants and the content. On failure nothing is removed.
	Delete(ctx context.Context, caller access.Caller, id int64) error

	// Download opens the content for streaming.
	Download(ctx context.Context, caller access.Caller, id int64) (*Download, error)

	// Grant creates or replaces the capabilities of userID on the document.
	Grant(ctx context.Context, caller access.Caller, documentID, userID int64, caps model.Capabilities) (*model.AccessGrant, error)

	// Revoke removes the grant of userID on the document.
	Revoke(ctx context.Context, caller access.Caller, documentID, userID int64) error

	// ListGrants returns every grant on the document.
	ListGrants(ctx context.Context, caller access.Caller, documentID int64) ([]model.AccessGrant, error)
}

type documentService struct {
	options
	store  repository.Store
	blobs  storage.Storage
	engine *access.Engine
}

// NewDocumentService constructs a new DocumentService.
func NewDocumentService(store repository.Store, blobs storage.Storage, engine *access.Engine, opts ...Option) DocumentService {
	return &documentService{
		options: buildOptions(opts),
		store:   store,
		blobs:   blobs,
		engine:  engine,
	}
}

func (s *documentService) authorize(ctx context.Context, caller access.Caller, documentID int64, action access.Action) (access.Decision, error) {
	ctx, cancel := s.dbCtx(ctx)
	defer cancel()

	d, err := s.engine.Authorize(ctx, caller, documentID, action)
	if err != nil {
		return d, apperr.Persistence(err, "failed to check access")
	}
	if err := d.Err(); err != nil {
		trace.SpanFromContext(ctx).SetAttributes(attribute.String("access.deny_reason", string(d.Reason)))
		return d, err
	}
	return d, nil
}

func startSpan(ctx context.Context, name string, caller access.Caller, documentID int64) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.Int64("caller.id", caller.UserID),
		attribute.String("caller.role", caller.Role.String()),
		attribute.Int64("document.id", documentID),
	))
}

func (s *documentService) Create(ctx context.Context, caller access.Caller, in CreateDocumentInput) (_ *model.Document, err error) {
	ctx, span := startSpan(ctx, "DocumentService.Create", caller, 0)
	defer func() { finishSpan(span, err) }()

	if _, err := s.authorize(ctx, caller, 0, access.ActionCreate); err != nil {
		return nil, err
	}

	fields := map[string]string{}
	title := strings.TrimSpace(in.Title)
	if problem := checkTitle(title); problem != "" {
		fields["title"] = problem
	}
	if in.Body == nil || in.Size <= 0 {
		fields["file"] = "a non-empty file is required"
	}
	if len(fields) > 0 {
		return nil, apperr.Validation("validation failed", fields)
	}

	originalName := sanitizeFilename(in.OriginalName)
	contentType, body, err := sniffContentType(in.ContentType, in.Body)
	if err != nil {
		return nil, apperr.Validation("validation failed", map[string]string{"file": "could not be read"})
	}

	// The key never derives from user input.
	key := StoredNamePrefix + uuid.NewString()
	hasher := blake3.New()

	blobCtx, cancel := s.blobCtx(ctx)
	info, err := s.blobs.Put(blobCtx, key, io.TeeReader(body, hasher), storage.PutObjectOptions{
		Size:        in.Size,
		ContentType: contentType,
		Metadata:    map[string]string{"original-filename": originalName},
	})
	cancel()
	if err != nil {
		s.log.Error("document content upload failed", zap.String("stored_name", key), zap.Error(err))
		return nil, apperr.Blob(err, "failed to store document content")
	}

	size := info.Size
	if size <= 0 {
		size = in.Size
	}
	doc := &model.Document{
		Title:        title,
		Description:  normalizeDescription(in.Description),
		StoredName:   key,
		OriginalName: originalName,
		ContentType:  contentType,
		Size:         size,
		Checksum:     hex.EncodeToString(hasher.Sum(nil)),
		UploadedBy:   caller.UserID,
		CreatedAt:    s.now(),
	}

	dbCtx, cancel := s.dbCtx(ctx)
	stored, err := s.store.Documents().Create(dbCtx, doc)
	cancel()
	if err != nil {
		s.compensate(ctx, key, err)
		return nil, apperr.Persistence(err, "failed to save document")
	}

	s.log.Info("document created",
		zap.Int64("document_id", stored.ID),
		zap.Int64("uploaded_by", caller.UserID),
		zap.Int64("size", stored.Size),
	)
	return stored, nil
}

// compensate removes content whose metadata row could not be written. If
// that fails too the blob is left for the reconciliation sweep.
func (s *documentService) compensate(ctx context.Context, key string, cause error) {
	ctx, cancel := s.blobCtx(context.WithoutCancel(ctx))
	defer cancel()

	if err := s.blobs.Delete(ctx, key); err != nil {
		s.log.Error("orphaned document content left for reconciliation",
			zap.String("stored_name", key),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		return
	}
	s.log.Warn("document insert failed, content removed",
		zap.String("stored_name", key),
		zap.Error(cause),
	)
}

func (s *documentService) Get(ctx context.Context, caller access.Caller, id int64) (_ *model.DocumentAccess, err error) {
	ctx, span := startSpan(ctx, "DocumentService.Get", caller, id)
	defer func() { finishSpan(span, err) }()

	d, err := s.authorize(ctx, caller, id, access.ActionRead)
	if err != nil {
		return nil, err
	}
	doc, err := s.findDocument(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	return &model.DocumentAccess{Document: *doc, Capabilities: d.Capabilities}, nil
}

func (s *documentService) findDocument(ctx context.Context, store repository.Store, id int64) (*model.Document, error) {
	ctx, cancel := s.dbCtx(ctx)
	defer cancel()

	doc, err := store.Documents().FindByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, apperr.DocumentNotFound()
		}
		return nil, apperr.Persistence(err, "failed to load document")
	}
	return doc, nil
}

func (s *documentService) List(ctx context.Context, caller access.Caller, limit, offset int) (_ *DocumentListResult, err error) {
	ctx, span := startSpan(ctx, "DocumentService.List", caller, 0)
	defer func() { finishSpan(span, err) }()

	d, err := s.authorize(ctx, caller, 0, access.ActionList)
	if err != nil {
		return nil, err
	}
	limit, offset = clampPage(limit, offset)
	pq := repository.PageQuery{Limit: limit, Offset: offset}

	dbCtx, cancel := s.dbCtx(ctx)
	defer cancel()

	out := &DocumentListResult{Limit: limit, Offset: offset}
	switch d.Scope {
	case access.ScopeAll:
		res, err := s.store.Documents().List(dbCtx, pq)
		if err != nil {
			return nil, apperr.Persistence(err, "failed to list documents")
		}
		out.Total = res.Total
		out.Items = make([]model.DocumentAccess, 0, len(res.Items))
		for _, doc := range res.Items {
			out.Items = append(out.Items, model.DocumentAccess{Document: doc, Capabilities: access.FullAccess})
		}
	case access.ScopeGranted:
		res, err := s.store.Documents().ListReadableBy(dbCtx, caller.UserID, pq)
		if err != nil {
			return nil, apperr.Persistence(err, "failed to list documents")
		}
		out.Total = res.Total
		out.Items = res.Items
	default:
		return nil, apperr.Forbidden("FORBIDDEN", "you do not have permission to perform this action")
	}
	return out, nil
}

func (s *documentService) Update(ctx context.Context, caller access.Caller, id int64, patch model.DocumentPatch) (_ *model.Document, err error) {
	ctx, span := startSpan(ctx, "DocumentService.Update", caller, id)
	defer func() { finishSpan(span, err) }()

	if _, err := s.authorize(ctx, caller, id, access.ActionEdit); err != nil {
		return nil, err
	}

	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if problem := checkTitle(title); problem != "" {
			return nil, apperr.Field("title", problem)
		}
		patch.Title = &title
	}
	if patch.Description != nil {
		desc := strings.TrimSpace(*patch.Description)
		patch.Description = &desc
	}

	dbCtx, cancel := s.dbCtx(ctx)
	defer cancel()

	doc, err := s.store.Documents().Update(dbCtx, id, patch, s.now())
	if err != nil {
		if isNotFound(err) {
			return nil, apperr.DocumentNotFound()
		}
		return nil, apperr.Persistence(err, "failed to update document")
	}
	return doc, nil
}

// Delete removes the row inside a transaction and commits only after the
// content is gone, so a failed content delete leaves the document intact.
func (s *documentService) Delete(ctx context.Context, caller access.Caller, id int64) (err error) {
	ctx, span := startSpan(ctx, "DocumentService.Delete", caller, id)
	defer func() { finishSpan(span, err) }()

	if _, err := s.authorize(ctx, caller, id, access.ActionDelete); err != nil {
		return err
	}

	txCtx, cancel := context.WithTimeout(ctx, s.dbTimeout+s.blobTimeout)
	defer cancel()

	var storedName string
	err = s.store.WithinTx(txCtx, func(tx repository.Store) error {
		doc, err := s.findDocument(txCtx, tx, id)
		if err != nil {
			return err
		}
		storedName = doc.StoredName

		dbCtx, cancel := s.dbCtx(txCtx)
		defer cancel()
		if err := tx.Documents().Delete(dbCtx, id); err != nil {
			if isNotFound(err) {
				return apperr.DocumentNotFound()
			}
			return apperr.Persistence(err, "failed to delete document")
		}

		blobCtx, cancelBlob := s.blobCtx(txCtx)
		defer cancelBlob()
		if err := s.blobs.Delete(blobCtx, doc.StoredName); err != nil {
			return apperr.Blob(err, "failed to delete document content")
		}
		return nil
	})
	if err != nil {
		if apperr.IsKind(err, apperr.KindStorage) || apperr.IsKind(err, apperr.KindUnavailable) {
			s.log.Error("document delete rolled back", zap.Int64("document_id", id), zap.String("stored_name", storedName), zap.Error(err))
		}
		return persistErr(err, "failed to delete document")
	}

	s.log.Info("document deleted", zap.Int64("document_id", id), zap.Int64("deleted_by", caller.UserID))
	return nil
}

func (s *documentService) Download(ctx context.Context, caller access.Caller, id int64) (_ *Download, err error) {
	ctx, span := startSpan(ctx, "DocumentService.Download", caller, id)
	defer func() { finishSpan(span, err) }()

	if _, err := s.authorize(ctx, caller, id, access.ActionRead); err != nil {
		return nil, err
	}
	doc, err := s.findDocument(ctx, s.store, id)
	if err != nil {
		return nil, err
	}

	// The stream outlives this call; its deadline is released on Close.
	streamCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.downloadTimeout)
	body, _, err := s.blobs.Get(streamCtx, doc.StoredName)
	if err != nil {
		cancel()
		if errors.Is(err, storage.ErrObjectNotFound) {
			s.log.Error("document content missing", zap.Int64("document_id", id), zap.String("stored_name", doc.StoredName))
			return nil, apperr.DocumentNotFound()
		}
		return nil, apperr.Blob(err, "failed to read document content")
	}
	return &Download{Body: &cancelOnClose{ReadCloser: body, cancel: cancel}, Document: *doc}, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func checkTitle(title string) string {
	switch {
	case title == "":
		return "is required"
	case utf8.RuneCountInString(title) > maxTitleLen:
		return fmt.Sprintf("must be at most %d characters", maxTitleLen)
	}
	return ""
}

func normalizeDescription(desc *string) *string {
	if desc == nil {
		return nil
	}
	d := strings.TrimSpace(*desc)
	if d == "" {
		return nil
	}
	return &d
}

// sanitizeFilename keeps only the base name of an uploaded file name.
func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(strings.TrimSpace(name))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	if name == "." || name == "/" || name == "" {
		return "file"
	}
	return name
}

// sniffContentType trusts a specific declared type and otherwise detects one
// from the leading bytes, returning a reader that still yields every byte.
func sniffContentType(declared string, r io.Reader) (string, io.Reader, error) {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != genericContentType {
		return declared, r, nil
	}
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", nil, err
	}
	head = head[:n]
	return mimetype.Detect(head).String(), io.MultiReader(bytes.NewReader(head), r), nil
}
