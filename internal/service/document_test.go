package service

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"docportal/internal/access"
	"docportal/internal/apperr"
	"docportal/internal/model"
	repoMocks "docportal/internal/repository/mocks"
	"docportal/internal/storage"
	storeMocks "docportal/internal/storage/mocks"
)

func readAll(t *testing.T, d *Download) string {
	t.Helper()
	defer d.Body.Close()
	b, err := io.ReadAll(d.Body)
	require.NoError(t, err)
	return string(b)
}

// assertLooksMissing checks that err renders exactly like a missing document.
func assertLooksMissing(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	got := apperr.FromError(err)
	want := apperr.DocumentNotFound()
	assert.Equal(t, want.Status, got.Status)
	assert.Equal(t, want.Code, got.Code)
	assert.Equal(t, want.Message, got.Message)
}

func TestScenario_ShareReadRevoke(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u7 := h.userWithID(t, 7)
	content := "%PDF-1.7 spec bytes"

	doc := h.upload(t, "Spec", "spec.pdf", content)
	assert.Equal(t, int64(1), doc.ID)
	assert.NotEqual(t, "spec.pdf", doc.StoredName)
	assert.True(t, strings.HasPrefix(doc.StoredName, StoredNamePrefix))
	assert.NotContains(t, doc.StoredName, "spec")

	_, err := h.svc.Grant(ctx, h.admin, doc.ID, u7.UserID, model.Capabilities{CanRead: true})
	require.NoError(t, err)

	got, err := h.svc.Get(ctx, u7, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReadOnly, got.Capabilities)

	dl, err := h.svc.Download(ctx, u7, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, content, readAll(t, dl))
	assert.Equal(t, "spec.pdf", dl.Document.OriginalName)

	title := "x"
	_, err = h.svc.Update(ctx, u7, doc.ID, model.DocumentPatch{Title: &title})
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))

	require.NoError(t, h.svc.Revoke(ctx, h.admin, doc.ID, u7.UserID))

	_, errRevoked := h.svc.Download(ctx, u7, doc.ID)
	_, errMissing := h.svc.Download(ctx, u7, 999)
	assertLooksMissing(t, errRevoked)
	assertLooksMissing(t, errMissing)
	assert.Equal(t, apperr.FromError(errMissing).Status, apperr.FromError(errRevoked).Status)
}

func TestDownload_WithoutGrantMatchesNonexistent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	other := h.addUser(t, "other@example.com", model.RoleUser)

	docs := []*model.Document{
		h.upload(t, "One", "one.pdf", "1"),
		h.upload(t, "Two", "two.pdf", "22"),
	}
	_, err := h.svc.Grant(ctx, h.admin, docs[1].ID, other.UserID, model.ReadOnly)
	require.NoError(t, err)

	_, missingErr := h.svc.Download(ctx, h.admin, 12345)
	assertLooksMissing(t, missingErr)

	for _, u := range []access.Caller{h.user, other} {
		for _, d := range docs {
			if u == other && d.ID == docs[1].ID {
				continue
			}
			dec, err := access.NewEngine(h.store.Grants()).Authorize(ctx, u, d.ID, access.ActionRead)
			require.NoError(t, err)
			assert.False(t, dec.Allowed)

			_, err = h.svc.Download(ctx, u, d.ID)
			assertLooksMissing(t, err)
			_, err = h.svc.Get(ctx, u, d.ID)
			assertLooksMissing(t, err)
		}
	}
}

func TestUpdate_RequiresEditCapability(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.upload(t, "Doc", "d.pdf", "abc")

	_, err := h.svc.Grant(ctx, h.admin, doc.ID, h.user.UserID, model.Capabilities{CanRead: true, CanDelete: true})
	require.NoError(t, err)

	title, desc := "A perfectly valid title", "and description"
	_, err = h.svc.Update(ctx, h.user, doc.ID, model.DocumentPatch{Title: &title, Description: &desc})
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))

	unchanged, err := h.svc.Get(ctx, h.admin, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Doc", unchanged.Title)

	_, err = h.svc.Grant(ctx, h.admin, doc.ID, h.user.UserID, model.Capabilities{CanRead: true, CanEdit: true})
	require.NoError(t, err)
	h.clock.Advance(time.Minute)

	updated, err := h.svc.Update(ctx, h.user, doc.ID, model.DocumentPatch{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, "Doc", updated.Title, "omitted fields stay unchanged")
	require.NotNil(t, updated.Description)
	assert.Equal(t, desc, *updated.Description)
	assert.True(t, updated.UpdatedAt.After(doc.UpdatedAt))

	h.clock.Advance(time.Minute)
	again, err := h.svc.Update(ctx, h.user, doc.ID, model.DocumentPatch{})
	require.NoError(t, err)
	assert.True(t, again.UpdatedAt.After(updated.UpdatedAt), "updated_at always advances")

	blank := "   "
	_, err = h.svc.Update(ctx, h.user, doc.ID, model.DocumentPatch{Title: &blank})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestGrantRevoke_RoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.upload(t, "Doc", "d.pdf", "abc")

	_, err := h.svc.Grant(ctx, h.admin, doc.ID, h.user.UserID, model.ReadOnly)
	require.NoError(t, err)
	_, err = h.svc.Grant(ctx, h.admin, doc.ID, h.user.UserID, model.Capabilities{CanRead: true, CanEdit: true})
	require.NoError(t, err, "granting twice updates instead of failing")

	grants, err := h.svc.ListGrants(ctx, h.admin, doc.ID)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.True(t, grants[0].CanEdit)

	require.NoError(t, h.svc.Revoke(ctx, h.admin, doc.ID, h.user.UserID))
	grants, err = h.svc.ListGrants(ctx, h.admin, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, grants)

	err = h.svc.Revoke(ctx, h.admin, doc.ID, h.user.UserID)
	require.Error(t, err)
	e := apperr.FromError(err)
	assert.Equal(t, apperr.KindNotFound, e.Kind)
	assert.Equal(t, "GRANT_NOT_FOUND", e.Code)
}

func TestGrant_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.upload(t, "Doc", "d.pdf", "abc")
	otherAdmin := h.addUser(t, "admin2@example.com", model.RoleAdmin)

	tests := []struct {
		name     string
		caller   access.Caller
		docID    int64
		userID   int64
		caps     model.Capabilities
		wantKind apperr.Kind
		wantCode string
	}{
		{name: "user cannot grant", caller: h.user, docID: doc.ID, userID: h.user.UserID, caps: model.ReadOnly, wantKind: apperr.KindForbidden},
		{name: "edit without read", caller: h.admin, docID: doc.ID, userID: h.user.UserID, caps: model.Capabilities{CanEdit: true}, wantKind: apperr.KindValidation},
		{name: "no capabilities", caller: h.admin, docID: doc.ID, userID: h.user.UserID, caps: model.Capabilities{}, wantKind: apperr.KindValidation},
		{name: "admin target", caller: h.admin, docID: doc.ID, userID: otherAdmin.UserID, caps: model.ReadOnly, wantKind: apperr.KindValidation},
		{name: "missing document", caller: h.admin, docID: 404, userID: h.user.UserID, caps: model.ReadOnly, wantKind: apperr.KindNotFound, wantCode: "NOT_FOUND"},
		{name: "missing user", caller: h.admin, docID: doc.ID, userID: 404, caps: model.ReadOnly, wantKind: apperr.KindNotFound, wantCode: "USER_NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Grant(ctx, tt.caller, tt.docID, tt.userID, tt.caps)
			require.Error(t, err)
			e := apperr.FromError(err)
			assert.Equal(t, tt.wantKind, e.Kind)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, e.Code)
			}
		})
	}

	_, err := h.svc.ListGrants(ctx, h.user, doc.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
	err = h.svc.Revoke(ctx, h.user, doc.ID, h.user.UserID)
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
}

func TestDelete_RemovesEverything(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.upload(t, "Doc", "d.pdf", "abc")
	keep := h.upload(t, "Keep", "k.pdf", "def")

	_, err := h.svc.Grant(ctx, h.admin, doc.ID, h.user.UserID, model.Capabilities{CanRead: true, CanDelete: true})
	require.NoError(t, err)
	require.True(t, h.blobs.Has(doc.StoredName))

	require.NoError(t, h.svc.Delete(ctx, h.user, doc.ID))

	assert.False(t, h.blobs.Has(doc.StoredName))
	assert.True(t, h.blobs.Has(keep.StoredName))
	_, err = h.svc.Get(ctx, h.admin, doc.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	grants, err := h.store.Grants().ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, grants)

	err = h.svc.Delete(ctx, h.admin, doc.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestDelete_RequiresDeleteCapability(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.upload(t, "Doc", "d.pdf", "abc")
	_, err := h.svc.Grant(ctx, h.admin, doc.ID, h.user.UserID, model.Capabilities{CanRead: true, CanEdit: true})
	require.NoError(t, err)

	err = h.svc.Delete(ctx, h.user, doc.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
	assert.True(t, h.blobs.Has(doc.StoredName))
}

func TestDelete_BlobFailureKeepsDocument(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.upload(t, "Doc", "d.pdf", "abc")

	blobs := new(storeMocks.MockStorage)
	blobs.On("Delete", mock.Anything, doc.StoredName).Return(errors.New("bucket unreachable"))
	_, err := h.store.Grants().Upsert(ctx, &model.AccessGrant{UserID: h.user.UserID, DocumentID: doc.ID, Capabilities: model.ReadOnly})
	require.NoError(t, err)

	svc := NewDocumentService(h.store, blobs, access.NewEngine(h.store.Grants()))
	err = svc.Delete(ctx, h.admin, doc.ID)
	require.Error(t, err)
	e := apperr.FromError(err)
	assert.Equal(t, apperr.KindStorage, e.Kind)
	assert.Equal(t, "BLOB_STORE_ERROR", e.Code)

	still, err := h.svc.Get(ctx, h.admin, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.StoredName, still.StoredName)
	_, err = h.store.Grants().FindGrant(ctx, h.user.UserID, doc.ID)
	assert.NoError(t, err, "grants survive a rolled back delete")
	blobs.AssertExpectations(t)
}

func TestCreate_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		in         CreateDocumentInput
		wantFields []string
	}{
		{name: "missing title", in: CreateDocumentInput{Title: "  ", Size: 1, Body: strings.NewReader("a")}, wantFields: []string{"title"}},
		{name: "long title", in: CreateDocumentInput{Title: strings.Repeat("t", 201), Size: 1, Body: strings.NewReader("a")}, wantFields: []string{"title"}},
		{name: "empty file", in: CreateDocumentInput{Title: "T", Size: 0, Body: strings.NewReader("")}, wantFields: []string{"file"}},
		{name: "nothing", in: CreateDocumentInput{}, wantFields: []string{"title", "file"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Create(ctx, h.admin, tt.in)
			require.Error(t, err)
			e := apperr.FromError(err)
			assert.Equal(t, apperr.KindValidation, e.Kind)
			for _, f := range tt.wantFields {
				assert.Contains(t, e.Fields, f)
			}
		})
	}
	assert.Equal(t, 0, h.blobs.Len())

	_, err := h.svc.Create(ctx, h.user, CreateDocumentInput{Title: "T", Size: 1, Body: strings.NewReader("a")})
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
}

func TestCreate_OpaqueNameChecksumAndSniffing(t *testing.T) {
	h := newHarness(t)
	body := "plain text body"

	doc, err := h.svc.Create(context.Background(), h.admin, CreateDocumentInput{
		Title:        "  Notes  ",
		Description:  ptr("  "),
		OriginalName: "../../etc/passwd",
		Size:         int64(len(body)),
		Body:         strings.NewReader(body),
	})
	require.NoError(t, err)

	assert.Equal(t, "Notes", doc.Title)
	assert.Nil(t, doc.Description)
	assert.Equal(t, "passwd", doc.OriginalName)
	assert.NotContains(t, doc.StoredName, "passwd")
	assert.True(t, strings.HasPrefix(doc.ContentType, "text/plain"))
	assert.Equal(t, int64(len(body)), doc.Size)

	sum := blake3.Sum256([]byte(body))
	assert.Equal(t, hex.EncodeToString(sum[:]), doc.Checksum)

	dl, err := h.svc.Download(context.Background(), h.admin, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, body, readAll(t, dl), "sniffing must not drop leading bytes")
}

func TestCreate_CompensatesFailedInsert(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	t.Run("blob removed", func(t *testing.T) {
		store := repoMocks.NewMockStore()
		blobs := storage.NewMemory()
		store.DocumentRepo.On("Create", mock.Anything, mock.Anything).Return(nil, errors.New("insert failed"))

		svc := NewDocumentService(store, blobs, access.NewEngine(store.GrantRepo), WithLogger(zap.New(core)))
		_, err := svc.Create(context.Background(), access.Caller{UserID: 1, Role: model.RoleAdmin}, CreateDocumentInput{
			Title: "T", Size: 3, Body: strings.NewReader("abc"),
		})
		require.Error(t, err)
		assert.Equal(t, "PERSISTENCE_ERROR", apperr.FromError(err).Code)
		assert.Equal(t, 0, blobs.Len())
	})

	t.Run("compensation failure is logged", func(t *testing.T) {
		store := repoMocks.NewMockStore()
		blobs := new(storeMocks.MockStorage)
		store.DocumentRepo.On("Create", mock.Anything, mock.Anything).Return(nil, errors.New("insert failed"))
		blobs.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(func(_ context.Context, key string, r io.Reader, opt storage.PutObjectOptions) storage.ObjectInfo {
				_, _ = io.Copy(io.Discard, r)
				return storage.ObjectInfo{Key: key, Size: opt.Size}
			}, nil)
		blobs.On("Delete", mock.Anything, mock.Anything).Return(errors.New("delete failed"))

		svc := NewDocumentService(store, blobs, access.NewEngine(store.GrantRepo), WithLogger(zap.New(core)))
		_, err := svc.Create(context.Background(), access.Caller{UserID: 1, Role: model.RoleAdmin}, CreateDocumentInput{
			Title: "T", Size: 3, Body: strings.NewReader("abc"),
		})
		require.Error(t, err)
		assert.Equal(t, 1, logs.FilterMessage("orphaned document content left for reconciliation").Len())
		blobs.AssertExpectations(t)
	})
}

func TestCreate_BlobTimeoutIsRetryable(t *testing.T) {
	store := repoMocks.NewMockStore()
	blobs := new(storeMocks.MockStorage)
	blobs.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(storage.ObjectInfo{}, context.DeadlineExceeded)

	svc := NewDocumentService(store, blobs, access.NewEngine(store.GrantRepo), WithTimeouts(time.Second, 10*time.Millisecond))
	_, err := svc.Create(context.Background(), access.Caller{UserID: 1, Role: model.RoleAdmin}, CreateDocumentInput{
		Title: "T", Size: 3, Body: strings.NewReader("abc"),
	})
	require.Error(t, err)
	e := apperr.FromError(err)
	assert.Equal(t, apperr.KindUnavailable, e.Kind)
	assert.True(t, e.Retryable())
	store.DocumentRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestGet_GrantLookupFailureFailsClosed(t *testing.T) {
	store := repoMocks.NewMockStore()
	store.GrantRepo.On("FindGrant", mock.Anything, int64(2), int64(1)).Return(nil, errors.New("connection refused"))

	svc := NewDocumentService(store, storage.NewMemory(), access.NewEngine(store.GrantRepo))
	_, err := svc.Get(context.Background(), access.Caller{UserID: 2, Role: model.RoleUser}, 1)
	require.Error(t, err)
	assert.Equal(t, apperr.KindStorage, apperr.KindOf(err))
	store.DocumentRepo.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
}

func TestList_Scopes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	shared := h.upload(t, "Shared", "s.pdf", "s")
	h.upload(t, "Private", "p.pdf", "p")
	unreadable := h.upload(t, "Unreadable", "u.pdf", "u")

	_, err := h.svc.Grant(ctx, h.admin, shared.ID, h.user.UserID, model.Capabilities{CanRead: true, CanEdit: true})
	require.NoError(t, err)
	// A grant row without can_read, as legacy data may contain.
	_, err = h.store.Grants().Upsert(ctx, &model.AccessGrant{UserID: h.user.UserID, DocumentID: unreadable.ID, Capabilities: model.Capabilities{CanEdit: true}})
	require.NoError(t, err)

	all, err := h.svc.List(ctx, h.admin, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, all.Total)
	assert.Equal(t, defaultPageLimit, all.Limit)
	for _, item := range all.Items {
		assert.Equal(t, access.FullAccess, item.Capabilities)
	}

	mine, err := h.svc.List(ctx, h.user, 500, -1)
	require.NoError(t, err)
	assert.Equal(t, maxPageLimit, mine.Limit)
	assert.Equal(t, 0, mine.Offset)
	require.Len(t, mine.Items, 1)
	assert.Equal(t, shared.ID, mine.Items[0].ID)
	assert.True(t, mine.Items[0].CanEdit)

	_, err = h.svc.Get(ctx, h.user, unreadable.ID)
	assertLooksMissing(t, err)
}

func TestDownload_MissingContent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.upload(t, "Doc", "d.pdf", "abc")
	require.NoError(t, h.blobs.Delete(ctx, doc.StoredName))

	_, err := h.svc.Download(ctx, h.admin, doc.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

// deadlineBlobs hands out readers that fail once the Get context is done,
// the way a network stream does.
type deadlineBlobs struct{ storage.Storage }

func (b deadlineBlobs) Get(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	rc, info, err := b.Storage.Get(ctx, key)
	if err != nil {
		return nil, info, err
	}
	return &deadlineReader{ctx: ctx, ReadCloser: rc}, info, nil
}

type deadlineReader struct {
	ctx context.Context
	io.ReadCloser
}

func (r *deadlineReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.ReadCloser.Read(p)
}

func TestDownload_StreamDeadline(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.upload(t, "Large", "large.bin", "streamed content")

	t.Run("outlives the blob timeout", func(t *testing.T) {
		svc := NewDocumentService(h.store, deadlineBlobs{h.blobs}, access.NewEngine(h.store.Grants()),
			WithTimeouts(time.Second, 10*time.Millisecond), WithDownloadTimeout(time.Minute))

		dl, err := svc.Download(ctx, h.admin, doc.ID)
		require.NoError(t, err)
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, "streamed content", readAll(t, dl))
	})

	t.Run("ends at the download timeout", func(t *testing.T) {
		svc := NewDocumentService(h.store, deadlineBlobs{h.blobs}, access.NewEngine(h.store.Grants()),
			WithTimeouts(time.Second, time.Minute), WithDownloadTimeout(10*time.Millisecond))

		dl, err := svc.Download(ctx, h.admin, doc.ID)
		require.NoError(t, err)
		defer dl.Body.Close()
		time.Sleep(50 * time.Millisecond)
		_, err = io.ReadAll(dl.Body)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"report.pdf":             "report.pdf",
		"../../etc/passwd":       "passwd",
		`C:\Users\me\secret.txt`: "secret.txt",
		"":                       "file",
		"dir/":                   "dir",
		"bad\x00name.txt":        "badname.txt",
	}
	for in, want := range tests {
		assert.Equal(t, want, sanitizeFilename(in), in)
	}
}

func ptr(s string) *string { return &s }
