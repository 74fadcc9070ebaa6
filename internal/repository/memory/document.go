package memory

import (
	"context"
	"time"

	"docportal/internal/model"
	"docportal/internal/repository"
)

type documentRepo struct {
	s *Store
}

func (r *documentRepo) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.st.users[doc.UploadedBy]; !ok {
		return nil, repository.ErrForeignKey
	}
	for _, d := range r.s.st.documents {
		if d.StoredName == doc.StoredName {
			return nil, repository.ErrDuplicate
		}
	}

	r.s.st.nextDocumentID++
	out := *doc
	out.ID = r.s.st.nextDocumentID
	if out.CreatedAt.IsZero() {
		out.CreatedAt = r.s.now()
	}
	out.UpdatedAt = out.CreatedAt
	if out.Description != nil && *out.Description == "" {
		out.Description = nil
	}
	r.s.st.documents[out.ID] = out
	return &out, nil
}

func (r *documentRepo) FindByID(ctx context.Context, id int64) (*model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	d, ok := r.s.st.documents[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &d, nil
}

func (r *documentRepo) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Document], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	all := make([]model.Document, 0, len(r.s.st.documents))
	for _, d := range r.s.st.documents {
		all = append(all, d)
	}
	sortNewestFirst(all)
	return &repository.PageResult[model.Document]{Items: page(all, pq), Total: len(all)}, nil
}

func (r *documentRepo) ListReadableBy(ctx context.Context, userID int64, pq repository.PageQuery) (*repository.PageResult[model.DocumentAccess], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	docs := make([]model.Document, 0)
	for key, g := range r.s.st.grants {
		if key.userID != userID || !g.CanRead {
			continue
		}
		if d, ok := r.s.st.documents[key.documentID]; ok {
			docs = append(docs, d)
		}
	}
	sortNewestFirst(docs)

	items := make([]model.DocumentAccess, 0, len(docs))
	for _, d := range page(docs, pq) {
		g := r.s.st.grants[grantKey{userID: userID, documentID: d.ID}]
		items = append(items, model.DocumentAccess{Document: d, Capabilities: g.Capabilities})
	}
	return &repository.PageResult[model.DocumentAccess]{Items: items, Total: len(docs)}, nil
}

func (r *documentRepo) Update(ctx context.Context, id int64, patch model.DocumentPatch, updatedAt time.Time) (*model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	d, ok := r.s.st.documents[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if patch.Title != nil {
		d.Title = *patch.Title
	}
	if patch.Description != nil {
		if *patch.Description == "" {
			d.Description = nil
		} else {
			desc := *patch.Description
			d.Description = &desc
		}
	}
	d.UpdatedAt = updatedAt
	r.s.st.documents[id] = d
	return &d, nil
}

func (r *documentRepo) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.st.documents[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.st.documents, id)
	for key := range r.s.st.grants {
		if key.documentID == id {
			delete(r.s.st.grants, key)
		}
	}
	return nil
}

func (r *documentRepo) ExistingStoredNames(ctx context.Context, names []string) (map[string]bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[n] = struct{}{}
	}
	out := make(map[string]bool, len(names))
	for _, d := range r.s.st.documents {
		if _, ok := want[d.StoredName]; ok {
			out[d.StoredName] = true
		}
	}
	return out, nil
}
