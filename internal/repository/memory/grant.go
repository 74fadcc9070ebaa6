package memory

import (
	"context"
	"sort"

	"docportal/internal/model"
	"docportal/internal/repository"
)

type grantRepo struct {
	s *Store
}

func (r *grantRepo) FindGrant(ctx context.Context, userID, documentID int64) (*model.AccessGrant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	g, ok := r.s.st.grants[grantKey{userID: userID, documentID: documentID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &g, nil
}

func (r *grantRepo) Upsert(ctx context.Context, g *model.AccessGrant) (*model.AccessGrant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.st.users[g.UserID]; !ok {
		return nil, repository.ErrForeignKey
	}
	if _, ok := r.s.st.documents[g.DocumentID]; !ok {
		return nil, repository.ErrForeignKey
	}

	key := grantKey{userID: g.UserID, documentID: g.DocumentID}
	now := r.s.now()
	out, exists := r.s.st.grants[key]
	if !exists {
		out = model.AccessGrant{UserID: g.UserID, DocumentID: g.DocumentID, CreatedAt: now}
	}
	out.Capabilities = g.Capabilities
	out.UpdatedAt = now
	r.s.st.grants[key] = out
	return &out, nil
}

func (r *grantRepo) Delete(ctx context.Context, userID, documentID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := grantKey{userID: userID, documentID: documentID}
	if _, ok := r.s.st.grants[key]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.st.grants, key)
	return nil
}

func (r *grantRepo) ListByDocument(ctx context.Context, documentID int64) ([]model.AccessGrant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	grants := make([]model.AccessGrant, 0)
	for key, g := range r.s.st.grants {
		if key.documentID == documentID {
			grants = append(grants, g)
		}
	}
	sort.Slice(grants, func(i, j int) bool { return grants[i].UserID < grants[j].UserID })
	return grants, nil
}
