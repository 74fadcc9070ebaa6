package memory

import (
	"context"
	"sort"

	"docportal/internal/model"
	"docportal/internal/repository"
)

type userRepo struct {
	s *Store
}

func (r *userRepo) emailTaken(email string) (model.User, bool) {
	for _, u := range r.s.st.users {
		if u.Email == email {
			return u, true
		}
	}
	return model.User{}, false
}

func (r *userRepo) Create(ctx context.Context, u *model.User) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, taken := r.emailTaken(u.Email); taken {
		return nil, repository.ErrDuplicate
	}
	r.s.st.nextUserID++
	out := *u
	out.ID = r.s.st.nextUserID
	out.CreatedAt = r.s.now()
	r.s.st.users[out.ID] = out
	return &out, nil
}

func (r *userRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.st.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r *userRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.emailTaken(email)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r *userRepo) List(ctx context.Context) ([]model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	users := make([]model.User, 0, len(r.s.st.users))
	for _, u := range r.s.st.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (r *userRepo) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.st.users[id]; !ok {
		return repository.ErrNotFound
	}
	for _, d := range r.s.st.documents {
		if d.UploadedBy == id {
			return repository.ErrForeignKey
		}
	}
	delete(r.s.st.users, id)
	for key := range r.s.st.grants {
		if key.userID == id {
			delete(r.s.st.grants, key)
		}
	}
	return nil
}

func (r *userRepo) UpdateRole(ctx context.Context, id int64, role model.Role) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.st.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	u.Role = role
	r.s.st.users[id] = u
	return &u, nil
}

func (r *userRepo) UpsertAdmin(ctx context.Context, email, passwordHash string) (*model.User, repository.AdminUpsert, error) {
	if err := ctx.Err(); err != nil {
		return nil, repository.AdminUnchanged, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if u, ok := r.emailTaken(email); ok {
		if u.Role == model.RoleAdmin {
			return &u, repository.AdminUnchanged, nil
		}
		u.Role = model.RoleAdmin
		r.s.st.users[u.ID] = u
		return &u, repository.AdminPromoted, nil
	}

	r.s.st.nextUserID++
	u := model.User{
		ID:           r.s.st.nextUserID,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         model.RoleAdmin,
		CreatedAt:    r.s.now(),
	}
	r.s.st.users[u.ID] = u
	return &u, repository.AdminCreated, nil
}

// LockAdmins only lists admins; serialization comes from WithinTx.
func (r *userRepo) LockAdmins(ctx context.Context) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	ids := make([]int64, 0)
	for id, u := range r.s.st.users {
		if u.Role == model.RoleAdmin {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
