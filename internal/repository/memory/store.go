// Package memory is an in-process implementation of repository.Store. It
// enforces the same keys and foreign keys as the PostgreSQL schema and backs
// local runs and end-to-end tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"docportal/internal/model"
	"docportal/internal/repository"
)

type grantKey struct {
	userID     int64
	documentID int64
}

type state struct {
	nextUserID     int64
	nextDocumentID int64
	users          map[int64]model.User
	documents      map[int64]model.Document
	grants         map[grantKey]model.AccessGrant
}

func (st state) clone() state {
	out := state{
		nextUserID:     st.nextUserID,
		nextDocumentID: st.nextDocumentID,
		users:          make(map[int64]model.User, len(st.users)),
		documents:      make(map[int64]model.Document, len(st.documents)),
		grants:         make(map[grantKey]model.AccessGrant, len(st.grants)),
	}
	for k, v := range st.users {
		out.users[k] = v
	}
	for k, v := range st.documents {
		out.documents[k] = v
	}
	for k, v := range st.grants {
		out.grants[k] = v
	}
	return out
}

// Store is safe for concurrent use. Transactions are serialized against each
// other and roll back by restoring a snapshot.
type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	st   state
	now  func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		st: state{
			users:     make(map[int64]model.User),
			documents: make(map[int64]model.Document),
			grants:    make(map[grantKey]model.AccessGrant),
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

var _ repository.Store = (*Store)(nil)

func (s *Store) Users() repository.UserRepository         { return &userRepo{s: s} }
func (s *Store) Documents() repository.DocumentRepository { return &documentRepo{s: s} }
func (s *Store) Grants() repository.GrantRepository       { return &grantRepo{s: s} }

func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.st.clone()
	s.mu.RUnlock()

	if err := fn(txStore{s}); err != nil {
		s.mu.Lock()
		s.st = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// txStore joins the running transaction instead of starting a new one.
type txStore struct {
	*Store
}

func (t txStore) WithinTx(_ context.Context, fn func(tx repository.Store) error) error {
	return fn(t)
}

func page[T any](items []T, pq repository.PageQuery) []T {
	if pq.Limit <= 0 {
		pq.Limit = 10
	}
	if pq.Offset < 0 {
		pq.Offset = 0
	}
	if pq.Offset >= len(items) {
		return make([]T, 0)
	}
	end := pq.Offset + pq.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[pq.Offset:end]
}

func sortNewestFirst(docs []model.Document) {
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.After(docs[j].CreatedAt)
		}
		return docs[i].ID > docs[j].ID
	})
}
