package mocks

import (
	"context"

	"docportal/internal/repository"
)

// MockStore hands out the embedded repository mocks. WithinTx runs fn
// directly against the same mocks.
type MockStore struct {
	UserRepo     *MockUserRepository
	DocumentRepo *MockDocumentRepository
	GrantRepo    *MockGrantRepository
}

func NewMockStore() *MockStore {
	return &MockStore{
		UserRepo:     new(MockUserRepository),
		DocumentRepo: new(MockDocumentRepository),
		GrantRepo:    new(MockGrantRepository),
	}
}

func (m *MockStore) Users() repository.UserRepository         { return m.UserRepo }
func (m *MockStore) Documents() repository.DocumentRepository { return m.DocumentRepo }
func (m *MockStore) Grants() repository.GrantRepository       { return m.GrantRepo }

func (m *MockStore) WithinTx(_ context.Context, fn func(tx repository.Store) error) error {
	return fn(m)
}
