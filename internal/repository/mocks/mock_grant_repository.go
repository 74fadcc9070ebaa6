package mocks

import (
	"context"

	"docportal/internal/model"
	"github.com/stretchr/testify/mock"
)

type MockGrantRepository struct {
	mock.Mock
}

func (m *MockGrantRepository) FindGrant(ctx context.Context, userID, documentID int64) (*model.AccessGrant, error) {
	args := m.Called(ctx, userID, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AccessGrant), args.Error(1)
}

func (m *MockGrantRepository) Upsert(ctx context.Context, g *model.AccessGrant) (*model.AccessGrant, error) {
	args := m.Called(ctx, g)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AccessGrant), args.Error(1)
}

func (m *MockGrantRepository) Delete(ctx context.Context, userID, documentID int64) error {
	args := m.Called(ctx, userID, documentID)
	return args.Error(0)
}

func (m *MockGrantRepository) ListByDocument(ctx context.Context, documentID int64) ([]model.AccessGrant, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.AccessGrant), args.Error(1)
}
