package mocks

import (
	"context"

	"docportal/internal/access"
	"docportal/internal/model"
	"docportal/internal/service"
	"github.com/stretchr/testify/mock"
)

type MockDocumentService struct {
	mock.Mock
}

func (m *MockDocumentService) Create(ctx context.Context, caller access.Caller, in service.CreateDocumentInput) (*model.Document, error) {
	args := m.Called(ctx, caller, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentService) Get(ctx context.Context, caller access.Caller, id int64) (*model.DocumentAccess, error) {
	args := m.Called(ctx, caller, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DocumentAccess), args.Error(1)
}

func (m *MockDocumentService) List(ctx context.Context, caller access.Caller, limit, offset int) (*service.DocumentListResult, error) {
	args := m.Called(ctx, caller, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.DocumentListResult), args.Error(1)
}

func (m *MockDocumentService) Update(ctx context.Context, caller access.Caller, id int64, patch model.DocumentPatch) (*model.Document, error) {
	args := m.Called(ctx, caller, id, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentService) Delete(ctx context.Context, caller access.Caller, id int64) error {
	args := m.Called(ctx, caller, id)
	return args.Error(0)
}

func (m *MockDocumentService) Download(ctx context.Context, caller access.Caller, id int64) (*service.Download, error) {
	args := m.Called(ctx, caller, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Download), args.Error(1)
}

func (m *MockDocumentService) Grant(ctx context.Context, caller access.Caller, documentID, userID int64, caps model.Capabilities) (*model.AccessGrant, error) {
	args := m.Called(ctx, caller, documentID, userID, caps)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AccessGrant), args.Error(1)
}

func (m *MockDocumentService) Revoke(ctx context.Context, caller access.Caller, documentID, userID int64) error {
	args := m.Called(ctx, caller, documentID, userID)
	return args.Error(0)
}

func (m *MockDocumentService) ListGrants(ctx context.Context, caller access.Caller, documentID int64) ([]model.AccessGrant, error) {
	args := m.Called(ctx, caller, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.AccessGrant), args.Error(1)
}
