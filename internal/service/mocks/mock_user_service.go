package mocks

import (
	"context"

	"docportal/internal/access"
	"docportal/internal/model"
	"github.com/stretchr/testify/mock"
)

type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) Create(ctx context.Context, caller access.Caller, email, password string) (*model.User, error) {
	args := m.Called(ctx, caller, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserService) List(ctx context.Context, caller access.Caller) ([]model.User, error) {
	args := m.Called(ctx, caller)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.User), args.Error(1)
}

func (m *MockUserService) Delete(ctx context.Context, caller access.Caller, userID int64) error {
	args := m.Called(ctx, caller, userID)
	return args.Error(0)
}

func (m *MockUserService) ChangeRole(ctx context.Context, caller access.Caller, userID int64, role model.Role) (*model.User, error) {
	args := m.Called(ctx, caller, userID, role)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}
