package mocks

import (
	"context"

	"docportal/internal/model"
	"github.com/stretchr/testify/mock"
)

type MockGrantFinder struct {
	mock.Mock
}

func (m *MockGrantFinder) FindGrant(ctx context.Context, userID, documentID int64) (*model.AccessGrant, error) {
	args := m.Called(ctx, userID, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AccessGrant), args.Error(1)
}
