package dispatcher

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/JakeFAU/crawldash/internal/model"
)

// MockBackend is a mock implementation of the Backend interface for testing.
type MockBackend struct {
	mock.Mock
}

// AddJob is the mock implementation of the AddJob method.
func (m *MockBackend) AddJob(ctx context.Context, rawURL string) (model.JobRecord, error) {
	args := m.Called(ctx, rawURL)
	return args.Get(0).(model.JobRecord), args.Error(1)
}

// StartJob is the mock implementation of the StartJob method.
func (m *MockBackend) StartJob(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// StopJob is the mock implementation of the StopJob method.
func (m *MockBackend) StopJob(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// Bulk is the mock implementation of the Bulk method.
func (m *MockBackend) Bulk(ctx context.Context, ids []int64, action model.BulkAction) error {
	args := m.Called(ctx, ids, action)
	return args.Error(0)
}
