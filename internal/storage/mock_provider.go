package storage

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockBackend is a testify mock of Backend.
type MockBackend struct {
	mock.Mock
}

// Load is the mock implementation of Backend.Load.
func (m *MockBackend) Load(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1) //nolint:wrapcheck
}

// Save is the mock implementation of Backend.Save.
func (m *MockBackend) Save(ctx context.Context, key string, data []byte) error {
	args := m.Called(ctx, key, data)
	return args.Error(0) //nolint:wrapcheck
}
