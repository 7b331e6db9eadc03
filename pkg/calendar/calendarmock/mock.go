package calendarmock

import (
	"context"

	"github.com/lit-af/hydroqc-ha/pkg/calendar"
	"github.com/lit-af/hydroqc-ha/pkg/types"
	"github.com/stretchr/testify/mock"
)

type MockBackend struct {
	mock.Mock
}

var _ calendar.Backend = (*MockBackend)(nil)

func (m *MockBackend) Create(ctx context.Context, contractID string, rec types.CalendarRecord) error {
	args := m.Called(ctx, contractID, rec)
	return args.Error(0)
}

func (m *MockBackend) Update(ctx context.Context, contractID string, rec types.CalendarRecord) error {
	args := m.Called(ctx, contractID, rec)
	return args.Error(0)
}

func (m *MockBackend) Delete(ctx context.Context, contractID, uid string) error {
	args := m.Called(ctx, contractID, uid)
	return args.Error(0)
}

func (m *MockBackend) Get(ctx context.Context, contractID, uid string) (types.CalendarRecord, error) {
	args := m.Called(ctx, contractID, uid)
	if len(args) > 0 {
		return args.Get(0).(types.CalendarRecord), args.Error(1)
	}
	return types.CalendarRecord{}, nil
}

func (m *MockBackend) List(ctx context.Context, contractID string, variant types.TariffVariant) ([]types.CalendarRecord, error) {
	args := m.Called(ctx, contractID, variant)
	val := args.Get(0)
	if val == nil {
		return nil, args.Error(1)
	}
	return val.([]types.CalendarRecord), args.Error(1)
}

func (m *MockBackend) Close() error {
	args := m.Called()
	return args.Error(0)
}
