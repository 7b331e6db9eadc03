package portalmock

import (
	"context"

	"github.com/lit-af/hydroqc-ha/pkg/portal"
	"github.com/stretchr/testify/mock"
)

type MockClient struct {
	mock.Mock
}

var _ portal.Client = (*MockClient)(nil)

func (m *MockClient) AccountSnapshot(ctx context.Context, contractID string) (portal.AccountSnapshot, error) {
	args := m.Called(ctx, contractID)
	if len(args) > 0 {
		return args.Get(0).(portal.AccountSnapshot), args.Error(1)
	}
	return portal.AccountSnapshot{}, nil
}
