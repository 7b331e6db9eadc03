package feedmock

import (
	"context"
	"time"

	"github.com/lit-af/hydroqc-ha/pkg/feed"
	"github.com/lit-af/hydroqc-ha/pkg/types"
	"github.com/stretchr/testify/mock"
)

type MockFetcher struct {
	mock.Mock
}

var _ feed.Fetcher = (*MockFetcher)(nil)

func (m *MockFetcher) Fetch(ctx context.Context, variant types.TariffVariant, from, to time.Time) ([]types.AnnouncedWindow, error) {
	args := m.Called(ctx, variant, from, to)
	val := args.Get(0)
	if val == nil {
		return nil, args.Error(1)
	}
	return val.([]types.AnnouncedWindow), args.Error(1)
}
