package scheduler

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/lit-af/hydroqc-ha/pkg/calendar"
	"github.com/lit-af/hydroqc-ha/pkg/engine"
	"github.com/lit-af/hydroqc-ha/pkg/feed/feedmock"
	"github.com/lit-af/hydroqc-ha/pkg/peaks"
	"github.com/lit-af/hydroqc-ha/pkg/portal"
	"github.com/lit-af/hydroqc-ha/pkg/portal/portalmock"
	"github.com/lit-af/hydroqc-ha/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestJitterBounds(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		j := jitter(r)
		assert.GreaterOrEqual(t, j, time.Duration(0))
		assert.Less(t, j, 15*time.Minute)
	}
}

func TestInFeedWindow(t *testing.T) {
	loc := peaks.Location()
	tests := []struct {
		hour, minute int
		in           bool
	}{
		{10, 29, false},
		{10, 30, true},
		{12, 0, true},
		{14, 59, true},
		{15, 0, false},
		{9, 0, false},
		{20, 0, false},
	}
	for _, tt := range tests {
		got := inFeedWindow(time.Date(2025, 12, 15, tt.hour, tt.minute, 0, 0, loc))
		assert.Equal(t, tt.in, got, "%02d:%02d", tt.hour, tt.minute)
	}
}

func TestFeedTickSkipsOutsideWindow(t *testing.T) {
	fetcher := &feedmock.MockFetcher{}
	e := engine.New("123", types.TariffWinterCredit, fetcher, calendar.NewMemoryBackend(), 0, nil)
	c := New([]*engine.Engine{e}, nil, nil)

	c.now = func() time.Time {
		return time.Date(2025, 12, 15, 9, 0, 0, 0, peaks.Location())
	}
	c.feedTick(context.Background())
	fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	fetcher.On("Fetch", mock.Anything, types.TariffWinterCredit, mock.Anything, mock.Anything).
		Return(nil, nil)
	c.now = func() time.Time {
		return time.Date(2025, 12, 15, 11, 0, 0, 0, peaks.Location())
	}
	c.feedTick(context.Background())
	fetcher.AssertNumberOfCalls(t, "Fetch", 1)
}

func TestResyncTickDoesNotFetch(t *testing.T) {
	fetcher := &feedmock.MockFetcher{}
	backend := calendar.NewMemoryBackend()
	e := engine.New("123", types.TariffWinterCredit, fetcher, backend, 0, nil)
	c := New([]*engine.Engine{e}, nil, nil)

	c.resyncTick(context.Background())
	fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPortalTickSurvivesErrors(t *testing.T) {
	client := &portalmock.MockClient{}
	client.On("AccountSnapshot", mock.Anything, "bad").
		Return(portal.AccountSnapshot{}, portal.ErrPortalUnavailable)
	client.On("AccountSnapshot", mock.Anything, "good").
		Return(portal.AccountSnapshot{ContractID: "good"}, nil)

	c := New(nil, client, []string{"bad", "good"})
	c.portalTick(context.Background())
	client.AssertNumberOfCalls(t, "AccountSnapshot", 2)
}

func TestRunStopsOnCancel(t *testing.T) {
	fetcher := &feedmock.MockFetcher{}
	fetcher.On("Fetch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, nil)
	e := engine.New("123", types.TariffWinterCredit, fetcher, calendar.NewMemoryBackend(), 0, nil)
	c := New([]*engine.Engine{e}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("coordinator did not stop after cancel")
	}
}
