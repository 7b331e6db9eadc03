package sensors

import (
	"context"
	"testing"
	"time"

	"github.com/lit-af/hydroqc-ha/pkg/calendar"
	"github.com/lit-af/hydroqc-ha/pkg/peaks"
	"github.com/lit-af/hydroqc-ha/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testContract = "123456789"

// seedCalendar stores the full winter credit schedule for Dec 15-16 2025
// with the Dec 15 evening pair critical.
func seedCalendar(t *testing.T, backend calendar.Backend) {
	t.Helper()
	ctx := context.Background()
	loc := peaks.Location()
	g := peaks.NewGenerator(peaks.DefaultPreheatDuration)
	from := time.Date(2025, 12, 15, 0, 0, 0, 0, loc)
	windows := g.Generate(ctx, types.TariffWinterCredit, from, from.AddDate(0, 0, 1))
	for _, w := range windows {
		if w.Start.Day() == 15 && !w.Kind.IsMorning() {
			w.Critical = true
		}
		require.NoError(t, backend.Create(ctx, testContract, calendar.RecordFor(testContract, w)))
	}
}

func testReader(backend calendar.Backend, now time.Time) *Reader {
	r := NewReader(backend, testContract, types.TariffWinterCredit, peaks.DefaultPreheatDuration)
	r.now = func() time.Time { return now }
	return r
}

func TestSnapshotStates(t *testing.T) {
	backend := calendar.NewMemoryBackend()
	seedCalendar(t, backend)
	loc := peaks.Location()

	tests := []struct {
		name  string
		now   time.Time
		state PeakState
	}{
		{"normal between windows", time.Date(2025, 12, 15, 5, 0, 0, 0, loc), StateNormal},
		{"regular morning peak", time.Date(2025, 12, 15, 7, 0, 0, 0, loc), StatePeak},
		{"regular morning anchor", time.Date(2025, 12, 15, 2, 0, 0, 0, loc), StateAnchor},
		{"critical evening anchor", time.Date(2025, 12, 15, 13, 0, 0, 0, loc), StateCriticalAnchor},
		{"critical evening peak", time.Date(2025, 12, 15, 17, 0, 0, 0, loc), StateCriticalPeak},
		{"off season", time.Date(2026, 7, 15, 17, 0, 0, 0, loc), StateOffSeason},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := testReader(backend, tt.now).Snapshot(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.state, snap.State)
		})
	}
}

func TestSnapshotPeaksAndPreheat(t *testing.T) {
	backend := calendar.NewMemoryBackend()
	seedCalendar(t, backend)
	loc := peaks.Location()

	// 14:30 is inside the two hour pre-heat before the 16:00 peak
	snap, err := testReader(backend, time.Date(2025, 12, 15, 14, 30, 0, 0, loc)).Snapshot(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.PreheatInProgress)
	require.NotNil(t, snap.NextPeak)
	assert.Equal(t, types.KindEveningPeak, snap.NextPeak.Kind)
	require.NotNil(t, snap.NextCriticalPeak)
	assert.Equal(t, snap.NextPeak.UID, snap.NextCriticalPeak.UID)
	assert.True(t, snap.CriticalComing)
	assert.Len(t, snap.TodayPeaks, 2)
	assert.Len(t, snap.TomorrowPeaks, 2)
	assert.Nil(t, snap.CurrentPeak)

	// at 11:00 the pre-heat has not started
	snap, err = testReader(backend, time.Date(2025, 12, 15, 11, 0, 0, 0, loc)).Snapshot(context.Background())
	require.NoError(t, err)
	assert.False(t, snap.PreheatInProgress)

	// during the peak the current peak is set and pre-heat is over
	snap, err = testReader(backend, time.Date(2025, 12, 15, 16, 30, 0, 0, loc)).Snapshot(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap.CurrentPeak)
	assert.True(t, snap.CurrentPeak.Critical)
	assert.False(t, snap.PreheatInProgress)
}
