// Package sensors derives presentation state from the persisted calendar.
// The calendar store is the durable source of truth, so a restart picks up
// exactly where the last sync left off with no separate snapshot.
package sensors

import (
	"context"
	"fmt"
	"time"

	"github.com/lit-af/hydroqc-ha/pkg/calendar"
	"github.com/lit-af/hydroqc-ha/pkg/peaks"
	"github.com/lit-af/hydroqc-ha/pkg/types"
)

// PeakState describes where now falls relative to the peak schedule.
type PeakState string

const (
	StateOffSeason      PeakState = "off_season"
	StateCriticalPeak   PeakState = "critical_peak"
	StatePeak           PeakState = "peak"
	StateCriticalAnchor PeakState = "critical_anchor"
	StateAnchor         PeakState = "anchor"
	StateNormal         PeakState = "normal"
)

// Snapshot is the derived sensor state for one contract and variant.
type Snapshot struct {
	State             PeakState              `json:"state"`
	CurrentPeak       *types.CalendarRecord  `json:"currentPeak,omitempty"`
	NextPeak          *types.CalendarRecord  `json:"nextPeak,omitempty"`
	NextCriticalPeak  *types.CalendarRecord  `json:"nextCriticalPeak,omitempty"`
	TodayPeaks        []types.CalendarRecord `json:"todayPeaks"`
	TomorrowPeaks     []types.CalendarRecord `json:"tomorrowPeaks"`
	PreheatInProgress bool                   `json:"preheatInProgress"`
	CriticalComing    bool                   `json:"criticalComing"`
	ComputedAt        time.Time              `json:"computedAt"`
}

// Reader computes snapshots from the calendar store.
type Reader struct {
	backend    calendar.Backend
	contractID string
	variant    types.TariffVariant
	preheat    time.Duration

	// now is replaceable for tests
	now func() time.Time
}

// NewReader returns a Reader for one contract and tariff variant.
func NewReader(backend calendar.Backend, contractID string, variant types.TariffVariant, preheat time.Duration) *Reader {
	if preheat <= 0 {
		preheat = peaks.DefaultPreheatDuration
	}
	return &Reader{
		backend:    backend,
		contractID: contractID,
		variant:    variant,
		preheat:    preheat,
		now:        time.Now,
	}
}

// Snapshot reads the calendar and derives the current sensor state.
func (r *Reader) Snapshot(ctx context.Context) (Snapshot, error) {
	now := r.now().In(peaks.Location())
	snap := Snapshot{
		State:      StateNormal,
		ComputedAt: now,
	}

	recs, err := r.backend.List(ctx, r.contractID, r.variant)
	if err != nil {
		return Snapshot{}, fmt.Errorf("reading calendar for sensors: %w", err)
	}

	var peakRecs, anchorRecs []types.CalendarRecord
	for _, rec := range recs {
		if rec.Kind.IsPeak() {
			peakRecs = append(peakRecs, rec)
		} else {
			anchorRecs = append(anchorRecs, rec)
		}
	}

	tomorrow := now.AddDate(0, 0, 1)
	for i, rec := range peakRecs {
		start := rec.Start.In(peaks.Location())
		switch {
		case sameDay(start, now):
			snap.TodayPeaks = append(snap.TodayPeaks, rec)
		case sameDay(start, tomorrow):
			snap.TomorrowPeaks = append(snap.TomorrowPeaks, rec)
		}

		if !rec.Start.After(now) && now.Before(rec.End) && snap.CurrentPeak == nil {
			snap.CurrentPeak = &peakRecs[i]
		}
		if rec.End.After(now) {
			if snap.NextPeak == nil || rec.Start.Before(snap.NextPeak.Start) {
				snap.NextPeak = &peakRecs[i]
			}
			if rec.Critical && (snap.NextCriticalPeak == nil || rec.Start.Before(snap.NextCriticalPeak.Start)) {
				snap.NextCriticalPeak = &peakRecs[i]
			}
		}
	}
	snap.CriticalComing = snap.NextCriticalPeak != nil

	if snap.NextPeak != nil && snap.CurrentPeak == nil {
		preheatStart := snap.NextPeak.Start.Add(-r.preheat)
		snap.PreheatInProgress = !now.Before(preheatStart) && now.Before(snap.NextPeak.Start)
	}

	if !peaks.IsWinterSeason(now) {
		snap.State = StateOffSeason
		return snap, nil
	}
	if snap.CurrentPeak != nil {
		if snap.CurrentPeak.Critical {
			snap.State = StateCriticalPeak
		} else {
			snap.State = StatePeak
		}
		return snap, nil
	}
	for _, rec := range anchorRecs {
		if !rec.Start.After(now) && now.Before(rec.End) {
			if rec.Critical {
				snap.State = StateCriticalAnchor
			} else {
				snap.State = StateAnchor
			}
			return snap, nil
		}
	}
	return snap, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
