package peaks

import (
	"context"
	"testing"
	"time"

	"github.com/lit-af/hydroqc-ha/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findWindow(t *testing.T, windows []types.PeakWindow, kind types.WindowKind, day int) types.PeakWindow {
	t.Helper()
	for _, w := range windows {
		if w.Kind == kind && w.Start.In(Location()).Day() == day {
			return w
		}
	}
	t.Fatalf("no %s window on day %d", kind, day)
	return types.PeakWindow{}
}

func TestMergeAnnouncementFlipsPeakAndAnchor(t *testing.T) {
	ctx := context.Background()
	loc := Location()
	g := NewGenerator(DefaultPreheatDuration)
	m := NewMerger(g)

	from := time.Date(2025, time.December, 15, 0, 0, 0, 0, loc)
	generated := g.Generate(ctx, types.TariffWinterCredit, from, from.AddDate(0, 0, 1))
	require.Len(t, generated, 8)

	merged := m.Merge(ctx, generated, []types.AnnouncedWindow{{
		Variant: types.TariffWinterCredit,
		Start:   time.Date(2025, time.December, 15, 16, 0, 0, 0, loc),
		End:     time.Date(2025, time.December, 15, 20, 0, 0, 0, loc),
	}})
	require.Len(t, merged, 8)

	peak := findWindow(t, merged, types.KindEveningPeak, 15)
	assert.True(t, peak.Critical)
	assert.Equal(t, types.SourceAnnounced, peak.Source)

	anchor := findWindow(t, merged, types.KindEveningAnchor, 15)
	assert.True(t, anchor.Critical)
	assert.Equal(t, "12:00", anchor.Start.In(loc).Format("15:04"))
	assert.Equal(t, "14:00", anchor.End.In(loc).Format("15:04"))

	// everything else stays non-critical
	var critical int
	for _, w := range merged {
		if w.Critical {
			critical++
		}
	}
	assert.Equal(t, 2, critical)
}

func TestMergeWithdrawnAnnouncementClearsAnchor(t *testing.T) {
	ctx := context.Background()
	loc := Location()
	g := NewGenerator(DefaultPreheatDuration)
	m := NewMerger(g)

	from := time.Date(2025, time.December, 15, 0, 0, 0, 0, loc)
	generated := g.Generate(ctx, types.TariffWinterCredit, from, from)
	announcement := types.AnnouncedWindow{
		Variant: types.TariffWinterCredit,
		Start:   time.Date(2025, time.December, 15, 6, 0, 0, 0, loc),
		End:     time.Date(2025, time.December, 15, 10, 0, 0, 0, loc),
	}

	withEvent := m.Merge(ctx, generated, []types.AnnouncedWindow{announcement})
	assert.True(t, findWindow(t, withEvent, types.KindMorningAnchor, 15).Critical)

	// the anchor is rederived from the peaks each merge, so dropping the
	// announcement drops the anchor's criticality too
	withoutEvent := m.Merge(ctx, generated, nil)
	assert.False(t, findWindow(t, withoutEvent, types.KindMorningAnchor, 15).Critical)
	assert.False(t, findWindow(t, withoutEvent, types.KindMorningPeak, 15).Critical)
}

func TestMergeFlexAnnouncementCreatesWindows(t *testing.T) {
	ctx := context.Background()
	loc := Location()
	g := NewGenerator(DefaultPreheatDuration)
	m := NewMerger(g)

	// FLEX has no recurrence, so the announcement is the only source
	merged := m.Merge(ctx, nil, []types.AnnouncedWindow{{
		Variant: types.TariffFlex,
		Start:   time.Date(2025, time.December, 15, 6, 0, 0, 0, loc),
		End:     time.Date(2025, time.December, 15, 9, 0, 0, 0, loc),
	}})
	require.Len(t, merged, 1)
	assert.Equal(t, types.KindMorningPeak, merged[0].Kind)
	assert.True(t, merged[0].Critical)
	assert.Equal(t, types.SourceAnnounced, merged[0].Source)
}

func TestMergeRejectsUnclassifiableAnnouncement(t *testing.T) {
	ctx := context.Background()
	loc := Location()
	g := NewGenerator(DefaultPreheatDuration)
	m := NewMerger(g)

	from := time.Date(2025, time.December, 15, 0, 0, 0, 0, loc)
	generated := g.Generate(ctx, types.TariffWinterCredit, from, from)

	// an 11:00 start matches neither the AM nor the PM peak pattern; it is
	// dropped without poisoning the valid announcement in the same batch
	merged := m.Merge(ctx, generated, []types.AnnouncedWindow{
		{
			Variant: types.TariffWinterCredit,
			Start:   time.Date(2025, time.December, 15, 11, 0, 0, 0, loc),
			End:     time.Date(2025, time.December, 15, 13, 0, 0, 0, loc),
		},
		{
			Variant: types.TariffWinterCredit,
			Start:   time.Date(2025, time.December, 15, 16, 0, 0, 0, loc),
			End:     time.Date(2025, time.December, 15, 20, 0, 0, 0, loc),
		},
	})
	require.Len(t, merged, 4)
	assert.True(t, findWindow(t, merged, types.KindEveningPeak, 15).Critical)
	assert.False(t, findWindow(t, merged, types.KindMorningPeak, 15).Critical)
}

func TestMergeOrderedByStart(t *testing.T) {
	ctx := context.Background()
	loc := Location()
	g := NewGenerator(DefaultPreheatDuration)
	m := NewMerger(g)

	from := time.Date(2025, time.December, 15, 0, 0, 0, 0, loc)
	merged := m.Merge(ctx, g.Generate(ctx, types.TariffWinterCredit, from, from.AddDate(0, 0, 1)), nil)
	for i := 1; i < len(merged); i++ {
		assert.True(t, merged[i-1].Start.Before(merged[i].Start))
	}
}

func TestClassifyStart(t *testing.T) {
	loc := Location()
	wc := OffsetsFor(types.TariffWinterCredit, 0)

	kind, ok := wc.ClassifyStart(time.Date(2025, time.December, 15, 6, 0, 0, 0, loc))
	require.True(t, ok)
	assert.Equal(t, types.KindMorningPeak, kind)

	kind, ok = wc.ClassifyStart(time.Date(2025, time.December, 15, 17, 30, 0, 0, loc))
	require.True(t, ok)
	assert.Equal(t, types.KindEveningPeak, kind)

	_, ok = wc.ClassifyStart(time.Date(2025, time.December, 15, 11, 0, 0, 0, loc))
	assert.False(t, ok)

	// FLEX mornings end at 09:00, so 09:30 does not classify
	flex := OffsetsFor(types.TariffFlex, 0)
	_, ok = flex.ClassifyStart(time.Date(2025, time.December, 15, 9, 30, 0, 0, loc))
	assert.False(t, ok)
}
