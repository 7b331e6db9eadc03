package peaks

import (
	"time"

	"github.com/lit-af/hydroqc-ha/pkg/types"
)

// ClockSpan is a daily window expressed as local wall-clock times. The
// bounds map through the zone's offset rules for each specific date, so a
// span keeps its stated clock times across DST transitions.
type ClockSpan struct {
	StartHour   int
	StartMinute int
	EndHour     int
	EndMinute   int
}

// On materializes the span for a calendar date in the fixed local zone.
func (c ClockSpan) On(year int, month time.Month, day int) (start, end time.Time) {
	start = time.Date(year, month, day, c.StartHour, c.StartMinute, 0, 0, hqLocation)
	end = time.Date(year, month, day, c.EndHour, c.EndMinute, 0, 0, hqLocation)
	return start, end
}

// ContainsClock reports whether t's local wall-clock time falls within the
// span, start inclusive, end exclusive.
func (c ClockSpan) ContainsClock(t time.Time) bool {
	t = t.In(hqLocation)
	minutes := t.Hour()*60 + t.Minute()
	return minutes >= c.StartHour*60+c.StartMinute && minutes < c.EndHour*60+c.EndMinute
}

// Offsets describes the fixed per-variant daily clock windows plus the
// user-configurable pre-heat lead time ahead of each peak.
type Offsets struct {
	// Spans holds the clock bounds for every window kind the variant has.
	Spans map[types.WindowKind]ClockSpan
	// PreheatDuration is how long before a peak the pre-action (pre-heat)
	// period starts.
	PreheatDuration time.Duration
}

// DefaultPreheatDuration matches the original integration default.
const DefaultPreheatDuration = 120 * time.Minute

// winterCreditSpans is the Winter Credits (CPC-D) fixed daily shape:
// anchors precede their peaks on the same AM/PM side.
var winterCreditSpans = map[types.WindowKind]ClockSpan{
	types.KindMorningAnchor: {StartHour: 1, EndHour: 4},
	types.KindMorningPeak:   {StartHour: 6, EndHour: 10},
	types.KindEveningAnchor: {StartHour: 12, EndHour: 14},
	types.KindEveningPeak:   {StartHour: 16, EndHour: 20},
}

// flexSpans is the Flex-D (TPC-DPC) shape: announcement-only peaks, no
// anchors. The spans exist solely to classify announced start times.
var flexSpans = map[types.WindowKind]ClockSpan{
	types.KindMorningPeak: {StartHour: 6, EndHour: 9},
	types.KindEveningPeak: {StartHour: 16, EndHour: 20},
}

// OffsetsFor returns the schedule offsets for a tariff variant with the
// given pre-heat lead time. A non-positive lead time falls back to the
// default.
func OffsetsFor(variant types.TariffVariant, preheat time.Duration) Offsets {
	if preheat <= 0 {
		preheat = DefaultPreheatDuration
	}
	spans := flexSpans
	if variant == types.TariffWinterCredit {
		spans = winterCreditSpans
	}
	return Offsets{Spans: spans, PreheatDuration: preheat}
}

// ClassifyStart maps an announced start time to a peak kind by checking it
// against the variant's AM and PM peak clock windows. ok is false when the
// start matches neither, which callers must treat as a malformed
// announcement.
func (o Offsets) ClassifyStart(start time.Time) (types.WindowKind, bool) {
	if span, exists := o.Spans[types.KindMorningPeak]; exists && span.ContainsClock(start) {
		return types.KindMorningPeak, true
	}
	if span, exists := o.Spans[types.KindEveningPeak]; exists && span.ContainsClock(start) {
		return types.KindEveningPeak, true
	}
	return "", false
}

// AnchorWindow returns the anchor window paired with a peak window, using
// the peak's date and AM/PM side. ok is false for variants without anchors.
func (o Offsets) AnchorWindow(peak types.PeakWindow) (types.PeakWindow, bool) {
	anchorKind := types.AnchorFor(peak.Kind)
	span, exists := o.Spans[anchorKind]
	if !exists {
		return types.PeakWindow{}, false
	}
	local := peak.Start.In(hqLocation)
	start, end := span.On(local.Year(), local.Month(), local.Day())
	return types.PeakWindow{
		Variant:  peak.Variant,
		Kind:     anchorKind,
		Start:    start,
		End:      end,
		Critical: peak.Critical,
		Source:   peak.Source,
	}, true
}
