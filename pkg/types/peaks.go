package types

import (
	"fmt"
	"time"
)

// TariffVariant identifies one of the two Hydro-Québec residential dynamic
// rate offers that have peak events.
type TariffVariant string

const (
	// TariffFlex is Flex-D (TPC-DPC): no fixed schedule, every peak comes
	// from an announcement.
	TariffFlex TariffVariant = "FLEX"
	// TariffWinterCredit is Rate D + Winter Credits (CPC-D): fixed daily
	// schedule during winter with sparse critical announcements layered on.
	TariffWinterCredit TariffVariant = "WINTER_CREDIT"
)

// Variants lists every supported tariff variant.
var Variants = []TariffVariant{TariffFlex, TariffWinterCredit}

// ParseTariffVariant validates a string tariff variant.
func ParseTariffVariant(s string) (TariffVariant, error) {
	switch TariffVariant(s) {
	case TariffFlex:
		return TariffFlex, nil
	case TariffWinterCredit:
		return TariffWinterCredit, nil
	}
	return "", fmt.Errorf("unknown tariff variant: %q", s)
}

// WindowKind identifies the role of a window within a day.
type WindowKind string

const (
	KindMorningPeak   WindowKind = "MORNING_PEAK"
	KindEveningPeak   WindowKind = "EVENING_PEAK"
	KindMorningAnchor WindowKind = "MORNING_ANCHOR"
	KindEveningAnchor WindowKind = "EVENING_ANCHOR"
)

// IsPeak reports whether the kind is a peak (as opposed to an anchor).
func (k WindowKind) IsPeak() bool {
	return k == KindMorningPeak || k == KindEveningPeak
}

// IsMorning reports whether the kind belongs to the AM side of the day.
func (k WindowKind) IsMorning() bool {
	return k == KindMorningPeak || k == KindMorningAnchor
}

// AnchorFor returns the anchor kind associated with a peak kind.
func AnchorFor(peak WindowKind) WindowKind {
	if peak == KindMorningPeak {
		return KindMorningAnchor
	}
	return KindEveningAnchor
}

// WindowSource records where a window came from.
type WindowSource string

const (
	// SourceGenerated means the window came from the fixed recurring
	// schedule.
	SourceGenerated WindowSource = "GENERATED"
	// SourceAnnounced means the window was confirmed by the public feed
	// (or matched an announcement).
	SourceAnnounced WindowSource = "ANNOUNCED"
)

// PeakWindow is a single demand period: a peak or its anchor.
// Start and End are always in the utility's local zone (America/Toronto).
type PeakWindow struct {
	Variant  TariffVariant `json:"variant"`
	Kind     WindowKind    `json:"kind"`
	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
	Critical bool          `json:"critical"`
	Source   WindowSource  `json:"source"`
}

// Key returns the identity key used to compare windows across cycles.
// Two windows with the same key describe the same logical period.
func (w PeakWindow) Key() WindowKey {
	return WindowKey{Variant: w.Variant, Kind: w.Kind, Start: w.Start.Unix()}
}

// WindowKey is the comparable identity of a PeakWindow: the variant, the
// kind, and the start instant. The start is stored as a unix timestamp so
// keys compare equal across *time.Location representations.
type WindowKey struct {
	Variant TariffVariant
	Kind    WindowKind
	Start   int64
}

// AnnouncedWindow is a critical peak announcement from the public feed.
// It carries no kind; the merger classifies it by start clock time.
type AnnouncedWindow struct {
	Variant TariffVariant `json:"variant"`
	Start   time.Time     `json:"start"`
	End     time.Time     `json:"end"`
}

// EventUID derives the stable calendar UID for a window. The same logical
// window always maps to the same UID across resync cycles, which is what
// keeps repeated announcements from creating duplicate records.
func EventUID(contractID string, variant TariffVariant, kind WindowKind, start time.Time) string {
	return fmt.Sprintf("hydroqc_%s_%s_%s_%s", contractID, variant, kind, start.Format(time.RFC3339))
}

// CalendarRecord is the persisted projection of a PeakWindow.
type CalendarRecord struct {
	UID         string        `json:"uid"`
	Variant     TariffVariant `json:"variant"`
	Kind        WindowKind    `json:"kind"`
	Start       time.Time     `json:"start"`
	End         time.Time     `json:"end"`
	Critical    bool          `json:"critical"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	// Signature is a content hash over start, end, criticality and title;
	// records are only rewritten when it changes.
	Signature string `json:"signature"`
	// Generated marks records created from the recurring schedule's key
	// space; only these are eligible for automatic deletion.
	Generated bool      `json:"generated"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ReconcileResult summarizes what one reconcile pass did.
type ReconcileResult struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Deleted   int `json:"deleted"`
	Unchanged int `json:"unchanged"`
}

// Changed reports whether the pass mutated anything.
func (r ReconcileResult) Changed() bool {
	return r.Created > 0 || r.Updated > 0 || r.Deleted > 0
}

// Add accumulates another result into this one.
func (r *ReconcileResult) Add(o ReconcileResult) {
	r.Created += o.Created
	r.Updated += o.Updated
	r.Deleted += o.Deleted
	r.Unchanged += o.Unchanged
}

// SyncNotification is emitted after a successful sync cycle so the sensor
// layer can decide whether to re-derive its state. Counts only, no payload.
type SyncNotification struct {
	Variant TariffVariant `json:"variant"`
	Created int           `json:"created"`
	Updated int           `json:"updated"`
	Deleted int           `json:"deleted"`
}

// SeasonWindow is the span of one winter season (Dec 1 through Mar 31 of
// the following year). Derived, never stored.
type SeasonWindow struct {
	Year  int       `json:"year"` // year containing Dec 1
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether d falls inside the season, inclusive of both
// bounds. Only the calendar date of d matters.
func (s SeasonWindow) Contains(d time.Time) bool {
	y, m, day := d.Date()
	date := time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
	start := time.Date(s.Start.Year(), s.Start.Month(), s.Start.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(s.End.Year(), s.End.Month(), s.End.Day(), 0, 0, 0, 0, time.UTC)
	return !date.Before(start) && !date.After(end)
}
