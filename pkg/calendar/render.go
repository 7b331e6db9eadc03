package calendar

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/lit-af/hydroqc-ha/pkg/peaks"
	"github.com/lit-af/hydroqc-ha/pkg/types"
)

// French-only event templates, standardized so downstream automations can
// match on them.
const (
	titleCritical = "🔴 Pointe critique"
	titleRegular  = "⚪ Pointe régulière"
	titleAnchor   = "⚓ Période d'ancrage"

	descriptionTemplate = "Réduisez votre consommation d'électricité pendant cette période.\n\n" +
		"Début: %s\n" +
		"Fin: %s\n\n" +
		"--- Métadonnées ---\n" +
		"Tarif: %s\n" +
		"Critique: %s\n" +
		"ID: %s"
)

// rateCodes maps tariff variants to the Hydro-Québec rate codes shown in
// event descriptions.
var rateCodes = map[types.TariffVariant]string{
	types.TariffWinterCredit: "DCPC",
	types.TariffFlex:         "DPC",
}

// Title returns the event title for a window.
func Title(w types.PeakWindow) string {
	if !w.Kind.IsPeak() {
		return titleAnchor
	}
	if w.Critical {
		return titleCritical
	}
	return titleRegular
}

// Description renders the French event body. The UID appears on the last
// line so events remain attributable even in calendars that drop custom
// fields.
func Description(uid string, w types.PeakWindow) string {
	critical := "Non"
	if w.Critical {
		critical = "Oui"
	}
	return fmt.Sprintf(descriptionTemplate,
		w.Start.In(peaks.Location()).Format("15:04"),
		w.End.In(peaks.Location()).Format("15:04"),
		rateCodes[w.Variant],
		critical,
		uid,
	)
}

// Signature returns a hex-encoded SHA-256 over the fields that describe the
// event's visible content. Two records with equal signatures need no update.
func Signature(start, end time.Time, critical bool, title string) string {
	h := sha256.New()
	h.Write([]byte(start.UTC().Format(time.RFC3339)))
	h.Write([]byte{'|'})
	h.Write([]byte(end.UTC().Format(time.RFC3339)))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.FormatBool(critical)))
	h.Write([]byte{'|'})
	h.Write([]byte(title))
	return hex.EncodeToString(h.Sum(nil))
}

// RecordFor builds the calendar record a window should be stored as. The
// UID is derived from the window identity alone so repeated syncs and
// repeated announcements of the same window always land on the same record.
// Only records of generated provenance are marked eligible for automatic
// deletion; announced-only records (all of FLEX) must survive a withdrawn
// announcement.
func RecordFor(contractID string, w types.PeakWindow) types.CalendarRecord {
	uid := types.EventUID(contractID, w.Variant, w.Kind, w.Start)
	title := Title(w)
	now := time.Now().In(peaks.Location())
	return types.CalendarRecord{
		UID:         uid,
		Variant:     w.Variant,
		Kind:        w.Kind,
		Start:       w.Start,
		End:         w.End,
		Critical:    w.Critical,
		Title:       title,
		Description: Description(uid, w),
		Signature:   Signature(w.Start, w.End, w.Critical, title),
		Generated:   w.Source == types.SourceGenerated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
