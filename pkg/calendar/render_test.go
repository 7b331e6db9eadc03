package calendar

import (
	"strings"
	"testing"
	"time"

	"github.com/lit-af/hydroqc-ha/pkg/peaks"
	"github.com/lit-af/hydroqc-ha/pkg/types"
	"github.com/stretchr/testify/assert"
)

const testRenderContract = "123456789"

func TestRecordFor(t *testing.T) {
	loc := peaks.Location()
	w := types.PeakWindow{
		Variant:  types.TariffWinterCredit,
		Kind:     types.KindMorningPeak,
		Start:    time.Date(2025, 12, 15, 6, 0, 0, 0, loc),
		End:      time.Date(2025, 12, 15, 10, 0, 0, 0, loc),
		Critical: false,
		Source:   types.SourceGenerated,
	}
	rec := RecordFor(testRenderContract, w)
	assert.Equal(t, "⚪ Pointe régulière", rec.Title)
	assert.True(t, rec.Generated)
	assert.Contains(t, rec.Description, "Début: 06:00")
	assert.Contains(t, rec.Description, "Fin: 10:00")
	assert.Contains(t, rec.Description, "Tarif: DCPC")
	assert.Contains(t, rec.Description, "Critique: Non")
	assert.True(t, strings.HasSuffix(rec.Description, "ID: "+rec.UID))

	w.Critical = true
	critRec := RecordFor(testRenderContract, w)
	assert.Equal(t, rec.UID, critRec.UID, "criticality must not change the UID")
	assert.Equal(t, "🔴 Pointe critique", critRec.Title)
	assert.NotEqual(t, rec.Signature, critRec.Signature, "criticality must change the signature")

	w.Source = types.SourceAnnounced
	announcedRec := RecordFor(testRenderContract, w)
	assert.False(t, announcedRec.Generated, "announced records must not be eligible for automatic deletion")
}

func TestSignatureStable(t *testing.T) {
	start := time.Date(2025, 12, 15, 16, 0, 0, 0, peaks.Location())
	end := start.Add(4 * time.Hour)
	a := Signature(start, end, true, titleCritical)
	b := Signature(start.UTC(), end.UTC(), true, titleCritical)
	assert.Equal(t, a, b, "signature must not depend on the time zone representation")
	assert.NotEqual(t, a, Signature(start, end.Add(time.Hour), true, titleCritical))
}
