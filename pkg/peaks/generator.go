package peaks

import (
	"context"
	"log/slog"
	"time"

	"github.com/lit-af/hydroqc-ha/pkg/log"
	"github.com/lit-af/hydroqc-ha/pkg/types"
)

// Generator produces the deterministic recurring window set for a tariff
// variant. Calling Generate twice with the same arguments yields an
// identical set.
type Generator struct {
	offsets map[types.TariffVariant]Offsets
}

// NewGenerator creates a Generator with the given pre-heat lead time
// applied to every variant's offsets.
func NewGenerator(preheat time.Duration) *Generator {
	return &Generator{
		offsets: map[types.TariffVariant]Offsets{
			types.TariffFlex:         OffsetsFor(types.TariffFlex, preheat),
			types.TariffWinterCredit: OffsetsFor(types.TariffWinterCredit, preheat),
		},
	}
}

// Offsets returns the schedule offsets for a variant.
func (g *Generator) Offsets(variant types.TariffVariant) Offsets {
	return g.offsets[variant]
}

// Generate emits the recurring windows for every date in [from, to]
// (calendar dates in the local zone, inclusive on both ends).
//
// WINTER_CREDIT gets four windows per in-season date: morning anchor
// 01:00-04:00, morning peak 06:00-10:00, evening anchor 12:00-14:00 and
// evening peak 16:00-20:00, all non-critical. Off-season dates produce
// nothing. FLEX has no recurrence and always yields an empty set.
//
// Callers are expected to request narrow horizons (today and tomorrow);
// criticality can only be known shortly in advance so season-long
// generation is wasted work.
func (g *Generator) Generate(ctx context.Context, variant types.TariffVariant, from, to time.Time) []types.PeakWindow {
	if variant != types.TariffWinterCredit {
		return nil
	}

	from = from.In(hqLocation)
	to = to.In(hqLocation)

	var windows []types.PeakWindow
	offsets := g.offsets[variant]
	for d := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, hqLocation); !d.After(to); d = d.AddDate(0, 0, 1) {
		if !IsWinterSeason(d) {
			continue
		}
		for _, kind := range []types.WindowKind{
			types.KindMorningAnchor,
			types.KindMorningPeak,
			types.KindEveningAnchor,
			types.KindEveningPeak,
		} {
			start, end := offsets.Spans[kind].On(d.Year(), d.Month(), d.Day())
			windows = append(windows, types.PeakWindow{
				Variant: variant,
				Kind:    kind,
				Start:   start,
				End:     end,
				Source:  types.SourceGenerated,
			})
		}
	}

	log.Ctx(ctx).DebugContext(
		ctx,
		"generated recurring schedule",
		slog.String("variant", string(variant)),
		slog.Time("from", from),
		slog.Time("to", to),
		slog.Int("windows", len(windows)),
	)
	return windows
}
