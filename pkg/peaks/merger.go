package peaks

import (
	"context"
	"log/slog"
	"sort"

	"github.com/lit-af/hydroqc-ha/pkg/log"
	"github.com/lit-af/hydroqc-ha/pkg/types"
)

// Merger combines generated schedule windows with announced critical
// windows into a single ordered, de-duplicated event set.
type Merger struct {
	generator *Generator
}

// NewMerger creates a Merger sharing the generator's offsets.
func NewMerger(g *Generator) *Merger {
	return &Merger{generator: g}
}

// Merge folds announcements into the generated set.
//
// Each announcement is classified as a morning or evening peak by its start
// clock time; announcements matching neither pattern are logged and dropped
// since the feed is untrusted. A classified announcement whose identity key
// matches a generated peak flips that peak to critical with ANNOUNCED
// provenance; one with no generated counterpart (FLEX, or a WINTER_CREDIT
// date outside the generation horizon) becomes a new critical window.
//
// Anchors always follow their peak's criticality, in both directions: the
// anchor set is rederived from the merged peaks, so a withdrawn
// announcement also clears the matching anchor on the next merge.
func (m *Merger) Merge(ctx context.Context, generated []types.PeakWindow, announced []types.AnnouncedWindow) []types.PeakWindow {
	merged := make(map[types.WindowKey]types.PeakWindow, len(generated)+len(announced))
	for _, w := range generated {
		merged[w.Key()] = w
	}

	var rejected int
	for _, a := range announced {
		offsets := m.generator.Offsets(a.Variant)
		kind, ok := offsets.ClassifyStart(a.Start)
		if !ok {
			rejected++
			log.Ctx(ctx).WarnContext(
				ctx,
				"announced window matches no peak pattern, rejecting",
				slog.String("variant", string(a.Variant)),
				slog.Time("start", a.Start),
				slog.Time("end", a.End),
			)
			continue
		}

		w := types.PeakWindow{
			Variant:  a.Variant,
			Kind:     kind,
			Start:    a.Start.In(hqLocation),
			End:      a.End.In(hqLocation),
			Critical: true,
			Source:   types.SourceAnnounced,
		}
		if existing, exists := merged[w.Key()]; exists {
			// keep the generated shape, confirm criticality externally
			existing.Critical = true
			existing.Source = types.SourceAnnounced
			merged[existing.Key()] = existing
		} else {
			merged[w.Key()] = w
		}
	}

	// Rebuild anchors from their peaks so criticality inheritance holds in
	// both directions, and so announced-only peaks still get an anchor.
	peaksOnly := make([]types.PeakWindow, 0, len(merged))
	for _, w := range merged {
		if w.Kind.IsPeak() {
			peaksOnly = append(peaksOnly, w)
		}
	}
	for _, w := range peaksOnly {
		offsets := m.generator.Offsets(w.Variant)
		anchor, ok := offsets.AnchorWindow(w)
		if !ok {
			continue
		}
		merged[anchor.Key()] = anchor
	}

	out := make([]types.PeakWindow, 0, len(merged))
	for _, w := range merged {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		// identical starts should not happen for one variant; prefer the
		// critical window first, then order deterministically
		if out[i].Critical != out[j].Critical {
			return out[i].Critical
		}
		return out[i].Kind < out[j].Kind
	})

	log.Ctx(ctx).DebugContext(
		ctx,
		"merged peak windows",
		slog.Int("generated", len(generated)),
		slog.Int("announced", len(announced)),
		slog.Int("rejected", rejected),
		slog.Int("merged", len(out)),
	)
	return out
}
