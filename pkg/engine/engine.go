// Package engine drives the fetch/merge/reconcile cycle that keeps one
// contract's calendar in sync with the generated schedule and the
// announcement feed.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lit-af/hydroqc-ha/pkg/calendar"
	"github.com/lit-af/hydroqc-ha/pkg/feed"
	"github.com/lit-af/hydroqc-ha/pkg/log"
	"github.com/lit-af/hydroqc-ha/pkg/metrics"
	"github.com/lit-af/hydroqc-ha/pkg/peaks"
	"github.com/lit-af/hydroqc-ha/pkg/types"
)

// State is the engine's position in its sync cycle.
type State string

const (
	StateIdle        State = "idle"
	StateFetching    State = "fetching"
	StateMerging     State = "merging"
	StateReconciling State = "reconciling"
	StateFailed      State = "failed"
)

// horizonDays is how far ahead windows are generated. The schedule is
// regenerated every sync so a narrow horizon keeps the calendar small
// without ever missing a day.
const horizonDays = 2

// Notifier receives a change notification after a sync that mutated the
// calendar.
type Notifier func(types.SyncNotification)

// Engine runs sync cycles for a single tariff variant of a contract. A
// cycle that is triggered while another is in flight is coalesced: it is
// remembered and run once the current cycle finishes, never in parallel.
type Engine struct {
	variant    types.TariffVariant
	contractID string

	generator  *peaks.Generator
	merger     *peaks.Merger
	fetcher    feed.Fetcher
	reconciler *calendar.Reconciler
	notify     Notifier

	// now is replaceable for tests
	now func() time.Time

	mu            sync.Mutex
	state         State
	pending       bool
	pendingFetch  bool
	lastErr       error
	lastSync      time.Time
	feedDown      bool
	lastAnnounced []types.AnnouncedWindow
	manual        map[types.WindowKey]types.AnnouncedWindow
}

// New creates an engine for one contract and tariff variant.
func New(contractID string, variant types.TariffVariant, fetcher feed.Fetcher, backend calendar.Backend, preheat time.Duration, notify Notifier) *Engine {
	g := peaks.NewGenerator(preheat)
	return &Engine{
		variant:    variant,
		contractID: contractID,
		generator:  g,
		merger:     peaks.NewMerger(g),
		fetcher:    fetcher,
		reconciler: calendar.NewReconciler(backend, contractID),
		notify:     notify,
		now:        time.Now,
		state:      StateIdle,
		manual:     make(map[types.WindowKey]types.AnnouncedWindow),
	}
}

// State returns the engine's current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// LastSync returns when the last successful cycle finished and the error
// from the last cycle, if any.
func (e *Engine) LastSync() (time.Time, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSync, e.lastErr
}

// AddManualAnnouncement records a hand-entered critical window and triggers
// an immediate sync. The window flows through the same merge keying as feed
// announcements, so a later real announcement for the same window
// deduplicates onto the same record. Adding an already-known window is a
// no-op.
func (e *Engine) AddManualAnnouncement(ctx context.Context, aw types.AnnouncedWindow) error {
	if aw.Variant != e.variant {
		return fmt.Errorf("announcement variant %s does not match engine variant %s", aw.Variant, e.variant)
	}
	offsets := e.generator.Offsets(e.variant)
	kind, ok := offsets.ClassifyStart(aw.Start)
	if !ok {
		return fmt.Errorf("start time %s matches no peak pattern for %s", aw.Start.Format("15:04"), e.variant)
	}
	key := types.WindowKey{Variant: aw.Variant, Kind: kind, Start: aw.Start.Unix()}

	e.mu.Lock()
	_, exists := e.manual[key]
	if !exists {
		e.manual[key] = aw
	}
	e.mu.Unlock()

	if exists {
		return nil
	}
	return e.Sync(ctx)
}

// Sync runs one fetch/merge/reconcile cycle. If a cycle is already running
// the request is coalesced and Sync returns immediately. A failed engine is
// not terminal; the next Sync retries.
func (e *Engine) Sync(ctx context.Context) error {
	return e.trigger(ctx, true)
}

// Resync reconciles against the announcements already known, without
// hitting the feed. It restores generated events a user deleted by hand and
// keeps the calendar authoritative between feed polls.
func (e *Engine) Resync(ctx context.Context) error {
	return e.trigger(ctx, false)
}

func (e *Engine) trigger(ctx context.Context, fetchFeed bool) error {
	e.mu.Lock()
	if e.state != StateIdle && e.state != StateFailed {
		e.pending = true
		e.pendingFetch = e.pendingFetch || fetchFeed
		e.mu.Unlock()
		log.Ctx(ctx).DebugContext(ctx, "sync already in flight, coalescing",
			slog.String("variant", string(e.variant)))
		return nil
	}
	e.state = StateFetching
	e.mu.Unlock()

	var err error
	for {
		err = e.runCycle(ctx, fetchFeed)

		e.mu.Lock()
		if err != nil {
			e.state = StateFailed
			e.lastErr = err
		} else {
			e.state = StateIdle
			e.lastErr = nil
			e.lastSync = e.now()
		}
		rerun := e.pending
		fetchFeed = e.pendingFetch
		e.pending = false
		e.pendingFetch = false
		if rerun {
			e.state = StateFetching
		}
		e.mu.Unlock()

		if !rerun {
			return err
		}
	}
}

func (e *Engine) runCycle(ctx context.Context, fetchFeed bool) error {
	now := e.now().In(peaks.Location())
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, peaks.Location())
	to := from.AddDate(0, 0, horizonDays)

	generated := e.generator.Generate(ctx, e.variant, from, to.AddDate(0, 0, -1))

	var announced []types.AnnouncedWindow
	if fetchFeed {
		var err error
		announced, err = e.fetcher.Fetch(ctx, e.variant, from, to)
		if err != nil {
			metrics.RecordFeedFetch(string(e.variant), metrics.ResultError)
			// A dead feed means no criticality info, not no schedule.
			// Proceed with the last known announcements and warn once until
			// the feed recovers.
			e.mu.Lock()
			firstFailure := !e.feedDown
			e.feedDown = true
			announced = e.lastAnnounced
			e.mu.Unlock()
			if firstFailure {
				log.Ctx(ctx).WarnContext(ctx, "announcement feed unavailable, syncing without fresh announcements",
					slog.String("variant", string(e.variant)),
					slog.Any("err", err))
			}
		} else {
			metrics.RecordFeedFetch(string(e.variant), metrics.ResultSuccess)
			e.mu.Lock()
			if e.feedDown {
				e.feedDown = false
				log.Ctx(ctx).InfoContext(ctx, "announcement feed recovered",
					slog.String("variant", string(e.variant)))
			}
			e.lastAnnounced = announced
			e.mu.Unlock()
		}
	} else {
		e.mu.Lock()
		announced = e.lastAnnounced
		e.mu.Unlock()
	}
	announced = e.withManual(announced, from, to)

	e.setState(StateMerging)
	merged := e.merger.Merge(ctx, generated, announced)

	critical := 0
	for _, w := range merged {
		if w.Critical && w.Kind.IsPeak() {
			critical++
		}
	}
	metrics.SetAnnouncedPeaks(string(e.variant), critical)

	e.setState(StateReconciling)
	res, err := e.reconciler.Reconcile(ctx, e.variant, merged, calendar.Horizon{From: from, To: to})
	if err != nil {
		metrics.RecordSyncCycle(string(e.variant), metrics.ResultError)
		if errors.Is(err, calendar.ErrStoreUnavailable) {
			log.Ctx(ctx).ErrorContext(ctx, "calendar store unavailable, keeping previous state",
				slog.String("variant", string(e.variant)),
				slog.Any("err", err))
			return err
		}
		return fmt.Errorf("sync cycle for %s: %w", e.variant, err)
	}

	metrics.RecordSyncCycle(string(e.variant), metrics.ResultSuccess)
	if res.Changed() && e.notify != nil {
		e.notify(types.SyncNotification{
			Variant: e.variant,
			Created: res.Created,
			Updated: res.Updated,
			Deleted: res.Deleted,
		})
	}
	return nil
}

// withManual returns announced plus the manual announcements inside the
// horizon, dropping expired ones. The input slice aliases the fetcher's
// cache and lastAnnounced, so it is copied rather than appended to.
func (e *Engine) withManual(announced []types.AnnouncedWindow, from, to time.Time) []types.AnnouncedWindow {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]types.AnnouncedWindow, len(announced), len(announced)+len(e.manual))
	copy(out, announced)
	for key, aw := range e.manual {
		if aw.Start.Before(from) {
			delete(e.manual, key)
			continue
		}
		if !aw.Start.Before(to) {
			continue
		}
		out = append(out, aw)
	}
	return out
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}
