// Package scheduler ticks the sync engines. Three independent timers run
// per process: the feed poll, the portal poll, and the calendar re-sync.
// A slow or failing tick on one timer never blocks the others.
package scheduler

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/lit-af/hydroqc-ha/pkg/engine"
	"github.com/lit-af/hydroqc-ha/pkg/log"
	"github.com/lit-af/hydroqc-ha/pkg/peaks"
	"github.com/lit-af/hydroqc-ha/pkg/portal"
)

const (
	feedInterval   = 15 * time.Minute
	portalInterval = time.Hour
	resyncInterval = 15 * time.Minute

	// The feed publishes next-day critical announcements around midday
	// local time, so polling outside this window wastes calls.
	feedWindowOpenMinute  = 10*60 + 30
	feedWindowCloseMinute = 15 * 60
)

// Coordinator owns the timers that drive the engines. Each engine is
// typically one tariff variant of one contract.
type Coordinator struct {
	engines      []*engine.Engine
	portalClient portal.Client
	contractIDs  []string

	// now is replaceable for tests
	now func() time.Time
}

// New creates a Coordinator driving the given engines.
func New(engines []*engine.Engine, portalClient portal.Client, contractIDs []string) *Coordinator {
	return &Coordinator{
		engines:      engines,
		portalClient: portalClient,
		contractIDs:  contractIDs,
		now:          time.Now,
	}
}

// jitter returns a randomized startup offset. Many independently-running
// instances poll the same public feed; spreading first ticks across the
// interval avoids synchronized load.
func jitter(r *rand.Rand) time.Duration {
	return time.Duration(r.Intn(15))*time.Minute + time.Duration(r.Intn(60))*time.Second
}

// inFeedWindow reports whether t falls inside the local-time window where
// feed polls do real work.
func inFeedWindow(t time.Time) bool {
	local := t.In(peaks.Location())
	minute := local.Hour()*60 + local.Minute()
	return minute >= feedWindowOpenMinute && minute < feedWindowCloseMinute
}

// Run starts the three timer loops and blocks until ctx is canceled.
func (c *Coordinator) Run(ctx context.Context) {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	feedOffset := jitter(r)
	portalOffset := jitter(r)
	resyncOffset := jitter(r)

	log.Ctx(ctx).InfoContext(ctx, "coordinator starting",
		slog.Int("engines", len(c.engines)),
		slog.Duration("feedOffset", feedOffset),
		slog.Duration("portalOffset", portalOffset),
		slog.Duration("resyncOffset", resyncOffset),
	)

	// run every engine once at startup so the calendar and sensors are
	// authoritative before the first timer fires
	c.syncAll(ctx)

	var wg sync.WaitGroup
	wg.Add(3)
	go c.loop(ctx, &wg, "feed", feedOffset, feedInterval, c.feedTick)
	go c.loop(ctx, &wg, "portal", portalOffset, portalInterval, c.portalTick)
	go c.loop(ctx, &wg, "resync", resyncOffset, resyncInterval, c.resyncTick)
	wg.Wait()
}

func (c *Coordinator) loop(ctx context.Context, wg *sync.WaitGroup, name string, offset, interval time.Duration, tick func(context.Context)) {
	defer wg.Done()

	select {
	case <-ctx.Done():
		return
	case <-time.After(offset):
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		tick(ctx)
		select {
		case <-ctx.Done():
			log.Ctx(ctx).DebugContext(ctx, "timer loop stopping", slog.String("loop", name))
			return
		case <-ticker.C:
		}
	}
}

func (c *Coordinator) syncAll(ctx context.Context) {
	for _, e := range c.engines {
		if err := e.Sync(ctx); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "startup sync failed", slog.Any("err", err))
		}
	}
}

// feedTick syncs with a feed fetch, but only inside the active window.
func (c *Coordinator) feedTick(ctx context.Context) {
	if !inFeedWindow(c.now()) {
		log.Ctx(ctx).DebugContext(ctx, "feed poll outside active window, skipping")
		return
	}
	c.syncAll(ctx)
}

// portalTick refreshes the account snapshot for every contract.
func (c *Coordinator) portalTick(ctx context.Context) {
	if c.portalClient == nil {
		return
	}
	for _, contractID := range c.contractIDs {
		snap, err := c.portalClient.AccountSnapshot(ctx, contractID)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "portal poll failed",
				slog.String("contractID", contractID),
				slog.Any("err", err))
			continue
		}
		log.Ctx(ctx).DebugContext(ctx, "portal poll completed",
			slog.String("contractID", contractID),
			slog.Float64("winterCreditCad", snap.WinterCreditCAD))
	}
}

// resyncTick reconciles from known announcements without touching the
// feed. It runs unconditionally so hand-edited calendars converge back
// within one interval.
func (c *Coordinator) resyncTick(ctx context.Context) {
	for _, e := range c.engines {
		if err := e.Resync(ctx); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "calendar resync failed", slog.Any("err", err))
		}
	}
}
