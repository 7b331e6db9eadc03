package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/lit-af/hydroqc-ha/pkg/calendar"
	"github.com/lit-af/hydroqc-ha/pkg/log"
	"github.com/lit-af/hydroqc-ha/pkg/peaks"
	"github.com/lit-af/hydroqc-ha/pkg/types"
)

// seed fills the calendar store with a mock winter credit schedule so the
// API and dashboards have data to show during development.
func main() {
	os.Setenv("FIRESTORE_EMULATOR_HOST", "127.0.0.1:8087")
	backend := calendar.Configured()
	contractID := lflag.String("contract-id", "123456789", "contract ID to seed events under")
	window := lflag.Duration("seed-window", 7*24*time.Hour, "how far ahead to seed the schedule")
	lflag.Configure()

	ctx := context.Background()

	log.Ctx(ctx).InfoContext(ctx, "seeding mock calendar events")

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	loc := peaks.Location()
	now := time.Now().In(loc)
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	if !peaks.IsWinterSeason(from) {
		// outside the season there is no schedule; seed the upcoming one
		from = peaks.SeasonBounds(from).Start
		log.Ctx(ctx).InfoContext(ctx, "off season, seeding from next season start")
	}
	days := int(window.Hours() / 24)
	if days < 1 {
		days = 1
	}
	to := from.AddDate(0, 0, days-1)

	g := peaks.NewGenerator(peaks.DefaultPreheatDuration)
	windows := g.Generate(ctx, types.TariffWinterCredit, from, to)

	// mark roughly one day in three as a critical evening so the critical
	// rendering shows up too
	criticalDays := map[int]bool{}
	for d := 0; d < days; d++ {
		if rng.Float64() < 0.3 {
			criticalDays[from.AddDate(0, 0, d).Day()] = true
		}
	}

	seeded := 0
	for _, w := range windows {
		if criticalDays[w.Start.In(loc).Day()] && !w.Kind.IsMorning() {
			w.Critical = true
		}
		rec := calendar.RecordFor(*contractID, w)
		if err := backend.Update(ctx, *contractID, rec); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to seed event", "error", err)
			os.Exit(1)
		}
		seeded++
		fmt.Printf("Seeded %s at %s (%s)\n",
			rec.Kind, rec.Start.In(loc).Format("Jan 2 15:04"), rec.Title)
	}

	log.Ctx(ctx).InfoContext(ctx, "seeded mock calendar events successfully")
	fmt.Printf("Seeded %d events for contract %s\n", seeded, *contractID)
}
