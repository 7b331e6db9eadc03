package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lit-af/hydroqc-ha/pkg/calendar"
	"github.com/lit-af/hydroqc-ha/pkg/engine"
	"github.com/lit-af/hydroqc-ha/pkg/feed"
	"github.com/lit-af/hydroqc-ha/pkg/log"
	"github.com/lit-af/hydroqc-ha/pkg/metrics"
	"github.com/lit-af/hydroqc-ha/pkg/peaks"
	"github.com/lit-af/hydroqc-ha/pkg/scheduler"
	"github.com/lit-af/hydroqc-ha/pkg/sensors"
	"github.com/lit-af/hydroqc-ha/pkg/server"
	"github.com/lit-af/hydroqc-ha/pkg/types"

	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"
)

func main() {
	// init packages
	fetcher := feed.Configured()
	backend := calendar.Configured()

	// init server
	srv := server.Configured(backend, nil)

	// contract config
	contractVariants := map[string]string{}
	lflag.JSON(&contractVariants, "contracts", contractVariants, "JSON map of contract ID to tariff variant (FLEX or WINTER_CREDIT)")
	preheat := lflag.Duration("preheat-duration", peaks.DefaultPreheatDuration, "pre-heat duration before each peak")

	// parse flags
	lflag.Configure()

	var level slog.Level
	// lflag automatically sets llog's level, but we need to set the slog level
	switch llog.GetLevel() {
	case llog.DebugLevel:
		level = slog.LevelDebug
	case llog.InfoLevel:
		level = slog.LevelInfo
	case llog.WarnLevel:
		level = slog.LevelWarn
	case llog.ErrorLevel:
		level = slog.LevelError
	default:
		panic(fmt.Errorf("unknown log level: %s", llog.GetLevel().String()))
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	slog.Debug("logger configured", slog.String("level", level.String()))

	metrics.Init()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	defer func() {
		if err := backend.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close calendar backend", "error", err)
		}
	}()

	if len(contractVariants) == 0 {
		log.Ctx(ctx).ErrorContext(ctx, "no contracts configured, set -contracts")
		os.Exit(1)
	}

	notify := func(n types.SyncNotification) {
		log.Ctx(ctx).InfoContext(ctx, "calendar changed",
			slog.String("variant", string(n.Variant)),
			slog.Int("created", n.Created),
			slog.Int("updated", n.Updated),
			slog.Int("deleted", n.Deleted),
		)
	}

	var engines []*engine.Engine
	var contracts []server.Contract
	var contractIDs []string
	for contractID, v := range contractVariants {
		variant, err := types.ParseTariffVariant(v)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "invalid contract variant",
				slog.String("contractID", contractID), "error", err)
			os.Exit(1)
		}
		e := engine.New(contractID, variant, fetcher, backend, *preheat, notify)
		engines = append(engines, e)
		contracts = append(contracts, server.Contract{
			ContractID: contractID,
			Variant:    variant,
			Engine:     e,
			Sensors:    sensors.NewReader(backend, contractID, variant, *preheat),
		})
		contractIDs = append(contractIDs, contractID)
	}
	srv.SetContracts(contracts)

	coord := scheduler.New(engines, nil, contractIDs)
	go coord.Run(ctx)

	// Run will block until context is canceled or error happens
	if err := srv.Run(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", "error", err)
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
}
