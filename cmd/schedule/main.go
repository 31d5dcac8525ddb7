package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/yegors/depwatch/internal/app"
	"github.com/yegors/depwatch/internal/export"
	"github.com/yegors/depwatch/internal/schedule"
	"github.com/yegors/depwatch/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	period := flag.String("period", "", "Comma-separated YYYY-MM periods to recompute (default: all)")
	xlsxPath := flag.String("xlsx", "", "Write the resulting schedule to this XLSX file")
	backfill := flag.Bool("backfill-archive", false, "Copy the flight log into the ClickHouse archive")
	flag.Parse()

	cfg, err := app.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := run(ctx, a, splitPeriods(*period), *xlsxPath, *backfill); err != nil {
		a.Log.Error("Schedule run failed", logger.Error(err))
		a.Close()
		os.Exit(1)
	}
	a.Close()
}

func splitPeriods(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func run(ctx context.Context, a *app.App, periods []string, xlsxPath string, backfill bool) error {
	agg := schedule.NewAggregator(a.Store, a.Log)
	if _, err := agg.Run(ctx, periods...); err != nil {
		return err
	}

	if backfill {
		if err := backfillArchive(ctx, a, periods); err != nil {
			return err
		}
	}

	if xlsxPath == "" {
		return nil
	}

	var entries []schedule.Entry
	if len(periods) == 0 {
		all, err := a.Store.ListSchedule(ctx, schedule.Filter{})
		if err != nil {
			return err
		}
		entries = all
	}
	for _, p := range periods {
		rows, err := a.Store.ListSchedule(ctx, schedule.Filter{Period: p})
		if err != nil {
			return err
		}
		entries = append(entries, rows...)
	}

	if err := export.SaveSchedule(xlsxPath, entries); err != nil {
		return err
	}
	a.Log.Info("Schedule exported",
		logger.String("path", xlsxPath),
		logger.Int("rows", len(entries)))
	return nil
}

func backfillArchive(ctx context.Context, a *app.App, periods []string) error {
	arc, err := a.OpenArchive(ctx)
	if err != nil {
		return err
	}
	if arc == nil {
		return fmt.Errorf("archive is not enabled in configuration")
	}

	records, err := a.Store.DepartureHistory(ctx, periods)
	if err != nil {
		return err
	}
	n, err := arc.Backfill(ctx, records)
	if err != nil {
		return err
	}

	counts, err := arc.CountByOrigin(ctx, "")
	if err != nil {
		return err
	}
	a.Log.Info("Archive backfilled",
		logger.Int("rows", n),
		logger.Any("by_origin", counts))
	return nil
}
