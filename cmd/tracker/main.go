package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/yegors/depwatch/internal/app"
	"github.com/yegors/depwatch/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	loop := flag.Bool("loop", false, "Keep running cycles on the configured interval")
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

	if err := run(ctx, a, *loop); err != nil {
		a.Log.Error("Tracker stopped", logger.Error(err))
		a.Close()
		os.Exit(1)
	}
	a.Close()
}

func run(ctx context.Context, a *app.App, loop bool) error {
	notifiers, err := a.Notifiers(ctx)
	if err != nil {
		return err
	}
	svc := a.Ingestion(notifiers)

	a.Log.Info("Tracking departures",
		logger.Int("stations", a.Registry.Len()),
		logger.Bool("loop", loop))

	if !loop {
		report, err := svc.RunCycle(ctx)
		if err != nil {
			return fmt.Errorf("cycle interrupted after %d stations: %w", report.StationsAttempted, err)
		}
		return nil
	}

	if err := svc.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	svc.Stop()
	return nil
}
