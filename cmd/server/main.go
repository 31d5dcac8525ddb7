package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yegors/depwatch/internal/api"
	"github.com/yegors/depwatch/internal/app"
	"github.com/yegors/depwatch/internal/departure"
	"github.com/yegors/depwatch/internal/schedule"
	"github.com/yegors/depwatch/internal/websocket"
	"github.com/yegors/depwatch/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	flag.Parse()

	cfg, err := app.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()
	log := a.Log

	log.Info("Starting depwatch server",
		logger.String("version", Version),
		logger.String("storage", cfg.Storage.Driver),
		logger.Int("stations", a.Registry.Len()))

	// Live feed
	wsServer := websocket.NewServer(log)
	go wsServer.Run(ctx)

	sinks, err := a.Notifiers(ctx)
	if err != nil {
		log.Error("Failed to open departure sinks", logger.Error(err))
		a.Close()
		os.Exit(1)
	}
	notifiers := append(departure.Notifiers{wsServer}, sinks...)

	// Ingestion loop
	ingest := a.Ingestion(notifiers)
	ingest.OnCycle(wsServer.CycleCompleted)

	// Schedule aggregation loop
	sched := schedule.NewService(schedule.NewAggregator(a.Store, log), cfg.ScheduleInterval(), log)
	sched.OnReport(wsServer.ScheduleUpdated)

	if err := ingest.Start(ctx); err != nil {
		log.Error("Failed to start ingestion service", logger.Error(err))
		a.Close()
		os.Exit(1)
	}
	if err := sched.Start(ctx); err != nil {
		log.Error("Failed to start schedule service", logger.Error(err))
		a.Close()
		os.Exit(1)
	}

	handler := api.NewHandler(a.Store, a.Registry, ingest, sched, log)
	router := api.NewRouter(handler, http.HandlerFunc(wsServer.HandleConnection), cfg.Server.CORSAllowedOrigins, log)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-sigCh:
		log.Info("Shutting down server...", logger.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("HTTP server error", logger.String("addr", server.Addr), logger.Error(err))
		exitCode = 1
	}

	// Stop background services first
	ingest.Stop()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", logger.Error(err))
	}

	cancel()
	log.Info("Server fully stopped")

	if exitCode != 0 {
		a.Close()
		os.Exit(exitCode)
	}
}
