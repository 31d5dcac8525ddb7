// Package app holds the startup wiring shared by the binaries.
package app

import (
	"context"
	"fmt"

	"github.com/yegors/depwatch/internal/adsb"
	"github.com/yegors/depwatch/internal/config"
	"github.com/yegors/depwatch/internal/departure"
	"github.com/yegors/depwatch/internal/events"
	"github.com/yegors/depwatch/internal/station"
	"github.com/yegors/depwatch/internal/storage"
	"github.com/yegors/depwatch/internal/storage/clickhouse"
	"github.com/yegors/depwatch/pkg/logger"
)

// App is a loaded configuration plus its opened resources.
type App struct {
	Config   *config.Config
	Log      *logger.Logger
	Registry *station.Registry
	Store    storage.Gateway

	closers []func() error
}

// LoadConfig resolves the configuration file, applies environment overrides
// and validates the result.
func LoadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadWithFallback(path)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, fmt.Errorf("apply environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// New builds the logger and registry and opens the persistence gateway.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	log, err := logger.New(cfg.Logger())
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	reg, err := cfg.Registry()
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(ctx, cfg.StorageOptions(), log)
	if err != nil {
		return nil, fmt.Errorf("connect to %s storage: %w", cfg.Storage.Driver, err)
	}

	a := &App{Config: cfg, Log: log, Registry: reg, Store: store}
	a.closers = append(a.closers, store.Close)
	return a, nil
}

// OpenArchive connects the ClickHouse archive when it is enabled. It returns
// nil, nil when disabled.
func (a *App) OpenArchive(ctx context.Context) (*clickhouse.Archive, error) {
	if !a.Config.Archive.Enabled {
		return nil, nil
	}
	arc, err := clickhouse.Open(ctx, a.Config.ClickHouse(), a.Log)
	if err != nil {
		return nil, fmt.Errorf("connect to departure archive: %w", err)
	}
	a.closers = append(a.closers, arc.Close)
	return arc, nil
}

// OpenPublisher connects to NATS when a URL is configured. It returns nil,
// nil otherwise.
func (a *App) OpenPublisher() (*events.Publisher, error) {
	if a.Config.Events.NATSURL == "" {
		return nil, nil
	}
	pub, err := events.Connect(a.Config.Events.NATSURL, a.Config.Events.SubjectPrefix, a.Log)
	if err != nil {
		return nil, fmt.Errorf("connect to event bus: %w", err)
	}
	a.closers = append(a.closers, pub.Close)
	return pub, nil
}

// Notifiers opens every configured departure sink.
func (a *App) Notifiers(ctx context.Context) (departure.Notifiers, error) {
	var out departure.Notifiers

	pub, err := a.OpenPublisher()
	if err != nil {
		return nil, err
	}
	if pub != nil {
		out = append(out, pub)
	}

	arc, err := a.OpenArchive(ctx)
	if err != nil {
		return nil, err
	}
	if arc != nil {
		out = append(out, arc)
	}
	return out, nil
}

// Ingestion builds the ingestion loop over the app's registry and store.
func (a *App) Ingestion(notifier departure.Notifier) *departure.Service {
	cfg := a.Config
	return departure.NewService(
		a.Registry,
		adsb.NewClient(cfg.Client(), a.Log),
		departure.NewClassifier(cfg.Filters.ExcludedPrefixes, cfg.Bands()),
		departure.NewDeduplicator(a.Store, cfg.DedupWindow(), cfg.Dedup.Cache),
		notifier,
		cfg.IngestService(),
		a.Log,
	)
}

// Close releases resources in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Log.Warn("Error during shutdown", logger.Error(err))
		}
	}
	a.Log.Sync()
}
