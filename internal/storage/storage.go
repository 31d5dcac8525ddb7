// Package storage selects the persistence gateway backing the flight log and
// the schedule table.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yegors/depwatch/internal/departure"
	"github.com/yegors/depwatch/internal/schedule"
	"github.com/yegors/depwatch/internal/storage/postgres"
	"github.com/yegors/depwatch/internal/storage/sqlite"
	"github.com/yegors/depwatch/pkg/logger"
)

// Drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Gateway is the full persistence surface shared by every driver.
type Gateway interface {
	departure.Store
	schedule.Store

	ListDepartures(ctx context.Context, f departure.Filter) ([]departure.Record, error)
	ListSchedule(ctx context.Context, f schedule.Filter) ([]schedule.Entry, error)
	Ping(ctx context.Context) error
	Close() error
}

// Options chooses and configures a driver.
type Options struct {
	Driver     string
	SQLitePath string
	Postgres   postgres.Config
}

// Open connects to the configured driver. Any failure here is a connection
// error and nothing has been read or written yet.
func Open(ctx context.Context, opts Options, log *logger.Logger) (Gateway, error) {
	switch opts.Driver {
	case DriverSQLite, "":
		if dir := filepath.Dir(opts.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory %s: %w", dir, err)
			}
		}
		s, err := sqlite.New(opts.SQLitePath, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverPostgres:
		s, err := postgres.Open(ctx, opts.Postgres, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", opts.Driver)
	}
}
