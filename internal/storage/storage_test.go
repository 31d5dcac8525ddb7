package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/yegors/depwatch/pkg/logger"
)

func TestOpenSQLiteCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data", "depwatch.db")

	gw, err := Open(context.Background(), Options{Driver: DriverSQLite, SQLitePath: path}, logger.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer gw.Close()

	if err := gw.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), Options{Driver: "mysql"}, logger.NewNop()); err == nil {
		t.Error("expected error for unknown driver")
	}
}
