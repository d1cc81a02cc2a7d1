// Package storage persists client status checks. Three backends are
// available: an embedded badgerhold store (default), PostgreSQL and SQLite.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/seenimoa/tradegate/internal/config"
	"github.com/seenimoa/tradegate/pkg/models"
)

// Driver names accepted in storage.driver.
const (
	DriverBadger   = "badger"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DefaultListLimit caps List when the caller passes a non-positive limit.
const DefaultListLimit = 1000

var ErrUnknownDriver = errors.New("storage: unknown driver")

// Store is the status-check repository.
type Store interface {
	// Insert stores c unconditionally.
	Insert(ctx context.Context, c *models.StatusCheck) error
	// List returns at most limit checks, oldest first.
	List(ctx context.Context, limit int) ([]models.StatusCheck, error)
	Close() error
}

// Open connects the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StorageConfig, log *logrus.Logger) (Store, error) {
	switch cfg.Driver {
	case DriverBadger, "":
		return OpenBadger(cfg.Path, cfg.InMemory, log)
	case DriverPostgres:
		return OpenSQL(ctx, "postgres", cfg.DSN, log)
	case DriverSQLite:
		return OpenSQL(ctx, "sqlite", cfg.DSN, log)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > DefaultListLimit {
		return DefaultListLimit
	}
	return limit
}
