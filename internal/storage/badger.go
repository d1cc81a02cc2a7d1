package storage

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"

	"github.com/seenimoa/tradegate/pkg/models"
)

// BadgerStore keeps status checks in an embedded badgerhold database.
type BadgerStore struct {
	store *badgerhold.Store
	log   *logrus.Logger
}

// OpenBadger opens (or creates) the database at path. With inMemory the
// path is ignored and nothing touches disk.
func OpenBadger(path string, inMemory bool, log *logrus.Logger) (*BadgerStore, error) {
	options := badgerhold.DefaultOptions
	options.Logger = nil
	if inMemory {
		options.InMemory = true
		options.Dir = ""
		options.ValueDir = ""
	} else {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		options.Dir = path
		options.ValueDir = path
	}

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	if log != nil {
		log.WithFields(logrus.Fields{"path": path, "in_memory": inMemory}).Debug("badger store opened")
	}
	return &BadgerStore{store: store, log: log}, nil
}

func (s *BadgerStore) Insert(ctx context.Context, c *models.StatusCheck) error {
	if err := s.store.Insert(c.ID, c); err != nil {
		return fmt.Errorf("failed to insert status check: %w", err)
	}
	return nil
}

func (s *BadgerStore) List(ctx context.Context, limit int) ([]models.StatusCheck, error) {
	query := (&badgerhold.Query{}).SortBy("Timestamp").Limit(clampLimit(limit))

	var checks []models.StatusCheck
	if err := s.store.Find(&checks, query); err != nil {
		return nil, fmt.Errorf("failed to list status checks: %w", err)
	}
	if checks == nil {
		checks = []models.StatusCheck{}
	}
	return checks, nil
}

// Close closes the database connection.
func (s *BadgerStore) Close() error {
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}
