package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/seenimoa/tradegate/pkg/models"
)

// Fixed width so lexical order equals chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `CREATE TABLE IF NOT EXISTS status_checks (
	id          TEXT PRIMARY KEY,
	client_name TEXT NOT NULL,
	created_at  TEXT NOT NULL
)`

const index = `CREATE INDEX IF NOT EXISTS status_checks_created_at ON status_checks (created_at)`

// SQLStore keeps status checks in PostgreSQL or SQLite.
type SQLStore struct {
	db     *sql.DB
	driver string
	log    *logrus.Logger
}

// OpenSQL connects with the given database/sql driver name and creates the
// table if needed.
func OpenSQL(ctx context.Context, driver, dsn string, log *logrus.Logger) (*SQLStore, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if driver == "sqlite" {
		// one connection keeps :memory: databases shared and serializes writers
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", driver, err)
	}
	for _, stmt := range []string{schema, index} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate %s database: %w", driver, err)
		}
	}
	if log != nil {
		log.WithField("driver", driver).Debug("sql store opened")
	}
	return &SQLStore{db: db, driver: driver, log: log}, nil
}

func (s *SQLStore) Insert(ctx context.Context, c *models.StatusCheck) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO status_checks (id, client_name, created_at) VALUES ($1, $2, $3)`,
		c.ID, c.ClientName, c.Timestamp.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to insert status check: %w", err)
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context, limit int) ([]models.StatusCheck, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, client_name, created_at FROM status_checks ORDER BY created_at ASC, id ASC LIMIT $1`,
		clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list status checks: %w", err)
	}
	defer rows.Close()

	checks := []models.StatusCheck{}
	for rows.Next() {
		var c models.StatusCheck
		var ts string
		if err := rows.Scan(&c.ID, &c.ClientName, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan status check: %w", err)
		}
		if c.Timestamp, err = time.Parse(timeLayout, ts); err != nil {
			return nil, fmt.Errorf("bad timestamp %q: %w", ts, err)
		}
		checks = append(checks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list status checks: %w", err)
	}
	return checks, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
