// Package storage persists run summaries into an optional relational
// database so traffic volume can be tracked across runs.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	pq "github.com/lib/pq"

	"github.com/Lxi0707/Typecho-play/internal/config"
	"github.com/Lxi0707/Typecho-play/pkg/types"
)

// HistoryStore records completed runs.
type HistoryStore interface {
	SaveRun(ctx context.Context, summary types.RunSummary) error
	Close() error
}

// SQLHistory implements HistoryStore over database/sql.
type SQLHistory struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS visit_runs (
	run_id      TEXT PRIMARY KEY,
	site        TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	attempted   INTEGER NOT NULL,
	succeeded   INTEGER NOT NULL,
	failed      INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS visit_run_urls (
	run_id     TEXT NOT NULL REFERENCES visit_runs(run_id) ON DELETE CASCADE,
	url        TEXT NOT NULL,
	partition  TEXT NOT NULL,
	succeeded  INTEGER NOT NULL,
	failed     INTEGER NOT NULL,
	elapsed_ms BIGINT NOT NULL,
	PRIMARY KEY (run_id, url)
);`

// NewSQLHistory opens the history database and ensures its schema.
func NewSQLHistory(cfg config.SQLConfig) (*SQLHistory, error) {
	if !cfg.Enabled() {
		return nil, errors.New("sql config missing driver or dsn")
	}
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open sql connection: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime.Duration > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime.Duration)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sql connection: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure history schema: %w", err)
	}
	return &SQLHistory{db: db}, nil
}

// SaveRun records the summary and its per-URL tallies in one transaction.
// A duplicate run id is treated as already saved, not an error.
func (h *SQLHistory) SaveRun(ctx context.Context, summary types.RunSummary) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO visit_runs (run_id, site, started_at, finished_at, attempted, succeeded, failed)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		summary.RunID, summary.Site, summary.StartedAt, summary.FinishedAt,
		summary.Attempted, summary.Succeeded, summary.Failed,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("insert run: %w", err)
	}

	for rawURL, tally := range summary.PerURL {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO visit_run_urls (run_id, url, partition, succeeded, failed, elapsed_ms)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			summary.RunID, rawURL, string(tally.Partition),
			tally.Succeeded, tally.Failed, tally.Elapsed.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("insert run url %q: %w", rawURL, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit history tx: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (h *SQLHistory) Close() error {
	if h == nil || h.db == nil {
		return nil
	}
	return h.db.Close()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
