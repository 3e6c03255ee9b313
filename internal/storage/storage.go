// Package storage persists committed cookie records and per-site crawl
// results in a SQLite database. The store is append-only: the crawler
// writes, report tooling reads the file afterwards with whatever client
// it likes.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/consent-audit/crawl/pkg/models"
)

// DefaultFilename is the database file created inside the output
// directory when no explicit path is given.
const DefaultFilename = "cookiedat.sqlite"

const schema = `
CREATE TABLE IF NOT EXISTS consent_data (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	site_url TEXT NOT NULL,
	name TEXT,
	domain TEXT,
	path TEXT NOT NULL DEFAULT '/',
	cat_id INTEGER,
	cat_name TEXT,
	purpose TEXT,
	type TEXT,
	crawled_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_consent_site ON consent_data(site_url);
CREATE INDEX IF NOT EXISTS idx_consent_name ON consent_data(name);

CREATE TABLE IF NOT EXISTS crawl_results (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	site_url TEXT NOT NULL,
	outcome INTEGER NOT NULL,
	outcome_name TEXT NOT NULL,
	diagnostic TEXT,
	crawled_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_results_site ON crawl_results(site_url);
CREATE INDEX IF NOT EXISTS idx_results_outcome ON crawl_results(outcome);
`

// Store wraps the SQLite connection. SQLite supports a single writer, so
// the pool is pinned to one connection and callers serialize commits.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database at path and applies the schema.
// The parent directory is created when missing.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CommitRecords writes the committed records of one successful crawl in a
// single transaction. A record carrying several category labels persists
// one row per label.
func (s *Store) CommitRecords(ctx context.Context, records []*models.CookieRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO consent_data (site_url, name, domain, path, cat_id, cat_name, purpose, type)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		labels := rec.Labels
		if len(labels) == 0 {
			labels = []models.CategoryLabel{{Category: models.CategoryUnknown}}
		}
		for _, label := range labels {
			if _, err := stmt.ExecContext(ctx,
				rec.SiteURL,
				rec.Name,
				rec.Domain,
				rec.Path,
				int(label.Category),
				label.Name,
				rec.Purpose,
				rec.Type,
			); err != nil {
				return fmt.Errorf("failed to insert consent record: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit consent records: %w", err)
	}
	return nil
}

// RecordResult appends the terminal outcome of one crawled site.
func (s *Store) RecordResult(ctx context.Context, session *models.CrawlSession) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO crawl_results (site_url, outcome, outcome_name, diagnostic)
	VALUES (?, ?, ?, ?)
	`,
		session.SiteURL,
		int(session.Outcome),
		session.Outcome.String(),
		session.Diagnostic,
	)
	if err != nil {
		return fmt.Errorf("failed to insert crawl result: %w", err)
	}
	return nil
}
