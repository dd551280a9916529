// Package storage keeps the crawl ledger in SQLite: one row per run, per
// processed page and per skipped page.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gsn/DigitalStoreSeo/internal/crawler"
	// SQLite database driver (CGO-free)
	_ "modernc.org/sqlite"
)

// SQLiteStorage implements crawler.Storage using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

var _ crawler.Storage = (*SQLiteStorage)(nil)

// NewSQLiteStorage opens (or creates) the ledger at dbPath
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool - single connection prevents lock conflicts
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	storage := &SQLiteStorage{db: db}

	if err := storage.InitSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// InitSchema creates the database schema
func (s *SQLiteStorage) InitSchema() error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 30000",
	}

	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}

	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginRun records the start of a crawl and returns its id
func (s *SQLiteStorage) BeginRun(run *crawler.RunInfo) (int64, error) {
	started := run.StartedAt
	if started.IsZero() {
		started = time.Now()
	}

	result, err := s.db.Exec(`
		INSERT INTO runs (base_url, site_id, output_dir, recursive, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, run.BaseURL, run.SiteID, run.OutputDir, run.Recursive, started.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to begin run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get run id: %w", err)
	}
	return id, nil
}

// SavePage records a processed page. Saving the same path twice in a run
// replaces the earlier row.
func (s *SQLiteStorage) SavePage(runID int64, page *crawler.PageRecord) error {
	crawledAt := page.CrawledAt
	if crawledAt.IsZero() {
		crawledAt = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO pages (
			run_id, sequence, path, url, snapshot_file, snapshot_size_bytes,
			content_hash, title, meta_robots, canonical_url, anchor_count,
			render_time_ms, crawled_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		runID,
		page.Sequence,
		page.Path,
		page.URL,
		page.SnapshotFile,
		page.SnapshotSize,
		page.ContentHash,
		page.Title,
		page.MetaRobots,
		page.CanonicalURL,
		page.AnchorCount,
		page.RenderTime.Milliseconds(),
		crawledAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save page %s: %w", page.Path, err)
	}
	return nil
}

// SavePageError records a page that was skipped
func (s *SQLiteStorage) SavePageError(runID int64, pageErr *crawler.PageError) error {
	occurred := pageErr.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT INTO page_errors (run_id, path, url, error_type, error_message, attempts, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, runID, pageErr.Path, pageErr.URL, pageErr.ErrorType, pageErr.ErrorMessage, pageErr.Attempts, occurred.UTC())
	if err != nil {
		return fmt.Errorf("failed to save page error: %w", err)
	}
	return nil
}

// SnapshotOwner returns the path that first produced fileName in the run
func (s *SQLiteStorage) SnapshotOwner(runID int64, fileName string) (string, bool, error) {
	var path string
	err := s.db.QueryRow(`
		SELECT path FROM pages
		WHERE run_id = ? AND snapshot_file = ?
		ORDER BY sequence ASC
		LIMIT 1
	`, runID, fileName).Scan(&path)

	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to look up snapshot owner: %w", err)
	}
	return path, true, nil
}

// FinishRun stores the final counters of a run
func (s *SQLiteStorage) FinishRun(runID int64, stats crawler.CrawlStats) error {
	_, err := s.db.Exec(`
		UPDATE runs SET
			status = 'completed',
			finished_at = ?,
			pages_processed = ?,
			pages_discovered = ?,
			error_count = ?,
			rounds = ?,
			duration_ms = ?
		WHERE id = ?
	`,
		time.Now().UTC(),
		stats.PagesProcessed,
		stats.Discovered,
		stats.Errors,
		stats.Rounds,
		stats.Duration.Milliseconds(),
		runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// RunPaths returns the paths processed in a run, in processing order
func (s *SQLiteStorage) RunPaths(runID int64) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT path FROM pages WHERE run_id = ? ORDER BY sequence ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run pages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		paths = append(paths, path)
	}
	return paths, rows.Err()
}
