package storage

const schemaSQL = `
-- One row per crawl run
CREATE TABLE IF NOT EXISTS runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    base_url TEXT NOT NULL,
    site_id TEXT,
    output_dir TEXT NOT NULL,
    recursive INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'running' CHECK (status IN ('running', 'completed')),
    started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    finished_at DATETIME,
    pages_processed INTEGER DEFAULT 0,
    pages_discovered INTEGER DEFAULT 0,
    error_count INTEGER DEFAULT 0,
    rounds INTEGER DEFAULT 0,
    duration_ms INTEGER
);

-- Processed pages, in processing order
CREATE TABLE IF NOT EXISTS pages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    sequence INTEGER NOT NULL,
    path TEXT NOT NULL,
    url TEXT NOT NULL,
    snapshot_file TEXT NOT NULL,
    snapshot_size_bytes INTEGER,
    content_hash TEXT,
    title TEXT,
    meta_robots TEXT,
    canonical_url TEXT,
    anchor_count INTEGER,
    render_time_ms INTEGER,
    crawled_at DATETIME NOT NULL,
    UNIQUE(run_id, path)
);

CREATE INDEX IF NOT EXISTS idx_pages_run_sequence ON pages(run_id, sequence);
CREATE INDEX IF NOT EXISTS idx_pages_snapshot ON pages(run_id, snapshot_file);
CREATE INDEX IF NOT EXISTS idx_pages_content_hash ON pages(content_hash) WHERE content_hash IS NOT NULL;

-- Pages that were skipped after failing to render
CREATE TABLE IF NOT EXISTS page_errors (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    path TEXT NOT NULL,
    url TEXT NOT NULL,
    error_type TEXT NOT NULL,
    error_message TEXT,
    attempts INTEGER DEFAULT 1,
    occurred_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_errors_run ON page_errors(run_id);
CREATE INDEX IF NOT EXISTS idx_errors_type ON page_errors(error_type);

-- Latest run summary per base URL
CREATE VIEW IF NOT EXISTS latest_runs AS
SELECT r.*
FROM runs r
WHERE r.id = (SELECT MAX(id) FROM runs WHERE base_url = r.base_url);
`
