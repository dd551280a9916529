package crawler

import (
	"context"
	"time"
)

// RenderHost loads pages and exposes the rendered document. One page is
// open at a time; Anchors and HTML read the page last reached by Navigate
// or RouteTo.
type RenderHost interface {
	Navigate(ctx context.Context, url string) error
	// Settle blocks for d. It is a fixed delay, not a readiness check.
	Settle(ctx context.Context, d time.Duration) error
	Anchors(ctx context.Context) ([]string, error)
	HTML(ctx context.Context) (string, error)
	// RouteTo calls the in-page client router function with path and
	// returns window.location.href afterwards.
	RouteTo(ctx context.Context, routerFn, path string) (string, error)
	Close() error
}

// Storage is the crawl ledger. It is an audit trail: the crawler logs its
// errors and carries on.
type Storage interface {
	BeginRun(run *RunInfo) (int64, error)
	SavePage(runID int64, page *PageRecord) error
	SavePageError(runID int64, pageErr *PageError) error
	// SnapshotOwner reports which path already produced fileName in the run
	SnapshotOwner(runID int64, fileName string) (path string, found bool, err error)
	FinishRun(runID int64, stats CrawlStats) error
	Close() error
}
