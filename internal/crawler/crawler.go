// Package crawler drives the snapshot crawl: it renders pages through a
// RenderHost, discovers same-site links, and persists a sanitized snapshot
// and a sitemap entry for every page it processes.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"

	"github.com/gsn/DigitalStoreSeo/internal/config"
	"github.com/gsn/DigitalStoreSeo/internal/parser"
	"github.com/gsn/DigitalStoreSeo/internal/sanitizer"
	"github.com/gsn/DigitalStoreSeo/internal/sitemap"
	"github.com/gsn/DigitalStoreSeo/internal/snapshot"
)

// rootPath is the path page zero is recorded under
const rootPath = "/"

// Crawler runs one crawl. Pages are handled one at a time in a single
// control flow, so sitemap order is processing order.
type Crawler struct {
	config  *config.CrawlConfig
	host    RenderHost
	storage Storage
	fs      afero.Fs
	out     io.Writer
	robots  *RobotsChecker

	filter      *URLFilter
	frontier    *Frontier
	pipeline    *sanitizer.Pipeline
	snapshots   *snapshot.Writer
	sitemap     *sitemap.Writer
	rateLimiter *RateLimiter

	runID             int64
	processed         map[string]struct{}
	routerUnavailable bool

	stateMu sync.RWMutex
	state   State

	stats      CrawlStats
	statsMutex sync.RWMutex
}

// Option customizes a Crawler
type Option func(*Crawler)

// WithFs sets the filesystem snapshots and sitemaps are written to
func WithFs(fs afero.Fs) Option {
	return func(c *Crawler) { c.fs = fs }
}

// WithOutput sets where progress lines are printed
func WithOutput(w io.Writer) Option {
	return func(c *Crawler) { c.out = w }
}

// WithRobots sets the robots.txt checker used when RespectRobots is on
func WithRobots(r *RobotsChecker) Option {
	return func(c *Crawler) { c.robots = r }
}

// NewCrawler wires the crawl components from cfg. cfg must have been
// validated.
func NewCrawler(cfg *config.CrawlConfig, host RenderHost, storage Storage, opts ...Option) (*Crawler, error) {
	c := &Crawler{
		config:    cfg,
		host:      host,
		storage:   storage,
		fs:        afero.NewOsFs(),
		out:       os.Stdout,
		processed: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	filter, err := NewURLFilter(FilterConfig{
		ExcludedQuery:        cfg.ExcludedQuery,
		DisallowedExtensions: cfg.DisallowedExtensions,
		ExcludePatterns:      cfg.ExcludePatterns,
	})
	if err != nil {
		return nil, err
	}
	c.filter = filter

	replacements := make([]sanitizer.Replacement, 0, len(cfg.ReplaceStrings))
	for _, r := range cfg.ReplaceStrings {
		replacements = append(replacements, sanitizer.Replacement{Pattern: r.Pattern, Replacement: r.Replacement})
	}
	pipeline, err := sanitizer.New(sanitizer.Options{
		RemoveScripts:              cfg.Transforms.RemoveScripts,
		RemoveStyles:               cfg.Transforms.RemoveStyles,
		RemoveLinkTags:             cfg.Transforms.RemoveLinkTags,
		RemoveMetaTags:             cfg.Transforms.RemoveMetaTags,
		RemoveIframes:              cfg.Transforms.RemoveIframes,
		AbsolutizeProtocolRelative: cfg.Transforms.AbsolutizeProtocolRelative,
		CollapseHead:               cfg.Transforms.CollapseHead,
		StripAnalytics:             cfg.Transforms.StripAnalytics,
		Replacements:               replacements,
	})
	if err != nil {
		return nil, err
	}
	c.pipeline = pipeline

	dir := cfg.SnapshotDir()
	c.snapshots = snapshot.NewWriter(c.fs, dir, cfg.InitialQuery, cfg.FileNamePrefix)
	c.sitemap = sitemap.NewWriter(c.fs, dir)
	c.frontier = NewFrontier(cfg.Seeds)
	c.rateLimiter = NewRateLimiter(cfg.RequestDelay)

	if cfg.RespectRobots && c.robots == nil {
		c.robots = NewRobotsChecker(NewHTTPClient(cfg.UserAgent, cfg.NavigationTimeout), cfg.UserAgent)
	}
	if !cfg.RespectRobots {
		c.robots = nil
	}

	return c, nil
}

// Run crawls page zero, the seeds and, in recursive mode, every later
// round until the frontier is empty. Render failures skip the page, except
// for page zero; write failures end the run.
func (c *Crawler) Run(ctx context.Context) error {
	c.setState(StateInit)
	c.statsMutex.Lock()
	c.stats = CrawlStats{StartTime: time.Now()}
	c.statsMutex.Unlock()

	if err := c.snapshots.Reset(); err != nil {
		return err
	}
	if err := c.sitemap.Open(); err != nil {
		return err
	}
	sitemapOpen := true
	defer func() {
		if sitemapOpen {
			_ = c.sitemap.Close()
		}
	}()

	c.beginRun()
	c.loadRobots(ctx)

	slog.Info("Starting crawl",
		"base_url", c.config.BaseURL,
		"output", c.snapshots.Dir(),
		"seeds", len(c.frontier.Seeds()),
		"recursive", c.config.Recursive,
		"steps", len(c.pipeline.Steps()))

	firstURL := c.config.FirstURL()
	fmt.Fprintf(c.out, "\ncontacting: %s\n", firstURL)

	c.setState(StateSeeding)
	if err := c.processFirstPage(ctx); err != nil {
		return err
	}

	round := c.frontier.Seeds()
	for len(round) > 0 {
		c.statsMutex.Lock()
		c.stats.Rounds++
		rounds := c.stats.Rounds
		c.statsMutex.Unlock()
		slog.Debug("Starting round", "round", rounds, "paths", len(round))

		for _, path := range round {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := c.visit(ctx, path); err != nil {
				return err
			}
		}

		c.setState(StateRoundComplete)
		if !c.config.Recursive {
			break
		}
		round = c.frontier.NextRound()
	}

	c.setState(StateDone)
	sitemapOpen = false
	if err := c.sitemap.Close(); err != nil {
		return err
	}
	c.finishRun()

	stats := c.GetStats()
	slog.Info("Crawl completed",
		"pages", stats.PagesProcessed,
		"errors", stats.Errors,
		"discovered", stats.Discovered,
		"rounds", stats.Rounds,
		"duration", stats.Duration)
	fmt.Fprintln(c.out, "\nDone!")
	return nil
}

// State returns the current state of the crawl
func (c *Crawler) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// GetStats returns current crawling statistics
func (c *Crawler) GetStats() CrawlStats {
	c.statsMutex.RLock()
	stats := c.stats
	c.statsMutex.RUnlock()

	stats.Discovered = c.frontier.DiscoveredCount()
	if !stats.StartTime.IsZero() {
		stats.Duration = time.Since(stats.StartTime)
	}
	return stats
}

func (c *Crawler) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// processFirstPage loads base URL + initial query, waits the longer first
// page delay and persists it as "/" together with index.html. Its links are
// not extracted.
func (c *Crawler) processFirstPage(ctx context.Context) error {
	c.processed[rootPath] = struct{}{}
	c.frontier.Mark(rootPath)

	start := time.Now()
	page, attempts, err := c.render(ctx, rootPath, true)
	if err != nil {
		c.recordFailure(rootPath, c.config.FirstURL(), attempts, err)
		return fmt.Errorf("load first page %s: %w", c.config.FirstURL(), err)
	}
	slog.Debug("First contact made", "url", c.config.FirstURL())

	return c.persist(rootPath, page.html, true, time.Since(start), 0)
}

// visit processes one frontier path
func (c *Crawler) visit(ctx context.Context, path string) error {
	if _, done := c.processed[path]; done {
		slog.Debug("Skipping already processed path", "path", path)
		return nil
	}
	c.processed[path] = struct{}{}
	c.frontier.Mark(path)

	if c.robots != nil && !c.robots.IsAllowed(path) {
		slog.Info("Path disallowed by robots.txt", "path", path)
		return nil
	}

	start := time.Now()
	page, attempts, err := c.render(ctx, path, false)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		c.recordFailure(path, c.config.BaseURL+path, attempts, err)
		return nil
	}

	c.discover(path, page.anchors)
	return c.persist(path, page.html, false, time.Since(start), len(page.anchors))
}

type renderedPage struct {
	html    string
	anchors []string
}

// render retries a failed render RenderRetries times
func (c *Crawler) render(ctx context.Context, path string, first bool) (*renderedPage, int, error) {
	attempts := c.config.RenderRetries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		page, err := c.renderOnce(ctx, path, first)
		if err == nil {
			return page, attempt, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, attempt, err
		}
		slog.Debug("Render attempt failed", "path", path, "attempt", attempt, "error", err)
	}
	return nil, attempts, lastErr
}

func (c *Crawler) renderOnce(ctx context.Context, path string, first bool) (*renderedPage, error) {
	c.setState(StateRendering)
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	wait := c.config.PageWait
	if first {
		wait = c.config.FirstPageWait
		if err := c.host.Navigate(ctx, c.config.FirstURL()); err != nil {
			return nil, err
		}
	} else if err := c.reach(ctx, path); err != nil {
		return nil, err
	}

	c.setState(StateSettling)
	if err := c.host.Settle(ctx, wait); err != nil {
		return nil, err
	}

	page := &renderedPage{}
	if !first {
		c.setState(StateExtracting)
		anchors, err := c.host.Anchors(ctx)
		if err != nil {
			return nil, err
		}
		page.anchors = anchors
	}

	html, err := c.host.HTML(ctx)
	if err != nil {
		return nil, err
	}
	page.html = html
	return page, nil
}

// reach opens path, through the in-page router when one is configured
func (c *Crawler) reach(ctx context.Context, path string) error {
	if c.config.ClientRouter != "" && !c.routerUnavailable {
		href, err := c.host.RouteTo(ctx, c.config.ClientRouter, path)
		switch {
		case err == nil:
			slog.Debug("Routed in page", "path", path, "location", href)
			return nil
		case errors.Is(err, ErrRouterUnavailable):
			slog.Warn("Render host cannot run the client router, navigating instead", "router", c.config.ClientRouter)
			c.routerUnavailable = true
		default:
			return err
		}
	}
	return c.host.Navigate(ctx, c.config.BaseURL+path)
}

// discover feeds eligible anchors into the frontier
func (c *Crawler) discover(path string, anchors []string) {
	added := 0
	for _, href := range anchors {
		p, ok := c.filter.Accept(href)
		if !ok {
			continue
		}
		if c.robots != nil && !c.robots.IsAllowed(p) {
			slog.Debug("Link disallowed by robots.txt", "path", p)
			continue
		}
		if c.frontier.PushIfNew(p) {
			added++
		}
	}
	slog.Debug("Links extracted", "path", path, "anchors", len(anchors), "new", added)
}

// persist sanitizes html and writes the snapshot and sitemap entry
func (c *Crawler) persist(path, html string, first bool, renderTime time.Duration, anchorCount int) error {
	c.setState(StatePersisting)

	out := c.pipeline.Process(html)
	if first {
		if err := c.snapshots.WriteIndex(out.Prepared); err != nil {
			return err
		}
	}

	name := c.snapshots.FileName(path)
	c.warnCollision(path, name)

	if _, err := c.snapshots.Write(path, out.Snapshot); err != nil {
		return err
	}

	pageURL := c.config.BaseURL + path
	if err := c.sitemap.Append(pageURL); err != nil {
		return err
	}

	c.statsMutex.Lock()
	c.stats.PagesProcessed++
	seq := c.stats.PagesProcessed
	c.statsMutex.Unlock()

	fmt.Fprintf(c.out, "%03d: %s\n", seq, path)
	slog.Info("Page processed",
		"seq", seq,
		"path", path,
		"file", name,
		"size", humanize.Bytes(uint64(len(out.Snapshot))),
		"render_time", renderTime)

	record := &PageRecord{
		Sequence:     seq,
		Path:         path,
		URL:          pageURL,
		SnapshotFile: name,
		SnapshotSize: int64(len(out.Snapshot)),
		ContentHash:  parser.HashContent(out.Snapshot),
		AnchorCount:  anchorCount,
		RenderTime:   renderTime,
		CrawledAt:    time.Now(),
	}
	if info, err := parser.Parse(html); err == nil {
		record.Title = info.Title
		record.MetaRobots = info.MetaRobots
		record.CanonicalURL = info.CanonicalURL
		if first {
			record.AnchorCount = info.AnchorCount
		}
	} else {
		slog.Debug("Failed to parse page metadata", "path", path, "error", err)
	}
	if err := c.storage.SavePage(c.runID, record); err != nil {
		slog.Error("Failed to save page to ledger", "path", path, "error", err)
	}
	return nil
}

// warnCollision flags two paths that sanitize to the same file name. The
// later page overwrites the earlier snapshot.
func (c *Crawler) warnCollision(path, name string) {
	owner, found, err := c.storage.SnapshotOwner(c.runID, name)
	if err != nil {
		slog.Debug("Snapshot owner lookup failed", "file", name, "error", err)
		return
	}
	if found && owner != path {
		slog.Warn("Snapshot file name collision, overwriting",
			"file", name, "path", path, "previous_path", owner)
	}
}

func (c *Crawler) recordFailure(path, url string, attempts int, err error) {
	c.statsMutex.Lock()
	c.stats.Errors++
	c.statsMutex.Unlock()

	slog.Warn("Skipping page after render failure", "path", path, "url", url, "attempts", attempts, "error", err)

	pageErr := &PageError{
		Path:         path,
		URL:          url,
		ErrorType:    errorType(err),
		ErrorMessage: err.Error(),
		Attempts:     attempts,
		OccurredAt:   time.Now(),
	}
	if saveErr := c.storage.SavePageError(c.runID, pageErr); saveErr != nil {
		slog.Error("Failed to save page error to ledger", "path", path, "error", saveErr)
	}
}

func (c *Crawler) beginRun() {
	id, err := c.storage.BeginRun(&RunInfo{
		BaseURL:   c.config.BaseURL,
		SiteID:    c.config.SiteID,
		OutputDir: c.snapshots.Dir(),
		Recursive: c.config.Recursive,
		StartedAt: time.Now(),
	})
	if err != nil {
		slog.Error("Failed to record run in ledger", "error", err)
		return
	}
	c.runID = id
}

func (c *Crawler) finishRun() {
	if err := c.storage.FinishRun(c.runID, c.GetStats()); err != nil {
		slog.Error("Failed to finish run in ledger", "error", err)
	}
}

func (c *Crawler) loadRobots(ctx context.Context) {
	if c.robots == nil {
		return
	}
	if err := c.robots.Load(ctx, c.config.BaseURL); err != nil {
		slog.Warn("Failed to load robots.txt, allowing all paths", "error", err)
		return
	}
	if delay := c.robots.CrawlDelay(); delay > 0 {
		c.rateLimiter.SetDelay(delay)
		slog.Info("Using robots.txt crawl delay", "delay", delay)
	}
}
