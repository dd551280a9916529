package crawler

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gsn/DigitalStoreSeo/internal/config"
)

const testBase = "http://shop.test"

type fakePage struct {
	html    string
	anchors []string
}

// fakeHost serves canned pages keyed by absolute URL
type fakeHost struct {
	mu          sync.Mutex
	base        string
	pages       map[string]fakePage
	failures    map[string]int
	router      bool
	current     string
	navigations []string
	routed      []string
	cancelOn    string
	cancel      context.CancelFunc
}

func newFakeHost(base string) *fakeHost {
	return &fakeHost{
		base:     base,
		pages:    make(map[string]fakePage),
		failures: make(map[string]int),
	}
}

func (h *fakeHost) add(path, html string, anchors ...string) {
	h.pages[h.base+path] = fakePage{html: html, anchors: anchors}
}

func (h *fakeHost) Navigate(ctx context.Context, url string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.navigations = append(h.navigations, url)

	if url == h.cancelOn && h.cancel != nil {
		h.cancel()
		return ctx.Err()
	}
	if n := h.failures[url]; n > 0 {
		h.failures[url] = n - 1
		return fmt.Errorf("navigate %s: net::ERR_CONNECTION_RESET", url)
	}
	if _, ok := h.pages[url]; !ok {
		return fmt.Errorf("%w: %s returned 404", ErrBadStatus, url)
	}
	h.current = url
	return nil
}

func (h *fakeHost) Settle(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

func (h *fakeHost) Anchors(_ context.Context) ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pages[h.current].anchors, nil
}

func (h *fakeHost) HTML(_ context.Context) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == "" {
		return "", ErrNoPage
	}
	return h.pages[h.current].html, nil
}

func (h *fakeHost) RouteTo(_ context.Context, _, path string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.router {
		return "", ErrRouterUnavailable
	}
	h.routed = append(h.routed, path)
	h.current = h.base + path
	return h.current, nil
}

func (h *fakeHost) Close() error { return nil }

// memStorage is an in-memory ledger
type memStorage struct {
	mu       sync.Mutex
	runs     []*RunInfo
	pages    []*PageRecord
	errors   []*PageError
	owners   map[string]string
	finished *CrawlStats
}

func newMemStorage() *memStorage {
	return &memStorage{owners: make(map[string]string)}
}

func (s *memStorage) BeginRun(run *RunInfo) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return int64(len(s.runs)), nil
}

func (s *memStorage) SavePage(_ int64, page *PageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = append(s.pages, page)
	s.owners[page.SnapshotFile] = page.Path
	return nil
}

func (s *memStorage) SavePageError(_ int64, pageErr *PageError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, pageErr)
	return nil
}

func (s *memStorage) SnapshotOwner(_ int64, fileName string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path, ok := s.owners[fileName]
	return path, ok, nil
}

func (s *memStorage) FinishRun(_ int64, stats CrawlStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = &stats
	return nil
}

func (s *memStorage) Close() error { return nil }

func (s *memStorage) paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.pages))
	for _, p := range s.pages {
		out = append(out, p.Path)
	}
	return out
}

func testConfig(seeds ...string) *config.CrawlConfig {
	cfg := config.DefaultConfig()
	cfg.BaseURL = testBase
	cfg.OutputDir = "/out"
	cfg.Seeds = seeds
	cfg.PageWait = 0
	cfg.FirstPageWait = 0
	return cfg
}

type harness struct {
	crawler *Crawler
	fs      afero.Fs
	out     *bytes.Buffer
	store   *memStorage
}

func newHarness(t *testing.T, cfg *config.CrawlConfig, host RenderHost, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		fs:    afero.NewMemMapFs(),
		out:   &bytes.Buffer{},
		store: newMemStorage(),
	}
	opts = append([]Option{WithFs(h.fs), WithOutput(h.out)}, opts...)
	c, err := NewCrawler(cfg, host, h.store, opts...)
	require.NoError(t, err)
	h.crawler = c
	return h
}

func (h *harness) read(t *testing.T, name string) string {
	t.Helper()
	data, err := afero.ReadFile(h.fs, filepath.Join("/out", name))
	require.NoError(t, err)
	return string(data)
}

func (h *harness) exists(name string) bool {
	ok, _ := afero.Exists(h.fs, filepath.Join("/out", name))
	return ok
}

func homeHost() *fakeHost {
	host := newFakeHost(testBase)
	host.add("/?sfs=true", `<html><body><h1>Home</h1><script>var x=1;</script><a href="/a">A</a></body></html>`)
	return host
}

func TestCrawler_RecursiveRun(t *testing.T) {
	host := homeHost()
	host.add("/a", `<html><body><p>Page A</p></body></html>`, "/b", "http://other.test/x", "/a", "#top", "/c.php")
	host.add("/b", `<html><body><p>Page B</p></body></html>`, "/a", "/")

	cfg := testConfig("/a")
	cfg.Recursive = true
	h := newHarness(t, cfg, host)

	require.NoError(t, h.crawler.Run(context.Background()))

	assert.True(t, h.exists("index.html"))
	assert.Contains(t, h.read(t, "index.html"), "var x=1;")
	home := h.read(t, "_.html")
	assert.Contains(t, home, "Home")
	assert.NotContains(t, home, "var x=1;")
	assert.Contains(t, h.read(t, "_a.html"), "Page A")
	assert.Contains(t, h.read(t, "_b.html"), "Page B")

	assert.Equal(t, "http://shop.test/\r\nhttp://shop.test/a\r\nhttp://shop.test/b\r\n", h.read(t, "sitemap.txt"))
	xml := h.read(t, "sitemap.xml")
	assert.Contains(t, xml, "<loc>http://shop.test/b</loc>")
	assert.Contains(t, xml, "</urlset>")

	out := h.out.String()
	assert.Contains(t, out, "\ncontacting: http://shop.test/?sfs=true\n")
	assert.Contains(t, out, "001: /\n002: /a\n003: /b\n")
	assert.Contains(t, out, "\nDone!")

	stats := h.crawler.GetStats()
	assert.Equal(t, 3, stats.PagesProcessed)
	assert.Equal(t, 0, stats.Errors)
	assert.Equal(t, 2, stats.Rounds)
	assert.Equal(t, 3, stats.Discovered)
	assert.Equal(t, StateDone, h.crawler.State())

	assert.Equal(t, []string{"/", "/a", "/b"}, h.store.paths())
	require.NotNil(t, h.store.finished)
	assert.Equal(t, 3, h.store.finished.PagesProcessed)
	assert.Equal(t, 1, h.store.pages[0].AnchorCount)
	assert.Equal(t, 5, h.store.pages[1].AnchorCount)
}

func TestCrawler_SingleLevel(t *testing.T) {
	host := homeHost()
	host.add("/a", `<html><body>A</body></html>`, "/b")
	host.add("/b", `<html><body>B</body></html>`)

	h := newHarness(t, testConfig("/a"), host)
	require.NoError(t, h.crawler.Run(context.Background()))

	assert.True(t, h.exists("_a.html"))
	assert.False(t, h.exists("_b.html"))
	assert.NotContains(t, host.navigations, testBase+"/b")
	assert.Equal(t, 1, h.crawler.GetStats().Rounds)
	// discovery is still recorded
	assert.Equal(t, 3, h.crawler.GetStats().Discovered)
}

func TestCrawler_NoSeeds(t *testing.T) {
	h := newHarness(t, testConfig(), homeHost())
	require.NoError(t, h.crawler.Run(context.Background()))

	assert.Equal(t, "http://shop.test/\r\n", h.read(t, "sitemap.txt"))
	assert.Equal(t, 1, h.crawler.GetStats().PagesProcessed)
	assert.Equal(t, 0, h.crawler.GetStats().Rounds)
}

func TestCrawler_RenderFailureSkipsPage(t *testing.T) {
	host := homeHost()
	host.add("/c", `<html><body>C</body></html>`)

	h := newHarness(t, testConfig("/missing", "/c"), host)
	require.NoError(t, h.crawler.Run(context.Background()))

	assert.False(t, h.exists("_missing.html"))
	assert.True(t, h.exists("_c.html"))
	assert.Equal(t, "http://shop.test/\r\nhttp://shop.test/c\r\n", h.read(t, "sitemap.txt"))

	stats := h.crawler.GetStats()
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 2, stats.PagesProcessed)
	assert.Contains(t, h.out.String(), "002: /c\n")

	require.Len(t, h.store.errors, 1)
	pageErr := h.store.errors[0]
	assert.Equal(t, "/missing", pageErr.Path)
	assert.Equal(t, "bad_status", pageErr.ErrorType)
	assert.Equal(t, 2, pageErr.Attempts)
}

func TestCrawler_RetryRecovers(t *testing.T) {
	host := homeHost()
	host.add("/flaky", `<html><body>Flaky</body></html>`)
	host.failures[testBase+"/flaky"] = 1

	h := newHarness(t, testConfig("/flaky"), host)
	require.NoError(t, h.crawler.Run(context.Background()))

	assert.True(t, h.exists("_flaky.html"))
	assert.Equal(t, 0, h.crawler.GetStats().Errors)
	assert.Empty(t, h.store.errors)
}

func TestCrawler_FirstPageFailureIsFatal(t *testing.T) {
	host := newFakeHost(testBase)
	host.add("/a", `<html><body>A</body></html>`)

	h := newHarness(t, testConfig("/a"), host)
	err := h.crawler.Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadStatus)
	assert.NotContains(t, h.out.String(), "Done!")
	assert.NotContains(t, host.navigations, testBase+"/a")
	assert.Len(t, h.store.errors, 1)
}

func TestCrawler_WriteFailureIsFatal(t *testing.T) {
	host := homeHost()
	c, err := NewCrawler(testConfig(), host, newMemStorage(),
		WithFs(afero.NewReadOnlyFs(afero.NewMemMapFs())),
		WithOutput(&bytes.Buffer{}))
	require.NoError(t, err)

	assert.Error(t, c.Run(context.Background()))
}

func TestCrawler_ClientRouter(t *testing.T) {
	host := homeHost()
	host.router = true
	host.add("/a", `<html><body>A</body></html>`)
	host.add("/b", `<html><body>B</body></html>`)

	cfg := testConfig("/a", "/b")
	cfg.ClientRouter = "window.gsn.goUrl"
	h := newHarness(t, cfg, host)
	require.NoError(t, h.crawler.Run(context.Background()))

	assert.Equal(t, []string{"/a", "/b"}, host.routed)
	assert.Equal(t, []string{testBase + "/?sfs=true"}, host.navigations)
	assert.True(t, h.exists("_b.html"))
}

func TestCrawler_ClientRouterFallback(t *testing.T) {
	host := homeHost()
	host.add("/a", `<html><body>A</body></html>`)

	cfg := testConfig("/a")
	cfg.ClientRouter = "window.gsn.goUrl"
	h := newHarness(t, cfg, host)
	require.NoError(t, h.crawler.Run(context.Background()))

	assert.Empty(t, host.routed)
	assert.Contains(t, host.navigations, testBase+"/a")
	assert.True(t, h.exists("_a.html"))
}

func TestCrawler_DuplicateSeeds(t *testing.T) {
	host := homeHost()
	host.add("/a", `<html><body>A</body></html>`)

	h := newHarness(t, testConfig("/a", "/a", "/"), host)
	require.NoError(t, h.crawler.Run(context.Background()))

	assert.Equal(t, "http://shop.test/\r\nhttp://shop.test/a\r\n", h.read(t, "sitemap.txt"))
	assert.Equal(t, 2, h.crawler.GetStats().PagesProcessed)
}

func TestCrawler_FileNameCollision(t *testing.T) {
	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
	defer slog.SetDefault(prev)

	host := homeHost()
	host.add("/a-b", `<html><body>first</body></html>`)
	host.add("/a_b", `<html><body>second</body></html>`)

	h := newHarness(t, testConfig("/a-b", "/a_b"), host)
	require.NoError(t, h.crawler.Run(context.Background()))

	assert.Contains(t, h.read(t, "_a_b.html"), "second")
	assert.Contains(t, logs.String(), "collision")
	assert.Contains(t, logs.String(), "previous_path=/a-b")
}

func TestCrawler_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	host := homeHost()
	host.add("/a", `<html><body>A</body></html>`)
	host.add("/b", `<html><body>B</body></html>`)
	host.cancelOn = testBase + "/a"
	host.cancel = cancel

	h := newHarness(t, testConfig("/a", "/b"), host)
	err := h.crawler.Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.NotContains(t, host.navigations, testBase+"/b")
	assert.Empty(t, h.store.errors)
}

func TestCrawler_RespectRobots(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\nDisallow: /secret\n"))
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	host := newFakeHost(server.URL)
	host.add("/?sfs=true", `<html><body>Home</body></html>`)
	host.add("/a", `<html><body>A</body></html>`, "/secret", "/b")
	host.add("/b", `<html><body>B</body></html>`)
	host.add("/private", `<html><body>P</body></html>`)

	cfg := testConfig("/a", "/private")
	cfg.BaseURL = server.URL
	cfg.Recursive = true
	cfg.RespectRobots = true
	h := newHarness(t, cfg, host)
	require.NoError(t, h.crawler.Run(context.Background()))

	assert.Equal(t, []string{"/", "/a", "/b"}, h.store.paths())
	assert.NotContains(t, host.navigations, server.URL+"/private")
	assert.NotContains(t, host.navigations, server.URL+"/secret")
}

func TestCrawler_SiteIDSubdirectory(t *testing.T) {
	cfg := testConfig()
	cfg.SiteID = "store_1"
	h := newHarness(t, cfg, homeHost())
	require.NoError(t, h.crawler.Run(context.Background()))

	for _, name := range []string{"index.html", "sitemap.xml", "sitemap.txt"} {
		ok, err := afero.Exists(h.fs, filepath.Join("/out", "store_1", name))
		require.NoError(t, err)
		assert.True(t, ok, name)
	}
	assert.Equal(t, filepath.Join("/out", "store_1"), h.store.runs[0].OutputDir)
}

func TestCrawler_ResetsPreviousOutput(t *testing.T) {
	h := newHarness(t, testConfig(), homeHost())
	require.NoError(t, afero.WriteFile(h.fs, "/out/stale.html", []byte("old"), 0644))

	require.NoError(t, h.crawler.Run(context.Background()))
	assert.False(t, h.exists("stale.html"))
}

func TestNewCrawler_InvalidPattern(t *testing.T) {
	cfg := testConfig()
	cfg.ExcludePatterns = []string{"[unclosed"}
	_, err := NewCrawler(cfg, homeHost(), newMemStorage())
	assert.Error(t, err)

	cfg = testConfig()
	cfg.ReplaceStrings = []config.Replacement{{Pattern: "(", Replacement: ""}}
	_, err = NewCrawler(cfg, homeHost(), newMemStorage())
	assert.Error(t, err)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "INIT", StateInit.String())
	assert.Equal(t, "ROUND_COMPLETE", StateRoundComplete.String())
	assert.Equal(t, "DONE", StateDone.String())
	assert.Equal(t, "UNKNOWN", State(99).String())
}
