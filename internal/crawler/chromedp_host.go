package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

const anchorsScript = `Array.from(document.querySelectorAll('a'))
	.map(function (e) { return e.getAttribute('href'); })
	.filter(function (h) { return h !== null; })`

var routerNameRe = regexp.MustCompile(`^[A-Za-z_$][\w$]*(\.[A-Za-z_$][\w$]*)*$`)

// ChromeHostConfig configures the headless browser
type ChromeHostConfig struct {
	UserAgent         string
	NavigationTimeout time.Duration
}

// ChromeHost renders pages in one headless Chrome tab that is reused for
// the whole run, so client side state survives between pages.
type ChromeHost struct {
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	timeout     time.Duration

	mu     sync.Mutex
	status int
}

// NewChromeHost starts the browser and opens the tab
func NewChromeHost(cfg ChromeHostConfig) (*ChromeHost, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}

	timeout := cfg.NavigationTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	h := &ChromeHost{
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		timeout:     timeout,
	}

	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if e, ok := ev.(*network.EventResponseReceived); ok && e.Type == network.ResourceTypeDocument {
			h.mu.Lock()
			// the first document response after a navigation is the main frame
			if h.status == 0 {
				h.status = int(e.Response.Status)
			}
			h.mu.Unlock()
		}
	})

	// The first Run allocates the browser; it must not carry a timeout or
	// the browser dies with it.
	if err := chromedp.Run(tabCtx, network.Enable()); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	return h, nil
}

// run executes actions on the tab, bounded by the navigation timeout and
// by ctx.
func (h *ChromeHost) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(h.tabCtx, h.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Navigate loads url and fails on a 4xx/5xx main document
func (h *ChromeHost) Navigate(ctx context.Context, url string) error {
	h.mu.Lock()
	h.status = 0
	h.mu.Unlock()

	if err := h.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}

	h.mu.Lock()
	status := h.status
	h.mu.Unlock()
	if status >= 400 {
		return fmt.Errorf("%w: %s returned %d", ErrBadStatus, url, status)
	}
	return nil
}

// Settle waits d for client side rendering
func (h *ChromeHost) Settle(ctx context.Context, d time.Duration) error {
	return sleepContext(ctx, d)
}

// Anchors returns the raw href of every anchor in the rendered document
func (h *ChromeHost) Anchors(ctx context.Context) ([]string, error) {
	var hrefs []string
	if err := h.run(ctx, chromedp.Evaluate(anchorsScript, &hrefs)); err != nil {
		return nil, fmt.Errorf("extract anchors: %w", err)
	}
	return hrefs, nil
}

// HTML returns the outer HTML of the rendered document
func (h *ChromeHost) HTML(ctx context.Context) (string, error) {
	var html string
	if err := h.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read html: %w", err)
	}
	return html, nil
}

// RouteTo calls routerFn(path) inside the page and returns the new location
func (h *ChromeHost) RouteTo(ctx context.Context, routerFn, path string) (string, error) {
	expr, err := buildRouterExpression(routerFn, path)
	if err != nil {
		return "", err
	}

	var href string
	if err := h.run(ctx, chromedp.Evaluate(expr, &href)); err != nil {
		return "", fmt.Errorf("route to %s: %w", path, err)
	}
	return href, nil
}

// Close shuts the browser down
func (h *ChromeHost) Close() error {
	err := chromedp.Cancel(h.tabCtx)
	h.tabCancel()
	h.allocCancel()
	return err
}

// buildRouterExpression returns a script that calls routerFn with path and
// evaluates to window.location.href.
func buildRouterExpression(routerFn, path string) (string, error) {
	if !routerNameRe.MatchString(routerFn) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRouter, routerFn)
	}
	arg, err := json.Marshal(path)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("(function () { %s(%s); return window.location.href; })()", routerFn, arg), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ RenderHost = (*ChromeHost)(nil)
