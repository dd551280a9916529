package crawler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gsn/DigitalStoreSeo/internal/parser"
)

// HTTPHost is a RenderHost without a browser: it fetches the page and runs
// no scripts. Client routing is unavailable.
type HTTPHost struct {
	client *HTTPClient

	mu     sync.Mutex
	html   string
	loaded bool
}

// NewHTTPHost creates a host that fetches through client
func NewHTTPHost(client *HTTPClient) *HTTPHost {
	return &HTTPHost{client: client}
}

// Navigate fetches url
func (h *HTTPHost) Navigate(ctx context.Context, url string) error {
	resp, err := h.client.Get(ctx, url)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: %s returned %d", ErrBadStatus, url, resp.StatusCode)
	}

	h.mu.Lock()
	h.html = string(resp.Body)
	h.loaded = true
	h.mu.Unlock()
	return nil
}

// Settle waits d
func (h *HTTPHost) Settle(ctx context.Context, d time.Duration) error {
	return sleepContext(ctx, d)
}

// Anchors returns the raw href of every anchor in the fetched document
func (h *HTTPHost) Anchors(ctx context.Context) ([]string, error) {
	html, err := h.HTML(ctx)
	if err != nil {
		return nil, err
	}
	return parser.ExtractAnchors(html)
}

// HTML returns the fetched document
func (h *HTTPHost) HTML(_ context.Context) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.loaded {
		return "", ErrNoPage
	}
	return h.html, nil
}

// RouteTo is not supported
func (h *HTTPHost) RouteTo(_ context.Context, _, _ string) (string, error) {
	return "", ErrRouterUnavailable
}

// Close releases idle connections
func (h *HTTPHost) Close() error {
	h.client.Close()
	return nil
}

var _ RenderHost = (*HTTPHost)(nil)
