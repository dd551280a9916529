package crawler

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// RobotsChecker holds the robots.txt rules of the crawled site. It is loaded
// once per run; until then, or when loading fails, every path is allowed.
type RobotsChecker struct {
	httpClient *HTTPClient
	userAgent  string

	mu       sync.RWMutex
	data     *robotstxt.RobotsData
	basePath string
}

// NewRobotsChecker creates a checker that fetches with httpClient
func NewRobotsChecker(httpClient *HTTPClient, userAgent string) *RobotsChecker {
	return &RobotsChecker{
		httpClient: httpClient,
		userAgent:  userAgent,
	}
}

// Load fetches robots.txt from the root of baseURL's host
func (r *RobotsChecker) Load(ctx context.Context, baseURL string) error {
	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	robotsURL := fmt.Sprintf("%s://%s/robots.txt", u.Scheme, u.Host)
	resp, err := r.httpClient.Get(ctx, robotsURL)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", robotsURL, err)
	}

	// 4xx allows everything, 5xx disallows everything
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, resp.Body)
	if err != nil {
		return fmt.Errorf("parse %s: %w", robotsURL, err)
	}

	r.mu.Lock()
	r.data = data
	r.basePath = u.Path
	r.mu.Unlock()
	return nil
}

// IsAllowed reports whether the site path may be crawled
func (r *RobotsChecker) IsAllowed(path string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.data == nil {
		return true
	}
	return r.data.TestAgent(r.basePath+path, r.userAgent)
}

// CrawlDelay returns the Crawl-delay for the user agent, or zero
func (r *RobotsChecker) CrawlDelay() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.data == nil {
		return 0
	}
	group := r.data.FindGroup(r.userAgent)
	if group == nil {
		return 0
	}
	return group.CrawlDelay
}
