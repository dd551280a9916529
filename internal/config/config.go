// Package config provides configuration management for the snapshot crawler.
// It defines configuration structures and default values for crawling parameters.
package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gobwas/glob"
	whatwgUrl "github.com/nlnwa/whatwg-url/url"
)

// Renderer names accepted by the renderer setting
const (
	RendererChrome = "chrome"
	RendererHTTP   = "http"
)

// Replacement is a (pattern, replacement) rule applied to every snapshot
type Replacement struct {
	Pattern     string `mapstructure:"pattern" yaml:"pattern"`         // Regular expression, applied globally
	Replacement string `mapstructure:"replacement" yaml:"replacement"` // Replacement text ($1 expands groups)
}

// TransformConfig toggles the optional steps of the sanitization pipeline
type TransformConfig struct {
	RemoveScripts              bool `mapstructure:"remove_scripts" yaml:"remove_scripts"`
	RemoveStyles               bool `mapstructure:"remove_styles" yaml:"remove_styles"`
	RemoveLinkTags             bool `mapstructure:"remove_link_tags" yaml:"remove_link_tags"`
	RemoveMetaTags             bool `mapstructure:"remove_meta_tags" yaml:"remove_meta_tags"`
	RemoveIframes              bool `mapstructure:"remove_iframes" yaml:"remove_iframes"`
	AbsolutizeProtocolRelative bool `mapstructure:"absolutize_protocol_relative" yaml:"absolutize_protocol_relative"`
	CollapseHead               bool `mapstructure:"collapse_head" yaml:"collapse_head"`
	StripAnalytics             bool `mapstructure:"strip_analytics" yaml:"strip_analytics"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	File   string `mapstructure:"file" yaml:"file"`     // Optional rotated log file
	Format string `mapstructure:"format" yaml:"format"` // json or text
}

// CrawlConfig holds crawler configuration
type CrawlConfig struct {
	// Site
	BaseURL        string   `mapstructure:"base_url" yaml:"base_url"`                 // Site root, normalized by NormalizeSiteURL
	SiteID         string   `mapstructure:"site_id" yaml:"site_id"`                   // Optional output subdirectory
	OutputDir      string   `mapstructure:"output_dir" yaml:"output_dir"`             // Root of all snapshot output
	InitialQuery   string   `mapstructure:"initial_query" yaml:"initial_query"`       // Appended to the base URL for page zero
	FileNamePrefix string   `mapstructure:"file_name_prefix" yaml:"file_name_prefix"` // Prefix for snapshot file names
	Seeds          []string `mapstructure:"seeds" yaml:"seeds"`                       // First level paths, processed in order

	// Crawl behaviour
	Recursive         bool          `mapstructure:"recursive" yaml:"recursive"`                   // Follow discovered links round after round
	PageWait          time.Duration `mapstructure:"page_wait" yaml:"page_wait"`                   // Fixed settle delay after each navigation
	FirstPageWait     time.Duration `mapstructure:"first_page_wait" yaml:"first_page_wait"`       // Settle delay for page zero
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"` // Per navigation
	RequestDelay      time.Duration `mapstructure:"request_delay" yaml:"request_delay"`           // Minimum interval between navigations
	RenderRetries     int           `mapstructure:"render_retries" yaml:"render_retries"`         // Extra attempts before a page is skipped
	Renderer          string        `mapstructure:"renderer" yaml:"renderer"`                     // chrome or http
	ClientRouter      string        `mapstructure:"client_router" yaml:"client_router"`           // In-page router function, e.g. window.gsn.goUrl
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	RespectRobots     bool          `mapstructure:"respect_robots" yaml:"respect_robots"`

	// Link filtering
	ExcludedQuery        string   `mapstructure:"excluded_query" yaml:"excluded_query"`               // Links containing this marker are dropped
	DisallowedExtensions []string `mapstructure:"disallowed_extensions" yaml:"disallowed_extensions"` // Links containing these are dropped
	ExcludePatterns      []string `mapstructure:"exclude_patterns" yaml:"exclude_patterns"`           // Glob patterns matched against paths

	// Sanitization
	Transforms     TransformConfig `mapstructure:"transforms" yaml:"transforms"`
	ReplaceStrings []Replacement   `mapstructure:"replace_strings" yaml:"replace_strings"`

	// Ledger
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"` // Path to SQLite database file

	Log LogConfig `mapstructure:"log" yaml:"log"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *CrawlConfig {
	return &CrawlConfig{
		OutputDir:            "snapshots",
		InitialQuery:         "/?sfs=true",
		PageWait:             1 * time.Second,
		FirstPageWait:        5 * time.Second,
		NavigationTimeout:    30 * time.Second,
		RenderRetries:        1,
		Renderer:             RendererChrome,
		UserAgent:            "seosnap/1.0",
		ExcludedQuery:        "?show=event&",
		DisallowedExtensions: []string{".php", ".aspx"},
		Transforms: TransformConfig{
			RemoveScripts:              true,
			RemoveIframes:              true,
			AbsolutizeProtocolRelative: true,
			CollapseHead:               true,
			StripAnalytics:             true,
		},
		DatabasePath: "./seosnap.db",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks if the configuration is valid
func (c *CrawlConfig) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return ErrNoBaseURL
	}
	normalized, err := NormalizeSiteURL(c.BaseURL)
	if err != nil {
		return err
	}
	c.BaseURL = normalized

	if c.OutputDir == "" {
		return ErrEmptyOutputDir
	}

	if c.PageWait < 0 || c.FirstPageWait < 0 {
		return ErrInvalidWait
	}

	if c.NavigationTimeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.RequestDelay < 0 {
		return ErrInvalidRequestDelay
	}

	if c.RenderRetries < 0 {
		return ErrInvalidRetries
	}

	switch c.Renderer {
	case RendererChrome, RendererHTTP:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidRenderer, c.Renderer)
	}

	for _, r := range c.ReplaceStrings {
		if _, err := regexp.Compile(r.Pattern); err != nil {
			return fmt.Errorf("%w %q: %v", ErrInvalidReplacePattern, r.Pattern, err)
		}
	}

	if err := validateSiteID(c.SiteID); err != nil {
		return err
	}

	for _, p := range c.ExcludePatterns {
		if _, err := CompileExcludePattern(p); err != nil {
			return fmt.Errorf("%w %q: %v", ErrInvalidExcludePattern, p, err)
		}
	}

	if c.DatabasePath == "" {
		return ErrEmptyDatabasePath
	}

	return nil
}

// SnapshotDir returns the directory that receives snapshots and sitemaps.
// The site id is used verbatim as a subdirectory of OutputDir.
func (c *CrawlConfig) SnapshotDir() string {
	if c.SiteID == "" {
		return c.OutputDir
	}
	return filepath.Join(c.OutputDir, c.SiteID)
}

// CompileExcludePattern compiles an exclude glob. "*" stops at "/", "**"
// crosses it.
func CompileExcludePattern(pattern string) (glob.Glob, error) {
	return glob.Compile(pattern, '/')
}

// validateSiteID rejects ids that would escape or alias OutputDir
func validateSiteID(id string) error {
	if id == "" {
		return nil
	}
	if id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidSiteID, id)
	}
	return nil
}

// FirstURL returns the URL loaded as page zero
func (c *CrawlConfig) FirstURL() string {
	return c.BaseURL + c.InitialQuery
}

// NormalizeSiteURL strips trailing slashes and makes sure the URL carries an
// http or https scheme, adding http:// when none is given.
func NormalizeSiteURL(raw string) (string, error) {
	s := strings.TrimRight(strings.TrimSpace(raw), "/")
	if s == "" {
		return "", ErrNoBaseURL
	}

	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		s = "http://" + s
	}

	parsed, err := whatwgUrl.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidBaseURL, err)
	}
	u, err := url.Parse(parsed.Href(true))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidBaseURL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host in %q", ErrInvalidBaseURL, raw)
	}

	return s, nil
}
