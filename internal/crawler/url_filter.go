package crawler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gobwas/glob"

	"github.com/gsn/DigitalStoreSeo/internal/config"
)

var (
	// same set as an ECMAScript \s
	hrefSpaceRe    = regexp.MustCompile(`[\t\n\v\f\r \x{00a0}\x{1680}\x{2000}-\x{200a}\x{2028}\x{2029}\x{202f}\x{205f}\x{3000}\x{feff}]+`)
	schemePrefixRe = regexp.MustCompile(`(?i)^(?:[a-z]+:)?//`)
)

// FilterConfig holds the link filtering rules
type FilterConfig struct {
	ExcludedQuery        string   // Links containing this marker are dropped
	DisallowedExtensions []string // Links containing any of these are dropped
	ExcludePatterns      []string // Globs matched against the normalized path
}

// URLFilter decides which discovered hrefs are same-site paths worth
// crawling, and normalizes them into frontier keys.
type URLFilter struct {
	excludedQuery string
	extensions    []string
	excludes      []glob.Glob
}

// NewURLFilter compiles the exclude globs. In a glob, * stops at "/" and
// ** does not.
func NewURLFilter(cfg FilterConfig) (*URLFilter, error) {
	f := &URLFilter{
		excludedQuery: strings.ToLower(cfg.ExcludedQuery),
	}
	for _, ext := range cfg.DisallowedExtensions {
		if ext != "" {
			f.extensions = append(f.extensions, strings.ToLower(ext))
		}
	}
	for _, p := range cfg.ExcludePatterns {
		g, err := config.CompileExcludePattern(p)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", p, err)
		}
		f.excludes = append(f.excludes, g)
	}
	return f, nil
}

// clean removes all whitespace and lower-cases href
func clean(href string) string {
	return strings.ToLower(hrefSpaceRe.ReplaceAllString(href, ""))
}

// IsEligible reports whether href is a same-site path that may be crawled
func (f *URLFilter) IsEligible(href string) bool {
	_, ok := f.Accept(href)
	return ok
}

// Normalize turns href into a path key. It does not check eligibility.
func (f *URLFilter) Normalize(href string) string {
	return normalizeCleaned(clean(href))
}

// Accept returns the normalized path for an eligible href
func (f *URLFilter) Accept(href string) (string, bool) {
	u := clean(href)

	switch {
	case u == "":
		return "", false
	case schemePrefixRe.MatchString(u):
		return "", false
	case f.excludedQuery != "" && strings.Contains(u, f.excludedQuery):
		return "", false
	case strings.Contains(u, "javascript:"):
		return "", false
	case strings.Contains(u, ":"):
		return "", false
	case strings.Contains(u, "#"):
		return "", false
	}

	for _, ext := range f.extensions {
		if strings.Contains(u, ext) {
			return "", false
		}
	}

	path := normalizeCleaned(u)
	for _, g := range f.excludes {
		if g.Match(path) {
			return "", false
		}
	}
	return path, true
}

func normalizeCleaned(u string) string {
	if !strings.Contains(u, "/") {
		return "/" + u
	}
	return u
}
