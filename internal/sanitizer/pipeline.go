// Package sanitizer turns rendered HTML into the minified snapshot that is
// written to disk. The rewrite is textual: an ordered list of regular
// expression passes whose order changes the result.
package sanitizer

import (
	"fmt"
	"regexp"
	"strings"
)

// space matches what an ECMAScript \s matches, which is wider than RE2's \s.
const space = `[\t\n\v\f\r \x{00a0}\x{1680}\x{2000}-\x{200a}\x{2028}\x{2029}\x{202f}\x{205f}\x{3000}\x{feff}]`

var (
	escapedControlReplacer = strings.NewReplacer(`\n`, "", `\t`, "", `\r`, "", `\f`, "")
	controlReplacer        = strings.NewReplacer("\n", "", "\t", "", "\f", "", "\r", "")

	protocolRelativeRe = regexp.MustCompile(`="//`)
	headRe             = regexp.MustCompile(`(?i)<head>[\s\S]+<meta charset="utf-8"`)
	analyticsRe        = regexp.MustCompile(`(?i)<!--begin:analytics[\s\S]+<!--end:analytics-->`)
	scriptRe           = regexp.MustCompile(`(?is)<script\b.*?</script>`)
	styleRe            = regexp.MustCompile(`(?is)<style\b.*?</style>`)
	inlineStyleRe      = regexp.MustCompile(`(?i)\sstyle="[^"]*"`)
	linkRe             = regexp.MustCompile(`(?i)<link\b[^>]*>`)
	linkCloseRe        = regexp.MustCompile(`(?i)</link>`)
	metaRe             = regexp.MustCompile(`(?i)<meta\b[^>]*>`)
	iframeRe           = regexp.MustCompile(`(?is)<iframe.+?</iframe>`)
	commentRe          = regexp.MustCompile(`<!--.*?-->`)
	dataAttrRe         = regexp.MustCompile(`(?i) data-[^=]*="[^"]*"`)
	tagGapRe           = regexp.MustCompile(`(>` + space + `+<)+`)
	spaceRunRe         = regexp.MustCompile(space + `+`)
	adjacentTagsRe     = regexp.MustCompile(`><`)
)

const (
	contentBaseKey  = `{"ContentBaseUrl":`
	contentBaseFlag = `{"dontUseProxy": true,"ContentBaseUrl":`
)

// Replacement is a global regular expression substitution
type Replacement struct {
	Pattern     string
	Replacement string
}

// Options selects the optional passes. It is fixed for the life of a Pipeline.
type Options struct {
	RemoveScripts  bool
	RemoveStyles   bool
	RemoveLinkTags bool
	RemoveMetaTags bool
	RemoveIframes  bool

	AbsolutizeProtocolRelative bool
	CollapseHead               bool
	StripAnalytics             bool

	Replacements []Replacement
}

// Output holds both documents produced for a page.
type Output struct {
	// Prepared is the document after the preparation passes, before any
	// element removal. The first page of a crawl is saved verbatim from it.
	Prepared string
	// Snapshot is the fully sanitized and minified document.
	Snapshot string
}

type step struct {
	name  string
	apply func(string) string
}

// Pipeline applies the configured passes in a fixed order
type Pipeline struct {
	prepare []step
	finish  []step
}

// New compiles the replacement rules and assembles the pass list
func New(opts Options) (*Pipeline, error) {
	p := &Pipeline{}

	p.prepare = append(p.prepare, step{"unescape-control", escapedControlReplacer.Replace})
	if opts.AbsolutizeProtocolRelative {
		p.prepare = append(p.prepare, step{"absolutize-protocol-relative", func(s string) string {
			return protocolRelativeRe.ReplaceAllLiteralString(s, `="http://`)
		}})
	}
	if opts.CollapseHead {
		p.prepare = append(p.prepare, step{"collapse-head", func(s string) string {
			return headRe.ReplaceAllLiteralString(s, `<head><meta charset="utf-8"`)
		}})
	}
	if opts.StripAnalytics {
		p.prepare = append(p.prepare, step{"strip-analytics", removeAll(analyticsRe)})
	}
	p.prepare = append(p.prepare, step{"flag-content-base", func(s string) string {
		return strings.Replace(s, contentBaseKey, contentBaseFlag, 1)
	}})

	if opts.RemoveScripts {
		p.finish = append(p.finish, step{"remove-scripts", removeAll(scriptRe)})
	}
	if opts.RemoveStyles {
		p.finish = append(p.finish, step{"remove-styles", func(s string) string {
			return inlineStyleRe.ReplaceAllLiteralString(styleRe.ReplaceAllLiteralString(s, ""), "")
		}})
	}
	if opts.RemoveLinkTags {
		p.finish = append(p.finish, step{"remove-link-tags", func(s string) string {
			return linkCloseRe.ReplaceAllLiteralString(linkRe.ReplaceAllLiteralString(s, ""), "")
		}})
	}
	if opts.RemoveMetaTags {
		p.finish = append(p.finish, step{"remove-meta-tags", removeAll(metaRe)})
	}
	if opts.RemoveIframes {
		p.finish = append(p.finish, step{"remove-iframes", removeAll(iframeRe)})
	}

	for i, r := range opts.Replacements {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("replacement %d %q: %w", i, r.Pattern, err)
		}
		repl := r.Replacement
		p.finish = append(p.finish, step{"replace:" + r.Pattern, func(s string) string {
			return re.ReplaceAllString(s, repl)
		}})
	}

	p.finish = append(p.finish,
		step{"strip-control", controlReplacer.Replace},
		step{"strip-comments", removeAll(commentRe)},
		step{"strip-data-attributes", removeAll(dataAttrRe)},
		step{"break-tag-gaps", func(s string) string {
			return tagGapRe.ReplaceAllLiteralString(s, ">\n<")
		}},
		step{"collapse-whitespace", func(s string) string {
			return spaceRunRe.ReplaceAllLiteralString(s, " ")
		}},
		step{"split-adjacent-tags", func(s string) string {
			return adjacentTagsRe.ReplaceAllLiteralString(s, ">\r\n<")
		}},
	)

	return p, nil
}

// Process runs every pass over raw
func (p *Pipeline) Process(raw string) Output {
	doc := raw
	for _, s := range p.prepare {
		doc = s.apply(doc)
	}
	out := Output{Prepared: doc}
	for _, s := range p.finish {
		doc = s.apply(doc)
	}
	out.Snapshot = doc
	return out
}

// Steps lists the active pass names in execution order
func (p *Pipeline) Steps() []string {
	names := make([]string, 0, len(p.prepare)+len(p.finish))
	for _, s := range p.prepare {
		names = append(names, s.name)
	}
	for _, s := range p.finish {
		names = append(names, s.name)
	}
	return names
}

func removeAll(re *regexp.Regexp) func(string) string {
	return func(s string) string {
		return re.ReplaceAllLiteralString(s, "")
	}
}
