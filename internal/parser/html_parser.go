// Package parser reads rendered HTML: the raw anchors used for link
// discovery and the page metadata recorded in the crawl ledger.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/cespare/xxhash/v2"
	"golang.org/x/net/html"
)

// PageInfo contains the metadata of a rendered page
type PageInfo struct {
	Title        string
	MetaDesc     string
	MetaRobots   string
	CanonicalURL string
	ContentHash  string
	AnchorCount  int
}

// ExtractAnchors returns the raw href attribute of every anchor in document
// order. Values are not resolved or filtered; anchors without an href are
// skipped, matching getAttribute('href') returning null.
func ExtractAnchors(htmlContent string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	hrefs := []string{}
	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			hrefs = append(hrefs, href)
		}
	})
	return hrefs, nil
}

// HashContent returns the hex xxhash of content
func HashContent(content string) string {
	return strconv.FormatUint(xxhash.Sum64String(content), 16)
}

// Parse extracts title, description, robots directives and canonical URL.
// Canonical URLs are reported as written in the document.
func Parse(htmlContent string) (*PageInfo, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	info := &PageInfo{ContentHash: HashContent(htmlContent)}
	traverse(doc, info)
	return info, nil
}

func traverse(n *html.Node, info *PageInfo) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "title":
			if info.Title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				info.Title = strings.TrimSpace(n.FirstChild.Data)
			}
		case "meta":
			parseMeta(n, info)
		case "link":
			parseLink(n, info)
		case "a":
			info.AnchorCount++
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		traverse(c, info)
	}
}

func parseMeta(n *html.Node, info *PageInfo) {
	name := strings.ToLower(attr(n, "name"))
	content := attr(n, "content")

	switch name {
	case "description":
		info.MetaDesc = content
	case "robots":
		info.MetaRobots = content
	}
}

func parseLink(n *html.Node, info *PageInfo) {
	if strings.EqualFold(attr(n, "rel"), "canonical") {
		if href := attr(n, "href"); href != "" {
			info.CanonicalURL = href
		}
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
