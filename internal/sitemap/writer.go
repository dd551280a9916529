// Package sitemap streams sitemap.xml and sitemap.txt while a crawl runs.
// Entries are appended in the order pages are processed and never rewritten.
package sitemap

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// File names inside the output directory
const (
	XMLFileName  = "sitemap.xml"
	TextFileName = "sitemap.txt"
)

const (
	header = `<?xml version="1.0" encoding="UTF-8"?>` + "\r\n" +
		`<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`
	footer = "</urlset>"

	entryFormat = "\r\n  <url>" +
		"\r\n    <loc>%s</loc>" +
		"\r\n    <changefreq>daily</changefreq>" +
		"\r\n    <priority>1.0</priority>" +
		"\r\n  </url>"
)

var (
	// ErrNotOpen is returned when appending to or closing a writer that is not open
	ErrNotOpen = errors.New("sitemap writer is not open")

	xmlEscaper = strings.NewReplacer(
		"<", "&lt;",
		">", "&gt;",
		"&", "&amp;",
		`"`, "&quot;",
		"'", "&apos;",
	)
)

// EscapeXML escapes the five XML special characters
func EscapeXML(s string) string {
	return xmlEscaper.Replace(s)
}

// Writer appends entries to the XML and plain-text sitemaps in lockstep
type Writer struct {
	fs  afero.Fs
	dir string

	mu    sync.Mutex
	xml   afero.File
	text  afero.File
	count int
}

// NewWriter creates a writer for the sitemaps in dir
func NewWriter(fs afero.Fs, dir string) *Writer {
	return &Writer{fs: fs, dir: dir}
}

// Open truncates both files and writes the XML header
func (w *Writer) Open() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.xml != nil {
		return nil
	}

	if err := w.fs.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("create sitemap directory: %w", err)
	}

	xmlFile, err := w.fs.OpenFile(w.XMLPath(), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open %s: %w", XMLFileName, err)
	}
	textFile, err := w.fs.OpenFile(w.TextPath(), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		_ = xmlFile.Close()
		return fmt.Errorf("open %s: %w", TextFileName, err)
	}

	if _, err := xmlFile.WriteString(header); err != nil {
		_ = xmlFile.Close()
		_ = textFile.Close()
		return fmt.Errorf("write sitemap header: %w", err)
	}

	w.xml = xmlFile
	w.text = textFile
	w.count = 0
	return nil
}

// Append adds one entry for absURL to both files
func (w *Writer) Append(absURL string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.xml == nil {
		return ErrNotOpen
	}

	if _, err := w.xml.WriteString(fmt.Sprintf(entryFormat, EscapeXML(absURL))); err != nil {
		return fmt.Errorf("append to %s: %w", XMLFileName, err)
	}
	if _, err := w.text.WriteString(absURL + "\r\n"); err != nil {
		return fmt.Errorf("append to %s: %w", TextFileName, err)
	}

	w.count++
	return nil
}

// Close writes the closing urlset tag and closes both files
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.xml == nil {
		return ErrNotOpen
	}

	_, werr := w.xml.WriteString(footer)
	err := errors.Join(werr, w.xml.Close(), w.text.Close())
	w.xml = nil
	w.text = nil
	if err != nil {
		return fmt.Errorf("close sitemap: %w", err)
	}
	return nil
}

// Count returns the number of entries appended since Open
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// XMLPath returns the path of sitemap.xml
func (w *Writer) XMLPath() string {
	return filepath.Join(w.dir, XMLFileName)
}

// TextPath returns the path of sitemap.txt
func (w *Writer) TextPath() string {
	return filepath.Join(w.dir, TextFileName)
}
