// Package snapshot derives snapshot file names from crawl paths and writes
// the sanitized documents.
package snapshot

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/afero"
)

// IndexFileName receives the first page of the crawl
const IndexFileName = "index.html"

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9]`)

// Sanitize strips the first occurrence of initialQuery from path and replaces
// every character outside [A-Za-z0-9] with an underscore. Distinct paths can
// produce the same name, e.g. "/a-b" and "/a_b".
func Sanitize(path, initialQuery string) string {
	if initialQuery != "" {
		path = strings.Replace(path, initialQuery, "", 1)
	}
	return unsafeChars.ReplaceAllLiteralString(path, "_")
}

// FileName returns the snapshot file name for path
func FileName(initialQuery, prefix, path string) string {
	return prefix + Sanitize(path, initialQuery) + ".html"
}

// Writer persists snapshots under one directory
type Writer struct {
	fs           afero.Fs
	dir          string
	initialQuery string
	prefix       string
}

// NewWriter creates a writer rooted at dir
func NewWriter(fs afero.Fs, dir, initialQuery, prefix string) *Writer {
	return &Writer{
		fs:           fs,
		dir:          dir,
		initialQuery: initialQuery,
		prefix:       prefix,
	}
}

// Dir returns the output directory
func (w *Writer) Dir() string {
	return w.dir
}

// FileName returns the name Write would use for path
func (w *Writer) FileName(path string) string {
	return FileName(w.initialQuery, w.prefix, path)
}

// Reset removes any previous output and recreates the directory
func (w *Writer) Reset() error {
	if err := w.fs.RemoveAll(w.dir); err != nil {
		return fmt.Errorf("clear %s: %w", w.dir, err)
	}
	if err := w.fs.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", w.dir, err)
	}
	return nil
}

// Write stores html as the snapshot of path, overwriting any earlier file,
// and returns the file name used.
func (w *Writer) Write(path, html string) (string, error) {
	name := w.FileName(path)
	if err := afero.WriteFile(w.fs, filepath.Join(w.dir, name), []byte(html), 0644); err != nil {
		return "", fmt.Errorf("write snapshot %s: %w", name, err)
	}
	return name, nil
}

// WriteIndex stores html as index.html
func (w *Writer) WriteIndex(html string) error {
	if err := afero.WriteFile(w.fs, filepath.Join(w.dir, IndexFileName), []byte(html), 0644); err != nil {
		return fmt.Errorf("write %s: %w", IndexFileName, err)
	}
	return nil
}
