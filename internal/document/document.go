// Package document tracks host-side open documents. A document's bytes
// are immutable once opened; export always produces a new file
// elsewhere, never a mutation in place.
package document

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Document is one open binary file, identified by its stable location.
type Document struct {
	uri  string
	name string
	data []byte
}

// New creates a document over a copy of data.
func New(uri string, data []byte) *Document {
	buf := make([]byte, len(data))
	copy(buf, data)
	return &Document{
		uri:  uri,
		name: displayName(uri),
		data: buf,
	}
}

// OpenFile reads a file from disk into a new document keyed by its
// absolute path.
func OpenFile(path string) (*Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("document: resolve %s: %w", path, err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("document: read %s: %w", abs, err)
	}
	return New(abs, data), nil
}

// URI returns the document's stable location identifier.
func (d *Document) URI() string { return d.uri }

// Name returns the derived display name.
func (d *Document) Name() string { return d.name }

// Bytes returns the document content. Callers must not mutate it.
func (d *Document) Bytes() []byte { return d.data }

// Size returns the content length in bytes.
func (d *Document) Size() int { return len(d.data) }

// Dir returns the directory containing the document, the default
// target for exports.
func (d *Document) Dir() string {
	return filepath.Dir(localPath(d.uri))
}

// displayName derives a human-readable name from a path or URI.
func displayName(uri string) string {
	return filepath.Base(localPath(uri))
}

// localPath strips a URI scheme if one is present.
func localPath(uri string) string {
	if strings.Contains(uri, "://") {
		if u, err := url.Parse(uri); err == nil && u.Path != "" {
			return u.Path
		}
	}
	return uri
}

// Registry tracks every open document, one per editor tab.
type Registry struct {
	docs sync.Map // uri -> *Document
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Open registers a document, replacing any prior entry for the same URI.
func (r *Registry) Open(doc *Document) {
	r.docs.Store(doc.URI(), doc)
}

// Get looks a document up by URI.
func (r *Registry) Get(uri string) (*Document, bool) {
	val, ok := r.docs.Load(uri)
	if !ok {
		return nil, false
	}
	return val.(*Document), true
}

// Close removes a document. Reports whether it was present.
func (r *Registry) Close(uri string) bool {
	_, ok := r.docs.LoadAndDelete(uri)
	return ok
}

// Count returns the number of open documents.
func (r *Registry) Count() int {
	n := 0
	r.docs.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
