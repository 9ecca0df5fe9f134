package document

import (
	"fmt"
	"regexp"
	"strings"
)

var cidRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// MaxHTMLSize is the maximum raw document size in bytes.
const MaxHTMLSize = 4 << 20 // 4MB

// Metadata carries what the node knows about a document besides its content.
type Metadata struct {
	Paths []string `json:"paths"`
}

// Document is a raw stored document (immutable value object).
type Document struct {
	cid   string
	html  string
	paths []string
}

// New validates and creates a Document.
// CID: ^[a-zA-Z0-9_.-]+$, 1-128 chars. HTML: non-empty, max 4MB.
func New(cid, html string, paths []string) (Document, error) {
	if cid == "" {
		return Document{}, fmt.Errorf("document cid is required")
	}
	if len(cid) > 128 {
		return Document{}, fmt.Errorf("document cid too long (max 128)")
	}
	if !cidRegex.MatchString(cid) {
		return Document{}, fmt.Errorf("document cid must be alphanumeric with dots, underscores and hyphens")
	}
	if strings.TrimSpace(html) == "" {
		return Document{}, fmt.Errorf("html is required")
	}
	if len(html) > MaxHTMLSize {
		return Document{}, fmt.Errorf("html too large (max %d bytes)", MaxHTMLSize)
	}

	return Document{cid: cid, html: html, paths: clonePaths(paths)}, nil
}

// Reconstruct creates a Document without validation (storage hydration).
func Reconstruct(cid, html string, paths []string) Document {
	return Document{cid: cid, html: html, paths: paths}
}

// CID returns the content identifier.
func (d *Document) CID() string { return d.cid }

// HTML returns the raw markup.
func (d *Document) HTML() string { return d.html }

// Paths returns the retrieval paths of the document.
func (d *Document) Paths() []string { return d.paths }

// Metadata returns the document metadata.
func (d *Document) Metadata() Metadata { return Metadata{Paths: d.paths} }

func clonePaths(p []string) []string {
	if p == nil {
		return nil
	}
	c := make([]string, len(p))
	copy(c, p)
	return c
}
