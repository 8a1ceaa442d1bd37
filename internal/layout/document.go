// Package layout models paginated documents as pages of positioned glyphs.
// It can load text positions from PDF files, search page text for literal
// strings, and record highlight and comment annotations. Annotations are
// written into a copy of a source PDF, or saved as a JSON overlay alongside
// the page text.
package layout

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// ErrClosed is returned by operations on a closed Document.
var ErrClosed = errors.New("layout: document is closed")

// ErrUnsupportedOutput is returned by Save for paths it cannot write.
var ErrUnsupportedOutput = errors.New("layout: unsupported output type")

// AnnotationKind names an annotation type.
type AnnotationKind string

// Supported annotation kinds.
const (
	Highlight AnnotationKind = "highlight"
	Comment   AnnotationKind = "comment"
)

// Annotation is a highlight over Box or a comment anchored At a point.
// Page is 0-based.
type Annotation struct {
	Kind    AnnotationKind
	Page    int
	Box     Rect
	At      Point
	Text    string
	Color   colorful.Color
	Opacity float64
}

// Document is an open paginated document. It is not safe for concurrent use.
type Document struct {
	Source      string
	Pages       []*Page
	Annotations []Annotation
	closed      bool
}

// New returns an in-memory document with the given pages.
func New(pages ...*Page) *Document {
	return &Document{Pages: pages}
}

// Open loads a .pdf file or a saved .json overlay.
func Open(path string) (*Document, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return OpenPDF(path)
	case ".json":
		return LoadOverlay(path)
	}
	return nil, fmt.Errorf("open %s: unsupported document type", path)
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int { return len(d.Pages) }

// SearchText returns a box for every occurrence of text on the page.
func (d *Document) SearchText(page int, text string) ([]Rect, error) {
	p, err := d.page(page)
	if err != nil {
		return nil, err
	}
	return p.Search(text), nil
}

// AddHighlight records a translucent highlight. opacity must be in [0,1].
func (d *Document) AddHighlight(page int, box Rect, c colorful.Color, opacity float64) error {
	if _, err := d.page(page); err != nil {
		return err
	}
	if opacity < 0 || opacity > 1 {
		return fmt.Errorf("highlight opacity %.2f out of range [0,1]", opacity)
	}
	d.Annotations = append(d.Annotations, Annotation{Kind: Highlight, Page: page, Box: box, Color: c, Opacity: opacity})
	return nil
}

// AddComment records a text comment anchored at a point.
func (d *Document) AddComment(page int, at Point, text string, c colorful.Color) error {
	if _, err := d.page(page); err != nil {
		return err
	}
	d.Annotations = append(d.Annotations, Annotation{Kind: Comment, Page: page, At: at, Text: text, Color: c})
	return nil
}

// Save writes the document to path. A .pdf path receives a copy of the
// source PDF with native annotations; a .json path receives the overlay.
func (d *Document) Save(path string) error {
	if d.closed {
		return ErrClosed
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return d.savePDF(path)
	case ".json":
		return d.saveOverlay(path)
	}
	return fmt.Errorf("save %s: %w", path, ErrUnsupportedOutput)
}

// Close releases the document. Further calls other than Close fail.
func (d *Document) Close() error {
	d.closed = true
	return nil
}

func (d *Document) page(i int) (*Page, error) {
	if d.closed {
		return nil, ErrClosed
	}
	if i < 0 || i >= len(d.Pages) {
		return nil, fmt.Errorf("page index %d out of range [0,%d)", i, len(d.Pages))
	}
	return d.Pages[i], nil
}
