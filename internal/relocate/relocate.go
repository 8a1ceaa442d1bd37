// Package relocate finds where original PII values appear in a paginated
// document and marks them with highlight and comment annotations.
package relocate

import (
	"context"
	"errors"
	"fmt"

	"github.com/lucasb-eyer/go-colorful"

	"document-deidentifier/internal/deid"
	"document-deidentifier/internal/layout"
)

// ErrDocumentHandle wraps failures to open, search, annotate or save a
// document.
var ErrDocumentHandle = errors.New("document handle error")

// Occurrence is one place on one page where a value was found. PageIndex is
// 0-based. EntityType is empty when the value came without one.
type Occurrence struct {
	PageIndex   int
	Box         layout.Rect
	MatchedText string
	EntityType  string
}

// Searcher is the read side of a paginated document.
type Searcher interface {
	PageCount() int
	SearchText(page int, text string) ([]layout.Rect, error)
}

// Document is an open, annotatable document handle.
type Document interface {
	Searcher
	AddHighlight(page int, box layout.Rect, c colorful.Color, opacity float64) error
	AddComment(page int, at layout.Point, text string, c colorful.Color) error
	Save(path string) error
	Close() error
}

// Renderer opens document handles.
type Renderer interface {
	Open(path string) (Document, error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(path string) (Document, error)

// Open calls f(path).
func (f RendererFunc) Open(path string) (Document, error) { return f(path) }

// LayoutRenderer opens PDFs and saved overlays with the layout package.
func LayoutRenderer() Renderer {
	return RendererFunc(func(path string) (Document, error) {
		d, err := layout.Open(path)
		if err != nil {
			return nil, err
		}
		return d, nil
	})
}

type target struct {
	text       string
	entityType string
}

// Locate searches every page for every original, page by page. Duplicate
// originals are searched once; empty ones are skipped. A value with no
// match simply contributes nothing.
func Locate(ctx context.Context, doc Searcher, originals []string) ([]Occurrence, error) {
	targets := make([]target, 0, len(originals))
	for _, o := range originals {
		targets = append(targets, target{text: o})
	}
	return locate(ctx, doc, targets)
}

// LocateMap is Locate over the originals of m, tagging each occurrence with
// its entity type. An original recorded under several types is searched
// once, under the first type in sorted order.
func LocateMap(ctx context.Context, doc Searcher, m deid.ReplacementMap) ([]Occurrence, error) {
	entries := m.Entries()
	targets := make([]target, 0, len(entries))
	for _, e := range entries {
		targets = append(targets, target{text: e.Original, entityType: e.EntityType})
	}
	return locate(ctx, doc, targets)
}

func locate(ctx context.Context, doc Searcher, targets []target) ([]Occurrence, error) {
	seen := make(map[string]bool, len(targets))
	unique := make([]target, 0, len(targets))
	for _, t := range targets {
		if t.text == "" || seen[t.text] {
			continue
		}
		seen[t.text] = true
		unique = append(unique, t)
	}

	var out []Occurrence
	for page := 0; page < doc.PageCount(); page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, t := range unique {
			boxes, err := doc.SearchText(page, t.text)
			if err != nil {
				return nil, fmt.Errorf("%w: search page %d: %w", ErrDocumentHandle, page, err)
			}
			for _, b := range boxes {
				out = append(out, Occurrence{PageIndex: page, Box: b, MatchedText: t.text, EntityType: t.entityType})
			}
		}
	}
	return out, nil
}

// WithDocument opens path, runs fn on the handle and closes it on every
// exit path. Open and close failures wrap ErrDocumentHandle.
func WithDocument(r Renderer, path string, fn func(Document) error) (err error) {
	doc, err := r.Open(path)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrDocumentHandle, path, err)
	}
	defer func() {
		if cerr := doc.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: close %s: %w", ErrDocumentHandle, path, cerr)
		}
	}()
	return fn(doc)
}
