package relocate

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"document-deidentifier/internal/deid"
	"document-deidentifier/internal/logger"
	"document-deidentifier/internal/metrics"
)

// DefaultOpacity is the highlight opacity used when none is configured.
const DefaultOpacity = 0.3

// CommentPrefix starts every comment annotation.
const CommentPrefix = "De-identified "

// Annotator writes annotated copies of documents.
type Annotator struct {
	Renderer Renderer
	Colors   ColorTable // defaults to DefaultColorTable
	Opacity  float64    // defaults to DefaultOpacity
	Logger   *logger.Logger
	Metrics  *metrics.Metrics
}

// NewAnnotator returns an Annotator using the layout renderer and default
// colors.
func NewAnnotator(log *logger.Logger, m *metrics.Metrics) *Annotator {
	return &Annotator{Renderer: LayoutRenderer(), Logger: log, Metrics: m}
}

// Annotate opens src, highlights every occurrence with a comment at the
// box's bottom-right corner, and saves the result to dst. src is never
// written; the handle is closed whether or not annotation succeeds.
func (a *Annotator) Annotate(src, dst string, occs []Occurrence) error {
	if err := checkPaths(src, dst); err != nil {
		return err
	}
	err := WithDocument(a.Renderer, src, func(doc Document) error {
		if err := a.apply(doc, occs); err != nil {
			return err
		}
		return a.save(doc, dst)
	})
	if err != nil {
		a.Metrics.RecordDocumentError()
	}
	return err
}

// Visualize locates every original of m in src and writes the annotated copy
// to dst. It returns the number of occurrences marked.
func (a *Annotator) Visualize(ctx context.Context, src, dst string, m deid.ReplacementMap) (int, error) {
	if m == nil {
		return 0, deid.ErrMissingReplacementMap
	}
	if err := checkPaths(src, dst); err != nil {
		return 0, err
	}
	start := time.Now()
	var n int
	err := WithDocument(a.Renderer, src, func(doc Document) error {
		occs, err := LocateMap(ctx, doc, m)
		if err != nil {
			return err
		}
		a.Metrics.RecordOccurrences(len(occs))
		a.log().Infof("locate", "%d occurrences of %d values across %d pages", len(occs), len(m.Originals()), doc.PageCount())
		if err := a.apply(doc, occs); err != nil {
			return err
		}
		n = len(occs)
		return a.save(doc, dst)
	})
	if err != nil {
		a.Metrics.RecordDocumentError()
		return 0, err
	}
	a.Metrics.RecordVisualize(time.Since(start))
	return n, nil
}

func (a *Annotator) apply(doc Document, occs []Occurrence) error {
	colors := a.Colors
	if colors == nil {
		colors = DefaultColorTable()
	}
	opacity := a.Opacity
	if opacity == 0 {
		opacity = DefaultOpacity
	}
	for _, o := range occs {
		c := colors.Match(o.EntityType, o.MatchedText)
		if err := doc.AddHighlight(o.PageIndex, o.Box, c, opacity); err != nil {
			return fmt.Errorf("%w: highlight page %d: %w", ErrDocumentHandle, o.PageIndex, err)
		}
		if err := doc.AddComment(o.PageIndex, o.Box.BottomRight(), CommentPrefix+o.MatchedText, c); err != nil {
			return fmt.Errorf("%w: comment page %d: %w", ErrDocumentHandle, o.PageIndex, err)
		}
		a.log().Debugf("annotate", "page %d %s %s", o.PageIndex, o.Box, c.Hex())
	}
	a.Metrics.RecordAnnotations(len(occs))
	return nil
}

func (a *Annotator) save(doc Document, dst string) error {
	if err := doc.Save(dst); err != nil {
		return fmt.Errorf("%w: save %s: %w", ErrDocumentHandle, dst, err)
	}
	a.log().Infof("save", "annotated document written to %s", dst)
	return nil
}

func (a *Annotator) log() *logger.Logger {
	if a.Logger == nil {
		return logger.Discard()
	}
	return a.Logger
}

func checkPaths(src, dst string) error {
	if dst == "" {
		return fmt.Errorf("%w: no output path", ErrDocumentHandle)
	}
	if filepath.Clean(src) == filepath.Clean(dst) {
		return fmt.Errorf("%w: output %s would overwrite the input", ErrDocumentHandle, dst)
	}
	return nil
}
