package layout

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/lucasb-eyer/go-colorful"
)

// overlay is the saved form of a Document.
type overlay struct {
	Source      string              `json:"source,omitempty"`
	PageCount   int                 `json:"page_count"`
	Pages       []*Page             `json:"pages"`
	Annotations []overlayAnnotation `json:"annotations"`
}

type overlayAnnotation struct {
	Type    AnnotationKind `json:"type"`
	Page    int            `json:"page"`
	Box     *Rect          `json:"box,omitempty"`
	At      *Point         `json:"at,omitempty"`
	Text    string         `json:"text,omitempty"`
	Color   string         `json:"color"`
	Opacity float64        `json:"opacity,omitempty"`
}

// saveOverlay writes the document, its page text and its annotations as
// JSON.
func (d *Document) saveOverlay(path string) error {
	out := overlay{
		Source:      d.Source,
		PageCount:   len(d.Pages),
		Pages:       d.Pages,
		Annotations: make([]overlayAnnotation, 0, len(d.Annotations)),
	}
	for _, a := range d.Annotations {
		oa := overlayAnnotation{Type: a.Kind, Page: a.Page, Text: a.Text, Color: a.Color.Hex(), Opacity: a.Opacity}
		switch a.Kind {
		case Highlight:
			box := a.Box
			oa.Box = &box
		case Comment:
			at := a.At
			oa.At = &at
		}
		out.Annotations = append(out.Annotations, oa)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode overlay: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write overlay %s: %w", path, err)
	}
	return nil
}

// LoadOverlay reads a document written by Save.
func LoadOverlay(path string) (*Document, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- caller-supplied document path
	if err != nil {
		return nil, fmt.Errorf("read overlay %s: %w", path, err)
	}
	var in overlay
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("parse overlay %s: %w", path, err)
	}

	d := &Document{Source: in.Source, Pages: in.Pages}
	for i, oa := range in.Annotations {
		c, err := colorful.Hex(oa.Color)
		if err != nil {
			return nil, fmt.Errorf("overlay %s: annotation %d: %w", path, i, err)
		}
		a := Annotation{Kind: oa.Type, Page: oa.Page, Text: oa.Text, Color: c, Opacity: oa.Opacity}
		if oa.Box != nil {
			a.Box = *oa.Box
		}
		if oa.At != nil {
			a.At = *oa.At
		}
		d.Annotations = append(d.Annotations, a)
	}
	if d.Source == "" {
		d.Source = path
	}
	return d, nil
}
