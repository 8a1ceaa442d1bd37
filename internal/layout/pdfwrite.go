package layout

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/color"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// commentIconSize is the side of a comment's note icon in points.
const commentIconSize = 20

var pdfConfigOnce sync.Once

// pdfConfig returns a pdfcpu configuration that never touches the user's
// config directory.
func pdfConfig() *model.Configuration {
	pdfConfigOnce.Do(func() { model.ConfigPath = "disable" })
	return model.NewDefaultConfiguration()
}

// savePDF writes a copy of the source PDF carrying the document's
// annotations as native highlight and text annotations.
func (d *Document) savePDF(path string) error {
	if !strings.EqualFold(filepath.Ext(d.Source), ".pdf") {
		return fmt.Errorf("save %s: source %q is not a PDF: %w", path, d.Source, ErrUnsupportedOutput)
	}
	if len(d.Annotations) == 0 {
		data, err := os.ReadFile(d.Source) // #nosec G304 -- document opened by the caller
		if err != nil {
			return fmt.Errorf("read pdf %s: %w", d.Source, err)
		}
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return fmt.Errorf("write pdf %s: %w", path, err)
		}
		return nil
	}

	byPage := make(map[int][]model.AnnotationRenderer)
	for i, a := range d.Annotations {
		p, err := d.page(a.Page)
		if err != nil {
			return err
		}
		ar := pdfAnnotation(a, p.Height, fmt.Sprintf("deid-%d", i))
		if ar == nil {
			return fmt.Errorf("annotation %d: unknown kind %q", i, a.Kind)
		}
		byPage[a.Page+1] = append(byPage[a.Page+1], ar)
	}
	if err := api.AddAnnotationsMapFile(d.Source, path, byPage, pdfConfig(), false); err != nil {
		return fmt.Errorf("write pdf %s: %w", path, err)
	}
	return nil
}

// pdfAnnotation converts a top-left origin annotation to PDF user space.
func pdfAnnotation(a Annotation, pageHeight float64, id string) model.AnnotationRenderer {
	col := color.SimpleColor{R: float32(a.Color.R), G: float32(a.Color.G), B: float32(a.Color.B)}
	switch a.Kind {
	case Highlight:
		rect := types.NewRectangle(a.Box.X0, pageHeight-a.Box.Y1, a.Box.X1, pageHeight-a.Box.Y0)
		opacity := a.Opacity
		return model.NewHighlightAnnotation(*rect, 0, "", id, "", model.AnnPrint, &col,
			0, 0, 0, "", nil, &opacity, "", "",
			types.QuadPoints{*types.NewQuadLiteralForRect(rect)})
	case Comment:
		top := pageHeight - a.At.Y
		rect := types.NewRectangle(a.At.X, top-commentIconSize, a.At.X+commentIconSize, top)
		return model.NewTextAnnotation(*rect, 0, a.Text, id, "", model.AnnPrint, &col,
			"", nil, nil, "", "", 0, 0, 0, false, "Comment")
	}
	return nil
}
