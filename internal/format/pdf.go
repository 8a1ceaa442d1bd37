package format

import (
	"fmt"
	"path/filepath"
	"strings"

	"document-deidentifier/internal/deid"
	"document-deidentifier/internal/layout"
)

// PDF extracts page text from PDF files. Processed output cannot be written
// back as PDF; it is saved as JSON or as plain text with page separators.
type PDF struct{}

// Name implements Adapter.
func (PDF) Name() string { return "pdf" }

// Parse implements Adapter.
func (PDF) Parse(path string) (*Document, error) {
	doc, err := layout.OpenPDF(path)
	if err != nil {
		return nil, err
	}
	defer doc.Close() //nolint:errcheck // in-memory document
	return &Document{Value: pagesValue(doc)}, nil
}

func pagesValue(doc *layout.Document) deid.Value {
	pages := make([]deid.Value, 0, doc.PageCount())
	for _, p := range doc.Pages {
		pages = append(pages, deid.Mapping(
			deid.KV("page_num", deid.Scalar(p.Number)),
			deid.KV("text", deid.Text(p.Text())),
		))
	}
	return deid.Mapping(
		deid.KV("metadata", deid.Mapping(deid.KV("page_count", deid.Scalar(doc.PageCount())))),
		deid.KV("pages", deid.Sequence(pages...)),
	)
}

// Save writes .txt as "--- Page N ---" blocks; anything else is written as
// JSON, to a sibling .json file unless path already ends in .json.
func (PDF) Save(doc *Document, path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		pages, _ := doc.Value.Get("pages")
		var b strings.Builder
		for i, p := range pages.Items() {
			num := i + 1
			if n, ok := p.Get("page_num"); ok {
				num = toInt(n, num)
			}
			text, _ := p.Get("text")
			fmt.Fprintf(&b, "--- Page %d ---\n\n%s\n\n", num, text.Str())
		}
		return writeFile(path, []byte(b.String()))
	case ".json":
		return writeJSON(path, doc.Value)
	default:
		return writeJSON(withExt(path, ".json"), doc.Value)
	}
}

func toInt(v deid.Value, fallback int) int {
	switch n := v.Raw().(type) {
	case int:
		return n
	case fmt.Stringer:
		var i int
		if _, err := fmt.Sscan(n.String(), &i); err == nil {
			return i
		}
	}
	return fallback
}
